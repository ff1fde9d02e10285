package main

import (
	"encoding/json"
	"path/filepath"
	"testing"

	persistlog "github.com/dr-vortex/annihilation/internal/persistence/log"
	"github.com/dr-vortex/annihilation/internal/sim/catalogs"
	"github.com/dr-vortex/annihilation/internal/sim/geom"
	"github.com/dr-vortex/annihilation/internal/sim/level"
	"github.com/dr-vortex/annihilation/internal/sim/tuning"
)

func newLevel(t *testing.T) *level.Level {
	t.Helper()
	cats, err := catalogs.Default()
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	l := level.New(level.Config{ID: "lvl", Seed: 11}, cats, tuning.Defaults())
	if _, err := l.GenerateSystem("Sol", geom.Vec2{}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	return l
}

func TestReplay_JournalRoundTrip(t *testing.T) {
	dir := t.TempDir()
	j := persistlog.NewActionJournal(dir)
	record := func(tick uint64, player, kind, payload string, ok bool) {
		e := persistlog.ActionEntry{Tick: tick, PlayerID: player, Kind: kind, OK: ok}
		if payload != "" {
			e.Payload = json.RawMessage(payload)
		}
		if err := j.WriteAction(e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	// starter kit has 100 metal: two mosquitoes fit, the third does not
	record(3, "p1", level.ActionCreateShip, "", true)
	record(4, "p1", level.ActionCreateShip, "", true)
	record(4, "p1", level.ActionCreateShip, "", true)
	record(9, "p1", level.ActionReset, "", true)
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := persistlog.Files(filepath.Join(dir, "actions"), "actions")
	if err != nil || len(files) != 1 {
		t.Fatalf("files: %v %v", files, err)
	}
	entries, err := persistlog.ReadActions(files[0])
	if err != nil || len(entries) != 4 {
		t.Fatalf("read: %d %v", len(entries), err)
	}

	l := newLevel(t)
	rep := replay(l, entries, 12)
	if rep.Applied != 4 || rep.Joined != 1 {
		t.Fatalf("report: %+v", rep)
	}
	if len(rep.Divergences) != 1 || rep.Divergences[0].Entry.Tick != 4 || rep.Divergences[0].OK {
		t.Fatalf("divergences: %+v", rep.Divergences)
	}
	if l.Tick() != 12 {
		t.Fatalf("tick %d", l.Tick())
	}
	p, err := l.Player("p1")
	if err != nil || len(p.Fleet) != 0 {
		t.Fatalf("reset should scrap the fleet: %v %v", err, p)
	}
}

func TestReplay_SkipsEntriesBeforeSave(t *testing.T) {
	l := newLevel(t)
	for i := 0; i < 10; i++ {
		l.Step()
	}
	rep := replay(l, []persistlog.ActionEntry{
		{Tick: 2, PlayerID: "p1", Kind: level.ActionReset, OK: true},
		{Tick: 10, PlayerID: "p1", Kind: level.ActionReset, OK: true},
	}, 0)
	if rep.Skipped != 1 || rep.Applied != 1 || len(rep.Divergences) != 0 {
		t.Fatalf("report: %+v", rep)
	}
}

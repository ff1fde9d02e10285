package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dr-vortex/annihilation/internal/auth"
	"github.com/dr-vortex/annihilation/internal/persistence/snapshot"
	"github.com/dr-vortex/annihilation/internal/persistence/store"
	"github.com/dr-vortex/annihilation/internal/protocol"
	"github.com/dr-vortex/annihilation/internal/sim/catalogs"
	"github.com/dr-vortex/annihilation/internal/sim/geom"
	"github.com/dr-vortex/annihilation/internal/sim/level"
	"github.com/dr-vortex/annihilation/internal/sim/tuning"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// adminEnv points the CLI at a throwaway sqlite store.
func adminEnv(t *testing.T) (dataDir, dsn string) {
	t.Helper()
	dataDir = t.TempDir()
	dsn = filepath.Join(dataDir, "admin.sqlite")
	t.Setenv("ANNIHILATION_DATA_DIR", dataDir)
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("STORE_DSN", dsn)
	t.Setenv("JWT_SECRET", testSecret)
	return dataDir, dsn
}

func runCmd(t *testing.T, fn func([]string, io.Writer) error, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	if err := fn(append([]string{"-env", filepath.Join(t.TempDir(), "none.env")}, args...), &out); err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out.String()
}

func testSnapshot(t *testing.T) *snapshot.Level {
	t.Helper()
	cats, err := catalogs.Default()
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	l := level.New(level.Config{ID: "lvl-admin", Name: "admin", Seed: 4}, cats, tuning.Defaults())
	if _, err := l.GenerateSystem("Sol", geom.Vec2{}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	p, err := l.AddPlayer("p1", "ada")
	if err != nil {
		t.Fatalf("player: %v", err)
	}
	if err := l.GrantStarterKit(p.ID); err != nil {
		t.Fatalf("kit: %v", err)
	}
	l.Step()
	return l.Snapshot()
}

func TestAdmin_SaveLifecycle(t *testing.T) {
	adminEnv(t)
	dir := t.TempDir()
	snap := testSnapshot(t)
	jsonPath := filepath.Join(dir, "in.json")
	if err := writeSaveFile(jsonPath, snap); err != nil {
		t.Fatalf("write: %v", err)
	}

	var vout bytes.Buffer
	if err := validateCmd([]string{jsonPath}, &vout); err != nil || !strings.Contains(vout.String(), "ok level=lvl-admin tick=1") {
		t.Fatalf("validate: %v %s", err, vout.String())
	}

	runCmd(t, importCmd, "-in", jsonPath)
	out := runCmd(t, savesCmd, "-level", "lvl-admin")
	if !strings.Contains(out, "lvl-admin/autosave") {
		t.Fatalf("saves: %s", out)
	}

	zst := filepath.Join(dir, "out", "x.snap.zst")
	runCmd(t, exportCmd, "-id", "lvl-admin/autosave", "-out", zst)
	back, err := readSaveFile(zst)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if back.ID != snap.ID || back.Tick != snap.Tick || len(back.Entities) != len(snap.Entities) {
		t.Fatalf("export differs: %+v", back.Header())
	}

	runCmd(t, deleteCmd, "-id", "lvl-admin/autosave")
	var sink bytes.Buffer
	if err := deleteCmd([]string{"-env", "none.env", "-id", "lvl-admin/autosave"}, &sink); err == nil {
		t.Fatalf("expected second delete to fail")
	}
}

func TestAdmin_ValidateRejectsBadSaves(t *testing.T) {
	snap := testSnapshot(t)
	dir := t.TempDir()

	old := *snap
	old.Version = "0.9"
	oldPath := filepath.Join(dir, "old.json")
	if err := writeSaveFile(oldPath, &old); err != nil {
		t.Fatalf("write: %v", err)
	}
	var out bytes.Buffer
	if err := validateCmd([]string{oldPath}, &out); err == nil {
		t.Fatalf("expected version rejection")
	}

	broken := *snap
	broken.Entities = append([]snapshot.Entity(nil), snap.Entities...)
	for i := range broken.Entities {
		if broken.Entities[i].EntityType == snapshot.TypePlayer {
			broken.Entities[i].Fleet = []string{"ship-missing"}
		}
	}
	brokenPath := filepath.Join(dir, "broken.json")
	if err := writeSaveFile(brokenPath, &broken); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := validateCmd([]string{brokenPath}, &out); err == nil {
		t.Fatalf("expected restore failure for a dangling fleet id")
	}
}

func TestAdmin_Token(t *testing.T) {
	adminEnv(t)
	out := strings.TrimSpace(runCmd(t, tokenCmd, "-player", "p1", "-name", "ada", "-level", "lvl-1", "-ttl", "1m"))
	claims, err := auth.NewIssuer(testSecret, time.Minute).Validate(out)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.PlayerID != "p1" || claims.LevelID != "lvl-1" {
		t.Fatalf("claims: %+v", claims)
	}

	t.Setenv("JWT_SECRET", "")
	var sink bytes.Buffer
	if err := tokenCmd([]string{"-env", "none.env", "-player", "p1"}, &sink); err == nil {
		t.Fatalf("expected auth disabled error")
	}
}

func TestAdmin_EventsFromStore(t *testing.T) {
	_, dsn := adminEnv(t)
	st, err := store.Open(context.Background(), store.DriverSQLite, dsn, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	st.RecordEvent("lvl", protocol.Event{ID: "01A", Tick: 1, Kind: level.EventShipCreated, Emitter: "ship-1"})
	st.RecordEvent("lvl", protocol.Event{ID: "01B", Tick: 2, Kind: level.EventEntityDeath, Emitter: "ship-1"})
	st.RecordEvent("lvl", protocol.Event{ID: "01C", Tick: 3, Kind: level.EventShipCreated, Emitter: "ship-2"})
	if err := st.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	_ = st.Close()

	out := runCmd(t, eventsCmd, "-level", "lvl", "-kind", level.EventShipCreated)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("events: %q", out)
	}
	var ev protocol.Event
	if err := json.Unmarshal([]byte(lines[1]), &ev); err != nil || ev.Emitter != "ship-2" {
		t.Fatalf("second event: %v %+v", err, ev)
	}
}

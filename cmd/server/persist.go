package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	persistlog "github.com/dr-vortex/annihilation/internal/persistence/log"
	"github.com/dr-vortex/annihilation/internal/persistence/snapshot"
	"github.com/dr-vortex/annihilation/internal/persistence/store"
	"github.com/dr-vortex/annihilation/internal/sim/level"
)

// autosaveID is the store key the server overwrites on every periodic save.
func autosaveID(levelID string) string { return levelID + "/autosave" }

type saver struct {
	dir   string
	store *store.Store
	log   *slog.Logger
}

func (s *saver) run(ctx context.Context, snaps <-chan *snapshot.Level) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-snaps:
			s.save(snap)
		}
	}
}

// save writes <dir>/<tick>.snap.zst and the store autosave. Failures are
// logged; the next periodic snapshot retries.
func (s *saver) save(snap *snapshot.Level) {
	path := filepath.Join(s.dir, snapshot.FileName(snap.Tick))
	if err := snapshot.WriteFile(path, snap); err != nil {
		s.log.Warn("snapshot write", "path", path, "err", err)
	}
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	info, err := s.store.Put(ctx, autosaveID(snap.ID), snap)
	if err != nil {
		s.log.Warn("store save", "level_id", snap.ID, "err", err)
		return
	}
	s.log.Info("saved", "tick", info.Tick, "bytes", info.Size, "path", path)
}

// eventSink copies level events into the journal and the store index. It
// runs on the loop goroutine.
type eventSink struct {
	levelID string
	journal *persistlog.EventJournal
	store   *store.Store
	log     *slog.Logger
}

func (e eventSink) handle(ev level.Event) {
	// Per-tick heartbeats stay out of the durable record.
	if ev.Kind == level.EventUpdate {
		return
	}
	w := ev.Wire()
	if e.journal != nil {
		if err := e.journal.WriteEvent(w); err != nil {
			e.log.Warn("journal write", "kind", w.Kind, "err", err)
		}
	}
	if e.store != nil {
		e.store.RecordEvent(e.levelID, w)
	}
}

func latestSnapshot(dir string) string {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

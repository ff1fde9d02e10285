package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dr-vortex/annihilation/internal/protocol"
)

type reqKind int

const (
	reqEvent reqKind = iota + 1
	reqFlush
)

type req struct {
	kind    reqKind
	levelID string
	event   protocol.Event
	done    chan struct{}
}

// RecordEvent queues ev for the event index. It never blocks; events are
// dropped while the writer is behind.
func (s *Store) RecordEvent(levelID string, ev protocol.Event) {
	if s == nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- req{kind: reqEvent, levelID: levelID, event: ev}:
	default:
	}
}

// Flush waits until every event queued before the call is committed.
func (s *Store) Flush(ctx context.Context) error {
	done := make(chan struct{})
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil
	}
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}
	s.mu.RUnlock()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns indexed events of a level from sinceTick on, oldest first.
// A non-empty emitter narrows to one entity.
func (s *Store) Events(ctx context.Context, levelID string, sinceTick uint64, emitter string, limit int) ([]protocol.Event, error) {
	if limit <= 0 || limit > 10000 {
		limit = 1000
	}
	q := `SELECT id,tick,kind,emitter,data FROM events WHERE level_id=? AND tick>=?`
	args := []any{levelID, int64(sinceTick)}
	if emitter != "" {
		q += ` AND emitter=?`
		args = append(args, emitter)
	}
	q += ` ORDER BY tick, id LIMIT ?`
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []protocol.Event
	for rows.Next() {
		var (
			ev   protocol.Event
			tick int64
			data string
		)
		if err := rows.Scan(&ev.ID, &tick, &ev.Kind, &ev.Emitter, &data); err != nil {
			return nil, err
		}
		ev.Tick = uint64(tick)
		if data != "" && data != "null" {
			if err := json.Unmarshal([]byte(data), &ev.Data); err != nil {
				return nil, fmt.Errorf("event %s data: %w", ev.ID, err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Store) loop() {
	ctx := context.Background()
	insertEvent, err := s.db.Prepare(s.rebind(`INSERT INTO events(id,level_id,tick,kind,emitter,data)
		VALUES(?,?,?,?,?,?) ON CONFLICT(id) DO NOTHING`))
	if err != nil {
		s.log.Error("prepare event insert", "err", err)
	}
	defer func() {
		if insertEvent != nil {
			_ = insertEvent.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 1000
		commitMaxWait = 2 * time.Second
	)
	begin := func() bool {
		if tx != nil {
			return true
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.log.Warn("event index: begin tx", "err", err)
			return false
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
		return true
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.log.Warn("event index: commit", "err", err)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		switch r.kind {
		case reqFlush:
			commit()
			close(r.done)
			continue
		case reqEvent:
			if insertEvent == nil || !begin() {
				continue
			}
			data, _ := json.Marshal(r.event.Data)
			ev := r.event
			if _, err := tx.Stmt(insertEvent).Exec(ev.ID, r.levelID, int64(ev.Tick), ev.Kind, ev.Emitter, string(data)); err != nil {
				s.log.Warn("event index: insert", "err", err, "event_id", ev.ID)
				_ = tx.Rollback()
				tx = nil
				continue
			}
			opCount++
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}
	commit()
}

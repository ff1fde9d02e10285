package level

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dr-vortex/annihilation/internal/persistence/snapshot"
)

var ErrLoopStopped = errors.New("level loop stopped")

type LoopConfig struct {
	TickRateHz          int
	SnapshotEveryTicks  int
	BroadcastEveryTicks int
}

// Loop owns a Level on a single goroutine. Every read or write from other
// goroutines goes through Submit or Do, so actions never interleave with
// each other or with a tick.
type Loop struct {
	lvl *Level
	cfg LoopConfig
	log *slog.Logger

	actions chan actionReq
	calls   chan callReq
	stop    chan struct{}
	done    chan struct{}

	snapshotSink  chan<- *snapshot.Level
	broadcastSink chan<- *snapshot.Level

	tick atomic.Uint64
}

type actionReq struct {
	playerID string
	act      Action
	resp     chan actionResp
}

type actionResp struct {
	ok   bool
	tick uint64
	err  error
}

type callReq struct {
	fn   func(*Level) error
	resp chan error
}

func NewLoop(l *Level, cfg LoopConfig, logger *slog.Logger) *Loop {
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	lp := &Loop{
		lvl:     l,
		cfg:     cfg,
		log:     logger.With("component", "loop", "level_id", l.ID),
		actions: make(chan actionReq, 256),
		calls:   make(chan callReq, 64),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	lp.tick.Store(l.Tick())
	return lp
}

// SetSnapshotSink receives a full snapshot every SnapshotEveryTicks. Sends
// never block the loop; a full sink drops the snapshot.
func (lp *Loop) SetSnapshotSink(ch chan<- *snapshot.Level) { lp.snapshotSink = ch }

// SetBroadcastSink receives a full snapshot every BroadcastEveryTicks for
// diffing by transports.
func (lp *Loop) SetBroadcastSink(ch chan<- *snapshot.Level) { lp.broadcastSink = ch }

func (lp *Loop) Run(ctx context.Context) error {
	defer close(lp.done)
	interval := time.Second / time.Duration(lp.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-lp.stop:
			return nil
		case req := <-lp.actions:
			ok, err := lp.lvl.TryAction(req.playerID, req.act)
			req.resp <- actionResp{ok: ok, tick: lp.lvl.Tick(), err: err}
		case req := <-lp.calls:
			req.resp <- req.fn(lp.lvl)
		case <-ticker.C:
			lp.step()
		}
	}
}

func (lp *Loop) step() {
	lp.lvl.Step()
	tick := lp.lvl.Tick()
	lp.tick.Store(tick)
	if lp.snapshotSink != nil && lp.cfg.SnapshotEveryTicks > 0 && tick%uint64(lp.cfg.SnapshotEveryTicks) == 0 {
		select {
		case lp.snapshotSink <- lp.lvl.Snapshot():
		default:
			lp.log.Warn("snapshot sink full; dropping snapshot", "tick", tick)
		}
	}
	if lp.broadcastSink != nil && lp.cfg.BroadcastEveryTicks > 0 && tick%uint64(lp.cfg.BroadcastEveryTicks) == 0 {
		select {
		case lp.broadcastSink <- lp.lvl.Snapshot():
		default:
		}
	}
}

func (lp *Loop) Stop() { close(lp.stop) }

// Tick is the last completed tick, readable from any goroutine.
func (lp *Loop) Tick() uint64 { return lp.tick.Load() }

// Done is closed when Run returns.
func (lp *Loop) Done() <-chan struct{} { return lp.done }

// Submit runs TryAction on the loop goroutine and waits for the outcome.
func (lp *Loop) Submit(ctx context.Context, playerID string, act Action) (bool, error) {
	ok, _, err := lp.SubmitAt(ctx, playerID, act)
	return ok, err
}

// SubmitAt is Submit that also reports the tick the action was applied at.
func (lp *Loop) SubmitAt(ctx context.Context, playerID string, act Action) (ok bool, tick uint64, err error) {
	resp := make(chan actionResp, 1)
	select {
	case lp.actions <- actionReq{playerID: playerID, act: act, resp: resp}:
	case <-lp.done:
		return false, 0, ErrLoopStopped
	case <-ctx.Done():
		return false, 0, ctx.Err()
	}
	select {
	case r := <-resp:
		return r.ok, r.tick, r.err
	case <-lp.done:
		return false, 0, ErrLoopStopped
	case <-ctx.Done():
		return false, 0, ctx.Err()
	}
}

// Do runs fn on the loop goroutine. fn must not retain the Level.
func (lp *Loop) Do(ctx context.Context, fn func(*Level) error) error {
	resp := make(chan error, 1)
	select {
	case lp.calls <- callReq{fn: fn, resp: resp}:
	case <-lp.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-resp:
		return err
	case <-lp.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot captures the level from the loop goroutine.
func (lp *Loop) Snapshot(ctx context.Context) (*snapshot.Level, error) {
	var snap *snapshot.Level
	err := lp.Do(ctx, func(l *Level) error {
		snap = l.Snapshot()
		return nil
	})
	return snap, err
}

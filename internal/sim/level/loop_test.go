package level

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dr-vortex/annihilation/internal/persistence/snapshot"
)

func startLoop(t *testing.T, l *Level, cfg LoopConfig) *Loop {
	t.Helper()
	lp := NewLoop(l, cfg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = lp.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-lp.Done()
	})
	return lp
}

func TestLoop_ConcurrentSubmitsAreSerialized(t *testing.T) {
	l := newTestLevel(t)
	// enough metal for exactly 7 plates
	p := newTestPlayer(t, l, map[string]int{"metal": 75})
	lp := startLoop(t, l, LoopConfig{TickRateHz: 200})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := lp.Submit(ctx, p.ID, CreateItem{Item: "hull_plating"})
			if err != nil {
				t.Errorf("submit: %v", err)
				return
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := wins.Load(); got != 7 {
		t.Fatalf("successes=%d want 7", got)
	}

	var plates, metal int
	err := lp.Do(ctx, func(l *Level) error {
		pl, err := l.Player(p.ID)
		if err != nil {
			return err
		}
		plates, metal = pl.Storage.Count("hull_plating"), pl.Storage.Count("metal")
		return nil
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if plates != 7 || metal != 5 {
		t.Fatalf("plates=%d metal=%d", plates, metal)
	}
}

func TestLoop_DoPropagatesError(t *testing.T) {
	l := newTestLevel(t)
	lp := startLoop(t, l, LoopConfig{TickRateHz: 100})
	err := lp.Do(context.Background(), func(l *Level) error {
		_, err := l.Player("ghost")
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoop_SnapshotSink(t *testing.T) {
	l := newTestLevel(t)
	_ = newTestPlayer(t, l, nil)
	lp := NewLoop(l, LoopConfig{TickRateHz: 500, SnapshotEveryTicks: 5}, nil)
	sink := make(chan *snapshot.Level, 1)
	lp.SetSnapshotSink(sink)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = lp.Run(ctx) }()

	select {
	case snap := <-sink:
		if snap.Tick == 0 || snap.Tick%5 != 0 {
			t.Fatalf("snapshot at tick %d", snap.Tick)
		}
		if len(snap.Entities) != 1 {
			t.Fatalf("entities=%d", len(snap.Entities))
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no snapshot delivered")
	}
}

func TestLoop_StoppedRejectsWork(t *testing.T) {
	l := newTestLevel(t)
	lp := NewLoop(l, LoopConfig{TickRateHz: 100}, nil)
	go func() { _ = lp.Run(context.Background()) }()
	lp.Stop()
	<-lp.Done()

	if _, err := lp.Submit(context.Background(), "p", Reset{}); !errors.Is(err, ErrLoopStopped) {
		t.Fatalf("submit after stop: %v", err)
	}
	if _, err := lp.Snapshot(context.Background()); !errors.Is(err, ErrLoopStopped) {
		t.Fatalf("snapshot after stop: %v", err)
	}
}

func TestLoop_SubmitAtReportsTick(t *testing.T) {
	l := newTestLevel(t)
	p := newTestPlayer(t, l, map[string]int{"metal": 10})
	stepN(l, 3)
	lp := startLoop(t, l, LoopConfig{TickRateHz: 1})

	ok, tick, err := lp.SubmitAt(context.Background(), p.ID, CreateItem{Item: "hull_plating"})
	if err != nil || !ok {
		t.Fatalf("submit: ok=%v err=%v", ok, err)
	}
	if tick != 3 {
		t.Fatalf("tick=%d want 3", tick)
	}
}

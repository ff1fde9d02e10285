package level

import (
	"testing"

	"github.com/dr-vortex/annihilation/internal/sim/catalogs"
	"github.com/dr-vortex/annihilation/internal/sim/geom"
	"github.com/dr-vortex/annihilation/internal/sim/tuning"
)

func newTestLevel(t *testing.T) *Level {
	t.Helper()
	cats, err := catalogs.Default()
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	return New(Config{Name: "test", Seed: 42}, cats, tuning.Defaults())
}

// newTestPlayer adds a system (if none) and a player holding items.
func newTestPlayer(t *testing.T, l *Level, items map[string]int) *Player {
	t.Helper()
	if len(l.Systems()) == 0 {
		l.AddSystem("Sol", geom.Vec2{})
	}
	p, err := l.AddPlayer("", "tester")
	if err != nil {
		t.Fatalf("add player: %v", err)
	}
	if err := p.Storage.AddItems(items); err != nil {
		t.Fatalf("add items: %v", err)
	}
	return p
}

type eventLog struct {
	events []Event
}

func (e *eventLog) record(ev Event) { e.events = append(e.events, ev) }

func (e *eventLog) kinds(kind string) []Event {
	var out []Event
	for _, ev := range e.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func watch(l *Level) *eventLog {
	var log eventLog
	l.Subscribe(log.record)
	return &log
}

func stepN(l *Level, n int) {
	for i := 0; i < n; i++ {
		l.Step()
	}
}

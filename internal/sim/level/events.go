package level

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dr-vortex/annihilation/internal/protocol"
)

// Event kinds.
const (
	EventUpdate          = "update"
	EventEntityCreated   = "entity.created"
	EventEntityRemoved   = "entity.removed"
	EventEntityDeath     = "entity.death"
	EventEntityWarp      = "entity.warp"
	EventProjectileFire  = "projectile.fire"
	EventProjectileHit   = "projectile.hit"
	EventFollowPathStart = "entity.follow_path.start"
	EventFollowPathEnd   = "entity.follow_path.end"
	EventBodyCreated     = "body.created"
	EventBodyRemoved     = "body.removed"
	EventPlayerCreated   = "player.created"
	EventPlayerRemoved   = "player.removed"
	EventPlayerReset     = "player.reset"
	EventPlayerLevelUp   = "player.levelup"
	EventShipCreated     = "ship.created"
	EventItemCreated     = "item.created"
	EventResearch        = "player.research"
	EventSystemCreated   = "system.created"
)

type Event struct {
	ID        ulid.ULID      `json:"id"`
	Tick      uint64         `json:"tick"`
	Kind      string         `json:"kind"`
	EmitterID string         `json:"emitter"`
	Data      map[string]any `json:"data,omitempty"`
}

// Wire is the event as journals and clients see it.
func (e Event) Wire() protocol.Event {
	return protocol.Event{
		ID:      e.ID.String(),
		Tick:    e.Tick,
		Kind:    e.Kind,
		Emitter: e.EmitterID,
		Data:    e.Data,
	}
}

// Subscribe registers fn for every event emitted from now on. Subscribers run
// on the goroutine that mutates the level and must not block.
func (l *Level) Subscribe(fn func(Event)) (unsubscribe func()) {
	l.nextSub++
	id := l.nextSub
	l.subs = append(l.subs, subscriber{id: id, fn: fn})
	return func() {
		for i, s := range l.subs {
			if s.id == id {
				l.subs = append(l.subs[:i:i], l.subs[i+1:]...)
				return
			}
		}
	}
}

type subscriber struct {
	id int
	fn func(Event)
}

func (l *Level) emit(kind, emitter string, data map[string]any) {
	if len(l.subs) == 0 {
		return
	}
	ev := Event{
		ID:        ulid.MustNew(ulid.Timestamp(time.Now()), l.entropy),
		Tick:      l.tick,
		Kind:      kind,
		EmitterID: emitter,
		Data:      data,
	}
	for _, s := range append([]subscriber(nil), l.subs...) {
		s.fn(ev)
	}
}

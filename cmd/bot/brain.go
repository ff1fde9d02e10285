package main

import (
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/dr-vortex/annihilation/internal/persistence/snapshot"
	"github.com/dr-vortex/annihilation/internal/protocol"
	"github.com/dr-vortex/annihilation/internal/sim/geom"
	"github.com/dr-vortex/annihilation/internal/sim/level"
)

// wander is how far from the system center ships are sent.
const wander = 120.0

// brain tracks the bot's ships from WELCOME and DIFF frames and decides
// what to send.
type brain struct {
	playerID string
	every    uint64
	rng      *rand.Rand
	seq      uint64
	ships    map[string]snapshot.Entity
	lastAct  uint64
}

func newBrain(every, seed uint64) *brain {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	if every == 0 {
		every = 100
	}
	return &brain{
		every: every,
		rng:   rand.New(rand.NewPCG(seed, seed>>1|1)),
		ships: map[string]snapshot.Entity{},
	}
}

func (b *brain) handle(msg []byte, logger *slog.Logger) []protocol.ActionMsg {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return nil
	}
	switch base.Type {
	case protocol.TypeWelcome:
		w, ok := decode[protocol.WelcomeMsg](msg)
		if !ok {
			return nil
		}
		b.playerID = w.PlayerID
		if w.Level != nil {
			b.track(w.Level.Entities, nil, true)
			b.lastAct = w.Level.Tick
		}
		logger.Info("WELCOME", "player_id", w.PlayerID, "tick_rate", w.Params.TickRateHz, "ships", len(b.ships))
	case protocol.TypeDiff:
		d, ok := decode[protocol.DiffMsg](msg)
		if !ok {
			return nil
		}
		b.track(append(d.Added, d.Updated...), d.Removed, d.Full)
		if d.Tick >= b.lastAct+b.every {
			b.lastAct = d.Tick
			return b.act()
		}
	case protocol.TypeResult:
		if r, ok := decode[protocol.ResultMsg](msg); ok {
			logResult(logger, r)
		}
	case protocol.TypeError:
		if e, ok := decode[protocol.ErrorMsg](msg); ok {
			logger.Error("ERROR", "code", e.Code, "message", e.Message)
		}
	}
	return nil
}

func (b *brain) track(upserts []snapshot.Entity, removed []string, full bool) {
	if full {
		b.ships = map[string]snapshot.Entity{}
	}
	for _, id := range removed {
		delete(b.ships, id)
	}
	for _, e := range upserts {
		if e.EntityType == snapshot.TypeShip && e.Owner == b.playerID && b.playerID != "" {
			b.ships[e.ID] = e
		}
	}
}

// act asks for a new ship (rejected while metal is short) and sends the
// whole fleet to one random point of its system.
func (b *brain) act() []protocol.ActionMsg {
	out := []protocol.ActionMsg{b.action(level.ActionCreateShip, nil)}
	if len(b.ships) == 0 {
		return out
	}
	ids := make([]string, 0, len(b.ships))
	for id := range b.ships {
		ids = append(ids, id)
	}
	target := geom.V3((b.rng.Float64()*2-1)*wander, 0, (b.rng.Float64()*2-1)*wander)
	out = append(out, b.action(level.ActionMove, level.Move{Entities: ids, Target: target}))
	return out
}

func (b *brain) action(kind string, payload any) protocol.ActionMsg {
	b.seq++
	m := protocol.ActionMsg{
		Type:            protocol.TypeAction,
		ProtocolVersion: protocol.Version,
		Seq:             b.seq,
		Kind:            kind,
	}
	if payload != nil {
		m.Payload, _ = json.Marshal(payload)
	}
	return m
}

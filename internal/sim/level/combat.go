package level

import (
	"fmt"
	"math"

	"github.com/dr-vortex/annihilation/internal/persistence/snapshot"
	"github.com/dr-vortex/annihilation/internal/sim/combat"
	"github.com/dr-vortex/annihilation/internal/sim/geom"
)

// Fire launches a projectile from a hardpoint at target. It returns false
// when the hardpoint is reloading or the target cannot be shot, including a
// target in another system. Damage lands ceil(distance/projectile_speed)
// ticks later.
func (l *Level) Fire(hardpointID, targetID string) (bool, error) {
	h, err := Lookup[*Hardpoint](l, hardpointID)
	if err != nil {
		return false, err
	}
	target, ok := l.nodes[targetID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotFound, targetID)
	}
	if !target.node().Targetable || l.victim(target) == nil {
		return false, nil
	}
	if target.node().SystemID != h.SystemID {
		return false, nil
	}
	if err := h.Hardpoint.Fire(); err != nil {
		return false, nil
	}

	from := l.mustAbs(h.ID)
	to := l.mustAbs(targetID)
	due := l.tick + combat.TravelTicks(geom.Distance(from, to), h.Stats.ProjectileSpeed)
	l.emit(EventProjectileFire, h.ID, map[string]any{
		"target":     targetID,
		"projectile": h.Stats.ProjectileID,
		"from":       from.Array(),
		"to":         to.Array(),
		"due":        due,
	})
	l.queue.Push(combat.Resolution{
		Due:        due,
		Firer:      h.ID,
		Target:     targetID,
		Damage:     h.Stats.Damage,
		CritChance: h.Stats.CritChance,
		CritFactor: h.Stats.CritFactor,
	})
	return true, nil
}

// InRange reports whether target is within the hardpoint's range. Nothing
// in another system is in range.
func (l *Level) InRange(h *Hardpoint, targetID string) bool {
	if t, ok := l.nodes[targetID]; !ok || t.node().SystemID != h.SystemID {
		return false
	}
	if h.Stats.Range <= 0 {
		return true
	}
	return geom.Distance(l.mustAbs(h.ID), l.mustAbs(targetID)) <= h.Stats.Range
}

// victim is the node that takes damage for a hit on e: a ship for the ship
// or any of its hardpoints, a station part for the part or its mounts.
func (l *Level) victim(e Entity) Entity {
	switch v := e.(type) {
	case *Ship, *StationPart:
		return v
	case *Hardpoint:
		if p, ok := l.nodes[v.ParentID]; ok {
			return l.victim(p)
		}
	}
	return nil
}

// PendingResolutions returns the in-flight projectiles in due order.
func (l *Level) PendingResolutions() []combat.Resolution { return l.queue.Pending() }

func (l *Level) resolveCombat() {
	for _, r := range l.queue.PopDue(l.tick) {
		if err := l.resolve(r); err != nil {
			l.log.Warn("combat resolution failed", "firer", r.Firer, "target", r.Target, "err", err)
		}
	}
}

func (l *Level) resolve(r combat.Resolution) error {
	// Shots popped with the batch that killed their firer escape Queue.Cancel.
	if _, ok := l.nodes[r.Firer]; !ok {
		return nil
	}
	target, ok := l.nodes[r.Target]
	if !ok {
		return nil
	}
	v := l.victim(target)
	if v == nil {
		return nil
	}
	dmg, crit := combat.Roll(r, l.rng.Float64())
	l.emit(EventProjectileHit, r.Firer, map[string]any{
		"target": r.Target,
		"victim": v.node().ID,
		"damage": dmg,
		"crit":   crit,
	})

	var hp *float64
	switch x := v.(type) {
	case *Ship:
		hp = &x.HP
	case *StationPart:
		hp = &x.HP
	}
	*hp = math.Max(0, *hp-dmg)
	if *hp > 0 {
		return nil
	}
	return l.kill(v, r.Firer)
}

func (l *Level) kill(v Entity, firerID string) error {
	id := v.node().ID
	l.emit(EventEntityDeath, id, map[string]any{"type": v.Kind().String(), "killer": firerID})

	if s, ok := v.(*Ship); ok {
		if err := l.reward(firerID, s.Recipe, s.XPValue); err != nil {
			l.log.Warn("reward failed", "ship", id, "err", err)
		}
	}
	return l.Remove(id)
}

// reward routes a kill's spoils to whoever owns the firing hardpoint: a
// player (items and xp) or a celestial body (items into its reward storage).
func (l *Level) reward(firerID string, items map[string]int, xp int) error {
	h, ok := l.nodes[firerID].(*Hardpoint)
	if !ok {
		return nil
	}
	owner := l.nodes[h.OwnerID]
	if s, ok := owner.(*Ship); ok {
		owner = l.nodes[s.OwnerID]
	}
	switch o := owner.(type) {
	case *Player:
		if err := o.Storage.AddItems(items); err != nil {
			return err
		}
		l.addXP(o, xp)
	case *StationPart:
		if st, ok := l.nodes[o.StationID].(*Station); ok {
			return st.Rewards.AddItems(items)
		}
		return o.Rewards.AddItems(items)
	case *Station:
		return o.Rewards.AddItems(items)
	case *Planet:
		return o.Rewards.AddItems(items)
	case *Star:
		return o.Rewards.AddItems(items)
	}
	return nil
}

// XPLevel is the player level reached with xp experience.
func (l *Level) XPLevel(xp int) int {
	if xp <= 0 {
		return 0
	}
	return int(math.Floor(math.Sqrt(float64(xp) / l.tune.XPPerLevel)))
}

func (l *Level) addXP(p *Player, xp int) {
	if xp <= 0 {
		return
	}
	before := l.XPLevel(p.XP)
	p.XP += xp
	after := l.XPLevel(p.XP)
	if after > before {
		p.XPPoints += after - before
		l.emit(EventPlayerLevelUp, p.ID, map[string]any{"level": after})
	}
}

func pendingRecords(rs []combat.Resolution) []snapshot.Pending {
	out := make([]snapshot.Pending, 0, len(rs))
	for _, r := range rs {
		out = append(out, snapshot.Pending(r))
	}
	return out
}

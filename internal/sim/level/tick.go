package level

import (
	"math"
	"time"

	"github.com/dr-vortex/annihilation/internal/sim/geom"
)

const perfSamples = 60

type perfCounter struct {
	last    time.Time
	samples [perfSamples]time.Duration
	n, next int
}

func (p *perfCounter) sample(now time.Time) {
	if !p.last.IsZero() {
		p.samples[p.next] = now.Sub(p.last)
		p.next = (p.next + 1) % perfSamples
		if p.n < perfSamples {
			p.n++
		}
	}
	p.last = now
}

func (p *perfCounter) tps() float64 {
	var total time.Duration
	for i := 0; i < p.n; i++ {
		total += p.samples[i]
	}
	if total <= 0 {
		return 0
	}
	return float64(p.n) / total.Seconds()
}

// TPS is the measured tick rate over the last 60 ticks.
func (l *Level) TPS() float64 { return l.perf.tps() }

// Step advances the level one tick: sample the performance counter, emit
// "update", update every node in id order, then land due projectiles.
func (l *Level) Step() {
	l.tick++
	l.perf.sample(time.Now())
	l.emit(EventUpdate, l.ID, map[string]any{"tps": l.perf.tps()})

	for _, id := range l.IDs() {
		e, ok := l.nodes[id]
		if !ok {
			continue
		}
		switch v := e.(type) {
		case *Hardpoint:
			v.Hardpoint.Tick()
		case *Ship:
			if v.Path != nil {
				l.followPath(v)
			}
		}
	}

	l.resolveCombat()
}

func (l *Level) followPath(s *Ship) {
	pos := l.mustAbs(s.ID)
	budget := s.Speed
	for budget > 0 && !s.Path.Done() {
		wp, _ := s.Path.Peek()
		d := geom.Distance(pos, wp.Position)
		if d <= budget {
			pos = wp.Position
			budget -= d
			s.Path.Next()
			if wp.Heading != (geom.Vec3{}) {
				s.Rotation = headingRotation(wp.Heading)
			}
			continue
		}
		pos = pos.Add(wp.Position.Sub(pos).Scale(budget / d))
		budget = 0
	}
	if err := l.SetAbsolutePosition(s.ID, pos); err != nil {
		l.log.Warn("path step failed", "ship", s.ID, "err", err)
		s.Path = nil
		return
	}
	if s.Path.Done() {
		s.Path = nil
		l.emit(EventFollowPathEnd, s.ID, map[string]any{"position": pos.Array()})
	}
}

// headingRotation converts a direction into euler angles (pitch, yaw, 0).
func headingRotation(h geom.Vec3) geom.Vec3 {
	yaw := math.Atan2(h.X, h.Z)
	pitch := -math.Asin(math.Max(-1, math.Min(1, h.Y)))
	return geom.V3(pitch, yaw, 0)
}

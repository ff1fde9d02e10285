package combat

import (
	"container/heap"
	"errors"
	"math"

	"github.com/dr-vortex/annihilation/internal/sim/catalogs"
)

var ErrReloading = errors.New("hardpoint reloading")

// Hardpoint is the weapon state of one mount. Reload counts remaining ticks;
// the weapon is idle at 0.
type Hardpoint struct {
	Type   string
	Reload int
	Stats  catalogs.HardpointDef
}

func NewHardpoint(def catalogs.HardpointDef) Hardpoint {
	return Hardpoint{Type: def.ID, Stats: def}
}

func (h *Hardpoint) Ready() bool { return h.Reload <= 0 }

// Tick advances the reload timer by one tick.
func (h *Hardpoint) Tick() {
	if h.Reload > 0 {
		h.Reload--
	}
}

// Fire starts a reload cycle. It fails while the previous one is running.
func (h *Hardpoint) Fire() error {
	if !h.Ready() {
		return ErrReloading
	}
	h.Reload = h.Stats.Reload
	return nil
}

// TravelTicks is the projectile flight time over distance, rounded up to
// whole ticks and never less than one.
func TravelTicks(distance, speed float64) uint64 {
	if speed <= 0 {
		return 1
	}
	n := math.Ceil(distance/speed - 1e-9)
	if n < 1 {
		return 1
	}
	return uint64(n)
}

// Resolution is a pending projectile impact.
type Resolution struct {
	Due        uint64
	Seq        uint64
	Firer      string
	Target     string
	Damage     float64
	CritChance float64
	CritFactor float64
}

// Queue orders pending resolutions by due tick, then by push order.
type Queue struct {
	h   resHeap
	seq uint64
}

func (q *Queue) Len() int { return len(q.h) }

func (q *Queue) Push(r Resolution) Resolution {
	q.seq++
	r.Seq = q.seq
	heap.Push(&q.h, r)
	return r
}

// PopDue removes and returns every entry due at or before tick.
func (q *Queue) PopDue(tick uint64) []Resolution {
	var out []Resolution
	for len(q.h) > 0 && q.h[0].Due <= tick {
		out = append(out, heap.Pop(&q.h).(Resolution))
	}
	return out
}

// Cancel drops entries fired by or aimed at id.
func (q *Queue) Cancel(id string) int {
	kept := q.h[:0]
	n := 0
	for _, r := range q.h {
		if r.Firer == id || r.Target == id {
			n++
			continue
		}
		kept = append(kept, r)
	}
	q.h = kept
	heap.Init(&q.h)
	return n
}

// Pending returns a copy of the queue in due order.
func (q *Queue) Pending() []Resolution {
	c := append(resHeap(nil), q.h...)
	out := make([]Resolution, 0, len(c))
	for len(c) > 0 {
		out = append(out, heap.Pop(&c).(Resolution))
	}
	return out
}

// Restore replaces the queue contents; seq continues after the largest seen.
func (q *Queue) Restore(rs []Resolution) {
	q.h = append(resHeap(nil), rs...)
	q.seq = 0
	for _, r := range rs {
		if r.Seq > q.seq {
			q.seq = r.Seq
		}
	}
	heap.Init(&q.h)
}

type resHeap []Resolution

func (h resHeap) Len() int { return len(h) }
func (h resHeap) Less(i, j int) bool {
	if h[i].Due != h[j].Due {
		return h[i].Due < h[j].Due
	}
	return h[i].Seq < h[j].Seq
}
func (h resHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *resHeap) Push(x any)   { *h = append(*h, x.(Resolution)) }
func (h *resHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Roll applies a crit roll to base damage. roll is uniform in [0,1).
func Roll(r Resolution, roll float64) (damage float64, crit bool) {
	if roll < r.CritChance {
		return r.Damage * r.CritFactor, true
	}
	return r.Damage, false
}

package path

import (
	"math"
	"sort"

	"github.com/dr-vortex/annihilation/internal/sim/geom"
)

// MaxDepth bounds how many nested detours a single Find may build.
const MaxDepth = 6

const tieEps = 1e-9

// Obstacle is a vertical cylinder on the XZ plane. Radius is the exclusion
// radius, margin already applied.
type Obstacle struct {
	ID     string
	Center geom.Vec3
	Radius float64
}

type Context interface {
	Obstacles() []Obstacle
}

// Static is a fixed obstacle set.
type Static []Obstacle

func (s Static) Obstacles() []Obstacle { return s }

type Waypoint struct {
	Position geom.Vec3 `json:"position"`
	// Heading is the unit vector toward the next waypoint. The last waypoint
	// repeats the previous heading.
	Heading geom.Vec3 `json:"heading"`
}

// Path is consumed front to back with Next and cannot be rewound.
type Path struct {
	points []Waypoint
	cursor int
}

// Find computes a route from start to end around the obstacles of ctx. The
// result is empty when start or end lies inside an obstacle or no route
// could be built within MaxDepth detours.
func Find(start, end geom.Vec3, ctx Context) *Path {
	var obs []Obstacle
	if ctx != nil {
		obs = ctx.Obstacles()
	}
	for _, o := range obs {
		if inside(start, o) || inside(end, o) {
			return &Path{}
		}
	}
	pts := route(start, end, obs, MaxDepth)
	if pts == nil {
		return &Path{}
	}
	return &Path{points: withHeadings(pts)}
}

// Restore rebuilds a path from saved waypoints and cursor.
func Restore(ws []Waypoint, cursor int) *Path {
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(ws) {
		cursor = len(ws)
	}
	return &Path{points: append([]Waypoint(nil), ws...), cursor: cursor}
}

func (p *Path) Len() int { return len(p.points) }

func (p *Path) Empty() bool { return p == nil || len(p.points) == 0 }

// Done reports whether every waypoint has been consumed.
func (p *Path) Done() bool { return p == nil || p.cursor >= len(p.points) }

func (p *Path) Cursor() int { return p.cursor }

func (p *Path) Next() (Waypoint, bool) {
	if p.Done() {
		return Waypoint{}, false
	}
	w := p.points[p.cursor]
	p.cursor++
	return w, true
}

func (p *Path) Peek() (Waypoint, bool) {
	if p.Done() {
		return Waypoint{}, false
	}
	return p.points[p.cursor], true
}

// Waypoints returns a copy of the full route, consumed or not.
func (p *Path) Waypoints() []Waypoint {
	if p == nil {
		return nil
	}
	return append([]Waypoint(nil), p.points...)
}

// Length is the total route length.
func (p *Path) Length() float64 {
	var l float64
	for i := 1; i < len(p.points); i++ {
		l += geom.Distance(p.points[i-1].Position, p.points[i].Position)
	}
	return l
}

func withHeadings(pts []geom.Vec3) []Waypoint {
	out := make([]Waypoint, len(pts))
	for i, pt := range pts {
		out[i].Position = pt
		if i+1 < len(pts) {
			out[i].Heading = pts[i+1].Sub(pt).Normalize()
		} else if i > 0 {
			out[i].Heading = out[i-1].Heading
		}
	}
	return out
}

// plane coordinates: p = x, q = -z, so counter-clockwise in (p,q) is
// counter-clockwise viewed from +Y.
func flat(v geom.Vec3) (float64, float64) { return v.X, -v.Z }

func dist2D(a, b geom.Vec3) float64 {
	ap, aq := flat(a)
	bp, bq := flat(b)
	return math.Hypot(ap-bp, aq-bq)
}

func inside(v geom.Vec3, o Obstacle) bool {
	return dist2D(v, o.Center) < o.Radius*(1-tieEps)
}

// entry returns where along a->b (0..1) the segment enters o, or false if it
// stays clear.
func entry(a, b geom.Vec3, o Obstacle) (float64, bool) {
	ap, aq := flat(a)
	bp, bq := flat(b)
	cp, cq := flat(o.Center)
	dp, dq := bp-ap, bq-aq
	l2 := dp*dp + dq*dq
	if l2 == 0 {
		return 0, false
	}
	t := ((cp-ap)*dp + (cq-aq)*dq) / l2
	t = math.Max(0, math.Min(1, t))
	xp, xq := ap+dp*t-cp, aq+dq*t-cq
	d := math.Hypot(xp, xq)
	r := o.Radius * (1 - tieEps)
	if d >= r {
		return 0, false
	}
	back := math.Sqrt(r*r-d*d) / math.Sqrt(l2)
	return math.Max(0, t-back), true
}

func route(a, b geom.Vec3, obs []Obstacle, depth int) []geom.Vec3 {
	hit := -1
	best := math.Inf(1)
	for i, o := range obs {
		if t, ok := entry(a, b, o); ok && t < best {
			best, hit = t, i
		}
	}
	if hit < 0 {
		return []geom.Vec3{a, b}
	}
	if depth == 0 {
		return nil
	}
	o := obs[hit]
	if inside(a, o) || inside(b, o) {
		return nil
	}

	type candidate struct {
		corners []geom.Vec3
		length  float64
		cw      bool
	}
	var cands []candidate
	for _, s := range []float64{-1, 1} {
		cs := detour(a, b, o, s)
		pts := append(append([]geom.Vec3{a}, cs...), b)
		var l float64
		for i := 1; i < len(pts); i++ {
			l += geom.Distance(pts[i-1], pts[i])
		}
		cands = append(cands, candidate{corners: cs, length: l, cw: s < 0})
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if math.Abs(cands[i].length-cands[j].length) <= tieEps {
			return cands[i].cw && !cands[j].cw
		}
		return cands[i].length < cands[j].length
	})

	for _, c := range cands {
		legs := append(append([]geom.Vec3{a}, c.corners...), b)
		out := []geom.Vec3{a}
		ok := true
		for i := 1; i < len(legs); i++ {
			sub := route(legs[i-1], legs[i], obs, depth-1)
			if sub == nil {
				ok = false
				break
			}
			out = append(out, sub[1:]...)
		}
		if ok {
			return out
		}
	}
	return nil
}

// detour returns the corner points of a polyline from a to b wrapping o on
// side s (-1 clockwise, +1 counter-clockwise). Each leg is tangent to the
// exclusion circle; the sweep is split so no corner lies farther than 2r
// from the center.
func detour(a, b geom.Vec3, o Obstacle, s float64) []geom.Vec3 {
	cp, cq := flat(o.Center)
	ap, aq := flat(a)
	bp, bq := flat(b)
	r := o.Radius

	angA := math.Atan2(aq-cq, ap-cp)
	angB := math.Atan2(bq-cq, bp-cp)
	betaA := math.Acos(math.Min(1, r/math.Hypot(ap-cp, aq-cq)))
	betaB := math.Acos(math.Min(1, r/math.Hypot(bp-cp, bq-cq)))

	tA := angA + s*betaA
	tB := angB - s*betaB
	sweep := math.Mod(s*(tB-tA), 2*math.Pi)
	if sweep < 0 {
		sweep += 2 * math.Pi
	}

	n := int(math.Ceil(sweep / (2 * math.Pi / 3)))
	if n < 1 {
		n = 1
	}
	step := sweep / float64(n)
	reach := r / math.Cos(step/2)

	out := make([]geom.Vec3, n)
	for k := 0; k < n; k++ {
		ang := tA + s*step*(float64(k)+0.5)
		p := cp + reach*math.Cos(ang)
		q := cq + reach*math.Sin(ang)
		y := a.Y + (b.Y-a.Y)*float64(k+1)/float64(n+1)
		out[k] = geom.Vec3{X: p, Y: y, Z: -q}
	}
	return out
}

package geom

import (
	"encoding/json"
	"fmt"
	"math"
)

// Vec3 is a position or direction in level space. It encodes as [x,y,z].
type Vec3 struct {
	X, Y, Z float64
}

func V3(x, y, z float64) Vec3 { return Vec3{X: x, Y: y, Z: z} }

func (a Vec3) Add(b Vec3) Vec3      { return Vec3{a.X + b.X, a.Y + b.Y, a.Z + b.Z} }
func (a Vec3) Sub(b Vec3) Vec3      { return Vec3{a.X - b.X, a.Y - b.Y, a.Z - b.Z} }
func (a Vec3) Scale(s float64) Vec3 { return Vec3{a.X * s, a.Y * s, a.Z * s} }
func (a Vec3) Dot(b Vec3) float64   { return a.X*b.X + a.Y*b.Y + a.Z*b.Z }
func (a Vec3) Len() float64         { return math.Sqrt(a.Dot(a)) }

func (a Vec3) Normalize() Vec3 {
	l := a.Len()
	if l == 0 {
		return Vec3{}
	}
	return a.Scale(1 / l)
}

func Distance(a, b Vec3) float64 { return a.Sub(b).Len() }

// Lerp interpolates between a and b; t is not clamped.
func Lerp(a, b Vec3, t float64) Vec3 { return a.Add(b.Sub(a).Scale(t)) }

// NearlyEqual compares component-wise within eps.
func NearlyEqual(a, b Vec3, eps float64) bool {
	return math.Abs(a.X-b.X) <= eps && math.Abs(a.Y-b.Y) <= eps && math.Abs(a.Z-b.Z) <= eps
}

func (a Vec3) Array() [3]float64 { return [3]float64{a.X, a.Y, a.Z} }

func FromArray(v [3]float64) Vec3 { return Vec3{v[0], v[1], v[2]} }

func (a Vec3) MarshalJSON() ([]byte, error) { return json.Marshal(a.Array()) }

func (a *Vec3) UnmarshalJSON(b []byte) error {
	var arr []float64
	if err := json.Unmarshal(b, &arr); err != nil {
		return err
	}
	if len(arr) != 3 {
		return fmt.Errorf("vec3: want 3 components, got %d", len(arr))
	}
	*a = Vec3{arr[0], arr[1], arr[2]}
	return nil
}

func (a Vec3) String() string { return fmt.Sprintf("(%.3f, %.3f, %.3f)", a.X, a.Y, a.Z) }

// Vec2 positions systems on the galaxy plane. It encodes as [x,y].
type Vec2 struct {
	X, Y float64
}

func Distance2(a, b Vec2) float64 { return math.Hypot(a.X-b.X, a.Y-b.Y) }

func (a Vec2) MarshalJSON() ([]byte, error) { return json.Marshal([2]float64{a.X, a.Y}) }

func (a *Vec2) UnmarshalJSON(b []byte) error {
	var arr []float64
	if err := json.Unmarshal(b, &arr); err != nil {
		return err
	}
	if len(arr) != 2 {
		return fmt.Errorf("vec2: want 2 components, got %d", len(arr))
	}
	*a = Vec2{arr[0], arr[1]}
	return nil
}

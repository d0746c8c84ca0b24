package geometry

import (
	"math"

	"github.com/menta2k/image-tiler/pkg/types"
)

// Translate adds (dx, dy) to every corner of p.
//
// When the result is finite and not all zero, every coordinate is clamped to
// [0, max coordinate]. This floors small negative residues left by boundary
// clipping; it is not a general clipping algorithm. ok is false when a
// negative value survives the clamp, which means the polygon did not fit the
// window it was assigned to. Callers log that case and keep going.
func Translate(p types.Polygon, dx, dy float64) (out types.Polygon, ok bool) {
	out = make(types.Polygon, len(p))
	anyNonZero := false
	maxV := math.Inf(-1)
	for i, pt := range p {
		out[i] = types.Point{X: pt.X + dx, Y: pt.Y + dy}
		if out[i].X != 0 || out[i].Y != 0 {
			anyNonZero = true
		}
		maxV = math.Max(maxV, math.Max(out[i].X, out[i].Y))
	}

	if anyNonZero && IsFinite(out) {
		for i := range out {
			out[i].X = math.Min(math.Max(out[i].X, 0), maxV)
			out[i].Y = math.Min(math.Max(out[i].Y, 0), maxV)
		}
	}

	for _, pt := range out {
		if pt.X < 0 || pt.Y < 0 {
			return out, false
		}
	}
	return out, true
}

// ToWindow maps p from image space into the local space of w
func ToWindow(p types.Polygon, w types.Window) (types.Polygon, bool) {
	return Translate(p, -float64(w.XStart), -float64(w.YStart))
}

// FromWindow maps p from the local space of w back into image space
func FromWindow(p types.Polygon, w types.Window) (types.Polygon, bool) {
	return Translate(p, float64(w.XStart), float64(w.YStart))
}

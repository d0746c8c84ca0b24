// Package geometry implements the polygon math used to decide which
// annotations belong to which window.
//
// Windows are axis-aligned boxes, annotations are arbitrary quadrilaterals.
// The overlap measure is intersection-over-foreground (IoF): the area of the
// polygon that falls inside the box divided by the polygon's own area. It is
// asymmetric, unlike IoU.
//
// Exact clipping sits behind the Clipper interface so the backing
// implementation can be swapped without touching the rest of the pipeline.
package geometry

import (
	"math"

	"github.com/menta2k/image-tiler/pkg/types"
)

// Epsilon is the floor applied to polygon areas before dividing by them
const Epsilon = 1e-6

// Box is an axis-aligned rectangle in float pixel space
type Box struct {
	MinX, MinY, MaxX, MaxY float64
}

// BoxFromWindow converts a window to a Box
func BoxFromWindow(w types.Window) Box {
	return Box{
		MinX: float64(w.XStart),
		MinY: float64(w.YStart),
		MaxX: float64(w.XStop),
		MaxY: float64(w.YStop),
	}
}

// Width of the box, never negative
func (b Box) Width() float64 { return math.Max(0, b.MaxX-b.MinX) }

// Height of the box, never negative
func (b Box) Height() float64 { return math.Max(0, b.MaxY-b.MinY) }

// Area of the box
func (b Box) Area() float64 { return b.Width() * b.Height() }

// Intersect returns the overlapping box. An empty overlap has zero area.
func (b Box) Intersect(o Box) Box {
	return Box{
		MinX: math.Max(b.MinX, o.MinX),
		MinY: math.Max(b.MinY, o.MinY),
		MaxX: math.Min(b.MaxX, o.MaxX),
		MaxY: math.Min(b.MaxY, o.MaxY),
	}
}

// Contains reports whether o lies entirely inside b
func (b Box) Contains(o Box) bool {
	return o.MinX >= b.MinX && o.MinY >= b.MinY && o.MaxX <= b.MaxX && o.MaxY <= b.MaxY
}

// HorizontalBounds returns the axis-aligned bounding box of a polygon
func HorizontalBounds(p types.Polygon) Box {
	if len(p) == 0 {
		return Box{}
	}
	b := Box{MinX: p[0].X, MinY: p[0].Y, MaxX: p[0].X, MaxY: p[0].Y}
	for _, pt := range p[1:] {
		b.MinX = math.Min(b.MinX, pt.X)
		b.MinY = math.Min(b.MinY, pt.Y)
		b.MaxX = math.Max(b.MaxX, pt.X)
		b.MaxY = math.Max(b.MaxY, pt.Y)
	}
	return b
}

// Area returns the absolute shoelace area of a simple polygon
func Area(p types.Polygon) float64 {
	if len(p) < 3 {
		return 0
	}
	var sum float64
	j := len(p) - 1
	for i := range p {
		sum += (p[j].X + p[i].X) * (p[j].Y - p[i].Y)
		j = i
	}
	return math.Abs(sum) / 2
}

// IsFinite reports whether every coordinate of p is a finite number
func IsFinite(p types.Polygon) bool {
	for _, pt := range p {
		if math.IsNaN(pt.X) || math.IsInf(pt.X, 0) || math.IsNaN(pt.Y) || math.IsInf(pt.Y, 0) {
			return false
		}
	}
	return true
}

package geometry

import (
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/planar"

	"github.com/menta2k/image-tiler/pkg/types"
)

// Clipper measures how much of a polygon lies inside an axis-aligned box
type Clipper interface {
	// IntersectionArea returns the area of p that falls inside b
	IntersectionArea(p types.Polygon, b Box) float64
	// Name identifies the implementation in logs and config
	Name() string
}

// Kernel names accepted by NewClipper
const (
	KernelOrb = "orb"
	KernelBox = "box"
)

// NewClipper returns the clipper registered under name. An empty name
// selects the orb-backed clipper.
func NewClipper(name string) (Clipper, error) {
	switch strings.ToLower(name) {
	case "", KernelOrb:
		return OrbClipper{}, nil
	case KernelBox:
		return BoxClipper{}, nil
	default:
		return nil, types.NewConfigError("split.kernel", "unknown geometry kernel %q (use %s or %s)", name, KernelOrb, KernelBox)
	}
}

// OrbClipper clips with github.com/paulmach/orb
type OrbClipper struct{}

// Name implements Clipper
func (OrbClipper) Name() string { return KernelOrb }

// IntersectionArea implements Clipper
func (OrbClipper) IntersectionArea(p types.Polygon, b Box) float64 {
	if len(p) < 3 {
		return 0
	}
	ring := make(orb.Ring, 0, len(p)+1)
	for _, pt := range p {
		ring = append(ring, orb.Point{pt.X, pt.Y})
	}
	if !ring.Closed() {
		ring = append(ring, ring[0])
	}
	bound := orb.Bound{Min: orb.Point{b.MinX, b.MinY}, Max: orb.Point{b.MaxX, b.MaxY}}
	clipped := clip.Polygon(bound, orb.Polygon{ring})
	if len(clipped) == 0 || len(clipped[0]) < 4 {
		return 0
	}
	return math.Abs(planar.Area(clipped))
}

// BoxClipper clips with Sutherland-Hodgman against the four box edges.
// The clip region is convex, so the result is exact for any simple polygon.
type BoxClipper struct{}

// Name implements Clipper
func (BoxClipper) Name() string { return KernelBox }

// IntersectionArea implements Clipper
func (BoxClipper) IntersectionArea(p types.Polygon, b Box) float64 {
	return Area(ClipToBox(p, b))
}

// ClipToBox returns the part of p inside b
func ClipToBox(p types.Polygon, b Box) types.Polygon {
	out := p
	out = clipEdge(out, func(pt types.Point) bool { return pt.X >= b.MinX }, func(a, c types.Point) types.Point {
		return lerpX(a, c, b.MinX)
	})
	out = clipEdge(out, func(pt types.Point) bool { return pt.X <= b.MaxX }, func(a, c types.Point) types.Point {
		return lerpX(a, c, b.MaxX)
	})
	out = clipEdge(out, func(pt types.Point) bool { return pt.Y >= b.MinY }, func(a, c types.Point) types.Point {
		return lerpY(a, c, b.MinY)
	})
	out = clipEdge(out, func(pt types.Point) bool { return pt.Y <= b.MaxY }, func(a, c types.Point) types.Point {
		return lerpY(a, c, b.MaxY)
	})
	return out
}

func clipEdge(in types.Polygon, inside func(types.Point) bool, cross func(a, c types.Point) types.Point) types.Polygon {
	if len(in) == 0 {
		return nil
	}
	out := make(types.Polygon, 0, len(in)+2)
	prev := in[len(in)-1]
	for _, cur := range in {
		switch {
		case inside(cur) && inside(prev):
			out = append(out, cur)
		case inside(cur):
			out = append(out, cross(prev, cur), cur)
		case inside(prev):
			out = append(out, cross(prev, cur))
		}
		prev = cur
	}
	return out
}

func lerpX(a, c types.Point, x float64) types.Point {
	t := (x - a.X) / (c.X - a.X)
	return types.Point{X: x, Y: a.Y + t*(c.Y-a.Y)}
}

func lerpY(a, c types.Point, y float64) types.Point {
	t := (y - a.Y) / (c.Y - a.Y)
	return types.Point{X: a.X + t*(c.X-a.X), Y: y}
}

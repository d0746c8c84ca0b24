package geometry

import (
	"math"

	"github.com/menta2k/image-tiler/pkg/types"
)

// Kernel computes IoF matrices with a given Clipper
type Kernel struct {
	clipper Clipper
}

// NewKernel returns a kernel backed by the named clipper
func NewKernel(name string) (*Kernel, error) {
	c, err := NewClipper(name)
	if err != nil {
		return nil, err
	}
	return &Kernel{clipper: c}, nil
}

// NewKernelWithClipper returns a kernel backed by c
func NewKernelWithClipper(c Clipper) *Kernel {
	return &Kernel{clipper: c}
}

// Clipper returns the clipper behind the kernel
func (k *Kernel) Clipper() Clipper { return k.clipper }

// IoF returns m[i][j] = area(polys[i] ∩ boxes[j]) / area(polys[i]).
//
// Pairs whose bounding boxes do not overlap are rejected before any exact
// clipping. A polygon whose bounding box lies inside a box scores exactly 1.
// Polygon areas are floored at Epsilon, so degenerate polygons score near zero
// instead of failing.
func (k *Kernel) IoF(polys []types.Polygon, boxes []Box) [][]float64 {
	out := make([][]float64, len(polys))
	if len(polys) == 0 || len(boxes) == 0 {
		for i := range out {
			out[i] = make([]float64, len(boxes))
		}
		return out
	}

	for i, p := range polys {
		row := make([]float64, len(boxes))
		out[i] = row

		hbb := HorizontalBounds(p)
		raw := Area(p)
		area := math.Max(raw, Epsilon)
		for j, b := range boxes {
			if hbb.Intersect(b).Area() <= 0 {
				continue
			}
			if b.Contains(hbb) && raw > Epsilon {
				row[j] = 1
				continue
			}
			row[j] = k.clipper.IntersectionArea(p, b) / area
		}
	}
	return out
}

// IoFWindows is IoF against window rectangles
func (k *Kernel) IoFWindows(polys []types.Polygon, windows []types.Window) [][]float64 {
	boxes := make([]Box, len(windows))
	for i, w := range windows {
		boxes[i] = BoxFromWindow(w)
	}
	return k.IoF(polys, boxes)
}

// Package mask blanks out ignore regions of an image before it is cut into patches.
//
// The mask starts fully kept. Ignore polygons are painted out first, then the
// polygons of valid annotations are painted back in, so an object that sits
// inside or across an ignore region stays visible. A pixel is ignored when at
// least half of it is covered and restored when any part of it is covered.
package mask

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/vector"

	"github.com/menta2k/image-tiler/pkg/geometry"
	"github.com/menta2k/image-tiler/pkg/types"
)

// Rasterizer alpha at which a pixel counts as covered
const (
	IgnoreCoverage  uint8 = 0x80
	RestoreCoverage uint8 = 1
)

// Mask is a per-pixel keep flag, row-major
type Mask struct {
	Width  int
	Height int
	Pix    []uint8
}

// New returns a mask that keeps every pixel
func New(width, height int) *Mask {
	pix := make([]uint8, width*height)
	for i := range pix {
		pix[i] = 1
	}
	return &Mask{Width: width, Height: height, Pix: pix}
}

// Build paints ignore polygons out, then valid polygons back in
func Build(width, height int, ignore, valid []types.Polygon) *Mask {
	m := New(width, height)
	for _, p := range ignore {
		m.Paint(p, 0, IgnoreCoverage)
	}
	for _, p := range valid {
		m.Paint(p, 1, RestoreCoverage)
	}
	return m
}

// Kept reports whether the pixel at (x, y) survives masking.
// Pixels outside the mask are reported as kept.
func (m *Mask) Kept(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return true
	}
	return m.Pix[y*m.Width+x] != 0
}

// Dropped counts masked-out pixels
func (m *Mask) Dropped() int {
	n := 0
	for _, v := range m.Pix {
		if v == 0 {
			n++
		}
	}
	return n
}

// Paint sets every pixel whose coverage by p reaches threshold to v.
// Degenerate or non-finite polygons paint nothing.
func (m *Mask) Paint(p types.Polygon, v, threshold uint8) {
	if threshold == 0 {
		threshold = 1
	}
	if len(p) < 3 || !geometry.IsFinite(p) || m.Width == 0 || m.Height == 0 {
		return
	}

	frame := geometry.Box{MaxX: float64(m.Width), MaxY: float64(m.Height)}
	p = geometry.ClipToBox(p, frame)
	if len(p) < 3 || geometry.Area(p) == 0 {
		return
	}

	// rasterize into a scratch buffer the size of the polygon's bounds
	b := geometry.HorizontalBounds(p)
	x0 := int(math.Floor(b.MinX))
	y0 := int(math.Floor(b.MinY))
	x1 := min(int(math.Ceil(b.MaxX)), m.Width)
	y1 := min(int(math.Ceil(b.MaxY)), m.Height)
	w, h := x1-x0, y1-y0
	if w <= 0 || h <= 0 {
		return
	}

	z := vector.NewRasterizer(w, h)
	z.MoveTo(float32(p[0].X-float64(x0)), float32(p[0].Y-float64(y0)))
	for _, pt := range p[1:] {
		z.LineTo(float32(pt.X-float64(x0)), float32(pt.Y-float64(y0)))
	}
	z.ClosePath()

	scratch := image.NewAlpha(image.Rect(0, 0, w, h))
	z.Draw(scratch, scratch.Bounds(), image.Opaque, image.Point{})

	for y := 0; y < h; y++ {
		row := scratch.Pix[y*scratch.Stride : y*scratch.Stride+w]
		off := (y0+y)*m.Width + x0
		for x, a := range row {
			if a >= threshold {
				m.Pix[off+x] = v
			}
		}
	}
}

// Apply returns a copy of img with the RGB of every dropped pixel set to zero.
// Alpha is left untouched.
func Apply(img image.Image, m *Mask) *image.NRGBA {
	out := imaging.Clone(img)
	if m == nil {
		return out
	}
	b := out.Bounds()
	for y := 0; y < b.Dy() && y < m.Height; y++ {
		i := y * out.Stride
		for x := 0; x < b.Dx() && x < m.Width; x++ {
			if m.Pix[y*m.Width+x] == 0 {
				out.Pix[i+0] = 0
				out.Pix[i+1] = 0
				out.Pix[i+2] = 0
			}
			i += 4
		}
	}
	return out
}

// Fill masks ignore regions of img while restoring valid annotations.
// Without ignore polygons the image is only converted to NRGBA.
func Fill(img image.Image, ignore, valid []types.Polygon) *image.NRGBA {
	if len(ignore) == 0 {
		return imaging.Clone(img)
	}
	b := img.Bounds()
	return Apply(img, Build(b.Dx(), b.Dy(), ignore, valid))
}

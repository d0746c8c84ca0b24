// Package window generates the sliding windows a large image is split into.
//
// Windows are laid out independently per axis and per scale. Along one axis a
// window of size S advances by step = S - gap until the image is covered. When
// the last window would run past the image edge it is pulled back so that it
// ends exactly on the edge; the final window then overlaps its neighbour by
// more than gap pixels. An axis no longer than S gets a single window at 0,
// which may extend past the image and is padded at crop time.
//
// Windows that are mostly outside the image (image coverage at or below the
// rate threshold) are dropped. If that would drop every window, the windows
// with the best coverage are kept so each image yields at least one patch.
package window

import (
	"math"

	"github.com/pkg/errors"

	"github.com/menta2k/image-tiler/pkg/types"
)

// rateEps is the tolerance used when falling back to the best-covered windows
const rateEps = 0.01

// Scale is one window size and the overlap between neighbouring windows
type Scale struct {
	Size int `json:"size"`
	Gap  int `json:"gap"`
}

// Step is the distance between consecutive window starts
func (s Scale) Step() int { return s.Size - s.Gap }

// Validate checks that windows of this scale advance
func (s Scale) Validate() error {
	if s.Size <= 0 {
		return types.NewConfigError("split.sizes", "window size must be positive, got %d", s.Size)
	}
	if s.Size <= s.Gap {
		return types.NewConfigError("split.gaps", "invalid size/gap pair [%d %d]: size must exceed gap", s.Size, s.Gap)
	}
	return nil
}

// Count returns the number of windows needed along an axis of the given length
func Count(axis, size, step int) int {
	if axis <= size {
		return 1
	}
	return int(math.Ceil(float64(axis-size)/float64(step) + 1))
}

// Starts returns the window start offsets along one axis
func Starts(axis, size, step int) []int {
	n := Count(axis, size, step)
	starts := make([]int, n)
	for i := range starts {
		starts[i] = step * i
	}
	if n > 1 && starts[n-1]+size > axis {
		starts[n-1] = axis - size
	}
	return starts
}

// Grid returns every window of one scale, x-major
func Grid(width, height int, s Scale) []types.Window {
	xs := Starts(width, s.Size, s.Step())
	ys := Starts(height, s.Size, s.Step())
	windows := make([]types.Window, 0, len(xs)*len(ys))
	for _, x := range xs {
		for _, y := range ys {
			windows = append(windows, types.Window{
				XStart: x,
				YStart: y,
				XStop:  x + s.Size,
				YStop:  y + s.Size,
			})
		}
	}
	return windows
}

// ImageRate is the fraction of the window area covered by a width x height image
func ImageRate(w types.Window, width, height int) float64 {
	nominal := w.Area()
	if nominal <= 0 {
		return 0
	}
	return float64(w.Clip(width, height).Area()) / float64(nominal)
}

// Generate returns the windows of all scales whose image coverage exceeds imgRateThr
func Generate(width, height int, scales []Scale, imgRateThr float64) ([]types.Window, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid image size %dx%d", width, height)
	}
	if len(scales) == 0 {
		return nil, types.NewConfigError("split.sizes", "at least one window scale is required")
	}

	var all []types.Window
	for _, s := range scales {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		all = append(all, Grid(width, height, s)...)
	}

	rates := make([]float64, len(all))
	maxRate := 0.0
	for i, w := range all {
		rates[i] = ImageRate(w, width, height)
		maxRate = math.Max(maxRate, rates[i])
	}

	kept := filter(all, rates, func(r float64) bool { return r > imgRateThr })
	if len(kept) == 0 {
		kept = filter(all, rates, func(r float64) bool { return math.Abs(r-maxRate) < rateEps })
	}
	return kept, nil
}

func filter(windows []types.Window, rates []float64, keep func(float64) bool) []types.Window {
	out := make([]types.Window, 0, len(windows))
	for i, w := range windows {
		if keep(rates[i]) {
			out = append(out, w)
		}
	}
	return out
}

package assign

import (
	"github.com/menta2k/image-tiler/pkg/geometry"
	"github.com/menta2k/image-tiler/pkg/types"
)

// DefaultIoFThreshold is the minimal IoF for an annotation to follow a window
const DefaultIoFThreshold = 0.7

// Assigner maps annotations to windows by IoF
type Assigner struct {
	kernel    *geometry.Kernel
	threshold float64
}

// New creates an Assigner. threshold must lie in [0, 1].
func New(kernel *geometry.Kernel, threshold float64) (*Assigner, error) {
	if threshold < 0 || threshold > 1 {
		return nil, types.NewConfigError("split.iof_thr", "must be between 0 and 1, got %v", threshold)
	}
	if kernel == nil {
		kernel = geometry.NewKernelWithClipper(geometry.OrbClipper{})
	}
	return &Assigner{kernel: kernel, threshold: threshold}, nil
}

// Threshold returns the IoF threshold
func (a *Assigner) Threshold() float64 { return a.threshold }

// Assign returns one assignment per window, in window order.
// An annotation joins every window it overlaps with IoF >= threshold; it is
// truncated in that window when IoF < 1.
func (a *Assigner) Assign(anns []types.Annotation, windows []types.Window) []types.WindowAssignment {
	polys := make([]types.Polygon, len(anns))
	for i, ann := range anns {
		polys[i] = ann.Polygon
	}
	iofs := a.kernel.IoFWindows(polys, windows)

	out := make([]types.WindowAssignment, len(windows))
	for j, w := range windows {
		out[j] = types.WindowAssignment{Window: w, Annotations: []types.AssignedAnnotation{}}
		for i, ann := range anns {
			iof := iofs[i][j]
			if iof < a.threshold {
				continue
			}
			out[j].Annotations = append(out[j].Annotations, types.AssignedAnnotation{
				Annotation: ann,
				IoF:        iof,
				Truncated:  iof < 1,
			})
		}
	}
	return out
}

// Package patch cuts windows out of a masked image and turns their
// annotations into window-local label records.
package patch

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/menta2k/image-tiler/pkg/geometry"
	"github.com/menta2k/image-tiler/pkg/types"
)

// LabelExt is the extension of label files
const LabelExt = ".txt"

// PatchID returns the deterministic id of the patch cut from w
func PatchID(imageID string, w types.Window) string {
	return fmt.Sprintf("%s__%d__%d___%d", imageID, w.Width(), w.XStart, w.YStart)
}

// Patch is a cut image region and its record
type Patch struct {
	Image  *image.NRGBA
	Record types.PatchRecord
}

// Builder cuts patches. The zero value pads edge windows with black.
type Builder struct {
	NoPadding bool
	Padding   color.Color
	// ImageExt is appended to the patch id to name the image file
	ImageExt string
}

// Build crops a.Window out of img and translates the assigned annotations
// into window space. The second return value lists polygons that did not
// fit the window; they are kept and only reported.
func (b Builder) Build(img image.Image, rec types.ImageRecord, a types.WindowAssignment) (*Patch, []string) {
	w := a.Window
	id := PatchID(rec.ID, w)

	bounds := img.Bounds()
	clip := w.Clip(bounds.Dx(), bounds.Dy())
	var out *image.NRGBA
	if clip.Area() > 0 {
		out = imaging.Crop(img, clip.Rect().Add(bounds.Min))
	} else {
		out = &image.NRGBA{}
	}

	if !b.NoPadding && (out.Bounds().Dx() < w.Width() || out.Bounds().Dy() < w.Height()) {
		pad := b.Padding
		if pad == nil {
			pad = color.Black
		}
		canvas := imaging.New(w.Width(), w.Height(), pad)
		out = imaging.Paste(canvas, out, image.Pt(0, 0))
	}

	var anomalies []string
	anns := make([]types.PatchAnnotation, 0, len(a.Annotations))
	for _, ann := range a.Annotations {
		poly, ok := geometry.ToWindow(ann.Polygon, w)
		if !ok {
			anomalies = append(anomalies, fmt.Sprintf("%s: polygon %v leaves the window after translation", id, ann.Polygon.Flat()))
		}
		anns = append(anns, types.PatchAnnotation{
			Polygon:    poly,
			CategoryID: ann.CategoryID,
			Truncated:  ann.Truncated,
		})
	}

	return &Patch{
		Image: out,
		Record: types.PatchRecord{
			ID:              id,
			OriginalImageID: rec.ID,
			Filename:        id + b.ImageExt,
			LabelFilename:   id + LabelExt,
			XStart:          w.XStart,
			YStart:          w.YStart,
			Width:           out.Bounds().Dx(),
			Height:          out.Bounds().Dy(),
			Annotations:     anns,
		},
	}, anomalies
}

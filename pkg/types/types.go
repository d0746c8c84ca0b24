package types

import "image"

// Point is a vertex in pixel space
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Polygon is an ordered list of corners. Annotations are quadrilaterals,
// ignore regions may have any number of corners.
type Polygon []Point

// Flat returns the polygon as x1, y1, x2, y2, ...
func (p Polygon) Flat() []float64 {
	out := make([]float64, 0, 2*len(p))
	for _, pt := range p {
		out = append(out, pt.X, pt.Y)
	}
	return out
}

// PolygonFromFlat builds a polygon from x1, y1, x2, y2, ...
// It returns false when the coordinate count is odd.
func PolygonFromFlat(coords []float64) (Polygon, bool) {
	if len(coords)%2 != 0 {
		return nil, false
	}
	p := make(Polygon, 0, len(coords)/2)
	for i := 0; i < len(coords); i += 2 {
		p = append(p, Point{X: coords[i], Y: coords[i+1]})
	}
	return p, true
}

// Clone returns a copy that shares no memory with p
func (p Polygon) Clone() Polygon {
	out := make(Polygon, len(p))
	copy(out, p)
	return out
}

// Annotation is one labelled object of an image
type Annotation struct {
	Polygon    Polygon `json:"poly"`
	CategoryID int     `json:"category_id"`
}

// ImageRecord holds everything the splitter needs to know about one source image.
// It is built once by the dataset loader and never mutated afterwards.
type ImageRecord struct {
	ID            string       `json:"id"`
	Filename      string       `json:"filename"`
	ImageDir      string       `json:"image_dir"`
	Width         int          `json:"width"`
	Height        int          `json:"height"`
	Annotations   []Annotation `json:"annotations"`
	IgnoreRegions []Polygon    `json:"ignore_regions,omitempty"`
}

// Polygons returns the polygons of all valid annotations
func (r ImageRecord) Polygons() []Polygon {
	out := make([]Polygon, len(r.Annotations))
	for i, a := range r.Annotations {
		out[i] = a.Polygon
	}
	return out
}

// Window is an axis-aligned crop region in image pixel space.
// XStop and YStop are exclusive.
type Window struct {
	XStart int `json:"x_start"`
	YStart int `json:"y_start"`
	XStop  int `json:"x_stop"`
	YStop  int `json:"y_stop"`
}

// Width of the window
func (w Window) Width() int { return w.XStop - w.XStart }

// Height of the window
func (w Window) Height() int { return w.YStop - w.YStart }

// Area of the window
func (w Window) Area() int { return w.Width() * w.Height() }

// Rect returns the window as an image.Rectangle
func (w Window) Rect() image.Rectangle {
	return image.Rect(w.XStart, w.YStart, w.XStop, w.YStop)
}

// Clip returns the part of the window that lies inside a width x height image
func (w Window) Clip(width, height int) Window {
	return Window{
		XStart: clampInt(w.XStart, 0, width),
		YStart: clampInt(w.YStart, 0, height),
		XStop:  clampInt(w.XStop, 0, width),
		YStop:  clampInt(w.YStop, 0, height),
	}
}

// AssignedAnnotation is an annotation selected for a window
type AssignedAnnotation struct {
	Annotation
	IoF       float64 `json:"iof"`
	Truncated bool    `json:"truncated"`
}

// WindowAssignment is the annotation subset that belongs to one window
type WindowAssignment struct {
	Window      Window               `json:"window"`
	Annotations []AssignedAnnotation `json:"annotations"`
}

// PatchAnnotation is an annotation in window-local coordinates
type PatchAnnotation struct {
	Polygon    Polygon `json:"poly"`
	CategoryID int     `json:"cat_id"`
	Truncated  bool    `json:"trunc"`
}

// PatchRecord describes one emitted patch
type PatchRecord struct {
	ID              string            `json:"id"`
	OriginalImageID string            `json:"ori_id"`
	Filename        string            `json:"filename"`
	LabelFilename   string            `json:"label_filename"`
	XStart          int               `json:"x_start"`
	YStart          int               `json:"y_start"`
	Width           int               `json:"width"`
	Height          int               `json:"height"`
	Annotations     []PatchAnnotation `json:"annotations"`
}

// Category maps a category id to its name
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// SkippedImage records an image that did not produce patches
type SkippedImage struct {
	ID     string `json:"id"`
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Manifest is the flat result of a split run
type Manifest struct {
	Categories    []Category     `json:"categories"`
	Patches       []PatchRecord  `json:"patches"`
	Processed     int            `json:"processed"`
	Skipped       int            `json:"skipped"`
	SkippedImages []SkippedImage `json:"skipped_images,omitempty"`
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

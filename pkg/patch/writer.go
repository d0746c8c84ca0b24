package patch

import (
	"errors"
	"image"
	"os"
	"path/filepath"

	"github.com/menta2k/image-tiler/pkg/types"
)

// ImageSaver encodes an image to a file, picking the format from its extension
type ImageSaver interface {
	SaveImage(img image.Image, path string) error
}

// Writer persists patches as an image file plus a label file
type Writer struct {
	ImagesDir string
	LabelsDir string
	Saver     ImageSaver
}

// Write stores p.Image under ImagesDir and its labels under LabelsDir.
// Failures are reported as *types.OutputWriteError.
func (w *Writer) Write(p *Patch) error {
	imgPath := filepath.Join(w.ImagesDir, p.Record.Filename)
	if err := w.Saver.SaveImage(p.Image, imgPath); err != nil {
		return &types.OutputWriteError{Path: imgPath, Err: err}
	}

	labelPath := filepath.Join(w.LabelsDir, p.Record.LabelFilename)
	if err := os.WriteFile(labelPath, LabelFile(p.Record), 0o644); err != nil {
		_ = os.Remove(imgPath)
		return &types.OutputWriteError{Path: labelPath, Err: err}
	}
	return nil
}

// Remove deletes the image and label files of rec. Files that do not exist
// are not an error.
func (w *Writer) Remove(rec types.PatchRecord) error {
	var errs []error
	for _, path := range []string{
		filepath.Join(w.ImagesDir, rec.Filename),
		filepath.Join(w.LabelsDir, rec.LabelFilename),
	} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

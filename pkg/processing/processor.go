package processing

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/llgcode/draw2d/draw2dimg"
	"github.com/pkg/errors"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/image-tiler/pkg/types"
)

// DefaultQuality is the JPEG/WebP quality used when none is configured
const DefaultQuality = 95

var saveExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
	".webp": true,
}

// SupportedSaveExt reports whether patches can be written with this extension
func SupportedSaveExt(ext string) bool {
	return saveExts[strings.ToLower(ext)]
}

// Processor handles image I/O for the splitter
type Processor struct {
	Quality  int
	Lossless bool
}

// NewProcessor creates a new image processor
func NewProcessor(quality int) *Processor {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &Processor{Quality: quality}
}

// LoadImage loads an image from a file path with WebP support
func (p *Processor) LoadImage(path string) (image.Image, error) {
	// Try imaging.Open (registered decoders)
	img, err := imaging.Open(path)
	if err == nil {
		return img, nil
	}
	if os.IsNotExist(errors.Cause(err)) {
		return nil, errors.Wrapf(err, "open %s", path)
	}

	// Fallback: explicit WebP decode
	if strings.EqualFold(filepath.Ext(path), ".webp") {
		f, ferr := os.Open(path)
		if ferr != nil {
			return nil, errors.Wrapf(ferr, "open %s", path)
		}
		defer f.Close()
		if img, werr := webp.Decode(f); werr == nil {
			return img, nil
		}
	}
	return nil, errors.Wrapf(err, "decode %s", path)
}

// ProbeSize reads only the image header and returns its dimensions
func (p *Processor) ProbeSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "read header of %s", path)
	}
	return cfg.Width, cfg.Height, nil
}

// SaveImage writes img to path; the format follows the file extension
func (p *Processor) SaveImage(img image.Image, path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		opts := &webp.Options{Lossless: p.Lossless, Quality: float32(p.Quality)}
		if err := webp.Encode(f, img, opts); err != nil {
			f.Close()
			return errors.Wrapf(err, "encode %s", path)
		}
		return f.Close()
	case ".png", ".tif", ".tiff", ".bmp":
		return imaging.Save(img, path)
	case ".jpg", ".jpeg":
		return imaging.Save(img, path, imaging.JPEGQuality(p.Quality))
	default:
		return errors.Errorf("unsupported output format %q", ext)
	}
}

// CreateDebugOverlay strokes the patch annotations on top of a copy of img.
// Complete objects are green, truncated ones gold.
func (p *Processor) CreateDebugOverlay(img image.Image, anns []types.PatchAnnotation) *image.RGBA {
	b := img.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(canvas, canvas.Bounds(), img, b.Min, draw.Src)

	green := color.RGBA{0, 255, 0, 255}
	gold := color.RGBA{255, 204, 0, 255}
	stroke := math.Max(2, 0.004*float64(min(b.Dx(), b.Dy()))) // ~0.4% of min side

	gc := draw2dimg.NewGraphicContext(canvas)
	gc.SetLineWidth(stroke)
	for _, ann := range anns {
		if len(ann.Polygon) < 2 {
			continue
		}
		if ann.Truncated {
			gc.SetStrokeColor(gold)
		} else {
			gc.SetStrokeColor(green)
		}
		gc.BeginPath()
		gc.MoveTo(ann.Polygon[0].X, ann.Polygon[0].Y)
		for _, pt := range ann.Polygon[1:] {
			gc.LineTo(pt.X, pt.Y)
		}
		gc.Close()
		gc.Stroke()
	}
	return canvas
}

// SaveDebugOverlay writes an overlay produced by CreateDebugOverlay as PNG
func (p *Processor) SaveDebugOverlay(img image.Image, path string) error {
	return draw2dimg.SaveToPngFile(path, img)
}

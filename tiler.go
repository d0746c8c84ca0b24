// Package imagetiler splits very large annotated images into fixed-size,
// overlapping training patches.
//
// Images come with oriented quadrilateral annotations (SODA-A style). Each
// image is swept with square windows; every annotation that lies mostly
// inside a window (by intersection over its own area) is copied into that
// window's coordinate system. Ignore regions are blanked before cutting,
// edge windows are padded to the full size, and each patch is written as an
// image plus a text label file with normalized corner coordinates.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//
//		imagetiler "github.com/menta2k/image-tiler"
//	)
//
//	func main() {
//		cfg := imagetiler.DefaultConfig()
//		cfg.Dataset.ImgDirs = []string{"data/train/Images"}
//		cfg.Dataset.AnnDirs = []string{"data/train/Annotations"}
//		cfg.Output.SaveDir = "data/train_split"
//
//		manifest, err := imagetiler.Split(context.Background(), cfg)
//		if err != nil {
//			log.Fatalf("%+v", err)
//		}
//		log.Printf("%d patches from %d images", len(manifest.Patches), manifest.Processed)
//	}
//
// The package consists of these components:
//
// 1. Geometry (pkg/geometry): bounding boxes, IoF, coordinate translation
// 2. Windows (pkg/window): sliding windows and coverage filtering
// 3. Assignment (pkg/assign): annotation to window mapping
// 4. Masking (pkg/mask): ignore region blanking
// 5. Patches (pkg/patch): crop, pad, labels and files
// 6. Splitter (pkg/splitter): dataset loading and the worker pool
//
// Tiler runs the same steps in memory for callers that bring their own
// images and annotations.
package imagetiler

import (
	"context"
	"image"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/image-tiler/internal/config"
	"github.com/menta2k/image-tiler/internal/logging"
	"github.com/menta2k/image-tiler/pkg/assign"
	"github.com/menta2k/image-tiler/pkg/geometry"
	"github.com/menta2k/image-tiler/pkg/mask"
	"github.com/menta2k/image-tiler/pkg/patch"
	"github.com/menta2k/image-tiler/pkg/splitter"
	"github.com/menta2k/image-tiler/pkg/types"
	"github.com/menta2k/image-tiler/pkg/window"
)

// Version of the image tiler library
const Version = "1.0.0"

// Config is the full run configuration
type Config = config.Config

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return config.Default()
}

// LoadConfig reads a JSON configuration file on top of the defaults
func LoadConfig(path string) (*Config, error) {
	return config.LoadFromFile(path)
}

// Split runs a complete split: it creates the output directories, logs to
// stdout and a timestamped file in the save dir, and writes the manifest.
func Split(ctx context.Context, cfg *Config) (*types.Manifest, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := splitter.PrepareOutput(cfg); err != nil {
		return nil, err
	}
	log, closer, err := logging.New(cfg.Output.SaveDir, logrus.InfoLevel)
	if err != nil {
		log.Warnf("log file disabled: %v", err)
	}
	defer closer.Close()

	return SplitWithLogger(ctx, cfg, log)
}

// SplitWithLogger is Split for callers that manage output directories and
// logging themselves
func SplitWithLogger(ctx context.Context, cfg *Config, log logrus.FieldLogger) (*types.Manifest, error) {
	s, err := splitter.New(cfg, log)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, splitter.Sources(cfg))
}

// Tiler cuts in-memory images without touching the file system
type Tiler struct {
	scales     []window.Scale
	imgRateThr float64
	assigner   *assign.Assigner
	builder    patch.Builder
}

// New creates a Tiler from the split and padding sections of cfg.
// Dataset and output settings are ignored.
func New(cfg *Config) (*Tiler, error) {
	scales := cfg.ScalePairs()
	if len(scales) == 0 {
		return nil, types.NewConfigError("split.sizes", "at least one window size is required")
	}
	for _, s := range scales {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	kernel, err := geometry.NewKernel(cfg.Split.Kernel)
	if err != nil {
		return nil, err
	}
	assigner, err := assign.New(kernel, cfg.Split.IoFThr)
	if err != nil {
		return nil, err
	}
	pad, err := patch.ParsePaddingValue(cfg.Padding.Value, cfg.Padding.Hex)
	if err != nil {
		return nil, err
	}
	return &Tiler{
		scales:     scales,
		imgRateThr: cfg.Split.ImgRateThr,
		assigner:   assigner,
		builder: patch.Builder{
			NoPadding: cfg.Padding.NoPadding,
			Padding:   pad,
			ImageExt:  cfg.Output.SaveExt,
		},
	}, nil
}

// Windows returns the windows a width x height image is cut into
func (t *Tiler) Windows(width, height int) ([]types.Window, error) {
	return window.Generate(width, height, t.scales, t.imgRateThr)
}

// Tile cuts img into patches. rec.ID names the patches; its size is taken
// from img. The second return value lists annotations that did not fit
// their window after translation.
func (t *Tiler) Tile(img image.Image, rec types.ImageRecord) ([]*patch.Patch, []string, error) {
	b := img.Bounds()
	rec.Width, rec.Height = b.Dx(), b.Dy()

	windows, err := t.Windows(rec.Width, rec.Height)
	if err != nil {
		return nil, nil, err
	}
	masked := mask.Fill(img, rec.IgnoreRegions, rec.Polygons())

	var anomalies []string
	patches := make([]*patch.Patch, 0, len(windows))
	for _, a := range t.assigner.Assign(rec.Annotations, windows) {
		p, msgs := t.builder.Build(masked, rec, a)
		anomalies = append(anomalies, msgs...)
		patches = append(patches, p)
	}
	return patches, anomalies, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}

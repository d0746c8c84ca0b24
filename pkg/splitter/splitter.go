// Package splitter runs the whole pipeline: it loads image records, cuts
// every image into patches on a pool of workers and writes the manifest.
//
// Each worker owns one image from decode to the last written label file and
// hands back a result value; only the collecting goroutine touches the
// manifest. An image that cannot be read or written is recorded as skipped
// and the run goes on. A run that splits no image at all fails with
// types.ErrNoImagesProcessed.
package splitter

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/image-tiler/internal/config"
	"github.com/menta2k/image-tiler/internal/utils"
	"github.com/menta2k/image-tiler/pkg/assign"
	"github.com/menta2k/image-tiler/pkg/dataset"
	"github.com/menta2k/image-tiler/pkg/geometry"
	"github.com/menta2k/image-tiler/pkg/mask"
	"github.com/menta2k/image-tiler/pkg/patch"
	"github.com/menta2k/image-tiler/pkg/processing"
	"github.com/menta2k/image-tiler/pkg/types"
	"github.com/menta2k/image-tiler/pkg/window"
)

// ManifestFile is the name of the manifest written to the save dir
const ManifestFile = "manifest.json"

// DebugDir holds the annotation overlays written in debug mode
const DebugDir = "debug"

// Splitter cuts images into patches according to a validated Config
type Splitter struct {
	cfg      *config.Config
	log      logrus.FieldLogger
	proc     *processing.Processor
	loader   *dataset.Loader
	scales   []window.Scale
	assigner *assign.Assigner
	builder  patch.Builder
	writer   *patch.Writer
}

// New validates cfg and builds a Splitter
func New(cfg *config.Config, log logrus.FieldLogger) (*Splitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
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

	log.Debugf("clipping kernel: %s", kernel.Clipper().Name())

	proc := processing.NewProcessor(cfg.Output.Quality)
	proc.Lossless = cfg.Output.Lossless
	loader := dataset.NewLoader(dataset.Options{
		AnnExt:           cfg.Dataset.AnnExt,
		ImageExt:         cfg.Dataset.ImageExt,
		IgnoreCategoryID: cfg.Dataset.IgnoreCategoryID,
		Workers:          cfg.Workers,
	}, proc, log)

	return &Splitter{
		cfg:      cfg,
		log:      log,
		proc:     proc,
		loader:   loader,
		scales:   cfg.ScalePairs(),
		assigner: assigner,
		builder: patch.Builder{
			NoPadding: cfg.Padding.NoPadding,
			Padding:   pad,
			ImageExt:  utils.NormalizeExt(cfg.Output.SaveExt),
		},
		writer: &patch.Writer{
			ImagesDir: filepath.Join(cfg.Output.SaveDir, cfg.Output.ImagesDir),
			LabelsDir: filepath.Join(cfg.Output.SaveDir, cfg.Output.LabelsDir),
			Saver:     proc,
		},
	}, nil
}

// Sources pairs the configured image and annotation directories
func Sources(cfg *config.Config) []dataset.Source {
	out := make([]dataset.Source, 0, len(cfg.Dataset.ImgDirs))
	for i, img := range cfg.Dataset.ImgDirs {
		src := dataset.Source{ImageDir: img}
		if i < len(cfg.Dataset.AnnDirs) {
			src.AnnDir = cfg.Dataset.AnnDirs[i]
		}
		out = append(out, src)
	}
	return out
}

// PrepareOutput creates the save dir and its images and labels directories.
// Existing images or labels directories are a ConfigError unless overwrite is set.
func PrepareOutput(cfg *config.Config) error {
	dirs := []string{
		filepath.Join(cfg.Output.SaveDir, cfg.Output.ImagesDir),
		filepath.Join(cfg.Output.SaveDir, cfg.Output.LabelsDir),
	}
	if cfg.Output.Debug {
		dirs = append(dirs, filepath.Join(cfg.Output.SaveDir, DebugDir))
	}

	for _, dir := range dirs[:2] {
		if utils.PathExists(dir) && !cfg.Output.Overwrite {
			return types.NewConfigError("output.save_dir", "%s already exists (set overwrite to reuse it)", dir)
		}
	}
	for _, dir := range dirs {
		if err := utils.EnsureDir(dir); err != nil {
			return &types.OutputWriteError{Path: dir, Err: err}
		}
	}
	return nil
}

// Run loads every source and splits all loaded images
func (s *Splitter) Run(ctx context.Context, sources []dataset.Source) (*types.Manifest, error) {
	records, skipped, err := s.loader.Load(ctx, sources)
	if err != nil {
		return nil, err
	}
	return s.Split(ctx, records, skipped...)
}

type result struct {
	record  types.ImageRecord
	patches []types.PatchRecord
	err     error
}

// Split cuts records into patches on cfg.Workers goroutines and writes the
// manifest. Images already skipped while loading are passed in as skipped.
func (s *Splitter) Split(ctx context.Context, records []types.ImageRecord, skipped ...types.SkippedImage) (*types.Manifest, error) {
	start := time.Now()
	s.log.Info("Start splitting images")

	manifest := &types.Manifest{
		Categories:    s.cfg.Categories(),
		Patches:       []types.PatchRecord{},
		SkippedImages: append([]types.SkippedImage(nil), skipped...),
	}

	kill := make(chan struct{})
	defer close(kill)

	inputC := make(chan types.ImageRecord)
	go func() {
		defer close(inputC)
		for _, rec := range records {
			select {
			case <-kill:
				return
			case <-ctx.Done():
				return
			case inputC <- rec:
			}
		}
	}()

	outC := make(chan result)
	done := make(chan struct{})
	workers := min(s.cfg.Workers, max(len(records), 1))
	for i := 0; i < workers; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for rec := range inputC {
				patches, err := s.SplitImage(rec)
				select {
				case <-kill:
					return
				case outC <- result{record: rec, patches: patches, err: err}:
				}
			}
		}()
	}
	go func() {
		for i := 0; i < workers; i++ {
			<-done
		}
		close(outC)
	}()

	progress := NewProgress(len(records), s.log)
	for out := range outC {
		if out.err != nil {
			if types.IsConfigError(out.err) {
				return nil, errors.Wrapf(out.err, "split %s", out.record.Filename)
			}
			progress.Skip(out.record, out.err)
			manifest.SkippedImages = append(manifest.SkippedImages, types.SkippedImage{
				ID:     out.record.ID,
				Path:   filepath.Join(out.record.ImageDir, out.record.Filename),
				Reason: out.err.Error(),
			})
			continue
		}
		progress.Step(out.record, len(out.patches))
		manifest.Processed++
		manifest.Patches = append(manifest.Patches, out.patches...)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "splitting interrupted")
	}

	sort.Slice(manifest.Patches, func(i, j int) bool { return manifest.Patches[i].ID < manifest.Patches[j].ID })
	sort.Slice(manifest.SkippedImages, func(i, j int) bool { return manifest.SkippedImages[i].ID < manifest.SkippedImages[j].ID })
	manifest.Skipped = len(manifest.SkippedImages)

	if err := WriteManifest(filepath.Join(s.cfg.Output.SaveDir, ManifestFile), manifest); err != nil {
		return manifest, err
	}

	s.log.Infof("Finish splitting images in %d second", int(time.Since(start).Seconds()))
	s.log.Infof("Processed images: %d, skipped images: %d, total patches: %d",
		manifest.Processed, manifest.Skipped, len(manifest.Patches))

	if manifest.Processed == 0 {
		return manifest, types.ErrNoImagesProcessed
	}
	return manifest, nil
}

// SplitImage runs the whole pipeline for one image and returns the records
// of the patches it wrote.
func (s *Splitter) SplitImage(rec types.ImageRecord) ([]types.PatchRecord, error) {
	windows, err := window.Generate(rec.Width, rec.Height, s.scales, s.cfg.Split.ImgRateThr)
	if err != nil {
		if types.IsConfigError(err) {
			return nil, err
		}
		return nil, &types.MissingInputError{Path: filepath.Join(rec.ImageDir, rec.Filename), Err: err}
	}
	assignments := s.assigner.Assign(rec.Annotations, windows)

	path := filepath.Join(rec.ImageDir, rec.Filename)
	img, err := s.proc.LoadImage(path)
	if err != nil {
		return nil, &types.MissingInputError{Path: path, Err: err}
	}
	if b := img.Bounds(); b.Dx() != rec.Width || b.Dy() != rec.Height {
		return nil, &types.MissingInputError{
			Path: path,
			Err:  errors.Errorf("decoded size %dx%d does not match recorded %dx%d", b.Dx(), b.Dy(), rec.Width, rec.Height),
		}
	}

	// built once per image and only read while patches are cut
	masked := mask.Fill(img, rec.IgnoreRegions, rec.Polygons())

	records := make([]types.PatchRecord, 0, len(assignments))
	for _, a := range assignments {
		p, anomalies := s.builder.Build(masked, rec, a)
		for _, msg := range anomalies {
			s.log.WithField("image", rec.ID).Warnf("anomaly poly: %s", msg)
		}
		if err := s.writer.Write(p); err != nil {
			s.discard(rec, records)
			return nil, err
		}
		records = append(records, p.Record)
		if s.cfg.Output.Debug {
			overlay := s.proc.CreateDebugOverlay(p.Image, p.Record.Annotations)
			if err := s.proc.SaveDebugOverlay(overlay, s.debugPath(p.Record)); err != nil {
				s.discard(rec, records)
				return nil, &types.OutputWriteError{Path: s.debugPath(p.Record), Err: err}
			}
		}
	}
	return records, nil
}

func (s *Splitter) debugPath(rec types.PatchRecord) string {
	return filepath.Join(s.cfg.Output.SaveDir, DebugDir, rec.ID+".png")
}

// discard removes the files of an image whose split failed part way, so
// that nothing of a skipped image is left in the output.
func (s *Splitter) discard(rec types.ImageRecord, written []types.PatchRecord) {
	for _, p := range written {
		if err := s.writer.Remove(p); err != nil {
			s.log.WithField("image", rec.ID).Warnf("cleanup of %s failed: %v", p.ID, err)
		}
		if s.cfg.Output.Debug {
			if err := os.Remove(s.debugPath(p)); err != nil && !os.IsNotExist(err) {
				s.log.WithField("image", rec.ID).Warnf("cleanup of %s failed: %v", p.ID, err)
			}
		}
	}
}

// WriteManifest stores m as indented JSON
func WriteManifest(path string, m *types.Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal manifest")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &types.OutputWriteError{Path: path, Err: err}
	}
	return nil
}

// ReadManifest loads a manifest written by WriteManifest
func ReadManifest(path string) (*types.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read manifest")
	}
	var m types.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "parse manifest")
	}
	return &m, nil
}

// Package dataset loads SODA-A style annotation files together with the
// dimensions of their paired images.
//
// Every annotation file <stem><ann_ext> in an annotation directory describes
// the image <stem><image_ext> in the paired image directory. Annotations of
// the ignore category become ignore regions; all others are kept as objects
// as long as they are quadrilaterals.
package dataset

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/image-tiler/internal/utils"
	"github.com/menta2k/image-tiler/pkg/types"
)

// DefaultIgnoreCategoryID marks ignore regions in SODA-A annotations
const DefaultIgnoreCategoryID = 9

// maxCoords is the coordinate count of a quadrilateral
const maxCoords = 8

// Source pairs an image directory with its annotation directory
type Source struct {
	ImageDir string `json:"img_dir"`
	AnnDir   string `json:"ann_dir"`
}

// SizeProber reads image dimensions without decoding pixels
type SizeProber interface {
	ProbeSize(path string) (int, int, error)
}

// Options control how annotation files are matched and parsed
type Options struct {
	AnnExt           string
	ImageExt         string
	IgnoreCategoryID int
	Workers          int
}

// Loader builds ImageRecords from annotation directories
type Loader struct {
	opts   Options
	prober SizeProber
	log    logrus.FieldLogger
}

// NewLoader creates a Loader. Empty extensions default to .json and .jpg.
func NewLoader(opts Options, prober SizeProber, log logrus.FieldLogger) *Loader {
	if opts.AnnExt == "" {
		opts.AnnExt = ".json"
	}
	if opts.ImageExt == "" {
		opts.ImageExt = ".jpg"
	}
	opts.AnnExt = utils.NormalizeExt(opts.AnnExt)
	opts.ImageExt = utils.NormalizeExt(opts.ImageExt)
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(os.Stderr)
		log = l
	}
	return &Loader{opts: opts, prober: prober, log: log}
}

type loadJob struct {
	index  int
	source Source
	file   string
}

type loadResult struct {
	record  types.ImageRecord
	skipped *types.SkippedImage
}

// Load reads every source in order. Records come back sorted by annotation
// file name within each source. Images whose annotation or image file is
// missing or unreadable are returned as skipped.
func (l *Loader) Load(ctx context.Context, sources []Source) ([]types.ImageRecord, []types.SkippedImage, error) {
	start := time.Now()
	l.log.Info("Starting loading SODA-A dataset information")

	var jobs []loadJob
	for _, src := range sources {
		if !utils.DirExists(src.ImageDir) {
			return nil, nil, types.NewConfigError("dataset.img_dirs", "%s is not an existing dir", src.ImageDir)
		}
		if !utils.DirExists(src.AnnDir) {
			return nil, nil, types.NewConfigError("dataset.ann_dirs", "%s is not an existing dir", src.AnnDir)
		}
		files, err := utils.ListFilesByExt(src.AnnDir, l.opts.AnnExt)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "list %s", src.AnnDir)
		}
		for _, f := range files {
			jobs = append(jobs, loadJob{index: len(jobs), source: src, file: f})
		}
	}

	results := make([]loadResult, len(jobs))
	ch := make(chan loadJob)
	var wg sync.WaitGroup
	for i := 0; i < l.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range ch {
				results[job.index] = l.loadOne(job)
			}
		}()
	}

	var cancelled error
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			cancelled = err
			break
		}
		ch <- job
	}
	close(ch)
	wg.Wait()
	if cancelled != nil {
		return nil, nil, errors.Wrap(cancelled, "loading dataset")
	}

	records := make([]types.ImageRecord, 0, len(results))
	var skipped []types.SkippedImage
	for _, r := range results {
		if r.skipped != nil {
			skipped = append(skipped, *r.skipped)
			continue
		}
		records = append(records, r.record)
	}

	l.log.Infof("Finishing loading SODA-A dataset, get %d images, using %.3fs", len(records), time.Since(start).Seconds())
	return records, skipped, nil
}

func (l *Loader) loadOne(job loadJob) loadResult {
	rec, err := l.LoadRecord(job.source, job.file)
	if err != nil {
		var path string
		var me *types.MissingInputError
		if errors.As(err, &me) {
			path = me.Path
		}
		l.log.WithField("file", job.file).Warnf("skipping image: %v", err)
		return loadResult{skipped: &types.SkippedImage{
			ID:     utils.Stem(job.file),
			Path:   path,
			Reason: err.Error(),
		}}
	}
	return loadResult{record: rec}
}

// LoadRecord parses one annotation file and probes its image
func (l *Loader) LoadRecord(src Source, annFile string) (types.ImageRecord, error) {
	annPath := filepath.Join(src.AnnDir, annFile)
	data, err := os.ReadFile(annPath)
	if err != nil {
		return types.ImageRecord{}, &types.MissingInputError{Path: annPath, Err: err}
	}

	anns, ignore, err := l.parse(data, annPath)
	if err != nil {
		return types.ImageRecord{}, &types.MissingInputError{Path: annPath, Err: err}
	}

	id := utils.Stem(annFile)
	filename := id + l.opts.ImageExt
	imgPath := filepath.Join(src.ImageDir, filename)
	if !utils.FileExists(imgPath) {
		return types.ImageRecord{}, &types.MissingInputError{Path: imgPath, Err: errors.New("image file not found")}
	}
	w, h, err := l.prober.ProbeSize(imgPath)
	if err != nil {
		return types.ImageRecord{}, &types.MissingInputError{Path: imgPath, Err: err}
	}

	return types.ImageRecord{
		ID:            id,
		Filename:      filename,
		ImageDir:      src.ImageDir,
		Width:         w,
		Height:        h,
		Annotations:   anns,
		IgnoreRegions: ignore,
	}, nil
}

type annotationFile struct {
	Annotations []rawAnnotation `json:"annotations"`
}

type rawAnnotation struct {
	CategoryID int       `json:"category_id"`
	Poly       []float64 `json:"poly"`
}

func (l *Loader) parse(data []byte, path string) ([]types.Annotation, []types.Polygon, error) {
	anns, ignore, malformed, err := ParseAnnotations(data, l.opts.IgnoreCategoryID)
	if err != nil {
		return nil, nil, err
	}
	for _, m := range malformed {
		l.log.WithField("file", path).Warnf("dropping malformed polygon %v", m)
	}
	return anns, ignore, nil
}

// ParseAnnotations decodes an annotation document. Objects with more than
// four corners are dropped silently. Objects with fewer than four corners,
// ignore regions with fewer than three, and any polygon with an odd number
// of coordinates are returned in malformed.
func ParseAnnotations(data []byte, ignoreCategoryID int) (anns []types.Annotation, ignore []types.Polygon, malformed [][]float64, err error) {
	var doc annotationFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, nil, errors.Wrap(err, "parse annotations")
	}

	anns = []types.Annotation{}
	for _, raw := range doc.Annotations {
		if raw.CategoryID == ignoreCategoryID {
			p, ok := types.PolygonFromFlat(raw.Poly)
			if !ok || len(p) < 3 {
				malformed = append(malformed, raw.Poly)
				continue
			}
			ignore = append(ignore, p)
			continue
		}

		if len(raw.Poly) > maxCoords {
			continue
		}
		p, ok := types.PolygonFromFlat(raw.Poly)
		if !ok || len(p) < 4 {
			malformed = append(malformed, raw.Poly)
			continue
		}
		anns = append(anns, types.Annotation{Polygon: p, CategoryID: raw.CategoryID})
	}
	return anns, ignore, malformed, nil
}

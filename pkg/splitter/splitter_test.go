package splitter

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/image-tiler/internal/config"
	"github.com/menta2k/image-tiler/pkg/processing"
	"github.com/menta2k/image-tiler/pkg/types"
)

const docA = `{"annotations": [
  {"category_id": 1, "poly": [20, 20, 60, 20, 60, 60, 20, 60]},
  {"category_id": 2, "poly": [90, 30, 150, 30, 150, 50, 90, 50]},
  {"category_id": 9, "poly": [200, 150, 260, 150, 260, 200, 200, 200]}
]}`

const docB = `{"annotations": [
  {"category_id": 5, "poly": [10, 10, 30, 10, 30, 30, 10, 30]}
]}`

func writeGradient(t *testing.T, path string, w, h int) {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{A: 255})
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(20 + x%200), G: uint8(20 + y%200), B: 90, A: 255})
		}
	}
	require.NoError(t, imaging.Save(img, path))
}

func makeDataset(t *testing.T) (string, string) {
	t.Helper()
	root := t.TempDir()
	imgDir := filepath.Join(root, "Images")
	annDir := filepath.Join(root, "Annotations")
	require.NoError(t, os.MkdirAll(imgDir, 0o755))
	require.NoError(t, os.MkdirAll(annDir, 0o755))

	writeGradient(t, filepath.Join(imgDir, "A.png"), 300, 250)
	writeGradient(t, filepath.Join(imgDir, "B.png"), 100, 100)
	require.NoError(t, os.WriteFile(filepath.Join(annDir, "A.json"), []byte(docA), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(annDir, "B.json"), []byte(docB), 0o644))
	// annotation without an image
	require.NoError(t, os.WriteFile(filepath.Join(annDir, "C.json"), []byte(docB), 0o644))
	return imgDir, annDir
}

func testConfig(imgDir, annDir, saveDir string, workers int) *config.Config {
	cfg := config.Default()
	cfg.Split.Sizes = []int{128}
	cfg.Split.Gaps = []int{28}
	cfg.Dataset.ImgDirs = []string{imgDir}
	cfg.Dataset.AnnDirs = []string{annDir}
	cfg.Dataset.ImageExt = ".png"
	cfg.Output.SaveDir = saveDir
	cfg.Output.SaveExt = ".png"
	cfg.Workers = workers
	return cfg
}

func run(t *testing.T, cfg *config.Config) (*types.Manifest, *test.Hook) {
	t.Helper()
	log, hook := test.NewNullLogger()
	require.NoError(t, PrepareOutput(cfg))
	s, err := New(cfg, log)
	require.NoError(t, err)
	m, err := s.Run(context.Background(), Sources(cfg))
	require.NoError(t, err)
	return m, hook
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestRun(t *testing.T) {
	imgDir, annDir := makeDataset(t)
	out := filepath.Join(t.TempDir(), "out")
	cfg := testConfig(imgDir, annDir, out, 4)

	m, hook := run(t, cfg)

	assert.Equal(t, 2, m.Processed)
	assert.Equal(t, 1, m.Skipped)
	require.Len(t, m.SkippedImages, 1)
	assert.Equal(t, "C", m.SkippedImages[0].ID)
	require.Len(t, m.Categories, 10)

	// A: 3x3 windows, B: one padded window
	require.Len(t, m.Patches, 10)
	ids := make([]string, len(m.Patches))
	for i, p := range m.Patches {
		ids[i] = p.ID
		assert.Equal(t, 128, p.Width)
		assert.Equal(t, 128, p.Height)
		assert.FileExists(t, filepath.Join(out, "images", p.Filename))
		assert.FileExists(t, filepath.Join(out, "labels", p.LabelFilename))
	}
	assert.IsIncreasing(t, ids)
	assert.Contains(t, ids, "A__128__172___122")
	assert.Contains(t, ids, "B__128__0___0")

	assert.Equal(t, "1 0.156250 0.156250 0.468750 0.156250 0.468750 0.468750 0.156250 0.468750\n",
		readFile(t, filepath.Join(out, "labels", "A__128__0___0.txt")))
	assert.Equal(t, "2 0.000000 0.234375 0.390625 0.234375 0.390625 0.390625 0.000000 0.390625\n",
		readFile(t, filepath.Join(out, "labels", "A__128__100___0.txt")))
	assert.Equal(t, "", readFile(t, filepath.Join(out, "labels", "A__128__172___122.txt")))

	proc := processing.NewProcessor(0)

	// the ignore region is blanked, its surroundings are not
	img, err := proc.LoadImage(filepath.Join(out, "images", "A__128__172___122.png"))
	require.NoError(t, err)
	nrgba := imaging.Clone(img)
	assert.Equal(t, color.NRGBA{A: 255}, nrgba.NRGBAAt(200-172+10, 150-122+10))
	assert.NotEqual(t, color.NRGBA{A: 255}, nrgba.NRGBAAt(5, 5))

	// B is padded with black beyond its 100 pixels
	img, err = proc.LoadImage(filepath.Join(out, "images", "B__128__0___0.png"))
	require.NoError(t, err)
	nrgba = imaging.Clone(img)
	assert.Equal(t, color.NRGBA{A: 255}, nrgba.NRGBAAt(120, 120))
	assert.NotEqual(t, color.NRGBA{A: 255}, nrgba.NRGBAAt(50, 50))

	saved, err := ReadManifest(filepath.Join(out, ManifestFile))
	require.NoError(t, err)
	assert.Equal(t, m.Processed, saved.Processed)
	assert.Len(t, saved.Patches, 10)

	progressLines := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.InfoLevel && len(e.Message) > 0 && e.Message[0] == '(' {
			progressLines++
		}
	}
	assert.Equal(t, 2, progressLines)
}

func TestRunIsDeterministic(t *testing.T) {
	imgDir, annDir := makeDataset(t)
	outSerial := filepath.Join(t.TempDir(), "serial")
	outParallel := filepath.Join(t.TempDir(), "parallel")

	serial, _ := run(t, testConfig(imgDir, annDir, outSerial, 1))
	parallel, _ := run(t, testConfig(imgDir, annDir, outParallel, 8))
	assert.Equal(t, serial, parallel)

	// a second run over the same output reproduces every file byte for byte
	cfg := testConfig(imgDir, annDir, outSerial, 3)
	cfg.Output.Overwrite = true
	again, _ := run(t, cfg)
	assert.Equal(t, serial, again)

	for _, p := range serial.Patches {
		for _, rel := range []string{filepath.Join("images", p.Filename), filepath.Join("labels", p.LabelFilename)} {
			assert.Equal(t, readFile(t, filepath.Join(outSerial, rel)), readFile(t, filepath.Join(outParallel, rel)), rel)
		}
	}
	assert.Equal(t, readFile(t, filepath.Join(outSerial, ManifestFile)), readFile(t, filepath.Join(outParallel, ManifestFile)))
}

func TestPrepareOutput(t *testing.T) {
	imgDir, annDir := makeDataset(t)
	out := filepath.Join(t.TempDir(), "out")
	cfg := testConfig(imgDir, annDir, out, 1)
	cfg.Output.Debug = true

	require.NoError(t, PrepareOutput(cfg))
	assert.DirExists(t, filepath.Join(out, "images"))
	assert.DirExists(t, filepath.Join(out, "labels"))
	assert.DirExists(t, filepath.Join(out, DebugDir))

	err := PrepareOutput(cfg)
	require.Error(t, err)
	assert.True(t, types.IsConfigError(err))

	cfg.Output.Overwrite = true
	require.NoError(t, PrepareOutput(cfg))
}

func TestRunDebugOverlays(t *testing.T) {
	imgDir, annDir := makeDataset(t)
	out := filepath.Join(t.TempDir(), "out")
	cfg := testConfig(imgDir, annDir, out, 2)
	cfg.Output.Debug = true

	m, _ := run(t, cfg)
	for _, p := range m.Patches {
		assert.FileExists(t, filepath.Join(out, DebugDir, p.ID+".png"))
	}
}

func TestRunLosslessWebP(t *testing.T) {
	imgDir, annDir := makeDataset(t)
	out := filepath.Join(t.TempDir(), "out")
	cfg := testConfig(imgDir, annDir, out, 2)
	cfg.Output.SaveExt = ".webp"
	cfg.Output.Lossless = true

	m, _ := run(t, cfg)
	require.Len(t, m.Patches, 10)

	proc := processing.NewProcessor(0)
	src, err := proc.LoadImage(filepath.Join(imgDir, "A.png"))
	require.NoError(t, err)
	got, err := proc.LoadImage(filepath.Join(out, "images", "A__128__0___0.webp"))
	require.NoError(t, err)

	want := imaging.Crop(src, image.Rect(0, 0, 128, 128))
	assert.Equal(t, want.Pix, imaging.Clone(got).Pix)
}

func TestRunNoImages(t *testing.T) {
	root := t.TempDir()
	annDir := filepath.Join(root, "ann")
	require.NoError(t, os.MkdirAll(annDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(annDir, "lonely.json"), []byte(docB), 0o644))

	cfg := testConfig(root, annDir, filepath.Join(root, "out"), 2)
	require.NoError(t, PrepareOutput(cfg))
	log, _ := test.NewNullLogger()
	s, err := New(cfg, log)
	require.NoError(t, err)

	m, err := s.Run(context.Background(), Sources(cfg))
	require.ErrorIs(t, err, types.ErrNoImagesProcessed)
	require.NotNil(t, m)
	assert.Equal(t, 1, m.Skipped)
	assert.Empty(t, m.Patches)
}

func TestSplitSkipsUnreadableImage(t *testing.T) {
	imgDir, annDir := makeDataset(t)
	out := filepath.Join(t.TempDir(), "out")
	cfg := testConfig(imgDir, annDir, out, 2)
	require.NoError(t, PrepareOutput(cfg))
	log, _ := test.NewNullLogger()
	s, err := New(cfg, log)
	require.NoError(t, err)

	records := []types.ImageRecord{
		{ID: "B", Filename: "B.png", ImageDir: imgDir, Width: 100, Height: 100},
		// recorded size disagrees with the file
		{ID: "A", Filename: "A.png", ImageDir: imgDir, Width: 10, Height: 10},
		{ID: "Z", Filename: "Z.png", ImageDir: imgDir, Width: 50, Height: 50},
	}
	m, err := s.Split(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Processed)
	assert.Equal(t, 2, m.Skipped)
	assert.Equal(t, "A", m.SkippedImages[0].ID)
	assert.Equal(t, "Z", m.SkippedImages[1].ID)
}

// saverFailingOn saves every patch except the one whose file is named fail
type saverFailingOn struct {
	next *processing.Processor
	fail string
}

func (s saverFailingOn) SaveImage(img image.Image, path string) error {
	if filepath.Base(path) == s.fail {
		return errors.New("disk full")
	}
	return s.next.SaveImage(img, path)
}

func TestSplitRemovesPartialOutput(t *testing.T) {
	imgDir, annDir := makeDataset(t)
	out := filepath.Join(t.TempDir(), "out")
	cfg := testConfig(imgDir, annDir, out, 1)
	cfg.Output.Debug = true
	require.NoError(t, PrepareOutput(cfg))

	log, _ := test.NewNullLogger()
	s, err := New(cfg, log)
	require.NoError(t, err)
	s.writer.Saver = saverFailingOn{next: s.proc, fail: "A__128__100___100.png"}

	m, err := s.Run(context.Background(), Sources(cfg))
	require.NoError(t, err)

	assert.Equal(t, 1, m.Processed)
	require.Len(t, m.SkippedImages, 2)
	assert.Equal(t, "A", m.SkippedImages[0].ID)
	require.Len(t, m.Patches, 1)
	assert.Equal(t, "B__128__0___0", m.Patches[0].ID)

	for _, dir := range []string{"images", "labels", DebugDir} {
		left, err := filepath.Glob(filepath.Join(out, dir, "A__*"))
		require.NoError(t, err)
		assert.Empty(t, left, dir)
	}
	assert.FileExists(t, filepath.Join(out, "images", "B__128__0___0.png"))
	assert.FileExists(t, filepath.Join(out, "labels", "B__128__0___0.txt"))
}

func TestSplitCancelled(t *testing.T) {
	imgDir, annDir := makeDataset(t)
	cfg := testConfig(imgDir, annDir, filepath.Join(t.TempDir(), "out"), 1)
	require.NoError(t, PrepareOutput(cfg))
	log, _ := test.NewNullLogger()
	s, err := New(cfg, log)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Split(ctx, []types.ImageRecord{{ID: "B", Filename: "B.png", ImageDir: imgDir, Width: 100, Height: 100}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig("img", "ann", t.TempDir(), 1)
	cfg.Split.Gaps = []int{128}
	_, err := New(cfg, nil)
	require.Error(t, err)
	assert.True(t, types.IsConfigError(err))
}

func TestProgress(t *testing.T) {
	log, hook := test.NewNullLogger()
	p := NewProgress(4, log)
	rec := types.ImageRecord{Filename: "P0001.jpg", Width: 4000, Height: 3000, Annotations: make([]types.Annotation, 12)}

	p.Step(rec, 20)
	p.Skip(rec, fmt.Errorf("boom"))
	assert.Equal(t, 2, p.Done())

	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "(25.0% 1:4) - Filename: P0001.jpg - width: 4000  - height: 3000  - Objects: 12    - Patches: 20", entries[0].Message)
	assert.Equal(t, logrus.WarnLevel, entries[1].Level)
	assert.Contains(t, entries[1].Message, "(50.0% 2:4)")
}

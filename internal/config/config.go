package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/menta2k/image-tiler/internal/utils"
	"github.com/menta2k/image-tiler/pkg/geometry"
	"github.com/menta2k/image-tiler/pkg/processing"
	"github.com/menta2k/image-tiler/pkg/types"
	"github.com/menta2k/image-tiler/pkg/window"
)

// DefaultClasses are the SODA-A category names, indexed by category id
var DefaultClasses = []string{
	"airplane", "helicopter", "small-vehicle", "large-vehicle",
	"ship", "container", "storage-tank", "swimming-pool",
	"windmill", "ignore",
}

// Config holds the application configuration
type Config struct {
	Split   SplitConfig   `json:"split"`
	Padding PaddingConfig `json:"padding"`
	Dataset DatasetConfig `json:"dataset"`
	Output  OutputConfig  `json:"output"`
	Workers int           `json:"workers"`
}

// SplitConfig holds the window layout and assignment thresholds
type SplitConfig struct {
	Sizes      []int     `json:"sizes"`
	Gaps       []int     `json:"gaps"`
	Rates      []float64 `json:"rates"`
	ImgRateThr float64   `json:"img_rate_thr"`
	IoFThr     float64   `json:"iof_thr"`
	Kernel     string    `json:"kernel"`
}

// PaddingConfig controls how edge patches are filled up to the window size
type PaddingConfig struct {
	NoPadding bool   `json:"no_padding"`
	Value     []int  `json:"value"`
	Hex       string `json:"hex"`
}

// DatasetConfig lists the input directories, paired by index
type DatasetConfig struct {
	ImgDirs          []string `json:"img_dirs"`
	AnnDirs          []string `json:"ann_dirs"`
	AnnExt           string   `json:"ann_ext"`
	ImageExt         string   `json:"image_ext"`
	IgnoreCategoryID int      `json:"ignore_category_id"`
	Classes          []string `json:"classes"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	SaveDir   string `json:"save_dir"`
	ImagesDir string `json:"images_dir"`
	LabelsDir string `json:"labels_dir"`
	SaveExt   string `json:"save_ext"`
	Quality   int    `json:"quality"`
	Lossless  bool   `json:"lossless"`
	Overwrite bool   `json:"overwrite"`
	Debug     bool   `json:"debug"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Split: SplitConfig{
			Sizes:      []int{800},
			Gaps:       []int{650},
			Rates:      []float64{1.0},
			ImgRateThr: 0.6,
			IoFThr:     0.7,
			Kernel:     geometry.KernelOrb,
		},
		Padding: PaddingConfig{
			Value: []int{0},
		},
		Dataset: DatasetConfig{
			AnnExt:           ".json",
			ImageExt:         ".jpg",
			IgnoreCategoryID: 9,
			Classes:          append([]string(nil), DefaultClasses...),
		},
		Output: OutputConfig{
			SaveDir:   ".",
			ImagesDir: "images",
			LabelsDir: "labels",
			SaveExt:   ".jpg",
			Quality:   processing.DefaultQuality,
		},
		Workers: 10,
	}
}

// LoadFromFile loads configuration from a JSON file.
// Fields missing from the file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}

	return nil
}

// Validate checks if the configuration is valid. Every failure is a
// *types.ConfigError.
func (c *Config) Validate() error {
	s := c.Split
	if len(s.Sizes) == 0 {
		return types.NewConfigError("split.sizes", "at least one window size is required")
	}
	if len(s.Sizes) != len(s.Gaps) {
		return types.NewConfigError("split.gaps", "got %d sizes but %d gaps", len(s.Sizes), len(s.Gaps))
	}
	if len(s.Rates) == 0 {
		return types.NewConfigError("split.rates", "at least one rate is required")
	}
	if len(s.Sizes) != 1 && len(s.Rates) != 1 {
		return types.NewConfigError("split.rates", "multiple sizes and multiple rates cannot be combined")
	}
	for _, r := range s.Rates {
		if r <= 0 {
			return types.NewConfigError("split.rates", "rate must be positive, got %v", r)
		}
	}
	for _, sc := range c.ScalePairs() {
		if err := sc.Validate(); err != nil {
			return err
		}
	}

	if s.ImgRateThr < 0 || s.ImgRateThr > 1 {
		return types.NewConfigError("split.img_rate_thr", "must be between 0 and 1, got %v", s.ImgRateThr)
	}
	if s.IoFThr < 0 || s.IoFThr > 1 {
		return types.NewConfigError("split.iof_thr", "must be between 0 and 1, got %v", s.IoFThr)
	}
	if _, err := geometry.NewClipper(s.Kernel); err != nil {
		return err
	}

	if l := len(c.Padding.Value); c.Padding.Hex == "" && l != 0 && l != 1 && l != 3 {
		return types.NewConfigError("padding.value", "expected 1 or 3 values, got %d", l)
	}

	if len(c.Dataset.ImgDirs) == 0 {
		return types.NewConfigError("dataset.img_dirs", "at least one image directory is required")
	}
	if len(c.Dataset.AnnDirs) != len(c.Dataset.ImgDirs) {
		return types.NewConfigError("dataset.ann_dirs", "got %d image dirs but %d annotation dirs", len(c.Dataset.ImgDirs), len(c.Dataset.AnnDirs))
	}
	if !utils.IsImageFile("x" + utils.NormalizeExt(c.Dataset.ImageExt)) {
		return types.NewConfigError("dataset.image_ext", "unsupported image extension %q", c.Dataset.ImageExt)
	}

	if c.Output.SaveDir == "" {
		return types.NewConfigError("output.save_dir", "must not be empty")
	}
	if c.Output.ImagesDir == "" || c.Output.LabelsDir == "" {
		return types.NewConfigError("output.images_dir", "images and labels directories must be named")
	}
	if c.Output.ImagesDir == c.Output.LabelsDir {
		return types.NewConfigError("output.labels_dir", "must differ from output.images_dir")
	}
	if !processing.SupportedSaveExt(c.Output.SaveExt) {
		return types.NewConfigError("output.save_ext", "unsupported extension %q", c.Output.SaveExt)
	}
	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return types.NewConfigError("output.quality", "must be between 1 and 100")
	}

	if c.Workers < 1 {
		return types.NewConfigError("workers", "must be at least 1, got %d", c.Workers)
	}

	return nil
}

// ScalePairs expands sizes and gaps by every rate. A rate only changes the
// window size: a rate of 0.5 doubles the window, pixels are never resampled.
func (c *Config) ScalePairs() []window.Scale {
	var out []window.Scale
	for _, rate := range c.Split.Rates {
		if rate <= 0 {
			continue
		}
		for i, size := range c.Split.Sizes {
			gap := 0
			if i < len(c.Split.Gaps) {
				gap = c.Split.Gaps[i]
			}
			out = append(out, window.Scale{
				Size: int(float64(size) / rate),
				Gap:  int(float64(gap) / rate),
			})
		}
	}
	return out
}

// Categories returns the configured class names as id/name pairs
func (c *Config) Categories() []types.Category {
	out := make([]types.Category, len(c.Dataset.Classes))
	for i, name := range c.Dataset.Classes {
		out[i] = types.Category{ID: i, Name: name}
	}
	return out
}

// GetConfigPath returns the per-user configuration file path. The CLI reads
// it when no -config flag is given and the file exists.
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "image-tiler", "config.json")
}

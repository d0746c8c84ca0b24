package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/image-tiler/pkg/types"
	"github.com/menta2k/image-tiler/pkg/window"
)

func validConfig() *Config {
	c := Default()
	c.Dataset.ImgDirs = []string{"data/images"}
	c.Dataset.AnnDirs = []string{"data/annotations"}
	return c
}

func TestDefaultIsValidOnceInputsAreSet(t *testing.T) {
	c := Default()
	err := c.Validate()
	require.Error(t, err)
	assert.True(t, types.IsConfigError(err))

	require.NoError(t, validConfig().Validate())
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name  string
		field string
		edit  func(c *Config)
	}{
		{"gap equals size", "split.gaps", func(c *Config) { c.Split.Gaps = []int{800} }},
		{"size missing", "split.sizes", func(c *Config) { c.Split.Sizes = nil; c.Split.Gaps = nil }},
		{"sizes gaps mismatch", "split.gaps", func(c *Config) { c.Split.Sizes = []int{800, 1024} }},
		{"sizes and rates", "split.rates", func(c *Config) {
			c.Split.Sizes = []int{800, 1024}
			c.Split.Gaps = []int{200, 200}
			c.Split.Rates = []float64{1, 0.5}
		}},
		{"zero rate", "split.rates", func(c *Config) { c.Split.Rates = []float64{0} }},
		{"img rate", "split.img_rate_thr", func(c *Config) { c.Split.ImgRateThr = 1.5 }},
		{"iof", "split.iof_thr", func(c *Config) { c.Split.IoFThr = -0.1 }},
		{"kernel", "split.kernel", func(c *Config) { c.Split.Kernel = "shapely" }},
		{"padding", "padding.value", func(c *Config) { c.Padding.Value = []int{1, 2} }},
		{"dirs", "dataset.ann_dirs", func(c *Config) { c.Dataset.AnnDirs = nil }},
		{"image ext", "dataset.image_ext", func(c *Config) { c.Dataset.ImageExt = ".gif" }},
		{"save ext", "output.save_ext", func(c *Config) { c.Output.SaveExt = ".gif" }},
		{"same dirs", "output.labels_dir", func(c *Config) { c.Output.LabelsDir = c.Output.ImagesDir }},
		{"quality", "output.quality", func(c *Config) { c.Output.Quality = 0 }},
		{"workers", "workers", func(c *Config) { c.Workers = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validConfig()
			tc.edit(c)
			err := c.Validate()
			require.Error(t, err)
			var ce *types.ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tc.field, ce.Field)
		})
	}
}

func TestScalePairs(t *testing.T) {
	c := validConfig()
	assert.Equal(t, []window.Scale{{Size: 800, Gap: 650}}, c.ScalePairs())

	c.Split.Rates = []float64{1, 0.5, 1.5}
	assert.Equal(t, []window.Scale{
		{Size: 800, Gap: 650},
		{Size: 1600, Gap: 1300},
		{Size: 533, Gap: 433},
	}, c.ScalePairs())
	require.NoError(t, c.Validate())

	c = validConfig()
	c.Split.Sizes = []int{1024, 512}
	c.Split.Gaps = []int{200, 100}
	assert.Equal(t, []window.Scale{{Size: 1024, Gap: 200}, {Size: 512, Gap: 100}}, c.ScalePairs())
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "split.json")
	c := validConfig()
	c.Workers = 3
	c.Padding.Hex = "#727272"
	require.NoError(t, c.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, c, loaded)
}

func TestLoadKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"split": {"sizes": [1024], "gaps": [200]}, "workers": 2}`), 0o644))

	c, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, []int{1024}, c.Split.Sizes)
	assert.Equal(t, 0.7, c.Split.IoFThr)
	assert.Equal(t, ".jpg", c.Output.SaveExt)
	assert.Equal(t, 2, c.Workers)

	_, err = LoadFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o644))
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestCategories(t *testing.T) {
	cats := validConfig().Categories()
	require.Len(t, cats, 10)
	assert.Equal(t, types.Category{ID: 9, Name: "ignore"}, cats[9])
}

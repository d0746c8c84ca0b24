package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	imagetiler "github.com/menta2k/image-tiler"
	"github.com/menta2k/image-tiler/internal/config"
	"github.com/menta2k/image-tiler/internal/logging"
	"github.com/menta2k/image-tiler/internal/utils"
	"github.com/menta2k/image-tiler/pkg/splitter"
)

func main() {
	if err := mainWithErr(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}

func mainWithErr(args []string) error {
	fs := flag.NewFlagSet("image-tiler", flag.ContinueOnError)

	var configPath, writeConfig string
	var imgDirs, annDirs, sizes, gaps, rates, padding string
	var showVersion, verbose bool

	def := config.Default()
	cfg := config.Default()

	fs.StringVar(&configPath, "config", "", "JSON config file, defaults to ~/.config/image-tiler/config.json when present; flags set on the command line override it")
	fs.StringVar(&writeConfig, "write-config", "", "write the effective config to this path and exit")
	fs.BoolVar(&showVersion, "version", false, "print version and exit")
	fs.BoolVar(&verbose, "v", false, "debug logging")

	fs.StringVar(&imgDirs, "img-dirs", "", "comma separated image directories")
	fs.StringVar(&annDirs, "ann-dirs", "", "comma separated annotation directories, paired with -img-dirs")
	fs.StringVar(&cfg.Dataset.AnnExt, "ann-ext", def.Dataset.AnnExt, "annotation file extension")
	fs.StringVar(&cfg.Dataset.ImageExt, "image-ext", def.Dataset.ImageExt, "source image extension")
	fs.IntVar(&cfg.Dataset.IgnoreCategoryID, "ignore-category", def.Dataset.IgnoreCategoryID, "category id of ignore regions")

	fs.StringVar(&sizes, "sizes", "800", "comma separated window sizes")
	fs.StringVar(&gaps, "gaps", "650", "comma separated window gaps, one per size")
	fs.StringVar(&rates, "rates", "1", "comma separated rates; a rate only changes the window size")
	fs.Float64Var(&cfg.Split.ImgRateThr, "img-rate-thr", def.Split.ImgRateThr, "minimal fraction of a window covered by the image")
	fs.Float64Var(&cfg.Split.IoFThr, "iof-thr", def.Split.IoFThr, "minimal IoF between an object and a window")
	fs.StringVar(&cfg.Split.Kernel, "kernel", def.Split.Kernel, "polygon clipping kernel: orb|box")

	fs.BoolVar(&cfg.Padding.NoPadding, "no-padding", def.Padding.NoPadding, "do not pad edge patches to the window size")
	fs.StringVar(&padding, "padding-value", "0", "padding value: one grey level or R,G,B")
	fs.StringVar(&cfg.Padding.Hex, "padding-hex", def.Padding.Hex, "padding colour as #rrggbb, overrides -padding-value")

	fs.StringVar(&cfg.Output.SaveDir, "save-dir", def.Output.SaveDir, "output root")
	fs.StringVar(&cfg.Output.ImagesDir, "images-dir", def.Output.ImagesDir, "patch image directory below the output root")
	fs.StringVar(&cfg.Output.LabelsDir, "labels-dir", def.Output.LabelsDir, "label directory below the output root")
	fs.StringVar(&cfg.Output.SaveExt, "save-ext", def.Output.SaveExt, "patch format: .jpg|.png|.tif|.bmp|.webp")
	fs.IntVar(&cfg.Output.Quality, "quality", def.Output.Quality, "JPEG/WebP quality (1-100)")
	fs.BoolVar(&cfg.Output.Overwrite, "overwrite", def.Output.Overwrite, "reuse existing output directories")
	fs.BoolVar(&cfg.Output.Lossless, "lossless", def.Output.Lossless, "lossless WebP patches")
	fs.BoolVar(&cfg.Output.Debug, "debug", def.Output.Debug, "write annotation overlays for every patch")

	fs.IntVar(&cfg.Workers, "workers", def.Workers, "number of images split in parallel")

	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parse flags")
	}
	if showVersion {
		fmt.Println("image-tiler", imagetiler.Version)
		return nil
	}

	if configPath == "" && utils.FileExists(config.GetConfigPath()) {
		configPath = config.GetConfigPath()
	}
	if configPath != "" {
		fileCfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return err
		}
		flagCfg := cfg
		cfg = fileCfg
		var visitErr error
		fs.Visit(func(f *flag.Flag) {
			if visitErr == nil {
				visitErr = applyFlag(cfg, flagCfg, f.Name, imgDirs, annDirs, sizes, gaps, rates, padding)
			}
		})
		if visitErr != nil {
			return visitErr
		}
	} else {
		for _, name := range []string{"img-dirs", "ann-dirs", "sizes", "gaps", "rates", "padding-value"} {
			if err := applyFlag(cfg, cfg, name, imgDirs, annDirs, sizes, gaps, rates, padding); err != nil {
				return err
			}
		}
	}

	if writeConfig != "" {
		if err := cfg.SaveToFile(writeConfig); err != nil {
			return err
		}
		fmt.Println("wrote", writeConfig)
		return nil
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := splitter.PrepareOutput(cfg); err != nil {
		return err
	}

	level := logrus.InfoLevel
	if verbose {
		level = logrus.DebugLevel
	}
	log, closer, err := logging.New(cfg.Output.SaveDir, level)
	if err != nil {
		log.Warnf("log file disabled: %v", err)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	manifest, err := imagetiler.SplitWithLogger(ctx, cfg, log)
	if err != nil {
		return err
	}
	log.Infof("Total images number: %d", len(manifest.Patches))
	log.Infof("Manifest written to %s", filepath.Join(cfg.Output.SaveDir, splitter.ManifestFile))
	return nil
}

// applyFlag copies the value of one explicitly set flag from src into dst.
// List flags are parsed from their raw strings.
func applyFlag(dst, src *config.Config, name, imgDirs, annDirs, sizes, gaps, rates, padding string) error {
	var err error
	switch name {
	case "img-dirs":
		dst.Dataset.ImgDirs = splitList(imgDirs)
	case "ann-dirs":
		dst.Dataset.AnnDirs = splitList(annDirs)
	case "ann-ext":
		dst.Dataset.AnnExt = src.Dataset.AnnExt
	case "image-ext":
		dst.Dataset.ImageExt = src.Dataset.ImageExt
	case "ignore-category":
		dst.Dataset.IgnoreCategoryID = src.Dataset.IgnoreCategoryID
	case "sizes":
		dst.Split.Sizes, err = parseInts("sizes", sizes)
	case "gaps":
		dst.Split.Gaps, err = parseInts("gaps", gaps)
	case "rates":
		dst.Split.Rates, err = parseFloats("rates", rates)
	case "img-rate-thr":
		dst.Split.ImgRateThr = src.Split.ImgRateThr
	case "iof-thr":
		dst.Split.IoFThr = src.Split.IoFThr
	case "kernel":
		dst.Split.Kernel = src.Split.Kernel
	case "no-padding":
		dst.Padding.NoPadding = src.Padding.NoPadding
	case "padding-value":
		dst.Padding.Value, err = parseInts("padding-value", padding)
	case "padding-hex":
		dst.Padding.Hex = src.Padding.Hex
	case "save-dir":
		dst.Output.SaveDir = src.Output.SaveDir
	case "images-dir":
		dst.Output.ImagesDir = src.Output.ImagesDir
	case "labels-dir":
		dst.Output.LabelsDir = src.Output.LabelsDir
	case "save-ext":
		dst.Output.SaveExt = src.Output.SaveExt
	case "quality":
		dst.Output.Quality = src.Output.Quality
	case "overwrite":
		dst.Output.Overwrite = src.Output.Overwrite
	case "lossless":
		dst.Output.Lossless = src.Output.Lossless
	case "debug":
		dst.Output.Debug = src.Output.Debug
	case "workers":
		dst.Workers = src.Workers
	}
	return err
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseInts(name, s string) ([]int, error) {
	var out []int
	for _, part := range splitList(s) {
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, errors.Wrapf(err, "-%s", name)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseFloats(name, s string) ([]float64, error) {
	var out []float64
	for _, part := range splitList(s) {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "-%s", name)
		}
		out = append(out, v)
	}
	return out, nil
}

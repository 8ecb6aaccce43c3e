package main

import (
	"flag"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/Noofbiz/tripletloader/datasets"
)

// defaultConfigYAML is used when no -config is given, and written out by
// -write-config as a starting point. Flags set on the command line always
// override the values of the configuration.
const defaultConfigYAML = `# balance configuration
dir: ./images

dataset:
  labels: inferred
  label_mode: int
  color_mode: rgb
  num_classes_per_batch: 2
  num_images_per_class: 4
  image_size: [256, 256]
  shuffle: true
  interpolation: bilinear
  follow_links: false
  crop_to_aspect_ratio: false
  validation_split: 0
  safe_triplet: false
  samples_per_epoch: 0
  workers: 0

# Batches drawn; 0 drains a bounded stream.
batches: 100
decode: false
parallel: false
plot_dir: plots

audit:
  trials: 0
  batches: 0
`

// Config of the balance command.
type Config struct {
	Dir     string           `yaml:"dir"`
	Dataset datasets.Options `yaml:"dataset"`

	Batches  int    `yaml:"batches"`
	Decode   bool   `yaml:"decode"`
	Parallel bool   `yaml:"parallel"`
	PlotDir  string `yaml:"plot_dir"`

	Audit AuditConfig `yaml:"audit"`
}

// AuditConfig configures the Monte Carlo coverage audit. Zero trials skips it.
type AuditConfig struct {
	Trials  int    `yaml:"trials"`
	Batches int    `yaml:"batches"`
	Seed    *int64 `yaml:"seed"`
}

// loadConfig reads the YAML configuration at path, or the embedded default if
// path is empty.
func loadConfig(path string) (*Config, error) {
	data := []byte(defaultConfigYAML)
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// flagValues holds the command line flags that mirror configuration fields.
type flagValues struct {
	dir string

	labels            string
	labelMode         string
	classNames        string
	colorMode         string
	classesPerBatch   int
	imagesPerClass    int
	height, width     int
	shuffle           bool
	seed              int64
	validationSplit   float64
	subset            string
	interpolation     string
	followLinks       bool
	cropToAspectRatio bool
	safeTriplet       bool
	samplesPerEpoch   int
	workers           int
	batches           int
	decode, parallel  bool
	plotDir           string
	auditTrials       int
	auditBatches      int
	auditSeed         int64
}

func registerFlags(fs *flag.FlagSet) *flagValues {
	def := datasets.DefaultOptions()
	v := &flagValues{}
	fs.StringVar(&v.dir, "dir", "./images", "directory with one subdirectory per class")
	fs.StringVar(&v.labels, "labels", "inferred", `"inferred", "none", or a comma-separated label per file`)
	fs.StringVar(&v.labelMode, "label-mode", string(def.LabelMode), "label encoding: int, binary, categorical or none")
	fs.StringVar(&v.classNames, "class-names", "", "comma-separated class subdirectories, in label order")
	fs.StringVar(&v.colorMode, "color-mode", string(def.ColorMode), "grayscale, rgb or rgba")
	fs.IntVar(&v.classesPerBatch, "classes-per-batch", def.NumClassesPerBatch, "distinct classes in each batch")
	fs.IntVar(&v.imagesPerClass, "images-per-class", def.NumImagesPerClass, "images of each class in a batch")
	fs.IntVar(&v.height, "height", def.ImageSize[0], "image height")
	fs.IntVar(&v.width, "width", def.ImageSize[1], "image width")
	fs.BoolVar(&v.shuffle, "shuffle", def.Shuffle, "shuffle the files of each class")
	fs.Int64Var(&v.seed, "seed", 0, "random seed (required with -validation-split)")
	fs.Float64Var(&v.validationSplit, "validation-split", 0, "fraction of each class reserved for validation")
	fs.StringVar(&v.subset, "subset", "", "training or validation")
	fs.StringVar(&v.interpolation, "interpolation", string(def.Interpolation), "resize filter")
	fs.BoolVar(&v.followLinks, "follow-links", false, "follow symbolic links to directories")
	fs.BoolVar(&v.cropToAspectRatio, "crop", false, "crop images to the target aspect ratio before resizing")
	fs.BoolVar(&v.safeTriplet, "safe-triplet", false, "plan epochs so every file is drawn evenly")
	fs.IntVar(&v.samplesPerEpoch, "samples-per-epoch", 0, "bound the stream to this many examples (requires -safe-triplet)")
	fs.IntVar(&v.workers, "workers", 0, "images decoded concurrently per batch (0 = NumCPU)")
	fs.IntVar(&v.batches, "batches", 100, "number of batches to draw (0 drains a bounded stream)")
	fs.BoolVar(&v.decode, "decode", false, "decode the images of every batch, not just the indices")
	fs.BoolVar(&v.parallel, "parallel", false, "decode through gomlx's parallel dataset (implies -decode)")
	fs.StringVar(&v.plotDir, "plot", "plots", "output directory for plots (empty disables)")
	fs.IntVar(&v.auditTrials, "audit-trials", 0, "run the Monte Carlo coverage audit with this many trials")
	fs.IntVar(&v.auditBatches, "audit-batches", 0, "batches per audit trial (0 drains a bounded stream)")
	fs.Int64Var(&v.auditSeed, "audit-seed", 0, "seed of the audit trials")
	return v
}

// apply overrides cfg with the flags explicitly set on the command line.
func (v *flagValues) apply(fs *flag.FlagSet, cfg *Config) error {
	o := &cfg.Dataset
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "dir":
			cfg.Dir = v.dir
		case "labels":
			o.Labels = parseLabelsFlag(v.labels)
		case "label-mode":
			o.LabelMode = datasets.LabelMode(v.labelMode)
		case "class-names":
			o.ClassNames = splitList(v.classNames)
		case "color-mode":
			o.ColorMode = datasets.ColorMode(v.colorMode)
		case "classes-per-batch":
			o.NumClassesPerBatch = v.classesPerBatch
		case "images-per-class":
			o.NumImagesPerClass = v.imagesPerClass
		case "height":
			o.ImageSize[0] = v.height
		case "width":
			o.ImageSize[1] = v.width
		case "shuffle":
			o.Shuffle = v.shuffle
		case "seed":
			o.Seed = datasets.SeedOf(v.seed)
		case "validation-split":
			o.ValidationSplit = v.validationSplit
		case "subset":
			o.Subset = datasets.Subset(v.subset)
		case "interpolation":
			o.Interpolation = datasets.Interpolation(v.interpolation)
		case "follow-links":
			o.FollowLinks = v.followLinks
		case "crop":
			o.CropToAspectRatio = v.cropToAspectRatio
		case "safe-triplet":
			o.SafeTriplet = v.safeTriplet
		case "samples-per-epoch":
			o.SamplesPerEpoch = v.samplesPerEpoch
		case "workers":
			o.Workers = v.workers
		case "batches":
			cfg.Batches = v.batches
		case "decode":
			cfg.Decode = v.decode
		case "parallel":
			cfg.Parallel = v.parallel
		case "plot":
			cfg.PlotDir = v.plotDir
		case "audit-trials":
			cfg.Audit.Trials = v.auditTrials
		case "audit-batches":
			cfg.Audit.Batches = v.auditBatches
		case "audit-seed":
			cfg.Audit.Seed = datasets.SeedOf(v.auditSeed)
		}
	})
	if cfg.Batches < 0 {
		return errors.Errorf("batches must be >= 0, got %d", cfg.Batches)
	}
	if cfg.Parallel {
		cfg.Decode = true
	}
	return nil
}

// parseLabelsFlag turns "inferred", "none", "0,1,1" or "cat,dog" into an
// Options.Labels value.
func parseLabelsFlag(s string) any {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "inferred":
		return datasets.LabelsInferred
	case "none":
		return datasets.LabelsNone
	}
	items := splitList(s)
	ints := make([]int, len(items))
	for i, item := range items {
		n, err := strconv.Atoi(item)
		if err != nil {
			return items
		}
		ints[i] = n
	}
	return ints
}

func splitList(s string) []string {
	var out []string
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

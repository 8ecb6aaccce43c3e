package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Noofbiz/tripletloader/datasets"
)

func TestDefaultConfig(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	require.Equal(t, "./images", cfg.Dir)
	require.Equal(t, 100, cfg.Batches)
	require.Equal(t, "plots", cfg.PlotDir)

	// The embedded dataset options are the library defaults.
	def := datasets.DefaultOptions()
	opts := cfg.Dataset
	require.Equal(t, "inferred", opts.Labels)
	require.Equal(t, def.LabelMode, opts.LabelMode)
	require.Equal(t, def.ColorMode, opts.ColorMode)
	require.Equal(t, def.NumClassesPerBatch, opts.NumClassesPerBatch)
	require.Equal(t, def.NumImagesPerClass, opts.NumImagesPerClass)
	require.Equal(t, def.ImageSize, opts.ImageSize)
	require.Equal(t, def.Shuffle, opts.Shuffle)
	require.Equal(t, def.Interpolation, opts.Interpolation)
	require.Nil(t, opts.Seed)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "balance.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
dir: /data/faces
dataset:
  labels: [0, 1, 1]
  label_mode: categorical
  num_classes_per_batch: 4
  image_size: [64, 32]
  seed: 7
  validation_split: 0.25
  subset: validation
audit:
  trials: 3
`), 0o644))
	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "/data/faces", cfg.Dir)
	require.Equal(t, []any{0, 1, 1}, cfg.Dataset.Labels)
	require.Equal(t, datasets.LabelModeCategorical, cfg.Dataset.LabelMode)
	require.Equal(t, [2]int{64, 32}, cfg.Dataset.ImageSize)
	require.Equal(t, int64(7), *cfg.Dataset.Seed)
	require.Equal(t, datasets.SubsetValidation, cfg.Dataset.Subset)
	require.Equal(t, 3, cfg.Audit.Trials)

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestFlagsOverrideConfig(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)

	fs := flag.NewFlagSet("balance", flag.ContinueOnError)
	values := registerFlags(fs)
	require.NoError(t, fs.Parse([]string{
		"-dir", "/tmp/x",
		"-labels", "cat,dog,cat",
		"-classes-per-batch", "3",
		"-width", "64",
		"-seed", "11",
		"-safe-triplet",
		"-parallel",
		"-audit-seed", "5",
	}))
	require.NoError(t, values.apply(fs, cfg))

	require.Equal(t, "/tmp/x", cfg.Dir)
	require.Equal(t, []string{"cat", "dog", "cat"}, cfg.Dataset.Labels)
	require.Equal(t, 3, cfg.Dataset.NumClassesPerBatch)
	require.Equal(t, [2]int{256, 64}, cfg.Dataset.ImageSize)
	require.Equal(t, int64(11), *cfg.Dataset.Seed)
	require.True(t, cfg.Dataset.SafeTriplet)
	require.True(t, cfg.Decode, "-parallel implies -decode")
	require.Equal(t, int64(5), *cfg.Audit.Seed)
	// Flags not given keep the configured values.
	require.Equal(t, 4, cfg.Dataset.NumImagesPerClass)
	require.Equal(t, 100, cfg.Batches)
}

func TestParseLabelsFlag(t *testing.T) {
	require.Equal(t, datasets.LabelsInferred, parseLabelsFlag("inferred"))
	require.Equal(t, datasets.LabelsNone, parseLabelsFlag("None"))
	require.Equal(t, []int{0, 1, 1}, parseLabelsFlag("0, 1,1"))
	require.Equal(t, []string{"a", "1"}, parseLabelsFlag("a,1"))
}

func TestClassesFromLabels(t *testing.T) {
	for _, mode := range []datasets.LabelMode{datasets.LabelModeInt, datasets.LabelModeCategorical} {
		labels, err := datasets.EncodeLabels(mode, []int{2, 0, 1}, 3)
		require.NoError(t, err)
		tensor, err := labels.ToGomlxTensor()
		require.NoError(t, err)
		classes, err := classesFromLabels(tensor)
		require.NoError(t, err)
		require.Equal(t, []int{2, 0, 1}, classes, "mode %s", mode)
	}

	labels, err := datasets.EncodeLabels(datasets.LabelModeBinary, []int{1, 0}, 2)
	require.NoError(t, err)
	tensor, err := labels.ToGomlxTensor()
	require.NoError(t, err)
	classes, err := classesFromLabels(tensor)
	require.NoError(t, err)
	require.Equal(t, []int{1, 0}, classes)
}

package datasets

import (
	"github.com/disintegration/imaging"
)

// LabelMode selects how labels are encoded in the yielded label tensor.
type LabelMode string

const (
	// LabelModeInt yields the class index as an int32 scalar per example.
	LabelModeInt LabelMode = "int"
	// LabelModeBinary yields a float32 0.0 or 1.0 per example, shaped [batch, 1].
	// Only valid for datasets with exactly two classes.
	LabelModeBinary LabelMode = "binary"
	// LabelModeCategorical yields one-hot float32 rows of length NumClasses.
	LabelModeCategorical LabelMode = "categorical"
	// LabelModeNone suppresses labels: only the image tensor is yielded.
	LabelModeNone LabelMode = "none"
)

// ColorMode selects the number of channels of the decoded images.
type ColorMode string

const (
	ColorModeGrayscale ColorMode = "grayscale"
	ColorModeRGB       ColorMode = "rgb"
	ColorModeRGBA      ColorMode = "rgba"
)

// Channels returns the number of channels for the color mode, or 0 if the
// mode is not known.
func (c ColorMode) Channels() int {
	switch c {
	case ColorModeGrayscale:
		return 1
	case ColorModeRGB:
		return 3
	case ColorModeRGBA:
		return 4
	}
	return 0
}

// Subset selects which side of the validation split a dataset yields.
type Subset string

const (
	SubsetTraining   Subset = "training"
	SubsetValidation Subset = "validation"
)

// Interpolation names the resampling filter used when resizing images.
type Interpolation string

const (
	InterpolationBilinear      Interpolation = "bilinear"
	InterpolationNearest       Interpolation = "nearest"
	InterpolationBicubic       Interpolation = "bicubic"
	InterpolationArea          Interpolation = "area"
	InterpolationLanczos3      Interpolation = "lanczos3"
	InterpolationLanczos5      Interpolation = "lanczos5"
	InterpolationGaussian      Interpolation = "gaussian"
	InterpolationMitchellCubic Interpolation = "mitchellcubic"
)

var interpolationFilters = map[Interpolation]imaging.ResampleFilter{
	InterpolationBilinear:      imaging.Linear,
	InterpolationNearest:       imaging.NearestNeighbor,
	InterpolationBicubic:       imaging.CatmullRom,
	InterpolationArea:          imaging.Box,
	InterpolationLanczos3:      imaging.Lanczos,
	InterpolationLanczos5:      imaging.Lanczos,
	InterpolationGaussian:      imaging.Gaussian,
	InterpolationMitchellCubic: imaging.MitchellNetravali,
}

// Filter returns the imaging resample filter for the interpolation.
func (i Interpolation) Filter() (imaging.ResampleFilter, bool) {
	f, ok := interpolationFilters[i]
	return f, ok
}

type labelSentinel string

const (
	// LabelsInferred derives one label per class subdirectory. A nil Labels
	// field or the string "inferred" mean the same.
	LabelsInferred labelSentinel = "inferred"
	// LabelsNone suppresses labels altogether. The string "none" means the same.
	LabelsNone labelSentinel = "none"
)

// Options holds every argument of NewBalancedImageDataset. Start from
// DefaultOptions: the zero value disables shuffling.
type Options struct {
	// Labels is nil, LabelsInferred, LabelsNone, or an explicit list with one
	// label per discovered file ([]int, []int32, []int64, []string, or []any
	// holding ints or strings). Files are ordered as discovered: class
	// directories in order, files sorted within each directory.
	Labels any `yaml:"labels"`

	// LabelMode selects the label encoding. Forced to LabelModeNone when
	// Labels is LabelsNone.
	LabelMode LabelMode `yaml:"label_mode"`

	// ClassNames optionally fixes the order of the class subdirectories. It
	// must name exactly the subdirectories found, and is only allowed with
	// inferred labels.
	ClassNames []string `yaml:"class_names"`

	ColorMode ColorMode `yaml:"color_mode"`

	// NumClassesPerBatch distinct classes each contribute NumImagesPerClass
	// images to every balanced batch.
	NumClassesPerBatch int `yaml:"num_classes_per_batch"`
	NumImagesPerClass  int `yaml:"num_images_per_class"`

	// ImageSize is (height, width) of the yielded images.
	ImageSize [2]int `yaml:"image_size"`

	Shuffle bool `yaml:"shuffle"`

	// Seed for the split and the sampler. If nil a time based seed is used,
	// which is not allowed together with Subset.
	Seed *int64 `yaml:"seed"`

	// ValidationSplit is the fraction of each class reserved for validation.
	// Zero disables splitting.
	ValidationSplit float64 `yaml:"validation_split"`
	Subset          Subset  `yaml:"subset"`

	Interpolation     Interpolation `yaml:"interpolation"`
	FollowLinks       bool          `yaml:"follow_links"`
	CropToAspectRatio bool          `yaml:"crop_to_aspect_ratio"`

	// SafeTriplet plans each epoch so that every file is drawn a near uniform
	// number of times, whatever the class sizes.
	SafeTriplet bool `yaml:"safe_triplet"`

	// SamplesPerEpoch bounds the stream to SamplesPerEpoch/BatchSize batches.
	// Only valid with SafeTriplet, and must be a multiple of the batch size.
	SamplesPerEpoch int `yaml:"samples_per_epoch"`

	// Workers is the number of images decoded concurrently per batch. If 0,
	// runtime.NumCPU() is used.
	Workers int `yaml:"workers"`
}

// DefaultOptions returns the options used when an argument is not given.
func DefaultOptions() Options {
	return Options{
		Labels:             LabelsInferred,
		LabelMode:          LabelModeInt,
		ColorMode:          ColorModeRGB,
		NumClassesPerBatch: 2,
		NumImagesPerClass:  4,
		ImageSize:          [2]int{256, 256},
		Shuffle:            true,
		Interpolation:      InterpolationBilinear,
	}
}

// SeedOf returns a pointer to seed, for use in Options.Seed.
func SeedOf(seed int64) *int64 {
	return &seed
}

// BatchSize is NumClassesPerBatch * NumImagesPerClass.
func (o *Options) BatchSize() int {
	return o.NumClassesPerBatch * o.NumImagesPerClass
}

// withDefaults fills in unset enum and size fields. Shuffle and Labels are
// left alone: their zero values are meaningful.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.LabelMode == "" {
		o.LabelMode = def.LabelMode
	}
	if o.ColorMode == "" {
		o.ColorMode = def.ColorMode
	}
	if o.NumClassesPerBatch == 0 {
		o.NumClassesPerBatch = def.NumClassesPerBatch
	}
	if o.NumImagesPerClass == 0 {
		o.NumImagesPerClass = def.NumImagesPerClass
	}
	if o.ImageSize == [2]int{} {
		o.ImageSize = def.ImageSize
	}
	if o.Interpolation == "" {
		o.Interpolation = def.Interpolation
	}
	return o
}

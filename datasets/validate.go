package datasets

import (
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

type labelKind int

const (
	labelsInferred labelKind = iota
	labelsNone
	labelsExplicit
)

// labelSpec is the parsed form of Options.Labels.
type labelSpec struct {
	kind labelKind

	// Explicit labels, one per file, already mapped to class indices.
	values []int

	// For explicit string labels: the sorted unique names, indexed by values.
	names []string
}

// numClasses of an explicit label list.
func (l *labelSpec) numClasses() int {
	if l.names != nil {
		return len(l.names)
	}
	n := 0
	for _, v := range l.values {
		if v+1 > n {
			n = v + 1
		}
	}
	return n
}

// parseLabels checks the type of Options.Labels.
func parseLabels(labels any) (*labelSpec, error) {
	switch v := labels.(type) {
	case nil:
		return &labelSpec{kind: labelsInferred}, nil
	case labelSentinel:
		return parseLabelString(string(v))
	case string:
		return parseLabelString(v)
	case []int:
		return intLabels(v)
	case []int32:
		return intLabels(convertInts(v))
	case []int64:
		return intLabels(convertInts(v))
	case []string:
		return stringLabels(v), nil
	case []any:
		return anyLabels(v)
	}
	return nil, configErrorf("labels",
		`labels should be "inferred", "none" or a list of integer or string labels, got %T`, labels)
}

func parseLabelString(s string) (*labelSpec, error) {
	switch strings.ToLower(s) {
	case string(LabelsInferred), "":
		return &labelSpec{kind: labelsInferred}, nil
	case string(LabelsNone):
		return &labelSpec{kind: labelsNone}, nil
	}
	return nil, configErrorf("labels",
		`labels should be "inferred", "none" or a list of integer or string labels, got %q`, s)
}

func convertInts[T int32 | int64](in []T) []int {
	out := make([]int, len(in))
	for i, v := range in {
		out[i] = int(v)
	}
	return out
}

func intLabels(values []int) (*labelSpec, error) {
	for i, v := range values {
		if v < 0 {
			return nil, configErrorf("labels", "label %d at position %d is negative", v, i)
		}
	}
	return &labelSpec{kind: labelsExplicit, values: values}, nil
}

func stringLabels(values []string) *labelSpec {
	unique := make(map[string]bool, len(values))
	for _, v := range values {
		unique[v] = true
	}
	names := make([]string, 0, len(unique))
	for name := range unique {
		names = append(names, name)
	}
	sort.Strings(names)
	index := make(map[string]int, len(names))
	for i, name := range names {
		index[name] = i
	}
	ints := make([]int, len(values))
	for i, v := range values {
		ints[i] = index[v]
	}
	return &labelSpec{kind: labelsExplicit, values: ints, names: names}
}

// anyLabels handles lists decoded from YAML: all ints or all strings.
func anyLabels(values []any) (*labelSpec, error) {
	if len(values) == 0 {
		return intLabels(nil)
	}
	if _, isString := values[0].(string); isString {
		strs := make([]string, len(values))
		for i, v := range values {
			s, ok := v.(string)
			if !ok {
				return nil, configErrorf("labels", "mixed label types: position %d is %T, expected string", i, v)
			}
			strs[i] = s
		}
		return stringLabels(strs), nil
	}
	ints := make([]int, len(values))
	for i, v := range values {
		n, ok := v.(int)
		if !ok {
			return nil, configErrorf("labels", "label at position %d has type %T, expected int or string", i, v)
		}
		ints[i] = n
	}
	return intLabels(ints)
}

// validateOptions checks the arguments alone, before touching the filesystem.
// opts must already have its defaults filled in.
func validateOptions(opts *Options) (*labelSpec, error) {
	labels, err := parseLabels(opts.Labels)
	if err != nil {
		return nil, err
	}
	switch opts.LabelMode {
	case LabelModeInt, LabelModeBinary, LabelModeCategorical, LabelModeNone:
	default:
		return nil, configErrorf("label_mode",
			`label_mode must be one of "int", "categorical", "binary" or "none", got %q`, opts.LabelMode)
	}
	if labels.kind == labelsNone {
		opts.LabelMode = LabelModeNone
	}
	if len(opts.ClassNames) > 0 && labels.kind != labelsInferred {
		return nil, configErrorf("class_names",
			`class_names can only be given with inferred labels, got an explicit labels list`)
	}
	if opts.ColorMode.Channels() == 0 {
		return nil, configErrorf("color_mode",
			`color_mode must be one of "rgb", "rgba" or "grayscale", got %q`, opts.ColorMode)
	}
	if _, ok := opts.Interpolation.Filter(); !ok {
		return nil, configErrorf("interpolation", "unknown interpolation %q", opts.Interpolation)
	}
	if opts.ImageSize[0] <= 0 || opts.ImageSize[1] <= 0 {
		return nil, configErrorf("image_size", "image_size must be positive, got %v", opts.ImageSize)
	}
	if opts.NumClassesPerBatch <= 0 {
		return nil, configErrorf("num_classes_per_batch", "must be positive, got %d", opts.NumClassesPerBatch)
	}
	if opts.NumImagesPerClass <= 0 {
		return nil, configErrorf("num_images_per_class", "must be positive, got %d", opts.NumImagesPerClass)
	}
	if opts.NumClassesPerBatch > math.MaxInt32/opts.NumImagesPerClass {
		return nil, configErrorf("num_images_per_class",
			"batch size %d x %d is too large", opts.NumClassesPerBatch, opts.NumImagesPerClass)
	}
	if err := validateSplit(opts); err != nil {
		return nil, err
	}
	if opts.SamplesPerEpoch != 0 {
		if !opts.SafeTriplet {
			return nil, configErrorf("samples_per_epoch", "samples_per_epoch can only be set when safe_triplet is enabled")
		}
		if opts.SamplesPerEpoch < 0 || opts.SamplesPerEpoch%opts.BatchSize() != 0 {
			return nil, configErrorf("samples_per_epoch",
				"samples_per_epoch must be a positive multiple of the batch size %d, got %d",
				opts.BatchSize(), opts.SamplesPerEpoch)
		}
	}
	if opts.Workers < 0 {
		return nil, configErrorf("workers", "must not be negative, got %d", opts.Workers)
	}
	return labels, nil
}

func validateSplit(opts *Options) error {
	// Written so that NaN fails too.
	if !(opts.ValidationSplit >= 0 && opts.ValidationSplit < 1) {
		return configErrorf("validation_split",
			"validation_split must be between 0 and 1, got %g", opts.ValidationSplit)
	}
	switch opts.Subset {
	case "", SubsetTraining, SubsetValidation:
	default:
		return configErrorf("subset", `subset must be either "training" or "validation", got %q`, opts.Subset)
	}
	if opts.Subset != "" && opts.ValidationSplit == 0 {
		return configErrorf("validation_split", "validation_split must be set when subset is %q", opts.Subset)
	}
	if opts.ValidationSplit != 0 {
		if opts.Subset == "" {
			return configErrorf("subset", "subset must be set when validation_split is %g", opts.ValidationSplit)
		}
		if opts.Seed == nil {
			return configErrorf("seed",
				"you must provide a seed with validation_split, so training and validation subsets do not overlap")
		}
	}
	return nil
}

// validateDiscovered checks the options against what was found on disk.
func validateDiscovered(opts *Options, labels *labelSpec, found *discovery, wantClasses []string) error {
	if len(wantClasses) > 0 && !sameNames(wantClasses, found.allClassDirs) {
		return configErrorf("class_names",
			"class_names passed did not match the names of the subdirectories of the target directory: expected %v, got %v",
			found.allClassDirs, wantClasses)
	}
	if len(found.files) == 0 {
		return errors.Wrapf(ErrNoImages, "in directory %q (allowed formats: %s)",
			found.root, strings.Join(allowedFormats, ", "))
	}
	if labels.kind == labelsExplicit && len(labels.values) != len(found.files) {
		return configErrorf("labels",
			"expected the lengths of labels to match the number of files in the target directory: len(labels) is %d while we found %d files",
			len(labels.values), len(found.files))
	}
	return nil
}

func sameNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string(nil), a...)
	sb := append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

// validateClasses checks the class count requirements once the label space
// and active pools are known.
func validateClasses(opts *Options, numClasses, activeClasses int, balanced bool) error {
	if opts.LabelMode == LabelModeBinary && numClasses != 2 {
		return configErrorf("label_mode",
			`when label_mode is "binary" there must be exactly 2 classes, found %d`, numClasses)
	}
	if balanced && activeClasses < opts.NumClassesPerBatch {
		return configErrorf("num_classes_per_batch",
			"%d classes per batch requested but only %d classes have images", opts.NumClassesPerBatch, activeClasses)
	}
	return nil
}

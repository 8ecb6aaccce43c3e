package datasets

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// BalancedImageDataset yields batches of images read from a directory with
// one subdirectory per class.
//
// With labels, every batch holds NumClassesPerBatch distinct classes with
// NumImagesPerClass images each, the images of a class contiguous, and the
// stream never ends unless SamplesPerEpoch bounds it. Without labels it makes
// a single pass over all files in plain batches.
//
// Index selection is serialized, so Yield may be called concurrently (e.g.
// by gomlx's datasets.Parallel); images are decoded outside the lock.
type BalancedImageDataset struct {
	name string
	opts Options

	classNames []string
	numClasses int

	files     []string
	fileClass []int
	pools     [][]int

	standalone bool

	mu      sync.Mutex
	sampler indexSampler

	materializer Materializer
}

var _ train.Dataset = (*BalancedImageDataset)(nil)

// Batch is one batch of the stream. Labels is nil when labels are suppressed.
type Batch struct {
	Samples []Sample
	Images  *ImageBatchFlat
	Labels  *LabelBatchFlat
}

// Paths of the batch's files, in batch order.
func (b *Batch) Paths() []string {
	return samplePaths(b.Samples)
}

// Classes of the batch's examples, in batch order.
func (b *Batch) Classes() []int {
	return sampleClasses(b.Samples)
}

func samplePaths(samples []Sample) []string {
	paths := make([]string, len(samples))
	for i, s := range samples {
		paths[i] = s.Path
	}
	return paths
}

func sampleClasses(samples []Sample) []int {
	classes := make([]int, len(samples))
	for i, s := range samples {
		classes[i] = s.Class
	}
	return classes
}

// NewBalancedImageDataset indexes directory and prepares the sampler. All
// option errors match ErrInvalidConfig and are reported before the directory
// is read, except those that depend on what is found there. A directory
// without images fails with ErrNoImages.
func NewBalancedImageDataset(directory string, opts Options) (*BalancedImageDataset, error) {
	opts = opts.withDefaults()
	labels, err := validateOptions(&opts)
	if err != nil {
		return nil, err
	}
	found, err := discoverClasses(directory, opts.ClassNames, opts.FollowLinks)
	if err != nil {
		return nil, err
	}
	if err := validateDiscovered(&opts, labels, found, opts.ClassNames); err != nil {
		return nil, err
	}

	ds := &BalancedImageDataset{
		name:  "balanced",
		opts:  opts,
		files: found.files,
	}
	if opts.Subset != "" {
		ds.name = fmt.Sprintf("balanced-%s", opts.Subset)
	}
	if labels.kind == labelsExplicit {
		ds.fileClass = labels.values
		ds.numClasses = labels.numClasses()
		ds.classNames = labels.names
		if ds.classNames == nil {
			for i := range ds.numClasses {
				ds.classNames = append(ds.classNames, strconv.Itoa(i))
			}
		}
	} else {
		ds.fileClass = found.fileClass
		ds.numClasses = len(found.classNames)
		ds.classNames = found.classNames
	}
	klog.Infof("Found %s files belonging to %d classes.", humanize.Comma(int64(len(ds.files))), ds.numClasses)

	var seed int64
	if opts.Seed != nil {
		seed = *opts.Seed
	} else {
		seed = time.Now().UnixNano()
	}
	ds.pools = splitPools(groupByClass(ds.fileClass, ds.numClasses), opts.ValidationSplit, opts.Subset, seed)

	active, used := 0, 0
	for class, pool := range ds.pools {
		if len(pool) == 0 {
			klog.Warningf("class %q has no images to sample from", ds.classNames[class])
			continue
		}
		active++
		used += len(pool)
	}
	if opts.Subset != "" {
		klog.Infof("Using %s files for %s.", humanize.Comma(int64(used)), opts.Subset)
	}
	if used == 0 {
		return nil, errors.Wrapf(ErrNoImages, "in the %s subset of %q", opts.Subset, found.root)
	}

	ds.standalone = opts.LabelMode == LabelModeNone && !opts.SafeTriplet && opts.SamplesPerEpoch == 0
	if err := validateClasses(&opts, ds.numClasses, active, !ds.standalone); err != nil {
		return nil, err
	}

	// The sampler draws from its own stream, so the split does not depend on
	// how many batches were sampled.
	rng := rand.New(rand.NewSource(seed + 1))
	if ds.standalone {
		ds.sampler = newSequentialSampler(ds.pools, ds.fileClass, opts.BatchSize(), opts.Shuffle, rng)
	} else {
		ds.sampler = newBalancedSampler(ds.pools, &opts, rng)
	}

	loader, err := NewImageLoader(opts)
	if err != nil {
		return nil, err
	}
	ds.materializer = loader
	return ds, nil
}

// WithMaterializer replaces the default ImageLoader. It returns itself, to
// allow chained calls.
func (ds *BalancedImageDataset) WithMaterializer(m Materializer) *BalancedImageDataset {
	ds.materializer = m
	return ds
}

// Name implements train.Dataset.
func (ds *BalancedImageDataset) Name() string { return ds.name }

// Options returns the effective options, defaults filled in.
func (ds *BalancedImageDataset) Options() Options { return ds.opts }

// ClassNames in label order.
func (ds *BalancedImageDataset) ClassNames() []string { return ds.classNames }

// NumClasses is the size of the label space.
func (ds *BalancedImageDataset) NumClasses() int { return ds.numClasses }

// FilePaths of every discovered image, in discovery order. Sample.File
// indexes this slice.
func (ds *BalancedImageDataset) FilePaths() []string { return ds.files }

// NumFiles is the number of files sampled from, after the validation split.
func (ds *BalancedImageDataset) NumFiles() int {
	n := 0
	for _, pool := range ds.pools {
		n += len(pool)
	}
	return n
}

// ClassPool returns the files (indices into FilePaths) sampled for class.
func (ds *BalancedImageDataset) ClassPool(class int) []int {
	return append([]int(nil), ds.pools[class]...)
}

// BatchSize is the number of examples of a full batch.
func (ds *BalancedImageDataset) BatchSize() int { return ds.opts.BatchSize() }

// Standalone reports whether the dataset makes a single unlabeled pass
// instead of balanced sampling.
func (ds *BalancedImageDataset) Standalone() bool { return ds.standalone }

// Cardinality is the number of batches before io.EOF, or Infinite.
func (ds *BalancedImageDataset) Cardinality() int {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.sampler.cardinality()
}

// NextIndices returns the samples of the next batch without reading any
// file, or io.EOF at the end of a bounded stream.
func (ds *BalancedImageDataset) NextIndices() ([]Sample, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	samples, err := ds.sampler.next()
	if err != nil {
		return nil, err
	}
	for i := range samples {
		samples[i].Path = ds.files[samples[i].File]
	}
	return samples, nil
}

// Next samples and materializes the next batch.
func (ds *BalancedImageDataset) Next(ctx context.Context) (*Batch, error) {
	samples, err := ds.NextIndices()
	if err != nil {
		return nil, err
	}
	images, err := ds.materializer.Materialize(ctx, samplePaths(samples))
	if err != nil {
		return nil, err
	}
	batch := &Batch{Samples: samples, Images: images}
	if ds.opts.LabelMode != LabelModeNone {
		batch.Labels, err = EncodeLabels(ds.opts.LabelMode, sampleClasses(samples), ds.numClasses)
		if err != nil {
			return nil, err
		}
	}
	return batch, nil
}

// Yield implements train.Dataset. It returns the dataset as spec, the images
// shaped (float32)[batch, height, width, channels] as the only input, and the
// labels encoded per label mode as the only label, or no label at all when
// labels are suppressed.
func (ds *BalancedImageDataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	batch, err := ds.Next(context.Background())
	if err != nil {
		return nil, nil, nil, err
	}
	images, err := batch.Images.ToGomlxTensor()
	if err != nil {
		return nil, nil, nil, err
	}
	inputs = []*tensors.Tensor{images}
	if batch.Labels != nil {
		l, err := batch.Labels.ToGomlxTensor()
		if err != nil {
			return nil, nil, nil, err
		}
		labels = []*tensors.Tensor{l}
	}
	return ds, inputs, labels, nil
}

// Reset implements train.Dataset. It restarts a bounded stream; sampling
// continues from the current state, so the new pass draws new permutations.
func (ds *BalancedImageDataset) Reset() {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.sampler.reset()
}

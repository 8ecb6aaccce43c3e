// Package datasets reads a directory of images, one subdirectory per class,
// and yields class-balanced batches suitable for metric learning losses such
// as the triplet loss.
//
// Layout and intended usage:
//
// BalancedImageDataset
//   - Indexes the image files of each class subdirectory once, at
//     construction, and reads them lazily when a batch is requested.
//   - Every labeled batch holds NumClassesPerBatch distinct classes with
//     NumImagesPerClass images each, grouped by class.
//   - Implements gomlx's train.Dataset, so it can be given to a training loop
//     or wrapped by gomlx's datasets.Parallel.
//
// Index selection and decoding are split: an index sampler decides which
// files go into a batch and a Materializer turns their paths into pixels. The
// sampler never opens files.
package datasets

import (
	"context"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Dataset is the batch stream interface shared by the loaders of this
// package and the tools built on them.
type Dataset interface {
	// NextIndices returns the next batch without decoding any image, or
	// io.EOF at the end of a bounded stream.
	NextIndices() ([]Sample, error)

	// Next returns the next batch with its decoded images and labels.
	Next(ctx context.Context) (*Batch, error)

	// Cardinality is the number of batches before io.EOF, or Infinite.
	Cardinality() int

	// To implement gomlx's train.Dataset interface
	Name() string
	Yield() (any, []*tensors.Tensor, []*tensors.Tensor, error)
	Reset()
}

var _ Dataset = (*BalancedImageDataset)(nil)

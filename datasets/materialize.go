package datasets

import (
	"context"
	"image"
	"runtime"

	"github.com/disintegration/imaging"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	// Registers the BMP decoder with image.Decode.
	_ "golang.org/x/image/bmp"
)

// Materializer turns the file paths of a batch into decoded image data. The
// sampler never opens files: read and decode failures are the Materializer's.
type Materializer interface {
	Materialize(ctx context.Context, paths []string) (*ImageBatchFlat, error)
}

// ImageBatchFlat stores a batch of images in a contiguous float32 buffer laid
// out as [Batch, Height, Width, Channels], values in [0, 255].
type ImageBatchFlat struct {
	Buf      []float32
	Batch    int
	Height   int
	Width    int
	Channels int
}

// ToGomlxTensor converts the batch to a float32 gomlx tensor shaped
// [Batch, Height, Width, Channels].
func (b *ImageBatchFlat) ToGomlxTensor() (*tensors.Tensor, error) {
	if len(b.Buf) != b.Batch*b.Height*b.Width*b.Channels {
		return nil, errors.Errorf("image buffer has %d values, expected %d for shape [%d, %d, %d, %d]",
			len(b.Buf), b.Batch*b.Height*b.Width*b.Channels, b.Batch, b.Height, b.Width, b.Channels)
	}
	if b.Batch == 0 {
		return tensors.FromAnyValue(make([][][][]float32, 0)), nil
	}
	data := make([][][][]float32, b.Batch)
	idx := 0
	for i := range b.Batch {
		data[i] = make([][][]float32, b.Height)
		for y := range b.Height {
			data[i][y] = make([][]float32, b.Width)
			for x := range b.Width {
				data[i][y][x] = b.Buf[idx : idx+b.Channels]
				idx += b.Channels
			}
		}
	}
	return tensors.FromAnyValue(data), nil
}

// ImageLoader is the default Materializer: it decodes images from disk,
// resizes them and converts them to the configured number of channels.
type ImageLoader struct {
	Height, Width     int
	ColorMode         ColorMode
	Filter            imaging.ResampleFilter
	CropToAspectRatio bool

	// Workers is the number of images decoded concurrently.
	Workers int
}

// NewImageLoader creates an ImageLoader for the image options of opts.
func NewImageLoader(opts Options) (*ImageLoader, error) {
	opts = opts.withDefaults()
	filter, ok := opts.Interpolation.Filter()
	if !ok {
		return nil, configErrorf("interpolation", "unknown interpolation %q", opts.Interpolation)
	}
	if opts.ColorMode.Channels() == 0 {
		return nil, configErrorf("color_mode", "unknown color mode %q", opts.ColorMode)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &ImageLoader{
		Height:            opts.ImageSize[0],
		Width:             opts.ImageSize[1],
		ColorMode:         opts.ColorMode,
		Filter:            filter,
		CropToAspectRatio: opts.CropToAspectRatio,
		Workers:           workers,
	}, nil
}

// Channels of the images produced.
func (l *ImageLoader) Channels() int {
	return l.ColorMode.Channels()
}

// Materialize implements Materializer. Images are decoded in parallel, each
// one written to its own slot of the buffer.
func (l *ImageLoader) Materialize(ctx context.Context, paths []string) (*ImageBatchFlat, error) {
	channels := l.Channels()
	imageSize := l.Height * l.Width * channels
	batch := &ImageBatchFlat{
		Buf:      make([]float32, len(paths)*imageSize),
		Batch:    len(paths),
		Height:   l.Height,
		Width:    l.Width,
		Channels: channels,
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, l.Workers))
	for i, path := range paths {
		dst := batch.Buf[i*imageSize : (i+1)*imageSize]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return l.LoadImage(path, dst)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return batch, nil
}

// LoadImage decodes the image at path into dst, which must hold
// Height*Width*Channels values.
func (l *ImageLoader) LoadImage(path string, dst []float32) error {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return errors.Wrapf(err, "failed to decode image %q", path)
	}
	var resized *image.NRGBA
	if l.CropToAspectRatio {
		resized = imaging.Fill(img, l.Width, l.Height, imaging.Center, l.Filter)
	} else {
		resized = imaging.Resize(img, l.Width, l.Height, l.Filter)
	}
	return l.copyPixels(resized, dst)
}

func (l *ImageLoader) copyPixels(img *image.NRGBA, dst []float32) error {
	channels := l.Channels()
	if len(dst) != l.Height*l.Width*channels {
		return errors.Errorf("destination holds %d values, expected %d", len(dst), l.Height*l.Width*channels)
	}
	bounds := img.Bounds()
	if bounds.Dx() != l.Width || bounds.Dy() != l.Height {
		return errors.Errorf("resized image is %dx%d, expected %dx%d", bounds.Dx(), bounds.Dy(), l.Width, l.Height)
	}
	idx := 0
	for y := range l.Height {
		row := img.Pix[y*img.Stride : y*img.Stride+l.Width*4]
		for x := range l.Width {
			r, g, b, a := float32(row[4*x]), float32(row[4*x+1]), float32(row[4*x+2]), float32(row[4*x+3])
			switch l.ColorMode {
			case ColorModeGrayscale:
				dst[idx] = 0.2989*r + 0.5870*g + 0.1140*b
			case ColorModeRGB:
				dst[idx], dst[idx+1], dst[idx+2] = r, g, b
			case ColorModeRGBA:
				dst[idx], dst[idx+1], dst[idx+2], dst[idx+3] = r, g, b, a
			}
			idx += channels
		}
	}
	return nil
}

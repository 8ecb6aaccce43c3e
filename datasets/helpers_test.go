package datasets

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
)

// randomImage returns a 24x24 image of random pixels.
func randomImage(rng *rand.Rand, withAlpha bool) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 24, 24))
	for y := range 24 {
		for x := range 24 {
			c := color.NRGBA{R: uint8(rng.Intn(256)), G: uint8(rng.Intn(256)), B: uint8(rng.Intn(256)), A: 255}
			if withAlpha {
				c.A = uint8(rng.Intn(256))
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// writeImages saves count random images under dir. Images go round-robin to
// paths (relative to dir); PNG when png is set, JPEG otherwise.
func writeImages(t *testing.T, dir string, paths []string, count int, png bool) {
	t.Helper()
	rng := rand.New(rand.NewSource(int64(count)))
	ext := "jpg"
	if png {
		ext = "png"
	}
	for i := range count {
		name := filepath.Join(dir, paths[i%len(paths)], fmt.Sprintf("image_%d.%s", i, ext))
		require.NoError(t, imaging.Save(randomImage(rng, png), name))
	}
}

// prepareDirectory creates a temporary directory with numClasses class
// subdirectories named class_0, class_1, ... and count images spread over
// them round-robin. With nested, every class also gets a few subfolders that
// receive their share of the images.
func prepareDirectory(t *testing.T, numClasses, count int, nested, png bool) string {
	t.Helper()
	root := t.TempDir()
	var paths []string
	for c := range numClasses {
		class := fmt.Sprintf("class_%d", c)
		classPaths := []string{class}
		if nested {
			classPaths = append(classPaths,
				filepath.Join(class, "subfolder_1"),
				filepath.Join(class, "subfolder_2"),
				filepath.Join(class, "subfolder_1", "sub-subfolder"))
		}
		for _, p := range classPaths {
			require.NoError(t, os.MkdirAll(filepath.Join(root, p), 0o755))
		}
		paths = append(paths, classPaths...)
	}
	if count > 0 {
		writeImages(t, root, paths, count, png)
	}
	return root
}

// testOptions are small, deterministic options for tests.
func testOptions() Options {
	opts := DefaultOptions()
	opts.ImageSize = [2]int{18, 18}
	opts.Seed = SeedOf(42)
	opts.Workers = 2
	return opts
}

// drain reads indices until io.EOF or limit batches, whichever comes first.
func drain(t *testing.T, s indexSampler, limit int) [][]Sample {
	t.Helper()
	var batches [][]Sample
	for range limit {
		samples, err := s.next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		batches = append(batches, samples)
	}
	return batches
}

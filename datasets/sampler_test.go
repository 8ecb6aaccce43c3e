package datasets

import (
	"io"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCursor(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	pool := []int{10, 11, 12, 13, 14}
	c := newCursor(pool, rng, true)
	last := -1
	for pass := range 20 {
		var drawn []int
		for i := range len(pool) {
			v := c.draw(rng)
			if i == 0 {
				require.NotEqual(t, last, v, "pass %d starts with the item drawn last", pass)
			}
			drawn = append(drawn, v)
			last = v
		}
		sort.Ints(drawn)
		require.Equal(t, pool, drawn, "pass %d", pass)
	}
	require.Equal(t, 19, c.cycles)

	// The pool given is not shuffled in place.
	require.Equal(t, []int{10, 11, 12, 13, 14}, pool)

	// No shuffling: pool order, over and over.
	c = newCursor(pool, rng, false)
	var drawn []int
	for range 7 {
		drawn = append(drawn, c.draw(rng))
	}
	require.Equal(t, []int{10, 11, 12, 13, 14, 10, 11}, drawn)
}

// checkBalanced verifies the layout of a balanced batch and returns its
// classes in block order.
func checkBalanced(t *testing.T, samples []Sample, pools [][]int, classesPerBatch, imagesPerClass int) []int {
	t.Helper()
	require.Len(t, samples, classesPerBatch*imagesPerClass)
	var classes []int
	seen := map[int]bool{}
	for block := range classesPerBatch {
		class := samples[block*imagesPerClass].Class
		require.False(t, seen[class], "class %d appears in two blocks", class)
		seen[class] = true
		classes = append(classes, class)
		for i := range imagesPerClass {
			s := samples[block*imagesPerClass+i]
			require.Equal(t, class, s.Class)
			require.Contains(t, pools[class], s.File)
		}
	}
	return classes
}

func TestBalancedSamplerRoundRobin(t *testing.T) {
	pools := [][]int{{0, 1, 2}, {3, 4}, {5, 6, 7, 8}, {9}}
	opts := testOptions()
	opts.NumClassesPerBatch, opts.NumImagesPerClass = 3, 2
	s := newBalancedSampler(pools, &opts, rand.New(rand.NewSource(3)))
	require.Equal(t, Infinite, s.cardinality())

	classCount := make([]int, len(pools))
	for range 40 {
		samples, err := s.next()
		require.NoError(t, err)
		for _, class := range checkBalanced(t, samples, pools, 3, 2) {
			classCount[class]++
		}
	}
	// 120 class slots over 4 classes.
	require.Equal(t, []int{30, 30, 30, 30}, classCount)
}

func TestBalancedSamplerSkipsEmptyClasses(t *testing.T) {
	pools := [][]int{{0, 1}, {}, {2, 3}, {}}
	opts := testOptions()
	opts.NumClassesPerBatch, opts.NumImagesPerClass = 2, 3
	s := newBalancedSampler(pools, &opts, rand.New(rand.NewSource(3)))
	for range 10 {
		samples, err := s.next()
		require.NoError(t, err)
		require.ElementsMatch(t, []int{0, 2}, checkBalanced(t, samples, pools, 2, 3))
	}
}

func TestBalancedSamplerSamplesPerEpoch(t *testing.T) {
	pools := [][]int{{0}, {1}, {2}, {3}}
	opts := testOptions()
	opts.NumClassesPerBatch, opts.NumImagesPerClass = 4, 2
	opts.SafeTriplet = true
	opts.SamplesPerEpoch = 800
	s := newBalancedSampler(pools, &opts, rand.New(rand.NewSource(3)))
	require.Equal(t, 100, s.cardinality())

	for range 2 {
		batches := drain(t, s, 1000)
		require.Len(t, batches, 100)
		for _, samples := range batches {
			checkBalanced(t, samples, pools, 4, 2)
		}
		_, err := s.next()
		require.ErrorIs(t, err, io.EOF)
		s.reset()
	}
}

func TestBalancedSamplerLongEpoch(t *testing.T) {
	// 10^8 batches per epoch: batches are scheduled as they are pulled.
	pools := [][]int{{0, 1}, {2, 3}, {4, 5, 6}, {7}}
	opts := testOptions()
	opts.NumClassesPerBatch, opts.NumImagesPerClass = 2, 4
	opts.SafeTriplet = true
	opts.SamplesPerEpoch = 800_000_000
	s := newBalancedSampler(pools, &opts, rand.New(rand.NewSource(9)))
	require.Equal(t, 100_000_000, s.cardinality())

	for range 50 {
		samples, err := s.next()
		require.NoError(t, err)
		checkBalanced(t, samples, pools, 2, 4)
	}
	require.Len(t, s.plan.left, len(pools))
	require.Equal(t, 50, s.plan.batch)
}

func TestBalancedSamplerSafeTripletCoverage(t *testing.T) {
	// 16 files, batches of 2x2: epochs of 4 batches draw every file once.
	pools := [][]int{identity(8), xrange(8, 12), {12, 13}, {14, 15}}
	opts := testOptions()
	opts.NumClassesPerBatch, opts.NumImagesPerClass = 2, 2
	opts.SafeTriplet = true
	s := newBalancedSampler(pools, &opts, rand.New(rand.NewSource(5)))
	require.Equal(t, 4, s.epochBatches)
	require.Equal(t, Infinite, s.cardinality())

	for epoch := range 5 {
		draws := make(map[int]int)
		for range 4 {
			samples, err := s.next()
			require.NoError(t, err)
			checkBalanced(t, samples, pools, 2, 2)
			for _, sample := range samples {
				draws[sample.File]++
			}
		}
		require.Len(t, draws, 16, "epoch %d", epoch)
		for file, n := range draws {
			require.Equal(t, 1, n, "file %d in epoch %d", file, epoch)
		}
	}
}

func TestBalancedSamplerSafeTripletUneven(t *testing.T) {
	// A dominant class: per epoch every file of a class is drawn within one
	// time of the others of the same class.
	pools := [][]int{identity(30), {30, 31, 32}, {33, 34}, {35}}
	opts := testOptions()
	opts.NumClassesPerBatch, opts.NumImagesPerClass = 2, 3
	opts.SafeTriplet = true
	opts.SamplesPerEpoch = 60
	s := newBalancedSampler(pools, &opts, rand.New(rand.NewSource(9)))

	for range 3 {
		draws := make(map[int]int)
		for _, samples := range drain(t, s, 100) {
			checkBalanced(t, samples, pools, 2, 3)
			for _, sample := range samples {
				draws[sample.File]++
			}
		}
		for class, pool := range pools {
			lo, hi := -1, -1
			for _, f := range pool {
				n := draws[f]
				if lo < 0 || n < lo {
					lo = n
				}
				if n > hi {
					hi = n
				}
			}
			require.LessOrEqual(t, hi-lo, 1, "class %d", class)
		}
		s.reset()
	}
}

func TestSequentialSampler(t *testing.T) {
	pools := [][]int{{0, 2, 4, 6}, {1, 3, 5}}
	fileClass := []int{0, 1, 0, 1, 0, 1, 0}

	s := newSequentialSampler(pools, fileClass, 4, false, rand.New(rand.NewSource(1)))
	require.Equal(t, 2, s.cardinality())
	batches := drain(t, s, 10)
	require.Len(t, batches, 2)
	require.Len(t, batches[0], 4)
	require.Len(t, batches[1], 3)
	require.Equal(t, Sample{File: 3, Class: 1}, batches[0][3])
	_, err := s.next()
	require.ErrorIs(t, err, io.EOF)

	s = newSequentialSampler(pools, fileClass, 4, true, rand.New(rand.NewSource(1)))
	for range 2 {
		var files []int
		for _, batch := range drain(t, s, 10) {
			for _, sample := range batch {
				require.Equal(t, fileClass[sample.File], sample.Class)
				files = append(files, sample.File)
			}
		}
		sort.Ints(files)
		require.Equal(t, identity(7), files)
		s.reset()
	}
}

func TestSequentialSamplerOnlyPooledFiles(t *testing.T) {
	// Files moved to the other side of a split are not yielded.
	pools := [][]int{{0, 4}, {3}}
	fileClass := []int{0, 1, 0, 1, 0}
	s := newSequentialSampler(pools, fileClass, 2, false, rand.New(rand.NewSource(1)))
	batches := drain(t, s, 10)
	require.Equal(t, [][]Sample{
		{{File: 0, Class: 0}, {File: 3, Class: 1}},
		{{File: 4, Class: 0}},
	}, batches)
}

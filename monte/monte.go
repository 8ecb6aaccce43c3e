package monte

import (
	"context"
	"io"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/Noofbiz/tripletloader/datasets"
)

// Source is the part of a balanced dataset the audit needs: the index stream
// and the files it should be drawing from. *datasets.BalancedImageDataset
// implements it.
type Source interface {
	NextIndices() ([]datasets.Sample, error)
	NumClasses() int
	ClassPool(class int) []int
	Options() datasets.Options
	Standalone() bool
}

// Factory builds an independent Source for one trial.
type Factory func(seed int64) (Source, error)

// Monte replays the index stream of several independently seeded datasets and
// measures how evenly files and classes are drawn. Images are never decoded:
// only the sampler runs.
type Monte struct {
	Factory Factory
	Trials  int

	// Workers is the number of trials run concurrently. If 0, runtime.NumCPU().
	Workers int

	// rng draws the seed of each trial.
	rng *rand.Rand
}

// NewMonte creates a new Monte object. factory must be non-nil and trials
// must be >= 1.
func NewMonte(factory Factory, trials int) (*Monte, error) {
	if factory == nil {
		return nil, errors.New("factory cannot be nil")
	}
	if trials < 1 {
		return nil, errors.Errorf("trials must be >= 1, got %d", trials)
	}
	return &Monte{
		Factory: factory,
		Trials:  trials,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// SetSeed makes the trial seeds, and so the whole audit, reproducible.
func (m *Monte) SetSeed(seed int64) {
	if m == nil {
		return
	}
	m.rng = rand.New(rand.NewSource(seed))
}

// SetWorkers sets how many trials run at once; 0 means runtime.NumCPU().
func (m *Monte) SetWorkers(n int) {
	if m == nil {
		return
	}
	m.Workers = n
}

// Trial holds the draws of a single replay.
type Trial struct {
	Seed    int64
	Batches int

	// FileDraws counts draws per file index, including files of the pools
	// never drawn.
	FileDraws map[int]int
	// ClassDraws counts examples per class.
	ClassDraws []int

	// Spread is, per class, the difference between the most and the least
	// drawn file of the class pool.
	Spread []int

	// Unbalanced counts batches that break the balanced layout: a class
	// repeated in two blocks, or a block mixing classes.
	Unbalanced int
}

// Stats summarizes a set of counts.
type Stats struct {
	Min, Max     int
	Mean, StdDev float64
}

func newStats(values []int) Stats {
	if len(values) == 0 {
		return Stats{}
	}
	s := Stats{Min: values[0], Max: values[0]}
	var total float64
	for _, v := range values {
		s.Min = min(s.Min, v)
		s.Max = max(s.Max, v)
		total += float64(v)
	}
	s.Mean = total / float64(len(values))
	var sq float64
	for _, v := range values {
		d := float64(v) - s.Mean
		sq += d * d
	}
	s.StdDev = math.Sqrt(sq / float64(len(values)))
	return s
}

// Report aggregates all trials.
type Report struct {
	Trials []Trial

	// PerFile summarizes the draws of every file over every trial.
	PerFile Stats

	// PerClass summarizes, per class, the examples drawn in each trial.
	PerClass []Stats

	// MaxSpread is the largest Trial.Spread over all trials and classes.
	MaxSpread int

	Unbalanced int
}

// Simulate runs m.Trials replays of batchesPerTrial batches each, in parallel.
// A batchesPerTrial <= 0 replays each stream until io.EOF, which requires a
// bounded stream (SamplesPerEpoch, or no labels).
func (m *Monte) Simulate(ctx context.Context, batchesPerTrial int) (*Report, error) {
	if m == nil {
		return nil, errors.New("Monte object is nil")
	}

	// Precompute independent seeds using the Monte RNG (serial access).
	seeds := make([]int64, m.Trials)
	for i := range seeds {
		seeds[i] = m.rng.Int63()
	}

	workers := m.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	trials := make([]Trial, m.Trials)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(min(workers, m.Trials))
	for i, seed := range seeds {
		g.Go(func() error {
			src, err := m.Factory(seed)
			if err != nil {
				return errors.WithMessagef(err, "trial %d (seed %d)", i, seed)
			}
			trial, err := runTrial(ctx, src, batchesPerTrial)
			if err != nil {
				return errors.WithMessagef(err, "trial %d (seed %d)", i, seed)
			}
			trial.Seed = seed
			trials[i] = *trial
			klog.V(1).Infof("trial %d: %d batches, max spread %d", i, trial.Batches, maxOf(trial.Spread))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summarize(trials), nil
}

func runTrial(ctx context.Context, src Source, batches int) (*Trial, error) {
	opts := src.Options()
	bounded := batches > 0
	if !bounded && opts.SamplesPerEpoch == 0 && !src.Standalone() {
		return nil, errors.New("stream is infinite: set the number of batches per trial")
	}

	numClasses := src.NumClasses()
	t := &Trial{
		FileDraws:  make(map[int]int),
		ClassDraws: make([]int, numClasses),
		Spread:     make([]int, numClasses),
	}
	for class := range numClasses {
		for _, f := range src.ClassPool(class) {
			t.FileDraws[f] = 0
		}
	}

	for !bounded || t.Batches < batches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		samples, err := src.NextIndices()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		t.Batches++
		for _, s := range samples {
			t.FileDraws[s.File]++
			t.ClassDraws[s.Class]++
		}
		if !src.Standalone() && !isBalanced(samples, opts.NumClassesPerBatch, opts.NumImagesPerClass) {
			t.Unbalanced++
		}
	}

	for class := range numClasses {
		pool := src.ClassPool(class)
		if len(pool) == 0 {
			continue
		}
		lo, hi := t.FileDraws[pool[0]], t.FileDraws[pool[0]]
		for _, f := range pool[1:] {
			lo = min(lo, t.FileDraws[f])
			hi = max(hi, t.FileDraws[f])
		}
		t.Spread[class] = hi - lo
	}
	return t, nil
}

// isBalanced reports whether samples hold classesPerBatch contiguous blocks
// of imagesPerClass examples, each block of a different class.
func isBalanced(samples []datasets.Sample, classesPerBatch, imagesPerClass int) bool {
	if len(samples) != classesPerBatch*imagesPerClass {
		return false
	}
	seen := make(map[int]bool, classesPerBatch)
	for block := range classesPerBatch {
		class := samples[block*imagesPerClass].Class
		if seen[class] {
			return false
		}
		seen[class] = true
		for _, s := range samples[block*imagesPerClass : (block+1)*imagesPerClass] {
			if s.Class != class {
				return false
			}
		}
	}
	return true
}

func summarize(trials []Trial) *Report {
	r := &Report{Trials: trials}
	var fileDraws []int
	numClasses := 0
	for _, t := range trials {
		files := make([]int, 0, len(t.FileDraws))
		for f := range t.FileDraws {
			files = append(files, f)
		}
		sort.Ints(files)
		for _, f := range files {
			fileDraws = append(fileDraws, t.FileDraws[f])
		}
		r.MaxSpread = max(r.MaxSpread, maxOf(t.Spread))
		r.Unbalanced += t.Unbalanced
		numClasses = max(numClasses, len(t.ClassDraws))
	}
	r.PerFile = newStats(fileDraws)
	r.PerClass = make([]Stats, numClasses)
	for class := range numClasses {
		var perTrial []int
		for _, t := range trials {
			if class < len(t.ClassDraws) {
				perTrial = append(perTrial, t.ClassDraws[class])
			}
		}
		r.PerClass[class] = newStats(perTrial)
	}
	return r
}

func maxOf(values []int) int {
	m := 0
	for _, v := range values {
		m = max(m, v)
	}
	return m
}

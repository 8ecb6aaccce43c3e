package datasets

import (
	"io"
	"math/rand"

	"k8s.io/klog/v2"
)

// Infinite is the cardinality of a stream that never ends.
const Infinite = -1

// Sample is one entry of the index stream: which file goes into a batch and
// under which class.
type Sample struct {
	Path string
	// File indexes BalancedImageDataset.FilePaths().
	File  int
	Class int
}

// indexSampler produces the index stream. Implementations are not safe for
// concurrent use.
type indexSampler interface {
	// next returns the samples of the next batch, or io.EOF once a bounded
	// stream is exhausted.
	next() ([]Sample, error)

	// reset restarts a bounded stream. Sampling state (cursors, generator)
	// carries over, so a new pass draws fresh permutations.
	reset()

	// cardinality is the number of batches until io.EOF, or Infinite.
	cardinality() int
}

// cursor walks an owned copy of a class pool, refilling it with a new
// permutation every time it reaches the end.
type cursor struct {
	items   []int
	pos     int
	cycles  int
	last    int
	shuffle bool
}

func newCursor(pool []int, rng *rand.Rand, shuffle bool) *cursor {
	c := &cursor{
		items:   append([]int(nil), pool...),
		last:    -1,
		shuffle: shuffle,
	}
	if shuffle {
		shuffleInts(rng, c.items)
	}
	return c
}

func (c *cursor) draw(rng *rand.Rand) int {
	if c.pos == len(c.items) {
		c.refill(rng)
	}
	v := c.items[c.pos]
	c.pos++
	c.last = v
	return v
}

// refill starts a new pass. The first item of the new pass is never the item
// drawn last, unless the pool has a single item.
func (c *cursor) refill(rng *rand.Rand) {
	c.pos = 0
	c.cycles++
	if !c.shuffle {
		return
	}
	shuffleInts(rng, c.items)
	if len(c.items) > 1 && c.items[0] == c.last {
		j := 1 + rng.Intn(len(c.items)-1)
		c.items[0], c.items[j] = c.items[j], c.items[0]
	}
}

// restart discards what is left of the current pass.
func (c *cursor) restart(rng *rand.Rand) {
	if c.pos == 0 {
		return
	}
	c.refill(rng)
}

func shuffleInts(rng *rand.Rand, values []int) {
	rng.Shuffle(len(values), func(i, j int) {
		values[i], values[j] = values[j], values[i]
	})
}

// balancedSampler yields batches of numClassesPerBatch distinct classes with
// numImagesPerClass samples each, grouped by class.
type balancedSampler struct {
	numClassesPerBatch int
	numImagesPerClass  int
	shuffle            bool
	rng                *rand.Rand

	// cursors is indexed by class; nil for classes with an empty pool.
	cursors []*cursor

	// active classes, the ones with a non-empty pool, in class order.
	active []int
	sizes  []int

	// Round-robin position into active.
	rotation int

	// budget is the number of batches per pass if bounded, 0 otherwise.
	budget  int
	emitted int

	// Safe triplet planning.
	safe         bool
	epochBatches int
	epoch        int
	plan         *slotSchedule
}

func newBalancedSampler(pools [][]int, opts *Options, rng *rand.Rand) *balancedSampler {
	s := &balancedSampler{
		numClassesPerBatch: opts.NumClassesPerBatch,
		numImagesPerClass:  opts.NumImagesPerClass,
		shuffle:            opts.Shuffle,
		rng:                rng,
		cursors:            make([]*cursor, len(pools)),
		safe:               opts.SafeTriplet,
	}
	total := 0
	for class, pool := range pools {
		if len(pool) == 0 {
			continue
		}
		s.cursors[class] = newCursor(pool, rng, opts.Shuffle)
		s.active = append(s.active, class)
		s.sizes = append(s.sizes, len(pool))
		total += len(pool)
	}
	batchSize := opts.BatchSize()
	if opts.SamplesPerEpoch > 0 {
		s.budget = opts.SamplesPerEpoch / batchSize
	}
	if s.safe {
		s.epochBatches = s.budget
		if s.epochBatches == 0 {
			s.epochBatches = max(1, total/batchSize)
		}
	}
	klog.V(1).Infof("balanced sampler: %d active classes, %d files, batch %dx%d, safe_triplet=%v, budget=%d",
		len(s.active), total, s.numClassesPerBatch, s.numImagesPerClass, s.safe, s.budget)
	return s
}

func (s *balancedSampler) next() ([]Sample, error) {
	if s.budget > 0 && s.emitted >= s.budget {
		return nil, io.EOF
	}
	var classes []int
	if s.safe {
		classes = s.nextPlanned()
	} else {
		classes = s.nextRoundRobin()
	}
	samples := make([]Sample, 0, s.numClassesPerBatch*s.numImagesPerClass)
	for _, class := range classes {
		c := s.cursors[class]
		for range s.numImagesPerClass {
			samples = append(samples, Sample{File: c.draw(s.rng), Class: class})
		}
	}
	s.emitted++
	return samples, nil
}

func (s *balancedSampler) nextRoundRobin() []int {
	classes := make([]int, s.numClassesPerBatch)
	for i := range classes {
		classes[i] = s.active[s.rotation]
		s.rotation = (s.rotation + 1) % len(s.active)
	}
	return classes
}

func (s *balancedSampler) nextPlanned() []int {
	if s.plan == nil || s.plan.done() {
		s.startEpoch()
	}
	positions := s.plan.next()
	classes := make([]int, len(positions))
	for i, pos := range positions {
		classes[i] = s.active[pos]
	}
	return classes
}

// startEpoch restarts every class cursor and plans the class slots of the
// next epoch.
func (s *balancedSampler) startEpoch() {
	for _, class := range s.active {
		s.cursors[class].restart(s.rng)
	}
	slots := allocateSlots(s.sizes, s.epochBatches*s.numClassesPerBatch, s.epochBatches)
	s.plan = newSlotSchedule(slots, s.epochBatches, s.numClassesPerBatch, s.epoch)
	s.epoch++
	klog.V(1).Infof("safe triplet epoch %d planned: %d batches, slots per class %v", s.epoch, s.epochBatches, slots)
}

func (s *balancedSampler) reset() {
	s.emitted = 0
	if s.safe && s.budget > 0 {
		s.plan = nil
	}
}

func (s *balancedSampler) cardinality() int {
	if s.budget > 0 {
		return s.budget
	}
	return Infinite
}

// sequentialSampler makes a single pass over every file in plain batches,
// the last one possibly smaller. It is used when no labels are requested.
type sequentialSampler struct {
	samples   []Sample
	batchSize int
	shuffle   bool
	rng       *rand.Rand
	pos       int
}

func newSequentialSampler(pools [][]int, fileClass []int, batchSize int, shuffle bool, rng *rand.Rand) *sequentialSampler {
	inPool := make([]bool, len(fileClass))
	for _, pool := range pools {
		for _, f := range pool {
			inPool[f] = true
		}
	}
	s := &sequentialSampler{batchSize: batchSize, shuffle: shuffle, rng: rng}
	for f, class := range fileClass {
		if inPool[f] {
			s.samples = append(s.samples, Sample{File: f, Class: class})
		}
	}
	s.shuffleSamples()
	return s
}

func (s *sequentialSampler) shuffleSamples() {
	if !s.shuffle {
		return
	}
	s.rng.Shuffle(len(s.samples), func(i, j int) {
		s.samples[i], s.samples[j] = s.samples[j], s.samples[i]
	})
}

func (s *sequentialSampler) next() ([]Sample, error) {
	if s.pos >= len(s.samples) {
		return nil, io.EOF
	}
	end := min(s.pos+s.batchSize, len(s.samples))
	batch := append([]Sample(nil), s.samples[s.pos:end]...)
	s.pos = end
	return batch, nil
}

func (s *sequentialSampler) reset() {
	s.pos = 0
	s.shuffleSamples()
}

func (s *sequentialSampler) cardinality() int {
	return (len(s.samples) + s.batchSize - 1) / s.batchSize
}

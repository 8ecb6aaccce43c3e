package datasets

import (
	"sort"
)

// allocateSlots splits totalSlots class slots among classes proportionally to
// their sizes, with no class getting more than capacity slots (a class can
// appear at most once per batch). Classes that would exceed capacity are
// capped and their excess redistributed among the others; rounding uses the
// largest remainder, ties going to the lower position.
//
// It requires totalSlots <= capacity*len(sizes).
func allocateSlots(sizes []int, totalSlots, capacity int) []int {
	slots := make([]int, len(sizes))
	capped := make([]bool, len(sizes))
	remaining := totalSlots

	for remaining > 0 {
		weight := 0
		for i, n := range sizes {
			if !capped[i] {
				weight += n
			}
		}
		if weight == 0 {
			break
		}
		changed := false
		for i, n := range sizes {
			if !capped[i] && remaining*n > capacity*weight {
				slots[i] = capacity
				capped[i] = true
				changed = true
			}
		}
		if !changed {
			break
		}
		remaining = totalSlots
		for i := range sizes {
			if capped[i] {
				remaining -= capacity
			}
		}
	}
	if remaining <= 0 {
		return slots
	}

	weight := 0
	for i, n := range sizes {
		if !capped[i] {
			weight += n
		}
	}
	if weight == 0 {
		return slots
	}
	type remainder struct{ pos, rem int }
	var rems []remainder
	given := 0
	for i, n := range sizes {
		if capped[i] {
			continue
		}
		slots[i] = remaining * n / weight
		given += slots[i]
		rems = append(rems, remainder{pos: i, rem: remaining * n % weight})
	}
	sort.SliceStable(rems, func(a, b int) bool {
		return rems[a].rem > rems[b].rem
	})
	for i := 0; i < remaining-given && i < len(rems); i++ {
		slots[rems[i].pos]++
	}
	return slots
}

// slotSchedule distributes class slots into numBatches batches of perBatch
// distinct positions each, one batch per call to next, so an epoch only costs
// the per-class counts. It requires sum(slots) == numBatches*perBatch and
// every slot count <= numBatches. Each batch takes the positions with the most
// slots left; ties rotate with the batch number and offset so small classes
// are spread over the epoch. Positions within a batch are sorted.
type slotSchedule struct {
	left       []int
	candidates []int
	numBatches int
	perBatch   int
	offset     int
	batch      int
}

func newSlotSchedule(slots []int, numBatches, perBatch, offset int) *slotSchedule {
	return &slotSchedule{
		left:       append([]int(nil), slots...),
		candidates: make([]int, 0, len(slots)),
		numBatches: numBatches,
		perBatch:   perBatch,
		offset:     offset,
	}
}

// done reports whether every batch of the epoch was handed out.
func (s *slotSchedule) done() bool { return s.batch >= s.numBatches }

func (s *slotSchedule) next() []int {
	k := len(s.left)
	s.candidates = s.candidates[:0]
	for pos, n := range s.left {
		if n > 0 {
			s.candidates = append(s.candidates, pos)
		}
	}
	shift := s.offset + s.batch
	left := s.left
	sort.Slice(s.candidates, func(i, j int) bool {
		pi, pj := s.candidates[i], s.candidates[j]
		if left[pi] != left[pj] {
			return left[pi] > left[pj]
		}
		return mod(pi-shift, k) < mod(pj-shift, k)
	})
	chosen := append([]int(nil), s.candidates[:min(s.perBatch, len(s.candidates))]...)
	sort.Ints(chosen)
	for _, pos := range chosen {
		s.left[pos]--
	}
	s.batch++
	return chosen
}

// scheduleSlots returns the whole schedule of an epoch at once.
func scheduleSlots(slots []int, numBatches, perBatch, offset int) [][]int {
	sched := newSlotSchedule(slots, numBatches, perBatch, offset)
	batches := make([][]int, 0, numBatches)
	for !sched.done() {
		batches = append(batches, sched.next())
	}
	return batches
}

func mod(a, n int) int {
	r := a % n
	if r < 0 {
		r += n
	}
	return r
}

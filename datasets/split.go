package datasets

import (
	"math/rand"
)

// splitPools partitions every class pool into training and validation and
// returns the side selected by subset. Each class is permuted independently by
// a generator seeded with seed, visiting classes in index order, so calls
// with the same seed on the same directory produce complementary subsets.
//
// The last int(split*len(pool)) items of each permuted pool go to validation.
// A zero split returns copies of the pools untouched.
func splitPools(pools [][]int, split float64, subset Subset, seed int64) [][]int {
	out := make([][]int, len(pools))
	if split == 0 {
		for class, pool := range pools {
			out[class] = append([]int(nil), pool...)
		}
		return out
	}

	rng := rand.New(rand.NewSource(seed))
	for class, pool := range pools {
		permuted := append([]int(nil), pool...)
		rng.Shuffle(len(permuted), func(i, j int) {
			permuted[i], permuted[j] = permuted[j], permuted[i]
		})
		numValidation := int(split * float64(len(permuted)))
		cut := len(permuted) - numValidation
		if subset == SubsetValidation {
			out[class] = permuted[cut:]
		} else {
			out[class] = permuted[:cut]
		}
	}
	return out
}

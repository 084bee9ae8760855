package dataset

import (
	"fmt"
	"math"
	"math/rand"
)

// RandomSplit partitions ds into two random subsets. The first holds
// floor(frac*n) samples and the second the rest.
//
// The trainer calls it at the start of every epoch, so the train and
// validation sets are redrawn each time.
func RandomSplit(ds Dataset, frac float64, rng *rand.Rand) (*Subset, *Subset, error) {
	if frac <= 0 || frac >= 1 {
		return nil, nil, fmt.Errorf("dataset: split fraction %g must be in (0, 1)", frac)
	}
	n := ds.Len()
	if n == 0 {
		return nil, nil, ErrEmpty
	}

	perm := rng.Perm(n)
	k := int(frac * float64(n))
	return NewSubset(ds, perm[:k]), NewSubset(ds, perm[k:]), nil
}

// TrainTestSplit holds out ceil(testFrac*n) samples for testing, chosen by a
// permutation seeded with seed. It returns (train, test).
func TrainTestSplit(ds Dataset, testFrac float64, seed int64) (*Subset, *Subset, error) {
	if testFrac <= 0 || testFrac >= 1 {
		return nil, nil, fmt.Errorf("dataset: test fraction %g must be in (0, 1)", testFrac)
	}
	n := ds.Len()
	if n == 0 {
		return nil, nil, ErrEmpty
	}

	nTest := int(math.Ceil(testFrac * float64(n)))
	if nTest >= n {
		return nil, nil, fmt.Errorf("dataset: %d samples leave nothing to train on after a %g test split", n, testFrac)
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return NewSubset(ds, perm[nTest:]), NewSubset(ds, perm[:nTest]), nil
}

package expander

import (
	"math"
	"math/rand/v2"
	"strconv"
)

// domainSize returns the product of the radices, saturating at math.MaxInt.
func domainSize(radices []int) (size int, saturated bool) {
	size = 1
	for _, r := range radices {
		if size > math.MaxInt/r {
			return math.MaxInt, true
		}
		size *= r
	}
	return size, false
}

// enumerate returns the first k tuples in odometer order, last position fastest.
func enumerate(radices []int, k int) [][]int {
	out := make([][]int, 0, k)
	cur := make([]int, len(radices))
	for len(out) < k {
		tuple := make([]int, len(cur))
		copy(tuple, cur)
		out = append(out, tuple)

		i := len(radices) - 1
		for ; i >= 0; i-- {
			cur[i]++
			if cur[i] < radices[i] {
				break
			}
			cur[i] = 0
		}
		if i < 0 {
			break
		}
	}
	return out
}

// decode maps a domain index to its tuple by mixed-radix decomposition. It is
// the inverse of the odometer order used by enumerate.
func decode(index int, radices []int) []int {
	tuple := make([]int, len(radices))
	for i := len(radices) - 1; i >= 0; i-- {
		tuple[i] = index % radices[i]
		index /= radices[i]
	}
	return tuple
}

// sample draws k distinct tuples uniformly at random.
func sample(rng *rand.Rand, radices []int, size int, saturated bool, k int) [][]int {
	if saturated {
		return sampleTuples(rng, radices, k)
	}
	indices := sampleIndices(rng, size, k)
	out := make([][]int, len(indices))
	for i, idx := range indices {
		out[i] = decode(idx, radices)
	}
	return out
}

// sampleIndices picks k distinct integers from [0, size) with Floyd's
// algorithm, then shuffles them so the output order is random as well.
func sampleIndices(rng *rand.Rand, size, k int) []int {
	chosen := make(map[int]struct{}, k)
	out := make([]int, 0, k)
	for j := size - k; j < size; j++ {
		t := rng.IntN(j + 1)
		if _, ok := chosen[t]; ok {
			t = j
		}
		chosen[t] = struct{}{}
		out = append(out, t)
	}
	rng.Shuffle(len(out), func(a, b int) { out[a], out[b] = out[b], out[a] })
	return out
}

// sampleTuples is used when the domain does not fit in an int. The domain is
// then far larger than k, so rejecting repeated tuples terminates quickly.
func sampleTuples(rng *rand.Rand, radices []int, k int) [][]int {
	seen := make(map[string]struct{}, k)
	out := make([][]int, 0, k)
	var key []byte
	for len(out) < k {
		tuple := make([]int, len(radices))
		key = key[:0]
		for i, r := range radices {
			tuple[i] = rng.IntN(r)
			key = strconv.AppendInt(key, int64(tuple[i]), 36)
			key = append(key, ',')
		}
		if _, dup := seen[string(key)]; dup {
			continue
		}
		seen[string(key)] = struct{}{}
		out = append(out, tuple)
	}
	return out
}

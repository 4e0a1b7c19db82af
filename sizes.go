package main

import (
	"slices"
)

// sizeHistogram is a sorted list of shard sizes in bytes.
type sizeHistogram []int64

func newSizeHistogram(files []shardFile) sizeHistogram {
	sizes := make(sizeHistogram, len(files))
	for i, f := range files {
		sizes[i] = f.size
	}
	slices.Sort(sizes)
	return sizes
}

func (s sizeHistogram) avg() float64 {
	var sum int64
	for _, size := range s {
		sum += size
	}
	return float64(sum) / float64(len(s))
}

func (s sizeHistogram) min() int64 {
	return s[0]
}

func (s sizeHistogram) max() int64 {
	return s[len(s)-1]
}

func (s sizeHistogram) percentile(p float32) int64 {
	if p < 0 || p > 100 {
		panic("percentile out of range")
	}
	idx := int(float32(len(s)) * p / 100)
	if idx == len(s) {
		idx--
	}
	return s[idx]
}

func (s sizeHistogram) sum() int64 {
	var sum int64
	for _, size := range s {
		sum += size
	}
	return sum
}

package anomaly

import (
	"errors"
	"math"
	"math/rand"
	"sort"
)

// Isolation forest parameters. Anomalies isolate in fewer random splits than
// inliers, so short average path lengths mean high anomaly scores.
const (
	numTrees      = 100
	maxSampleSize = 256
	contamination = 0.1
	randomSeed    = 42
)

var errNotFitted = errors.New("forest not fitted")

// treeNode is one node of an isolation tree. Leaves carry the size of the
// sample subset that reached them; internal nodes carry a random split.
type treeNode struct {
	Feature    int       `json:"f"`
	Split      float64   `json:"s"`
	Left       *treeNode `json:"l,omitempty"`
	Right      *treeNode `json:"r,omitempty"`
	Size       int       `json:"n"`
}

// IsolationForest scores samples by how quickly random axis-aligned splits
// isolate them. Score is a decision value: negative for outliers, with lower
// meaning more anomalous.
type IsolationForest struct {
	Trees      []*treeNode `json:"trees"`
	SampleSize int         `json:"sample_size"`

	// Offset shifts raw path-length scores so the contamination fraction of
	// the training data lands below zero.
	Offset float64 `json:"offset"`
}

// Fit builds the forest over the training samples and calibrates the
// decision offset from the training scores.
func (f *IsolationForest) Fit(samples [][]float64) error {
	if len(samples) == 0 {
		return errors.New("no training samples")
	}

	f.SampleSize = len(samples)
	if f.SampleSize > maxSampleSize {
		f.SampleSize = maxSampleSize
	}
	maxDepth := int(math.Ceil(math.Log2(float64(f.SampleSize))))

	rng := rand.New(rand.NewSource(randomSeed))
	f.Trees = make([]*treeNode, numTrees)
	for i := range f.Trees {
		sub := subsample(samples, f.SampleSize, rng)
		f.Trees[i] = buildTree(sub, 0, maxDepth, rng)
	}

	// Calibrate the offset at the contamination percentile of the raw
	// training scores, mirroring the usual fit-time behaviour.
	raw := make([]float64, len(samples))
	for i, s := range samples {
		raw[i] = f.rawScore(s)
	}
	sort.Float64s(raw)
	idx := int(contamination * float64(len(raw)))
	if idx >= len(raw) {
		idx = len(raw) - 1
	}
	f.Offset = raw[idx]
	return nil
}

// Score returns the calibrated decision value for one sample; negative means
// outlier and lower means more anomalous.
func (f *IsolationForest) Score(sample []float64) (float64, error) {
	if len(f.Trees) == 0 {
		return 0, errNotFitted
	}
	return f.rawScore(sample) - f.Offset, nil
}

// rawScore is the negated canonical anomaly score -2^(-E(h)/c(n)), in
// [-1, 0): close to -1 for anomalies, around -0.5 for inliers.
func (f *IsolationForest) rawScore(sample []float64) float64 {
	var total float64
	for _, t := range f.Trees {
		total += pathLength(t, sample, 0)
	}
	avg := total / float64(len(f.Trees))
	return -math.Pow(2, -avg/avgPathLength(f.SampleSize))
}

func subsample(samples [][]float64, n int, rng *rand.Rand) [][]float64 {
	if n >= len(samples) {
		return samples
	}
	out := make([][]float64, n)
	for i, idx := range rng.Perm(len(samples))[:n] {
		out[i] = samples[idx]
	}
	return out
}

func buildTree(samples [][]float64, depth, maxDepth int, rng *rand.Rand) *treeNode {
	if len(samples) <= 1 || depth >= maxDepth {
		return &treeNode{Feature: -1, Size: len(samples)}
	}

	width := len(samples[0])
	feature := rng.Intn(width)

	lo, hi := samples[0][feature], samples[0][feature]
	for _, s := range samples[1:] {
		if s[feature] < lo {
			lo = s[feature]
		}
		if s[feature] > hi {
			hi = s[feature]
		}
	}
	if lo == hi {
		return &treeNode{Feature: -1, Size: len(samples)}
	}

	split := lo + rng.Float64()*(hi-lo)
	var left, right [][]float64
	for _, s := range samples {
		if s[feature] < split {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}

	return &treeNode{
		Feature: feature,
		Split:   split,
		Size:    len(samples),
		Left:    buildTree(left, depth+1, maxDepth, rng),
		Right:   buildTree(right, depth+1, maxDepth, rng),
	}
}

func pathLength(node *treeNode, sample []float64, depth int) float64 {
	if node.Feature < 0 {
		return float64(depth) + avgPathLength(node.Size)
	}
	if sample[node.Feature] < node.Split {
		return pathLength(node.Left, sample, depth+1)
	}
	return pathLength(node.Right, sample, depth+1)
}

// avgPathLength is c(n), the expected path length of an unsuccessful BST
// search over n points; it normalises tree depths across sample sizes.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	h := math.Log(float64(n-1)) + 0.5772156649
	return 2*h - 2*float64(n-1)/float64(n)
}

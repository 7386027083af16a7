package regress

import (
	"fmt"
	"math/rand"
	"sort"
)

// ForestConfig controls the regression random forest. Zero MaxDepth means
// unbounded depth; the seed makes training deterministic for a given corpus.
type ForestConfig struct {
	Trees    int
	MaxDepth int
	MinLeaf  int
	Seed     int64
}

// DefaultForestConfig mirrors the usual random-forest regressor defaults:
// 100 trees, unbounded depth, single-sample leaves.
func DefaultForestConfig() ForestConfig {
	return ForestConfig{Trees: 100, MaxDepth: 0, MinLeaf: 1, Seed: 42}
}

// Forest is a bagged ensemble of variance-splitting regression trees.
type Forest struct {
	cfg         ForestConfig
	trees       []*treeNode
	importances []float64
	features    int
}

type treeNode struct {
	leaf      bool
	value     float64
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
}

// FitForest trains a random forest regressor on bootstrap resamples of the
// corpus. Feature importances are accumulated from impurity reduction at
// each split, normalized per tree, and averaged across the forest.
func FitForest(x [][]float64, y []float64, cfg ForestConfig) (*Forest, error) {
	n, k, err := checkShape(x, y)
	if err != nil {
		return nil, err
	}
	if cfg.Trees <= 0 {
		return nil, fmt.Errorf("forest needs at least one tree, got %d", cfg.Trees)
	}
	if cfg.MinLeaf <= 0 {
		cfg.MinLeaf = 1
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	f := &Forest{
		cfg:         cfg,
		trees:       make([]*treeNode, 0, cfg.Trees),
		importances: make([]float64, k),
		features:    k,
	}

	for t := 0; t < cfg.Trees; t++ {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = rng.Intn(n)
		}

		imp := make([]float64, k)
		root := growTree(x, y, idx, 0, cfg, imp)
		f.trees = append(f.trees, root)

		var total float64
		for _, v := range imp {
			total += v
		}
		if total > 0 {
			for j := range imp {
				f.importances[j] += imp[j] / total
			}
		}
	}

	var total float64
	for _, v := range f.importances {
		total += v
	}
	if total > 0 {
		for j := range f.importances {
			f.importances[j] /= total
		}
	}

	return f, nil
}

// Predict averages the per-tree predictions for one feature vector.
func (f *Forest) Predict(x []float64) float64 {
	if len(f.trees) == 0 {
		return 0
	}
	var s float64
	for _, t := range f.trees {
		s += t.predict(x)
	}
	return s / float64(len(f.trees))
}

// Importances returns the normalized per-feature importances, indexed the
// same way as the training columns. The slice sums to 1 unless every split
// was degenerate.
func (f *Forest) Importances() []float64 {
	out := make([]float64, len(f.importances))
	copy(out, f.importances)
	return out
}

func (t *treeNode) predict(x []float64) float64 {
	for !t.leaf {
		if x[t.feature] <= t.threshold {
			t = t.left
		} else {
			t = t.right
		}
	}
	return t.value
}

func growTree(x [][]float64, y []float64, idx []int, depth int, cfg ForestConfig, imp []float64) *treeNode {
	mean, sse := meanSSE(y, idx)

	if len(idx) < 2*cfg.MinLeaf || sse == 0 || (cfg.MaxDepth > 0 && depth >= cfg.MaxDepth) {
		return &treeNode{leaf: true, value: mean}
	}

	bestFeature, bestThreshold, bestGain := -1, 0.0, 0.0
	var bestLeft, bestRight []int

	for j := range x[0] {
		sorted := make([]int, len(idx))
		copy(sorted, idx)
		sortByFeature(x, sorted, j)

		var leftSum, leftSq float64
		totalSum, totalSq := sums(y, idx)
		for pos := 1; pos < len(sorted); pos++ {
			v := y[sorted[pos-1]]
			leftSum += v
			leftSq += v * v

			if x[sorted[pos]][j] == x[sorted[pos-1]][j] {
				continue
			}
			if pos < cfg.MinLeaf || len(sorted)-pos < cfg.MinLeaf {
				continue
			}

			nl, nr := float64(pos), float64(len(sorted)-pos)
			leftSSE := leftSq - leftSum*leftSum/nl
			rightSum := totalSum - leftSum
			rightSq := totalSq - leftSq
			rightSSE := rightSq - rightSum*rightSum/nr
			gain := sse - leftSSE - rightSSE
			if gain > bestGain {
				bestGain = gain
				bestFeature = j
				bestThreshold = (x[sorted[pos-1]][j] + x[sorted[pos]][j]) / 2
				bestLeft = append([]int(nil), sorted[:pos]...)
				bestRight = append([]int(nil), sorted[pos:]...)
			}
		}
	}

	if bestFeature < 0 {
		return &treeNode{leaf: true, value: mean}
	}

	imp[bestFeature] += bestGain

	return &treeNode{
		feature:   bestFeature,
		threshold: bestThreshold,
		left:      growTree(x, y, bestLeft, depth+1, cfg, imp),
		right:     growTree(x, y, bestRight, depth+1, cfg, imp),
	}
}

func meanSSE(y []float64, idx []int) (mean, sse float64) {
	s, sq := sums(y, idx)
	n := float64(len(idx))
	mean = s / n
	sse = sq - s*s/n
	if sse < 0 {
		sse = 0 // numeric underflow on constant targets
	}
	return mean, sse
}

func sums(y []float64, idx []int) (sum, sumSq float64) {
	for _, i := range idx {
		sum += y[i]
		sumSq += y[i] * y[i]
	}
	return sum, sumSq
}

func sortByFeature(x [][]float64, idx []int, feature int) {
	sort.SliceStable(idx, func(a, b int) bool {
		return x[idx[a]][feature] < x[idx[b]][feature]
	})
}

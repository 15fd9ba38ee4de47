package trainer

import (
	"math"
	"math/rand"
)

// treeNode is one node of a binary CART decision tree; leaves carry a
// class probability, internal nodes a (feature, threshold) split.
type treeNode struct {
	isLeaf    bool
	proba     float64 // P(class=1), leaves only
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
}

const (
	rfMaxDepth        = 8
	rfMinSamplesSplit = 4
)

// RandomForest is a bagged ensemble of CART trees, each trained on a
// bootstrap resample with a random feature subset per split (sklearn's
// RandomForestClassifier defaults: sqrt(n_features) candidate features).
type RandomForest struct {
	Trees        []*treeNode
	NumFeatures  int
	Importances  []float64 // accumulated impurity-decrease per feature, normalized
}

// FitRandomForest trains numTrees CART trees on bootstrap resamples of
// rows/labels, deterministic given rng (callers pass a seeded *rand.Rand
// so training is reproducible).
func FitRandomForest(rows [][]float64, labels []int, numTrees int, rng *rand.Rand) *RandomForest {
	if len(rows) == 0 {
		return &RandomForest{}
	}
	nFeatures := len(rows[0])
	rf := &RandomForest{NumFeatures: nFeatures, Importances: make([]float64, nFeatures)}

	for t := 0; t < numTrees; t++ {
		bootRows, bootLabels := bootstrapSample(rows, labels, rng)
		tree := buildTree(bootRows, bootLabels, 0, rf.Importances, rng)
		rf.Trees = append(rf.Trees, tree)
	}

	total := 0.0
	for _, v := range rf.Importances {
		total += v
	}
	if total > 0 {
		for i := range rf.Importances {
			rf.Importances[i] /= total
		}
	}
	return rf
}

func bootstrapSample(rows [][]float64, labels []int, rng *rand.Rand) ([][]float64, []int) {
	n := len(rows)
	outRows := make([][]float64, n)
	outLabels := make([]int, n)
	for i := 0; i < n; i++ {
		idx := rng.Intn(n)
		outRows[i] = rows[idx]
		outLabels[i] = labels[idx]
	}
	return outRows, outLabels
}

func buildTree(rows [][]float64, labels []int, depth int, importances []float64, rng *rand.Rand) *treeNode {
	if depth >= rfMaxDepth || len(rows) < rfMinSamplesSplit || isPure(labels) {
		return &treeNode{isLeaf: true, proba: positiveRate(labels)}
	}

	feature, threshold, gain, leftIdx, rightIdx := bestSplit(rows, labels, rng)
	if gain <= 0 || len(leftIdx) == 0 || len(rightIdx) == 0 {
		return &treeNode{isLeaf: true, proba: positiveRate(labels)}
	}
	importances[feature] += gain * float64(len(rows))

	leftRows, leftLabels := subset(rows, labels, leftIdx)
	rightRows, rightLabels := subset(rows, labels, rightIdx)

	return &treeNode{
		isLeaf:    false,
		feature:   feature,
		threshold: threshold,
		left:      buildTree(leftRows, leftLabels, depth+1, importances, rng),
		right:     buildTree(rightRows, rightLabels, depth+1, importances, rng),
	}
}

func isPure(labels []int) bool {
	for _, l := range labels {
		if l != labels[0] {
			return false
		}
	}
	return true
}

func positiveRate(labels []int) float64 {
	if len(labels) == 0 {
		return 0
	}
	sum := 0
	for _, l := range labels {
		sum += l
	}
	return float64(sum) / float64(len(labels))
}

func gini(labels []int) float64 {
	if len(labels) == 0 {
		return 0
	}
	p := positiveRate(labels)
	return 1 - p*p - (1-p)*(1-p)
}

// bestSplit tries a random subset of sqrt(nFeatures) candidate features
// (matching sklearn's default max_features for classification) and picks
// the threshold minimizing weighted Gini impurity.
func bestSplit(rows [][]float64, labels []int, rng *rand.Rand) (feature int, threshold, gain float64, leftIdx, rightIdx []int) {
	nFeatures := len(rows[0])
	candidates := randomFeatureSubset(nFeatures, rng)
	parentGini := gini(labels)

	bestGain := 0.0
	bestFeature := -1
	bestThreshold := 0.0
	var bestLeft, bestRight []int

	for _, f := range candidates {
		thresholds := candidateThresholds(rows, f)
		for _, th := range thresholds {
			var left, right []int
			for i, r := range rows {
				if r[f] <= th {
					left = append(left, i)
				} else {
					right = append(right, i)
				}
			}
			if len(left) == 0 || len(right) == 0 {
				continue
			}
			leftLabels := labelsAt(labels, left)
			rightLabels := labelsAt(labels, right)
			weighted := (float64(len(left))*gini(leftLabels) + float64(len(right))*gini(rightLabels)) / float64(len(rows))
			g := parentGini - weighted
			if g > bestGain {
				bestGain = g
				bestFeature = f
				bestThreshold = th
				bestLeft = left
				bestRight = right
			}
		}
	}
	return bestFeature, bestThreshold, bestGain, bestLeft, bestRight
}

func randomFeatureSubset(nFeatures int, rng *rand.Rand) []int {
	k := int(math.Sqrt(float64(nFeatures)) + 0.5)
	if k < 1 {
		k = 1
	}
	perm := rng.Perm(nFeatures)
	return perm[:k]
}

func candidateThresholds(rows [][]float64, feature int) []float64 {
	values := make([]float64, len(rows))
	for i, r := range rows {
		values[i] = r[feature]
	}
	seen := map[float64]bool{}
	var out []float64
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func labelsAt(labels []int, idx []int) []int {
	out := make([]int, len(idx))
	for i, j := range idx {
		out[i] = labels[j]
	}
	return out
}

func subset(rows [][]float64, labels []int, idx []int) ([][]float64, []int) {
	outRows := make([][]float64, len(idx))
	outLabels := make([]int, len(idx))
	for i, j := range idx {
		outRows[i] = rows[j]
		outLabels[i] = labels[j]
	}
	return outRows, outLabels
}

// PredictProba averages each tree's leaf probability (sklearn's "soft
// voting" predict_proba for RandomForestClassifier).
func (rf *RandomForest) PredictProba(row []float64) float64 {
	if len(rf.Trees) == 0 {
		return 0
	}
	sum := 0.0
	for _, t := range rf.Trees {
		sum += predictTree(t, row)
	}
	return sum / float64(len(rf.Trees))
}

func predictTree(n *treeNode, row []float64) float64 {
	for !n.isLeaf {
		if row[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.proba
}

package trainer

import "math/rand"

// StratifiedTrainTestSplit partitions indices [0,n) into train/test sets
// with testFraction of each class's examples in the test set, matching
// sklearn's train_test_split(..., stratify=y).
func StratifiedTrainTestSplit(labels []int, testFraction float64, rng *rand.Rand) (trainIdx, testIdx []int) {
	byClass := groupByClass(labels)
	for _, idx := range byClass {
		shuffled := append([]int(nil), idx...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		nTest := int(float64(len(shuffled)) * testFraction)
		testIdx = append(testIdx, shuffled[:nTest]...)
		trainIdx = append(trainIdx, shuffled[nTest:]...)
	}
	return trainIdx, testIdx
}

// StratifiedKFold assigns each index to one of k folds, preserving each
// class's proportion per fold, matching sklearn's StratifiedKFold(shuffle=True).
func StratifiedKFold(labels []int, k int, rng *rand.Rand) [][]int {
	folds := make([][]int, k)
	byClass := groupByClass(labels)
	for _, idx := range byClass {
		shuffled := append([]int(nil), idx...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		for i, sampleIdx := range shuffled {
			fold := i % k
			folds[fold] = append(folds[fold], sampleIdx)
		}
	}
	return folds
}

func groupByClass(labels []int) map[int][]int {
	groups := map[int][]int{}
	for i, l := range labels {
		groups[l] = append(groups[l], i)
	}
	return groups
}

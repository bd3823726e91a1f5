package model

import (
	"math"
	"math/rand"
	"sort"

	"go-ml.dev/pkg/zorros/zorros"
)

/*
Split is a deterministic partition of a dataset into train and test subsets
*/
type Split struct {
	Train, Test           Dataset
	TrainIndex, TestIndex []int // source row numbers, sorted
}

/*
TrainTestSplit shuffles rows with seed and reserves ceil(N*testSize) rows for test
*/
func TrainTestSplit(ds Dataset, testSize float64, seed int64) (Split, error) {
	n := ds.Len()
	if !(testSize > 0 && testSize < 1) {
		return Split{}, zorros.Errorf("test size must be in (0,1), got %v", testSize)
	}
	nTest := int(math.Ceil(testSize*float64(n) - 1e-9))
	if nTest < 1 || nTest >= n {
		return Split{}, zorros.Errorf("test size %v of %d rows leaves an empty partition", testSize, n)
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	s := Split{
		TestIndex:  append([]int(nil), perm[:nTest]...),
		TrainIndex: append([]int(nil), perm[nTest:]...),
	}
	sort.Ints(s.TestIndex)
	sort.Ints(s.TrainIndex)
	// rows keep the shuffled order so that downstream folds see mixed data
	s.Test = ds.Subset(perm[:nTest])
	s.Train = ds.Subset(perm[nTest:])
	return s, nil
}

/*
Fold is one train/validation partition of cross-validation
*/
type Fold struct {
	Train, Valid []int
}

/*
KFold shuffles n rows with seed and splits them into k folds,
the first n%k folds are one row larger
*/
func KFold(n, k int, seed int64) ([]Fold, error) {
	if k < 2 {
		return nil, zorros.Errorf("kfold requires at least 2 folds, got %d", k)
	}
	if n < k {
		return nil, zorros.Errorf("kfold can't split %d rows into %d folds", n, k)
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	folds := make([]Fold, k)
	start := 0
	for i := range folds {
		size := n / k
		if i < n%k {
			size++
		}
		valid := perm[start : start+size]
		train := make([]int, 0, n-size)
		train = append(train, perm[:start]...)
		train = append(train, perm[start+size:]...)
		folds[i] = Fold{Train: train, Valid: append([]int(nil), valid...)}
		start += size
	}
	return folds, nil
}

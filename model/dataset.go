package model

import (
	"math"

	"go-ml.dev/pkg/zorros/zorros"
)

/*
Dataset is a feature matrix with an aligned target vector to feed hungry models
*/
type Dataset struct {
	Features []string    // names of feature columns in order
	Label    string      // name of target column
	X        [][]float64 // feature rows
	Y        []float64   // target value for every row
}

func (ds Dataset) Len() int {
	return len(ds.Y)
}

/*
Validate checks row counts of features and target match and every row is complete
*/
func (ds Dataset) Validate() error {
	if len(ds.X) != len(ds.Y) {
		return zorros.Errorf("dataset has %d feature rows but %d target values", len(ds.X), len(ds.Y))
	}
	for i, r := range ds.X {
		if len(r) != len(ds.Features) {
			return zorros.Errorf("dataset row %d has %d values, expected %d", i, len(r), len(ds.Features))
		}
	}
	return nil
}

/*
Subset returns a dataset with rows selected by index, rows are shared with the source
*/
func (ds Dataset) Subset(index []int) Dataset {
	r := Dataset{
		Features: ds.Features,
		Label:    ds.Label,
		X:        make([][]float64, len(index)),
		Y:        make([]float64, len(index)),
	}
	for i, j := range index {
		r.X[i] = ds.X[j]
		r.Y[i] = ds.Y[j]
	}
	return r
}

/*
Finite reports whether there is no NaN or Inf in targets
*/
func (ds Dataset) Finite() bool {
	for _, y := range ds.Y {
		if math.IsNaN(y) || math.IsInf(y, 0) {
			return false
		}
	}
	return true
}

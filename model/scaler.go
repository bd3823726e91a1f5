package model

import (
	"go-ml.dev/pkg/zorros/zorros"
	"gonum.org/v1/gonum/stat"
)

/*
StandardScaler removes the mean and scales to unit variance every feature column
*/
type StandardScaler struct {
	Mean  []float64 `cbor:"mean"`
	Scale []float64 `cbor:"scale"`
}

/*
FitScaler learns column means and population deviations,
constant columns get scale 1
*/
func FitScaler(X [][]float64) (*StandardScaler, error) {
	if len(X) == 0 {
		return nil, zorros.Errorf("can't fit scaler on empty matrix")
	}
	width := len(X[0])
	sc := &StandardScaler{Mean: make([]float64, width), Scale: make([]float64, width)}
	col := make([]float64, len(X))
	for j := 0; j < width; j++ {
		for i, r := range X {
			col[i] = r[j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 {
			std = 1
		}
		sc.Mean[j], sc.Scale[j] = mean, std
	}
	return sc, nil
}

/*
Transform returns a new scaled matrix
*/
func (sc *StandardScaler) Transform(X [][]float64) [][]float64 {
	r := make([][]float64, len(X))
	for i, row := range X {
		q := make([]float64, len(row))
		for j, x := range row {
			q[j] = (x - sc.Mean[j]) / sc.Scale[j]
		}
		r[i] = q
	}
	return r
}

/*
Apply returns a dataset with scaled features
*/
func (sc *StandardScaler) Apply(ds Dataset) Dataset {
	r := ds
	r.X = sc.Transform(ds.X)
	return r
}

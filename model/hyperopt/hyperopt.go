/*
Package hyperopt implements SMBO/TPE hyper-parameter optimization for ML models

TPE follows the paper 'Algorithms for Hyper-Parameter Optimization'
https://papers.nips.cc/paper/4443-algorithms-for-hyper-parameter-optimization.pdf
*/
package hyperopt

import (
	"math"
	"math/rand"
	"sort"

	"go-ml.dev/pkg/harness/model"
	"go-ml.dev/pkg/zorros/zorros"
)

/*
Range is a uniform float interval (min,max)
*/
type Range [2]float64

/*
LogRange is a float interval (min,max) sampled uniformly in log space
*/
type LogRange [2]float64

/*
IntRange is an inclusive integer interval [min,max]
*/
type IntRange [2]int

/*
LogIntRange is an inclusive integer interval [min,max] sampled in log space
*/
type LogIntRange [2]int

/*
List is a categorical parameter choosing one of the values
*/
type List []float64

/*
Value is a constant parameter
*/
type Value float64

// sealed, implemented by the interval types above
type distribution interface {
	validate() error
	// sample1 draws from the prior
	sample1(*rand.Rand) float64
	// sample2 draws from the posterior split by good (below) and bad (above) observations
	sample2(s *tpe, below, above []float64) float64
}

/*
Variance is a space of hyper-parameters
*/
type Variance map[string]distribution

/*
Names returns parameter names in sorted order
*/
func (v Variance) Names() []string {
	r := make([]string, 0, len(v))
	for k := range v {
		r = append(r, k)
	}
	sort.Strings(r)
	return r
}

/*
Validate checks every range is not empty
*/
func (v Variance) Validate() error {
	if len(v) == 0 {
		return zorros.Errorf("hyper-parameters variance is empty")
	}
	for _, k := range v.Names() {
		if err := v[k].validate(); err != nil {
			return zorros.Wrapf(err, "bad hyper-parameter `%v`: %v", k, err.Error())
		}
	}
	return nil
}

/*
Params is a set of sampled hyper-parameters
*/
type Params = model.Params

func (r Range) validate() error {
	if !(r[0] <= r[1]) {
		return zorros.Errorf("range (%v,%v) is empty", r[0], r[1])
	}
	return nil
}

func (r Range) sample1(rnd *rand.Rand) float64 {
	return r[0] + rnd.Float64()*(r[1]-r[0])
}

func (r Range) sample2(s *tpe, below, above []float64) float64 {
	return s.continuous(r[0], r[1], below, above)
}

func (r LogRange) validate() error {
	if !(r[0] > 0 && r[0] <= r[1]) {
		return zorros.Errorf("log range (%v,%v) must be positive and not empty", r[0], r[1])
	}
	return nil
}

func (r LogRange) sample1(rnd *rand.Rand) float64 {
	lo, hi := math.Log(r[0]), math.Log(r[1])
	return math.Exp(lo + rnd.Float64()*(hi-lo))
}

func (r LogRange) sample2(s *tpe, below, above []float64) float64 {
	v := s.continuous(math.Log(r[0]), math.Log(r[1]), logs(below), logs(above))
	return math.Min(math.Max(math.Exp(v), r[0]), r[1])
}

func (r IntRange) validate() error {
	if r[0] > r[1] {
		return zorros.Errorf("int range [%v,%v] is empty", r[0], r[1])
	}
	return nil
}

func (r IntRange) sample1(rnd *rand.Rand) float64 {
	return float64(r[0] + rnd.Intn(r[1]-r[0]+1))
}

func (r IntRange) sample2(s *tpe, below, above []float64) float64 {
	v := s.continuous(float64(r[0])-0.5, float64(r[1])+0.5, below, above)
	return math.Min(math.Max(math.Round(v), float64(r[0])), float64(r[1]))
}

func (r LogIntRange) validate() error {
	if !(r[0] > 0 && r[0] <= r[1]) {
		return zorros.Errorf("log int range [%v,%v] must be positive and not empty", r[0], r[1])
	}
	return nil
}

func (r LogIntRange) sample1(rnd *rand.Rand) float64 {
	lo, hi := math.Log(float64(r[0])-0.5), math.Log(float64(r[1])+0.5)
	v := math.Round(math.Exp(lo + rnd.Float64()*(hi-lo)))
	return math.Min(math.Max(v, float64(r[0])), float64(r[1]))
}

func (r LogIntRange) sample2(s *tpe, below, above []float64) float64 {
	lo, hi := math.Log(float64(r[0])-0.5), math.Log(float64(r[1])+0.5)
	v := math.Round(math.Exp(s.continuous(lo, hi, logs(below), logs(above))))
	return math.Min(math.Max(v, float64(r[0])), float64(r[1]))
}

func (l List) validate() error {
	if len(l) == 0 {
		return zorros.Errorf("list of values is empty")
	}
	return nil
}

func (l List) sample1(rnd *rand.Rand) float64 {
	return l[rnd.Intn(len(l))]
}

func (l List) sample2(s *tpe, below, above []float64) float64 {
	return l[s.categorical(len(l), l.index(below), l.index(above))]
}

func (l List) index(values []float64) []int {
	r := make([]int, 0, len(values))
	for _, v := range values {
		for i, x := range l {
			if x == v {
				r = append(r, i)
				break
			}
		}
	}
	return r
}

func (Value) validate() error { return nil }

func (v Value) sample1(*rand.Rand) float64 {
	return float64(v)
}

func (v Value) sample2(*tpe, []float64, []float64) float64 {
	return float64(v)
}

func logs(a []float64) []float64 {
	r := make([]float64, len(a))
	for i, v := range a {
		r[i] = math.Log(v)
	}
	return r
}

package hyperopt

import (
	"math"
	"math/rand"
	"sort"

	"go-ml.dev/pkg/harness/fu"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

/*
Sampler suggests the next hyper-parameters set from the trials history
*/
type Sampler interface {
	suggest(v Variance, history []Trial) Params
}

const (
	DefaultStartup    = 10
	DefaultCandidates = 24
	MaxGood           = 25
)

type random struct {
	rnd *rand.Rand
}

/*
Random returns sampler drawing every parameter independently from its prior
*/
func Random(seed int64) Sampler {
	return &random{rand.New(rand.NewSource(seed))}
}

func (s *random) suggest(v Variance, _ []Trial) Params {
	p := Params{}
	for _, k := range v.Names() {
		p[k] = v[k].sample1(s.rnd)
	}
	return p
}

type tpe struct {
	rnd        *rand.Rand
	startup    int
	candidates int
}

/*
TPE returns Tree-structured Parzen Estimator sampler,
the first DefaultStartup suggestions are drawn from priors
*/
func TPE(seed int64) Sampler {
	return &tpe{rand.New(rand.NewSource(seed)), DefaultStartup, DefaultCandidates}
}

func (s *tpe) suggest(v Variance, history []Trial) Params {
	p := Params{}
	if len(history) < s.startup {
		for _, k := range v.Names() {
			p[k] = v[k].sample1(s.rnd)
		}
		return p
	}
	order := make([]int, len(history))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return history[order[a]].Score < history[order[b]].Score })
	ngood := fu.Mini(int(math.Ceil(0.1*float64(len(history)))), MaxGood)
	for _, k := range v.Names() {
		below := make([]float64, 0, ngood)
		above := make([]float64, 0, len(history)-ngood)
		for j, i := range order {
			x, ok := history[i].Params[k]
			if !ok {
				continue
			}
			if j < ngood {
				below = append(below, x)
			} else {
				above = append(above, x)
			}
		}
		p[k] = v[k].sample2(s, below, above)
	}
	return p
}

/*
continuous draws candidates from l(x) built on good observations
and returns the one maximizing l(x)/g(x)
*/
func (s *tpe) continuous(lo, hi float64, below, above []float64) float64 {
	if hi <= lo {
		return lo
	}
	l := newParzen(below, lo, hi)
	g := newParzen(above, lo, hi)
	best, bestv := math.Inf(-1), lo
	for i := 0; i < s.candidates; i++ {
		x := l.sample(s.rnd)
		if q := l.logpdf(x) - g.logpdf(x); q > best {
			best, bestv = q, x
		}
	}
	return bestv
}

func (s *tpe) categorical(n int, below, above []int) int {
	wl := weights(n, below)
	wg := weights(n, above)
	best, bestv := math.Inf(-1), 0
	for i := 0; i < s.candidates; i++ {
		j := pick(s.rnd, wl)
		if q := math.Log(wl[j]) - math.Log(wg[j]); q > best {
			best, bestv = q, j
		}
	}
	return bestv
}

func weights(n int, index []int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	for _, i := range index {
		w[i]++
	}
	floats.Scale(1/floats.Sum(w), w)
	return w
}

func pick(rnd *rand.Rand, w []float64) int {
	u := rnd.Float64()
	for i, x := range w {
		if u < x {
			return i
		}
		u -= x
	}
	return len(w) - 1
}

/*
parzen is a mixture of normals truncated to [lo,hi],
one component per observation plus the wide prior centered in the range
*/
type parzen struct {
	lo, hi     float64
	components []distuv.Normal
	logw       float64
	lognorm    []float64
}

func newParzen(obs []float64, lo, hi float64) parzen {
	width := hi - lo
	prior := lo + width/2
	mus := append(append(make([]float64, 0, len(obs)+1), obs...), prior)
	sort.Float64s(mus)
	n := len(mus)
	minsigma := width / math.Min(100, 1+float64(n))
	p := parzen{lo: lo, hi: hi, logw: -math.Log(float64(n))}
	priorSeen := false
	for i, mu := range mus {
		sigma := width
		if mu != prior || priorSeen {
			left := mu - lo
			if i > 0 {
				left = mu - mus[i-1]
			}
			right := hi - mu
			if i < n-1 {
				right = mus[i+1] - mu
			}
			sigma = fu.Clampd(math.Max(left, right), minsigma, width)
		} else {
			priorSeen = true
		}
		d := distuv.Normal{Mu: mu, Sigma: sigma}
		p.components = append(p.components, d)
		p.lognorm = append(p.lognorm, math.Log(math.Max(d.CDF(hi)-d.CDF(lo), 1e-12)))
	}
	return p
}

func (p parzen) sample(rnd *rand.Rand) float64 {
	d := p.components[rnd.Intn(len(p.components))]
	a, b := d.CDF(p.lo), d.CDF(p.hi)
	u := a + rnd.Float64()*(b-a)
	u = fu.Clampd(u, 1e-12, 1-1e-12)
	return fu.Clampd(d.Quantile(u), p.lo, p.hi)
}

func (p parzen) logpdf(x float64) float64 {
	q := make([]float64, len(p.components))
	for i, d := range p.components {
		q[i] = p.logw + d.LogProb(x) - p.lognorm[i]
	}
	return floats.LogSumExp(q)
}

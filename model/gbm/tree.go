package gbm

import (
	"math"
	"sort"
)

/*
Node is a split when Feature >= 0 and a leaf otherwise,
rows with x[Feature] <= Threshold go Left
*/
type Node struct {
	Feature   int     `cbor:"f"`
	Threshold float64 `cbor:"t"`
	Left      int     `cbor:"l"`
	Right     int     `cbor:"r"`
	Value     float64 `cbor:"v"`
}

type Tree struct {
	Nodes []Node `cbor:"nodes"`
}

func (t Tree) predict(x []float64) float64 {
	n := t.Nodes[0]
	for n.Feature >= 0 {
		if x[n.Feature] <= n.Threshold {
			n = t.Nodes[n.Left]
		} else {
			n = t.Nodes[n.Right]
		}
	}
	return n.Value
}

type split struct {
	feature     int
	threshold   float64
	gain        float64
	left, right []int
}

type leaf struct {
	node  int
	rows  []int
	depth int
	G, H  float64
	best  *split
}

type grower struct {
	Model
	X        [][]float64
	grad     []float64
	features []int
}

// squared loss has unit hessian so H is the row count
func (g *grower) leaf(node int, rows []int, depth int) *leaf {
	l := &leaf{node: node, rows: rows, depth: depth, H: float64(len(rows))}
	for _, i := range rows {
		l.G += g.grad[i]
	}
	l.best = g.split(l)
	return l
}

func (g *grower) threshold(G float64) float64 {
	if G > g.RegAlpha {
		return G - g.RegAlpha
	}
	if G < -g.RegAlpha {
		return G + g.RegAlpha
	}
	return 0
}

func (g *grower) score(G, H float64) float64 {
	t := g.threshold(G)
	return t * t / (H + g.RegLambda)
}

func (g *grower) value(G, H float64) float64 {
	if H+g.RegLambda == 0 {
		return 0
	}
	return -g.threshold(G) / (H + g.RegLambda)
}

func (g *grower) split(l *leaf) *split {
	if g.MaxDepth > 0 && l.depth >= g.MaxDepth {
		return nil
	}
	n := len(l.rows)
	if n < 2*g.MinChildSamples {
		return nil
	}
	parent := g.score(l.G, l.H)
	idx := make([]int, n)
	var best *split
	var bestIdx []int
	pos := 0
	for _, f := range g.features {
		copy(idx, l.rows)
		sort.SliceStable(idx, func(a, b int) bool { return g.X[idx[a]][f] < g.X[idx[b]][f] })
		gl := 0.0
		for i := 0; i < n-g.MinChildSamples; i++ {
			gl += g.grad[idx[i]]
			if i+1 < g.MinChildSamples {
				continue
			}
			a, b := g.X[idx[i]][f], g.X[idx[i+1]][f]
			if a == b {
				continue
			}
			hl := float64(i + 1)
			gain := g.score(gl, hl) + g.score(l.G-gl, l.H-hl) - parent
			if gain > 1e-12 && (best == nil || gain > best.gain) {
				best = &split{feature: f, threshold: a + (b-a)/2, gain: gain}
				bestIdx = append(bestIdx[:0], idx...)
				pos = i + 1
			}
		}
	}
	if best != nil {
		best.left = append([]int(nil), bestIdx[:pos]...)
		best.right = append([]int(nil), bestIdx[pos:]...)
	}
	return best
}

/*
grow builds one tree best-first: the leaf with the largest gain splits next
until NumLeaves is reached or no leaf can be split
*/
func (g *grower) grow(rows []int) Tree {
	t := Tree{Nodes: []Node{{Feature: -1}}}
	leaves := []*leaf{g.leaf(0, rows, 0)}
	for len(leaves) < g.NumLeaves {
		j, gain := -1, math.Inf(-1)
		for i, l := range leaves {
			if l.best != nil && l.best.gain > gain {
				j, gain = i, l.best.gain
			}
		}
		if j < 0 {
			break
		}
		l := leaves[j]
		s := l.best
		li, ri := len(t.Nodes), len(t.Nodes)+1
		t.Nodes = append(t.Nodes, Node{Feature: -1}, Node{Feature: -1})
		t.Nodes[l.node] = Node{Feature: s.feature, Threshold: s.threshold, Left: li, Right: ri}
		leaves[j] = g.leaf(li, s.left, l.depth+1)
		leaves = append(leaves, g.leaf(ri, s.right, l.depth+1))
	}
	for _, l := range leaves {
		t.Nodes[l.node].Value = g.LearningRate * g.value(l.G, l.H)
	}
	return t
}

// Package datasets generates the labelled 2-D toy datasets used for training.
//
// Every generator is looked up by name in a registry:
//
//	graph, err := datasets.Generate("xor", 50, rand.NewSource(1))
//	if err != nil {
//	    // *UnknownDatasetError for names that are not registered
//	}
//
// Points are drawn uniformly from the unit square unless the generator is
// deterministic (spiral). Labels are 0 or 1.
package datasets

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrUnknownDataset is wrapped by UnknownDatasetError.
var ErrUnknownDataset = errors.New("unknown dataset")

// UnknownDatasetError reports a dataset name missing from the registry.
type UnknownDatasetError struct {
	Name  string
	Known []string
}

func (e *UnknownDatasetError) Error() string {
	return fmt.Sprintf("%v %q (known: %s)", ErrUnknownDataset, e.Name, strings.Join(e.Known, ", "))
}

// Unwrap allows errors.Is(err, ErrUnknownDataset).
func (e *UnknownDatasetError) Unwrap() error {
	return ErrUnknownDataset
}

// Point is a 2-D input feature vector.
type Point [2]float64

// Graph is an immutable labelled dataset.
type Graph struct {
	Name string
	X    []Point
	Y    []int
}

// N returns the number of examples.
func (g *Graph) N() int {
	return len(g.X)
}

// Features returns X flattened row-major into float32, ready for a [N, 2] tensor.
func (g *Graph) Features() []float32 {
	out := make([]float32, 0, 2*len(g.X))
	for _, p := range g.X {
		out = append(out, float32(p[0]), float32(p[1]))
	}
	return out
}

// Labels returns Y as float32.
func (g *Graph) Labels() []float32 {
	out := make([]float32, len(g.Y))
	for i, y := range g.Y {
		out[i] = float32(y)
	}
	return out
}

// Subset returns the examples at idx, in that order. The points are copied.
func (g *Graph) Subset(idx []int) *Graph {
	sub := &Graph{
		Name: g.Name,
		X:    make([]Point, len(idx)),
		Y:    make([]int, len(idx)),
	}
	for i, j := range idx {
		sub.X[i] = g.X[j]
		sub.Y[i] = g.Y[j]
	}
	return sub
}

// Factory builds a dataset of n points using src for randomness.
type Factory func(n int, src rand.Source) *Graph

var registry = map[string]Factory{
	"simple": Simple,
	"diag":   Diag,
	"split":  Split,
	"xor":    Xor,
	"circle": Circle,
	"spiral": Spiral,
}

// Names returns the registered dataset names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the factory registered under name (case-insensitive).
func Lookup(name string) (Factory, error) {
	f, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, &UnknownDatasetError{Name: name, Known: Names()}
	}
	return f, nil
}

// Generate looks up name and builds a dataset of n points.
func Generate(name string, n int, src rand.Source) (*Graph, error) {
	if n < 0 {
		return nil, fmt.Errorf("dataset %q: negative size %d", name, n)
	}
	f, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return f(n, src), nil
}

// makePoints draws n points uniformly from [0,1)².
func makePoints(n int, src rand.Source) []Point {
	u := distuv.Uniform{Min: 0, Max: 1, Src: src}
	pts := make([]Point, n)
	for i := range pts {
		pts[i] = Point{u.Rand(), u.Rand()}
	}
	return pts
}

func labelled(name string, n int, src rand.Source, label func(x1, x2 float64) bool) *Graph {
	pts := makePoints(n, src)
	ys := make([]int, n)
	for i, p := range pts {
		if label(p[0], p[1]) {
			ys[i] = 1
		}
	}
	return &Graph{Name: name, X: pts, Y: ys}
}

// Simple labels points left of x1 = 0.5 as class 1.
func Simple(n int, src rand.Source) *Graph {
	return labelled("simple", n, src, func(x1, _ float64) bool {
		return x1 < 0.5
	})
}

// Diag labels points below the x1 + x2 = 0.5 diagonal as class 1.
func Diag(n int, src rand.Source) *Graph {
	return labelled("diag", n, src, func(x1, x2 float64) bool {
		return x1+x2 < 0.5
	})
}

// Split labels the two outer vertical bands as class 1.
func Split(n int, src rand.Source) *Graph {
	return labelled("split", n, src, func(x1, _ float64) bool {
		return x1 < 0.2 || x1 > 0.8
	})
}

// Xor labels the top-left and bottom-right quadrants as class 1.
func Xor(n int, src rand.Source) *Graph {
	return labelled("xor", n, src, func(x1, x2 float64) bool {
		return (x1 < 0.5 && x2 > 0.5) || (x1 > 0.5 && x2 < 0.5)
	})
}

// Circle labels points outside a circle centred in the unit square as class 1.
func Circle(n int, src rand.Source) *Graph {
	return labelled("circle", n, src, func(x1, x2 float64) bool {
		c1, c2 := x1-0.5, x2-0.5
		return c1*c1+c2*c2 > 0.1
	})
}

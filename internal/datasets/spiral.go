package datasets

import (
	"math"

	"golang.org/x/exp/rand"
)

// Spiral builds two interleaved spiral arms of n/2 points each.
// The first arm is class 0, the second class 1. The layout is
// deterministic, so src is ignored; an odd n drops the last point.
func Spiral(n int, _ rand.Source) *Graph {
	half := n / 2
	g := &Graph{
		Name: "spiral",
		X:    make([]Point, 0, 2*half),
		Y:    make([]int, 0, 2*half),
	}
	if half == 0 {
		return g
	}

	sx := func(t float64) float64 { return t * math.Cos(t) / 20.0 }
	sy := func(t float64) float64 { return t * math.Sin(t) / 20.0 }

	for i := 5; i < 5+half; i++ {
		t := 10.0 * float64(i) / float64(half)
		g.X = append(g.X, Point{sx(t) + 0.5, sy(t) + 0.5})
		g.Y = append(g.Y, 0)
	}
	for i := 5; i < 5+half; i++ {
		t := -10.0 * float64(i) / float64(half)
		g.X = append(g.X, Point{sy(t) + 0.5, sx(t) + 0.5})
		g.Y = append(g.Y, 1)
	}
	return g
}

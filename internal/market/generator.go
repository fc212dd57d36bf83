package market

import (
	"math/rand"
	"time"
)

// timeLayout is the label format for live points.
const timeLayout = "15:04:05"

// LiveGenerator produces synthetic prices as a bounded random walk with a
// slight upward bias.
type LiveGenerator struct {
	base float64
	rng  *rand.Rand

	// Now is the clock used for point labels. Overridable in tests.
	Now func() time.Time
}

// NewLiveGenerator creates a generator anchored at the given base price.
func NewLiveGenerator(base float64) *LiveGenerator {
	return &LiveGenerator{
		base: base,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
		Now:  time.Now,
	}
}

// Seed produces an initial window of n points anchored at the base price.
// Each point carries bounded noise plus a small upward drift per index, with
// time labels walking back one second per point.
func (g *LiveGenerator) Seed(n int) []Point {
	now := g.Now()
	points := make([]Point, 0, n)
	for i := 0; i < n; i++ {
		price := g.base + (g.rng.Float64()-0.5)*5 + float64(i)*0.2
		points = append(points, Point{
			Time:  now.Add(-time.Duration(n-i) * time.Second).Format(timeLayout),
			Price: Round2(price),
		})
	}
	return points
}

// Next produces the tick following the given last price. The delta is drawn
// from a bounded distribution biased slightly positive.
func (g *LiveGenerator) Next(lastPrice float64) Point {
	return Point{
		Time:  g.Now().Format(timeLayout),
		Price: Round2(lastPrice + (g.rng.Float64()-0.49)*2),
	}
}

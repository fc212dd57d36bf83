// Package market owns the price data model: the bounded sliding window of
// recent points, the synthetic live-mode generator, and the embedded
// historical close series used for replay.
package market

import (
	"math"

	"github.com/bapu077/quantstream-dashboard/internal/indicator"
)

// Point is a single point of the price stream. MA50 is attached in place to
// the most recently appended point once the moving average is defined;
// it is never retrofitted onto older points.
type Point struct {
	Time  string   `json:"time"`
	Price float64  `json:"price"`
	MA50  *float64 `json:"ma50,omitempty"`
}

// Window is a fixed-capacity sliding window of points. Appending beyond the
// capacity evicts the oldest point.
type Window struct {
	points []Point
	cap    int
}

// NewWindow creates an empty window with the given capacity.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{
		points: make([]Point, 0, capacity),
		cap:    capacity,
	}
}

// Append adds a point, evicting the oldest when the window is full.
func (w *Window) Append(p Point) {
	if len(w.points) == w.cap {
		copy(w.points, w.points[1:])
		w.points[len(w.points)-1] = p
		return
	}
	w.points = append(w.points, p)
}

// Reset replaces the window contents, keeping at most the last cap points.
func (w *Window) Reset(points []Point) {
	if len(points) > w.cap {
		points = points[len(points)-w.cap:]
	}
	w.points = w.points[:0]
	w.points = append(w.points, points...)
}

// Len returns the number of points currently held.
func (w *Window) Len() int { return len(w.points) }

// Cap returns the window capacity.
func (w *Window) Cap() int { return w.cap }

// Latest returns the most recently appended point.
func (w *Window) Latest() (Point, bool) {
	if len(w.points) == 0 {
		return Point{}, false
	}
	return w.points[len(w.points)-1], true
}

// Previous returns the point before the latest one.
func (w *Window) Previous() (Point, bool) {
	if len(w.points) < 2 {
		return Point{}, false
	}
	return w.points[len(w.points)-2], true
}

// Points returns a copy of the window contents, oldest first.
func (w *Window) Points() []Point {
	cp := make([]Point, len(w.points))
	copy(cp, w.points)
	return cp
}

// Prices returns the price column of the window, oldest first.
func (w *Window) Prices() []float64 {
	prices := make([]float64, len(w.points))
	for i, p := range w.points {
		prices[i] = p.Price
	}
	return prices
}

// TagLatestMA recomputes the moving average over the window and, if defined,
// rounds and attaches it to the newest point only.
func (w *Window) TagLatestMA(maWindow int) {
	if len(w.points) == 0 {
		return
	}
	ma, ok := indicator.MovingAverage(w.Prices(), maWindow)
	if !ok {
		return
	}
	v := Round2(ma)
	w.points[len(w.points)-1].MA50 = &v
}

// Round2 rounds to two decimal places, matching the display precision of the
// price stream.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

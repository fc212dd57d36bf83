package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowEviction(t *testing.T) {
	w := NewWindow(3)
	for i := 1; i <= 5; i++ {
		w.Append(Point{Time: "t", Price: float64(i)})
	}

	assert.Equal(t, 3, w.Len())
	assert.Equal(t, []float64{3, 4, 5}, w.Prices())

	latest, ok := w.Latest()
	require.True(t, ok)
	assert.Equal(t, 5.0, latest.Price)

	prev, ok := w.Previous()
	require.True(t, ok)
	assert.Equal(t, 4.0, prev.Price)
}

func TestWindowReset(t *testing.T) {
	w := NewWindow(2)
	w.Append(Point{Price: 1})

	w.Reset([]Point{{Price: 10}, {Price: 20}, {Price: 30}})
	assert.Equal(t, []float64{20, 30}, w.Prices())
}

func TestWindowTagLatestMA(t *testing.T) {
	w := NewWindow(5)
	w.Append(Point{Price: 1})
	w.Append(Point{Price: 2})

	// Below the MA window nothing is attached.
	w.TagLatestMA(3)
	latest, _ := w.Latest()
	assert.Nil(t, latest.MA50)

	w.Append(Point{Price: 3})
	w.TagLatestMA(3)

	points := w.Points()
	require.NotNil(t, points[2].MA50)
	assert.Equal(t, 2.0, *points[2].MA50)
	// Only the newest point gains the value.
	assert.Nil(t, points[0].MA50)
	assert.Nil(t, points[1].MA50)
}

func TestLiveGeneratorSeed(t *testing.T) {
	g := NewLiveGenerator(150)
	g.Now = func() time.Time { return time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC) }

	points := g.Seed(50)
	require.Len(t, points, 50)

	// Labels walk back one second per point and end just before "now".
	assert.Equal(t, "09:59:10", points[0].Time)
	assert.Equal(t, "09:59:59", points[49].Time)

	// Bounded noise plus drift keeps every seed point near the anchor.
	// Allow a cent of slack for the display rounding.
	for i, p := range points {
		low := 150 - 2.5 + float64(i)*0.2
		high := 150 + 2.5 + float64(i)*0.2
		assert.GreaterOrEqual(t, p.Price, low-0.01)
		assert.LessOrEqual(t, p.Price, high+0.01)
	}
}

func TestLiveGeneratorNext(t *testing.T) {
	g := NewLiveGenerator(150)
	last := 150.0
	for i := 0; i < 200; i++ {
		p := g.Next(last)
		// Delta is drawn from (-0.98, 1.02).
		assert.InDelta(t, last, p.Price, 1.03)
		last = p.Price
	}
}

func TestLoadHistory(t *testing.T) {
	rows, err := LoadHistory()
	require.NoError(t, err)
	require.Greater(t, len(rows), 50, "history must exceed the window size")

	for i, r := range rows {
		assert.NotEmpty(t, r.Date)
		assert.Greater(t, r.Close, 0.0)
		if i > 0 {
			assert.Greater(t, r.Date, rows[i-1].Date, "rows must stay date-ordered")
		}
	}

	p := rows[0].Point()
	assert.Equal(t, rows[0].Date, p.Time)
	assert.Equal(t, rows[0].Close, p.Price)
	assert.Nil(t, p.MA50)
}

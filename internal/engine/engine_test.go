package engine

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bapu077/quantstream-dashboard/internal/alert"
	"github.com/bapu077/quantstream-dashboard/internal/config"
	"github.com/bapu077/quantstream-dashboard/internal/ledger"
	"github.com/bapu077/quantstream-dashboard/internal/market"
	"github.com/bapu077/quantstream-dashboard/internal/metrics"
	"github.com/bapu077/quantstream-dashboard/internal/notify"
)

// step drives one tick synchronously, exactly as a timer fire would.
func (e *Engine) step() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.advanceLocked()
	e.scheduleLocked()
}

// testConfig uses hour-long tick periods so real timers never fire while a
// test drives the engine manually via step.
func testConfig(maxPoints int) *config.Config {
	return &config.Config{
		Market: config.Market{
			BasePrice:        150,
			MaxPoints:        maxPoints,
			MAWindow:         50,
			VolatilityWindow: 14,
			LiveIntervalMs:   3_600_000,
		},
		Replay: config.Replay{
			BaseIntervalMs: 3_600_000,
			Speeds:         []int{1, 5, 10},
		},
		Trading: config.Trading{InitialBalance: 10000},
	}
}

func newTestEngine(t *testing.T, maxPoints int, history []market.HistoryRow) (*Engine, *notify.Recorder) {
	t.Helper()
	rec := notify.NewRecorder()
	m := metrics.New(prometheus.NewRegistry())
	e := New(testConfig(maxPoints), history, rec, m, nil, zap.NewNop())
	t.Cleanup(e.Close)
	return e, rec
}

func rows(closes ...float64) []market.HistoryRow {
	out := make([]market.HistoryRow, len(closes))
	for i, c := range closes {
		out[i] = market.HistoryRow{Date: "2023-01-0" + string(rune('1'+i)), Close: c}
	}
	return out
}

func TestStartSeedsLiveWindow(t *testing.T) {
	e, _ := newTestEngine(t, 50, rows(100, 101, 102))
	e.Start(context.Background())

	mode, replay := e.Replay()
	assert.Equal(t, ModeLive, mode)
	assert.False(t, replay.IsPlaying)

	snap := e.Market()
	assert.Len(t, snap.Points, 50)
	require.NotNil(t, snap.Latest)
	assert.Nil(t, snap.Latest.MA50, "seed points carry no moving average")

	// The first processed tick fills a 50-point window at MA window 50,
	// so its point is tagged.
	e.step()
	snap = e.Market()
	assert.NotNil(t, snap.Latest.MA50)
}

func TestLiveTickAppendsBoundedWindow(t *testing.T) {
	e, _ := newTestEngine(t, 50, nil)
	e.Start(context.Background())

	before := e.Market().Latest.Price
	e.step()

	snap := e.Market()
	assert.Len(t, snap.Points, 50, "window stays bounded")
	assert.InDelta(t, before, snap.Latest.Price, 1.03, "next price is a bounded delta")
}

func TestSwitchToHistoricalLoadsInitialWindow(t *testing.T) {
	e, _ := newTestEngine(t, 2, rows(10, 11, 12, 13, 14))
	e.Start(context.Background())

	require.NoError(t, e.SetMode(ModeHistorical))

	mode, replay := e.Replay()
	assert.Equal(t, ModeHistorical, mode)
	assert.True(t, replay.IsPlaying)
	assert.Equal(t, 2, replay.CurrentIndex)
	assert.Equal(t, 5, replay.Total)

	snap := e.Market()
	assert.Equal(t, []float64{10, 11}, pricesOf(snap.Points))
}

func TestReplayTerminatesAtEndOfData(t *testing.T) {
	// 5-row table, window 2: two rows remain to process, then playback parks.
	e, _ := newTestEngine(t, 2, rows(10, 11, 12, 13, 14))
	e.Start(context.Background())
	require.NoError(t, e.SetMode(ModeHistorical))

	e.step()
	_, replay := e.Replay()
	assert.Equal(t, 3, replay.CurrentIndex)
	assert.True(t, replay.IsPlaying)

	e.step()
	_, replay = e.Replay()
	assert.Equal(t, 4, replay.CurrentIndex)
	assert.False(t, replay.IsPlaying, "end of data parks playback")

	// Terminal sub-state: further steps change nothing.
	e.step()
	_, replay = e.Replay()
	assert.Equal(t, 4, replay.CurrentIndex)
	assert.False(t, replay.IsPlaying)
	assert.Equal(t, []float64{13, 14}, pricesOf(e.Market().Points))
}

func TestSwitchBackToLiveDiscardsReplayProgress(t *testing.T) {
	e, _ := newTestEngine(t, 2, rows(10, 11, 12, 13, 14))
	e.Start(context.Background())
	require.NoError(t, e.SetMode(ModeHistorical))
	e.step()

	require.NoError(t, e.SetMode(ModeLive))

	mode, replay := e.Replay()
	assert.Equal(t, ModeLive, mode)
	assert.False(t, replay.IsPlaying)

	// Freshly seeded live sequence of exactly N points near the base price.
	snap := e.Market()
	require.Len(t, snap.Points, 2)
	for _, p := range snap.Points {
		assert.InDelta(t, 150, p.Price, 15)
	}
}

func TestTogglePlayback(t *testing.T) {
	e, _ := newTestEngine(t, 2, rows(10, 11, 12, 13, 14))
	e.Start(context.Background())

	// No-op in live mode.
	replay := e.TogglePlayback()
	assert.False(t, replay.IsPlaying)

	require.NoError(t, e.SetMode(ModeHistorical))
	replay = e.TogglePlayback()
	assert.False(t, replay.IsPlaying)
	replay = e.TogglePlayback()
	assert.True(t, replay.IsPlaying)
}

func TestSetSpeedChangesTickPeriod(t *testing.T) {
	e, _ := newTestEngine(t, 2, rows(10, 11, 12, 13, 14))
	e.Start(context.Background())
	require.NoError(t, e.SetMode(ModeHistorical))

	require.NoError(t, e.SetSpeed(10))

	e.mu.Lock()
	period, ok := e.tickPeriodLocked()
	e.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, testConfig(2).Replay.BaseIntervalMs/10,
		int(period.Milliseconds()))

	assert.ErrorIs(t, e.SetSpeed(0), ErrInvalidSpeed)
	assert.ErrorIs(t, e.SetSpeed(-5), ErrInvalidSpeed)
}

func TestResetReplayReentersInitialWindow(t *testing.T) {
	e, _ := newTestEngine(t, 2, rows(10, 11, 12, 13, 14))
	e.Start(context.Background())
	require.NoError(t, e.SetMode(ModeHistorical))
	e.step()
	e.step() // terminal

	e.ResetReplay()

	_, replay := e.Replay()
	assert.True(t, replay.IsPlaying)
	assert.Equal(t, 2, replay.CurrentIndex)
	assert.Equal(t, []float64{10, 11}, pricesOf(e.Market().Points))
}

func TestAlertFiresOnThirdReplayTick(t *testing.T) {
	// Window 1: row 0 seeds the window, row 1 is skipped by the replay
	// cursor, rows 2..4 are the evaluated ticks 148, 149, 151.
	e, rec := newTestEngine(t, 1, rows(140, 145, 148, 149, 151))
	e.Start(context.Background())
	require.NoError(t, e.SetMode(ModeHistorical))

	_, err := e.AddAlert(alert.Above, 150)
	require.NoError(t, err)

	e.step()
	e.step()
	assert.Empty(t, rec.Events(), "148 and 149 stay below the threshold")

	e.step()
	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "Price Alert Triggered!", events[0].Title)

	alerts := e.Alerts()
	require.Len(t, alerts, 1)
	assert.True(t, alerts[0].Triggered)
}

func TestHistoricalPointsHaveNoRetroactiveMA(t *testing.T) {
	e, _ := newTestEngine(t, 3, rows(10, 11, 12, 13, 14))
	e.Start(context.Background())
	require.NoError(t, e.SetMode(ModeHistorical))
	e.step()

	// MA window (50) far exceeds the data, so nothing is ever tagged; the
	// initial historical rows in particular never gain one.
	for _, p := range e.Market().Points {
		assert.Nil(t, p.MA50)
	}
}

func TestEngineTradeCommands(t *testing.T) {
	e, rec := newTestEngine(t, 2, rows(100, 100, 100))
	e.Start(context.Background())
	require.NoError(t, e.SetMode(ModeHistorical))
	ctx := context.Background()

	trade, err := e.Buy(ctx, decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.Equal(t, ledger.Buy, trade.Type)

	snap := e.Ledger()
	assert.Equal(t, "9000", snap.Balance.String())
	assert.Equal(t, "10000", snap.TotalEquity.String(), "equity derives from price 100")

	_, err = e.Sell(ctx, decimal.NewFromInt(100))
	assert.ErrorIs(t, err, ledger.ErrInsufficientHoldings)

	trades := e.Trades()
	require.Len(t, trades, 1)

	// Fill + rejection notifications were emitted.
	assert.Len(t, rec.Events(), 2)
}

func TestUpdateHandlerReceivesEveryTick(t *testing.T) {
	e, _ := newTestEngine(t, 2, rows(10, 11, 12, 13, 14))
	var updates []Update
	e.SetUpdateHandler(func(u Update) { updates = append(updates, u) })

	e.Start(context.Background())
	require.NoError(t, e.SetMode(ModeHistorical))
	e.step()
	e.step()

	require.Len(t, updates, 2)
	assert.Equal(t, 13.0, updates[0].Point.Price)
	assert.Equal(t, 14.0, updates[1].Point.Price)
	assert.Equal(t, ModeHistorical, updates[0].Mode)
	assert.False(t, updates[1].Replay.IsPlaying, "final update carries the parked state")
}

func pricesOf(points []market.Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Price
	}
	return out
}

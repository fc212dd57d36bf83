// Package engine coordinates the simulation core: it owns the live/historical
// mode state machine, drives the price generator on a timer, feeds every new
// point through the indicator layer and the alert monitor, and exposes the
// command/query surface consumed by the dashboard.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bapu077/quantstream-dashboard/internal/alert"
	"github.com/bapu077/quantstream-dashboard/internal/config"
	"github.com/bapu077/quantstream-dashboard/internal/indicator"
	"github.com/bapu077/quantstream-dashboard/internal/ledger"
	"github.com/bapu077/quantstream-dashboard/internal/market"
	"github.com/bapu077/quantstream-dashboard/internal/metrics"
	"github.com/bapu077/quantstream-dashboard/internal/notify"
)

// Mode selects the active price generation strategy.
type Mode string

const (
	ModeLive       Mode = "live"
	ModeHistorical Mode = "historical"
)

// Command boundary errors.
var (
	ErrInvalidMode  = errors.New("mode must be \"live\" or \"historical\"")
	ErrInvalidSpeed = errors.New("speed must be a positive multiplier")
)

// ReplayState describes historical playback progress.
type ReplayState struct {
	IsPlaying    bool `json:"isPlaying"`
	Speed        int  `json:"speed"`
	CurrentIndex int  `json:"currentIndex"`
	Total        int  `json:"total"`
}

// MarketSnapshot is the full market query payload: the bounded window plus
// the stats derived from it.
type MarketSnapshot struct {
	Points         []market.Point  `json:"points"`
	Latest         *market.Point   `json:"latest,omitempty"`
	Change         float64         `json:"change"`
	ChangePercent  float64         `json:"change_percent"`
	Volatility     *float64        `json:"volatility,omitempty"`
	MACD           *indicator.MACD `json:"macd,omitempty"`
	PendingAlerts  int             `json:"pending_alerts"`
	ShowIndicators bool            `json:"show_indicators"`
}

// Update is pushed to stream subscribers after every processed tick.
type Update struct {
	Point         market.Point    `json:"point"`
	Mode          Mode            `json:"mode"`
	Replay        ReplayState     `json:"replay"`
	Change        float64         `json:"change"`
	ChangePercent float64         `json:"change_percent"`
	Volatility    *float64        `json:"volatility,omitempty"`
	MACD          *indicator.MACD `json:"macd,omitempty"`
}

// Engine is the simulation core. All state mutation — ticks and commands —
// is serialized through a single mutex, so every event runs to completion
// before the next begins.
type Engine struct {
	logger  *zap.Logger
	cfg     *config.Config
	metrics *metrics.Metrics

	mu             sync.Mutex
	mode           Mode
	replay         ReplayState
	window         *market.Window
	gen            *market.LiveGenerator
	history        []market.HistoryRow
	monitor        *alert.Monitor
	ledger         *ledger.Ledger
	showIndicators bool

	// Timer handle for the active tick stream. timerGen invalidates fires
	// from a timer that raced a cancellation.
	timer    *time.Timer
	timerGen uint64
	closed   bool

	// ctx carries cancellation from Start to tick-driven notification sends.
	ctx context.Context

	onUpdate func(Update)
}

// New creates an engine over the given historical table. db may be nil to
// disable the trade journal.
func New(cfg *config.Config, history []market.HistoryRow, notifier notify.Notifier, m *metrics.Metrics, db *gorm.DB, logger *zap.Logger) *Engine {
	e := &Engine{
		logger:         logger.Named("engine"),
		cfg:            cfg,
		metrics:        m,
		mode:           ModeLive,
		window:         market.NewWindow(cfg.Market.MaxPoints),
		gen:            market.NewLiveGenerator(cfg.Market.BasePrice),
		history:        history,
		showIndicators: true,
		replay: ReplayState{
			Speed: 1,
			Total: len(history),
		},
		ctx: context.Background(),
	}
	e.monitor = alert.NewMonitor(notifier, logger)
	e.ledger = ledger.New(
		decimal.NewFromFloat(cfg.Trading.InitialBalance),
		e.latestPriceLocked, // called only while e.mu is held
		notifier,
		logger,
		db,
	)
	return e
}

// SetUpdateHandler registers the callback invoked after every processed tick.
// Must be called before Start.
func (e *Engine) SetUpdateHandler(fn func(Update)) {
	e.onUpdate = fn
}

// Start seeds the live window and begins ticking. The initial state is Live.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ctx = ctx
	e.enterLiveLocked()
	e.logger.Info("Engine started",
		zap.Int("window", e.cfg.Market.MaxPoints),
		zap.Int("history_rows", len(e.history)))
}

// Close cancels the outstanding timer. The engine accepts no further ticks.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.cancelTimerLocked()
	e.logger.Info("Engine stopped")
}

// latestPriceLocked is the ledger's snapshot read of the latest committed
// point. The ledger is only ever invoked while the engine mutex is held, so
// this must not lock.
func (e *Engine) latestPriceLocked() (decimal.Decimal, bool) {
	latest, ok := e.window.Latest()
	if !ok {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(latest.Price), true
}

// --- timer scheduling -------------------------------------------------------

// cancelTimerLocked stops any pending fire and invalidates in-flight ones.
func (e *Engine) cancelTimerLocked() {
	e.timerGen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// scheduleLocked arms the timer for the next tick, if the current state
// produces ticks. At most one timer is ever armed.
func (e *Engine) scheduleLocked() {
	e.cancelTimerLocked()
	period, ok := e.tickPeriodLocked()
	if !ok {
		return
	}
	gen := e.timerGen
	e.timer = time.AfterFunc(period, func() { e.tick(gen) })
}

func (e *Engine) tickPeriodLocked() (time.Duration, bool) {
	switch {
	case e.closed:
		return 0, false
	case e.mode == ModeLive:
		return time.Duration(e.cfg.Market.LiveIntervalMs) * time.Millisecond, true
	case e.replay.IsPlaying:
		base := time.Duration(e.cfg.Replay.BaseIntervalMs) * time.Millisecond
		return base / time.Duration(e.replay.Speed), true
	default:
		return 0, false
	}
}

func (e *Engine) tick(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.timerGen || e.closed {
		return
	}
	e.advanceLocked()
	e.scheduleLocked()
}

// advanceLocked processes exactly one tick of the active mode.
func (e *Engine) advanceLocked() {
	if e.mode == ModeLive {
		last, ok := e.window.Latest()
		lastPrice := e.cfg.Market.BasePrice
		if ok {
			lastPrice = last.Price
		}
		e.processPointLocked(e.gen.Next(lastPrice))
		return
	}

	// Historical advancement consumes the row after CurrentIndex; reaching
	// the final row parks playback. End of data is terminal, not an error.
	if e.replay.CurrentIndex >= len(e.history)-1 {
		e.replay.IsPlaying = false
		return
	}
	e.replay.CurrentIndex++
	if e.replay.CurrentIndex >= len(e.history)-1 {
		// Park before processing so the final update carries paused state.
		e.replay.IsPlaying = false
		e.logger.Info("Historical replay reached end of data",
			zap.Int("rows", len(e.history)))
	}
	e.processPointLocked(e.history[e.replay.CurrentIndex].Point())
	e.metrics.ReplayPosition.Set(float64(e.replay.CurrentIndex))
}

// processPointLocked appends the point, tags the moving average, evaluates
// alerts, and fans the update out to subscribers.
func (e *Engine) processPointLocked(p market.Point) {
	e.window.Append(p)
	e.window.TagLatestMA(e.cfg.Market.MAWindow)

	e.metrics.TicksTotal.WithLabelValues(string(e.mode)).Inc()
	e.metrics.WindowSize.Set(float64(e.window.Len()))

	latest, _ := e.window.Latest()
	fired := e.monitor.Evaluate(e.ctx, latest.Price)
	if len(fired) > 0 {
		e.metrics.AlertsTriggered.Add(float64(len(fired)))
	}

	if e.onUpdate != nil {
		update := Update{
			Point:  latest,
			Mode:   e.mode,
			Replay: e.replay,
		}
		update.Change, update.ChangePercent = e.priceChangeLocked()
		update.Volatility, update.MACD = e.indicatorsLocked()
		e.onUpdate(update)
	}
}

// --- mode transitions -------------------------------------------------------

// enterLiveLocked reseeds a fresh live window and starts the live timer.
// Replay progress is discarded.
func (e *Engine) enterLiveLocked() {
	e.mode = ModeLive
	e.replay.IsPlaying = false
	e.window.Reset(e.gen.Seed(e.cfg.Market.MaxPoints))
	e.scheduleLocked()
}

// enterHistoricalLocked loads the initial historical window and starts
// playback from the window boundary.
func (e *Engine) enterHistoricalLocked() {
	e.mode = ModeHistorical

	n := e.cfg.Market.MaxPoints
	if n > len(e.history) {
		n = len(e.history)
	}
	points := make([]market.Point, 0, n)
	for _, row := range e.history[:n] {
		points = append(points, row.Point())
	}
	e.window.Reset(points)

	e.replay.CurrentIndex = n
	e.replay.IsPlaying = true
	e.replay.Total = len(e.history)
	e.metrics.ReplayPosition.Set(float64(n))
	e.metrics.WindowSize.Set(float64(e.window.Len()))
	e.scheduleLocked()
}

// --- commands ---------------------------------------------------------------

// SetMode switches between live generation and historical replay. Switching
// is idempotent: re-selecting the active mode is a no-op.
func (e *Engine) SetMode(mode Mode) error {
	if mode != ModeLive && mode != ModeHistorical {
		return ErrInvalidMode
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode == mode {
		return nil
	}
	e.logger.Info("Switching mode", zap.String("mode", string(mode)))
	if mode == ModeLive {
		e.enterLiveLocked()
	} else {
		e.enterHistoricalLocked()
	}
	return nil
}

// TogglePlayback flips historical playback between playing and paused.
// No-op in live mode. Returns the resulting replay state.
func (e *Engine) TogglePlayback() ReplayState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode != ModeHistorical {
		return e.replay
	}
	e.replay.IsPlaying = !e.replay.IsPlaying
	e.scheduleLocked()
	return e.replay
}

// SetSpeed updates the playback speed multiplier. When playing, the timer is
// rescheduled so the next tick already uses the new period.
func (e *Engine) SetSpeed(speed int) error {
	if speed <= 0 {
		return ErrInvalidSpeed
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.replay.Speed = speed
	if e.mode == ModeHistorical && e.replay.IsPlaying {
		e.scheduleLocked()
	}
	return nil
}

// ResetReplay re-enters historical playback from the initial window,
// regardless of current mode or position.
func (e *Engine) ResetReplay() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enterHistoricalLocked()
}

// SetIndicatorVisibility stores the dashboard's indicator display flag.
func (e *Engine) SetIndicatorVisibility(visible bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.showIndicators = visible
}

// AddAlert registers a new price threshold alert.
func (e *Engine) AddAlert(typ alert.Type, threshold float64) (alert.Alert, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.monitor.Add(typ, threshold)
}

// Buy executes a paper buy at the latest price.
func (e *Engine) Buy(ctx context.Context, quantity decimal.Decimal) (ledger.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	trade, err := e.ledger.Buy(ctx, quantity)
	if err != nil {
		e.metrics.TradesRejected.WithLabelValues(string(ledger.Buy)).Inc()
		return ledger.Trade{}, err
	}
	e.metrics.TradesTotal.WithLabelValues(string(ledger.Buy)).Inc()
	return trade, nil
}

// Sell executes a paper sell at the latest price.
func (e *Engine) Sell(ctx context.Context, quantity decimal.Decimal) (ledger.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	trade, err := e.ledger.Sell(ctx, quantity)
	if err != nil {
		e.metrics.TradesRejected.WithLabelValues(string(ledger.Sell)).Inc()
		return ledger.Trade{}, err
	}
	e.metrics.TradesTotal.WithLabelValues(string(ledger.Sell)).Inc()
	return trade, nil
}

// --- queries ----------------------------------------------------------------

// Market returns the bounded window and the stats derived from it.
func (e *Engine) Market() MarketSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := MarketSnapshot{
		Points:         e.window.Points(),
		PendingAlerts:  e.monitor.PendingCount(),
		ShowIndicators: e.showIndicators,
	}
	if latest, ok := e.window.Latest(); ok {
		snap.Latest = &latest
	}
	snap.Change, snap.ChangePercent = e.priceChangeLocked()
	snap.Volatility, snap.MACD = e.indicatorsLocked()
	return snap
}

// Replay returns the current mode and playback state.
func (e *Engine) Replay() (Mode, ReplayState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode, e.replay
}

// Alerts returns the alert set with trigger status, read-only.
func (e *Engine) Alerts() []alert.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.monitor.Alerts()
}

// Ledger returns the account snapshot with equity derived from the latest price.
func (e *Engine) Ledger() ledger.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Snapshot()
}

// Trades returns the trade log, newest first.
func (e *Engine) Trades() []ledger.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Trades()
}

func (e *Engine) priceChangeLocked() (change, percent float64) {
	latest, ok := e.window.Latest()
	if !ok {
		return 0, 0
	}
	previous, ok := e.window.Previous()
	if !ok || previous.Price == 0 {
		return 0, 0
	}
	change = market.Round2(latest.Price - previous.Price)
	percent = market.Round2((latest.Price - previous.Price) / previous.Price * 100)
	return change, percent
}

func (e *Engine) indicatorsLocked() (*float64, *indicator.MACD) {
	prices := e.window.Prices()
	var vol *float64
	if v, ok := indicator.Volatility(prices, e.cfg.Market.VolatilityWindow); ok {
		vol = &v
	}
	var macd *indicator.MACD
	if m, ok := indicator.ComputeMACD(prices); ok {
		macd = &m
	}
	return vol, macd
}

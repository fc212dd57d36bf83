package models

import "gorm.io/gorm"

// TradeRecord is the persisted journal row for an executed paper trade.
// The journal is append-only history for the dashboard trade table; engine
// state is never restored from it.
type TradeRecord struct {
	gorm.Model
	TradeID    string  `json:"trade_id" gorm:"uniqueIndex"`
	Side       string  `json:"side"` // "buy" or "sell"
	Quantity   float64 `json:"quantity"`
	Price      float64 `json:"price"`
	Value      float64 `json:"value"`
	ExecutedAt int64   `json:"executed_at"`
}

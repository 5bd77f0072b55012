package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is the downstream purchase record created once a lot is won or
// bought outright. Its existence marks a lot as finalized.
type Order struct {
	ID        string          `json:"id"`
	LotID     string          `json:"lot_id"`
	BuyerID   string          `json:"buyer_id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

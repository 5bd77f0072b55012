package model

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// LotStatus is the lifecycle state of an auction lot.
type LotStatus string

const (
	// LotStatusInitial is a freshly created lot before any bidding activity.
	LotStatusInitial LotStatus = "initial"

	// LotStatusActive is a lot that is open for bidding. The stored value
	// keeps the doubled "n" present in existing documents.
	LotStatusActive LotStatus = "happenning"

	// LotStatusEnded is a closed lot. No ownership mutation may happen after
	// this state is reached.
	LotStatusEnded LotStatus = "ended"
)

// Ownership is the standing of one participant on one lot. A lot holds at
// most one Ownership per user; repeated bids mutate the record in place.
type Ownership struct {
	UserID   string          `json:"user_id"`
	UserName string          `json:"user_name"`
	Amount   decimal.Decimal `json:"amount"`
	IsAuto   bool            `json:"is_auto"`
	LimitBid decimal.Decimal `json:"limit_bid"`
}

// Lot is an auction listing.
type Lot struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	PriceBuyNow decimal.Decimal `json:"price_buy_now"`

	StartDate    time.Time `json:"start_date"`
	FinishedTime time.Time `json:"finished_time"`
	// BidHideTime is a grace window after closing during which the lot is
	// still displayed. Zero until the lot is closed.
	BidHideTime time.Time `json:"bid_hide_time,omitempty"`

	Status           LotStatus   `json:"status"`
	HasActiveAutoBid bool        `json:"has_active_auto_bid"`
	TopOwnerships    []Ownership `json:"top_ownerships"`

	// Version guards every read-modify-write cycle on the lot. Writers must
	// compare-and-swap against the version they read.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ownership returns a pointer to the participant's record, or nil.
func (l *Lot) Ownership(userID string) *Ownership {
	for i := range l.TopOwnerships {
		if l.TopOwnerships[i].UserID == userID {
			return &l.TopOwnerships[i]
		}
	}
	return nil
}

// HighestOwnership returns the record with the maximum amount. Ties go to
// the earliest record in the list.
func (l *Lot) HighestOwnership() *Ownership {
	var highest *Ownership
	for i := range l.TopOwnerships {
		o := &l.TopOwnerships[i]
		if highest == nil || o.Amount.GreaterThan(highest.Amount) {
			highest = o
		}
	}
	return highest
}

// AutoOwnerships returns the records with a live proxy bid, sorted by
// limit descending. The sort is stable so equal limits keep list order.
func (l *Lot) AutoOwnerships() []*Ownership {
	var autos []*Ownership
	for i := range l.TopOwnerships {
		if l.TopOwnerships[i].IsAuto {
			autos = append(autos, &l.TopOwnerships[i])
		}
	}
	sort.SliceStable(autos, func(i, j int) bool {
		return autos[i].LimitBid.GreaterThan(autos[j].LimitBid)
	})
	return autos
}

// HasBuyNow reports whether the lot offers an instant-purchase price.
func (l *Lot) HasBuyNow() bool {
	return l.PriceBuyNow.IsPositive()
}

// IsExpired reports whether the bidding deadline has passed.
func (l *Lot) IsExpired(now time.Time) bool {
	return now.After(l.FinishedTime)
}

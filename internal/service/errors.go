package service

import "errors"

// Business-rule failures. Handlers map these to HTTP status codes; the wire
// messages stay deliberately terse.
var (
	// ErrLotNotFound indicates the referenced lot does not exist.
	ErrLotNotFound = errors.New("lot not found")

	// ErrSelfBid indicates the lot owner tried to bid on their own lot.
	ErrSelfBid = errors.New("cannot bid on own lot")

	// ErrLotEnded indicates the lot is closed and takes no further bids.
	ErrLotEnded = errors.New("lot already ended")

	// ErrBidTooLow indicates the bid is below the bidder's current standing.
	// Equal amounts are accepted; standings never decrease.
	ErrBidTooLow = errors.New("bid below current amount")

	// ErrNoBuyNow indicates the lot has no instant-purchase price.
	ErrNoBuyNow = errors.New("lot has no buy now price")

	// ErrConflict indicates the write lost the optimistic-concurrency race
	// repeatedly and the caller should retry the request.
	ErrConflict = errors.New("lot was modified concurrently")
)

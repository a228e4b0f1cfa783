package oracle

import (
	"context"
	"errors"

	"RoundLedger/internal/state"
)

// ErrPriceNotFound is returned when a feed has no published price.
var ErrPriceNotFound = errors.New("oracle price not found")

// Price is a raw oracle observation before normalization. Price carries
// -Exponent decimal places; PublishTime is unix seconds.
type Price struct {
	Price       int64
	Exponent    int32
	PublishTime int64
}

// PriceReader supplies oracle prices to the engine. Implementations must be
// safe for use from the engine goroutine; reads may block on I/O.
type PriceReader interface {
	ReadPrice(ctx context.Context, feed state.FeedID) (Price, error)
}

// StaticReader serves prices from a fixed map. Used in tests and for
// bootstrapping without a live feed.
type StaticReader struct {
	prices map[state.FeedID]Price
}

func NewStaticReader() *StaticReader {
	return &StaticReader{prices: make(map[state.FeedID]Price)}
}

// Set installs or replaces the price for a feed.
func (r *StaticReader) Set(feed state.FeedID, p Price) {
	r.prices[feed] = p
}

func (r *StaticReader) ReadPrice(_ context.Context, feed state.FeedID) (Price, error) {
	p, ok := r.prices[feed]
	if !ok {
		return Price{}, ErrPriceNotFound
	}
	return p, nil
}

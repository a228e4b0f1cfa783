package state

// Asset is one tracked asset inside a battle group. Asset ids are allocated
// per-group starting at 1.
type Asset struct {
	ID      uint64
	GroupID uint64
	RoundID uint64
	Symbol  string
	Feed    FeedID

	// Normalized prices (PriceScale). Nil until captured; immutable once set.
	StartPrice *int64
	FinalPrice *int64

	// GrowthRateBps = (final - start) / start in bps, set by end finalization.
	GrowthRateBps *int64

	CreatedAt int64
}

// Clone returns a deep copy for snapshot emission.
func (a *Asset) Clone() *Asset {
	cp := *a
	if a.StartPrice != nil {
		v := *a.StartPrice
		cp.StartPrice = &v
	}
	if a.FinalPrice != nil {
		v := *a.FinalPrice
		cp.FinalPrice = &v
	}
	if a.GrowthRateBps != nil {
		v := *a.GrowthRateBps
		cp.GrowthRateBps = &v
	}
	return &cp
}

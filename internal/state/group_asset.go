package state

// GroupAsset is one battle group inside a group-battle round. Group ids are
// allocated per-round starting at 1.
type GroupAsset struct {
	ID      uint64
	RoundID uint64
	Symbol  string

	TotalAssets uint64

	// Start-side capture progress: count of member assets with a start price,
	// and the timestamp when the group became fully start-captured.
	FinalizedStartPriceAssets uint64
	StartPriceAt              *int64

	// End-side capture progress.
	FinalizedEndPriceAssets uint64
	EndPriceCaptured        bool

	// Growth aggregates, populated by end-side finalization.
	TotalGrowthRateBps int64
	AvgGrowthRateBps   *int64

	CreatedAt int64
}

// StartCaptured reports whether every member asset has a start price.
func (g *GroupAsset) StartCaptured() bool {
	return g.StartPriceAt != nil
}

// Clone returns a deep copy for snapshot emission.
func (g *GroupAsset) Clone() *GroupAsset {
	cp := *g
	if g.StartPriceAt != nil {
		v := *g.StartPriceAt
		cp.StartPriceAt = &v
	}
	if g.AvgGrowthRateBps != nil {
		v := *g.AvgGrowthRateBps
		cp.AvgGrowthRateBps = &v
	}
	return &cp
}

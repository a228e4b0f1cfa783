package state

// Round is one prediction round. Rounds are identified by a monotonically
// increasing counter allocated from Config.RoundCounter.
type Round struct {
	ID         uint64
	MarketType MarketType
	Status     RoundStatus

	StartTime     int64 // unix seconds
	EndTime       int64
	BetCutoffTime int64

	// Single-asset prices (normalized to PriceScale). Nil until captured.
	StartPrice *int64
	FinalPrice *int64

	TotalBets   uint64
	SettledBets uint64

	// Group-battle bookkeeping.
	TotalGroups         uint64
	CapturedStartGroups uint64
	CapturedEndGroups   uint64
	WinnerGroupIDs      []uint64

	// Pool accounting (token base units).
	TotalPool         int64
	TotalDrawStake    int64
	TotalFeeCollected int64
	TotalRewardPool   int64
	WinnersWeight     int64

	CreatedAt int64
	SettledAt *int64
}

// IsFullDraw reports whether group settlement resolved to all groups tied,
// in which case every bet is refunded and no fee is taken.
func (r *Round) IsFullDraw() bool {
	return r.MarketType == MarketTypeGroupBattle &&
		r.TotalGroups > 0 &&
		uint64(len(r.WinnerGroupIDs)) == r.TotalGroups
}

// IsWinnerGroup reports whether groupID is among the winner groups.
func (r *Round) IsWinnerGroup(groupID uint64) bool {
	for _, id := range r.WinnerGroupIDs {
		if id == groupID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy for snapshot emission.
func (r *Round) Clone() *Round {
	cp := *r
	if r.StartPrice != nil {
		v := *r.StartPrice
		cp.StartPrice = &v
	}
	if r.FinalPrice != nil {
		v := *r.FinalPrice
		cp.FinalPrice = &v
	}
	if r.SettledAt != nil {
		v := *r.SettledAt
		cp.SettledAt = &v
	}
	cp.WinnerGroupIDs = make([]uint64, len(r.WinnerGroupIDs))
	copy(cp.WinnerGroupIDs, r.WinnerGroupIDs)
	return &cp
}

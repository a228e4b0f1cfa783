package state

import "github.com/google/uuid"

// Bet is one wager on a round. Bet ids are allocated per-round starting at 1.
type Bet struct {
	ID      uint64
	RoundID uint64

	// GroupID is set for group-battle bets, nil for single-asset bets.
	GroupID *uint64

	Bettor    uuid.UUID
	Amount    int64
	Direction Direction

	// Weight = amount × direction_factor × time_factor / 10^8,
	// fixed at placement time.
	Weight int64

	Status  BetStatus
	Claimed bool

	CreatedAt int64
}

// Clone returns a deep copy for snapshot emission.
func (b *Bet) Clone() *Bet {
	cp := *b
	if b.GroupID != nil {
		v := *b.GroupID
		cp.GroupID = &v
	}
	return &cp
}

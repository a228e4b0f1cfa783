package state

import "github.com/google/uuid"

// Config is the global protocol configuration singleton. It is created once
// by Initialize and mutated only by admin operations.
type Config struct {
	Admin    uuid.UUID
	Keepers  []uuid.UUID
	Treasury uuid.UUID

	// OracleFeed is the default price feed for single-asset rounds.
	OracleFeed      FeedID
	MaxPriceAgeSecs int64

	// Fees in basis points, per market type.
	FeeSingleBps int64
	FeeGroupBps  int64

	MinBetAmount int64

	// BetCutoffWindowSecs closes betting this many seconds before round end.
	BetCutoffWindowSecs int64

	// Time-factor decay range: a bet placed at round start gets
	// MaxTimeFactorBps, one at the cutoff gets MinTimeFactorBps.
	MinTimeFactorBps int64
	MaxTimeFactorBps int64

	// DefaultDirectionFactorBps applies to Up/Down bets.
	DefaultDirectionFactorBps int64

	// RoundCounter is the id of the most recently created round.
	RoundCounter uint64

	Status  ProgramStatus
	Version int32
}

// IsKeeper reports whether id is in the keeper authority set.
// The admin is implicitly a keeper.
func (c *Config) IsKeeper(id uuid.UUID) bool {
	if id == c.Admin {
		return true
	}
	for _, k := range c.Keepers {
		if k == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy for snapshot emission.
func (c *Config) Clone() *Config {
	cp := *c
	cp.Keepers = make([]uuid.UUID, len(c.Keepers))
	copy(cp.Keepers, c.Keepers)
	return &cp
}

package state

import (
	"encoding/hex"
	"fmt"
)

// MarketType distinguishes the two round flavors.
type MarketType int32

const (
	// MarketTypeSingleAsset rounds predict one oracle feed's price movement.
	MarketTypeSingleAsset MarketType = iota
	// MarketTypeGroupBattle rounds pit groups of assets against each other
	// by average growth rate.
	MarketTypeGroupBattle
)

func (m MarketType) String() string {
	switch m {
	case MarketTypeSingleAsset:
		return "single_asset"
	case MarketTypeGroupBattle:
		return "group_battle"
	default:
		return "unknown"
	}
}

// RoundStatus is the round lifecycle state machine:
// Scheduled → Active → Ended. No other transitions exist.
type RoundStatus int32

const (
	RoundStatusScheduled RoundStatus = iota
	RoundStatusActive
	RoundStatusEnded
)

func (s RoundStatus) String() string {
	switch s {
	case RoundStatusScheduled:
		return "scheduled"
	case RoundStatusActive:
		return "active"
	case RoundStatusEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// BetStatus is the per-bet settlement outcome.
type BetStatus int32

const (
	BetStatusPending BetStatus = iota
	BetStatusWon
	BetStatusLost
	BetStatusDraw
)

func (s BetStatus) String() string {
	switch s {
	case BetStatusPending:
		return "pending"
	case BetStatusWon:
		return "won"
	case BetStatusLost:
		return "lost"
	case BetStatusDraw:
		return "draw"
	default:
		return "unknown"
	}
}

// ProgramStatus gates all mutating operations.
type ProgramStatus int32

const (
	ProgramStatusActive ProgramStatus = iota
	ProgramStatusEmergencyPaused
)

func (s ProgramStatus) String() string {
	switch s {
	case ProgramStatusActive:
		return "active"
	case ProgramStatusEmergencyPaused:
		return "emergency_paused"
	default:
		return "unknown"
	}
}

// DirectionKind discriminates the bet direction union.
type DirectionKind uint8

const (
	// DirectionUp wins if the final price is strictly above the start price.
	DirectionUp DirectionKind = iota
	// DirectionDown wins if the final price is strictly below the start price.
	DirectionDown
	// DirectionPercentChange wins if the realized change in bps lands within
	// the bet's tolerance window around the target.
	DirectionPercentChange
)

// Direction is a tagged union: TargetBps is only meaningful for
// DirectionPercentChange and may be negative.
type Direction struct {
	Kind      DirectionKind
	TargetBps int32
}

func Up() Direction   { return Direction{Kind: DirectionUp} }
func Down() Direction { return Direction{Kind: DirectionDown} }

// PercentChange targets a signed basis-point move, e.g. 250 for +2.5%.
func PercentChange(targetBps int32) Direction {
	return Direction{Kind: DirectionPercentChange, TargetBps: targetBps}
}

func (d Direction) String() string {
	switch d.Kind {
	case DirectionUp:
		return "up"
	case DirectionDown:
		return "down"
	case DirectionPercentChange:
		return fmt.Sprintf("percent_change(%d)", d.TargetBps)
	default:
		return "unknown"
	}
}

// FeedID identifies an oracle price feed (32-byte feed account identifier).
type FeedID [32]byte

func (f FeedID) String() string {
	return hex.EncodeToString(f[:])
}

// IsZero reports whether the feed ID is unset.
func (f FeedID) IsZero() bool {
	return f == FeedID{}
}

// ParseFeedID decodes a 64-char hex string into a FeedID.
func ParseFeedID(s string) (FeedID, error) {
	var f FeedID
	b, err := hex.DecodeString(s)
	if err != nil {
		return f, fmt.Errorf("parse feed id: %w", err)
	}
	if len(b) != len(f) {
		return f, fmt.Errorf("parse feed id: want %d bytes, got %d", len(f), len(b))
	}
	copy(f[:], b)
	return f, nil
}

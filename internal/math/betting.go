package math

import (
	"errors"
	"fmt"
	"math/big"
)

const (
	// BpsScale is the basis-point denominator (10_000 bps == 100%).
	BpsScale = 10_000

	// WeightScale divides the amount × direction × time product back into
	// token base units (BpsScale squared).
	WeightScale = 100_000_000

	// priceDecimals is the normalized price precision shared with the engine.
	priceDecimals = 6
)

// ErrInvalidPrice is returned for non-positive or non-normalizable prices.
var ErrInvalidPrice = errors.New("invalid price")

// NormalizePrice rescales a raw oracle price with the given decimal exponent
// to the canonical 6-decimal fixed point. An exponent of -8 means the raw
// price carries 8 decimals, so it is divided by 100.
func NormalizePrice(raw int64, exponent int32) (int64, error) {
	if raw <= 0 {
		return 0, ErrInvalidPrice
	}

	decimals := -exponent
	if decimals < 0 {
		return 0, fmt.Errorf("%w: positive exponent %d", ErrInvalidPrice, exponent)
	}

	shift := int64(decimals) - priceDecimals
	if shift == 0 {
		return raw, nil
	}

	v := getInt128()
	defer putInt128(v)
	v.SetInt64(raw)

	pow := new(big.Int).Exp(big.NewInt(10), big.NewInt(abs64(shift)), nil)
	if shift > 0 {
		v.Quo(v, pow)
	} else {
		v.Mul(v, pow)
	}

	if !v.IsInt64() {
		return 0, fmt.Errorf("%w: overflow normalizing %d e%d", ErrInvalidPrice, raw, exponent)
	}

	normalized := v.Int64()
	if normalized <= 0 {
		return 0, ErrInvalidPrice
	}
	return normalized, nil
}

// TimeFactorBps computes the linearly decaying time factor for a bet placed
// at now within [start, end]: maxBps at start, minBps at end. Out-of-range
// timestamps clamp to the boundary values.
func TimeFactorBps(now, start, end, minBps, maxBps int64) int64 {
	if end <= start || now <= start {
		return maxBps
	}
	if now >= end {
		return minBps
	}

	remaining := end - now
	duration := end - start

	// min + (max-min) * remaining / duration; all operands fit in int64
	// because bps values are small.
	factor, err := MulDiv(maxBps-minBps, remaining, duration)
	if err != nil {
		return minBps
	}
	return minBps + factor
}

// PercentFactorBpsSingle computes the direction factor for a percentage bet on
// a single-asset round: 10000 + 100·p² where p is the target in percent.
// Expressed in bps arithmetic this is 10000 + target²/100.
func PercentFactorBpsSingle(targetBps int32) int64 {
	t := int64(targetBps)
	return BpsScale + t*t/100
}

// PercentFactorBpsGroup computes the direction factor for a percentage bet on
// a group-battle round: 10000 + 100·|p|, i.e. 10000 + |target| in bps.
func PercentFactorBpsGroup(targetBps int32) int64 {
	return BpsScale + abs64(int64(targetBps))
}

// BetWeight computes amount × directionFactorBps × timeFactorBps / 10^8.
func BetWeight(amount, directionFactorBps, timeFactorBps int64) (int64, error) {
	return Mul3Div(amount, directionFactorBps, timeFactorBps, WeightScale)
}

// GrowthRateBps computes (final - start) / start in basis points, truncated
// toward zero. Negative results are valid (asset declined).
func GrowthRateBps(startPrice, finalPrice int64) (int64, error) {
	if startPrice <= 0 {
		return 0, ErrInvalidPrice
	}
	return MulDiv(finalPrice-startPrice, BpsScale, startPrice)
}

// FeeAmount computes pot × feeBps / 10000.
func FeeAmount(pot, feeBps int64) (int64, error) {
	return MulDiv(pot, feeBps, BpsScale)
}

// WinnerPayout computes weight × rewardPool / winnersWeight, truncated.
// Truncation dust stays in the round vault.
func WinnerPayout(weight, rewardPool, winnersWeight int64) (int64, error) {
	if winnersWeight <= 0 {
		return 0, errors.New("winners weight must be positive")
	}
	return MulDiv(weight, rewardPool, winnersWeight)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

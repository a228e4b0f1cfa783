package state

// Protocol-wide limits and scales.
const (
	// BpsDenominator is the basis-point scale: 10_000 bps == 100%.
	BpsDenominator = 10_000

	// PriceDecimals is the fixed-point precision for all normalized prices.
	// Every oracle price is rescaled to 10^6 before entering the engine.
	PriceDecimals = 6

	// PriceScale is 10^PriceDecimals.
	PriceScale = 1_000_000

	// MaxKeepers bounds the keeper authority set.
	MaxKeepers = 5

	// MaxBatchRefs bounds the number of entity references a single batched
	// operation (capture, finalize, settle) may carry.
	MaxBatchRefs = 20

	// MaxAssetsPerGroup bounds assets inside one battle group.
	MaxAssetsPerGroup = 10

	// MaxGroupsPerRound bounds groups inside one group-battle round.
	// Also the upper bound on winner_group_ids.
	MaxGroupsPerRound = 10

	// MaxSymbolLen is the maximum byte length of asset/group symbols.
	MaxSymbolLen = 8
)

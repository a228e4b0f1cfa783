package engine

import "errors"

// Operation rejection errors. Every mutating operation returns one of these
// sentinels (possibly wrapped with context) so callers can map rejections to
// API responses without string matching.
var (
	// Lifecycle / authority
	ErrNotInitialized         = errors.New("config not initialized")
	ErrAlreadyInitialized     = errors.New("config already initialized")
	ErrUnauthorized           = errors.New("caller is not the admin")
	ErrUnauthorizedKeeper     = errors.New("caller is not a keeper")
	ErrEmergencyPaused        = errors.New("program is emergency paused")
	ErrAlreadyEmergencyPaused = errors.New("program is already emergency paused")
	ErrNotEmergencyPaused     = errors.New("program is not emergency paused")

	// Config validation
	ErrInvalidKeeperAuthorities = errors.New("invalid keeper authority set")
	ErrInvalidFee               = errors.New("fee exceeds 100%")
	ErrInvalidMinBetAmount      = errors.New("minimum bet amount must be positive")
	ErrInvalidTimeFactorRange   = errors.New("invalid time factor range")
	ErrInvalidPriceAge          = errors.New("max price age must be positive")
	ErrInvalidDirectionFactor   = errors.New("default direction factor must be positive")
	ErrInvalidCutoffWindow      = errors.New("bet cutoff window must not be negative")

	// Round lifecycle
	ErrRoundNotFound             = errors.New("round not found")
	ErrInvalidTimestamps         = errors.New("invalid round timestamps")
	ErrInvalidMarketType         = errors.New("operation does not apply to this market type")
	ErrInvalidRoundStatus        = errors.New("round status does not permit this operation")
	ErrRoundNotActive            = errors.New("round is not active")
	ErrRoundNotEnded             = errors.New("round is not ended")
	ErrRoundNotReadyForStart     = errors.New("round start time has not been reached")
	ErrRoundNotReadyForSettle    = errors.New("round end time has not been reached")
	ErrRoundNotReady             = errors.New("round groups are not fully captured")
	ErrAllBetsSettled            = errors.New("all bets already settled")

	// Groups / assets
	ErrMaxGroupsReached               = errors.New("max groups per round reached")
	ErrMaxAssetsReached               = errors.New("max assets per group reached")
	ErrInvalidSymbol                  = errors.New("invalid symbol")
	ErrInvalidGroupAssetAccount       = errors.New("group does not belong to this round")
	ErrInvalidAssetAccount            = errors.New("asset does not belong to this group")
	ErrInvalidPriceFeed               = errors.New("price feed does not match asset")
	ErrInvalidBatchLength             = errors.New("reference batch length does not match expected count")
	ErrGroupNotFullyCaptured          = errors.New("group assets are not fully captured")
	ErrGroupAlreadyFinalizedStart     = errors.New("group start price already finalized")
	ErrGroupAlreadyCapturedEndPrice   = errors.New("group end price already captured")
	ErrRoundAlreadyCapturedStartPrice = errors.New("round start groups already captured")
	ErrWinnersAlreadyFinalized        = errors.New("winner groups already finalized")

	// Prices
	ErrInvalidAssetPrice = errors.New("invalid asset price")
	ErrStalePrice        = errors.New("oracle price is stale")

	// Bets / claims
	ErrBetNotFound      = errors.New("bet not found")
	ErrInvalidBetAccount = errors.New("bet does not belong to this round")
	ErrBetBelowMinimum  = errors.New("bet amount below minimum")
	ErrBetCutoffClosed  = errors.New("betting window is closed")
	ErrGroupRequired    = errors.New("group battle bets must reference a group")
	ErrGroupNotAllowed  = errors.New("single asset bets must not reference a group")
	ErrBetAlreadySettled = errors.New("bet already settled")
	ErrClaimPendingBet  = errors.New("bet is not settled yet")
	ErrClaimLosingBet   = errors.New("losing bets cannot be claimed")
	ErrAlreadyClaimed   = errors.New("reward already claimed")
)

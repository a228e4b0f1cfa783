package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	fpmath "RoundLedger/internal/math"
	"RoundLedger/internal/state"

	"github.com/google/uuid"
)

// AssetPriceRef pairs an asset with the oracle feed to read for it. The feed
// must match the one fixed at InsertAsset time.
type AssetPriceRef struct {
	AssetID uint64
	Feed    state.FeedID
}

// groupCaptureTarget resolves the common guards of the per-group capture and
// finalize operations: keeper authority, a known group-battle round, and a
// group belonging to it.
func (e *Engine) groupCaptureTarget(caller uuid.UUID, roundID, groupID uint64) (*state.Config, *state.Round, *state.GroupAsset, error) {
	cfg, err := e.keeperConfig(caller)
	if err != nil {
		return nil, nil, nil, err
	}
	round, ok := e.store.Round(roundID)
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: round %d", ErrRoundNotFound, roundID)
	}
	if round.MarketType != state.MarketTypeGroupBattle {
		return nil, nil, nil, ErrInvalidMarketType
	}
	group, ok := e.store.Group(roundID, groupID)
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: group %d in round %d",
			ErrInvalidGroupAssetAccount, groupID, roundID)
	}
	return cfg, round, group, nil
}

// resolveCaptureRefs validates a capture batch against the group roster and
// returns the member assets in batch order. The batch must cover the whole
// group; assets that already carry a price are skipped by the caller.
func (e *Engine) resolveCaptureRefs(group *state.GroupAsset, refs []AssetPriceRef) ([]*state.Asset, error) {
	if group.TotalAssets == 0 || uint64(len(refs)) != group.TotalAssets {
		return nil, fmt.Errorf("%w: got %d refs, group has %d assets",
			ErrInvalidBatchLength, len(refs), group.TotalAssets)
	}
	assets := make([]*state.Asset, 0, len(refs))
	seen := make(map[uint64]struct{}, len(refs))
	for _, ref := range refs {
		if _, dup := seen[ref.AssetID]; dup {
			return nil, fmt.Errorf("%w: duplicate asset %d", ErrInvalidBatchLength, ref.AssetID)
		}
		seen[ref.AssetID] = struct{}{}
		asset, ok := e.store.Asset(group.RoundID, group.ID, ref.AssetID)
		if !ok {
			return nil, fmt.Errorf("%w: asset %d in group %d",
				ErrInvalidAssetAccount, ref.AssetID, group.ID)
		}
		if ref.Feed != asset.Feed {
			return nil, fmt.Errorf("%w: asset %d expects feed %s",
				ErrInvalidPriceFeed, ref.AssetID, asset.Feed)
		}
		assets = append(assets, asset)
	}
	return assets, nil
}

// capturePrices reads the oracle for every asset lacking a price and returns
// the assets updated. All reads complete before any asset is written, so a
// failed read leaves every price untouched. Already-priced assets are skipped:
// prices are immutable once set, which makes overlapping keeper batches safe.
func (e *Engine) capturePrices(ctx context.Context, cfg *state.Config, assets []*state.Asset, end bool) ([]*state.Asset, error) {
	type pending struct {
		asset *state.Asset
		price int64
	}
	var reads []pending
	for _, asset := range assets {
		have := asset.StartPrice
		if end {
			have = asset.FinalPrice
		}
		if have != nil {
			continue
		}
		price, err := e.readNormalizedPrice(ctx, cfg, asset.Feed)
		if err != nil {
			return nil, fmt.Errorf("asset %d: %w", asset.ID, err)
		}
		reads = append(reads, pending{asset: asset, price: price})
	}

	touched := make([]*state.Asset, 0, len(reads))
	for _, r := range reads {
		p := r.price
		if end {
			r.asset.FinalPrice = &p
		} else {
			r.asset.StartPrice = &p
		}
		touched = append(touched, r.asset)
	}
	return touched, nil
}

// CaptureStartPrice reads and locks start prices for a group's assets before
// the round activates. Keeper only. The batch must list every asset of the
// group with its feed; assets already priced are left as-is.
func (e *Engine) CaptureStartPrice(ctx context.Context, caller uuid.UUID, roundID, groupID uint64, refs []AssetPriceRef) error {
	const op = "capture_start_price"
	defer e.observeOp(op, time.Now())

	cfg, round, group, err := e.groupCaptureTarget(caller, roundID, groupID)
	if err != nil {
		return e.reject(op, err)
	}
	if round.Status != state.RoundStatusScheduled {
		return e.reject(op, fmt.Errorf("%w: round is %s",
			ErrInvalidRoundStatus, round.Status))
	}
	if group.StartCaptured() {
		return e.reject(op, ErrGroupAlreadyFinalizedStart)
	}

	assets, err := e.resolveCaptureRefs(group, refs)
	if err != nil {
		return e.reject(op, err)
	}
	touched, err := e.capturePrices(ctx, cfg, assets, false)
	if err != nil {
		return e.reject(op, err)
	}

	delta := EntityDelta{Assets: make([]*state.Asset, 0, len(touched))}
	for _, a := range touched {
		delta.Assets = append(delta.Assets, a.Clone())
	}
	e.emit(op, &roundID, nil, delta)
	e.log.Info().
		Uint64("round_id", roundID).
		Uint64("group_id", groupID).
		Int("captured", len(touched)).
		Msg("start prices captured")
	return nil
}

// CaptureEndPrice reads and locks end prices for a group's assets once the
// round's end time has passed. Keeper only.
func (e *Engine) CaptureEndPrice(ctx context.Context, caller uuid.UUID, roundID, groupID uint64, refs []AssetPriceRef) error {
	const op = "capture_end_price"
	defer e.observeOp(op, time.Now())

	cfg, round, group, err := e.groupCaptureTarget(caller, roundID, groupID)
	if err != nil {
		return e.reject(op, err)
	}
	if round.Status != state.RoundStatusActive {
		return e.reject(op, fmt.Errorf("%w: round is %s",
			ErrRoundNotActive, round.Status))
	}
	now := e.now()
	if now < round.EndTime {
		return e.reject(op, fmt.Errorf("%w: ends at %d, now %d",
			ErrRoundNotReadyForSettle, round.EndTime, now))
	}
	if group.EndPriceCaptured {
		return e.reject(op, ErrGroupAlreadyCapturedEndPrice)
	}

	assets, err := e.resolveCaptureRefs(group, refs)
	if err != nil {
		return e.reject(op, err)
	}
	touched, err := e.capturePrices(ctx, cfg, assets, true)
	if err != nil {
		return e.reject(op, err)
	}

	delta := EntityDelta{Assets: make([]*state.Asset, 0, len(touched))}
	for _, a := range touched {
		delta.Assets = append(delta.Assets, a.Clone())
	}
	e.emit(op, &roundID, nil, delta)
	e.log.Info().
		Uint64("round_id", roundID).
		Uint64("group_id", groupID).
		Int("captured", len(touched)).
		Msg("end prices captured")
	return nil
}

// resolveGroupAssets validates that assetIDs covers the whole group and
// returns the member assets.
func (e *Engine) resolveGroupAssets(group *state.GroupAsset, assetIDs []uint64) ([]*state.Asset, error) {
	if group.TotalAssets == 0 || uint64(len(assetIDs)) != group.TotalAssets {
		return nil, fmt.Errorf("%w: got %d refs, group has %d assets",
			ErrInvalidBatchLength, len(assetIDs), group.TotalAssets)
	}
	assets := make([]*state.Asset, 0, len(assetIDs))
	seen := make(map[uint64]struct{}, len(assetIDs))
	for _, id := range assetIDs {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate asset %d", ErrInvalidBatchLength, id)
		}
		seen[id] = struct{}{}
		asset, ok := e.store.Asset(group.RoundID, group.ID, id)
		if !ok {
			return nil, fmt.Errorf("%w: asset %d in group %d",
				ErrInvalidAssetAccount, id, group.ID)
		}
		assets = append(assets, asset)
	}
	return assets, nil
}

// FinalizeStartGroupAsset recounts how many of a group's assets carry a start
// price and stamps the group start-captured once the count reaches the
// roster size. Keeper only; safe to repeat until fully captured.
func (e *Engine) FinalizeStartGroupAsset(caller uuid.UUID, roundID, groupID uint64, assetIDs []uint64) error {
	const op = "finalize_start_group_asset"
	defer e.observeOp(op, time.Now())

	_, round, group, err := e.groupCaptureTarget(caller, roundID, groupID)
	if err != nil {
		return e.reject(op, err)
	}
	if round.Status != state.RoundStatusScheduled {
		return e.reject(op, fmt.Errorf("%w: round is %s",
			ErrInvalidRoundStatus, round.Status))
	}
	if group.StartCaptured() {
		return e.reject(op, ErrGroupAlreadyFinalizedStart)
	}

	assets, err := e.resolveGroupAssets(group, assetIDs)
	if err != nil {
		return e.reject(op, err)
	}

	var captured uint64
	for _, a := range assets {
		if a.StartPrice != nil {
			captured++
		}
	}
	group.FinalizedStartPriceAssets = captured
	if captured == group.TotalAssets {
		now := e.now()
		group.StartPriceAt = &now
	}

	e.emit(op, &roundID, nil, EntityDelta{Groups: []*state.GroupAsset{group.Clone()}})
	e.log.Info().
		Uint64("round_id", roundID).
		Uint64("group_id", groupID).
		Uint64("captured", captured).
		Uint64("total", group.TotalAssets).
		Msg("group start finalized")
	return nil
}

// FinalizeEndGroupAsset recounts end-price coverage and, once complete,
// computes each asset's growth rate and the group aggregates. Keeper only;
// fails once the group is end-captured.
func (e *Engine) FinalizeEndGroupAsset(caller uuid.UUID, roundID, groupID uint64, assetIDs []uint64) error {
	const op = "finalize_end_group_asset"
	defer e.observeOp(op, time.Now())

	_, round, group, err := e.groupCaptureTarget(caller, roundID, groupID)
	if err != nil {
		return e.reject(op, err)
	}
	if round.Status != state.RoundStatusActive {
		return e.reject(op, fmt.Errorf("%w: round is %s",
			ErrRoundNotActive, round.Status))
	}
	if group.EndPriceCaptured {
		return e.reject(op, ErrGroupAlreadyCapturedEndPrice)
	}

	assets, err := e.resolveGroupAssets(group, assetIDs)
	if err != nil {
		return e.reject(op, err)
	}

	var captured uint64
	for _, a := range assets {
		if a.FinalPrice != nil {
			captured++
		}
	}
	group.FinalizedEndPriceAssets = captured

	delta := EntityDelta{}
	if captured == group.TotalAssets {
		var total int64
		for _, a := range assets {
			if a.StartPrice == nil {
				return e.reject(op, fmt.Errorf("%w: asset %d has no start price",
					ErrGroupNotFullyCaptured, a.ID))
			}
			growth, err := fpmath.GrowthRateBps(*a.StartPrice, *a.FinalPrice)
			if err != nil {
				return e.reject(op, fmt.Errorf("asset %d: %w", a.ID, err))
			}
			g := growth
			a.GrowthRateBps = &g
			total += growth
			delta.Assets = append(delta.Assets, a.Clone())
		}
		avg := total / int64(group.TotalAssets)
		group.TotalGrowthRateBps = total
		group.AvgGrowthRateBps = &avg
		group.EndPriceCaptured = true
	}

	delta.Groups = []*state.GroupAsset{group.Clone()}
	e.emit(op, &roundID, nil, delta)
	e.log.Info().
		Uint64("round_id", roundID).
		Uint64("group_id", groupID).
		Uint64("captured", captured).
		Bool("complete", group.EndPriceCaptured).
		Msg("group end finalized")
	return nil
}

// FinalizeStartGroups recounts how many of a round's groups are start-captured
// and stores the count. Keeper only; fails once the round already counts every
// group as captured.
func (e *Engine) FinalizeStartGroups(caller uuid.UUID, roundID uint64, groupIDs []uint64) error {
	const op = "finalize_start_groups"
	defer e.observeOp(op, time.Now())

	_, err := e.keeperConfig(caller)
	if err != nil {
		return e.reject(op, err)
	}
	round, ok := e.store.Round(roundID)
	if !ok {
		return e.reject(op, fmt.Errorf("%w: round %d", ErrRoundNotFound, roundID))
	}
	if round.MarketType != state.MarketTypeGroupBattle {
		return e.reject(op, ErrInvalidMarketType)
	}
	if round.Status != state.RoundStatusScheduled {
		return e.reject(op, fmt.Errorf("%w: round is %s",
			ErrInvalidRoundStatus, round.Status))
	}
	if round.TotalGroups > 0 && round.CapturedStartGroups == round.TotalGroups {
		return e.reject(op, ErrRoundAlreadyCapturedStartPrice)
	}

	groups, err := e.resolveRoundGroups(round, groupIDs)
	if err != nil {
		return e.reject(op, err)
	}

	var captured uint64
	for _, g := range groups {
		if g.StartCaptured() {
			captured++
		}
	}
	round.CapturedStartGroups = captured

	e.emit(op, &roundID, nil, EntityDelta{Rounds: []*state.Round{round.Clone()}})
	e.log.Info().
		Uint64("round_id", roundID).
		Uint64("captured", captured).
		Uint64("total", round.TotalGroups).
		Msg("round start groups finalized")
	return nil
}

func (e *Engine) resolveRoundGroups(round *state.Round, groupIDs []uint64) ([]*state.GroupAsset, error) {
	if round.TotalGroups == 0 || uint64(len(groupIDs)) != round.TotalGroups {
		return nil, fmt.Errorf("%w: got %d refs, round has %d groups",
			ErrInvalidBatchLength, len(groupIDs), round.TotalGroups)
	}
	groups := make([]*state.GroupAsset, 0, len(groupIDs))
	seen := make(map[uint64]struct{}, len(groupIDs))
	for _, id := range groupIDs {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate group %d", ErrInvalidBatchLength, id)
		}
		seen[id] = struct{}{}
		group, ok := e.store.Group(round.ID, id)
		if !ok {
			return nil, fmt.Errorf("%w: group %d in round %d",
				ErrInvalidGroupAssetAccount, id, round.ID)
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// FinalizeEndGroups determines the winner groups once every group is
// end-captured: the groups with the maximum average growth rate win, ties
// included. If every group ties the round becomes a full draw. Keeper only,
// once per round.
func (e *Engine) FinalizeEndGroups(caller uuid.UUID, roundID uint64, groupIDs []uint64) error {
	const op = "finalize_end_groups"
	defer e.observeOp(op, time.Now())

	_, err := e.keeperConfig(caller)
	if err != nil {
		return e.reject(op, err)
	}
	round, ok := e.store.Round(roundID)
	if !ok {
		return e.reject(op, fmt.Errorf("%w: round %d", ErrRoundNotFound, roundID))
	}
	if round.MarketType != state.MarketTypeGroupBattle {
		return e.reject(op, ErrInvalidMarketType)
	}
	if round.Status != state.RoundStatusActive {
		return e.reject(op, fmt.Errorf("%w: round is %s",
			ErrRoundNotActive, round.Status))
	}
	now := e.now()
	if now < round.EndTime {
		return e.reject(op, fmt.Errorf("%w: ends at %d, now %d",
			ErrRoundNotReadyForSettle, round.EndTime, now))
	}
	if len(round.WinnerGroupIDs) > 0 {
		return e.reject(op, ErrWinnersAlreadyFinalized)
	}

	groups, err := e.resolveRoundGroups(round, groupIDs)
	if err != nil {
		return e.reject(op, err)
	}
	for _, g := range groups {
		if !g.EndPriceCaptured || g.AvgGrowthRateBps == nil {
			return e.reject(op, fmt.Errorf("%w: group %d",
				ErrGroupNotFullyCaptured, g.ID))
		}
	}

	best := *groups[0].AvgGrowthRateBps
	for _, g := range groups[1:] {
		if *g.AvgGrowthRateBps > best {
			best = *g.AvgGrowthRateBps
		}
	}
	var winners []uint64
	for _, g := range groups {
		if *g.AvgGrowthRateBps == best {
			winners = append(winners, g.ID)
		}
	}
	sort.Slice(winners, func(i, j int) bool { return winners[i] < winners[j] })

	round.WinnerGroupIDs = winners
	round.CapturedEndGroups = round.TotalGroups

	e.emit(op, &roundID, nil, EntityDelta{Rounds: []*state.Round{round.Clone()}})
	e.log.Info().
		Uint64("round_id", roundID).
		Uints64("winners", winners).
		Bool("full_draw", round.IsFullDraw()).
		Msg("winner groups finalized")
	return nil
}

package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"RoundLedger/internal/state"
	"RoundLedger/internal/vault"
)

// Loader rebuilds the in-memory state from Postgres at startup: entity
// projections into the Store, the journal replayed into the Vault, and the
// last applied sequence for the engine to resume from.
type Loader struct {
	db *sql.DB
}

func NewLoader(db *sql.DB) *Loader {
	return &Loader{db: db}
}

// Load returns the rebuilt store and vault plus the last persisted op-log
// sequence. A fresh database yields an empty store and sequence 0.
func (l *Loader) Load(ctx context.Context) (*state.Store, *vault.Vault, int64, error) {
	store := state.NewStore()

	if err := l.loadConfig(ctx, store); err != nil {
		return nil, nil, 0, fmt.Errorf("load config: %w", err)
	}
	if err := l.loadRounds(ctx, store); err != nil {
		return nil, nil, 0, fmt.Errorf("load rounds: %w", err)
	}
	if err := l.loadGroups(ctx, store); err != nil {
		return nil, nil, 0, fmt.Errorf("load groups: %w", err)
	}
	if err := l.loadAssets(ctx, store); err != nil {
		return nil, nil, 0, fmt.Errorf("load assets: %w", err)
	}
	if err := l.loadBets(ctx, store); err != nil {
		return nil, nil, 0, fmt.Errorf("load bets: %w", err)
	}

	v, err := l.replayJournal(ctx)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("replay journal: %w", err)
	}
	if err := v.ValidateZeroSum(); err != nil {
		return nil, nil, 0, fmt.Errorf("journal replay: %w", err)
	}

	var seq sql.NullInt64
	if err := l.db.QueryRowContext(ctx,
		`SELECT MAX(sequence) FROM round_ledger.op_log`).Scan(&seq); err != nil {
		return nil, nil, 0, fmt.Errorf("load last sequence: %w", err)
	}

	return store, v, seq.Int64, nil
}

func (l *Loader) loadConfig(ctx context.Context, store *state.Store) error {
	var (
		cfg       state.Config
		admin     string
		keepers   []byte
		treasury  string
		feed      string
		counter   int64
		status    int32
	)
	err := l.db.QueryRowContext(ctx, `
		SELECT admin, keepers, treasury, oracle_feed, max_price_age_secs,
		       fee_single_bps, fee_group_bps, min_bet_amount, bet_cutoff_window_secs,
		       min_time_factor_bps, max_time_factor_bps, default_direction_factor_bps,
		       round_counter, status, version
		FROM round_ledger.config WHERE singleton`).Scan(
		&admin, &keepers, &treasury, &feed, &cfg.MaxPriceAgeSecs,
		&cfg.FeeSingleBps, &cfg.FeeGroupBps, &cfg.MinBetAmount,
		&cfg.BetCutoffWindowSecs, &cfg.MinTimeFactorBps, &cfg.MaxTimeFactorBps,
		&cfg.DefaultDirectionFactorBps, &counter, &status, &cfg.Version,
	)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}

	if cfg.Admin, err = uuid.Parse(admin); err != nil {
		return fmt.Errorf("parse admin: %w", err)
	}
	if cfg.Treasury, err = uuid.Parse(treasury); err != nil {
		return fmt.Errorf("parse treasury: %w", err)
	}
	if err := json.Unmarshal(keepers, &cfg.Keepers); err != nil {
		return fmt.Errorf("parse keepers: %w", err)
	}
	if cfg.OracleFeed, err = state.ParseFeedID(feed); err != nil {
		return fmt.Errorf("parse oracle feed: %w", err)
	}
	cfg.RoundCounter = uint64(counter)
	cfg.Status = state.ProgramStatus(status)

	store.SetConfig(&cfg)
	return nil
}

func (l *Loader) loadRounds(ctx context.Context, store *state.Store) error {
	rows, err := l.db.QueryContext(ctx, `
		SELECT round_id, market_type, status, start_time, end_time, bet_cutoff_time,
		       start_price, final_price, total_bets, settled_bets, total_groups,
		       captured_start_groups, captured_end_groups, winner_group_ids,
		       total_pool, total_draw_stake, total_fee_collected, total_reward_pool,
		       winners_weight, created_at, settled_at
		FROM round_ledger.rounds ORDER BY round_id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r          state.Round
			id         int64
			marketType int32
			status     int32
			totalBets, settledBets, totalGroups, startGroups, endGroups int64
			winners    []byte
		)
		if err := rows.Scan(
			&id, &marketType, &status, &r.StartTime, &r.EndTime, &r.BetCutoffTime,
			&r.StartPrice, &r.FinalPrice, &totalBets, &settledBets, &totalGroups,
			&startGroups, &endGroups, &winners,
			&r.TotalPool, &r.TotalDrawStake, &r.TotalFeeCollected, &r.TotalRewardPool,
			&r.WinnersWeight, &r.CreatedAt, &r.SettledAt,
		); err != nil {
			return err
		}
		r.ID = uint64(id)
		r.MarketType = state.MarketType(marketType)
		r.Status = state.RoundStatus(status)
		r.TotalBets = uint64(totalBets)
		r.SettledBets = uint64(settledBets)
		r.TotalGroups = uint64(totalGroups)
		r.CapturedStartGroups = uint64(startGroups)
		r.CapturedEndGroups = uint64(endGroups)
		if err := json.Unmarshal(winners, &r.WinnerGroupIDs); err != nil {
			return fmt.Errorf("round %d: parse winner groups: %w", r.ID, err)
		}
		store.PutRound(&r)
	}
	return rows.Err()
}

func (l *Loader) loadGroups(ctx context.Context, store *state.Store) error {
	rows, err := l.db.QueryContext(ctx, `
		SELECT round_id, group_id, symbol, total_assets, finalized_start_price_assets,
		       start_price_at, finalized_end_price_assets, end_price_captured,
		       total_growth_rate_bps, avg_growth_rate_bps, created_at
		FROM round_ledger.groups ORDER BY round_id, group_id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			g       state.GroupAsset
			roundID, id, totalAssets, startAssets, endAssets int64
		)
		if err := rows.Scan(
			&roundID, &id, &g.Symbol, &totalAssets, &startAssets,
			&g.StartPriceAt, &endAssets, &g.EndPriceCaptured,
			&g.TotalGrowthRateBps, &g.AvgGrowthRateBps, &g.CreatedAt,
		); err != nil {
			return err
		}
		g.RoundID = uint64(roundID)
		g.ID = uint64(id)
		g.TotalAssets = uint64(totalAssets)
		g.FinalizedStartPriceAssets = uint64(startAssets)
		g.FinalizedEndPriceAssets = uint64(endAssets)
		store.PutGroup(&g)
	}
	return rows.Err()
}

func (l *Loader) loadAssets(ctx context.Context, store *state.Store) error {
	rows, err := l.db.QueryContext(ctx, `
		SELECT round_id, group_id, asset_id, symbol, feed, start_price, final_price,
		       growth_rate_bps, created_at
		FROM round_ledger.assets ORDER BY round_id, group_id, asset_id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			a       state.Asset
			roundID, groupID, id int64
			feed    string
		)
		if err := rows.Scan(
			&roundID, &groupID, &id, &a.Symbol, &feed,
			&a.StartPrice, &a.FinalPrice, &a.GrowthRateBps, &a.CreatedAt,
		); err != nil {
			return err
		}
		a.RoundID = uint64(roundID)
		a.GroupID = uint64(groupID)
		a.ID = uint64(id)
		if a.Feed, err = state.ParseFeedID(feed); err != nil {
			return fmt.Errorf("asset %d/%d/%d: parse feed: %w", roundID, groupID, id, err)
		}
		store.PutAsset(&a)
	}
	return rows.Err()
}

func (l *Loader) loadBets(ctx context.Context, store *state.Store) error {
	rows, err := l.db.QueryContext(ctx, `
		SELECT round_id, bet_id, group_id, bettor, amount, direction_kind, target_bps,
		       weight, status, claimed, created_at
		FROM round_ledger.bets ORDER BY round_id, bet_id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			b       state.Bet
			roundID, id int64
			groupID *int64
			bettor  string
			kind    int32
			status  int32
		)
		if err := rows.Scan(
			&roundID, &id, &groupID, &bettor, &b.Amount, &kind,
			&b.Direction.TargetBps, &b.Weight, &status, &b.Claimed, &b.CreatedAt,
		); err != nil {
			return err
		}
		b.RoundID = uint64(roundID)
		b.ID = uint64(id)
		if groupID != nil {
			v := uint64(*groupID)
			b.GroupID = &v
		}
		if b.Bettor, err = uuid.Parse(bettor); err != nil {
			return fmt.Errorf("bet %d/%d: parse bettor: %w", roundID, id, err)
		}
		b.Direction.Kind = state.DirectionKind(kind)
		b.Status = state.BetStatus(status)
		store.PutBet(&b)
	}
	return rows.Err()
}

// replayJournal rebuilds vault balances by replaying every journal entry in
// sequence order.
func (l *Loader) replayJournal(ctx context.Context) (*vault.Vault, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT journal_id, batch_id, op_ref, debit_account, credit_account,
		       amount, journal_type, timestamp
		FROM round_ledger.journal ORDER BY sequence, journal_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	v := vault.NewVault()
	for rows.Next() {
		var (
			j            vault.Journal
			journalID    string
			batchID      string
			debit, credit string
			journalType  int32
		)
		if err := rows.Scan(
			&journalID, &batchID, &j.OpRef, &debit, &credit,
			&j.Amount, &journalType, &j.Timestamp,
		); err != nil {
			return nil, err
		}
		if j.JournalID, err = uuid.Parse(journalID); err != nil {
			return nil, fmt.Errorf("parse journal id: %w", err)
		}
		if j.BatchID, err = uuid.Parse(batchID); err != nil {
			return nil, fmt.Errorf("parse batch id: %w", err)
		}
		if j.DebitAccount, err = vault.ParseAccountPath(debit); err != nil {
			return nil, err
		}
		if j.CreditAccount, err = vault.ParseAccountPath(credit); err != nil {
			return nil, err
		}
		j.JournalType = vault.JournalType(journalType)
		v.Replay(j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return v, nil
}

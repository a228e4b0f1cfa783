package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"RoundLedger/internal/state"
)

// OpRow is a row in round_ledger.op_log, one per applied engine operation.
type OpRow struct {
	Sequence       int64
	Op             string
	IdempotencyKey string
	RoundID        *int64
	Timestamp      int64
}

// JournalRow is a row in round_ledger.journal.
type JournalRow struct {
	JournalID     string
	BatchID       string
	OpRef         string
	Sequence      int64
	DebitAccount  string
	CreditAccount string
	Amount        int64
	JournalType   int32
	Timestamp     int64
}

// Writer persists the operation log, the journal, and the entity projections.
// Writes use multi-row INSERT with ON CONFLICT so replaying an output after a
// crash is harmless: the op log deduplicates on sequence and the projections
// upsert guarded by updated_sequence, so a stale replay never clobbers a
// newer row.
type Writer struct {
	db *sql.DB
}

func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db}
}

func (w *Writer) DB() *sql.DB {
	return w.db
}

// WriteOpBatch appends operation envelopes to the op log.
func (w *Writer) WriteOpBatch(ctx context.Context, tx *sql.Tx, ops []OpRow) error {
	if len(ops) == 0 {
		return nil
	}

	query := `INSERT INTO round_ledger.op_log
		(sequence, op, idempotency_key, round_id, timestamp)
		VALUES `

	values := make([]string, 0, len(ops))
	args := make([]interface{}, 0, len(ops)*5)
	for i, o := range ops {
		base := i * 5
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5,
		))
		args = append(args, o.Sequence, o.Op, o.IdempotencyKey, o.RoundID, o.Timestamp)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteJournalBatch appends journal entries.
func (w *Writer) WriteJournalBatch(ctx context.Context, tx *sql.Tx, journals []JournalRow) error {
	if len(journals) == 0 {
		return nil
	}

	query := `INSERT INTO round_ledger.journal
		(journal_id, batch_id, op_ref, sequence, debit_account, credit_account, amount, journal_type, timestamp)
		VALUES `

	values := make([]string, 0, len(journals))
	args := make([]interface{}, 0, len(journals)*9)
	for i, j := range journals {
		base := i * 9
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9,
		))
		args = append(args,
			j.JournalID, j.BatchID, j.OpRef, j.Sequence,
			j.DebitAccount, j.CreditAccount, j.Amount, j.JournalType, j.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (journal_id) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// UpsertConfig writes the configuration singleton projection.
func (w *Writer) UpsertConfig(ctx context.Context, tx *sql.Tx, cfg *state.Config, sequence int64) error {
	keepers, err := json.Marshal(cfg.Keepers)
	if err != nil {
		return fmt.Errorf("marshal keepers: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO round_ledger.config
			(singleton, admin, keepers, treasury, oracle_feed, max_price_age_secs,
			 fee_single_bps, fee_group_bps, min_bet_amount, bet_cutoff_window_secs,
			 min_time_factor_bps, max_time_factor_bps, default_direction_factor_bps,
			 round_counter, status, version, updated_sequence)
		VALUES (TRUE, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (singleton) DO UPDATE SET
			admin = EXCLUDED.admin,
			keepers = EXCLUDED.keepers,
			treasury = EXCLUDED.treasury,
			oracle_feed = EXCLUDED.oracle_feed,
			max_price_age_secs = EXCLUDED.max_price_age_secs,
			fee_single_bps = EXCLUDED.fee_single_bps,
			fee_group_bps = EXCLUDED.fee_group_bps,
			min_bet_amount = EXCLUDED.min_bet_amount,
			bet_cutoff_window_secs = EXCLUDED.bet_cutoff_window_secs,
			min_time_factor_bps = EXCLUDED.min_time_factor_bps,
			max_time_factor_bps = EXCLUDED.max_time_factor_bps,
			default_direction_factor_bps = EXCLUDED.default_direction_factor_bps,
			round_counter = EXCLUDED.round_counter,
			status = EXCLUDED.status,
			version = EXCLUDED.version,
			updated_sequence = EXCLUDED.updated_sequence
		WHERE round_ledger.config.updated_sequence <= EXCLUDED.updated_sequence`,
		cfg.Admin.String(), keepers, cfg.Treasury.String(), cfg.OracleFeed.String(),
		cfg.MaxPriceAgeSecs, cfg.FeeSingleBps, cfg.FeeGroupBps, cfg.MinBetAmount,
		cfg.BetCutoffWindowSecs, cfg.MinTimeFactorBps, cfg.MaxTimeFactorBps,
		cfg.DefaultDirectionFactorBps, int64(cfg.RoundCounter), int32(cfg.Status),
		cfg.Version, sequence,
	)
	return err
}

// UpsertRound writes a round projection row.
func (w *Writer) UpsertRound(ctx context.Context, tx *sql.Tx, r *state.Round, sequence int64) error {
	winners, err := json.Marshal(r.WinnerGroupIDs)
	if err != nil {
		return fmt.Errorf("marshal winner groups: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO round_ledger.rounds
			(round_id, market_type, status, start_time, end_time, bet_cutoff_time,
			 start_price, final_price, total_bets, settled_bets, total_groups,
			 captured_start_groups, captured_end_groups, winner_group_ids,
			 total_pool, total_draw_stake, total_fee_collected, total_reward_pool,
			 winners_weight, created_at, settled_at, updated_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		        $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (round_id) DO UPDATE SET
			status = EXCLUDED.status,
			start_price = EXCLUDED.start_price,
			final_price = EXCLUDED.final_price,
			total_bets = EXCLUDED.total_bets,
			settled_bets = EXCLUDED.settled_bets,
			total_groups = EXCLUDED.total_groups,
			captured_start_groups = EXCLUDED.captured_start_groups,
			captured_end_groups = EXCLUDED.captured_end_groups,
			winner_group_ids = EXCLUDED.winner_group_ids,
			total_pool = EXCLUDED.total_pool,
			total_draw_stake = EXCLUDED.total_draw_stake,
			total_fee_collected = EXCLUDED.total_fee_collected,
			total_reward_pool = EXCLUDED.total_reward_pool,
			winners_weight = EXCLUDED.winners_weight,
			settled_at = EXCLUDED.settled_at,
			updated_sequence = EXCLUDED.updated_sequence
		WHERE round_ledger.rounds.updated_sequence <= EXCLUDED.updated_sequence`,
		int64(r.ID), int32(r.MarketType), int32(r.Status), r.StartTime, r.EndTime,
		r.BetCutoffTime, r.StartPrice, r.FinalPrice, int64(r.TotalBets),
		int64(r.SettledBets), int64(r.TotalGroups), int64(r.CapturedStartGroups),
		int64(r.CapturedEndGroups), winners, r.TotalPool, r.TotalDrawStake,
		r.TotalFeeCollected, r.TotalRewardPool, r.WinnersWeight, r.CreatedAt,
		r.SettledAt, sequence,
	)
	return err
}

// UpsertGroup writes a group projection row.
func (w *Writer) UpsertGroup(ctx context.Context, tx *sql.Tx, g *state.GroupAsset, sequence int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO round_ledger.groups
			(round_id, group_id, symbol, total_assets, finalized_start_price_assets,
			 start_price_at, finalized_end_price_assets, end_price_captured,
			 total_growth_rate_bps, avg_growth_rate_bps, created_at, updated_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (round_id, group_id) DO UPDATE SET
			total_assets = EXCLUDED.total_assets,
			finalized_start_price_assets = EXCLUDED.finalized_start_price_assets,
			start_price_at = EXCLUDED.start_price_at,
			finalized_end_price_assets = EXCLUDED.finalized_end_price_assets,
			end_price_captured = EXCLUDED.end_price_captured,
			total_growth_rate_bps = EXCLUDED.total_growth_rate_bps,
			avg_growth_rate_bps = EXCLUDED.avg_growth_rate_bps,
			updated_sequence = EXCLUDED.updated_sequence
		WHERE round_ledger.groups.updated_sequence <= EXCLUDED.updated_sequence`,
		int64(g.RoundID), int64(g.ID), g.Symbol, int64(g.TotalAssets),
		int64(g.FinalizedStartPriceAssets), g.StartPriceAt,
		int64(g.FinalizedEndPriceAssets), g.EndPriceCaptured,
		g.TotalGrowthRateBps, g.AvgGrowthRateBps, g.CreatedAt, sequence,
	)
	return err
}

// UpsertAsset writes an asset projection row.
func (w *Writer) UpsertAsset(ctx context.Context, tx *sql.Tx, a *state.Asset, sequence int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO round_ledger.assets
			(round_id, group_id, asset_id, symbol, feed, start_price, final_price,
			 growth_rate_bps, created_at, updated_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (round_id, group_id, asset_id) DO UPDATE SET
			start_price = EXCLUDED.start_price,
			final_price = EXCLUDED.final_price,
			growth_rate_bps = EXCLUDED.growth_rate_bps,
			updated_sequence = EXCLUDED.updated_sequence
		WHERE round_ledger.assets.updated_sequence <= EXCLUDED.updated_sequence`,
		int64(a.RoundID), int64(a.GroupID), int64(a.ID), a.Symbol, a.Feed.String(),
		a.StartPrice, a.FinalPrice, a.GrowthRateBps, a.CreatedAt, sequence,
	)
	return err
}

// UpsertBet writes a bet projection row.
func (w *Writer) UpsertBet(ctx context.Context, tx *sql.Tx, b *state.Bet, sequence int64) error {
	var groupID *int64
	if b.GroupID != nil {
		v := int64(*b.GroupID)
		groupID = &v
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO round_ledger.bets
			(round_id, bet_id, group_id, bettor, amount, direction_kind, target_bps,
			 weight, status, claimed, created_at, updated_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (round_id, bet_id) DO UPDATE SET
			status = EXCLUDED.status,
			claimed = EXCLUDED.claimed,
			updated_sequence = EXCLUDED.updated_sequence
		WHERE round_ledger.bets.updated_sequence <= EXCLUDED.updated_sequence`,
		int64(b.RoundID), int64(b.ID), groupID, b.Bettor.String(), b.Amount,
		int32(b.Direction.Kind), b.Direction.TargetBps, b.Weight, int32(b.Status),
		b.Claimed, b.CreatedAt, sequence,
	)
	return err
}

// LastSequence returns the highest persisted op-log sequence, 0 when empty.
func (w *Writer) LastSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := w.db.QueryRowContext(ctx,
		`SELECT MAX(sequence) FROM round_ledger.op_log`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	return seq.Int64, nil
}

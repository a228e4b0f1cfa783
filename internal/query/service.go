package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"RoundLedger/internal/observability"
	"RoundLedger/internal/state"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// Service serves read-only queries from the Postgres projection tables.
// Every response carries as_of_sequence, the highest op-log sequence the
// projections reflect, so clients can reason about freshness.
type Service struct {
	db      *sql.DB
	metrics *observability.Metrics
}

func NewService(db *sql.DB, metrics *observability.Metrics) *Service {
	return &Service{db: db, metrics: metrics}
}

func (s *Service) observe(endpoint string, start time.Time, err *error) {
	if s.metrics == nil {
		return
	}
	s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	status := "ok"
	if *err != nil {
		status = "error"
		code := "db"
		if errors.Is(*err, ErrNotFound) {
			code = "not_found"
		}
		s.metrics.QueryErrors.WithLabelValues(endpoint, code).Inc()
	}
	s.metrics.QueryRequests.WithLabelValues(endpoint, status).Inc()
}

// watermark returns the highest persisted op-log sequence.
func (s *Service) watermark(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(sequence) FROM round_ledger.op_log`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("watermark: %w", err)
	}
	return seq.Int64, nil
}

// GetConfig returns the program configuration.
func (s *Service) GetConfig(ctx context.Context) (resp *ConfigResponse, err error) {
	defer s.observe("get_config", time.Now(), &err)

	asOf, err := s.watermark(ctx)
	if err != nil {
		return nil, err
	}

	var (
		c        ConfigResponse
		admin    string
		keepers  []byte
		treasury string
		counter  int64
		status   int32
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT admin, keepers, treasury, oracle_feed, max_price_age_secs,
		       fee_single_bps, fee_group_bps, min_bet_amount, bet_cutoff_window_secs,
		       min_time_factor_bps, max_time_factor_bps, default_direction_factor_bps,
		       round_counter, status, version
		FROM round_ledger.config WHERE singleton`).Scan(
		&admin, &keepers, &treasury, &c.OracleFeed, &c.MaxPriceAgeSecs,
		&c.FeeSingleBps, &c.FeeGroupBps, &c.MinBetAmount, &c.BetCutoffWindowSecs,
		&c.MinTimeFactorBps, &c.MaxTimeFactorBps, &c.DefaultDirectionFactorBps,
		&counter, &status, &c.Version,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if c.Admin, err = uuid.Parse(admin); err != nil {
		return nil, fmt.Errorf("parse admin: %w", err)
	}
	if c.Treasury, err = uuid.Parse(treasury); err != nil {
		return nil, fmt.Errorf("parse treasury: %w", err)
	}
	if err = json.Unmarshal(keepers, &c.Keepers); err != nil {
		return nil, fmt.Errorf("parse keepers: %w", err)
	}
	c.RoundCounter = uint64(counter)
	c.Status = state.ProgramStatus(status).String()
	c.AsOfSequence = asOf
	return &c, nil
}

const roundColumns = `round_id, market_type, status, start_time, end_time,
	bet_cutoff_time, start_price, final_price, total_bets, settled_bets,
	total_groups, captured_start_groups, captured_end_groups, winner_group_ids,
	total_pool, total_draw_stake, total_fee_collected, total_reward_pool,
	winners_weight, created_at, settled_at`

func scanRound(scan func(...any) error, asOf int64) (*RoundResponse, error) {
	var (
		r          RoundResponse
		id         int64
		marketType int32
		status     int32
		totalBets, settledBets, totalGroups, startGroups, endGroups int64
		winners    []byte
	)
	err := scan(
		&id, &marketType, &status, &r.StartTime, &r.EndTime, &r.BetCutoffTime,
		&r.StartPrice, &r.FinalPrice, &totalBets, &settledBets, &totalGroups,
		&startGroups, &endGroups, &winners, &r.TotalPool, &r.TotalDrawStake,
		&r.TotalFeeCollected, &r.TotalRewardPool, &r.WinnersWeight,
		&r.CreatedAt, &r.SettledAt,
	)
	if err != nil {
		return nil, err
	}
	r.RoundID = uint64(id)
	r.MarketType = state.MarketType(marketType).String()
	r.Status = state.RoundStatus(status).String()
	r.TotalBets = uint64(totalBets)
	r.SettledBets = uint64(settledBets)
	r.TotalGroups = uint64(totalGroups)
	r.CapturedStartGroups = uint64(startGroups)
	r.CapturedEndGroups = uint64(endGroups)
	if err := json.Unmarshal(winners, &r.WinnerGroupIDs); err != nil {
		return nil, fmt.Errorf("round %d: parse winner groups: %w", r.RoundID, err)
	}
	r.AsOfSequence = asOf
	return &r, nil
}

// GetRound returns one round.
func (s *Service) GetRound(ctx context.Context, roundID uint64) (resp *RoundResponse, err error) {
	defer s.observe("get_round", time.Now(), &err)

	asOf, err := s.watermark(ctx)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+roundColumns+` FROM round_ledger.rounds WHERE round_id = $1`,
		int64(roundID))
	r, err := scanRound(row.Scan, asOf)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListRounds returns rounds by descending id, optionally filtered by status.
func (s *Service) ListRounds(ctx context.Context, status *state.RoundStatus, limit int) (resp []RoundResponse, err error) {
	defer s.observe("list_rounds", time.Now(), &err)

	if limit <= 0 || limit > 500 {
		limit = 100
	}
	asOf, err := s.watermark(ctx)
	if err != nil {
		return nil, err
	}

	var rows *sql.Rows
	if status != nil {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+roundColumns+` FROM round_ledger.rounds
			 WHERE status = $1 ORDER BY round_id DESC LIMIT $2`,
			int32(*status), limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+roundColumns+` FROM round_ledger.rounds
			 ORDER BY round_id DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rounds []RoundResponse
	for rows.Next() {
		r, err := scanRound(rows.Scan, asOf)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, *r)
	}
	return rounds, rows.Err()
}

// ListGroups returns all groups of a round.
func (s *Service) ListGroups(ctx context.Context, roundID uint64) (resp []GroupResponse, err error) {
	defer s.observe("list_groups", time.Now(), &err)

	asOf, err := s.watermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT round_id, group_id, symbol, total_assets, finalized_start_price_assets,
		       start_price_at, finalized_end_price_assets, end_price_captured,
		       total_growth_rate_bps, avg_growth_rate_bps
		FROM round_ledger.groups WHERE round_id = $1 ORDER BY group_id`,
		int64(roundID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []GroupResponse
	for rows.Next() {
		var (
			g GroupResponse
			rid, gid, totalAssets, startAssets, endAssets int64
		)
		if err := rows.Scan(
			&rid, &gid, &g.Symbol, &totalAssets, &startAssets,
			&g.StartPriceAt, &endAssets, &g.EndPriceCaptured,
			&g.TotalGrowthRateBps, &g.AvgGrowthRateBps,
		); err != nil {
			return nil, err
		}
		g.RoundID = uint64(rid)
		g.GroupID = uint64(gid)
		g.TotalAssets = uint64(totalAssets)
		g.FinalizedStartPriceAssets = uint64(startAssets)
		g.FinalizedEndPriceAssets = uint64(endAssets)
		g.AsOfSequence = asOf
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// ListAssets returns all assets of a group.
func (s *Service) ListAssets(ctx context.Context, roundID, groupID uint64) (resp []AssetResponse, err error) {
	defer s.observe("list_assets", time.Now(), &err)

	asOf, err := s.watermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT round_id, group_id, asset_id, symbol, feed, start_price, final_price,
		       growth_rate_bps
		FROM round_ledger.assets WHERE round_id = $1 AND group_id = $2
		ORDER BY asset_id`,
		int64(roundID), int64(groupID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []AssetResponse
	for rows.Next() {
		var (
			a             AssetResponse
			rid, gid, aid int64
		)
		if err := rows.Scan(
			&rid, &gid, &aid, &a.Symbol, &a.Feed,
			&a.StartPrice, &a.FinalPrice, &a.GrowthRateBps,
		); err != nil {
			return nil, err
		}
		a.RoundID = uint64(rid)
		a.GroupID = uint64(gid)
		a.AssetID = uint64(aid)
		a.AsOfSequence = asOf
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

const betColumns = `round_id, bet_id, group_id, bettor, amount, direction_kind,
	target_bps, weight, status, claimed, created_at`

func scanBet(scan func(...any) error, asOf int64) (*BetResponse, error) {
	var (
		b        BetResponse
		rid, bid int64
		gid      *int64
		bettor   string
		kind     int32
		status   int32
	)
	err := scan(
		&rid, &bid, &gid, &bettor, &b.Amount, &kind,
		&b.TargetBps, &b.Weight, &status, &b.Claimed, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.RoundID = uint64(rid)
	b.BetID = uint64(bid)
	if gid != nil {
		v := uint64(*gid)
		b.GroupID = &v
	}
	if b.Bettor, err = uuid.Parse(bettor); err != nil {
		return nil, fmt.Errorf("parse bettor: %w", err)
	}
	switch state.DirectionKind(kind) {
	case state.DirectionUp:
		b.Direction = "up"
	case state.DirectionDown:
		b.Direction = "down"
	case state.DirectionPercentChange:
		b.Direction = "percent_change"
	}
	b.Status = state.BetStatus(status).String()
	b.AsOfSequence = asOf
	return &b, nil
}

// GetBet returns one bet.
func (s *Service) GetBet(ctx context.Context, roundID, betID uint64) (resp *BetResponse, err error) {
	defer s.observe("get_bet", time.Now(), &err)

	asOf, err := s.watermark(ctx)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+betColumns+` FROM round_ledger.bets WHERE round_id = $1 AND bet_id = $2`,
		int64(roundID), int64(betID))
	b, err := scanBet(row.Scan, asOf)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ListRoundBets returns all bets on a round.
func (s *Service) ListRoundBets(ctx context.Context, roundID uint64) (resp []BetResponse, err error) {
	defer s.observe("list_round_bets", time.Now(), &err)
	return s.listBets(ctx,
		`SELECT `+betColumns+` FROM round_ledger.bets WHERE round_id = $1 ORDER BY bet_id`,
		int64(roundID))
}

// ListBettorBets returns a bettor's bets, newest first.
func (s *Service) ListBettorBets(ctx context.Context, bettor uuid.UUID) (resp []BetResponse, err error) {
	defer s.observe("list_bettor_bets", time.Now(), &err)
	return s.listBets(ctx,
		`SELECT `+betColumns+` FROM round_ledger.bets WHERE bettor = $1
		 ORDER BY round_id DESC, bet_id DESC`,
		bettor.String())
}

func (s *Service) listBets(ctx context.Context, q string, arg any) ([]BetResponse, error) {
	asOf, err := s.watermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bets []BetResponse
	for rows.Next() {
		b, err := scanBet(rows.Scan, asOf)
		if err != nil {
			return nil, err
		}
		bets = append(bets, *b)
	}
	return bets, rows.Err()
}

// GetBalance derives a bettor's balance from journal entries: debits to
// the account add, credits subtract.
func (s *Service) GetBalance(ctx context.Context, bettor uuid.UUID) (resp *BalanceResponse, err error) {
	defer s.observe("get_balance", time.Now(), &err)

	asOf, err := s.watermark(ctx)
	if err != nil {
		return nil, err
	}

	account := fmt.Sprintf("bettor:%s", bettor)
	var balance int64
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN debit_account = $1 THEN amount ELSE -amount END), 0)
		FROM round_ledger.journal
		WHERE debit_account = $1 OR credit_account = $1`,
		account).Scan(&balance)
	if err != nil {
		return nil, err
	}

	return &BalanceResponse{Bettor: bettor, Balance: balance, AsOfSequence: asOf}, nil
}

// ListJournal returns journal entries touching an account, newest first.
func (s *Service) ListJournal(ctx context.Context, account string, limit int) (resp []JournalEntryResponse, err error) {
	defer s.observe("list_journal", time.Now(), &err)

	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT journal_id, batch_id, op_ref, sequence, debit_account,
		       credit_account, amount, journal_type, timestamp
		FROM round_ledger.journal
		WHERE debit_account = $1 OR credit_account = $1
		ORDER BY sequence DESC, journal_id LIMIT $2`,
		account, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalEntryResponse
	for rows.Next() {
		var e JournalEntryResponse
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.OpRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.Amount, &e.JournalType,
			&e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"RoundLedger/internal/engine"
	"RoundLedger/internal/ingestion"
	"RoundLedger/internal/query"
	"RoundLedger/internal/state"
	"RoundLedger/internal/vault"
)

// HTTPServer is the JSON API: mutating endpoints submit commands to the
// dispatcher, read endpoints hit the query service. Caller identity comes
// from the X-Caller-Id header; X-Command-Id optionally carries a client
// idempotency key.
type HTTPServer struct {
	dispatcher *ingestion.Dispatcher
	queries    *query.Service
	log        zerolog.Logger
	srv        *http.Server
}

func NewHTTPServer(addr string, dispatcher *ingestion.Dispatcher, queries *query.Service, log zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		dispatcher: dispatcher,
		queries:    queries,
		log:        log,
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *HTTPServer) router() http.Handler {
	mux := http.NewServeMux()

	// Admin
	mux.HandleFunc("POST /v1/admin/initialize", s.command("initialize", nil))
	mux.HandleFunc("PUT /v1/admin/config", s.command("update_config", nil))
	mux.HandleFunc("POST /v1/admin/pause", s.command("emergency_pause", nil))
	mux.HandleFunc("POST /v1/admin/unpause", s.command("emergency_unpause", nil))

	// Round lifecycle
	mux.HandleFunc("POST /v1/rounds", s.command("create_round", nil))
	mux.HandleFunc("POST /v1/rounds/{round}/groups", s.command("insert_group_asset", roundParam))
	mux.HandleFunc("POST /v1/rounds/{round}/groups/{group}/assets", s.command("insert_asset", roundGroupParams))
	mux.HandleFunc("POST /v1/rounds/{round}/start", s.command("start_round", roundParam))
	mux.HandleFunc("POST /v1/rounds/{round}/groups/{group}/capture-start", s.command("capture_start_price", roundGroupParams))
	mux.HandleFunc("POST /v1/rounds/{round}/groups/{group}/capture-end", s.command("capture_end_price", roundGroupParams))
	mux.HandleFunc("POST /v1/rounds/{round}/groups/{group}/finalize-start", s.command("finalize_start_group_asset", roundGroupParams))
	mux.HandleFunc("POST /v1/rounds/{round}/groups/{group}/finalize-end", s.command("finalize_end_group_asset", roundGroupParams))
	mux.HandleFunc("POST /v1/rounds/{round}/finalize-start-groups", s.command("finalize_start_groups", roundParam))
	mux.HandleFunc("POST /v1/rounds/{round}/finalize-end-groups", s.command("finalize_end_groups", roundParam))
	mux.HandleFunc("POST /v1/rounds/{round}/settle-single", s.command("settle_single_round", roundParam))
	mux.HandleFunc("POST /v1/rounds/{round}/settle-group", s.command("settle_group_round", roundParam))

	// Bettor
	mux.HandleFunc("POST /v1/deposits", s.command("deposit", nil))
	mux.HandleFunc("POST /v1/withdrawals", s.command("withdraw", nil))
	mux.HandleFunc("POST /v1/bets", s.command("place_bet", nil))
	mux.HandleFunc("POST /v1/rounds/{round}/bets/{bet}/claim", s.command("claim_reward", roundBetParams))

	// Queries
	mux.HandleFunc("GET /v1/config", s.getConfig)
	mux.HandleFunc("GET /v1/rounds", s.listRounds)
	mux.HandleFunc("GET /v1/rounds/{round}", s.getRound)
	mux.HandleFunc("GET /v1/rounds/{round}/groups", s.listGroups)
	mux.HandleFunc("GET /v1/rounds/{round}/groups/{group}/assets", s.listAssets)
	mux.HandleFunc("GET /v1/rounds/{round}/bets", s.listRoundBets)
	mux.HandleFunc("GET /v1/rounds/{round}/bets/{bet}", s.getBet)
	mux.HandleFunc("GET /v1/bettors/{bettor}/bets", s.listBettorBets)
	mux.HandleFunc("GET /v1/bettors/{bettor}/balance", s.getBalance)
	mux.HandleFunc("GET /v1/accounts/{account}/journal", s.listJournal)

	return mux
}

func (s *HTTPServer) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// --- mutating endpoints ---

// paramFunc extracts path parameters into payload fields.
type paramFunc func(r *http.Request) (map[string]any, error)

func roundParam(r *http.Request) (map[string]any, error) {
	roundID, err := strconv.ParseUint(r.PathValue("round"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid round id")
	}
	return map[string]any{"round_id": roundID}, nil
}

func roundGroupParams(r *http.Request) (map[string]any, error) {
	params, err := roundParam(r)
	if err != nil {
		return nil, err
	}
	groupID, err := strconv.ParseUint(r.PathValue("group"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid group id")
	}
	params["group_id"] = groupID
	return params, nil
}

func roundBetParams(r *http.Request) (map[string]any, error) {
	params, err := roundParam(r)
	if err != nil {
		return nil, err
	}
	betID, err := strconv.ParseUint(r.PathValue("bet"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid bet id")
	}
	params["bet_id"] = betID
	return params, nil
}

// command builds a handler that merges the request body, identity headers,
// and path parameters into the wire payload the command parser accepts.
func (s *HTTPServer) command(commandType string, params paramFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := r.Header.Get("X-Caller-Id")
		if caller == "" {
			writeError(w, http.StatusUnauthorized, "X-Caller-Id header required")
			return
		}

		fields := make(map[string]any)
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON body")
				return
			}
		}
		fields["caller"] = caller
		if id := r.Header.Get("X-Command-Id"); id != "" {
			fields["command_id"] = id
		}
		if params != nil {
			extra, err := params(r)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			for k, v := range extra {
				fields[k] = v
			}
		}

		data, err := json.Marshal(fields)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
		cmd, err := ingestion.ParseCommand(commandType, data)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		value, err := s.dispatcher.Submit(r.Context(), cmd)
		if err != nil {
			writeError(w, errStatus(err), err.Error())
			return
		}

		resp := map[string]any{"status": "applied"}
		switch commandType {
		case "create_round":
			resp["round_id"] = value
		case "insert_group_asset":
			resp["group_id"] = value
		case "insert_asset":
			resp["asset_id"] = value
		case "place_bet":
			resp["bet_id"] = value
		case "claim_reward":
			resp["payout"] = value
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// errStatus maps engine rejections to HTTP status codes.
func errStatus(err error) int {
	switch {
	case errors.Is(err, ingestion.ErrDuplicateCommand):
		return http.StatusConflict
	case errors.Is(err, engine.ErrUnauthorized),
		errors.Is(err, engine.ErrUnauthorizedKeeper):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrRoundNotFound),
		errors.Is(err, engine.ErrBetNotFound),
		errors.Is(err, engine.ErrNotInitialized):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrAlreadyInitialized),
		errors.Is(err, engine.ErrEmergencyPaused),
		errors.Is(err, engine.ErrAlreadyEmergencyPaused),
		errors.Is(err, engine.ErrNotEmergencyPaused),
		errors.Is(err, engine.ErrBetAlreadySettled),
		errors.Is(err, engine.ErrAllBetsSettled),
		errors.Is(err, engine.ErrAlreadyClaimed),
		errors.Is(err, engine.ErrWinnersAlreadyFinalized),
		errors.Is(err, engine.ErrGroupAlreadyFinalizedStart),
		errors.Is(err, engine.ErrGroupAlreadyCapturedEndPrice),
		errors.Is(err, engine.ErrRoundAlreadyCapturedStartPrice):
		return http.StatusConflict
	case errors.Is(err, vault.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnprocessableEntity
	}
}

// --- query endpoints ---

func (s *HTTPServer) getConfig(w http.ResponseWriter, r *http.Request) {
	resp, err := s.queries.GetConfig(r.Context())
	s.writeQuery(w, resp, err)
}

func (s *HTTPServer) getRound(w http.ResponseWriter, r *http.Request) {
	roundID, err := strconv.ParseUint(r.PathValue("round"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid round id")
		return
	}
	resp, err := s.queries.GetRound(r.Context(), roundID)
	s.writeQuery(w, resp, err)
}

func (s *HTTPServer) listRounds(w http.ResponseWriter, r *http.Request) {
	var status *state.RoundStatus
	switch r.URL.Query().Get("status") {
	case "":
	case "scheduled":
		v := state.RoundStatusScheduled
		status = &v
	case "active":
		v := state.RoundStatusActive
		status = &v
	case "ended":
		v := state.RoundStatusEnded
		status = &v
	default:
		writeError(w, http.StatusBadRequest, "unknown status filter")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	resp, err := s.queries.ListRounds(r.Context(), status, limit)
	s.writeQuery(w, resp, err)
}

func (s *HTTPServer) listGroups(w http.ResponseWriter, r *http.Request) {
	roundID, err := strconv.ParseUint(r.PathValue("round"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid round id")
		return
	}
	resp, err := s.queries.ListGroups(r.Context(), roundID)
	s.writeQuery(w, resp, err)
}

func (s *HTTPServer) listAssets(w http.ResponseWriter, r *http.Request) {
	roundID, err := strconv.ParseUint(r.PathValue("round"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid round id")
		return
	}
	groupID, err := strconv.ParseUint(r.PathValue("group"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid group id")
		return
	}
	resp, err := s.queries.ListAssets(r.Context(), roundID, groupID)
	s.writeQuery(w, resp, err)
}

func (s *HTTPServer) getBet(w http.ResponseWriter, r *http.Request) {
	roundID, err := strconv.ParseUint(r.PathValue("round"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid round id")
		return
	}
	betID, err := strconv.ParseUint(r.PathValue("bet"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid bet id")
		return
	}
	resp, err := s.queries.GetBet(r.Context(), roundID, betID)
	s.writeQuery(w, resp, err)
}

func (s *HTTPServer) listRoundBets(w http.ResponseWriter, r *http.Request) {
	roundID, err := strconv.ParseUint(r.PathValue("round"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid round id")
		return
	}
	resp, err := s.queries.ListRoundBets(r.Context(), roundID)
	s.writeQuery(w, resp, err)
}

func (s *HTTPServer) listBettorBets(w http.ResponseWriter, r *http.Request) {
	bettor, err := uuid.Parse(r.PathValue("bettor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid bettor id")
		return
	}
	resp, err := s.queries.ListBettorBets(r.Context(), bettor)
	s.writeQuery(w, resp, err)
}

func (s *HTTPServer) getBalance(w http.ResponseWriter, r *http.Request) {
	bettor, err := uuid.Parse(r.PathValue("bettor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid bettor id")
		return
	}
	resp, err := s.queries.GetBalance(r.Context(), bettor)
	s.writeQuery(w, resp, err)
}

func (s *HTTPServer) listJournal(w http.ResponseWriter, r *http.Request) {
	account := r.PathValue("account")
	if account == "" {
		writeError(w, http.StatusBadRequest, "account required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	resp, err := s.queries.ListJournal(r.Context(), account, limit)
	s.writeQuery(w, resp, err)
}

func (s *HTTPServer) writeQuery(w http.ResponseWriter, resp any, err error) {
	if errors.Is(err, query.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("query failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

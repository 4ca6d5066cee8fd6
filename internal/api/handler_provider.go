package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/besitobot/economy/internal/repos/wallets"
	"github.com/besitobot/economy/internal/services/dispatch"
	"github.com/besitobot/economy/internal/services/ledger"
	"github.com/besitobot/economy/internal/services/streak"
	"github.com/go-chi/chi/v5"
)

// HandlerProvider wraps the economy core services and exposes HTTP handlers.
type HandlerProvider struct {
	ledger   *ledger.Service
	streak   *streak.Service
	dispatch *dispatch.Service
}

// NewHandler returns a new handler provider.
func NewHandler(led *ledger.Service, st *streak.Service, dsp *dispatch.Service) *HandlerProvider {
	return &HandlerProvider{ledger: led, streak: st, dispatch: dsp}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode JSON response", "error", err)

		http.Error(w, `{"error":"internal json encode failure"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseUserIDFromPath reads `{userID}` from chi routes like:
//
//	GET  /user/{userID}/balance
//	POST /user/{userID}/debit
func parseUserIDFromPath(r *http.Request) (int64, error) {
	idStr := chi.URLParam(r, "userID")
	if idStr == "" {
		return 0, fmt.Errorf("missing userID")
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid userID: %w", err)
	}
	if id <= 0 {
		return 0, fmt.Errorf("invalid userID: must be positive")
	}

	return id, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB cap
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty body")
		}

		return fmt.Errorf("invalid JSON")
	}

	return nil
}

// --- Handlers ---

// GetBalanceHandler handles GET /user/{userID}/balance
func (h *HandlerProvider) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid userID in path")
		return
	}

	bal, err := h.ledger.GetBalance(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"userId":  userID,
		"balance": bal,
	})
}

// GetHistoryHandler handles GET /user/{userID}/transactions?limit=&before=
func (h *HandlerProvider) GetHistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid userID in path")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	var before time.Time
	if raw := r.URL.Query().Get("before"); raw != "" {
		before, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid before timestamp")
			return
		}
	}

	hist, err := h.ledger.History(r.Context(), userID, limit, before)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	type txJSON struct {
		ID           string    `json:"id"`
		Delta        int64     `json:"delta"`
		ReasonCode   string    `json:"reasonCode"`
		BalanceAfter int64     `json:"balanceAfter"`
		CreatedAt    time.Time `json:"createdAt"`
	}

	out := make([]txJSON, 0, len(hist))
	for _, e := range hist {
		out = append(out, txJSON{
			ID:           e.ID.String(),
			Delta:        e.Delta,
			ReasonCode:   e.ReasonCode,
			BalanceAfter: e.BalanceAfter,
			CreatedAt:    e.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"userId":       userID,
		"transactions": out,
	})
}

// GetStreakHandler handles GET /user/{userID}/streak
func (h *HandlerProvider) GetStreakHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid userID in path")
		return
	}

	st, err := h.streak.Status(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"userId":         userID,
		"currentLength":  st.CurrentLength,
		"graceAvailable": st.GraceAvailable,
		"broken":         st.BrokenAt != nil,
	})
}

type debitRequest struct {
	Amount         int64  `json:"amount"`
	ReasonCode     string `json:"reasonCode"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// DebitHandler handles POST /user/{userID}/debit — the sink used by the
// shop collaborator. Replays of the same idempotency key return the first
// call's result with replayed=true.
func (h *HandlerProvider) DebitHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid userID in path")
		return
	}

	var req debitRequest

	err = decodeBody(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be > 0")
		return
	}
	if req.ReasonCode == "" || req.IdempotencyKey == "" {
		writeError(w, http.StatusBadRequest, "reasonCode and idempotencyKey required")
		return
	}

	res, err := h.ledger.Debit(r.Context(), userID, req.Amount, req.ReasonCode, req.IdempotencyKey)
	if err != nil {
		if errors.Is(err, wallets.ErrInsufficientFunds) {
			writeError(w, http.StatusConflict, "insufficient funds")
			return
		}

		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"userId":        userID,
		"balance":       res.Balance,
		"transactionId": res.TxID.String(),
		"replayed":      res.Replayed,
	})
}

type eventRequest struct {
	EventID         string    `json:"eventId,omitempty"`
	UserID          int64     `json:"userId"`
	Kind            string    `json:"kind"`
	ContentID       string    `json:"contentId,omitempty"`
	ReactionKind    string    `json:"reactionKind,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	TZOffsetMinutes int       `json:"tzOffsetMinutes"`
}

// ProcessEventHandler handles POST /events — the entry point for the
// messaging layer.
func (h *HandlerProvider) ProcessEventHandler(w http.ResponseWriter, r *http.Request) {
	var req eventRequest

	err := decodeBody(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.dispatch.Process(r.Context(), dispatch.Event{
		ID:              req.EventID,
		UserID:          req.UserID,
		Kind:            req.Kind,
		ContentID:       req.ContentID,
		ReactionKind:    req.ReactionKind,
		Timestamp:       req.Timestamp,
		TZOffsetMinutes: req.TZOffsetMinutes,
	})
	if err != nil {
		if errors.Is(err, dispatch.ErrInvalidEvent) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	body := map[string]any{
		"status":  res.Status,
		"total":   res.Total,
		"ruleIds": res.RuleIDs,
	}
	if res.GateReason != "" {
		body["gateReason"] = res.GateReason
	}
	if res.Claim != nil {
		body["claim"] = map[string]any{
			"outcome":        res.Claim.Outcome,
			"streakCount":    res.Claim.StreakCount,
			"graceAvailable": res.Claim.GraceAvailable,
		}
	}

	writeJSON(w, http.StatusOK, body)
}

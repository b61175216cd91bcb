// mock-ledger is a standalone in-memory ledger service implementing the
// contract the orchestrator consumes: account reads and token-idempotent
// balance mutations. Used for local runs; optional fault injection exercises
// the retry and compensation paths.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mide-ajayi/transflow/internal/logging"
)

type account struct {
	id       string
	status   string
	balance  decimal.Decimal
	currency string
}

type ledgerState struct {
	mu            sync.Mutex
	accounts      map[string]*account
	confirmations map[string]string // idempotency token -> confirmation id
	failRate      float64
	latency       time.Duration
}

func main() {
	logging.Init("mock-ledger", "info", os.Getenv("APP_ENV"))

	state := &ledgerState{
		accounts:      make(map[string]*account),
		confirmations: make(map[string]string),
	}
	if rate := os.Getenv("FAIL_RATE"); rate != "" {
		if f, err := strconv.ParseFloat(rate, 64); err == nil {
			state.failRate = f
		}
	}
	if ms := os.Getenv("LATENCY_MS"); ms != "" {
		if n, err := strconv.Atoi(ms); err == nil {
			state.latency = time.Duration(n) * time.Millisecond
		}
	}

	seed := os.Getenv("SEED_ACCOUNTS")
	if seed == "" {
		seed = "acc-1:TRY:1000.00,acc-2:TRY:0.00"
	}
	if err := state.seed(seed); err != nil {
		slog.Error("invalid SEED_ACCOUNTS", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /accounts/{id}", state.handleGetAccount)
	mux.HandleFunc("POST /accounts/{id}/balance", state.handleAdjustBalance)

	addr := ":8081"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}

	slog.Info("mock ledger started", "addr", addr, "fail_rate", state.failRate)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

// seed parses "id:currency:balance" triples separated by commas.
func (s *ledgerState) seed(spec string) error {
	for _, entry := range strings.Split(spec, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 {
			return fmt.Errorf("bad entry %q", entry)
		}
		balance, err := decimal.NewFromString(parts[2])
		if err != nil {
			return fmt.Errorf("bad balance in %q: %w", entry, err)
		}
		s.accounts[parts[0]] = &account{
			id:       parts[0],
			status:   "ACTIVE",
			balance:  balance,
			currency: parts[1],
		}
	}
	return nil
}

func (s *ledgerState) inject(w http.ResponseWriter) bool {
	if s.latency > 0 {
		time.Sleep(s.latency)
	}
	if s.failRate > 0 && rand.Float64() < s.failRate {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "injected_failure"})
		return true
	}
	return false
}

func (s *ledgerState) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	if s.inject(w) {
		return
	}

	s.mu.Lock()
	acct, ok := s.accounts[r.PathValue("id")]
	if !ok {
		s.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "account_not_found"})
		return
	}
	resp := map[string]string{
		"id":       acct.id,
		"status":   acct.status,
		"balance":  acct.balance.String(),
		"currency": acct.currency,
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

type balanceRequest struct {
	Amount           string `json:"amount"`
	IdempotencyToken string `json:"idempotencyToken"`
	Description      string `json:"description"`
}

func (s *ledgerState) handleAdjustBalance(w http.ResponseWriter, r *http.Request) {
	if s.inject(w) {
		return
	}

	var req balanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_body"})
		return
	}
	if req.IdempotencyToken == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "idempotency_token_required"})
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.IsZero() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_amount"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Replays answer with the original confirmation and no balance change.
	if confirmation, ok := s.confirmations[req.IdempotencyToken]; ok {
		writeJSON(w, http.StatusOK, map[string]string{"confirmationId": confirmation})
		return
	}

	acct, ok := s.accounts[r.PathValue("id")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "account_not_found"})
		return
	}
	if acct.status != "ACTIVE" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "account_inactive"})
		return
	}

	next := acct.balance.Add(amount)
	if next.IsNegative() {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "insufficient_funds"})
		return
	}

	acct.balance = next
	confirmation := uuid.NewString()
	s.confirmations[req.IdempotencyToken] = confirmation

	slog.Info("balance adjusted",
		"account", acct.id,
		"amount", amount.String(),
		"balance", acct.balance.String(),
		"token", req.IdempotencyToken,
	)
	writeJSON(w, http.StatusOK, map[string]string{"confirmationId": confirmation})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

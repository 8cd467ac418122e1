// anchorsim is a local stand-in for every external collaborator: the anchor
// payout rails (auth, SEP-6 withdrawal, SEP-24 interactive flow) and the DEX
// aggregation API. Point ANCHOR_BASE_URL and AGGREGATOR_BASE_URL at it to run
// remitd without network access.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"remit/pkg/logger"
)

var signingKey = []byte("anchorsim-dev-key")

// sim tracks per-transaction poll counts so interactive withdrawals progress
// through pending statuses before completing.
type sim struct {
	mu    sync.Mutex
	polls map[string]int
	log   logger.Logger
}

func main() {
	_ = godotenv.Load()

	log := logger.New("anchorsim")
	s := &sim{polls: make(map[string]int), log: log}

	addr := os.Getenv("ANCHORSIM_ADDR")
	if addr == "" {
		addr = ":8091"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth", s.handleAuth)
	mux.HandleFunc("POST /sep6/withdraw", s.handleSEP6Withdraw)
	mux.HandleFunc("GET /sep6/transaction", s.handleTransaction)
	mux.HandleFunc("POST /sep24/transactions/withdraw/interactive", s.handleSEP24Interactive)
	mux.HandleFunc("GET /sep24/transaction", s.handleTransaction)
	mux.HandleFunc("GET /{chainID}/quote", s.handleAggregatorQuote)
	mux.HandleFunc("GET /{chainID}/swap", s.handleAggregatorSwap)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	log.Info("anchorsim listening", map[string]interface{}{"addr": addr})
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal("anchorsim stopped", map[string]interface{}{"error": err.Error()})
	}
}

// handleAuth issues a short-lived signed token. The orchestrator caches it
// until the exp claim.
func (s *sim) handleAuth(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")

	claims := jwt.MapClaims{
		"sub": account,
		"iss": "anchorsim",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(15 * time.Minute).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to sign token"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *sim) handleSEP6Withdraw(w http.ResponseWriter, r *http.Request) {
	if !authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing bearer token", "code": "NEEDS_INFO"})
		return
	}

	var req struct {
		AssetCode string            `json:"asset_code"`
		Amount    decimal.Decimal   `json:"amount"`
		Type      string            `json:"type"`
		Dest      map[string]string `json:"dest"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid recipient payload", "code": "INVALID_DEST"})
		return
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid amount", "code": "INVALID_DEST"})
		return
	}

	id := uuid.New().String()
	s.log.Info("SEP-6 withdrawal accepted", map[string]interface{}{
		"id":     id,
		"asset":  req.AssetCode,
		"amount": req.Amount.String(),
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":          id,
		"eta":         10,
		"fee_fixed":   "0",
		"fee_percent": "0.5",
	})
}

func (s *sim) handleSEP24Interactive(w http.ResponseWriter, r *http.Request) {
	if !authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing bearer token", "code": "NEEDS_INFO"})
		return
	}

	id := uuid.New().String()
	s.mu.Lock()
	s.polls[id] = 0
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{
		"id":  id,
		"url": fmt.Sprintf("https://anchorsim.local/flow/%s", id),
	})
}

// handleTransaction reports pending for the first two polls of an id, then
// completed, so the interactive flow exercises its polling loop.
func (s *sim) handleTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing transaction id"})
		return
	}

	s.mu.Lock()
	s.polls[id]++
	polls := s.polls[id]
	s.mu.Unlock()

	status := "completed"
	if polls <= 2 {
		status = "pending_external"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"id":                      id,
		"status":                  status,
		"external_transaction_id": "ext-" + id[:8],
	})
}

func (s *sim) handleAggregatorQuote(w http.ResponseWriter, r *http.Request) {
	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid amount"})
		return
	}

	// Flat simulated execution: slightly under par, like a real DEX fill.
	dstAmount := amount.Mul(decimal.NewFromFloat(0.998))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"dstAmount":    dstAmount,
		"estimatedGas": 210000,
		"protocols":    []string{"SIM_V3"},
	})
}

func (s *sim) handleAggregatorSwap(w http.ResponseWriter, r *http.Request) {
	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid amount"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tx": map[string]interface{}{
			"to":       r.URL.Query().Get("dst"),
			"data":     "0x" + strings.Repeat("ab", 16),
			"value":    "0",
			"gas":      250000,
			"gasPrice": "30000000000",
		},
	})
}

func authorized(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

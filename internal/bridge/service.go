// Package bridge moves settled stablecoin value between networks. The demo
// implementation fabricates lock proofs and settlement hashes; a production
// build would submit to a real bridge contract and watch for finality.
package bridge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"remit/internal/domain"
	"remit/pkg/errors"
	"remit/pkg/logger"
)

// TransferRequest describes one cross-chain transfer of the settlement asset.
type TransferRequest struct {
	FromChain domain.Chain
	Asset     string
	Amount    decimal.Decimal
	Recipient string
}

// TransferResult carries the identifiers the order records.
type TransferResult struct {
	BridgeTxID       string
	SettlementTxHash string
}

// Service performs simulated cross-chain transfers.
type Service struct {
	logger         logger.Logger
	confirmTimeout time.Duration

	// confirmDelay simulates destination-network finality; tests shrink it.
	confirmDelay time.Duration
}

func NewService(confirmTimeout time.Duration, log logger.Logger) *Service {
	return &Service{
		logger:         log,
		confirmTimeout: confirmTimeout,
		confirmDelay:   50 * time.Millisecond,
	}
}

// Transfer locks value on the source network and releases it on the
// settlement network, waiting for confirmation. Context expiry while waiting
// is reported as a timeout so the classifier schedules a retry.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.NewCoded("INVALID_AMOUNT", "bridge amount must be positive")
	}

	bridgeTxID := uuid.New().String()

	// Phase 1: lock on the source network. The proof binds the transfer
	// parameters so the release leg can be verified against it.
	lockProof := proofFor(bridgeTxID, string(req.FromChain), req.Recipient, req.Amount.String())
	s.logger.Debug("Bridge funds locked", map[string]interface{}{
		"bridge_tx_id": bridgeTxID,
		"from_chain":   req.FromChain,
		"asset":        req.Asset,
		"lock_proof":   lockProof,
	})

	// Phase 2: release on the settlement network and await confirmation.
	settlementHash := "0x" + proofFor(lockProof, req.Asset, req.Recipient)

	confirmCtx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()

	select {
	case <-time.After(s.confirmDelay):
	case <-confirmCtx.Done():
		return nil, errors.NewCoded("ETIMEDOUT", "bridge confirmation not observed: %v", confirmCtx.Err())
	}

	s.logger.Info("Bridge transfer settled", map[string]interface{}{
		"bridge_tx_id":       bridgeTxID,
		"settlement_tx_hash": settlementHash,
		"amount":             req.Amount.String(),
	})

	return &TransferResult{
		BridgeTxID:       bridgeTxID,
		SettlementTxHash: settlementHash,
	}, nil
}

func proofFor(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprint(h, p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

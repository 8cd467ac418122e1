// Package domain holds the core remittance data model: quotes, routes,
// orders, and recipient payout details.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Chain identifies a source blockchain network.
type Chain string

const (
	ChainEthereum Chain = "ethereum"
	ChainPolygon  Chain = "polygon"
	ChainArbitrum Chain = "arbitrum"
	ChainBase     Chain = "base"
)

// ChainID returns the EVM chain id used by the DEX aggregator.
func (c Chain) ChainID() int64 {
	switch c {
	case ChainEthereum:
		return 1
	case ChainPolygon:
		return 137
	case ChainArbitrum:
		return 42161
	case ChainBase:
		return 8453
	default:
		return 0
	}
}

// Currency is an ISO 4217 fiat currency code.
type Currency string

const (
	USD Currency = "USD"
	PHP Currency = "PHP"
	MXN Currency = "MXN"
	INR Currency = "INR"
	NGN Currency = "NGN"
	VND Currency = "VND"
	KES Currency = "KES"
)

// StepKind is one leg of a quote's execution plan.
type StepKind string

const (
	StepSwap   StepKind = "swap"
	StepBridge StepKind = "bridge"
	StepPayout StepKind = "anchor_payout"
)

// AssetRef describes an asset on a particular network. Network is a chain
// name for on-chain legs or a country/currency tag for the payout leg.
type AssetRef struct {
	Symbol  string `json:"symbol"`
	Network string `json:"network"`
}

// RouteStep is one leg of a quote. Fee is a fraction of the gross amount
// moving through the step, not a percentage.
type RouteStep struct {
	Kind             StepKind        `json:"kind"`
	From             AssetRef        `json:"from"`
	To               AssetRef        `json:"to"`
	Protocol         string          `json:"protocol"`
	Fee              decimal.Decimal `json:"fee"`
	EstimatedMinutes int             `json:"estimated_minutes"`
}

// Quote is an immutable three-leg remittance quote. It is re-derived for
// every request and never cached.
//
// Invariants: len(Route) == 3, sum(step.Fee)*100 == TotalFeePercent, and
// sum(step.EstimatedMinutes) == EstimatedMinutes.
type Quote struct {
	SourceChain      Chain           `json:"source_chain"`
	SourceToken      string          `json:"source_token"`
	SourceAmount     decimal.Decimal `json:"source_amount"`
	DestCountry      string          `json:"dest_country"`
	DestCurrency     Currency        `json:"dest_currency"`
	DestAmount       decimal.Decimal `json:"dest_amount"`
	ExchangeRate     decimal.Decimal `json:"exchange_rate"`
	TotalFeePercent  decimal.Decimal `json:"total_fee_percent"`
	EstimatedMinutes int             `json:"estimated_minutes"`
	DeliveryMethodID string          `json:"delivery_method_id"`
	AnchorName       string          `json:"anchor_name"`
	Route            []RouteStep     `json:"route"`
}

// OrderStatus is the order lifecycle state.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusFailed     OrderStatus = "failed"
)

// Terminal reports whether the status is final.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusFailed
}

// CanTransition reports whether a status change is allowed. The lifecycle
// only moves forward: pending → processing → {completed, failed}. The single
// failed → processing edge is reserved for the retry scheduler resuming a
// failed pipeline stage; the orchestrator itself never leaves a terminal
// state.
func CanTransition(from, to OrderStatus) bool {
	allowed := map[OrderStatus][]OrderStatus{
		OrderStatusPending:    {OrderStatusProcessing},
		OrderStatusProcessing: {OrderStatusCompleted, OrderStatusFailed},
		OrderStatusFailed:     {OrderStatusProcessing},
	}
	for _, next := range allowed[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PipelineStage names an execution pipeline stage, recorded on failure so a
// scheduled retry can resume from the right place.
type PipelineStage string

const (
	StageNone   PipelineStage = ""
	StageSwap   PipelineStage = "swap"
	StageBridge PipelineStage = "bridge"
	StagePayout PipelineStage = "payout"
)

// Sender is the on-chain originator of an order.
type Sender struct {
	Address string `json:"address"`
	Chain   Chain  `json:"chain"`
}

// Recipient is the fiat-side beneficiary.
type Recipient struct {
	Name     string           `json:"name"`
	Country  string           `json:"country"`
	Currency Currency         `json:"currency"`
	Details  RecipientDetails `json:"details"`
}

// Order is created once at execution start and mutated in place by the
// single pipeline invocation that owns it. Terminal states are final.
type Order struct {
	ID               string        `json:"id"`
	Sender           Sender        `json:"sender"`
	Recipient        Recipient     `json:"recipient"`
	Quote            Quote         `json:"quote"`
	Status           OrderStatus   `json:"status"`
	StatusReason     string        `json:"status_reason,omitempty"`
	FailedStage      PipelineStage `json:"failed_stage,omitempty"`
	BridgeTxID       string        `json:"bridge_tx_id,omitempty"`
	SettlementTxHash string        `json:"settlement_tx_hash,omitempty"`
	PayoutTxID       string        `json:"payout_tx_id,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
}

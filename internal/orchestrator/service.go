// Package orchestrator composes the quote and execution pipelines: rate and
// delivery-method lookup, the DEX swap leg, the bridge leg, and the anchor
// payout leg, with classified failure handling and scheduled retries.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"remit/internal/aggregator"
	"remit/internal/anchor"
	"remit/internal/bridge"
	"remit/internal/corridor"
	"remit/internal/domain"
	"remit/internal/notification"
	"remit/internal/recovery"
	"remit/pkg/errors"
	"remit/pkg/logger"
)

// SwapQuoter is the DEX aggregation dependency.
type SwapQuoter interface {
	GetQuote(ctx context.Context, req aggregator.QuoteRequest) (*aggregator.QuoteResponse, error)
	BuildSwapTx(ctx context.Context, req aggregator.QuoteRequest) (*aggregator.SwapTx, error)
}

// Bridger moves settlement-asset value across networks.
type Bridger interface {
	Transfer(ctx context.Context, req bridge.TransferRequest) (*bridge.TransferResult, error)
}

// PayoutGateway executes the anchor payout leg.
type PayoutGateway interface {
	Payout(ctx context.Context, a *corridor.Anchor, req anchor.WithdrawRequest) (string, error)
}

// RetryScheduler plans bounded retries for classified failures.
type RetryScheduler interface {
	Schedule(orderID string, derr *recovery.DeliveryError, resume recovery.ResumeFunc, onExhausted recovery.ExhaustedFunc) bool
	Cancel(orderID string)
}

// Notifier is the lifecycle event port.
type Notifier interface {
	Notify(ctx context.Context, event notification.Event)
}

// QuoteRequest is the input to GetQuote.
type QuoteRequest struct {
	SourceChain      domain.Chain
	SourceToken      string
	SourceAmount     decimal.Decimal
	DestCountry      string
	DestCurrency     domain.Currency
	DeliveryMethodID string
}

// Service is the remittance orchestrator.
type Service struct {
	directory *corridor.Directory
	registry  *corridor.Registry
	swaps     SwapQuoter
	bridge    Bridger
	payouts   PayoutGateway
	store     Store
	scheduler RetryScheduler
	notifier  Notifier
	metrics   *Metrics
	slippage  float64
	logger    logger.Logger
}

func NewService(
	directory *corridor.Directory,
	registry *corridor.Registry,
	swaps SwapQuoter,
	bridgeSvc Bridger,
	payouts PayoutGateway,
	store Store,
	scheduler RetryScheduler,
	notifier Notifier,
	metrics *Metrics,
	slippage float64,
	log logger.Logger,
) *Service {
	return &Service{
		directory: directory,
		registry:  registry,
		swaps:     swaps,
		bridge:    bridgeSvc,
		payouts:   payouts,
		store:     store,
		scheduler: scheduler,
		notifier:  notifier,
		metrics:   metrics,
		slippage:  slippage,
		logger:    log,
	}
}

// GetQuote composes an indicative three-leg quote. Pure with respect to
// stored state: identical inputs against unchanged static tables produce
// identical quotes.
func (s *Service) GetQuote(ctx context.Context, req QuoteRequest) (*domain.Quote, error) {
	anchorRail, err := s.directory.ResolveAnchor(req.DestCountry, req.DestCurrency)
	if err != nil {
		return nil, err
	}

	method, err := s.resolveMethod(req)
	if err != nil {
		return nil, err
	}

	settlementAddr, err := corridor.SettlementAssetAddress(req.SourceChain)
	if err != nil {
		return nil, err
	}

	swapQuote, err := s.swaps.GetQuote(ctx, aggregator.QuoteRequest{
		ChainID:     req.SourceChain.ChainID(),
		SrcToken:    req.SourceToken,
		DstToken:    settlementAddr,
		Amount:      req.SourceAmount,
		FromAddress: settlementAddr,
		Slippage:    s.slippage,
	})
	if err != nil {
		return nil, err
	}

	rate, err := corridor.Rate(req.DestCurrency)
	if err != nil {
		return nil, err
	}

	payoutMinutes := anchorRail.PayoutETA(method.Kind)
	route := []domain.RouteStep{
		{
			Kind:             domain.StepSwap,
			From:             domain.AssetRef{Symbol: req.SourceToken, Network: string(req.SourceChain)},
			To:               domain.AssetRef{Symbol: corridor.SettlementAsset, Network: string(req.SourceChain)},
			Protocol:         "dex_aggregator",
			Fee:              corridor.SwapFee,
			EstimatedMinutes: corridor.SwapMinutes,
		},
		{
			Kind:             domain.StepBridge,
			From:             domain.AssetRef{Symbol: corridor.SettlementAsset, Network: string(req.SourceChain)},
			To:               domain.AssetRef{Symbol: corridor.SettlementAsset, Network: "settlement"},
			Protocol:         "bridge",
			Fee:              corridor.BridgeFee,
			EstimatedMinutes: corridor.BridgeMinutes,
		},
		{
			Kind:             domain.StepPayout,
			From:             domain.AssetRef{Symbol: corridor.SettlementAsset, Network: "settlement"},
			To:               domain.AssetRef{Symbol: string(req.DestCurrency), Network: req.DestCountry},
			Protocol:         anchorRail.Name,
			Fee:              corridor.PayoutFee,
			EstimatedMinutes: payoutMinutes,
		},
	}

	totalFeeFraction := decimal.Zero
	totalMinutes := 0
	for _, step := range route {
		totalFeeFraction = totalFeeFraction.Add(step.Fee)
		totalMinutes += step.EstimatedMinutes
	}

	gross := swapQuote.DstAmount.Mul(rate)
	destAmount := gross.Mul(decimal.NewFromInt(1).Sub(totalFeeFraction)).Round(2)

	if err := s.registry.CheckAmount(method, destAmount); err != nil {
		return nil, err
	}

	quote := &domain.Quote{
		SourceChain:      req.SourceChain,
		SourceToken:      req.SourceToken,
		SourceAmount:     req.SourceAmount,
		DestCountry:      req.DestCountry,
		DestCurrency:     req.DestCurrency,
		DestAmount:       destAmount,
		ExchangeRate:     rate,
		TotalFeePercent:  totalFeeFraction.Mul(decimal.NewFromInt(100)),
		EstimatedMinutes: totalMinutes,
		DeliveryMethodID: method.ID,
		AnchorName:       anchorRail.Name,
		Route:            route,
	}

	s.logger.Debug("Quote composed", map[string]interface{}{
		"dest_country":  req.DestCountry,
		"dest_currency": req.DestCurrency,
		"anchor":        anchorRail.Name,
		"dest_amount":   destAmount.String(),
	})
	return quote, nil
}

func (s *Service) resolveMethod(req QuoteRequest) (*corridor.DeliveryMethod, error) {
	if req.DeliveryMethodID == "" {
		return s.registry.DefaultMethodFor(req.DestCountry, req.DestCurrency)
	}
	method, err := s.registry.Method(req.DeliveryMethodID)
	if err != nil {
		return nil, err
	}
	if method.Country != req.DestCountry || method.Currency != req.DestCurrency {
		return nil, errors.Wrap(errors.ErrInvalidDeliveryMethod,
			fmt.Sprintf("method %s does not serve %s/%s", method.ID, req.DestCountry, req.DestCurrency))
	}
	return method, nil
}

// ExecuteRemittance runs a confirmed quote through the swap, bridge, and
// payout legs. The returned order always carries a terminal status; on
// failure the error is the classified DeliveryError whose UserMessage is safe
// to surface.
func (s *Service) ExecuteRemittance(ctx context.Context, quote domain.Quote, sender domain.Sender, recipient domain.Recipient) (*domain.Order, error) {
	if !aggregator.ValidAddress(sender.Address) {
		return nil, errors.Wrap(errors.ErrInvalidAddress, fmt.Sprintf("sender address %q", sender.Address))
	}
	method, err := s.registry.Method(quote.DeliveryMethodID)
	if err != nil {
		return nil, err
	}
	if err := s.registry.CheckAmount(method, quote.DestAmount); err != nil {
		return nil, err
	}
	if err := s.registry.ValidateDetails(method, recipient.Details); err != nil {
		return nil, err
	}

	order := &domain.Order{
		ID:        newOrderID(),
		Sender:    sender,
		Recipient: recipient,
		Quote:     quote,
		Status:    domain.OrderStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Create(order); err != nil {
		return nil, err
	}
	s.metrics.OrderStarted()

	if err := s.setStatus(order, domain.OrderStatusProcessing, ""); err != nil {
		return nil, err
	}

	if err := s.runStages(ctx, order, domain.StageSwap); err != nil {
		derr := recovery.Classify(err)
		s.failOrder(ctx, order, derr)
		return s.snapshot(order), derr
	}

	s.completeOrder(ctx, order)
	return s.snapshot(order), nil
}

// Order returns the stored order by id.
func (s *Service) Order(id string) (*domain.Order, error) {
	return s.store.Get(id)
}

// OrdersBySender lists a sender's orders.
func (s *Service) OrdersBySender(address string) []*domain.Order {
	return s.store.BySender(address)
}

// Corridors lists the configured corridors.
func (s *Service) Corridors() []corridor.CorridorInfo {
	return s.directory.Corridors()
}

// MetricsSnapshot returns a copy of the current metrics.
func (s *Service) MetricsSnapshot() MetricsSnapshot {
	return s.metrics.Snapshot()
}

var stageOrder = []domain.PipelineStage{domain.StageSwap, domain.StageBridge, domain.StagePayout}

// runStages executes pipeline stages starting at from. Earlier stages are
// never re-run: a retry resuming at the bridge leg must not re-submit the
// swap, and one resuming at payout must not re-settle the bridge transfer.
func (s *Service) runStages(ctx context.Context, order *domain.Order, from domain.PipelineStage) error {
	started := false
	for _, stage := range stageOrder {
		if stage == from {
			started = true
		}
		if !started {
			continue
		}
		if err := s.runStage(ctx, order, stage); err != nil {
			order.FailedStage = stage
			return err
		}
	}
	order.FailedStage = domain.StageNone
	return nil
}

func (s *Service) runStage(ctx context.Context, order *domain.Order, stage domain.PipelineStage) error {
	switch stage {
	case domain.StageSwap:
		return s.runSwap(ctx, order)
	case domain.StageBridge:
		return s.runBridge(ctx, order)
	case domain.StagePayout:
		return s.runPayout(ctx, order)
	default:
		return errors.NewCoded("ESTAGE", "unknown pipeline stage %q", stage)
	}
}

func (s *Service) runSwap(ctx context.Context, order *domain.Order) error {
	settlementAddr, err := corridor.SettlementAssetAddress(order.Quote.SourceChain)
	if err != nil {
		return err
	}

	_, err = s.swaps.BuildSwapTx(ctx, aggregator.QuoteRequest{
		ChainID:     order.Quote.SourceChain.ChainID(),
		SrcToken:    order.Quote.SourceToken,
		DstToken:    settlementAddr,
		Amount:      order.Quote.SourceAmount,
		FromAddress: order.Sender.Address,
		Slippage:    s.slippage,
	})
	return err
}

func (s *Service) runBridge(ctx context.Context, order *domain.Order) error {
	result, err := s.bridge.Transfer(ctx, bridge.TransferRequest{
		FromChain: order.Quote.SourceChain,
		Asset:     corridor.SettlementAsset,
		Amount:    s.settlementAmount(order),
		Recipient: order.Sender.Address,
	})
	if err != nil {
		return err
	}
	order.BridgeTxID = result.BridgeTxID
	order.SettlementTxHash = result.SettlementTxHash
	return s.store.Update(order)
}

func (s *Service) runPayout(ctx context.Context, order *domain.Order) error {
	anchorRail, err := s.directory.ResolveAnchor(order.Quote.DestCountry, order.Quote.DestCurrency)
	if err != nil {
		return err
	}

	payoutID, err := s.payouts.Payout(ctx, anchorRail, anchor.WithdrawRequest{
		AssetCode: corridor.SettlementAsset,
		Amount:    s.settlementAmount(order),
		Type:      string(order.Recipient.Details.Kind()),
		Dest:      order.Recipient.Details.Fields(),
		Account:   order.Sender.Address,
	})
	if err != nil {
		return err
	}
	order.PayoutTxID = payoutID
	return s.store.Update(order)
}

// settlementAmount derives the settlement-asset amount moving through the
// bridge and payout legs from the immutable quote.
func (s *Service) settlementAmount(order *domain.Order) decimal.Decimal {
	if order.Quote.ExchangeRate.IsZero() {
		return decimal.Zero
	}
	return order.Quote.DestAmount.Div(order.Quote.ExchangeRate).Round(6)
}

func (s *Service) completeOrder(ctx context.Context, order *domain.Order) {
	now := time.Now().UTC()
	order.CompletedAt = &now
	if err := s.setStatus(order, domain.OrderStatusCompleted, ""); err != nil {
		s.logger.Error("Failed to finalize order", map[string]interface{}{
			"order_id": order.ID,
			"error":    err.Error(),
		})
		return
	}

	s.metrics.OrderCompleted(order.Quote.SourceToken, order.Quote.SourceAmount, now.Sub(order.CreatedAt))
	s.notifier.Notify(ctx, notification.Event{
		Type:    notification.EventOrderCompleted,
		OrderID: order.ID,
		Detail: map[string]interface{}{
			"dest_amount":   order.Quote.DestAmount.String(),
			"dest_currency": order.Quote.DestCurrency,
			"payout_tx_id":  order.PayoutTxID,
		},
	})
}

// failOrder finalizes the order, emits lifecycle events, and plans recovery.
// Non-retryable failures route to the refund path; retryable ones get a
// scheduled resume of the failed stage.
func (s *Service) failOrder(ctx context.Context, order *domain.Order, derr *recovery.DeliveryError) {
	if err := s.setStatus(order, domain.OrderStatusFailed, derr.UserMessage); err != nil {
		s.logger.Error("Failed to finalize order", map[string]interface{}{
			"order_id": order.ID,
			"error":    err.Error(),
		})
	}
	s.metrics.OrderFailed(string(derr.Kind))

	s.notifier.Notify(ctx, notification.Event{
		Type:        notification.EventDeliveryError,
		OrderID:     order.ID,
		UserMessage: derr.UserMessage,
		Detail: map[string]interface{}{
			"error_kind":   derr.Kind,
			"failed_stage": order.FailedStage,
			"retryable":    derr.Retryable,
		},
	})

	scheduled := s.scheduler.Schedule(order.ID, derr,
		func(retryCtx context.Context) error { return s.resume(retryCtx, order.ID) },
		func(lastErr *recovery.DeliveryError) {
			s.notifier.Notify(context.Background(), notification.Event{
				Type:        notification.EventManualReviewRequired,
				OrderID:     order.ID,
				UserMessage: lastErr.UserMessage,
				Detail:      map[string]interface{}{"error_kind": lastErr.Kind},
			})
		},
	)

	if !scheduled {
		s.notifier.Notify(ctx, notification.Event{
			Type:        notification.EventRefundRequired,
			OrderID:     order.ID,
			UserMessage: derr.UserMessage,
			Detail:      map[string]interface{}{"error_kind": derr.Kind},
		})
		return
	}

	s.metrics.OrderRetried()
	s.notifier.Notify(ctx, notification.Event{
		Type:        notification.EventRetryScheduled,
		OrderID:     order.ID,
		UserMessage: derr.UserMessage,
		Detail: map[string]interface{}{
			"error_kind":   derr.Kind,
			"failed_stage": order.FailedStage,
		},
	})
}

// resume re-enters the pipeline at the recorded failed stage. This is the
// only path that leaves the failed state.
func (s *Service) resume(ctx context.Context, orderID string) error {
	order, err := s.store.Get(orderID)
	if err != nil {
		return err
	}
	if order.Status != domain.OrderStatusFailed || order.FailedStage == domain.StageNone {
		return nil
	}

	if err := s.setStatus(order, domain.OrderStatusProcessing, ""); err != nil {
		return err
	}

	if err := s.runStages(ctx, order, order.FailedStage); err != nil {
		derr := recovery.Classify(err)
		if stErr := s.setStatus(order, domain.OrderStatusFailed, derr.UserMessage); stErr != nil {
			s.logger.Error("Failed to record retry failure", map[string]interface{}{
				"order_id": order.ID,
				"error":    stErr.Error(),
			})
		}
		s.metrics.OrderFailed(string(derr.Kind))
		return derr
	}

	s.completeOrder(ctx, order)
	return nil
}

// setStatus enforces the lifecycle transition rules and persists the order.
func (s *Service) setStatus(order *domain.Order, to domain.OrderStatus, reason string) error {
	if !domain.CanTransition(order.Status, to) {
		return errors.Wrap(errors.ErrOrderFinalized,
			fmt.Sprintf("cannot transition order %s from %s to %s", order.ID, order.Status, to))
	}
	order.Status = to
	order.StatusReason = reason
	return s.store.Update(order)
}

func (s *Service) snapshot(order *domain.Order) *domain.Order {
	copied := *order
	return &copied
}

func newOrderID() string {
	return fmt.Sprintf("RMT-%d-%s", time.Now().UnixMilli(), uuid.New().String()[:8])
}

package orchestrator

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

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

// --- Mocks ---

type MockSwapQuoter struct {
	mock.Mock
}

func (m *MockSwapQuoter) GetQuote(ctx context.Context, req aggregator.QuoteRequest) (*aggregator.QuoteResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*aggregator.QuoteResponse), args.Error(1)
}

func (m *MockSwapQuoter) BuildSwapTx(ctx context.Context, req aggregator.QuoteRequest) (*aggregator.SwapTx, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*aggregator.SwapTx), args.Error(1)
}

type MockBridger struct {
	mock.Mock
}

func (m *MockBridger) Transfer(ctx context.Context, req bridge.TransferRequest) (*bridge.TransferResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*bridge.TransferResult), args.Error(1)
}

type MockPayoutGateway struct {
	mock.Mock
}

func (m *MockPayoutGateway) Payout(ctx context.Context, a *corridor.Anchor, req anchor.WithdrawRequest) (string, error) {
	args := m.Called(ctx, a, req)
	return args.String(0), args.Error(1)
}

// eventRecorder collects lifecycle events in delivery order.
type eventRecorder struct {
	events []notification.Event
}

func (r *eventRecorder) Handle(ctx context.Context, event notification.Event) {
	r.events = append(r.events, event)
}

func (r *eventRecorder) types() []notification.EventType {
	out := make([]notification.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

// --- Fixtures ---

const (
	usdcEthereum = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	senderAddr   = "0x1111111111111111111111111111111111111111"
)

type fixture struct {
	svc       *Service
	swaps     *MockSwapQuoter
	bridge    *MockBridger
	payouts   *MockPayoutGateway
	store     *MemoryStore
	scheduler *recovery.Scheduler
	recorder  *eventRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	swaps := new(MockSwapQuoter)
	bridger := new(MockBridger)
	payouts := new(MockPayoutGateway)
	store := NewMemoryStore()
	scheduler := recovery.NewScheduler(logger.NewNop())
	recorder := &eventRecorder{}

	notifier := notification.NewService(logger.NewNop())
	notifier.Subscribe(recorder)

	svc := NewService(
		corridor.NewDirectory(),
		corridor.NewRegistry(),
		swaps,
		bridger,
		payouts,
		store,
		scheduler,
		notifier,
		NewMetrics(),
		1.0,
		logger.NewNop(),
	)

	return &fixture{
		svc:       svc,
		swaps:     swaps,
		bridge:    bridger,
		payouts:   payouts,
		store:     store,
		scheduler: scheduler,
		recorder:  recorder,
	}
}

func phQuoteRequest() QuoteRequest {
	return QuoteRequest{
		SourceChain:      domain.ChainEthereum,
		SourceToken:      usdcEthereum,
		SourceAmount:     decimal.NewFromInt(100),
		DestCountry:      "PH",
		DestCurrency:     domain.PHP,
		DeliveryMethodID: "ph_gcash",
	}
}

func phRecipient() domain.Recipient {
	return domain.Recipient{
		Name:     "Maria Santos",
		Country:  "PH",
		Currency: domain.PHP,
		Details: domain.MobileMoneyDetails{
			Provider:    "gcash",
			PhoneNumber: "09171234567",
			AccountName: "Maria Santos",
		},
	}
}

func phSender() domain.Sender {
	return domain.Sender{Address: senderAddr, Chain: domain.ChainEthereum}
}

func (f *fixture) stubSwapQuote(dstAmount string) {
	amount, _ := decimal.NewFromString(dstAmount)
	f.swaps.On("GetQuote", mock.Anything, mock.Anything).
		Return(&aggregator.QuoteResponse{DstAmount: amount}, nil)
}

func (f *fixture) stubHappySwapAndBridge() {
	f.swaps.On("BuildSwapTx", mock.Anything, mock.Anything).
		Return(&aggregator.SwapTx{To: usdcEthereum, Gas: 250000}, nil)
	f.bridge.On("Transfer", mock.Anything, mock.Anything).
		Return(&bridge.TransferResult{BridgeTxID: "brg-1", SettlementTxHash: "0xdeadbeef"}, nil)
}

// --- GetQuote ---

func TestGetQuote_PhilippinesGCashScenario(t *testing.T) {
	f := newFixture(t)
	f.stubSwapQuote("100") // 100 USDC swaps to 100 USDC at par

	quote, err := f.svc.GetQuote(context.Background(), phQuoteRequest())

	assert.NoError(t, err)
	// 100 * 56.50 * (1 - 0.009) = 5599.15
	assert.Equal(t, "5599.15", quote.DestAmount.String())
	assert.Equal(t, "56.5", quote.ExchangeRate.String())
	assert.Equal(t, "0.9", quote.TotalFeePercent.String())
	assert.Equal(t, "PesoRail", quote.AnchorName)
	assert.Equal(t, "ph_gcash", quote.DeliveryMethodID)
}

func TestGetQuote_RouteInvariants(t *testing.T) {
	f := newFixture(t)
	f.stubSwapQuote("99.80")

	quote, err := f.svc.GetQuote(context.Background(), phQuoteRequest())

	assert.NoError(t, err)
	assert.Len(t, quote.Route, 3)
	assert.Equal(t, domain.StepSwap, quote.Route[0].Kind)
	assert.Equal(t, domain.StepBridge, quote.Route[1].Kind)
	assert.Equal(t, domain.StepPayout, quote.Route[2].Kind)

	feeSum := decimal.Zero
	minutes := 0
	for _, step := range quote.Route {
		feeSum = feeSum.Add(step.Fee)
		minutes += step.EstimatedMinutes
	}
	assert.True(t, feeSum.Mul(decimal.NewFromInt(100)).Equal(quote.TotalFeePercent))
	assert.Equal(t, minutes, quote.EstimatedMinutes)
}

func TestGetQuote_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.stubSwapQuote("99.80")

	first, err := f.svc.GetQuote(context.Background(), phQuoteRequest())
	assert.NoError(t, err)
	second, err := f.svc.GetQuote(context.Background(), phQuoteRequest())
	assert.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestGetQuote_UnknownCorridor(t *testing.T) {
	f := newFixture(t)

	req := phQuoteRequest()
	req.DestCountry = "BR"
	req.DestCurrency = domain.Currency("BRL")
	req.DeliveryMethodID = ""

	_, err := f.svc.GetQuote(context.Background(), req)

	assert.ErrorIs(t, err, errors.ErrNoAnchorAvailable)
	f.swaps.AssertNotCalled(t, "GetQuote", mock.Anything, mock.Anything)
}

func TestGetQuote_UnsupportedChain(t *testing.T) {
	f := newFixture(t)

	req := phQuoteRequest()
	req.SourceChain = domain.Chain("solana")

	_, err := f.svc.GetQuote(context.Background(), req)

	assert.ErrorIs(t, err, errors.ErrUnsupportedChain)
}

func TestGetQuote_MethodCorridorMismatch(t *testing.T) {
	f := newFixture(t)

	req := phQuoteRequest()
	req.DeliveryMethodID = "mx_spei"

	_, err := f.svc.GetQuote(context.Background(), req)

	assert.ErrorIs(t, err, errors.ErrInvalidDeliveryMethod)
}

func TestGetQuote_DefaultsToFastestMethod(t *testing.T) {
	f := newFixture(t)
	f.stubSwapQuote("100")

	req := phQuoteRequest()
	req.DeliveryMethodID = ""

	quote, err := f.svc.GetQuote(context.Background(), req)

	assert.NoError(t, err)
	assert.Equal(t, "ph_gcash", quote.DeliveryMethodID)
}

// --- ExecuteRemittance ---

func executableQuote(t *testing.T, f *fixture) domain.Quote {
	t.Helper()
	f.stubSwapQuote("100")
	quote, err := f.svc.GetQuote(context.Background(), phQuoteRequest())
	assert.NoError(t, err)
	return *quote
}

func TestExecuteRemittance_Completes(t *testing.T) {
	f := newFixture(t)
	quote := executableQuote(t, f)
	f.stubHappySwapAndBridge()
	f.payouts.On("Payout", mock.Anything, mock.Anything, mock.Anything).
		Return("payout-1", nil)

	order, err := f.svc.ExecuteRemittance(context.Background(), quote, phSender(), phRecipient())

	assert.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, order.Status)
	assert.Equal(t, "brg-1", order.BridgeTxID)
	assert.Equal(t, "0xdeadbeef", order.SettlementTxHash)
	assert.Equal(t, "payout-1", order.PayoutTxID)
	assert.NotNil(t, order.CompletedAt)
	assert.Contains(t, order.ID, "RMT-")

	stored, err := f.svc.Order(order.ID)
	assert.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, stored.Status)

	assert.Equal(t, []notification.EventType{notification.EventOrderCompleted}, f.recorder.types())
}

func TestExecuteRemittance_AnchorUnreachable(t *testing.T) {
	f := newFixture(t)
	quote := executableQuote(t, f)
	f.stubHappySwapAndBridge()
	f.payouts.On("Payout", mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.NewCoded("ECONNREFUSED", "anchor unreachable"))

	order, err := f.svc.ExecuteRemittance(context.Background(), quote, phSender(), phRecipient())

	derr, ok := err.(*recovery.DeliveryError)
	assert.True(t, ok)
	assert.Equal(t, recovery.KindAnchorUnavailable, derr.Kind)
	assert.Equal(t, "The payout provider is temporarily unavailable. Your transfer will be retried.", derr.UserMessage)

	assert.Equal(t, domain.OrderStatusFailed, order.Status)
	assert.Equal(t, domain.StagePayout, order.FailedStage)
	assert.Equal(t, derr.UserMessage, order.StatusReason)

	// A retry is pending for the order; raw error text never reaches the caller.
	assert.True(t, f.scheduler.Pending(order.ID))
	assert.NotContains(t, order.StatusReason, "unreachable")

	assert.Equal(t, []notification.EventType{
		notification.EventDeliveryError,
		notification.EventRetryScheduled,
	}, f.recorder.types())
}

func TestExecuteRemittance_NonRetryableTriggersRefund(t *testing.T) {
	f := newFixture(t)
	quote := executableQuote(t, f)
	f.stubHappySwapAndBridge()
	f.payouts.On("Payout", mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.NewCoded("NEEDS_INFO", "KYC required for recipient"))

	order, err := f.svc.ExecuteRemittance(context.Background(), quote, phSender(), phRecipient())

	derr, ok := err.(*recovery.DeliveryError)
	assert.True(t, ok)
	assert.Equal(t, recovery.KindKycRequired, derr.Kind)
	assert.Equal(t, domain.OrderStatusFailed, order.Status)
	assert.False(t, f.scheduler.Pending(order.ID))

	assert.Equal(t, []notification.EventType{
		notification.EventDeliveryError,
		notification.EventRefundRequired,
	}, f.recorder.types())
}

func TestExecuteRemittance_AlwaysTerminal(t *testing.T) {
	f := newFixture(t)
	quote := executableQuote(t, f)

	f.swaps.On("BuildSwapTx", mock.Anything, mock.Anything).
		Return(nil, errors.NewCoded("ESERVER", "aggregator returned status 502"))

	order, err := f.svc.ExecuteRemittance(context.Background(), quote, phSender(), phRecipient())

	assert.Error(t, err)
	assert.True(t, order.Status.Terminal())
	assert.Equal(t, domain.StageSwap, order.FailedStage)

	stored, getErr := f.svc.Order(order.ID)
	assert.NoError(t, getErr)
	assert.True(t, stored.Status.Terminal())
}

func TestExecuteRemittance_RejectsInvalidRecipientFields(t *testing.T) {
	f := newFixture(t)
	quote := executableQuote(t, f)

	recipient := phRecipient()
	recipient.Details = domain.MobileMoneyDetails{
		Provider:    "gcash",
		PhoneNumber: "12345", // not a valid GCash number
		AccountName: "Maria Santos",
	}

	_, err := f.svc.ExecuteRemittance(context.Background(), quote, phSender(), recipient)

	assert.ErrorIs(t, err, errors.ErrInvalidRecipientFields)
	assert.Empty(t, f.svc.OrdersBySender(senderAddr))
}

func TestExecuteRemittance_RejectsMismatchedDetailKind(t *testing.T) {
	f := newFixture(t)
	quote := executableQuote(t, f)

	recipient := phRecipient()
	recipient.Details = domain.BankDetails{
		BankCode:      "BDO",
		AccountNumber: "1234567890",
		AccountName:   "Maria Santos",
	}

	_, err := f.svc.ExecuteRemittance(context.Background(), quote, phSender(), recipient)

	assert.ErrorIs(t, err, errors.ErrInvalidDeliveryMethod)
}

// --- Retry resume ---

func TestResume_ReplaysOnlyFailedStage(t *testing.T) {
	f := newFixture(t)
	quote := executableQuote(t, f)
	f.stubHappySwapAndBridge()

	f.payouts.On("Payout", mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.NewCoded("ECONNREFUSED", "anchor unreachable")).Once()
	f.payouts.On("Payout", mock.Anything, mock.Anything, mock.Anything).
		Return("payout-2", nil).Once()

	order, err := f.svc.ExecuteRemittance(context.Background(), quote, phSender(), phRecipient())
	assert.Error(t, err)
	assert.Equal(t, domain.OrderStatusFailed, order.Status)

	err = f.svc.resume(context.Background(), order.ID)
	assert.NoError(t, err)

	resumed, err := f.svc.Order(order.ID)
	assert.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, resumed.Status)
	assert.Equal(t, "payout-2", resumed.PayoutTxID)

	// The settled bridge transfer and swap were not re-run.
	f.bridge.AssertNumberOfCalls(t, "Transfer", 1)
	f.swaps.AssertNumberOfCalls(t, "BuildSwapTx", 1)
}

func TestResume_NoopForCompletedOrder(t *testing.T) {
	f := newFixture(t)
	quote := executableQuote(t, f)
	f.stubHappySwapAndBridge()
	f.payouts.On("Payout", mock.Anything, mock.Anything, mock.Anything).
		Return("payout-1", nil)

	order, err := f.svc.ExecuteRemittance(context.Background(), quote, phSender(), phRecipient())
	assert.NoError(t, err)

	assert.NoError(t, f.svc.resume(context.Background(), order.ID))
	f.payouts.AssertNumberOfCalls(t, "Payout", 1)
}

// --- Metrics ---

func TestMetrics_TrackCompletionAndFailure(t *testing.T) {
	f := newFixture(t)
	quote := executableQuote(t, f)
	f.stubHappySwapAndBridge()
	f.payouts.On("Payout", mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.NewCoded("NEEDS_INFO", "KYC required")).Once()
	f.payouts.On("Payout", mock.Anything, mock.Anything, mock.Anything).
		Return("payout-1", nil).Once()

	_, _ = f.svc.ExecuteRemittance(context.Background(), quote, phSender(), phRecipient())
	_, err := f.svc.ExecuteRemittance(context.Background(), quote, phSender(), phRecipient())
	assert.NoError(t, err)

	snapshot := f.svc.MetricsSnapshot()
	assert.Equal(t, int64(2), snapshot.TotalOrders)
	assert.Equal(t, int64(1), snapshot.CompletedOrders)
	assert.Equal(t, int64(1), snapshot.FailedOrders)
	assert.Equal(t, int64(1), snapshot.FailuresByKind[string(recovery.KindKycRequired)])
	assert.True(t, snapshot.VolumeBySourceToken[usdcEthereum].Equal(decimal.NewFromInt(100)))
}

package orchestrator

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Metrics aggregates in-memory counters over executed orders.
type Metrics struct {
	mu sync.Mutex

	totalOrders     int64
	completedOrders int64
	failedOrders    int64
	retriedOrders   int64

	failuresByKind      map[string]int64
	volumeBySourceToken map[string]decimal.Decimal
	totalCompletionTime time.Duration
}

// MetricsSnapshot is a point-in-time copy safe to read without locking.
type MetricsSnapshot struct {
	TotalOrders         int64                      `json:"total_orders"`
	CompletedOrders     int64                      `json:"completed_orders"`
	FailedOrders        int64                      `json:"failed_orders"`
	RetriedOrders       int64                      `json:"retried_orders"`
	FailuresByKind      map[string]int64           `json:"failures_by_kind"`
	VolumeBySourceToken map[string]decimal.Decimal `json:"volume_by_source_token"`
	AvgCompletionTime   time.Duration              `json:"avg_completion_time"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		failuresByKind:      make(map[string]int64),
		volumeBySourceToken: make(map[string]decimal.Decimal),
	}
}

func (m *Metrics) OrderStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalOrders++
}

func (m *Metrics) OrderCompleted(sourceToken string, sourceAmount decimal.Decimal, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completedOrders++
	m.totalCompletionTime += elapsed
	m.volumeBySourceToken[sourceToken] = m.volumeBySourceToken[sourceToken].Add(sourceAmount)
}

func (m *Metrics) OrderFailed(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failedOrders++
	m.failuresByKind[kind]++
}

func (m *Metrics) OrderRetried() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retriedOrders++
}

// Snapshot copies the current aggregates.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	failures := make(map[string]int64, len(m.failuresByKind))
	for kind, n := range m.failuresByKind {
		failures[kind] = n
	}
	volume := make(map[string]decimal.Decimal, len(m.volumeBySourceToken))
	for token, amount := range m.volumeBySourceToken {
		volume[token] = amount
	}

	var avg time.Duration
	if m.completedOrders > 0 {
		avg = m.totalCompletionTime / time.Duration(m.completedOrders)
	}

	return MetricsSnapshot{
		TotalOrders:         m.totalOrders,
		CompletedOrders:     m.completedOrders,
		FailedOrders:        m.failedOrders,
		RetriedOrders:       m.retriedOrders,
		FailuresByKind:      failures,
		VolumeBySourceToken: volume,
		AvgCompletionTime:   avg,
	}
}

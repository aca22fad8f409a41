package service

import (
	"sync"
	"time"

	"commit-reveal-voting/election"
	"commit-reveal-voting/models"
)

// MetricsCollector tracks accepted and rejected submissions per transaction
// kind, with processing times.
type MetricsCollector struct {
	mu         sync.RWMutex
	operations map[models.TxKind]*operation
	rejections map[election.Kind]int
	failures   int
}

type operation struct {
	startTime time.Time
	endTime   time.Time
	accepted  int
	rejected  int
	totalTime time.Duration
}

// OperationMetrics contains timing information for one transaction kind
type OperationMetrics struct {
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Accepted       int       `json:"accepted"`
	Rejected       int       `json:"rejected"`
	ProcessingTime int64     `json:"processing_time_ms"`
}

// MetricsResponse is a snapshot of all metrics. Rejections are keyed by
// rejection kind; Failures counts errors that carried no kind.
type MetricsResponse struct {
	Operations map[models.TxKind]OperationMetrics `json:"operations"`
	Rejections map[election.Kind]int              `json:"rejections"`
	Failures   int                                `json:"failures"`
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		operations: make(map[models.TxKind]*operation),
		rejections: make(map[election.Kind]int),
	}
}

// Record adds one processed submission of kind. A nil err counts as accepted.
func (mc *MetricsCollector) Record(kind models.TxKind, duration time.Duration, err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	op, ok := mc.operations[kind]
	if !ok {
		op = &operation{startTime: time.Now()}
		mc.operations[kind] = op
	}
	op.endTime = time.Now()
	op.totalTime += duration

	if err == nil {
		op.accepted++
		return
	}
	op.rejected++
	if k := election.KindOf(err); k != "" {
		mc.rejections[k]++
	} else {
		mc.failures++
	}
}

// GetMetrics returns current metrics for all operations
func (mc *MetricsCollector) GetMetrics() MetricsResponse {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	resp := MetricsResponse{
		Operations: make(map[models.TxKind]OperationMetrics, len(mc.operations)),
		Rejections: make(map[election.Kind]int, len(mc.rejections)),
		Failures:   mc.failures,
	}
	for kind, op := range mc.operations {
		resp.Operations[kind] = OperationMetrics{
			StartTime:      op.startTime,
			EndTime:        op.endTime,
			Accepted:       op.accepted,
			Rejected:       op.rejected,
			ProcessingTime: op.totalTime.Milliseconds(),
		}
	}
	for kind, n := range mc.rejections {
		resp.Rejections[kind] = n
	}
	return resp
}

// Reset clears all metrics
func (mc *MetricsCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.operations = make(map[models.TxKind]*operation)
	mc.rejections = make(map[election.Kind]int)
	mc.failures = 0
}

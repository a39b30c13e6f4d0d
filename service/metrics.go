package service

import (
	"sync"
	"time"
)

// MetricsCollector tracks relay intake and broadcast counters
type MetricsCollector struct {
	mu sync.RWMutex

	firstSubmission time.Time
	lastSubmission  time.Time
	acceptedCount   int
	rejected        map[string]int
	verifyTotalTime time.Duration
	verifyCount     int

	broadcastCount     int
	broadcastFailures  int
	broadcastTotalTime time.Duration
}

// OperationMetrics contains timing information for an operation
type OperationMetrics struct {
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Count          int       `json:"count"`
	ProcessingTime int64     `json:"processing_time_ms"`
}

// MetricsResponse provides the metrics for all operations
type MetricsResponse struct {
	Intake    OperationMetrics `json:"intake"`
	Rejected  map[string]int   `json:"rejected"`
	Verify    OperationMetrics `json:"verify"`
	Broadcast OperationMetrics `json:"broadcast"`
	Failures  int              `json:"broadcast_failures"`
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{rejected: make(map[string]int)}
}

// RecordVerify adds the duration of one signature recovery
func (mc *MetricsCollector) RecordVerify(duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.verifyCount++
	mc.verifyTotalTime += duration
}

// RecordAccepted marks a submission as accepted at t
func (mc *MetricsCollector) RecordAccepted(t time.Time) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.acceptedCount == 0 {
		mc.firstSubmission = t
	}
	mc.lastSubmission = t
	mc.acceptedCount++
}

// RecordRejected counts a rejected submission under reason
func (mc *MetricsCollector) RecordRejected(reason string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.rejected[reason]++
}

// RecordBroadcast records one broadcast attempt
func (mc *MetricsCollector) RecordBroadcast(duration time.Duration, err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if err != nil {
		mc.broadcastFailures++
		return
	}
	mc.broadcastCount++
	mc.broadcastTotalTime += duration
}

// GetMetrics returns current metrics for all operations
func (mc *MetricsCollector) GetMetrics() MetricsResponse {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	rejected := make(map[string]int, len(mc.rejected))
	for k, v := range mc.rejected {
		rejected[k] = v
	}

	return MetricsResponse{
		Intake: OperationMetrics{
			StartTime: mc.firstSubmission,
			EndTime:   mc.lastSubmission,
			Count:     mc.acceptedCount,
		},
		Rejected: rejected,
		Verify: OperationMetrics{
			Count:          mc.verifyCount,
			ProcessingTime: mc.verifyTotalTime.Milliseconds(),
		},
		Broadcast: OperationMetrics{
			Count:          mc.broadcastCount,
			ProcessingTime: mc.broadcastTotalTime.Milliseconds(),
		},
		Failures: mc.broadcastFailures,
	}
}

// Reset clears all metrics
func (mc *MetricsCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.firstSubmission = time.Time{}
	mc.lastSubmission = time.Time{}
	mc.acceptedCount = 0
	mc.rejected = make(map[string]int)
	mc.verifyTotalTime = 0
	mc.verifyCount = 0
	mc.broadcastCount = 0
	mc.broadcastFailures = 0
	mc.broadcastTotalTime = 0
}

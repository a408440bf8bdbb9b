package monitor

import (
	"sync"
	"time"

	"github.com/nicktill/starcast/pkg/config"
)

// FetchMonitor tracks the health of upstream fetches (GitHub, PyPI, pepy).
type FetchMonitor struct {
	mu                sync.RWMutex
	lastSuccess       time.Time
	lastAttempt       time.Time
	consecutiveErrors int
	lastError         string
	total             uint64
	failed            uint64
}

// RecordSuccess records a completed upstream fetch.
func (fm *FetchMonitor) RecordSuccess() {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	now := time.Now()
	fm.lastSuccess = now
	fm.lastAttempt = now
	fm.consecutiveErrors = 0
	fm.lastError = ""
	fm.total++
}

// RecordFailure records a failed upstream fetch.
func (fm *FetchMonitor) RecordFailure(err error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	fm.lastAttempt = time.Now()
	fm.consecutiveErrors++
	fm.total++
	fm.failed++
	if err != nil {
		fm.lastError = err.Error()
	}
}

// IsHealthy returns true if upstream fetches are working.
// Unhealthy conditions:
//   - More than MaxConsecutiveErrors failures in a row
//   - The last attempt failed and nothing succeeded within FetchStaleAfter
//
// A server that has not fetched anything yet is healthy.
func (fm *FetchMonitor) IsHealthy() bool {
	fm.mu.RLock()
	defer fm.mu.RUnlock()
	return fm.healthyLocked()
}

func (fm *FetchMonitor) healthyLocked() bool {
	if fm.consecutiveErrors > config.MaxConsecutiveErrors {
		return false
	}
	if fm.consecutiveErrors > 0 && time.Since(fm.lastSuccess) > config.FetchStaleAfter {
		return false
	}
	return true
}

// FetchStatus is the upstream part of the health response.
type FetchStatus struct {
	Healthy           bool   `json:"healthy"`
	Requests          uint64 `json:"requests"`
	Failures          uint64 `json:"failures"`
	LastSuccess       string `json:"last_success,omitempty"`
	TimeSinceSuccess  string `json:"time_since_success,omitempty"`
	LastAttempt       string `json:"last_attempt,omitempty"`
	ConsecutiveErrors int    `json:"consecutive_errors,omitempty"`
	LastError         string `json:"last_error,omitempty"`
}

// Status returns current fetch status for health checks.
func (fm *FetchMonitor) Status() FetchStatus {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	status := FetchStatus{
		Healthy:  fm.healthyLocked(),
		Requests: fm.total,
		Failures: fm.failed,
	}

	if !fm.lastSuccess.IsZero() {
		status.LastSuccess = fm.lastSuccess.Format(time.RFC3339)
		status.TimeSinceSuccess = time.Since(fm.lastSuccess).Round(time.Second).String()
	}
	if !fm.lastAttempt.IsZero() {
		status.LastAttempt = fm.lastAttempt.Format(time.RFC3339)
	}
	if fm.consecutiveErrors > 0 {
		status.ConsecutiveErrors = fm.consecutiveErrors
		status.LastError = fm.lastError
	}

	return status
}

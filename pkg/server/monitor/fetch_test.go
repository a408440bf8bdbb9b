package monitor

import (
	"errors"
	"testing"
	"time"
)

func TestFetchMonitor_RecordSuccess(t *testing.T) {
	fm := &FetchMonitor{}
	fm.RecordFailure(errors.New("boom"))
	fm.RecordSuccess()

	status := fm.Status()
	if !status.Healthy {
		t.Error("Status should be healthy after success")
	}
	if status.ConsecutiveErrors != 0 {
		t.Errorf("ConsecutiveErrors = %d, want 0", status.ConsecutiveErrors)
	}
	if status.LastError != "" {
		t.Errorf("LastError = %q, want empty", status.LastError)
	}
	if status.Requests != 2 || status.Failures != 1 {
		t.Errorf("Requests/Failures = %d/%d, want 2/1", status.Requests, status.Failures)
	}
}

func TestFetchMonitor_RecordFailure(t *testing.T) {
	fm := &FetchMonitor{}
	fm.RecordFailure(errors.New("github: status 502"))

	status := fm.Status()
	if status.ConsecutiveErrors != 1 {
		t.Errorf("ConsecutiveErrors = %d, want 1", status.ConsecutiveErrors)
	}
	if status.LastError != "github: status 502" {
		t.Errorf("LastError = %q, want %q", status.LastError, "github: status 502")
	}
}

func TestFetchMonitor_IsHealthy(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*FetchMonitor)
		expected bool
	}{
		{
			name:     "no fetches yet",
			setup:    func(*FetchMonitor) {},
			expected: true,
		},
		{
			name: "recent success",
			setup: func(fm *FetchMonitor) {
				fm.RecordSuccess()
			},
			expected: true,
		},
		{
			name: "failing since a stale success",
			setup: func(fm *FetchMonitor) {
				fm.RecordSuccess()
				fm.RecordFailure(errors.New("timeout"))
				fm.mu.Lock()
				fm.lastSuccess = time.Now().Add(-2 * time.Hour)
				fm.mu.Unlock()
			},
			expected: false,
		},
		{
			name: "stale success without failures",
			setup: func(fm *FetchMonitor) {
				fm.RecordSuccess()
				fm.mu.Lock()
				fm.lastSuccess = time.Now().Add(-2 * time.Hour)
				fm.mu.Unlock()
			},
			expected: true,
		},
		{
			name: "too many consecutive errors",
			setup: func(fm *FetchMonitor) {
				fm.RecordSuccess()
				fm.RecordFailure(errors.New("error 1"))
				fm.RecordFailure(errors.New("error 2"))
				fm.RecordFailure(errors.New("error 3"))
				fm.RecordFailure(errors.New("error 4"))
			},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fm := &FetchMonitor{}
			tt.setup(fm)
			if got := fm.IsHealthy(); got != tt.expected {
				t.Errorf("IsHealthy() = %v, want %v", got, tt.expected)
			}
		})
	}
}

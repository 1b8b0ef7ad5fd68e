// Package health tracks service liveness and event processing progress.
//
// The Monitor is fed every ProcessResult from the worker pool and is read by
// the HTTP /health endpoint.
package health

import (
	"sync"
	"time"

	"civicnotify/internal/complaint"
)

// Status represents the service health status.
//
// Fields:
//   - Status: "healthy", or "degraded" when the last event failed
//   - Uptime: How long the service has been running
//   - LastEventTime: When the last event finished processing
//   - LastEventStatus: "success" or the last error
//   - Processed/Failed: Event counters since start
//   - Outcomes: Role outcomes seen since start
type Status struct {
	Status          string         `json:"status"`
	Uptime          string         `json:"uptime"`
	LastEventTime   string         `json:"last_event_time,omitempty"`
	LastEventStatus string         `json:"last_event_status"`
	Processed       int            `json:"processed"`
	Failed          int            `json:"failed"`
	Outcomes        map[string]int `json:"outcomes"`
}

// Monitor tracks service health metrics.
//
// Thread-safety:
//   - All fields are protected by RWMutex
type Monitor struct {
	mu              sync.RWMutex
	startTime       time.Time
	lastEventTime   time.Time
	lastEventStatus string
	processed       int
	failed          int
	outcomes        map[complaint.Outcome]int
	now             func() time.Time
}

// NewMonitor creates a new health monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		startTime:       time.Now(),
		lastEventStatus: "no events yet",
		outcomes:        make(map[complaint.Outcome]int),
		now:             time.Now,
	}
}

// Record folds one processing result into the metrics.
func (m *Monitor) Record(res complaint.ProcessResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastEventTime = m.now()
	m.processed++
	if res.Error != nil {
		m.failed++
		m.lastEventStatus = "error: " + res.Error.Error()
	} else {
		m.lastEventStatus = "success"
	}
	for _, o := range res.Outcomes {
		m.outcomes[o]++
	}
}

// GetStatus returns the current health status.
func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Status{
		Status:          "healthy",
		Uptime:          m.now().Sub(m.startTime).Round(time.Second).String(),
		LastEventStatus: m.lastEventStatus,
		Processed:       m.processed,
		Failed:          m.failed,
		Outcomes:        make(map[string]int, len(m.outcomes)),
	}
	if !m.lastEventTime.IsZero() {
		st.LastEventTime = m.lastEventTime.Format("2006-01-02 15:04:05")
	}
	if m.processed > 0 && m.lastEventStatus != "success" {
		st.Status = "degraded"
	}
	for o, n := range m.outcomes {
		st.Outcomes[string(o)] = n
	}
	return st
}

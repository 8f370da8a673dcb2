package health

import (
	"sync"
	"time"
)

// Stats accumulates running request statistics for one target.
type Stats struct {
	mu            sync.Mutex
	total         int64
	success       int64
	failed        int64
	totalLatency  time.Duration
	lastError     string
	lastErrorTime time.Time
	lastSuccess   time.Time
	start         time.Time
	now           func() time.Time
}

// NewStats starts the uptime clock
func NewStats() *Stats {
	return &Stats{start: time.Now(), now: time.Now}
}

// Observe records one request outcome
func (s *Stats) Observe(latency time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.totalLatency += latency
	if err != nil {
		s.failed++
		s.lastError = err.Error()
		s.lastErrorTime = s.now()
		return
	}
	s.success++
	s.lastSuccess = s.now()
}

// Snapshot is a point-in-time copy of Stats
type Snapshot struct {
	Total          int64         `json:"total_requests"`
	Success        int64         `json:"successful_requests"`
	Failed         int64         `json:"failed_requests"`
	SuccessRate    float64       `json:"success_rate"`
	AverageLatency time.Duration `json:"average_latency"`
	LastError      string        `json:"last_error,omitempty"`
	LastErrorTime  time.Time     `json:"last_error_time,omitempty"`
	LastSuccess    time.Time     `json:"last_success,omitempty"`
	Uptime         time.Duration `json:"uptime"`
}

// Snapshot copies the current counters
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Total:         s.total,
		Success:       s.success,
		Failed:        s.failed,
		LastError:     s.lastError,
		LastErrorTime: s.lastErrorTime,
		LastSuccess:   s.lastSuccess,
		Uptime:        s.now().Sub(s.start),
	}
	if s.total > 0 {
		snap.SuccessRate = float64(s.success) / float64(s.total) * 100
		snap.AverageLatency = s.totalLatency / time.Duration(s.total)
	}
	return snap
}

// Healthy reports whether the most recent outcome was a success, or nothing failed yet
func (s Snapshot) Healthy() bool {
	if s.Failed == 0 {
		return true
	}
	return s.LastSuccess.After(s.LastErrorTime)
}

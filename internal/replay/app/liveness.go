package app

import (
	"sync/atomic"
	"time"
)

// Liveness consumer heartbeat read by the health endpoint
type Liveness struct {
	staleAfter  time.Duration
	lastPoll    atomic.Int64
	busySince   atomic.Int64
	jobsHandled atomic.Int64
	strategy    atomic.Value
}

// LivenessReport snapshot of Liveness
type LivenessReport struct {
	Healthy     bool      `json:"healthy"`
	Busy        bool      `json:"busy"`
	LastPoll    time.Time `json:"lastPoll"`
	JobsHandled int64     `json:"jobsHandled"`
	Recovery    string    `json:"recovery"`
}

// NewLiveness a consumer is stale when it neither polled within staleAfter nor is handling a job
func NewLiveness(blockTimeout time.Duration) *Liveness {
	if blockTimeout <= 0 {
		blockTimeout = 5 * time.Second
	}
	return &Liveness{staleAfter: 3*blockTimeout + 30*time.Second}
}

func (l *Liveness) polled() { l.lastPoll.Store(time.Now().UnixNano()) }

func (l *Liveness) begin() { l.busySince.Store(time.Now().UnixNano()) }

func (l *Liveness) end() {
	l.busySince.Store(0)
	l.jobsHandled.Add(1)
	l.polled()
}

func (l *Liveness) setStrategy(name string) { l.strategy.Store(name) }

// Report current state
func (l *Liveness) Report() LivenessReport {
	r := LivenessReport{
		Busy:        l.busySince.Load() != 0,
		JobsHandled: l.jobsHandled.Load(),
	}
	if s, ok := l.strategy.Load().(string); ok {
		r.Recovery = s
	}
	if last := l.lastPoll.Load(); last != 0 {
		r.LastPoll = time.Unix(0, last)
		r.Healthy = r.Busy || time.Since(r.LastPoll) <= l.staleAfter
	}
	return r
}

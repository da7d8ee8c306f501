package worker

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"
)

// ErrWorkerOverloaded signals that a worker's backend rejected a dispatch
// because it was overloaded; DispatchLimiter treats this as a backoff signal
// the same way the model-client rate limiter treats a provider 429.
var ErrWorkerOverloaded = errors.New("worker: overloaded")

// DispatchLimiter is an adaptive token-bucket limiter placed in front of
// worker dispatch, preventing a queue burst from exceeding a worker's
// configured memorySize/timeout budget (spec.md §9 "adaptive rate limiting").
// It is an AIMD limiter per worker id: each dispatch failure attributed to
// overload halves the effective dispatches-per-minute budget; each success
// nudges it back up toward the ceiling.
//
// This is a process-local limiter; unlike the teacher's model-client
// limiter it does not coordinate budget across a cluster via a Pulse
// replicated map, since SPEC_FULL.md scopes cross-process coordination to
// the remote dispatch transport (worker/remotequeue) rather than rate
// limiting itself (see DESIGN.md).
type DispatchLimiter struct {
	mu       sync.Mutex
	limiters map[string]*perWorkerLimiter
	initial  float64
	max      float64
}

type perWorkerLimiter struct {
	limiter    *rate.Limiter
	currentDPM float64
	minDPM     float64
	maxDPM     float64
	recovery   float64
}

// NewDispatchLimiter constructs a DispatchLimiter whose initial
// dispatches-per-minute budget applies to every worker id alike.
func NewDispatchLimiter(initialDPM, maxDPM float64) *DispatchLimiter {
	if initialDPM <= 0 {
		initialDPM = 600
	}
	if maxDPM <= 0 || maxDPM < initialDPM {
		maxDPM = initialDPM
	}
	return &DispatchLimiter{
		limiters: make(map[string]*perWorkerLimiter),
		initial:  initialDPM,
		max:      maxDPM,
	}
}

func newPerWorkerLimiter(initialDPM, maxDPM float64) *perWorkerLimiter {
	minDPM := initialDPM * 0.1
	if minDPM < 1 {
		minDPM = 1
	}
	recovery := initialDPM * 0.05
	if recovery < 1 {
		recovery = 1
	}
	return &perWorkerLimiter{
		limiter:    rate.NewLimiter(rate.Limit(initialDPM/60.0), int(initialDPM)),
		currentDPM: initialDPM,
		minDPM:     minDPM,
		maxDPM:     maxDPM,
		recovery:   recovery,
	}
}

// Wait blocks until the named worker's budget admits one dispatch.
func (d *DispatchLimiter) Wait(ctx context.Context, workerID string) error {
	return d.limiterFor(workerID).limiter.Wait(ctx)
}

// Observe adjusts the named worker's budget based on the dispatch outcome:
// nil backs off nothing and probes upward; ErrWorkerOverloaded halves the
// budget down to its floor.
func (d *DispatchLimiter) Observe(workerID string, err error) {
	l := d.limiterFor(workerID)
	if err == nil {
		l.probe()
		return
	}
	if errors.Is(err, ErrWorkerOverloaded) {
		l.backoff()
	}
}

func (d *DispatchLimiter) limiterFor(workerID string) *perWorkerLimiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.limiters[workerID]
	if !ok {
		l = newPerWorkerLimiter(d.initial, d.max)
		d.limiters[workerID] = l
	}
	return l
}

func (l *perWorkerLimiter) backoff() {
	next := l.currentDPM * 0.5
	if next < l.minDPM {
		next = l.minDPM
	}
	if next == l.currentDPM {
		return
	}
	l.currentDPM = next
	l.limiter.SetLimit(rate.Limit(next / 60.0))
	l.limiter.SetBurst(int(next))
}

func (l *perWorkerLimiter) probe() {
	next := l.currentDPM + l.recovery
	if next > l.maxDPM {
		next = l.maxDPM
	}
	if next == l.currentDPM {
		return
	}
	l.currentDPM = next
	l.limiter.SetLimit(rate.Limit(next / 60.0))
	l.limiter.SetBurst(int(next))
}

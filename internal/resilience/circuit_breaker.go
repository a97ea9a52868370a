package resilience

import (
	"context"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CircuitBreaker is an adaptive circuit breaker that opens based on the
// failure rate over a rolling window and supports half-open probes. It
// wraps internal/store's SaveShard/LoadShard badger transactions, so a
// flaky durable store degrades the host rather than stalling every caller
// behind a slow backend. name tags the open/closed transition counters so
// several breakers guarding different backends stay distinguishable in one
// process's telemetry instead of colliding under one anonymous counter.
type CircuitBreaker struct {
	mu sync.Mutex

	name              string
	minSamples        int
	failureRateOpen   float64
	halfOpenAfter     time.Duration
	maxHalfOpenProbes int
	adaptive          bool
	minAdaptiveOpen   float64
	maxAdaptiveOpen   float64
	lastEval          time.Time
	evalInterval      time.Duration
	dynamicThreshold  float64

	openedAt       time.Time
	state          breakerState
	window         *slidingWindow
	halfOpenProbes int
}

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// NewCircuitBreakerAdaptive constructs a breaker using a rolling window of
// the given size split into buckets. name identifies this breaker in the
// circuit_open/circuit_closed metrics.
func NewCircuitBreakerAdaptive(name string, windowSize time.Duration, buckets int, minSamples int, failureRateOpen float64, halfOpenAfter time.Duration, maxHalfOpenProbes int) *CircuitBreaker {
	if buckets <= 0 {
		buckets = 1
	}
	return &CircuitBreaker{
		name:              name,
		minSamples:        minSamples,
		failureRateOpen:   math.Min(math.Max(failureRateOpen, 0), 1),
		halfOpenAfter:     halfOpenAfter,
		maxHalfOpenProbes: maxHalfOpenProbes,
		state:             stateClosed,
		window:            newSlidingWindow(windowSize, buckets),
		adaptive:          true,
		minAdaptiveOpen:   math.Min(math.Max(failureRateOpen*0.5, 0.05), failureRateOpen),
		maxAdaptiveOpen:   math.Min(0.95, math.Max(failureRateOpen*1.5, failureRateOpen)),
		evalInterval:      5 * time.Second,
		dynamicThreshold:  failureRateOpen,
	}
}

// NewBadgerTransactionBreaker returns a breaker defaulted for badger's own
// latency profile rather than a generic RPC call: commits are fsync-bound
// and failures cluster in short bursts during LSM compaction stalls, which
// typically clear within one or two seconds. That shapes every constant
// below differently from a generic network-service breaker:
//   - a 10s window split into 1s buckets, fine enough to catch a stall
//     that starts and ends inside a single compaction cycle;
//   - a 40% failure threshold (lower than the 50% generic default) since a
//     compaction stall degrades a large fraction of concurrent writers at
//     once, so waiting for a bare majority to fail wastes time better
//     spent shedding load early;
//   - an 8-write minimum sample before evaluating, matched to badger's own
//     default MaxBatchCount so one batch's outcome doesn't alone flip the
//     breaker;
//   - a 2s half-open delay and 3 probes, long enough for a typical
//     compaction stall to clear but short enough not to leave the store
//     rejecting writes once the stall is over.
func NewBadgerTransactionBreaker() *CircuitBreaker {
	return NewCircuitBreakerAdaptive("badger_store", 10*time.Second, 10, 8, 0.4, 2*time.Second, 3)
}

// Allow returns whether a request is permitted right now.
func (c *CircuitBreaker) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case stateOpen:
		if time.Since(c.openedAt) >= c.halfOpenAfter {
			c.state = stateHalfOpen
			// This call is itself the first half-open probe.
			c.halfOpenProbes = 1
		} else {
			return false
		}
	case stateHalfOpen:
		if c.halfOpenProbes >= c.maxHalfOpenProbes {
			return false
		}
		c.halfOpenProbes++
	}
	return true
}

// RecordResult records a success or failure outcome.
func (c *CircuitBreaker) RecordResult(success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.window.add(success)

	if c.adaptive && time.Since(c.lastEval) >= c.evalInterval {
		total, failures := c.window.stats()
		if total > 0 {
			fr := float64(failures) / float64(total)
			if fr > c.failureRateOpen {
				c.dynamicThreshold = math.Max(c.minAdaptiveOpen, c.dynamicThreshold*0.7)
			} else {
				c.dynamicThreshold = math.Min(c.maxAdaptiveOpen, c.dynamicThreshold*1.05)
			}
		}
		c.lastEval = time.Now()
	}

	switch c.state {
	case stateClosed:
		total, failures := c.window.stats()
		if total >= c.minSamples {
			threshold := c.failureRateOpen
			if c.adaptive {
				threshold = c.dynamicThreshold
			}
			if float64(failures)/float64(total) >= threshold {
				c.transitionToOpen()
			}
		}
	case stateHalfOpen:
		if !success {
			c.transitionToOpen()
		} else if c.halfOpenProbes >= c.maxHalfOpenProbes {
			c.reset()
		}
	case stateOpen:
		// Allow handles timing.
	}
}

func (c *CircuitBreaker) transitionToOpen() {
	meter := otel.GetMeterProvider().Meter("omnisketch")
	c.state = stateOpen
	c.openedAt = time.Now()
	counter, _ := meter.Int64Counter("omnisketch_circuit_open_total")
	counter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("breaker", c.name)))
}

func (c *CircuitBreaker) reset() {
	meter := otel.GetMeterProvider().Meter("omnisketch")
	c.state = stateClosed
	c.openedAt = time.Time{}
	c.window.reset()
	counter, _ := meter.Int64Counter("omnisketch_circuit_closed_total")
	counter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("breaker", c.name)))
}

// slidingWindow implements fixed-size time buckets storing success/failure
// counts.
type slidingWindow struct {
	size     time.Duration
	buckets  int
	interval time.Duration
	data     []bucket
	nowFn    func() time.Time
}

type bucket struct {
	epoch         int64
	success, fail int
}

func newSlidingWindow(size time.Duration, buckets int) *slidingWindow {
	return &slidingWindow{
		size:     size,
		buckets:  buckets,
		interval: size / time.Duration(buckets),
		data:     make([]bucket, buckets),
		nowFn:    time.Now,
	}
}

func (w *slidingWindow) currentIndex(now time.Time) int {
	return int(now.UnixNano()/w.interval.Nanoseconds()) % w.buckets
}

func (w *slidingWindow) add(success bool) {
	now := w.nowFn()
	idx := w.currentIndex(now)
	// Reuse the slot's counts while it still belongs to the current
	// interval; clear it only once the window has wrapped around to it.
	epoch := now.UnixNano() / w.interval.Nanoseconds()
	if w.data[idx].epoch != epoch {
		w.data[idx] = bucket{epoch: epoch}
	}
	if success {
		w.data[idx].success++
	} else {
		w.data[idx].fail++
	}
}

func (w *slidingWindow) stats() (total int, failures int) {
	for _, b := range w.data {
		total += b.success + b.fail
		failures += b.fail
	}
	return
}

func (w *slidingWindow) reset() {
	for i := range w.data {
		w.data[i] = bucket{}
	}
}

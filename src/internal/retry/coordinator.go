// FILE: logship/src/internal/retry/coordinator.go
package retry

import (
	"sync"
	"time"

	"logship/src/internal/cache"
	"logship/src/internal/config"
	"logship/src/internal/core"
	"logship/src/internal/transport"

	"github.com/lixenwraith/log"
)

// Sender resends one cached envelope.
type Sender interface {
	Send(body []byte) transport.Outcome
}

// Stats describes the coordinator's current state.
type Stats struct {
	Enabled         bool  `json:"enabled"`
	Running         bool  `json:"running"`
	CurrentInterval int64 `json:"current_interval"`
	MaxInterval     int64 `json:"max_interval"`
	Failures        int   `json:"failures"`
	AsyncMode       bool  `json:"async_mode"`
}

// Coordinator periodically drains the cache store in the background. The
// wake interval doubles (capped) after any cycle with a failure and resets
// to the initial interval after a fully successful cycle.
type Coordinator struct {
	store  *cache.Store
	sender Sender
	logger *log.Logger

	initialInterval time.Duration
	maxInterval     time.Duration
	batchSize       int
	asyncFlush      bool
	drainShares     bool

	mu       sync.Mutex
	interval time.Duration
	failures int
	running  bool
	done     chan struct{}
	wg       sync.WaitGroup
}

// New creates a coordinator. Start must be called to begin automatic
// cycles.
func New(store *cache.Store, sender Sender, cfg config.RetryConfig, logger *log.Logger) *Coordinator {
	return &Coordinator{
		store:           store,
		sender:          sender,
		logger:          logger,
		initialInterval: time.Duration(cfg.IntervalSeconds) * time.Second,
		maxInterval:     time.Duration(cfg.MaxIntervalSeconds) * time.Second,
		batchSize:       int(cfg.BatchSize),
		asyncFlush:      cfg.Async,
		drainShares:     cfg.DrainSharesState,
		interval:        time.Duration(cfg.IntervalSeconds) * time.Second,
	}
}

// Start launches the background loop. No-op when already running.
func (c *Coordinator) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return
	}
	c.running = true
	c.done = make(chan struct{})

	c.wg.Add(1)
	go c.loop(c.done)

	c.logger.Info("msg", "Retry coordinator started",
		"component", "retry",
		"interval", c.initialInterval.String(),
		"max_interval", c.maxInterval.String(),
		"async", c.asyncFlush)
}

// Stop signals the loop to exit and waits for it, including any in-flight
// flush, to terminate. Idempotent.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.done)
	c.mu.Unlock()

	c.wg.Wait()
	c.logger.Info("msg", "Retry coordinator stopped", "component", "retry")
}

// loop sleeps the current interval, runs one flush cycle, and repeats
// until stopped. The sleep is interruptible so Stop returns promptly.
func (c *Coordinator) loop(done chan struct{}) {
	defer c.wg.Done()

	for {
		timer := time.NewTimer(c.currentInterval())
		select {
		case <-done:
			timer.Stop()
			return
		case <-timer.C:
		}

		if c.store.Count() == 0 {
			c.adjust(0)
			continue
		}

		if c.asyncFlush {
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				c.flush(c.batchSize, true)
			}()
		} else {
			c.flush(c.batchSize, true)
		}
	}
}

// Drain synchronously reruns the flush logic over the whole cache,
// regardless of whether the background loop is running. Whether it also
// updates the adaptive interval is configurable.
func (c *Coordinator) Drain() core.DrainResult {
	return c.flush(0, c.drainShares)
}

// flush attempts every entry in one scan snapshot, up to limit entries
// (0 = unlimited). Each success removes its entry; failures are left in
// place for the next cycle. The cycle never short-circuits on failure.
func (c *Coordinator) flush(limit int, adjust bool) core.DrainResult {
	var result core.DrainResult

	for entry := range c.store.Scan() {
		if limit > 0 && result.Total >= limit {
			break
		}
		result.Total++

		if c.sender.Send(entry.Payload) == transport.OutcomeSuccess {
			c.store.Remove(entry.ID)
			result.Sent++
		} else {
			result.Failed++
		}
	}

	if adjust {
		c.adjust(result.Failed)
	}

	if result.Total > 0 {
		c.logger.Info("msg", "Flush cycle finished",
			"component", "retry",
			"sent", result.Sent,
			"failed", result.Failed,
			"total", result.Total)
	}

	return result
}

// adjust applies the adaptive interval policy after a cycle: any failure
// doubles the interval up to the cap, a clean cycle (empty cache included)
// resets it.
func (c *Coordinator) adjust(failed int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if failed > 0 {
		c.failures++
		c.interval = min(c.interval*2, c.maxInterval)
		c.logger.Warn("msg", "Flush cycle had failures, backing off",
			"component", "retry",
			"consecutive_failures", c.failures,
			"next_interval", c.interval.String())
		return
	}

	c.interval = c.initialInterval
	c.failures = 0
}

func (c *Coordinator) currentInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

// GetStats returns the coordinator's retry state.
func (c *Coordinator) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Enabled:         true,
		Running:         c.running,
		CurrentInterval: int64(c.interval / time.Second),
		MaxInterval:     int64(c.maxInterval / time.Second),
		Failures:        c.failures,
		AsyncMode:       c.asyncFlush,
	}
}

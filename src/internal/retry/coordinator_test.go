// FILE: logship/src/internal/retry/coordinator_test.go
package retry

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"logship/src/internal/cache"
	"logship/src/internal/config"
	"logship/src/internal/transport"

	"github.com/lixenwraith/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *log.Logger {
	return log.NewLogger()
}

// stubSender classifies each resend through a caller-provided function.
type stubSender struct {
	outcome func(body []byte) transport.Outcome
	calls   atomic.Int64
}

func (s *stubSender) Send(body []byte) transport.Outcome {
	s.calls.Add(1)
	return s.outcome(body)
}

func alwaysSucceed(_ []byte) transport.Outcome { return transport.OutcomeSuccess }
func alwaysFail(_ []byte) transport.Outcome    { return transport.OutcomeRetryable }

func testRetryConfig() config.RetryConfig {
	return config.RetryConfig{
		Enabled:            true,
		IntervalSeconds:    60,
		MaxIntervalSeconds: 3600,
		Async:              false,
		BatchSize:          50,
		DrainSharesState:   true,
	}
}

func newTestStore(t *testing.T) *cache.Store {
	t.Helper()
	s, err := cache.Open(t.TempDir(), 1<<20, newTestLogger())
	require.NoError(t, err)
	return s
}

func enqueueEvents(t *testing.T, store *cache.Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := store.Enqueue([]byte(fmt.Sprintf(`{"type":"activity","seq":%d}`, i)))
		require.NoError(t, err)
	}
}

func TestFlush_AdaptiveInterval(t *testing.T) {
	store := newTestStore(t)
	sender := &stubSender{outcome: alwaysFail}
	c := New(store, sender, testRetryConfig(), newTestLogger())

	enqueueEvents(t, store, 1)

	// Two failing cycles double the interval each time
	c.flush(0, true)
	assert.EqualValues(t, 120, c.GetStats().CurrentInterval)
	assert.Equal(t, 1, c.GetStats().Failures)

	c.flush(0, true)
	assert.EqualValues(t, 240, c.GetStats().CurrentInterval)
	assert.Equal(t, 2, c.GetStats().Failures)

	// A fully successful cycle resets the interval
	sender.outcome = alwaysSucceed
	c.flush(0, true)
	assert.EqualValues(t, 60, c.GetStats().CurrentInterval)
	assert.Zero(t, c.GetStats().Failures)
}

func TestFlush_IntervalCappedAtMax(t *testing.T) {
	store := newTestStore(t)
	cfg := testRetryConfig()
	cfg.IntervalSeconds = 60
	cfg.MaxIntervalSeconds = 200
	c := New(store, &stubSender{outcome: alwaysFail}, cfg, newTestLogger())

	enqueueEvents(t, store, 1)

	for i := 0; i < 5; i++ {
		c.flush(0, true)
	}
	assert.EqualValues(t, 200, c.GetStats().CurrentInterval)
}

func TestFlush_EmptyCacheResetsInterval(t *testing.T) {
	store := newTestStore(t)
	sender := &stubSender{outcome: alwaysFail}
	c := New(store, sender, testRetryConfig(), newTestLogger())

	enqueueEvents(t, store, 1)
	c.flush(0, true)
	require.EqualValues(t, 120, c.GetStats().CurrentInterval)

	store.Clear()
	c.flush(0, true)
	assert.EqualValues(t, 60, c.GetStats().CurrentInterval, "a cycle over an empty cache counts as clean")
	assert.Zero(t, c.GetStats().Failures)
}

func TestFlush_NoShortCircuitOnFailure(t *testing.T) {
	store := newTestStore(t)

	// Fail only the second event; every entry must still be attempted
	sender := &stubSender{outcome: func(body []byte) transport.Outcome {
		var ev struct {
			Seq int `json:"seq"`
		}
		if err := json.Unmarshal(body, &ev); err == nil && ev.Seq == 1 {
			return transport.OutcomeRetryable
		}
		return transport.OutcomeSuccess
	}}
	c := New(store, sender, testRetryConfig(), newTestLogger())

	enqueueEvents(t, store, 3)
	result := c.flush(0, true)

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, 1, result.Failed)
	assert.EqualValues(t, 3, sender.calls.Load())
	assert.Equal(t, 1, store.Count(), "only the failed entry remains")
}

func TestFlush_BatchLimit(t *testing.T) {
	store := newTestStore(t)
	sender := &stubSender{outcome: alwaysSucceed}
	c := New(store, sender, testRetryConfig(), newTestLogger())

	enqueueEvents(t, store, 5)

	result := c.flush(2, true)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 3, store.Count())
}

func TestDrain(t *testing.T) {
	t.Run("AllSucceed", func(t *testing.T) {
		store := newTestStore(t)
		sender := &stubSender{outcome: alwaysSucceed}
		c := New(store, sender, testRetryConfig(), newTestLogger())

		enqueueEvents(t, store, 5)

		result := c.Drain()
		assert.Equal(t, 5, result.Sent)
		assert.Equal(t, 0, result.Failed)
		assert.Equal(t, 5, result.Total)
		assert.Zero(t, store.Count())
	})

	t.Run("IgnoresBatchLimit", func(t *testing.T) {
		store := newTestStore(t)
		cfg := testRetryConfig()
		cfg.BatchSize = 2
		c := New(store, &stubSender{outcome: alwaysSucceed}, cfg, newTestLogger())

		enqueueEvents(t, store, 5)

		result := c.Drain()
		assert.Equal(t, 5, result.Total, "manual drain processes the whole cache")
	})

	t.Run("SharedStateConfigurable", func(t *testing.T) {
		store := newTestStore(t)
		cfg := testRetryConfig()
		cfg.DrainSharesState = false
		c := New(store, &stubSender{outcome: alwaysFail}, cfg, newTestLogger())

		enqueueEvents(t, store, 1)

		c.Drain()
		assert.EqualValues(t, 60, c.GetStats().CurrentInterval,
			"stateless drain must not touch the adaptive interval")
	})

	t.Run("WorksWhileStopped", func(t *testing.T) {
		store := newTestStore(t)
		c := New(store, &stubSender{outcome: alwaysSucceed}, testRetryConfig(), newTestLogger())

		enqueueEvents(t, store, 2)

		require.False(t, c.GetStats().Running)
		result := c.Drain()
		assert.Equal(t, 2, result.Sent)
	})
}

func TestStartStop(t *testing.T) {
	store := newTestStore(t)
	c := New(store, &stubSender{outcome: alwaysSucceed}, testRetryConfig(), newTestLogger())

	c.Start()
	assert.True(t, c.GetStats().Running)

	// Second Start is a no-op, not an error
	c.Start()
	assert.True(t, c.GetStats().Running)

	// Stop interrupts the 60s sleep promptly
	done := make(chan struct{})
	go func() {
		c.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return; background loop leaked")
	}
	assert.False(t, c.GetStats().Running)

	// Stop when already stopped is a no-op
	c.Stop()
}

func TestBackgroundCycleDeliversCachedEvents(t *testing.T) {
	store := newTestStore(t)
	sender := &stubSender{outcome: alwaysSucceed}
	cfg := testRetryConfig()
	cfg.IntervalSeconds = 1
	c := New(store, sender, cfg, newTestLogger())

	enqueueEvents(t, store, 3)

	c.Start()
	defer c.Stop()

	require.Eventually(t, func() bool {
		return store.Count() == 0
	}, 5*time.Second, 50*time.Millisecond, "background loop should drain the cache")
}

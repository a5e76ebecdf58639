// FILE: logship/src/internal/client/client.go
package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"logship/src/internal/cache"
	"logship/src/internal/config"
	"logship/src/internal/core"
	"logship/src/internal/payload"
	"logship/src/internal/retry"
	"logship/src/internal/transport"

	"github.com/lixenwraith/log"
	"golang.org/x/time/rate"
)

// CacheStats is the upward-facing view of the disk cache.
type CacheStats struct {
	Enabled      bool    `json:"enabled"`
	Count        int     `json:"count"`
	SizeMB       float64 `json:"size_mb"`
	MaxSizeMB    float64 `json:"max_size_mb"`
	UsagePercent float64 `json:"usage_percent"`
	CacheDir     string  `json:"cache_dir"`
}

// Client delivers structured events to the collection endpoint. Failed
// deliveries land in the disk cache, which the retry coordinator drains in
// the background.
type Client struct {
	cfg         *config.Config
	logger      *log.Logger
	sender      *transport.Sender
	store       *cache.Store       // nil when the cache is disabled or unavailable
	coordinator *retry.Coordinator // nil when automatic retry is off
	limiter     *rate.Limiter      // nil when rate limiting is off

	wg      sync.WaitGroup // in-flight asynchronous sends
	closeMu sync.RWMutex   // orders send registration against Close
	closed  atomic.Bool
}

// New builds a client from a resolved configuration. A cache directory
// that cannot be opened degrades the client to cache-less operation,
// surfaced through CacheStats().Enabled, never as a construction failure.
func New(cfg *config.Config, logger *log.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:    cfg,
		logger: logger,
		sender: transport.New(cfg, logger),
	}

	if cfg.Cache.Enabled {
		maxBytes := int64(cfg.Cache.MaxSizeMB * 1024 * 1024)
		store, err := cache.Open(cfg.Cache.Directory, maxBytes, logger)
		if err != nil {
			logger.Error("msg", "Cache unavailable, failed events will be lost",
				"component", "client",
				"directory", cfg.Cache.Directory,
				"error", err)
		} else {
			c.store = store
		}
	}

	if cfg.Retry.Enabled && c.store != nil {
		c.coordinator = retry.New(c.store, c.sender, cfg.Retry, logger)
		c.coordinator.Start()
	}

	if cfg.Dispatch.Rate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.Dispatch.Rate), int(cfg.Dispatch.Burst))
	}

	logger.Info("msg", "Client initialized",
		"component", "client",
		"url", cfg.URL,
		"async_mode", cfg.Dispatch.AsyncMode,
		"cache_enabled", c.store != nil,
		"auto_retry", c.coordinator != nil)

	return c, nil
}

// SendLog delivers one event stamped with the current time. In synchronous
// dispatch mode it blocks until delivery resolves and returns the result;
// in asynchronous mode it returns immediately and failures surface only
// through the cache and stats.
func (c *Client) SendLog(eventType, category, subcategory, level string, data any) error {
	return c.SendLogAt(eventType, category, subcategory, level, data, nil)
}

// SendLogAt is SendLog with an explicit timestamp: a time.Time, epoch
// seconds, a pre-formatted string, or nil for the current time.
func (c *Client) SendLogAt(eventType, category, subcategory, level string, data any, timestamp any) error {
	if c.closed.Load() {
		return fmt.Errorf("client is closed")
	}

	event, err := payload.Build(eventType, category, subcategory, level, data, timestamp)
	if err != nil {
		return err
	}
	body, err := payload.Encode(event)
	if err != nil {
		return err
	}

	if c.cfg.Dispatch.AsyncMode {
		if !c.track() {
			return fmt.Errorf("client is closed")
		}
		go func() {
			defer c.wg.Done()
			c.deliver(body)
		}()
		return nil
	}

	return c.deliver(body)
}

// track registers one in-flight send. Returns false once Close has begun,
// so no send can slip in between Close's closed flip and its WaitGroup
// wait.
func (c *Client) track() bool {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()

	if c.closed.Load() {
		return false
	}
	c.wg.Add(1)
	return true
}

// deliver runs one transport send and routes any failure into the cache.
func (c *Client) deliver(body []byte) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(context.Background()); err != nil {
			return err
		}
	}

	outcome := c.sender.Send(body)
	if outcome == transport.OutcomeSuccess {
		return nil
	}

	// Permanent failures are cached too; the remote condition may change
	if c.store != nil {
		if _, err := c.store.Enqueue(body); err != nil {
			c.logger.Warn("msg", "Failed event not cached",
				"component", "client",
				"reason", err)
		}
	}

	return fmt.Errorf("delivery failed: %s", outcome)
}

// RetryCachedLogs synchronously resends everything in the cache and
// reports the result.
func (c *Client) RetryCachedLogs() core.DrainResult {
	if c.store == nil {
		c.logger.Info("msg", "Cache is disabled, nothing to retry", "component", "client")
		return core.DrainResult{}
	}

	if c.coordinator != nil {
		return c.coordinator.Drain()
	}

	// No coordinator configured; drain with a one-off stateless pass
	retryCfg := c.cfg.Retry
	retryCfg.DrainSharesState = false
	drain := retry.New(c.store, c.sender, retryCfg, c.logger)
	return drain.Drain()
}

// GetCacheStats returns the cache occupancy view.
func (c *Client) GetCacheStats() CacheStats {
	if c.store == nil {
		return CacheStats{Enabled: false}
	}

	s := c.store.GetStats()
	return CacheStats{
		Enabled:      true,
		Count:        s.Count,
		SizeMB:       float64(s.SizeBytes) / 1024 / 1024,
		MaxSizeMB:    float64(s.MaxSizeBytes) / 1024 / 1024,
		UsagePercent: s.UsagePercent,
		CacheDir:     s.Directory,
	}
}

// GetRetryStats returns the coordinator's retry state.
func (c *Client) GetRetryStats() retry.Stats {
	if c.coordinator == nil {
		return retry.Stats{Enabled: false}
	}
	return c.coordinator.GetStats()
}

// ClearCache removes every cached event and returns how many were deleted.
func (c *Client) ClearCache() int {
	if c.store == nil {
		return 0
	}
	return c.store.Clear()
}

// Close stops the retry coordinator and waits for in-flight asynchronous
// sends to settle. Safe to call more than once.
func (c *Client) Close() {
	c.closeMu.Lock()
	swapped := c.closed.CompareAndSwap(false, true)
	c.closeMu.Unlock()
	if !swapped {
		return
	}

	if c.coordinator != nil {
		c.coordinator.Stop()
	}
	c.wg.Wait()

	c.logger.Info("msg", "Client closed", "component", "client")
}

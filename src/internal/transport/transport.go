// FILE: logship/src/internal/transport/transport.go
package transport

import (
	"crypto/tls"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"logship/src/internal/config"
	"logship/src/internal/version"

	"github.com/lixenwraith/log"
	"github.com/valyala/fasthttp"
)

// Outcome classifies one logical delivery attempt sequence.
type Outcome int

const (
	// OutcomeSuccess means the endpoint acknowledged the event with a 2xx.
	OutcomeSuccess Outcome = iota

	// OutcomeRetryable means every attempt failed with a condition worth
	// retrying later (connection/timeout error or 429/5xx).
	OutcomeRetryable

	// OutcomePermanent means the endpoint rejected the event outright
	// (non-2xx outside the retryable set).
	OutcomePermanent
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable_failure"
	case OutcomePermanent:
		return "permanent_failure"
	default:
		return "unknown"
	}
}

// Sender performs one logical delivery of an event envelope: up to
// max_retries+1 POSTs with exponential backoff between attempts. Delivery
// failures are ordinary return values, never errors.
type Sender struct {
	client        *fasthttp.Client
	logger        *log.Logger
	url           string
	authorization string
	userAgent     string
	timeout       time.Duration
	maxRetries    int64
	backoffFactor float64

	// Statistics
	totalSent      atomic.Uint64
	totalRetryable atomic.Uint64
	totalPermanent atomic.Uint64

	// Replaceable for tests
	sleep func(time.Duration)
}

// New creates a sender for the configured endpoint.
func New(cfg *config.Config, logger *log.Logger) *Sender {
	s := &Sender{
		client: &fasthttp.Client{
			MaxConnsPerHost:               10,
			MaxIdleConnDuration:           10 * time.Second,
			ReadTimeout:                   time.Duration(cfg.TimeoutSeconds) * time.Second,
			WriteTimeout:                  time.Duration(cfg.TimeoutSeconds) * time.Second,
			DisableHeaderNamesNormalizing: true,
		},
		logger:        logger,
		url:           cfg.URL,
		authorization: "Bearer " + cfg.APIKey,
		userAgent:     fmt.Sprintf("logship/%s", version.Short()),
		timeout:       time.Duration(cfg.TimeoutSeconds) * time.Second,
		maxRetries:    cfg.MaxRetries,
		backoffFactor: cfg.BackoffFactor,
		sleep:         time.Sleep,
	}

	if strings.HasPrefix(cfg.URL, "https://") && cfg.InsecureSkipVerify {
		s.client.TLSConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	return s
}

// Send delivers one event envelope. Attempts are numbered from 1; after a
// retryable attempt k with attempts remaining, the calling goroutine sleeps
// backoff_factor * 2^(k-1) seconds. A permanent rejection returns
// immediately without consuming remaining attempts.
func (s *Sender) Send(body []byte) Outcome {
	attempts := s.maxRetries + 1

	for attempt := int64(1); attempt <= attempts; attempt++ {
		if attempt > 1 {
			s.sleep(s.backoffDelay(attempt - 1))
		}

		statusCode, err := s.post(body)

		if err != nil {
			s.logger.Warn("msg", "HTTP request failed",
				"component", "transport",
				"attempt", attempt,
				"max_attempts", attempts,
				"error", err)
			continue
		}

		if statusCode >= 200 && statusCode < 300 {
			s.totalSent.Add(1)
			s.logger.Debug("msg", "Event delivered",
				"component", "transport",
				"status_code", statusCode,
				"attempt", attempt)
			return OutcomeSuccess
		}

		if !retryableStatus(statusCode) {
			s.totalPermanent.Add(1)
			s.logger.Error("msg", "Event rejected by server",
				"component", "transport",
				"status_code", statusCode,
				"attempt", attempt)
			return OutcomePermanent
		}

		s.logger.Warn("msg", "Server returned retryable status",
			"component", "transport",
			"attempt", attempt,
			"max_attempts", attempts,
			"status_code", statusCode)
	}

	s.totalRetryable.Add(1)
	s.logger.Warn("msg", "Delivery failed after all attempts",
		"component", "transport",
		"attempts", attempts)
	return OutcomeRetryable
}

// post performs a single POST attempt bounded by the request timeout.
func (s *Sender) post(body []byte) (int, error) {
	// Acquire resources per attempt, release immediately after use
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()

	req.SetRequestURI(s.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Authorization", s.authorization)
	req.Header.Set("User-Agent", s.userAgent)
	req.SetBody(body)

	err := s.client.DoTimeout(req, resp, s.timeout)
	statusCode := resp.StatusCode()

	fasthttp.ReleaseRequest(req)
	fasthttp.ReleaseResponse(resp)

	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	return statusCode, nil
}

// backoffDelay returns the sleep before the attempt following failed
// attempt k (1-based): backoff_factor * 2^(k-1) seconds.
func (s *Sender) backoffDelay(k int64) time.Duration {
	seconds := s.backoffFactor * math.Pow(2, float64(k-1))
	return time.Duration(seconds * float64(time.Second))
}

func retryableStatus(code int) bool {
	switch code {
	case fasthttp.StatusTooManyRequests,
		fasthttp.StatusInternalServerError,
		fasthttp.StatusBadGateway,
		fasthttp.StatusServiceUnavailable,
		fasthttp.StatusGatewayTimeout:
		return true
	}
	return false
}

// Stats returns delivery counters since the sender was created.
func (s *Sender) Stats() map[string]any {
	return map[string]any{
		"delivered":          s.totalSent.Load(),
		"retryable_failures": s.totalRetryable.Load(),
		"permanent_failures": s.totalPermanent.Load(),
	}
}

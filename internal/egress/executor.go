package egress

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"frameworks/crowsnest/pkg/logging"
)

// Policy is the retry behavior for upstream calls, kept as plain data so
// callers can tune it per source.
type Policy struct {
	// MaxAttempts is the total number of tries per request, first call
	// included.
	MaxAttempts int

	// BackoffMin and BackoffMax bound the uniform random sleep between
	// attempts.
	BackoffMin time.Duration
	BackoffMax time.Duration

	// Timeout bounds each individual attempt.
	Timeout time.Duration
}

// DefaultPolicy returns the standard upstream retry behavior.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BackoffMin:  5 * time.Second,
		BackoffMax:  15 * time.Second,
		Timeout:     30 * time.Second,
	}
}

func normalizePolicy(p Policy) Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 3
	}
	if p.BackoffMin <= 0 {
		p.BackoffMin = 5 * time.Second
	}
	if p.BackoffMax <= 0 {
		p.BackoffMax = 15 * time.Second
	}
	if p.BackoffMax < p.BackoffMin {
		p.BackoffMax = p.BackoffMin
	}
	if p.Timeout <= 0 {
		p.Timeout = 30 * time.Second
	}
	return p
}

// Request describes one upstream call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("egress: %s returned status %d", e.URL, e.Code)
}

// RetriesExhaustedError is the terminal failure once every attempt on a
// request has been spent. Cause holds the last attempt's failure.
type RetriesExhaustedError struct {
	Attempts int
	Cause    error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("egress: retries exhausted after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Cause }

// Executor performs upstream calls with identity rotation and randomized
// backoff between attempts. Each call's retry loop is independent, so one
// caller sleeping through a backoff never blocks another.
type Executor struct {
	rotator *Rotator
	policy  Policy
	exec    failsafe.Executor[*http.Response]
	logger  logging.Logger
	metrics *Metrics

	mu      sync.RWMutex
	clients map[string]*http.Client
}

// NewExecutor builds an executor over the rotator's identity pool.
//
//nolint:bodyclose // false positive: [*http.Response] is a generic type parameter, not an actual response
func NewExecutor(rotator *Rotator, policy Policy, logger logging.Logger, metrics *Metrics) *Executor {
	policy = normalizePolicy(policy)

	retry := retrypolicy.NewBuilder[*http.Response]().
		WithRandomDelay(policy.BackoffMin, policy.BackoffMax).
		WithMaxRetries(policy.MaxAttempts - 1).
		HandleIf(func(_ *http.Response, err error) bool {
			return isRetryable(err)
		}).
		ReturnLastFailure().
		Build()

	return &Executor{
		rotator: rotator,
		policy:  policy,
		exec:    failsafe.With(retry),
		logger:  logger,
		metrics: metrics,
		clients: make(map[string]*http.Client),
	}
}

// Get performs a GET against the given URL.
func (e *Executor) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	return e.Do(ctx, Request{Method: http.MethodGet, URL: rawURL})
}

// Do performs the request, rotating identities across attempts. The caller
// owns the response body on success. A request whose final attempt still
// failed retryably surfaces as *RetriesExhaustedError.
func (e *Executor) Do(ctx context.Context, req Request) (*http.Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	attempts := 0
	resp, err := e.exec.WithContext(ctx).Get(func() (*http.Response, error) {
		attempts++
		return e.attempt(ctx, req)
	})
	if err != nil {
		if isRetryable(err) {
			e.logger.WithFields(logging.Fields{
				"url":      req.URL,
				"attempts": attempts,
				"error":    err,
			}).Warn("Upstream request failed, retries exhausted")
			return nil, &RetriesExhaustedError{Attempts: attempts, Cause: err}
		}
		return nil, err
	}
	return resp, nil
}

func (e *Executor) attempt(ctx context.Context, req Request) (*http.Response, error) {
	identity := e.rotator.Acquire()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("egress: build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if identity.UserAgent != "" {
		httpReq.Header.Set("User-Agent", identity.UserAgent)
	}
	if identity.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+identity.Token)
	}

	client, err := e.clientFor(identity)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.rotator.ReportFailure(identity)
		e.metrics.observeAttempt("transport_error", time.Since(start))
		e.logger.WithFields(logging.Fields{
			"url":      req.URL,
			"identity": identity.Name,
			"error":    err,
		}).Warn("Upstream request failed, rotating identity")
		return nil, fmt.Errorf("egress: %s %s: %w", req.Method, req.URL, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		e.rotator.ReportSuccess(identity)
		e.metrics.observeAttempt("success", time.Since(start))
		return resp, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		drain(resp)
		e.rotator.ReportFailure(identity)
		e.metrics.observeAttempt("rate_limited", time.Since(start))
		e.logger.WithFields(logging.Fields{
			"url":      req.URL,
			"identity": identity.Name,
		}).Warn("Upstream rate limited, rotating identity")
		return nil, &StatusError{Code: resp.StatusCode, URL: req.URL}
	case resp.StatusCode >= 500:
		drain(resp)
		e.metrics.observeAttempt("upstream_error", time.Since(start))
		return nil, &StatusError{Code: resp.StatusCode, URL: req.URL}
	default:
		drain(resp)
		e.metrics.observeAttempt("rejected", time.Since(start))
		return nil, &StatusError{Code: resp.StatusCode, URL: req.URL}
	}
}

// clientFor returns the identity's HTTP client, building it on first use so
// proxy-bound transports are reused across attempts.
func (e *Executor) clientFor(id Identity) (*http.Client, error) {
	e.mu.RLock()
	client, ok := e.clients[id.Name]
	e.mu.RUnlock()
	if ok {
		return client, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if client, ok := e.clients[id.Name]; ok {
		return client, nil
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if id.ProxyURL != "" {
		proxyURL, err := url.Parse(id.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("egress: identity %s has invalid proxy url: %w", id.Name, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	client = &http.Client{Timeout: e.policy.Timeout, Transport: transport}
	e.clients[id.Name] = client
	return client, nil
}

// isRetryable classifies an attempt failure. Rate limiting, upstream 5xx,
// and transport errors burn a retry; everything else, context cancellation
// included, is terminal.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == http.StatusTooManyRequests || statusErr.Code >= 500
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// drain discards the body so the connection can be reused by later attempts.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()
}

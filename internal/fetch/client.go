package fetch

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

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/apisync/internal/config"
	"github.com/xxxsen/apisync/internal/metrics"
	appErr "github.com/xxxsen/apisync/internal/pkg/errors"
)

type Items = []map[string]interface{}

// Client downloads job sources. Each remote host gets its own circuit breaker
// so one dead endpoint does not hold up jobs pointing elsewhere.
type Client struct {
	httpClient *http.Client
	cfg        config.FetchConfig

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[Items]
}

func New(cfg config.FetchConfig) *Client {
	return NewWithHTTPClient(cfg, &http.Client{})
}

func NewWithHTTPClient(cfg config.FetchConfig, httpClient *http.Client) *Client {
	return &Client{
		httpClient: httpClient,
		cfg:        cfg,
		breakers:   make(map[string]*gobreaker.CircuitBreaker[Items]),
	}
}

// FetchList GETs rawURL and decodes a JSON array. Numbers are kept as
// json.Number; array elements that are not objects become empty items.
func (c *Client) FetchList(ctx context.Context, rawURL string) (Items, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, appErr.ErrFetchFailed)
	}
	cb := c.breaker(u.Host)
	items, err := cb.Execute(func() (Items, error) {
		return c.fetch(ctx, rawURL)
	})
	if err != nil {
		result := "failure"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			result = "rejected"
		}
		metrics.FetchRequests.WithLabelValues(result).Inc()
		if errors.Is(err, appErr.ErrFetchFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w: %v", rawURL, appErr.ErrFetchFailed, err)
	}
	metrics.FetchRequests.WithLabelValues("success").Inc()
	return items, nil
}

func (c *Client) fetch(ctx context.Context, rawURL string) (Items, error) {
	timeout := time.Duration(c.cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%s: unexpected status %d: %w", rawURL, resp.StatusCode, appErr.ErrFetchFailed)
	}
	var body io.Reader = resp.Body
	if limit := c.cfg.MaxBodyBytes; limit > 0 {
		data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
		if err != nil {
			return nil, fmt.Errorf("%s: read body: %w: %v", rawURL, appErr.ErrFetchFailed, err)
		}
		if int64(len(data)) > limit {
			return nil, fmt.Errorf("%s: response exceeds %d bytes: %w", rawURL, limit, appErr.ErrFetchFailed)
		}
		body = bytes.NewReader(data)
	}
	dec := json.NewDecoder(body)
	dec.UseNumber()
	var raw []interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%s: response is not a json array: %w: %v", rawURL, appErr.ErrFetchFailed, err)
	}
	items := make(Items, 0, len(raw))
	for _, elem := range raw {
		obj, ok := elem.(map[string]interface{})
		if !ok {
			obj = map[string]interface{}{}
		}
		items = append(items, obj)
	}
	return items, nil
}

func (c *Client) breaker(host string) *gobreaker.CircuitBreaker[Items] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[host]; ok {
		return cb
	}
	minRequests := uint32(c.cfg.BreakerMinRequests)
	ratio := c.cfg.BreakerFailureRatio
	openFor := time.Duration(c.cfg.BreakerOpenSeconds) * time.Second
	name := "fetch:" + host
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	cb := gobreaker.NewCircuitBreaker[Items](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if minRequests == 0 || counts.Requests < minRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logutil.GetLogger(context.Background()).Warn("fetch circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
	c.breakers[host] = cb
	return cb
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

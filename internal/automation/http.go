package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	logx "swamptimers/pkg/logx"
)

// HTTPConfig configures the Home Assistant REST client.
type HTTPConfig struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	CacheTTL   time.Duration
	RatePerSec int
	Retries    int
	RetryBase  time.Duration
}

const (
	defaultBaseURL  = "http://supervisor/core"
	defaultCacheTTL = 5 * time.Minute
	maxErrorBody    = 512
)

// HTTPClient is the Home Assistant REST API client.
type HTTPClient struct {
	base    *url.URL
	token   string
	hc      *http.Client
	limiter *rate.Limiter
	log     logx.Logger

	retries   int
	retryBase time.Duration

	mu       sync.Mutex
	cache    []Entity
	cachedAt time.Time
	cacheTTL time.Duration
	now      func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewHTTPClient(cfg HTTPConfig, log logx.Logger) (*HTTPClient, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		raw = defaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(raw, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("automation base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("automation base url %q: scheme must be http or https", raw)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 10
	}
	retryBase := cfg.RetryBase
	if retryBase <= 0 {
		retryBase = 500 * time.Millisecond
	}
	return &HTTPClient{
		base:      base,
		token:     strings.TrimSpace(cfg.Token),
		hc:        &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(rate.Limit(rps), rps),
		log:       log,
		retries:   max(0, cfg.Retries),
		retryBase: retryBase,
		cacheTTL:  ttl,
		now:       time.Now,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func (c *HTTPClient) Mode() string { return "home-assistant" }

func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.get(ctx, "api/", nil)
}

// Entities returns all entity states, served from a cache for CacheTTL.
// When a refresh fails and a previous list exists, the stale list is
// returned instead of the error.
func (c *HTTPClient) Entities(ctx context.Context) ([]Entity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cache != nil && c.now().Sub(c.cachedAt) < c.cacheTTL {
		return append([]Entity(nil), c.cache...), nil
	}
	var fresh []Entity
	if err := c.get(ctx, "api/states", &fresh); err != nil {
		if c.cache != nil {
			c.log.Warn("entity refresh failed; serving cached list", logx.Err(err), logx.Int("count", len(c.cache)))
			return append([]Entity(nil), c.cache...), nil
		}
		return nil, err
	}
	if fresh == nil {
		fresh = []Entity{}
	}
	c.cache = fresh
	c.cachedAt = c.now()
	c.log.Debug("entities fetched", logx.Int("count", len(fresh)))
	return append([]Entity(nil), fresh...), nil
}

func (c *HTTPClient) EntitiesByDomain(ctx context.Context, domains ...string) ([]Entity, error) {
	all, err := c.Entities(ctx)
	if err != nil {
		return nil, err
	}
	return filterDomains(all, domains), nil
}

func (c *HTTPClient) State(ctx context.Context, entityID string) (Entity, error) {
	var e Entity
	err := c.get(ctx, "api/states/"+url.PathEscape(strings.TrimSpace(entityID)), &e)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return Entity{}, fmt.Errorf("%w: %s", ErrUnknownEntity, entityID)
	}
	return e, err
}

func (c *HTTPClient) TurnOn(ctx context.Context, entityID string, data map[string]any) error {
	return c.CallService(ctx, switchDomain(entityID), "turn_on", turnData(entityID, data))
}

func (c *HTTPClient) TurnOff(ctx context.Context, entityID string, data map[string]any) error {
	return c.CallService(ctx, switchDomain(entityID), "turn_off", turnData(entityID, data))
}

// CallService posts to api/services/{domain}/{service}. It is not retried.
func (c *HTTPClient) CallService(ctx context.Context, domain, service string, data map[string]any) error {
	domain, service = strings.TrimSpace(domain), strings.TrimSpace(service)
	if domain == "" || service == "" {
		return errors.New("domain and service are required")
	}
	var body io.Reader
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("encode service data: %w", err)
		}
		body = bytes.NewReader(b)
	}
	path := "api/services/" + url.PathEscape(domain) + "/" + url.PathEscape(service)
	c.log.Debug("calling service", logx.String("domain", domain), logx.String("service", service), logx.Any("data", data))
	resp, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, http.MethodPost, path); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// get performs a GET with retry on transport errors and 5xx responses.
func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	var err error
	for attempt := 1; attempt <= 1+c.retries; attempt++ {
		if err = c.getOnce(ctx, path, out); err == nil || !retryable(err) || attempt > c.retries {
			return err
		}
		delay := c.backoff(attempt)
		c.log.Debug("automation retry scheduled", logx.String("path", path), logx.Int("attempt", attempt+1), logx.Duration("delay", delay), logx.Err(err))
		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			tmr.Stop()
			return ctx.Err()
		case <-tmr.C:
		}
	}
	return err
}

func (c *HTTPClient) getOnce(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, http.MethodGet, path); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	rel, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.ResolveReference(rel).String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.hc.Do(req)
}

func checkStatus(resp *http.Response, method, path string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	return true
}

func (c *HTTPClient) backoff(retry int) time.Duration {
	const maxDelay = 5 * time.Second
	d := c.retryBase
	for i := 1; i < retry; i++ {
		d *= 2
		if d > maxDelay {
			d = maxDelay
			break
		}
	}
	c.rngMu.Lock()
	r := (c.rng.Float64()*2 - 1) * 0.2
	c.rngMu.Unlock()
	return time.Duration(float64(d) * (1 + r))
}

func filterDomains(all []Entity, domains []string) []Entity {
	want := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		want[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
	}
	out := make([]Entity, 0, len(all))
	for _, e := range all {
		if _, ok := want[strings.ToLower(e.Domain())]; ok {
			out = append(out, e)
		}
	}
	sortByName(out)
	return out
}

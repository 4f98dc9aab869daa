package aria

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ariaops/aria-exporter/internal/config"
	"github.com/ariaops/aria-exporter/internal/models"
)

const (
	resourcesPath    = "/suite-api/api/resources"
	alertsPath       = "/suite-api/api/alerts"
	supermetricsPath = "/suite-api/api/supermetrics"

	// pageSize matches the upstream maximum page size.
	pageSize = 1000

	// supermetricsCacheTTL bounds how long the supermetric definition count
	// is reused before refetching. Definitions change rarely.
	supermetricsCacheTTL = time.Hour
)

// NewHTTPClient builds the shared HTTP client for all suite-api calls.
// Connections always use TLS; when verifySSL is false certificate
// validation is skipped, which is an explicit configuration choice for
// appliances with self-signed certificates.
func NewHTTPClient(verifySSL bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: !verifySSL}
	return &http.Client{Transport: transport}
}

// BaseURL returns the suite-api base URL for a configured host.
func BaseURL(host string) string {
	return "https://" + host
}

// Client is a typed client for the suite-api endpoints the exporter needs.
// Every call applies its category timeout, the shared rate limiter, the
// retry policy, and the upstream circuit breaker.
type Client struct {
	http     *http.Client
	sess     *SessionManager
	baseURL  string
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	retry    retryPolicy
	timeouts config.TimeoutsConfig
	maxPages int
	logger   *zap.Logger

	smCache *expirable.LRU[string, int]
}

// NewClient creates a suite-api client. The session manager and HTTP
// client are shared with the caller so the whole exporter holds one
// connection pool and one token.
func NewClient(httpClient *http.Client, sess *SessionManager, baseURL string, cfg config.MetricsConfig, logger *zap.Logger) *Client {
	limit := rate.Inf
	if cfg.MaxRequestsPerSecond > 0 {
		limit = rate.Limit(cfg.MaxRequestsPerSecond)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "aria-api",
		MaxRequests: 3,
		Timeout:     60 * time.Second,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Upstream circuit breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 50
	}

	return &Client{
		http:     httpClient,
		sess:     sess,
		baseURL:  baseURL,
		limiter:  rate.NewLimiter(limit, 5),
		breaker:  breaker,
		retry:    defaultRetryPolicy(),
		timeouts: cfg.Timeouts,
		maxPages: maxPages,
		logger:   logger,
		smCache:  expirable.NewLRU[string, int](4, nil, supermetricsCacheTTL),
	}
}

// ListResources fetches every resource of the given type, following
// pagination until exhausted or the page cap is hit. If a later page fails
// after earlier ones succeeded, the fetched descriptors are returned
// together with a PartialDataError.
func (c *Client) ListResources(ctx context.Context, resourceType string) ([]models.ResourceDescriptor, error) {
	var out []models.ResourceDescriptor

	for page := 0; page < c.maxPages; page++ {
		query := url.Values{
			"pageSize":     {strconv.Itoa(pageSize)},
			"page":         {strconv.Itoa(page)},
			"resourceKind": {resourceType},
		}

		var resp resourcesResponse
		if err := c.getJSON(ctx, resourcesPath, query, c.timeouts.Resources.Duration, &resp); err != nil {
			if page > 0 {
				return out, &PartialDataError{Pages: page, Err: err}
			}
			return nil, err
		}

		for _, r := range resp.ResourceList {
			desc, err := toDescriptor(r, resourceType)
			if err != nil {
				return out, &PartialDataError{Pages: page + 1, Err: err}
			}
			out = append(out, desc)
		}

		if done(resp.PageInfo, len(resp.ResourceList)) {
			break
		}
	}

	return out, nil
}

// ResourceStats fetches performance stats for one resource within the
// given window and returns the latest sample per stat key, bounded by
// maxStats.
func (c *Client) ResourceStats(ctx context.Context, res models.ResourceDescriptor, window time.Duration, maxStats int) ([]models.StatSample, error) {
	end := time.Now()
	begin := end.Add(-window)

	query := url.Values{
		"begin":              {strconv.FormatInt(begin.UnixMilli(), 10)},
		"end":                {strconv.FormatInt(end.UnixMilli(), 10)},
		"rollUpType":         {"AVG"},
		"intervalType":       {"MINUTES"},
		"intervalQuantifier": {"5"},
	}

	path := resourcesPath + "/" + url.PathEscape(res.ID) + "/stats"

	var resp statsResponse
	if err := c.getJSON(ctx, path, query, c.timeouts.Stats.Duration, &resp); err != nil {
		return nil, err
	}

	samples := make([]models.StatSample, 0, maxStats)
	for _, entry := range resp.Values {
		if maxStats > 0 && len(samples) >= maxStats {
			break
		}
		if entry.StatKey.Key == "" || len(entry.Data) == 0 {
			continue
		}
		sample := models.StatSample{
			ResourceID:   res.ID,
			ResourceName: res.Name,
			ResourceType: res.ResourceType,
			StatKey:      entry.StatKey.Key,
			Unit:         entry.StatKey.Unit,
			Value:        entry.Data[len(entry.Data)-1],
		}
		if len(entry.Timestamps) > 0 {
			sample.TimestampMs = entry.Timestamps[len(entry.Timestamps)-1]
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

// ActiveAlerts fetches all alerts, following pagination like ListResources.
// Partial pages already fetched are kept on a later failure.
func (c *Client) ActiveAlerts(ctx context.Context) ([]models.Alert, error) {
	var out []models.Alert

	for page := 0; page < c.maxPages; page++ {
		query := url.Values{
			"pageSize": {strconv.Itoa(pageSize)},
			"page":     {strconv.Itoa(page)},
		}

		var resp alertsResponse
		if err := c.getJSON(ctx, alertsPath, query, c.timeouts.Alerts.Duration, &resp); err != nil {
			if page > 0 {
				return out, &PartialDataError{Pages: page, Err: err}
			}
			return nil, err
		}

		for _, a := range resp.Alerts {
			out = append(out, models.Alert{
				ResourceID: a.ResourceID,
				Severity:   a.AlertLevel,
				Status:     a.Status,
				Message:    a.AlertDefinitionName,
			})
		}

		if done(resp.PageInfo, len(resp.Alerts)) {
			break
		}
	}

	return out, nil
}

// SuperMetricCount returns the number of supermetric definitions,
// refetching at most once per cache TTL.
func (c *Client) SuperMetricCount(ctx context.Context) (int, error) {
	if count, ok := c.smCache.Get("supermetrics"); ok {
		return count, nil
	}

	var resp supermetricsResponse
	if err := c.getJSON(ctx, supermetricsPath, nil, c.timeouts.Supermetrics.Duration, &resp); err != nil {
		return 0, err
	}

	count := len(resp.SuperMetrics)
	c.smCache.Add("supermetrics", count)
	return count, nil
}

// toDescriptor validates and converts one upstream resource entry.
// A missing identifier or kind is a malformed payload, not a default.
func toDescriptor(r apiResource, requestedType string) (models.ResourceDescriptor, error) {
	if r.Identifier == "" {
		return models.ResourceDescriptor{}, &ClientError{
			Endpoint: resourcesPath,
			Err:      errors.New("resource entry without identifier"),
		}
	}
	kind := r.ResourceKey.ResourceKindKey
	if kind == "" {
		kind = requestedType
	}
	if kind == "" {
		return models.ResourceDescriptor{}, &ClientError{
			Endpoint: resourcesPath,
			Err:      fmt.Errorf("resource %s without resource kind", r.Identifier),
		}
	}
	health := r.ResourceHealth
	if health == "" {
		health = "UNKNOWN"
	}
	return models.ResourceDescriptor{
		ID:           r.Identifier,
		ResourceType: kind,
		Name:         r.ResourceKey.Name,
		AdapterKind:  r.ResourceKey.AdapterKindKey,
		HealthState:  health,
		ParentPath:   r.ParentPath,
	}, nil
}

// done reports whether the last fetched page was the final one.
func done(info pageInfo, fetched int) bool {
	if info.TotalCount <= 0 {
		// No paging metadata: a short page means we are finished.
		return fetched < pageSize
	}
	size := info.PageSize
	if size <= 0 {
		size = pageSize
	}
	return (info.Page+1)*size >= info.TotalCount
}

// getJSON performs one authenticated GET with the category timeout, the
// rate limiter, retry-with-backoff for transient failures, and a single
// session refresh on 401.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, timeout time.Duration, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	refreshed := false

	return c.retry.do(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		token, err := c.sess.Token(ctx)
		if err != nil {
			return err
		}

		resp, err := c.doAuthed(ctx, path, query, token)
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusUnauthorized {
			drain(resp)
			if refreshed {
				return &AuthError{Reason: "token rejected after refresh"}
			}
			refreshed = true
			c.sess.Invalidate(token)
			token, err = c.sess.Token(ctx)
			if err != nil {
				return err
			}
			resp, err = c.doAuthed(ctx, path, query, token)
			if err != nil {
				return err
			}
			if resp.StatusCode == http.StatusUnauthorized {
				drain(resp)
				return &AuthError{Reason: "token rejected after refresh"}
			}
		}

		if resp.StatusCode != http.StatusOK {
			drain(resp)
			return &ClientError{Status: resp.StatusCode, Endpoint: path}
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &ClientError{Endpoint: path, Err: fmt.Errorf("decoding response: %w", err)}
		}
		return nil
	})
}

// doAuthed sends one GET through the circuit breaker. Transport errors,
// 5xx, and 429 count as breaker failures; any other response passes
// through for the caller to classify.
func (c *Client) doAuthed(ctx context.Context, path string, query url.Values, token string) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	res, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, &ClientError{Endpoint: path, Err: err}
		}
		req.Header.Set("Authorization", authHeader(token))
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, &TransientError{Err: err}
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			drain(resp)
			return nil, &TransientError{Status: resp.StatusCode}
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*http.Response), nil
}

// drain discards and closes a response body so the connection can be reused.
func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

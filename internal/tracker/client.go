// Mousehold - MyAnonamouse Session and Perk Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mousehold

// Package tracker implements the HTTP client for the tracker site:
// account status fetches, perk purchases, and vault donations. A token
// bucket throttles all calls across sessions, and per-session proxies
// are supported via cached per-proxy HTTP clients.
//
// Status fetches never return an error: failures are normalized into a
// StatusResult with nil balances and a descriptive message, because
// callers must treat unknown balances as unknown rather than zero.
package tracker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/mousehold/internal/config"
	"github.com/tomtom215/mousehold/internal/logging"
	"github.com/tomtom215/mousehold/internal/metrics"
	"github.com/tomtom215/mousehold/internal/models"
)

// maxErrorBodySize limits how much of a response body is read for
// error reporting, preventing unbounded allocation on large responses.
const maxErrorBodySize = 64 * 1024 // 64KB

const (
	statusEndpoint   = "/jsonLoad.php"
	purchaseEndpoint = "/json/bonusBuy.php"
	vaultEndpoint    = "/millionaires/donate.php"
)

// Credentials identifies one session for outbound tracker calls.
type Credentials struct {
	MamID string
	Proxy *models.ProxyConfig
}

// API is the surface the automation engine and manual endpoints use to
// talk to the tracker. Implemented by Client and by BreakerClient.
type API interface {
	// FetchStatus retrieves current balances. It never returns an
	// error; failures produce a StatusResult with nil balances.
	FetchStatus(ctx context.Context, creds Credentials) *models.StatusResult

	// Purchase executes one purchase call for a perk. No internal
	// retries; retry policy belongs to the caller's state machine.
	Purchase(ctx context.Context, pt models.PerkType, cfg models.PerkConfig, creds Credentials) *models.PurchaseResult

	// DonateVault donates points to the Millionaire's Vault,
	// verifying the donation by re-fetching the balance.
	DonateVault(ctx context.Context, creds Credentials, points int64) *models.PurchaseResult
}

// Client is the direct tracker HTTP client.
type Client struct {
	baseURL      string
	timeout      time.Duration
	vaultTimeout time.Duration
	userAgent    string
	limiter      *rate.Limiter

	mu      sync.Mutex
	clients map[string]*http.Client // keyed by proxy URL; "" is direct
}

// NewClient creates a tracker client from configuration.
func NewClient(cfg *config.TrackerConfig) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &Client{
		baseURL:      cfg.BaseURL,
		timeout:      cfg.Timeout,
		vaultTimeout: cfg.VaultTimeout,
		userAgent:    cfg.UserAgent,
		limiter:      rate.NewLimiter(rate.Limit(rps), burst),
		clients:      make(map[string]*http.Client),
	}
}

// FetchStatus implements API. Missing credentials and network or parse
// failures all produce a StatusResult with nil balances and a message.
func (c *Client) FetchStatus(ctx context.Context, creds Credentials) *models.StatusResult {
	status, err := c.fetchStatus(ctx, creds)
	if err != nil {
		return &models.StatusResult{
			Message:   err.Error(),
			CheckedAt: time.Now().UTC(),
		}
	}
	return status
}

// fetchStatus is the error-returning form used by the circuit breaker
// so transport failures count against the breaker.
func (c *Client) fetchStatus(ctx context.Context, creds Credentials) (*models.StatusResult, error) {
	if creds.MamID == "" {
		// Not a transport failure: report it in-band without touching
		// the network.
		return &models.StatusResult{
			Message:   "no mam_id configured for this session",
			CheckedAt: time.Now().UTC(),
		}, nil
	}

	start := time.Now()
	payload, err := c.getJSON(ctx, creds, statusEndpoint, url.Values{"snatch_summary": {"true"}}, c.timeout)
	metrics.RecordTrackerRequest("status", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("status fetch failed: %w", err)
	}

	// Partial upstream responses must not crash the fetch: each field
	// falls back to nil independently.
	status := &models.StatusResult{
		Points:      intField(payload, "points", "seedbonus"),
		Cheese:      intField(payload, "cheese"),
		WedgeActive: boolField(payload, "wedge_active"),
		VIPActive:   boolField(payload, "vip_active"),
		CheckedAt:   time.Now().UTC(),
	}
	if status.Points == nil {
		status.Message = "tracker response did not include a point balance"
	}
	return status, nil
}

// Purchase implements API. One HTTP call per invocation.
func (c *Client) Purchase(ctx context.Context, pt models.PerkType, cfg models.PerkConfig, creds Credentials) *models.PurchaseResult {
	result, err := c.purchase(ctx, pt, cfg, creds)
	if err != nil {
		return &models.PurchaseResult{Success: false, Error: err.Error()}
	}
	return result
}

func (c *Client) purchase(ctx context.Context, pt models.PerkType, cfg models.PerkConfig, creds Credentials) (*models.PurchaseResult, error) {
	if creds.MamID == "" {
		return &models.PurchaseResult{Success: false, Error: "no mam_id configured for this session"}, nil
	}

	params := url.Values{}
	switch pt {
	case models.PerkWedge:
		params.Set("spendtype", "wedges")
		params.Set("method", cfg.Method)
	case models.PerkVIP:
		params.Set("spendtype", "VIP")
		params.Set("duration", cfg.Weeks)
	case models.PerkUploadCredit:
		params.Set("spendtype", "upload")
		params.Set("amount", strconv.Itoa(cfg.GBAmount))
	default:
		return nil, fmt.Errorf("unknown perk type %q", pt)
	}

	start := time.Now()
	payload, err := c.getJSON(ctx, creds, purchaseEndpoint, params, c.timeout)
	metrics.RecordTrackerRequest("purchase", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("purchase call failed: %w", err)
	}

	return purchaseResultFrom(payload), nil
}

// DonateVault implements API. Vault donations get the donation page,
// post the donation, and reverify the balance, so they run under the
// longer vault timeout.
func (c *Client) DonateVault(ctx context.Context, creds Credentials, points int64) *models.PurchaseResult {
	if creds.MamID == "" {
		return &models.PurchaseResult{Success: false, Error: "no mam_id configured for this session"}
	}

	start := time.Now()
	result, err := c.donateVault(ctx, creds, points)
	metrics.RecordTrackerRequest("vault", time.Since(start), err)
	if err != nil {
		return &models.PurchaseResult{Success: false, Error: err.Error()}
	}
	return result
}

func (c *Client) donateVault(ctx context.Context, creds Credentials, points int64) (*models.PurchaseResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.vaultTimeout)
	defer cancel()

	before, err := c.fetchStatus(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("vault pre-check failed: %w", err)
	}
	if before.Points == nil {
		return &models.PurchaseResult{Success: false, Error: "cannot donate: point balance unknown"}, nil
	}
	if *before.Points < points {
		return &models.PurchaseResult{
			Success: false,
			Error:   fmt.Sprintf("cannot donate %d points: only %d available", points, *before.Points),
		}, nil
	}

	payload, err := c.postForm(ctx, creds, vaultEndpoint, url.Values{"Donation": {strconv.FormatInt(points, 10)}, "submit": {"Donate Points"}})
	if err != nil {
		return nil, fmt.Errorf("vault donation failed: %w", err)
	}

	// The donation response alone is unreliable; reverify by balance.
	after, err := c.fetchStatus(ctx, creds)
	if err != nil || after.Points == nil {
		logging.Warn().Msg("Vault donation reverify fetch failed, falling back to response payload")
		return purchaseResultFrom(payload), nil
	}
	if *after.Points <= *before.Points-points {
		return &models.PurchaseResult{Success: true, Raw: payload}, nil
	}
	return &models.PurchaseResult{
		Success: false,
		Error:   fmt.Sprintf("donation not reflected in balance: %d before, %d after", *before.Points, *after.Points),
		Raw:     payload,
	}, nil
}

// getJSON performs a rate-limited GET with the session cookie and
// decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, creds Credentials, endpoint string, params url.Values, timeout time.Duration) (map[string]any, error) {
	return c.doJSON(ctx, creds, http.MethodGet, endpoint, params, timeout)
}

// postForm performs a rate-limited POST with the session cookie. It
// reuses the caller's context deadline rather than adding its own.
func (c *Client) postForm(ctx context.Context, creds Credentials, endpoint string, params url.Values) (map[string]any, error) {
	return c.doJSON(ctx, creds, http.MethodPost, endpoint, params, 0)
}

func (c *Client) doJSON(ctx context.Context, creds Credentials, method, endpoint string, params url.Values, timeout time.Duration) (map[string]any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait canceled: %w", err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	reqURL := c.baseURL + endpoint
	var body io.Reader
	if method == http.MethodGet {
		reqURL += "?" + params.Encode()
	} else {
		body = strings.NewReader(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.AddCookie(&http.Cookie{Name: "mam_id", Value: creds.MamID})
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	httpClient, err := c.clientFor(creds.Proxy)
	if err != nil {
		return nil, err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tracker returned HTTP %d: %s", resp.StatusCode, readBodyForError(resp.Body))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	payload := map[string]any{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse tracker response: %w", err)
	}
	return payload, nil
}

// clientFor returns the HTTP client for the given proxy, creating and
// caching one per distinct proxy URL.
func (c *Client) clientFor(proxy *models.ProxyConfig) (*http.Client, error) {
	key := ""
	var proxyURL *url.URL
	if proxy != nil && proxy.Host != "" {
		u, err := proxy.URL()
		if err != nil {
			return nil, fmt.Errorf("invalid proxy configuration: %w", err)
		}
		proxyURL = u
		key = u.String()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[key]; ok {
		return client, nil
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyURL != nil {
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	client := &http.Client{
		Transport: transport,
		// Per-call contexts own the deadline; the client itself does
		// not impose a second timeout.
	}
	c.clients[key] = client
	return client, nil
}

// purchaseResultFrom interprets a purchase response payload. The
// tracker reports success either as a boolean "success" field or a
// "result" string.
func purchaseResultFrom(payload map[string]any) *models.PurchaseResult {
	result := &models.PurchaseResult{Raw: payload}

	if v, ok := payload["success"].(bool); ok {
		result.Success = v
	} else if v, ok := payload["result"].(string); ok {
		result.Success = v == "success" || v == "ok"
	}

	if !result.Success {
		if msg, ok := payload["error"].(string); ok && msg != "" {
			result.Error = msg
		} else if msg, ok := payload["result"].(string); ok && msg != "" {
			result.Error = msg
		} else {
			result.Error = "tracker rejected the purchase"
		}
	}
	return result
}

// intField extracts the first present integer-valued key, tolerating
// the float64 and string encodings JSON numbers arrive in.
func intField(payload map[string]any, keys ...string) *int64 {
	for _, key := range keys {
		v, ok := payload[key]
		if !ok || v == nil {
			continue
		}
		switch n := v.(type) {
		case float64:
			i := int64(n)
			return &i
		case string:
			if i, err := strconv.ParseInt(n, 10, 64); err == nil {
				return &i
			}
		case json.Number:
			if i, err := n.Int64(); err == nil {
				return &i
			}
		}
	}
	return nil
}

// boolField extracts an optional boolean field, or nil when absent.
func boolField(payload map[string]any, key string) *bool {
	if v, ok := payload[key].(bool); ok {
		return &v
	}
	return nil
}

// readBodyForError reads up to maxErrorBodySize of a response body for
// error reporting.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("\n... (truncated)")...)
	}
	return body
}

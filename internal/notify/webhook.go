// Mousehold - MyAnonamouse Session and Perk Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mousehold

package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/mousehold/internal/config"
)

// WebhookChannel posts notifications as JSON to a configured URL.
type WebhookChannel struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewWebhookChannel creates a webhook channel from configuration.
func NewWebhookChannel(cfg config.WebhookConfig) *WebhookChannel {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookChannel{
		url:     cfg.URL,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name implements Channel.
func (c *WebhookChannel) Name() string { return "webhook" }

// Validate implements Channel.
func (c *WebhookChannel) Validate() error {
	return validateHTTPURL(c.url)
}

// Send implements Channel.
func (c *WebhookChannel) Send(ctx context.Context, n Notification) DeliveryResult {
	body, err := json.Marshal(n)
	if err != nil {
		return DeliveryResult{ErrorMessage: fmt.Sprintf("failed to encode payload: %v", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return DeliveryResult{ErrorMessage: fmt.Sprintf("failed to build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return DeliveryResult{ErrorMessage: fmt.Sprintf("webhook request failed: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return DeliveryResult{
			ResponseCode: resp.StatusCode,
			ErrorMessage: fmt.Sprintf("webhook returned HTTP %d", resp.StatusCode),
		}
	}
	return DeliveryResult{Success: true, ResponseCode: resp.StatusCode}
}

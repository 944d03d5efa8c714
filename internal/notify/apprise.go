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
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/mousehold/internal/config"
	"github.com/tomtom215/mousehold/internal/models"
)

// AppriseChannel delivers notifications through an Apprise API server
// (POST /notify/{key}).
type AppriseChannel struct {
	baseURL string
	key     string
	tags    string
	timeout time.Duration
	client  *http.Client
}

// NewAppriseChannel creates an Apprise channel from configuration.
func NewAppriseChannel(cfg config.AppriseConfig) *AppriseChannel {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AppriseChannel{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		key:     cfg.Key,
		tags:    cfg.Tags,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name implements Channel.
func (c *AppriseChannel) Name() string { return "apprise" }

// Validate implements Channel.
func (c *AppriseChannel) Validate() error {
	if err := validateHTTPURL(c.baseURL); err != nil {
		return err
	}
	if c.key == "" {
		return fmt.Errorf("apprise key is required")
	}
	return nil
}

// applePayload is the Apprise API notify request body.
type apprisePayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Type  string `json:"type"`
	Tag   string `json:"tag,omitempty"`
}

// Send implements Channel.
func (c *AppriseChannel) Send(ctx context.Context, n Notification) DeliveryResult {
	notifyType := "info"
	if n.Result == models.ResultFailed {
		notifyType = "failure"
	}

	body, err := json.Marshal(apprisePayload{
		Title: n.Title(),
		Body:  n.Message,
		Type:  notifyType,
		Tag:   c.tags,
	})
	if err != nil {
		return DeliveryResult{ErrorMessage: fmt.Sprintf("failed to encode payload: %v", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/notify/%s", c.baseURL, c.key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return DeliveryResult{ErrorMessage: fmt.Sprintf("failed to build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return DeliveryResult{ErrorMessage: fmt.Sprintf("apprise request failed: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return DeliveryResult{
			ResponseCode: resp.StatusCode,
			ErrorMessage: fmt.Sprintf("apprise returned HTTP %d", resp.StatusCode),
		}
	}
	return DeliveryResult{Success: true, ResponseCode: resp.StatusCode}
}

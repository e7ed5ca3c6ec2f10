// Package webhook posts probe notifications to HTTP endpoints.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gyaneshwarpardhi/probewire/internal/action"
	"github.com/gyaneshwarpardhi/probewire/internal/event"
)

// Payload is the JSON document posted to the endpoint.
type Payload struct {
	Probe   string         `json:"probe"`
	Subject string         `json:"subject"`
	Body    string         `json:"body"`
	Event   map[string]any `json:"event"`
}

// WebhookAction handles "webhook" actions.
//
//	params:
//	  url: https://hooks.example.net/probewire
type WebhookAction struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a WebhookAction. A nil client gets a 30s timeout.
func New(client *http.Client, logger *slog.Logger) *WebhookAction {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookAction{httpClient: client, logger: logger.With("component", "webhook_action")}
}

func (a *WebhookAction) Type() string { return "webhook" }

func (a *WebhookAction) Validate(params map[string]any) error {
	_, err := endpoint(params)
	return err
}

func endpoint(params map[string]any) (string, error) {
	raw, _ := params["url"].(string)
	if raw == "" {
		return "", fmt.Errorf("webhook: url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("webhook: invalid url %q (must be a valid HTTP/HTTPS URL)", raw)
	}
	return raw, nil
}

func (a *WebhookAction) Execute(ctx context.Context, params map[string]any, n *action.Notification) (*action.ActionResult, error) {
	result := &action.ActionResult{Probe: n.Probe.Name, Type: a.Type()}
	if err := a.send(ctx, params, n); err != nil {
		result.Message = err.Error()
		return result, err
	}
	result.Success = true
	result.Message = "delivered"
	return result, nil
}

func (a *WebhookAction) send(ctx context.Context, params map[string]any, n *action.Notification) error {
	target, err := endpoint(params)
	if err != nil {
		return err
	}
	data, err := json.Marshal(Payload{
		Probe:   n.Probe.Name,
		Subject: n.Subject,
		Body:    n.Body,
		Event:   event.Serialize(n.Event),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.logger.Error("failed to send webhook notification", "url", target, "probe", n.Probe.Name, "err", err)
		return fmt.Errorf("failed to send webhook notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		a.logger.Error("webhook returned error status", "status_code", resp.StatusCode, "url", target, "probe", n.Probe.Name)
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	a.logger.Debug("webhook notification sent", "url", target, "probe", n.Probe.Name)
	return nil
}

package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// NewLogHandler writes alerts to the service log.
func NewLogHandler(logger *zap.Logger) AlertHandler {
	logger = logger.Named("alert")
	return func(ctx context.Context, alert Alert) error {
		fields := []zap.Field{
			zap.String("alert_type", alert.Type),
			zap.String("severity", string(alert.Severity)),
			zap.Any("data", alert.Data),
		}
		switch alert.Severity {
		case SeverityCritical, SeverityHigh:
			logger.Error("alert_raised", fields...)
		default:
			logger.Warn("alert_raised", fields...)
		}
		return nil
	}
}

const (
	webhookMaxFields     = 25
	webhookMaxFieldValue = 1024
)

var severityColors = map[Severity]int{
	SeverityLow:      0x3498db,
	SeverityMedium:   0xf1c40f,
	SeverityHigh:     0xe67e22,
	SeverityCritical: 0xe74c3c,
}

type webhookField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type webhookEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Fields      []webhookField `json:"fields,omitempty"`
	Timestamp   string         `json:"timestamp"`
}

type webhookPayload struct {
	Username string         `json:"username"`
	Embeds   []webhookEmbed `json:"embeds"`
}

// NewWebhookHandler posts alerts to a Discord-compatible webhook.
func NewWebhookHandler(url, environment string, timeout time.Duration) AlertHandler {
	client := &http.Client{Timeout: timeout}
	return func(ctx context.Context, alert Alert) error {
		body, err := json.Marshal(buildWebhookPayload(alert, environment))
		if err != nil {
			return fmt.Errorf("encode webhook payload: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("post webhook: %w", err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= 300 {
			return fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}
		return nil
	}
}

func buildWebhookPayload(alert Alert, environment string) webhookPayload {
	keys := make([]string, 0, len(alert.Data))
	for k := range alert.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > webhookMaxFields {
		keys = keys[:webhookMaxFields]
	}

	fields := make([]webhookField, 0, len(keys))
	for _, k := range keys {
		value := fmt.Sprint(alert.Data[k])
		if len(value) > webhookMaxFieldValue {
			value = value[:webhookMaxFieldValue-3] + "..."
		}
		if value == "" {
			value = "-"
		}
		fields = append(fields, webhookField{Name: k, Value: value, Inline: len(value) < 40})
	}

	return webhookPayload{
		Username: "Phanteon Monitor",
		Embeds: []webhookEmbed{{
			Title:       fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), alert.Type),
			Description: "environment: " + environment,
			Color:       severityColors[alert.Severity],
			Fields:      fields,
			Timestamp:   alert.TriggeredAt.Format(time.RFC3339),
		}},
	}
}

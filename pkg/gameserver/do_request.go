package gameserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ozanardine/phanteon-rewards/internal/cryptoutils"
	"github.com/ozanardine/phanteon-rewards/pkg/telemetry/correlation"
)

const (
	headerSignature = "X-Phanteon-Signature"
	headerTimestamp = "X-Phanteon-Timestamp"
	headerRequestID = "X-Request-ID"
)

func (c *Client) doRequest(ctx context.Context, method, path string, body any, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	return c.breaker.Execute(func() error {
		return c.send(ctx, method, path, body, out)
	})
}

func (c *Client) send(ctx context.Context, method, path string, body any, out any) error {
	url := c.cfg.BaseURL + path

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = b
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if c.cfg.SigningSecret != "" {
		ts := c.now().Unix()
		req.Header.Set(headerTimestamp, strconv.FormatInt(ts, 10))
		req.Header.Set(headerSignature, cryptoutils.Sign(payload, c.cfg.SigningSecret, ts))
	}
	if cid := correlation.ExtractCorrelationID(ctx); cid != "" {
		req.Header.Set(headerRequestID, cid)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{Status: resp.StatusCode, Message: resp.Status}
		if len(bodyBytes) > 0 {
			var parsed APIError
			if json.Unmarshal(bodyBytes, &parsed) == nil && parsed.Message != "" {
				apiErr.Code = cleanText(parsed.Code)
				apiErr.Message = cleanText(parsed.Message)
			} else {
				apiErr.Message = cleanText(string(bodyBytes))
			}
		}
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// cleanText drops NUL bytes and invalid UTF-8 from plugin-supplied error text.
// The body read is capped, so it may also end mid-rune.
func cleanText(s string) string {
	return strings.ReplaceAll(strings.ToValidUTF8(s, "\uFFFD"), "\x00", "")
}

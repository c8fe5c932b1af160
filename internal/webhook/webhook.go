package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/lingoreel/lingoreel/internal/database"
	"github.com/lingoreel/lingoreel/internal/notify"
)

const maxResponseBodyBytes = 1024

// Client delivers events to the operator's webhook endpoint with retries.
// Every attempt is recorded in webhook_deliveries.
type Client struct {
	db          database.DBTX
	url         string
	secret      string
	http        *http.Client
	retryDelays []time.Duration
}

var _ notify.Notifier = (*Client)(nil)

func New(db database.DBTX, url, secret string) *Client {
	return &Client{
		db:          db,
		url:         url,
		secret:      secret,
		http:        &http.Client{Timeout: 10 * time.Second},
		retryDelays: []time.Duration{1 * time.Second, 4 * time.Second},
	}
}

func (c *Client) Configured() bool {
	return c.url != ""
}

// SignPayload computes HMAC-SHA256 of the payload using the secret.
func SignPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks an X-Webhook-Signature header value in constant time.
func VerifySignature(secret string, payload []byte, signature string) bool {
	return hmac.Equal([]byte(SignPayload(secret, payload)), []byte(signature))
}

func (c *Client) Notify(ctx context.Context, event notify.Event) error {
	if !c.Configured() {
		return nil
	}
	return c.Dispatch(ctx, event)
}

// Dispatch sends an event with up to 1+len(retryDelays) attempts.
func (c *Client) Dispatch(ctx context.Context, event notify.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	signature := SignPayload(c.secret, body)
	maxAttempts := 1 + len(c.retryDelays)
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		statusCode, respBody, err := c.doPost(ctx, body, signature)
		c.logDelivery(ctx, event.Name, body, statusCode, respBody, attempt)

		if err == nil && statusCode != nil && *statusCode >= 200 && *statusCode < 300 {
			return nil
		}

		if err != nil {
			lastErr = err
		} else if statusCode != nil {
			lastErr = fmt.Errorf("webhook returned status %d", *statusCode)
		}

		if attempt < maxAttempts {
			select {
			case <-time.After(c.retryDelays[attempt-1]):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return lastErr
}

func (c *Client) doPost(ctx context.Context, body []byte, signature string) (*int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", signature)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err.Error(), err
	}
	defer func() { _ = resp.Body.Close() }()

	respBytes, _ := io.ReadAll(io.LimitReader(resp.Body, int64(maxResponseBodyBytes)+1))
	respBody := string(respBytes)
	if len(respBody) > maxResponseBodyBytes {
		respBody = respBody[:maxResponseBodyBytes]
	}

	return &resp.StatusCode, respBody, nil
}

func (c *Client) logDelivery(ctx context.Context, event string, payload []byte, statusCode *int, responseBody string, attempt int) {
	if c.db == nil {
		return
	}
	if _, err := c.db.Exec(ctx,
		`INSERT INTO webhook_deliveries (event, payload, status_code, response_body, attempt)
		 VALUES ($1, $2, $3, $4, $5)`,
		event, payload, statusCode, responseBody, attempt,
	); err != nil {
		slog.Error("webhook: failed to log delivery", "event", event, "error", err)
	}
}

type Delivery struct {
	ID           int64           `json:"id"`
	Event        string          `json:"event"`
	Payload      json.RawMessage `json:"payload"`
	StatusCode   *int            `json:"statusCode"`
	ResponseBody string          `json:"responseBody"`
	Attempt      int             `json:"attempt"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// RecentDeliveries returns the newest delivery attempts, for the admin dashboard.
func (c *Client) RecentDeliveries(ctx context.Context, limit int) ([]Delivery, error) {
	rows, err := c.db.Query(ctx,
		`SELECT id, event, payload, status_code, COALESCE(response_body, ''), attempt, created_at
		 FROM webhook_deliveries ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query webhook deliveries: %w", err)
	}
	defer rows.Close()

	deliveries := []Delivery{}
	for rows.Next() {
		var d Delivery
		var payload []byte
		if err := rows.Scan(&d.ID, &d.Event, &payload, &d.StatusCode, &d.ResponseBody, &d.Attempt, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan webhook delivery: %w", err)
		}
		d.Payload = payload
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

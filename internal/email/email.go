package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/lingoreel/lingoreel/internal/notify"
)

type Config struct {
	BaseURL  string
	Username string
	Password string
	// RegistrationTemplateID renders the "new learner waiting for review" mail sent to admins.
	RegistrationTemplateID int
	// ApprovalTemplateID renders the "your account is approved" mail sent to the learner.
	ApprovalTemplateID int
	AdminEmails        []string
	// AppURL is the public site root used to build links.
	AppURL string
}

// Client sends transactional mail through Listmonk's /api/tx endpoint.
type Client struct {
	config Config
	http   *http.Client
}

var _ notify.Notifier = (*Client)(nil)

func New(cfg Config) *Client {
	cfg.AppURL = strings.TrimRight(cfg.AppURL, "/")
	return &Client{
		config: cfg,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

type txRequest struct {
	SubscriberEmail string            `json:"subscriber_email"`
	TemplateID      int               `json:"template_id"`
	Data            map[string]string `json:"data"`
	ContentType     string            `json:"content_type"`
}

// Notify mails admins about new registrations and learners about approval.
// Other events are not sent by email.
func (c *Client) Notify(ctx context.Context, event notify.Event) error {
	switch event.Name {
	case notify.UserRegistered:
		return c.SendRegistrationNotice(ctx, event.String("email"), event.String("name"))
	case notify.UserApproved:
		return c.SendApproval(ctx, event.String("email"), event.String("name"))
	}
	return nil
}

func (c *Client) SendRegistrationNotice(ctx context.Context, learnerEmail, learnerName string) error {
	if c.config.BaseURL == "" {
		log.Printf("email not configured: %s (%s) is waiting for approval", learnerName, learnerEmail)
		return nil
	}
	if len(c.config.AdminEmails) == 0 {
		return nil
	}

	data := map[string]string{
		"learnerEmail": learnerEmail,
		"learnerName":  learnerName,
		"reviewURL":    c.config.AppURL + "/admin/users",
	}

	var firstErr error
	for _, admin := range c.config.AdminEmails {
		if err := c.send(ctx, admin, c.config.RegistrationTemplateID, data); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("send registration notice to %s: %w", admin, err)
		}
	}
	return firstErr
}

func (c *Client) SendApproval(ctx context.Context, toEmail, toName string) error {
	if c.config.BaseURL == "" {
		log.Printf("email not configured: account for %s approved", toEmail)
		return nil
	}
	if toEmail == "" {
		return fmt.Errorf("approval email: recipient is empty")
	}

	return c.send(ctx, toEmail, c.config.ApprovalTemplateID, map[string]string{
		"name":     toName,
		"loginURL": c.config.AppURL + "/login",
	})
}

func (c *Client) send(ctx context.Context, to string, templateID int, data map[string]string) error {
	body := txRequest{
		SubscriberEmail: to,
		TemplateID:      templateID,
		Data:            data,
		ContentType:     "html",
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/tx", bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("create email request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.config.Username, c.config.Password)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("listmonk returned status %d", resp.StatusCode)
	}

	return nil
}

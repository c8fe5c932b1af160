package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/lingoreel/lingoreel/internal/notify"
)

// Client posts admin notifications to a Slack incoming webhook.
type Client struct {
	webhookURL string
	appURL     string
	http       *http.Client
}

var _ notify.Notifier = (*Client)(nil)

// New creates a Slack webhook client. An empty webhook URL disables posting.
func New(webhookURL, appURL string) *Client {
	return &Client{
		webhookURL: webhookURL,
		appURL:     appURL,
		http:       &http.Client{Timeout: 10 * time.Second},
	}
}

type block struct {
	Type     string `json:"type"`
	Text     *text  `json:"text,omitempty"`
	Elements []text `json:"elements,omitempty"`
}

type text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type payload struct {
	Blocks []block `json:"blocks"`
}

func (c *Client) Notify(ctx context.Context, event notify.Event) error {
	if c.webhookURL == "" {
		return nil
	}

	p, ok := c.render(event)
	if !ok {
		return nil
	}

	if err := c.postMessage(ctx, p); err != nil {
		log.Printf("slack: failed to send %s notification: %v", event.Name, err)
	}
	return nil
}

func (c *Client) render(event notify.Event) (payload, bool) {
	var headline, detail string
	switch event.Name {
	case notify.UserRegistered:
		headline = fmt.Sprintf(":wave: *New learner waiting for approval*\n%s (%s)", event.String("name"), event.String("email"))
		detail = fmt.Sprintf("<%s/admin/users|Review pending accounts>", c.appURL)
	case notify.UserApproved:
		headline = fmt.Sprintf(":white_check_mark: *Learner approved*\n%s", event.String("email"))
	case notify.VideoPublished:
		headline = fmt.Sprintf(":clapper: *Video published*\n%s", event.String("title"))
		detail = fmt.Sprintf("<%s/videos/%s|Open lesson>", c.appURL, event.String("videoId"))
	case notify.SubtitlesUploaded:
		headline = fmt.Sprintf(":memo: *Subtitles uploaded*\n%s", event.String("title"))
		detail = fmt.Sprintf("%v cues, %v warnings", event.Data["inserted"], event.Data["warnings"])
	default:
		return payload{}, false
	}

	p := payload{Blocks: []block{{Type: "section", Text: &text{Type: "mrkdwn", Text: headline}}}}
	if detail != "" {
		p.Blocks = append(p.Blocks, block{Type: "context", Elements: []text{{Type: "mrkdwn", Text: detail}}})
	}
	return p, true
}

func (c *Client) postMessage(ctx context.Context, p payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send slack message: %w", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}

	return nil
}

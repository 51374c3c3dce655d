package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/aliuyar1234/sanctus/internal/domain"
	"github.com/rs/zerolog/log"
)

// Client posts invite notifications to a Slack incoming webhook.
// A nil Client or an empty webhook URL disables delivery.
type Client struct {
	httpClient *http.Client
	webhookURL string
	baseURL    string
	timeout    time.Duration
}

// NewClient creates a client posting to webhookURL. baseURL is the SPA
// origin linked from messages.
func NewClient(webhookURL, baseURL string, timeoutMS int) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutMS) * time.Millisecond,
		},
		webhookURL: strings.TrimSpace(webhookURL),
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    time.Duration(timeoutMS) * time.Millisecond,
	}
}

type slackPayload struct {
	Text string `json:"text"`
}

// NotifyInvite announces an invite event. It never returns errors; delivery
// failures are logged at WARN so they cannot affect invite handling.
// The clear token is never part of the message.
func (c *Client) NotifyInvite(ctx context.Context, event domain.InviteEvent, inv *domain.InviteToken) {
	if c == nil || c.webhookURL == "" || inv == nil {
		return
	}

	jsonData, err := json.Marshal(slackPayload{Text: c.buildMessageText(event, inv)})
	if err != nil {
		log.Warn().Err(err).Str("invite_id", inv.ID.String()).Msg("Failed to marshal Slack payload")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(jsonData))
	if err != nil {
		log.Warn().Err(err).Str("webhook_url", "<set>").Msg("Failed to create Slack request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeoutError(err) {
			log.Warn().
				Err(err).
				Dur("timeout", c.timeout).
				Str("invite_id", inv.ID.String()).
				Msg("Slack notification timed out")
		} else {
			log.Warn().
				Err(err).
				Str("invite_id", inv.ID.String()).
				Msg("Failed to send Slack notification")
		}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn().
			Int("status_code", resp.StatusCode).
			Str("invite_id", inv.ID.String()).
			Msg("Slack webhook returned unexpected status code")
		return
	}

	log.Info().
		Str("event", string(event)).
		Str("invite_id", inv.ID.String()).
		Msg("Slack notification sent successfully")
}

func (c *Client) buildMessageText(event domain.InviteEvent, inv *domain.InviteToken) string {
	var b strings.Builder
	switch event {
	case domain.InviteEventRedeemed:
		fmt.Fprintf(&b, "*Invite redeemed* (%s)\n", inv.Role)
	default:
		fmt.Fprintf(&b, "*Invite issued* (%s)\n", inv.Role)
		fmt.Fprintf(&b, "*Expires:* %s\n", inv.ExpiresAt.UTC().Format(time.RFC3339))
	}
	if inv.IssuedTo != "" {
		fmt.Fprintf(&b, "*Issued to:* %s\n", inv.IssuedTo)
	}
	if inv.Purpose != "" {
		fmt.Fprintf(&b, "*Purpose:* %s\n", inv.Purpose)
	}
	if c.baseURL != "" {
		fmt.Fprintf(&b, "<%s/admin/invites|View invites>", c.baseURL)
	}
	return strings.TrimRight(b.String(), "\n")
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

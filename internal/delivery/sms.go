package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// SMSConfig holds Twilio-compatible REST settings. BaseURL is
// overridable for tests and compatible gateways.
type SMSConfig struct {
	AccountSID string `json:"accountSid"`
	AuthToken  string `json:"authToken"`
	FromNumber string `json:"fromNumber"`
	BaseURL    string `json:"baseUrl,omitempty"`
}

// SMSSender delivers short report notifications with a document link.
type SMSSender struct {
	config SMSConfig
	client *http.Client
}

// NewSMSSender creates a sender from the given config.
func NewSMSSender(config SMSConfig) *SMSSender {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.twilio.com"
	}
	return &SMSSender{
		config: config,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Send posts one message to one phone number through the Messages
// endpoint.
func (s *SMSSender) Send(ctx context.Context, to, body string) error {
	if s.config.AccountSID == "" || s.config.AuthToken == "" {
		return fmt.Errorf("SMS credentials not configured")
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimRight(s.config.BaseURL, "/"), s.config.AccountSID)

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", s.config.FromNumber)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build SMS request: %w", err)
	}
	req.SetBasicAuth(s.config.AccountSID, s.config.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("SMS request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Message == "" {
			apiErr.Message = resp.Status
		}
		return fmt.Errorf("SMS API error: %s", apiErr.Message)
	}

	log.Info().Str("to", to).Msg("SMS sent")
	return nil
}

package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/campx/campx-backend/internal/config"
)

// TwilioSMS posts to the Twilio Messages REST endpoint.
type TwilioSMS struct {
	accountSID string
	authToken  string
	from       string
	apiURL     string
	client     *http.Client
}

func NewTwilioSMS(cfg *config.Config) *TwilioSMS {
	return &TwilioSMS{
		accountSID: cfg.TwilioAccountSID,
		authToken:  cfg.TwilioAuthToken,
		from:       cfg.TwilioFrom,
		apiURL:     strings.TrimRight(cfg.TwilioAPIURL, "/"),
		client:     &http.Client{Timeout: cfg.NotifyTimeout},
	}
}

func (t *TwilioSMS) Enabled() bool {
	return t.accountSID != "" && t.authToken != "" && t.from != ""
}

func (t *TwilioSMS) Send(ctx context.Context, to, body string) error {
	if !t.Enabled() {
		return ErrNotConfigured
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", t.from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", t.apiURL, t.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(t.accountSID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("sms API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}

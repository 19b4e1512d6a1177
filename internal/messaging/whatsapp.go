// Package messaging delivers WhatsApp messages through Twilio.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Hervar88/DentiFlow/pkg/logging"
)

var whatsappTracer = otel.Tracer("dentiflow.internal.messaging.whatsapp")

const defaultTwilioURL = "https://api.twilio.com"

var (
	ErrNotConfigured = errors.New("messaging: twilio whatsapp not configured")
	// ErrPermanent marks failures that will not succeed on retry (4xx other than 429).
	ErrPermanent = errors.New("messaging: permanent delivery failure")
)

// WhatsAppConfig holds the Twilio account and sender number.
type WhatsAppConfig struct {
	AccountSID    string
	AuthToken     string
	From          string
	DefaultRegion string
	BaseURL       string
}

// WhatsAppSender posts WhatsApp messages using Twilio's Messages API. Each
// Send is a single attempt; callers own the retry policy.
type WhatsAppSender struct {
	accountSID string
	authToken  string
	from       string
	region     string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

func NewWhatsAppSender(cfg WhatsAppConfig, logger *logging.Logger) *WhatsAppSender {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTwilioURL
	}
	if cfg.DefaultRegion == "" {
		cfg.DefaultRegion = DefaultRegion
	}
	from := strings.TrimSpace(cfg.From)
	if from != "" && !strings.HasPrefix(strings.ToLower(from), whatsappPrefix) {
		from = whatsappPrefix + from
	}
	return &WhatsAppSender{
		accountSID: strings.TrimSpace(cfg.AccountSID),
		authToken:  strings.TrimSpace(cfg.AuthToken),
		from:       from,
		region:     cfg.DefaultRegion,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// WithHTTPClient swaps the transport.
func (s *WhatsAppSender) WithHTTPClient(client *http.Client) *WhatsAppSender {
	if client != nil {
		s.httpClient = client
	}
	return s
}

// Configured reports whether credentials and a sender number are present.
func (s *WhatsAppSender) Configured() bool {
	return s != nil && s.accountSID != "" && s.authToken != "" && s.from != ""
}

// Send delivers body to a patient phone number. It returns the Twilio message SID.
func (s *WhatsAppSender) Send(ctx context.Context, phone, body string) (string, error) {
	if !s.Configured() {
		return "", ErrNotConfigured
	}
	if strings.TrimSpace(body) == "" {
		return "", fmt.Errorf("%w: body required", ErrPermanent)
	}
	to, err := NormalizeWhatsApp(phone, s.region)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPermanent, err)
	}

	ctx, span := whatsappTracer.Start(ctx, "messaging.whatsapp.send")
	defer span.End()
	span.SetAttributes(attribute.String("dentiflow.to", to))

	payload := url.Values{}
	payload.Set("To", to)
	payload.Set("From", s.from)
	payload.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, s.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("messaging: twilio http: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("messaging: twilio send failed: %s", formatTwilioError(resp.StatusCode, raw))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			err = fmt.Errorf("%w: %v", ErrPermanent, err)
		}
		span.RecordError(err)
		return "", err
	}

	var parsed struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	_ = json.Unmarshal(raw, &parsed)
	s.logger.Info("whatsapp message sent", "to", to, "sid", parsed.SID, "status", parsed.Status)
	return parsed.SID, nil
}

type twilioAPIError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

func formatTwilioError(status int, body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return fmt.Sprintf("status %d", status)
	}
	var parsed twilioAPIError
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil && parsed.Message != "" {
		if parsed.Code != 0 {
			return fmt.Sprintf("status %d code %d: %s", status, parsed.Code, parsed.Message)
		}
		return fmt.Sprintf("status %d: %s", status, parsed.Message)
	}
	return fmt.Sprintf("status %d: %s", status, trimmed)
}

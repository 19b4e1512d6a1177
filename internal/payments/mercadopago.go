// Package payments takes appointment deposits through Mercado Pago Checkout Pro.
package payments

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Hervar88/DentiFlow/pkg/logging"
)

var mercadoPagoTracer = otel.Tracer("dentiflow.internal.payments.mercadopago")

const defaultMercadoPagoURL = "https://api.mercadopago.com"

var (
	ErrNotConfigured   = errors.New("payments: mercado pago not configured")
	ErrPaymentNotFound = errors.New("payments: payment not found")
)

// PreferenceItem is one Checkout Pro line item.
type PreferenceItem struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Quantity    int     `json:"quantity"`
	CurrencyID  string  `json:"currency_id"`
	UnitPrice   float64 `json:"unit_price"`
}

type BackURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

// PreferenceRequest is the body of POST /checkout/preferences.
type PreferenceRequest struct {
	Items               []PreferenceItem `json:"items"`
	BackURLs            BackURLs         `json:"back_urls"`
	AutoReturn          string           `json:"auto_return,omitempty"`
	ExternalReference   string           `json:"external_reference"`
	NotificationURL     string           `json:"notification_url,omitempty"`
	StatementDescriptor string           `json:"statement_descriptor,omitempty"`
}

// Preference is the subset of the created preference we use.
type Preference struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

// Payment is the subset of GET /v1/payments/{id} we use.
type Payment struct {
	ID                int64      `json:"id"`
	Status            string     `json:"status"`
	StatusDetail      string     `json:"status_detail"`
	ExternalReference string     `json:"external_reference"`
	TransactionAmount float64    `json:"transaction_amount"`
	CurrencyID        string     `json:"currency_id"`
	DateApproved      *time.Time `json:"date_approved"`
}

// MercadoPagoClient is a thin REST client for the Checkout Pro and Payments APIs.
type MercadoPagoClient struct {
	accessToken string
	baseURL     string
	httpClient  *http.Client
	logger      *logging.Logger
}

func NewMercadoPagoClient(accessToken string, logger *logging.Logger) *MercadoPagoClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &MercadoPagoClient{
		accessToken: strings.TrimSpace(accessToken),
		baseURL:     defaultMercadoPagoURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		logger:      logger,
	}
}

// WithBaseURL overrides the API host (tests, proxies).
func (c *MercadoPagoClient) WithBaseURL(baseURL string) *MercadoPagoClient {
	if baseURL == "" {
		return c
	}
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// WithHTTPClient swaps the transport.
func (c *MercadoPagoClient) WithHTTPClient(client *http.Client) *MercadoPagoClient {
	if client != nil {
		c.httpClient = client
	}
	return c
}

// Configured reports whether an access token is present.
func (c *MercadoPagoClient) Configured() bool {
	return c != nil && c.accessToken != ""
}

// CreatePreference registers a Checkout Pro preference.
func (c *MercadoPagoClient) CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	ctx, span := mercadoPagoTracer.Start(ctx, "mercadopago.create_preference")
	defer span.End()
	span.SetAttributes(attribute.String("dentiflow.appointment_id", req.ExternalReference))

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("payments: preference payload: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/checkout/preferences", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("payments: preference request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Idempotency-Key", idempotencyKey(req.ExternalReference))

	var pref Preference
	if err := c.do(httpReq, &pref); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if pref.ID == "" {
		return nil, fmt.Errorf("payments: preference response missing id")
	}
	return &pref, nil
}

// GetPayment fetches a payment by its numeric id.
func (c *MercadoPagoClient) GetPayment(ctx context.Context, paymentID int64) (*Payment, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	ctx, span := mercadoPagoTracer.Start(ctx, "mercadopago.get_payment")
	defer span.End()
	span.SetAttributes(attribute.Int64("dentiflow.payment_id", paymentID))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/payments/"+strconv.FormatInt(paymentID, 10), nil)
	if err != nil {
		return nil, fmt.Errorf("payments: payment request: %w", err)
	}
	var payment Payment
	if err := c.do(httpReq, &payment); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &payment, nil
}

func (c *MercadoPagoClient) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("payments: mercado pago http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrPaymentNotFound
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("payments: mercado pago status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("payments: mercado pago decode: %w", err)
	}
	return nil
}

// idempotencyKey collapses retries for the same appointment within an hour.
func idempotencyKey(reference string) string {
	input := fmt.Sprintf("%s:%s", reference, time.Now().UTC().Format("2006-01-02T15"))
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

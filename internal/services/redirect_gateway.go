// internal/services/redirect_gateway.go
package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/javajoker/idea-market/internal/config"
)

const confirmPath = "/v1/payments/confirm"

var errRedirectKeyRequired = errors.New("redirect gateway secret key is required")

// RedirectGatewayError is a non-2xx answer from the confirm API.
type RedirectGatewayError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *RedirectGatewayError) Error() string {
	return fmt.Sprintf("redirect gateway returned %d %s: %s", e.StatusCode, e.Code, e.Message)
}

type HTTPRedirectGateway struct {
	client        *http.Client
	baseURL       string
	authorization string
	webhookSecret string
	isTest        bool
}

func NewHTTPRedirectGateway(cfg config.PaymentConfig) (*HTTPRedirectGateway, error) {
	if cfg.RedirectSecretKey == "" {
		return nil, errRedirectKeyRequired
	}

	// Basic auth with the secret key as user name and an empty password.
	token := base64.StdEncoding.EncodeToString([]byte(cfg.RedirectSecretKey + ":"))

	return &HTTPRedirectGateway{
		client:        &http.Client{Timeout: time.Duration(cfg.GatewayTimeout) * time.Second},
		baseURL:       strings.TrimRight(cfg.RedirectAPIURL, "/"),
		authorization: "Basic " + token,
		webhookSecret: cfg.RedirectWebhookSecret,
		isTest:        cfg.RedirectIsTest,
	}, nil
}

func (g *HTTPRedirectGateway) IsTest() bool {
	return g.isTest
}

func (g *HTTPRedirectGateway) Confirm(ctx context.Context, req RedirectConfirmRequest) (*RedirectConfirmation, error) {
	body, err := json.Marshal(map[string]interface{}{
		"paymentKey": req.PaymentKey,
		"orderId":    req.OrderID,
		"amount":     req.Amount,
	})
	if err != nil {
		return nil, fmt.Errorf("encode confirm request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+confirmPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build confirm request: %w", err)
	}
	httpReq.Header.Set("Authorization", g.authorization)
	httpReq.Header.Set("Content-Type", "application/json")
	// One confirmation per order, even if this request is replayed.
	httpReq.Header.Set("Idempotency-Key", "confirm-"+req.OrderID)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("confirm request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read confirm response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		gatewayErr := &RedirectGatewayError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(payload, gatewayErr); err != nil {
			gatewayErr.Message = strings.TrimSpace(string(payload))
		}
		return nil, gatewayErr
	}

	var confirmation RedirectConfirmation
	if err := json.Unmarshal(payload, &confirmation); err != nil {
		return nil, fmt.Errorf("decode confirm response: %w", err)
	}
	if err := json.Unmarshal(payload, &confirmation.Raw); err != nil {
		return nil, fmt.Errorf("decode confirm response: %w", err)
	}
	return &confirmation, nil
}

// ParseWebhook authenticates a status-change webhook signed with
// hex(HMAC-SHA256(body, webhook secret)).
func (g *HTTPRedirectGateway) ParseWebhook(payload []byte, signature string) (*RedirectEvent, error) {
	if g.webhookSecret == "" {
		return nil, fmt.Errorf("%w: webhook secret not configured", ErrInvalidSignature)
	}
	if !ValidHMACSignature(payload, g.webhookSecret, signature) {
		return nil, ErrInvalidSignature
	}

	var event RedirectEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decode redirect event: %w", err)
	}
	if err := json.Unmarshal(payload, &event.Raw); err != nil {
		return nil, fmt.Errorf("decode redirect event: %w", err)
	}
	return &event, nil
}

// SignHMAC returns hex(HMAC-SHA256(payload, secret)).
func SignHMAC(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidHMACSignature compares header against SignHMAC in constant time.
func ValidHMACSignature(payload []byte, secret, header string) bool {
	if header == "" || secret == "" {
		return false
	}
	expected := SignHMAC(payload, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(header))))
}

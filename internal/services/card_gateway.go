// internal/services/card_gateway.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/javajoker/idea-market/internal/config"
)

var (
	errCardKeyRequired     = errors.New("card gateway secret key is required")
	errCardWebhookRequired = errors.New("card gateway webhook secret is required")
)

// StripeCardGateway talks to Stripe through its own backend instead of the
// package-level stripe.Key, so one instance is built per process and injected.
type StripeCardGateway struct {
	intents       paymentintent.Client
	webhookSecret string
}

func NewStripeCardGateway(cfg config.PaymentConfig, logger *logrus.Logger) (*StripeCardGateway, error) {
	if cfg.CardSecretKey == "" {
		return nil, errCardKeyRequired
	}
	if cfg.CardWebhookSecret == "" {
		return nil, errCardWebhookRequired
	}

	backendConfig := &stripe.BackendConfig{
		HTTPClient: &http.Client{Timeout: time.Duration(cfg.GatewayTimeout) * time.Second},
		// Retries belong to the caller, who owns the idempotency key.
		MaxNetworkRetries: stripe.Int64(0),
	}
	if logger != nil {
		backendConfig.LeveledLogger = logger
	}

	return &StripeCardGateway{
		intents: paymentintent.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig),
			Key: cfg.CardSecretKey,
		},
		webhookSecret: cfg.CardWebhookSecret,
	}, nil
}

func (g *StripeCardGateway) CreateIntent(ctx context.Context, req CardIntentRequest) (*CardIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.intents.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	return &CardIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
	}, nil
}

func (g *StripeCardGateway) ParseWebhook(payload []byte, signature string) (*CardEvent, error) {
	if signature == "" {
		return nil, fmt.Errorf("%w: signature header missing", ErrInvalidSignature)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if event.Data == nil {
		return nil, fmt.Errorf("card event %s has no data", event.ID)
	}

	return decodeCardEvent(event.ID, string(event.Type), event.Data.Raw)
}

func decodeCardEvent(id, eventType string, raw json.RawMessage) (*CardEvent, error) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return nil, fmt.Errorf("decode payment intent: %w", err)
	}
	var object map[string]interface{}
	if err := json.Unmarshal(raw, &object); err != nil {
		return nil, fmt.Errorf("decode event object: %w", err)
	}

	event := &CardEvent{
		ID:       id,
		Type:     eventType,
		IntentID: intent.ID,
		Object:   object,
	}
	if intent.PaymentMethod != nil {
		event.PaymentMethod = intent.PaymentMethod.ID
	}
	return event, nil
}

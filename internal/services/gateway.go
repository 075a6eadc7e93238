// internal/services/gateway.go
package services

import (
	"context"
	"errors"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// Card gateway event types handled by settlement.
const (
	CardEventSucceeded = "payment_intent.succeeded"
	CardEventFailed    = "payment_intent.payment_failed"
	CardEventCanceled  = "payment_intent.canceled"
)

// Redirect gateway payment statuses.
const (
	RedirectStatusDone              = "DONE"
	RedirectStatusCanceled          = "CANCELED"
	RedirectStatusAborted           = "ABORTED"
	RedirectStatusExpired           = "EXPIRED"
	RedirectStatusWaitingForDeposit = "WAITING_FOR_DEPOSIT"
	RedirectStatusPartialCanceled   = "PARTIAL_CANCELED"
)

type CardIntentRequest struct {
	Amount         int64
	Currency       string
	IdempotencyKey string
	Metadata       map[string]string
}

type CardIntent struct {
	ID           string
	ClientSecret string
}

// CardEvent is a verified card gateway webhook.
type CardEvent struct {
	ID            string
	Type          string
	IntentID      string
	PaymentMethod string
	Object        map[string]interface{}
}

// CardGateway issues payment intents and authenticates their webhooks.
type CardGateway interface {
	CreateIntent(ctx context.Context, req CardIntentRequest) (*CardIntent, error)
	// ParseWebhook returns an error wrapping ErrInvalidSignature when the
	// payload cannot be authenticated.
	ParseWebhook(payload []byte, signature string) (*CardEvent, error)
}

type RedirectConfirmRequest struct {
	PaymentKey string
	OrderID    string
	Amount     int64
}

type RedirectConfirmation struct {
	PaymentKey  string                 `json:"paymentKey"`
	OrderID     string                 `json:"orderId"`
	Status      string                 `json:"status"`
	TotalAmount int64                  `json:"totalAmount"`
	ApprovedAt  string                 `json:"approvedAt"`
	Raw         map[string]interface{} `json:"-"`
}

// RedirectEvent is a verified redirect gateway status-change webhook.
type RedirectEvent struct {
	EventType string                 `json:"eventType"`
	CreatedAt string                 `json:"createdAt"`
	Data      RedirectConfirmation   `json:"data"`
	Raw       map[string]interface{} `json:"-"`
}

// RedirectGateway confirms hosted-page payments server to server.
type RedirectGateway interface {
	Confirm(ctx context.Context, req RedirectConfirmRequest) (*RedirectConfirmation, error)
	ParseWebhook(payload []byte, signature string) (*RedirectEvent, error)
}

// internal/models/transaction.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type Transaction struct {
	BaseModel
	IdeaID            uuid.UUID         `json:"idea_id" gorm:"type:uuid;not null;index"`
	BuyerID           uuid.UUID         `json:"buyer_id" gorm:"type:uuid;not null;index"`
	SellerID          uuid.UUID         `json:"seller_id" gorm:"type:uuid;not null;index"`
	GrossAmount       int64             `json:"gross_amount" gorm:"not null"`
	Commission        int64             `json:"commission" gorm:"not null"`
	NetAmount         int64             `json:"net_amount" gorm:"not null"`
	Currency          string            `json:"currency" gorm:"size:3;not null"`
	Gateway           GatewayKind       `json:"gateway" gorm:"type:varchar(20);not null;index"`
	GatewayRef        string            `json:"gateway_ref" gorm:"size:255;not null;uniqueIndex"`
	GatewayPaymentKey *string           `json:"gateway_payment_key,omitempty" gorm:"size:255"`
	IdempotencyKey    string            `json:"-" gorm:"size:255;index"`
	Status            TransactionStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	PaymentDetails    JSONB             `json:"payment_details" gorm:"type:jsonb"`
	ProcessedAt       *time.Time        `json:"processed_at"`
}

// Balanced reports whether gross = commission + net.
func (t *Transaction) Balanced() bool {
	return t.GrossAmount == t.Commission+t.NetAmount
}

// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields. Rows are never soft-deleted.
type BaseModel struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// JSONB is a schema-less document column. Used as an audit trail it is
// append-only: callers Merge new keys in and never replace the whole map.
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported JSONB source type %T", value)
	}

	return json.Unmarshal(bytes, j)
}

// Merge returns a copy of j with every key of other written over it
// (last writer wins per key). j itself is left untouched.
func (j JSONB) Merge(other JSONB) JSONB {
	merged := make(JSONB, len(j)+len(other))
	for k, v := range j {
		merged[k] = v
	}
	for k, v := range other {
		merged[k] = v
	}
	return merged
}

// Enums
type IdeaStatus string

const (
	IdeaStatusDraft    IdeaStatus = "draft"
	IdeaStatusActive   IdeaStatus = "active"
	IdeaStatusInactive IdeaStatus = "inactive"
)

type ValidationStatus string

const (
	ValidationStatusPending  ValidationStatus = "pending"
	ValidationStatusApproved ValidationStatus = "approved"
	ValidationStatusRejected ValidationStatus = "rejected"
)

type GatewayKind string

const (
	GatewayCard     GatewayKind = "card"
	GatewayRedirect GatewayKind = "redirect"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusPaid      TransactionStatus = "paid"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// IsTerminal reports whether no further transition is permitted.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionStatusCompleted, TransactionStatusPaid, TransactionStatusFailed, TransactionStatusCancelled:
		return true
	default:
		return false
	}
}

// IsSuccess reports whether s is one of the terminal success states.
func (s TransactionStatus) IsSuccess() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusPaid
}

// SuccessStatuses lists every state that counts as a finished purchase.
var SuccessStatuses = []TransactionStatus{TransactionStatusCompleted, TransactionStatusPaid}

// internal/models/idea.go
package models

import (
	"github.com/google/uuid"
)

// Idea is owned by the catalog service; settlement only reads it and bumps
// PurchaseCount.
type Idea struct {
	BaseModel
	SellerID         uuid.UUID        `json:"seller_id" gorm:"type:uuid;not null;index"`
	Title            string           `json:"title" gorm:"size:255;not null"`
	Price            int64            `json:"price" gorm:"not null"`
	Status           IdeaStatus       `json:"status" gorm:"type:varchar(20);default:'draft';index"`
	ValidationStatus ValidationStatus `json:"validation_status" gorm:"type:varchar(20);default:'pending';index"`
	PurchaseCount    int64            `json:"purchase_count" gorm:"default:0"`
}

// Purchasable reports whether the idea may be sold right now.
func (i *Idea) Purchasable() bool {
	return i.Status == IdeaStatusActive && i.ValidationStatus == ValidationStatusApproved
}

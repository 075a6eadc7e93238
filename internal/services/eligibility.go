// internal/services/eligibility.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

)

// Denial reasons returned by the eligibility guard.
const (
	DenialIdeaNotFound     = "idea_not_found"
	DenialSelfPurchase     = "self_purchase"
	DenialAlreadyPurchased = "already_purchased"
)

// Approval is what a purchase needs to know about an approved idea.
type Approval struct {
	IdeaID    uuid.UUID
	IdeaTitle string
	SellerID  uuid.UUID
	Price     int64
}

// EligibilityGuard decides whether a buyer may purchase an idea. It never writes.
type EligibilityGuard struct {
	ideas  IdeaStore
	ledger TransactionLedger
}

func NewEligibilityGuard(ideas IdeaStore, ledger TransactionLedger) *EligibilityGuard {
	return &EligibilityGuard{ideas: ideas, ledger: ledger}
}

func (g *EligibilityGuard) Check(ctx context.Context, ideaID, buyerID uuid.UUID) (*Approval, error) {
	idea, err := g.ideas.FindIdea(ctx, ideaID)
	if err != nil {
		if errors.Is(err, ErrIdeaNotFound) {
			return nil, denial(CodeIdeaNotFound, DenialIdeaNotFound, "idea is not available for purchase")
		}
		return nil, WrapError(CodeInternal, err, "failed to load idea")
	}
	if !idea.Purchasable() {
		return nil, denial(CodeIdeaNotFound, DenialIdeaNotFound, "idea is not available for purchase")
	}
	if idea.SellerID == buyerID {
		return nil, denial(CodeSelfPurchase, DenialSelfPurchase, "sellers cannot purchase their own idea")
	}
	if idea.Price <= 0 {
		return nil, WrapError(CodeInternal, fmt.Errorf("idea %s has price %d", idea.ID, idea.Price), "idea price is invalid")
	}

	purchased, err := g.ledger.HasSuccessfulPurchase(ctx, buyerID, ideaID)
	if err != nil {
		return nil, WrapError(CodeInternal, err, "failed to check previous purchases")
	}
	if purchased {
		return nil, denial(CodeAlreadyPurchased, DenialAlreadyPurchased, "idea has already been purchased")
	}

	return &Approval{
		IdeaID:    idea.ID,
		IdeaTitle: idea.Title,
		SellerID:  idea.SellerID,
		Price:     idea.Price,
	}, nil
}

func denial(code ErrorCode, reason, message string) *SettlementError {
	return NewError(code, message).WithDetails(map[string]string{"reason": reason})
}

// DenialReason returns the eligibility reason carried by err, if any.
func DenialReason(err error) string {
	se, ok := AsSettlementError(err)
	if !ok {
		return ""
	}
	if details, ok := se.Details.(map[string]string); ok {
		return details["reason"]
	}
	return ""
}

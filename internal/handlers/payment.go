// internal/handlers/payment.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/javajoker/idea-market/internal/i18n"
	"github.com/javajoker/idea-market/internal/services"
	"github.com/javajoker/idea-market/internal/utils"
)

const idempotencyHeader = "Idempotency-Key"

type CreatePaymentIntentRequest struct {
	IdeaID string `json:"idea_id" validate:"required,uuid"`
}

type CreateRedirectOrderRequest struct {
	IdeaID string `json:"idea_id" validate:"required,uuid"`
}

// ConfirmRedirectPaymentRequest mirrors the query string the hosted payment
// page appends to the success URL.
type ConfirmRedirectPaymentRequest struct {
	PaymentKey string `json:"paymentKey" validate:"required,max=200"`
	OrderID    string `json:"orderId" validate:"required,order_id"`
	Amount     int64  `json:"amount" validate:"required,gt=0"`
}

type PaymentHandler struct {
	settlement *services.SettlementService
}

func NewPaymentHandler(settlement *services.SettlementService) *PaymentHandler {
	return &PaymentHandler{
		settlement: settlement,
	}
}

// POST /payment-intents
func (h *PaymentHandler) CreatePaymentIntent(c *gin.Context) {
	buyerID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req CreatePaymentIntentRequest
	if !bindAndValidate(c, &req) {
		return
	}
	key, ok := idempotencyKey(c)
	if !ok {
		return
	}

	result, err := h.settlement.IssueCardIntent(c.Request.Context(), uuid.MustParse(req.IdeaID), buyerID, key)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":        i18n.T(utils.GetLangFromContext(c), i18n.KeyPaymentIntentCreated),
		"transaction_id": result.TransactionID,
		"client_secret":  result.ClientSecret,
		"amount":         result.Amount,
		"currency":       result.Currency,
	})
}

// POST /payment-orders/redirect
func (h *PaymentHandler) CreateRedirectOrder(c *gin.Context) {
	buyerID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req CreateRedirectOrderRequest
	if !bindAndValidate(c, &req) {
		return
	}
	key, ok := idempotencyKey(c)
	if !ok {
		return
	}

	result, err := h.settlement.IssueRedirectOrder(c.Request.Context(), uuid.MustParse(req.IdeaID), buyerID, key)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":        i18n.T(utils.GetLangFromContext(c), i18n.KeyPaymentOrderCreated),
		"transaction_id": result.TransactionID,
		"order_id":       result.OrderID,
		"order_name":     result.OrderName,
		"amount":         result.Amount,
		"currency":       result.Currency,
	})
}

// POST /payment-confirmations/redirect
func (h *PaymentHandler) ConfirmRedirectPayment(c *gin.Context) {
	var req ConfirmRedirectPaymentRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.settlement.ConfirmRedirectPayment(c.Request.Context(), req.PaymentKey, req.OrderID, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":        i18n.T(utils.GetLangFromContext(c), i18n.KeyPaymentSuccess),
		"transaction_id": result.TransactionID,
		"status":         result.Status,
		"gateway_status": result.GatewayStatus,
		"approved_at":    result.ApprovedAt,
	})
}

func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	userIDStr, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return uuid.Nil, false
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		utils.UnauthorizedResponse(c, i18n.T(utils.GetLangFromContext(c), i18n.KeyAuthInvalidToken))
		return uuid.Nil, false
	}
	return userID, true
}

func idempotencyKey(c *gin.Context) (string, bool) {
	key := c.GetHeader(idempotencyHeader)
	if err := utils.ValidateVar(key, "idempotency_key"); err != nil {
		utils.BadRequestResponse(c, i18n.T(utils.GetLangFromContext(c), i18n.KeyValidationInvalid, idempotencyHeader), nil)
		return "", false
	}
	return key, true
}

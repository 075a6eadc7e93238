// internal/handlers/webhook.go
package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/idea-market/internal/i18n"
	"github.com/javajoker/idea-market/internal/services"
	"github.com/javajoker/idea-market/internal/utils"
)

const (
	cardSignatureHeader     = "Stripe-Signature"
	redirectSignatureHeader = "X-Redirect-Signature"

	// Gateways send small JSON documents; anything larger is not theirs.
	maxWebhookBytes = int64(65536)
)

type WebhookHandler struct {
	settlement *services.SettlementService
}

func NewWebhookHandler(settlement *services.SettlementService) *WebhookHandler {
	return &WebhookHandler{settlement: settlement}
}

// POST /webhooks/card
func (h *WebhookHandler) CardWebhook(c *gin.Context) {
	payload, ok := readWebhookBody(c)
	if !ok {
		return
	}

	ack, err := h.settlement.ConfirmCardEvent(c.Request.Context(), payload, c.GetHeader(cardSignatureHeader))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ack)
}

// POST /webhooks/redirect
func (h *WebhookHandler) RedirectWebhook(c *gin.Context) {
	payload, ok := readWebhookBody(c)
	if !ok {
		return
	}

	ack, err := h.settlement.ConfirmRedirectEvent(c.Request.Context(), payload, c.GetHeader(redirectSignatureHeader))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ack)
}

// readWebhookBody returns the raw body; signatures are computed over the
// exact bytes, so it must not be decoded first.
func readWebhookBody(c *gin.Context) ([]byte, bool) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBytes))
	if err != nil {
		lang := utils.GetLangFromContext(c)
		utils.ErrorResponse(c, http.StatusRequestEntityTooLarge, "BAD_REQUEST", i18n.T(lang, i18n.KeyValidationInvalid, "payload"), nil)
		return nil, false
	}
	return payload, true
}

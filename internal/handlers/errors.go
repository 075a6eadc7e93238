// internal/handlers/errors.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/idea-market/internal/i18n"
	"github.com/javajoker/idea-market/internal/services"
	"github.com/javajoker/idea-market/internal/utils"
)

var messageKeys = map[services.ErrorCode]string{
	services.CodeIdeaNotFound:           i18n.KeyIdeaNotFound,
	services.CodeSelfPurchase:           i18n.KeyIdeaSelfPurchase,
	services.CodeAlreadyPurchased:       i18n.KeyIdeaAlreadyPurchased,
	services.CodeTransactionNotFound:    i18n.KeyTransactionNotFound,
	services.CodeAmountMismatch:         i18n.KeyPaymentAmountMismatch,
	services.CodeInvalidSignature:       i18n.KeyWebhookInvalidSignature,
	services.CodeGateway:                i18n.KeyPaymentGatewayError,
	services.CodePaymentNotApproved:     i18n.KeyPaymentNotApproved,
	services.CodeReconciliationRequired: i18n.KeyPaymentReconciliationRequired,
	services.CodeInternal:               i18n.KeyInternalError,
}

// respondError writes err as the error envelope. Server-side failures are
// attached to the context for the request logger.
func respondError(c *gin.Context, err error) {
	lang := utils.GetLangFromContext(c)

	se, ok := services.AsSettlementError(err)
	if !ok {
		_ = c.Error(err)
		utils.InternalErrorResponse(c, "")
		return
	}
	if se.Status >= 500 {
		_ = c.Error(err)
	}

	message := se.Message
	if key, ok := messageKeys[se.Code]; ok {
		message = i18n.T(lang, key)
	}
	utils.ErrorResponse(c, se.Status, string(se.Code), message, se.Details)
}

func bindAndValidate(c *gin.Context, req interface{}) bool {
	lang := utils.GetLangFromContext(c)
	if err := c.ShouldBindJSON(req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return false
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return false
	}
	return true
}

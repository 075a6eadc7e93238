// internal/handlers/transaction.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/javajoker/idea-market/internal/i18n"
	"github.com/javajoker/idea-market/internal/models"
	"github.com/javajoker/idea-market/internal/services"
	"github.com/javajoker/idea-market/internal/utils"
)

type TransactionHandler struct {
	settlement *services.SettlementService
}

func NewTransactionHandler(settlement *services.SettlementService) *TransactionHandler {
	return &TransactionHandler{settlement: settlement}
}

// GET /transactions
func (h *TransactionHandler) ListTransactions(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	if params.Status != "" && !validStatus(models.TransactionStatus(params.Status)) {
		utils.BadRequestResponse(c, i18n.T(utils.GetLangFromContext(c), i18n.KeyValidationInvalid, "status"), nil)
		return
	}

	transactions, total, err := h.settlement.ListTransactions(c.Request.Context(), userID, params)
	if err != nil {
		respondError(c, err)
		return
	}

	result := utils.CreatePaginationResult(transactions, total, params)
	utils.PaginatedResponse(c, result)
}

// GET /transactions/:id
func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.NotFoundResponse(c, i18n.KeyTransactionNotFound)
		return
	}

	tx, err := h.settlement.GetTransaction(c.Request.Context(), id, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, tx)
}

func validStatus(s models.TransactionStatus) bool {
	return s == models.TransactionStatusPending || s.IsTerminal()
}

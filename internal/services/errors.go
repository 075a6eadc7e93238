// internal/services/errors.go
package services

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	CodeValidation             ErrorCode = "VALIDATION_ERROR"
	CodeIdeaNotFound           ErrorCode = "IDEA_NOT_FOUND"
	CodeSelfPurchase           ErrorCode = "SELF_PURCHASE"
	CodeAlreadyPurchased       ErrorCode = "ALREADY_PURCHASED"
	CodeTransactionNotFound    ErrorCode = "TRANSACTION_NOT_FOUND"
	CodeAmountMismatch         ErrorCode = "AMOUNT_MISMATCH"
	CodeInvalidSignature       ErrorCode = "INVALID_SIGNATURE"
	CodeGateway                ErrorCode = "GATEWAY_ERROR"
	CodePaymentNotApproved     ErrorCode = "PAYMENT_NOT_APPROVED"
	CodeReconciliationRequired ErrorCode = "RECONCILIATION_REQUIRED"
	CodeInternal               ErrorCode = "INTERNAL_ERROR"
)

var statusByCode = map[ErrorCode]int{
	CodeValidation:             http.StatusBadRequest,
	CodeIdeaNotFound:           http.StatusNotFound,
	CodeSelfPurchase:           http.StatusBadRequest,
	CodeAlreadyPurchased:       http.StatusConflict,
	CodeTransactionNotFound:    http.StatusNotFound,
	CodeAmountMismatch:         http.StatusBadRequest,
	CodeInvalidSignature:       http.StatusBadRequest,
	CodeGateway:                http.StatusInternalServerError,
	CodePaymentNotApproved:     http.StatusBadRequest,
	CodeReconciliationRequired: http.StatusInternalServerError,
	CodeInternal:               http.StatusInternalServerError,
}

// SettlementError carries the HTTP mapping for a settlement failure.
type SettlementError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details interface{}
	cause   error
}

func NewError(code ErrorCode, message string) *SettlementError {
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	return &SettlementError{Code: code, Status: status, Message: message}
}

func WrapError(code ErrorCode, err error, message string) *SettlementError {
	e := NewError(code, message)
	e.cause = err
	return e
}

func (e *SettlementError) WithStatus(status int) *SettlementError {
	e.Status = status
	return e
}

func (e *SettlementError) WithDetails(details interface{}) *SettlementError {
	e.Details = details
	return e
}

func (e *SettlementError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *SettlementError) Unwrap() error {
	return e.cause
}

// AsSettlementError extracts a *SettlementError from an error chain.
func AsSettlementError(err error) (*SettlementError, bool) {
	var se *SettlementError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// ErrorCodeOf returns the code of err, or CodeInternal for foreign errors.
func ErrorCodeOf(err error) ErrorCode {
	if se, ok := AsSettlementError(err); ok {
		return se.Code
	}
	return CodeInternal
}

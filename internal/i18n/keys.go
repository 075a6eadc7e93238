// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Authentication
	KeyAuthRequired     = "auth.required"
	KeyAuthInvalidToken = "auth.invalid_token"
	KeyAuthTokenExpired = "auth.token_expired"

	// Validation
	KeyValidationRequired = "validation.required"
	KeyValidationInvalid  = "validation.invalid"

	// Ideas
	KeyIdeaNotFound         = "idea.not_found"
	KeyIdeaSelfPurchase     = "idea.self_purchase"
	KeyIdeaAlreadyPurchased = "idea.already_purchased"

	// Transactions
	KeyTransactionNotFound = "transaction.not_found"

	// Payments
	KeyPaymentIntentCreated          = "payment.intent_created"
	KeyPaymentOrderCreated           = "payment.order_created"
	KeyPaymentSuccess                = "payment.success"
	KeyPaymentNotApproved            = "payment.not_approved"
	KeyPaymentAmountMismatch         = "payment.amount_mismatch"
	KeyPaymentGatewayError           = "payment.gateway_error"
	KeyPaymentReconciliationRequired = "payment.reconciliation_required"

	// Webhooks
	KeyWebhookInvalidSignature = "webhook.invalid_signature"

	// Generic
	KeyInternalError   = "error.internal"
	KeyRateLimited     = "error.rate_limited"
	KeyServiceNotFound = "error.not_found"
)

// internal/services/settlement_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/idea-market/internal/metrics"
	"github.com/javajoker/idea-market/internal/models"
	"github.com/javajoker/idea-market/internal/utils"
)

// Webhook acknowledgement outcomes.
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
)

const (
	// settleTimeout bounds a confirmation once it has been detached from the
	// caller's context.
	settleTimeout = 30 * time.Second
	sideTimeout   = 10 * time.Second
)

var errGatewayNotConfigured = errors.New("gateway not configured")

var cardEventTargets = map[string]models.TransactionStatus{
	CardEventSucceeded: models.TransactionStatusCompleted,
	CardEventFailed:    models.TransactionStatusFailed,
	CardEventCanceled:  models.TransactionStatusCancelled,
}

var redirectStatusTargets = map[string]models.TransactionStatus{
	RedirectStatusDone:     models.TransactionStatusPaid,
	RedirectStatusCanceled: models.TransactionStatusCancelled,
	RedirectStatusAborted:  models.TransactionStatusCancelled,
	RedirectStatusExpired:  models.TransactionStatusCancelled,
}

type SettlementParams struct {
	Ledger     TransactionLedger
	Ideas      IdeaStore
	Calculator *CommissionCalculator
	Card       CardGateway
	Redirect   RedirectGateway
	Notifier   NotificationDispatcher
	Archive    WebhookArchive
	Guard      WebhookGuard
	Metrics    *metrics.Recorder
	Currency   string
	Logger     *logrus.Logger
}

// SettlementService drives a purchase from eligibility through gateway
// confirmation to a terminal ledger state.
type SettlementService struct {
	ledger      TransactionLedger
	ideas       IdeaStore
	eligibility *EligibilityGuard
	calculator  *CommissionCalculator
	card        CardGateway
	redirect    RedirectGateway
	notifier    NotificationDispatcher
	archive     WebhookArchive
	guard       WebhookGuard
	metrics     *metrics.Recorder
	currency    string
	log         *logrus.Logger

	newOrderID func() string
	now        func() time.Time
	pending    sync.WaitGroup
}

func NewSettlementService(p SettlementParams) (*SettlementService, error) {
	if p.Ledger == nil {
		return nil, errors.New("transaction ledger is required")
	}
	if p.Ideas == nil {
		return nil, errors.New("idea store is required")
	}

	s := &SettlementService{
		ledger:      p.Ledger,
		ideas:       p.Ideas,
		eligibility: NewEligibilityGuard(p.Ideas, p.Ledger),
		calculator:  p.Calculator,
		card:        p.Card,
		redirect:    p.Redirect,
		notifier:    p.Notifier,
		archive:     p.Archive,
		guard:       p.Guard,
		metrics:     p.Metrics,
		currency:    p.Currency,
		log:         p.Logger,
		newOrderID:  utils.NewOrderID,
		now:         time.Now,
	}
	if s.calculator == nil {
		calc, err := NewCommissionCalculator(DefaultPlatformRate)
		if err != nil {
			return nil, err
		}
		s.calculator = calc
	}
	if s.notifier == nil {
		s.notifier = LogNotificationService{}
	}
	if s.archive == nil {
		s.archive = noopArchive{}
	}
	if s.guard == nil {
		s.guard = noopGuard{}
	}
	if s.currency == "" {
		s.currency = "krw"
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	return s, nil
}

type CardIntentResult struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	ClientSecret  string    `json:"client_secret"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
}

type RedirectOrderResult struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	OrderID       string    `json:"order_id"`
	OrderName     string    `json:"order_name"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
}

type RedirectConfirmResult struct {
	TransactionID uuid.UUID                `json:"transaction_id"`
	Status        models.TransactionStatus `json:"status"`
	GatewayStatus string                   `json:"gateway_status,omitempty"`
	ApprovedAt    string                   `json:"approved_at,omitempty"`
}

// WebhookAck is returned to the gateway for every authenticated event.
type WebhookAck struct {
	Received      bool                     `json:"received"`
	Outcome       string                   `json:"outcome"`
	TransactionID *uuid.UUID               `json:"transaction_id,omitempty"`
	Status        models.TransactionStatus `json:"status,omitempty"`
}

// IssueCardIntent creates a card payment intent for an eligible purchase and
// records the pending transaction. Nothing is written if the gateway call
// fails. Reusing an idempotency key returns the transaction already recorded
// for it.
func (s *SettlementService) IssueCardIntent(ctx context.Context, ideaID, buyerID uuid.UUID, idempotencyKey string) (*CardIntentResult, error) {
	if s.card == nil {
		return nil, WrapError(CodeGateway, errGatewayNotConfigured, "card payments are not available")
	}

	approval, err := s.eligibility.Check(ctx, ideaID, buyerID)
	if err != nil {
		return nil, err
	}
	commission, net := s.calculator.Split(approval.Price)
	if idempotencyKey == "" {
		idempotencyKey = utils.NewIdempotencyKey("intent")
	}

	entry := s.log.WithFields(logrus.Fields{
		"gateway":  models.GatewayCard,
		"idea_id":  ideaID,
		"buyer_id": buyerID,
	})

	started := time.Now()
	intent, err := s.card.CreateIntent(ctx, CardIntentRequest{
		Amount:         approval.Price,
		Currency:       s.currency,
		IdempotencyKey: idempotencyKey,
		Metadata: map[string]string{
			"idea_id":   approval.IdeaID.String(),
			"buyer_id":  buyerID.String(),
			"seller_id": approval.SellerID.String(),
		},
	})
	s.metrics.ObserveGateway(string(models.GatewayCard), "create_intent", started)
	if err != nil {
		entry.WithError(err).Error("Card intent creation failed")
		return nil, WrapError(CodeGateway, err, "failed to create payment intent")
	}

	if existing, ok, err := s.replay(ctx, models.GatewayCard, intent.ID, ideaID, buyerID); err != nil {
		return nil, err
	} else if ok {
		entry.WithField("transaction_id", existing.ID).Info("Replayed card intent")
		return &CardIntentResult{
			TransactionID: existing.ID,
			ClientSecret:  intent.ClientSecret,
			Amount:        existing.GrossAmount,
			Currency:      existing.Currency,
		}, nil
	}

	tx := s.pendingTransaction(approval, buyerID, commission, net, models.GatewayCard, intent.ID, idempotencyKey)
	tx.PaymentDetails = models.JSONB{
		"intent": map[string]interface{}{"id": intent.ID, "created_at": s.now().UTC()},
	}
	if err := s.record(ctx, tx); err != nil {
		// A concurrent request with the same key may have recorded it first.
		if existing, ok, _ := s.replay(ctx, models.GatewayCard, intent.ID, ideaID, buyerID); ok {
			tx = existing
		} else {
			entry.WithError(err).WithField("intent_id", intent.ID).Error("Failed to record pending card transaction")
			return nil, err
		}
	}

	entry.WithFields(logrus.Fields{
		"transaction_id": tx.ID,
		"intent_id":      intent.ID,
		"amount":         tx.GrossAmount,
	}).Info("Card payment intent issued")

	return &CardIntentResult{
		TransactionID: tx.ID,
		ClientSecret:  intent.ClientSecret,
		Amount:        tx.GrossAmount,
		Currency:      tx.Currency,
	}, nil
}

// IssueRedirectOrder records a pending transaction under a fresh order id
// that the client hands to the hosted payment page.
func (s *SettlementService) IssueRedirectOrder(ctx context.Context, ideaID, buyerID uuid.UUID, idempotencyKey string) (*RedirectOrderResult, error) {
	if s.redirect == nil {
		return nil, WrapError(CodeGateway, errGatewayNotConfigured, "redirect payments are not available")
	}

	approval, err := s.eligibility.Check(ctx, ideaID, buyerID)
	if err != nil {
		return nil, err
	}

	if idempotencyKey != "" {
		existing, err := s.ledger.FindByIdempotencyKey(ctx, models.GatewayRedirect, idempotencyKey)
		switch {
		case err == nil:
			if err := replayable(existing, ideaID, buyerID); err != nil {
				return nil, err
			}
			return redirectOrderResult(existing, approval.IdeaTitle), nil
		case !errors.Is(err, ErrTransactionNotFound):
			return nil, WrapError(CodeInternal, err, "failed to look up transaction")
		}
	}

	commission, net := s.calculator.Split(approval.Price)
	orderID := s.newOrderID()
	tx := s.pendingTransaction(approval, buyerID, commission, net, models.GatewayRedirect, orderID, idempotencyKey)
	tx.PaymentDetails = models.JSONB{
		"order": map[string]interface{}{"id": orderID, "created_at": s.now().UTC()},
	}
	if err := s.record(ctx, tx); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"gateway":        models.GatewayRedirect,
		"transaction_id": tx.ID,
		"order_id":       orderID,
		"amount":         tx.GrossAmount,
	}).Info("Redirect payment order issued")

	return redirectOrderResult(tx, approval.IdeaTitle), nil
}

// ConfirmCardEvent authenticates and applies a card gateway webhook.
func (s *SettlementService) ConfirmCardEvent(ctx context.Context, payload []byte, signature string) (*WebhookAck, error) {
	gateway := string(models.GatewayCard)
	if s.card == nil {
		return nil, WrapError(CodeGateway, errGatewayNotConfigured, "card payments are not available")
	}

	event, err := s.card.ParseWebhook(payload, signature)
	if err != nil {
		return nil, s.rejectWebhook(gateway, err)
	}

	target, ok := cardEventTargets[event.Type]
	if !ok {
		s.log.WithFields(logrus.Fields{"event_id": event.ID, "event_type": event.Type}).
			Debug("Ignoring card event type")
		s.metrics.WebhookEvent(gateway, OutcomeIgnored)
		return &WebhookAck{Received: true, Outcome: OutcomeIgnored}, nil
	}

	ctx, cancel := detach(ctx)
	defer cancel()

	return s.guarded(ctx, models.GatewayCard, event.IntentID, event.ID, func() (*WebhookAck, error) {
		s.archiveAsync(gateway, event.ID, payload)
		return s.applyCardEvent(ctx, event, target)
	})
}

func (s *SettlementService) applyCardEvent(ctx context.Context, event *CardEvent, target models.TransactionStatus) (*WebhookAck, error) {
	entry := s.log.WithFields(logrus.Fields{
		"gateway":    models.GatewayCard,
		"event_id":   event.ID,
		"event_type": event.Type,
		"intent_id":  event.IntentID,
	})

	tx, err := s.ledger.FindByGatewayRef(ctx, models.GatewayCard, event.IntentID)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			entry.Error("No transaction recorded for card intent")
			return &WebhookAck{Received: true, Outcome: OutcomeIgnored}, nil
		}
		return nil, WrapError(CodeInternal, err, "failed to load transaction")
	}

	var paymentKey *string
	if target.IsSuccess() && event.PaymentMethod != "" {
		pm := event.PaymentMethod
		paymentKey = &pm
	}
	audit := models.JSONB{
		event.Type: map[string]interface{}{
			"event_id":    event.ID,
			"object":      event.Object,
			"received_at": s.now().UTC(),
		},
	}

	current, applied, err := s.transition(ctx, tx, target, paymentKey, audit)
	if err != nil {
		return nil, err
	}
	return webhookAck(current, applied), nil
}

// ConfirmRedirectPayment confirms a hosted-page payment with the gateway and
// settles its order. A terminal order returns its stored state without
// contacting the gateway.
func (s *SettlementService) ConfirmRedirectPayment(ctx context.Context, paymentKey, orderID string, amount int64) (*RedirectConfirmResult, error) {
	gateway := string(models.GatewayRedirect)
	if s.redirect == nil {
		return nil, WrapError(CodeGateway, errGatewayNotConfigured, "redirect payments are not available")
	}
	if paymentKey == "" || orderID == "" || amount <= 0 {
		return nil, NewError(CodeValidation, "payment key, order id and a positive amount are required")
	}

	tx, err := s.ledger.FindByGatewayRef(ctx, models.GatewayRedirect, orderID)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			return nil, NewError(CodeTransactionNotFound, "no payment was issued for this order")
		}
		return nil, WrapError(CodeInternal, err, "failed to load transaction")
	}

	entry := s.log.WithFields(logrus.Fields{
		"gateway":        gateway,
		"transaction_id": tx.ID,
		"order_id":       orderID,
	})

	if tx.Status.IsTerminal() {
		entry.WithField("state", tx.Status).Info("Order already settled, returning stored state")
		return settledResult(tx)
	}
	if amount != tx.GrossAmount {
		entry.WithFields(logrus.Fields{"amount": amount, "expected": tx.GrossAmount}).
			Warn("Confirm amount does not match order")
		return nil, NewError(CodeAmountMismatch, "amount does not match the order").
			WithDetails(map[string]int64{"amount": amount})
	}

	ctx, cancel := detach(ctx)
	defer cancel()

	started := time.Now()
	confirmation, err := s.redirect.Confirm(ctx, RedirectConfirmRequest{
		PaymentKey: paymentKey,
		OrderID:    orderID,
		Amount:     amount,
	})
	s.metrics.ObserveGateway(gateway, "confirm", started)
	if err != nil {
		entry.WithError(err).Error("Redirect confirm failed")
		failure := map[string]interface{}{
			"message":     err.Error(),
			"payment_key": paymentKey,
			"at":          s.now().UTC(),
		}
		var gwErr *RedirectGatewayError
		if errors.As(err, &gwErr) {
			failure["code"] = gwErr.Code
			failure["status_code"] = gwErr.StatusCode
		}
		if _, _, tErr := s.transition(ctx, tx, models.TransactionStatusCancelled, nil, models.JSONB{"confirm_error": failure}); tErr != nil {
			entry.WithError(tErr).Error("Failed to cancel order after confirm error")
		}
		return nil, WrapError(CodeGateway, err, "payment confirmation failed").WithStatus(http.StatusBadGateway)
	}

	audit := models.JSONB{"confirm": confirmation.Raw}

	if confirmation.Status != RedirectStatusDone {
		entry.WithField("gateway_status", confirmation.Status).Warn("Redirect payment not approved")
		if _, _, err := s.transition(ctx, tx, models.TransactionStatusCancelled, nil, audit); err != nil {
			return nil, err
		}
		return nil, NewError(CodePaymentNotApproved, fmt.Sprintf("payment was not approved (status %s)", confirmation.Status)).
			WithDetails(map[string]string{"gateway_status": confirmation.Status})
	}

	key := confirmation.PaymentKey
	if key == "" {
		key = paymentKey
	}
	current, _, err := s.transition(ctx, tx, models.TransactionStatusPaid, &key, audit)
	if err != nil {
		return nil, err
	}
	if !current.Status.IsSuccess() {
		return settledResult(current)
	}

	return &RedirectConfirmResult{
		TransactionID: current.ID,
		Status:        current.Status,
		GatewayStatus: confirmation.Status,
		ApprovedAt:    confirmation.ApprovedAt,
	}, nil
}

// ConfirmRedirectEvent applies a signed redirect gateway status webhook. It
// covers orders whose buyer never returned to the success page.
func (s *SettlementService) ConfirmRedirectEvent(ctx context.Context, payload []byte, signature string) (*WebhookAck, error) {
	gateway := string(models.GatewayRedirect)
	if s.redirect == nil {
		return nil, WrapError(CodeGateway, errGatewayNotConfigured, "redirect payments are not available")
	}

	event, err := s.redirect.ParseWebhook(payload, signature)
	if err != nil {
		return nil, s.rejectWebhook(gateway, err)
	}
	data := event.Data
	if data.OrderID == "" {
		s.metrics.WebhookEvent(gateway, OutcomeRejected)
		return nil, NewError(CodeValidation, "webhook carries no order id")
	}

	target, ok := redirectStatusTargets[data.Status]
	if !ok {
		s.metrics.WebhookEvent(gateway, OutcomeIgnored)
		return &WebhookAck{Received: true, Outcome: OutcomeIgnored}, nil
	}

	eventID := data.OrderID + ":" + data.Status

	ctx, cancel := detach(ctx)
	defer cancel()

	return s.guarded(ctx, models.GatewayRedirect, data.OrderID, eventID, func() (*WebhookAck, error) {
		s.archiveAsync(gateway, eventID, payload)
		return s.applyRedirectEvent(ctx, event, target)
	})
}

func (s *SettlementService) applyRedirectEvent(ctx context.Context, event *RedirectEvent, target models.TransactionStatus) (*WebhookAck, error) {
	data := event.Data
	entry := s.log.WithFields(logrus.Fields{
		"gateway":        models.GatewayRedirect,
		"order_id":       data.OrderID,
		"gateway_status": data.Status,
	})

	tx, err := s.ledger.FindByGatewayRef(ctx, models.GatewayRedirect, data.OrderID)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			entry.Error("No transaction recorded for redirect order")
			return &WebhookAck{Received: true, Outcome: OutcomeIgnored}, nil
		}
		return nil, WrapError(CodeInternal, err, "failed to load transaction")
	}

	if target.IsSuccess() && data.TotalAmount != tx.GrossAmount {
		s.metrics.ReconciliationRequired(string(models.GatewayRedirect))
		entry.WithFields(logrus.Fields{
			"transaction_id": tx.ID,
			"amount":         data.TotalAmount,
			"expected":       tx.GrossAmount,
		}).Error("Webhook amount does not match order; manual reconciliation required")
		return &WebhookAck{Received: true, Outcome: OutcomeIgnored, TransactionID: &tx.ID, Status: tx.Status}, nil
	}

	var paymentKey *string
	if target.IsSuccess() && data.PaymentKey != "" {
		pk := data.PaymentKey
		paymentKey = &pk
	}
	audit := models.JSONB{"webhook_" + data.Status: event.Raw}

	current, applied, err := s.transition(ctx, tx, target, paymentKey, audit)
	if err != nil {
		return nil, err
	}
	return webhookAck(current, applied), nil
}

// GetTransaction returns a transaction visible to userID as buyer or seller.
func (s *SettlementService) GetTransaction(ctx context.Context, id, userID uuid.UUID) (*models.Transaction, error) {
	tx, err := s.ledger.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			return nil, NewError(CodeTransactionNotFound, "transaction not found")
		}
		return nil, WrapError(CodeInternal, err, "failed to load transaction")
	}
	if tx.BuyerID != userID && tx.SellerID != userID {
		return nil, NewError(CodeTransactionNotFound, "transaction not found")
	}
	return tx, nil
}

func (s *SettlementService) ListTransactions(ctx context.Context, userID uuid.UUID, params utils.PaginationParams) ([]models.Transaction, int64, error) {
	txs, total, err := s.ledger.ListForUser(ctx, userID, params)
	if err != nil {
		return nil, 0, WrapError(CodeInternal, err, "failed to list transactions")
	}
	return txs, total, nil
}

// Drain blocks until every in-flight notification and archive upload is done.
func (s *SettlementService) Drain() {
	s.pending.Wait()
}

// transition moves tx out of pending. It returns the row as stored afterwards
// and whether this call performed the change; success side effects run only
// for the caller that did.
func (s *SettlementService) transition(ctx context.Context, tx *models.Transaction, target models.TransactionStatus, paymentKey *string, audit models.JSONB) (*models.Transaction, bool, error) {
	entry := s.log.WithFields(logrus.Fields{
		"gateway":        tx.Gateway,
		"transaction_id": tx.ID,
		"gateway_ref":    tx.GatewayRef,
		"target":         target,
	})

	if tx.Status.IsTerminal() {
		entry.WithField("state", tx.Status).Info("Transaction already settled, ignoring confirmation")
		return tx, false, nil
	}

	details := tx.PaymentDetails.Merge(audit)
	applied, err := s.ledger.Transition(ctx, tx.ID, StateChange{
		To:         target,
		PaymentKey: paymentKey,
		Details:    details,
	})
	if err != nil {
		if target.IsSuccess() {
			s.metrics.ReconciliationRequired(string(tx.Gateway))
			entry.WithError(err).Error("Payment captured but ledger update failed; manual reconciliation required")
			return nil, false, WrapError(CodeReconciliationRequired, err,
				"payment was captured but could not be recorded; manual reconciliation is required").
				WithDetails(map[string]string{
					"transaction_id": tx.ID.String(),
					"gateway_ref":    tx.GatewayRef,
				})
		}
		entry.WithError(err).Error("Failed to update transaction")
		return nil, false, WrapError(CodeInternal, err, "failed to update transaction")
	}

	if !applied {
		current, err := s.ledger.FindByID(ctx, tx.ID)
		if err != nil {
			return nil, false, WrapError(CodeInternal, err, "failed to reload transaction")
		}
		if target.IsSuccess() && !current.Status.IsSuccess() {
			s.metrics.ReconciliationRequired(string(tx.Gateway))
			entry.WithField("state", current.Status).
				Error("Gateway reported success for a transaction settled as unsuccessful; manual reconciliation required")
		} else {
			entry.WithField("state", current.Status).Info("Transaction settled by a concurrent confirmation")
		}
		return current, false, nil
	}

	tx.Status = target
	tx.PaymentDetails = details
	if paymentKey != nil {
		tx.GatewayPaymentKey = paymentKey
	}
	s.metrics.Transition(string(tx.Gateway), string(target))
	entry.Info("Transaction settled")

	if target.IsSuccess() {
		s.afterSuccess(ctx, tx)
	}
	return tx, true, nil
}

// afterSuccess runs the side effects of a purchase. Neither can undo it.
func (s *SettlementService) afterSuccess(ctx context.Context, tx *models.Transaction) {
	if err := s.ideas.IncrementPurchaseCount(ctx, tx.IdeaID); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"transaction_id": tx.ID,
			"idea_id":        tx.IdeaID,
		}).Warn("Failed to increment purchase count")
	}
	s.dispatchPurchase(*tx)
}

func (s *SettlementService) dispatchPurchase(tx models.Transaction) {
	purchasedAt := s.now().UTC()

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), sideTimeout)
		defer cancel()

		notification := PurchaseNotification{
			TransactionID: tx.ID,
			IdeaID:        tx.IdeaID,
			BuyerID:       tx.BuyerID,
			SellerID:      tx.SellerID,
			Amount:        tx.GrossAmount,
			Currency:      tx.Currency,
			Gateway:       string(tx.Gateway),
			PurchasedAt:   purchasedAt,
		}
		if idea, err := s.ideas.FindIdea(ctx, tx.IdeaID); err == nil {
			notification.IdeaTitle = idea.Title
		}

		entry := s.log.WithField("transaction_id", tx.ID)
		delivered, err := s.notifier.NotifyPurchase(ctx, notification)
		if err != nil {
			entry.WithError(err).Warn("Failed to send purchase notification")
			return
		}
		entry.WithField("delivered", delivered).Debug("Purchase notification dispatched")
	}()
}

func (s *SettlementService) archiveAsync(gateway, eventID string, payload []byte) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), sideTimeout)
		defer cancel()

		if err := s.archive.Archive(ctx, gateway, eventID, payload); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"gateway":  gateway,
				"event_id": eventID,
			}).Warn("Failed to archive webhook payload")
		}
	}()
}

// guarded skips apply for a redelivered event whose transaction is already
// settled. A marked event whose transaction is still pending is applied again,
// since the mark may outlive a crash or a failed release. A failed apply
// releases the mark so the gateway's redelivery is processed.
func (s *SettlementService) guarded(ctx context.Context, kind models.GatewayKind, ref, eventID string, apply func() (*WebhookAck, error)) (*WebhookAck, error) {
	gateway := string(kind)
	entry := s.log.WithFields(logrus.Fields{"gateway": gateway, "event_id": eventID})

	seen, err := s.guard.CheckAndMark(ctx, gateway, eventID)
	if err != nil {
		// The ledger's conditional write still rejects a second transition.
		entry.WithError(err).Warn("Webhook guard unavailable")
	} else if seen {
		tx, lookupErr := s.ledger.FindByGatewayRef(ctx, kind, ref)
		if lookupErr == nil && tx.Status.IsTerminal() {
			entry.Info("Duplicate webhook delivery")
			s.metrics.WebhookEvent(gateway, OutcomeDuplicate)
			return webhookAck(tx, false), nil
		}
		entry.Warn("Redelivered webhook has no settled transaction, applying again")
	}

	ack, err := apply()
	if err != nil {
		if relErr := s.guard.Release(ctx, gateway, eventID); relErr != nil {
			entry.WithError(relErr).Warn("Failed to release webhook guard")
		}
		s.metrics.WebhookEvent(gateway, OutcomeError)
		return nil, err
	}
	s.metrics.WebhookEvent(gateway, ack.Outcome)
	return ack, nil
}

func (s *SettlementService) rejectWebhook(gateway string, err error) error {
	s.metrics.WebhookEvent(gateway, OutcomeRejected)
	s.log.WithError(err).WithField("gateway", gateway).Warn("Rejected webhook")
	if errors.Is(err, ErrInvalidSignature) {
		return WrapError(CodeInvalidSignature, err, "webhook signature verification failed")
	}
	return WrapError(CodeValidation, err, "malformed webhook payload")
}

// replay finds the transaction already recorded under ref for the same
// purchase. A ref recorded for a different purchase is a validation error.
func (s *SettlementService) replay(ctx context.Context, gateway models.GatewayKind, ref string, ideaID, buyerID uuid.UUID) (*models.Transaction, bool, error) {
	existing, err := s.ledger.FindByGatewayRef(ctx, gateway, ref)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			return nil, false, nil
		}
		return nil, false, WrapError(CodeInternal, err, "failed to look up transaction")
	}
	if err := replayable(existing, ideaID, buyerID); err != nil {
		return nil, false, err
	}
	return existing, true, nil
}

// replayable reports whether a recorded attempt may be handed back for a
// reused idempotency key.
func replayable(existing *models.Transaction, ideaID, buyerID uuid.UUID) error {
	if existing.BuyerID != buyerID || existing.IdeaID != ideaID {
		return NewError(CodeValidation, "idempotency key was already used for a different purchase")
	}
	if existing.Status.IsTerminal() && !existing.Status.IsSuccess() {
		return NewError(CodeValidation, "idempotency key belongs to a payment that did not complete; retry with a new key").
			WithDetails(map[string]string{"status": string(existing.Status)})
	}
	return nil
}

func (s *SettlementService) pendingTransaction(approval *Approval, buyerID uuid.UUID, commission, net int64, gateway models.GatewayKind, ref, idempotencyKey string) *models.Transaction {
	return &models.Transaction{
		IdeaID:         approval.IdeaID,
		BuyerID:        buyerID,
		SellerID:       approval.SellerID,
		GrossAmount:    approval.Price,
		Commission:     commission,
		NetAmount:      net,
		Currency:       s.currency,
		Gateway:        gateway,
		GatewayRef:     ref,
		IdempotencyKey: idempotencyKey,
		Status:         models.TransactionStatusPending,
	}
}

func (s *SettlementService) record(ctx context.Context, tx *models.Transaction) error {
	if err := s.ledger.Create(ctx, tx); err != nil {
		return WrapError(CodeInternal, err, "failed to record transaction")
	}
	s.metrics.Transition(string(tx.Gateway), string(tx.Status))
	return nil
}

func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
}

func settledResult(tx *models.Transaction) (*RedirectConfirmResult, error) {
	if tx.Status.IsSuccess() {
		return &RedirectConfirmResult{TransactionID: tx.ID, Status: tx.Status}, nil
	}
	return nil, NewError(CodePaymentNotApproved, fmt.Sprintf("payment was not approved (status %s)", tx.Status)).
		WithDetails(map[string]string{"status": string(tx.Status)})
}

func webhookAck(tx *models.Transaction, applied bool) *WebhookAck {
	ack := &WebhookAck{
		Received:      true,
		Outcome:       OutcomeApplied,
		TransactionID: &tx.ID,
		Status:        tx.Status,
	}
	if !applied {
		ack.Outcome = OutcomeDuplicate
	}
	return ack
}

func redirectOrderResult(tx *models.Transaction, title string) *RedirectOrderResult {
	return &RedirectOrderResult{
		TransactionID: tx.ID,
		OrderID:       tx.GatewayRef,
		OrderName:     title,
		Amount:        tx.GrossAmount,
		Currency:      tx.Currency,
	}
}

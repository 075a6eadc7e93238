// internal/services/ledger.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/javajoker/idea-market/internal/models"
	"github.com/javajoker/idea-market/internal/utils"
)

var ErrTransactionNotFound = errors.New("transaction not found")

// StateChange describes a pending -> terminal transition.
type StateChange struct {
	To         models.TransactionStatus
	PaymentKey *string
	// Details is the complete, already merged audit blob to persist.
	Details models.JSONB
}

// TransactionLedger is the persisted record of every purchase attempt.
type TransactionLedger interface {
	Create(ctx context.Context, tx *models.Transaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	FindByGatewayRef(ctx context.Context, gateway models.GatewayKind, ref string) (*models.Transaction, error)
	FindByIdempotencyKey(ctx context.Context, gateway models.GatewayKind, key string) (*models.Transaction, error)
	HasSuccessfulPurchase(ctx context.Context, buyerID, ideaID uuid.UUID) (bool, error)
	// Transition applies change only if the row is still pending. It reports
	// false, with no error, when another writer got there first.
	Transition(ctx context.Context, id uuid.UUID, change StateChange) (bool, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params utils.PaginationParams) ([]models.Transaction, int64, error)
}

type GormLedger struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{db: db, now: time.Now}
}

func (l *GormLedger) Create(ctx context.Context, tx *models.Transaction) error {
	if tx.BuyerID == tx.SellerID {
		return errors.New("buyer and seller must differ")
	}
	if !tx.Balanced() {
		return fmt.Errorf("unbalanced transaction: %d != %d + %d", tx.GrossAmount, tx.Commission, tx.NetAmount)
	}
	if err := l.db.WithContext(ctx).Create(tx).Error; err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (l *GormLedger) FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var tx models.Transaction
	if err := l.db.WithContext(ctx).First(&tx, "id = ?", id).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &tx, nil
}

func (l *GormLedger) FindByGatewayRef(ctx context.Context, gateway models.GatewayKind, ref string) (*models.Transaction, error) {
	var tx models.Transaction
	if err := l.db.WithContext(ctx).
		Where("gateway = ? AND gateway_ref = ?", gateway, ref).
		First(&tx).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &tx, nil
}

func (l *GormLedger) FindByIdempotencyKey(ctx context.Context, gateway models.GatewayKind, key string) (*models.Transaction, error) {
	if key == "" {
		return nil, ErrTransactionNotFound
	}
	var tx models.Transaction
	if err := l.db.WithContext(ctx).
		Where("gateway = ? AND idempotency_key = ?", gateway, key).
		Order("created_at DESC").
		First(&tx).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &tx, nil
}

func (l *GormLedger) HasSuccessfulPurchase(ctx context.Context, buyerID, ideaID uuid.UUID) (bool, error) {
	var count int64
	if err := l.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("buyer_id = ? AND idea_id = ? AND status IN ?", buyerID, ideaID, models.SuccessStatuses).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to count purchases: %w", err)
	}
	return count > 0, nil
}

func (l *GormLedger) Transition(ctx context.Context, id uuid.UUID, change StateChange) (bool, error) {
	if !change.To.IsTerminal() {
		return false, fmt.Errorf("transition target %q is not terminal", change.To)
	}

	now := l.now()
	updates := map[string]interface{}{
		"status":          change.To,
		"payment_details": change.Details,
		"updated_at":      now,
	}
	if change.To.IsSuccess() {
		updates["processed_at"] = now
	}
	if change.PaymentKey != nil {
		updates["gateway_payment_key"] = *change.PaymentKey
	}

	result := l.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, models.TransactionStatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("failed to transition transaction %s: %w", id, result.Error)
	}
	return result.RowsAffected == 1, nil
}

var transactionSortColumns = map[string]string{
	"created_at": "created_at",
	"amount":     "gross_amount",
	"status":     "status",
}

func (l *GormLedger) ListForUser(ctx context.Context, userID uuid.UUID, params utils.PaginationParams) ([]models.Transaction, int64, error) {
	query := l.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("buyer_id = ? OR seller_id = ?", userID, userID)
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	query = utils.ApplySort(query, params, transactionSortColumns)
	query = utils.ApplyPagination(query, params)

	var transactions []models.Transaction
	if err := query.Find(&transactions).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch transactions: %w", err)
	}
	return transactions, total, nil
}

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrTransactionNotFound
	}
	return err
}

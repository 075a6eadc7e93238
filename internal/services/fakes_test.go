package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/javajoker/idea-market/internal/database"
	"github.com/javajoker/idea-market/internal/models"
)

const validSignature = "valid-signature"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.RunMigrations(db))
	return db
}

func seedIdea(t *testing.T, db *gorm.DB, sellerID uuid.UUID, price int64) *models.Idea {
	t.Helper()
	idea := &models.Idea{
		SellerID:         sellerID,
		Title:            "Solar powered bike lock",
		Price:            price,
		Status:           models.IdeaStatusActive,
		ValidationStatus: models.ValidationStatusApproved,
	}
	require.NoError(t, db.Create(idea).Error)
	return idea
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// fakeCardGateway issues one intent per idempotency key, like the real API.
type fakeCardGateway struct {
	mu      sync.Mutex
	byKey   map[string]*CardIntent
	calls   int
	lastReq CardIntentRequest
	err     error
}

func newFakeCardGateway() *fakeCardGateway {
	return &fakeCardGateway{byKey: make(map[string]*CardIntent)}
}

func (g *fakeCardGateway) CreateIntent(_ context.Context, req CardIntentRequest) (*CardIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls++
	g.lastReq = req
	if g.err != nil {
		return nil, g.err
	}
	if intent, ok := g.byKey[req.IdempotencyKey]; ok {
		return intent, nil
	}
	n := len(g.byKey) + 1
	intent := &CardIntent{
		ID:           fmt.Sprintf("pi_%d", n),
		ClientSecret: fmt.Sprintf("pi_%d_secret", n),
	}
	g.byKey[req.IdempotencyKey] = intent
	return intent, nil
}

func (g *fakeCardGateway) ParseWebhook(payload []byte, signature string) (*CardEvent, error) {
	if signature != validSignature {
		return nil, fmt.Errorf("%w: bad signature", ErrInvalidSignature)
	}
	var event CardEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (g *fakeCardGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func cardEventPayload(t *testing.T, id, eventType, intentID string) []byte {
	t.Helper()
	payload, err := json.Marshal(CardEvent{ID: id, Type: eventType, IntentID: intentID, PaymentMethod: "pm_card_visa"})
	require.NoError(t, err)
	return payload
}

type fakeRedirectGateway struct {
	mu      sync.Mutex
	calls   int
	confirm func(req RedirectConfirmRequest) (*RedirectConfirmation, error)
}

func (g *fakeRedirectGateway) Confirm(_ context.Context, req RedirectConfirmRequest) (*RedirectConfirmation, error) {
	g.mu.Lock()
	g.calls++
	confirm := g.confirm
	g.mu.Unlock()

	if confirm == nil {
		return approved(req), nil
	}
	return confirm(req)
}

func (g *fakeRedirectGateway) ParseWebhook(payload []byte, signature string) (*RedirectEvent, error) {
	if signature != validSignature {
		return nil, ErrInvalidSignature
	}
	var event RedirectEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &event.Raw); err != nil {
		return nil, err
	}
	return &event, nil
}

func (g *fakeRedirectGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func approved(req RedirectConfirmRequest) *RedirectConfirmation {
	return &RedirectConfirmation{
		PaymentKey:  req.PaymentKey,
		OrderID:     req.OrderID,
		Status:      RedirectStatusDone,
		TotalAmount: req.Amount,
		ApprovedAt:  "2024-03-01T10:00:00+09:00",
		Raw: map[string]interface{}{
			"paymentKey": req.PaymentKey,
			"orderId":    req.OrderID,
			"status":     RedirectStatusDone,
		},
	}
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []PurchaseNotification
	err  error
}

func (n *fakeNotifier) NotifyPurchase(_ context.Context, notification PurchaseNotification) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return false, n.err
	}
	n.sent = append(n.sent, notification)
	return true, nil
}

func (n *fakeNotifier) notifications() []PurchaseNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]PurchaseNotification(nil), n.sent...)
}

type fakeArchive struct {
	mu      sync.Mutex
	stored  map[string][]byte
	uploads int
}

func (a *fakeArchive) Archive(_ context.Context, gateway, eventID string, payload []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stored == nil {
		a.stored = make(map[string][]byte)
	}
	a.uploads++
	a.stored[gateway+"/"+eventID] = payload
	return nil
}

func (a *fakeArchive) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.stored)
}

func (a *fakeArchive) uploadCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.uploads
}

type memoryGuard struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (g *memoryGuard) CheckAndMark(_ context.Context, gateway, eventID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen == nil {
		g.seen = make(map[string]bool)
	}
	key := gateway + ":" + eventID
	if g.seen[key] {
		return true, nil
	}
	g.seen[key] = true
	return false, nil
}

func (g *memoryGuard) Release(_ context.Context, gateway, eventID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, gateway+":"+eventID)
	return nil
}

// countingLedger records how often the ledger is touched.
type countingLedger struct {
	TransactionLedger
	reads       atomic.Int64
	transitions atomic.Int64
	failSuccess bool
}

func (l *countingLedger) FindByGatewayRef(ctx context.Context, gateway models.GatewayKind, ref string) (*models.Transaction, error) {
	l.reads.Add(1)
	return l.TransactionLedger.FindByGatewayRef(ctx, gateway, ref)
}

func (l *countingLedger) Transition(ctx context.Context, id uuid.UUID, change StateChange) (bool, error) {
	l.transitions.Add(1)
	if l.failSuccess && change.To.IsSuccess() {
		return false, fmt.Errorf("connection reset")
	}
	return l.TransactionLedger.Transition(ctx, id, change)
}

type fixture struct {
	db       *gorm.DB
	ledger   *countingLedger
	ideas    *GormIdeaStore
	card     *fakeCardGateway
	redirect *fakeRedirectGateway
	notifier *fakeNotifier
	archive  *fakeArchive
	guard    *memoryGuard
	svc      *SettlementService

	sellerID uuid.UUID
	buyerID  uuid.UUID
	idea     *models.Idea
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := newTestDB(t)
	f := &fixture{
		db:       db,
		ledger:   &countingLedger{TransactionLedger: NewGormLedger(db)},
		ideas:    NewGormIdeaStore(db),
		card:     newFakeCardGateway(),
		redirect: &fakeRedirectGateway{},
		notifier: &fakeNotifier{},
		archive:  &fakeArchive{},
		guard:    &memoryGuard{},
		sellerID: uuid.New(),
		buyerID:  uuid.New(),
	}
	f.idea = seedIdea(t, db, f.sellerID, 350000)

	svc, err := NewSettlementService(SettlementParams{
		Ledger:   f.ledger,
		Ideas:    f.ideas,
		Card:     f.card,
		Redirect: f.redirect,
		Notifier: f.notifier,
		Archive:  f.archive,
		Guard:    f.guard,
		Currency: "krw",
		Logger:   quietLogger(),
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *models.Transaction {
	t.Helper()
	tx, err := f.ledger.FindByID(context.Background(), id)
	require.NoError(t, err)
	return tx
}

func (f *fixture) transactionCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.Transaction{}).Count(&n).Error)
	return n
}

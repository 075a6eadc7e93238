package router_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/javajoker/idea-market/internal/config"
	"github.com/javajoker/idea-market/internal/database"
	"github.com/javajoker/idea-market/internal/i18n"
	"github.com/javajoker/idea-market/internal/metrics"
	"github.com/javajoker/idea-market/internal/models"
	"github.com/javajoker/idea-market/internal/router"
	"github.com/javajoker/idea-market/internal/services"
	"github.com/javajoker/idea-market/internal/utils"
)

const (
	cardWebhookSecret     = "whsec_router_test"
	redirectWebhookSecret = "redirect_router_test"
)

// stubbedCard verifies webhooks with the real Stripe adapter but never
// creates intents over the network.
type stubbedCard struct {
	*services.StripeCardGateway

	mu    sync.Mutex
	count int
}

func (c *stubbedCard) CreateIntent(_ context.Context, req services.CardIntentRequest) (*services.CardIntent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	return &services.CardIntent{
		ID:           fmt.Sprintf("pi_%d", c.count),
		ClientSecret: fmt.Sprintf("pi_%d_secret", c.count),
	}, nil
}

type SettlementAPITestSuite struct {
	suite.Suite

	db             *gorm.DB
	router         *gin.Engine
	settlement     *services.SettlementService
	gatewayServer  *httptest.Server
	redirectStatus string
	cancel         context.CancelFunc

	sellerID uuid.UUID
	buyerID  uuid.UUID
	idea     *models.Idea
}

func (suite *SettlementAPITestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	suite.Require().NoError(i18n.Initialize("en"))
}

func (suite *SettlementAPITestSuite) SetupTest() {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	suite.Require().NoError(err)
	sqlDB, err := db.DB()
	suite.Require().NoError(err)
	sqlDB.SetMaxOpenConns(1)
	suite.Require().NoError(database.RunMigrations(db))
	suite.db = db

	suite.sellerID = uuid.New()
	suite.buyerID = uuid.New()
	suite.idea = &models.Idea{
		SellerID:         suite.sellerID,
		Title:            "Modular rooftop garden",
		Price:            350000,
		Status:           models.IdeaStatusActive,
		ValidationStatus: models.ValidationStatusApproved,
	}
	suite.Require().NoError(db.Create(suite.idea).Error)

	suite.redirectStatus = services.RedirectStatusDone
	suite.gatewayServer = httptest.NewServer(http.HandlerFunc(suite.confirmAPI))

	cfg := &config.Config{
		Environment: "test",
		JWT:         config.JWTConfig{SecretKey: "router-test-secret"},
		Frontend:    config.FrontendConfig{BaseURL: "http://localhost:3000"},
		Payment: config.PaymentConfig{
			CardSecretKey:         "sk_test_router",
			CardWebhookSecret:     cardWebhookSecret,
			RedirectSecretKey:     "test_sk_router",
			RedirectIsTest:        true,
			RedirectWebhookSecret: redirectWebhookSecret,
			RedirectAPIURL:        suite.gatewayServer.URL,
			PlatformFeeRate:       decimal.RequireFromString("0.15"),
			Currency:              "krw",
			GatewayTimeout:        5,
		},
	}

	quiet := logrus.New()
	quiet.SetLevel(logrus.PanicLevel)

	stripeGateway, err := services.NewStripeCardGateway(cfg.Payment, nil)
	suite.Require().NoError(err)
	redirectGateway, err := services.NewHTTPRedirectGateway(cfg.Payment)
	suite.Require().NoError(err)
	calculator, err := services.NewCommissionCalculator(cfg.Payment.PlatformFeeRate)
	suite.Require().NoError(err)

	registry := prometheus.NewRegistry()
	suite.settlement, err = services.NewSettlementService(services.SettlementParams{
		Ledger:     services.NewGormLedger(db),
		Ideas:      services.NewGormIdeaStore(db),
		Calculator: calculator,
		Card:       &stubbedCard{StripeCardGateway: stripeGateway},
		Redirect:   redirectGateway,
		Metrics:    metrics.NewRecorder(registry),
		Currency:   cfg.Payment.Currency,
		Logger:     quiet,
	})
	suite.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	suite.cancel = cancel
	suite.router = router.Initialize(ctx, router.Dependencies{
		Config:     cfg,
		DB:         db,
		Settlement: suite.settlement,
		Gatherer:   registry,
		Logger:     quiet,
	})
}

func (suite *SettlementAPITestSuite) TearDownTest() {
	suite.settlement.Drain()
	suite.cancel()
	suite.gatewayServer.Close()
	if sqlDB, err := suite.db.DB(); err == nil {
		sqlDB.Close()
	}
}

func (suite *SettlementAPITestSuite) confirmAPI(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&body)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"paymentKey":  body["paymentKey"],
		"orderId":     body["orderId"],
		"status":      suite.redirectStatus,
		"totalAmount": body["amount"],
		"approvedAt":  "2024-03-01T10:00:00+09:00",
	})
}

func (suite *SettlementAPITestSuite) token(userID uuid.UUID) string {
	token, err := utils.GenerateJWT(userID, time.Hour)
	suite.Require().NoError(err)
	return "Bearer " + token
}

func (suite *SettlementAPITestSuite) do(method, path string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, map[string]interface{}) {
	var payload []byte
	switch b := body.(type) {
	case nil:
	case []byte:
		payload = b
	default:
		var err error
		payload, err = json.Marshal(b)
		suite.Require().NoError(err)
	}

	req, _ := http.NewRequest(method, path, bytes.NewBuffer(payload))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	var response map[string]interface{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &response))
	}
	return w, response
}

func (suite *SettlementAPITestSuite) asBuyer() map[string]string {
	return map[string]string{"Authorization": suite.token(suite.buyerID)}
}

func errorCode(response map[string]interface{}) string {
	apiErr, _ := response["error"].(map[string]interface{})
	code, _ := apiErr["code"].(string)
	return code
}

func data(response map[string]interface{}) map[string]interface{} {
	d, _ := response["data"].(map[string]interface{})
	return d
}

func cardSignature(payload []byte) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(cardWebhookSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func cardEvent(id, eventType, intentID string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"object":"event","type":%q,"data":{"object":{"id":%q,"object":"payment_intent","payment_method":"pm_card_visa"}}}`,
		id, eventType, intentID))
}

func (suite *SettlementAPITestSuite) TestHealth() {
	w, response := suite.do(http.MethodGet, "/health", nil, nil)
	suite.Equal(http.StatusOK, w.Code)
	suite.Equal("healthy", response["status"])
}

func (suite *SettlementAPITestSuite) TestCardPurchaseFlow() {
	w, response := suite.do(http.MethodPost, "/payment-intents", gin.H{"idea_id": suite.idea.ID}, suite.asBuyer())
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	suite.True(response["success"].(bool))
	suite.Equal("pi_1_secret", data(response)["client_secret"])
	suite.Equal(float64(350000), data(response)["amount"])
	txID := data(response)["transaction_id"].(string)

	payload := cardEvent("evt_1", services.CardEventSucceeded, "pi_1")
	w, response = suite.do(http.MethodPost, "/webhooks/card", payload, map[string]string{"Stripe-Signature": cardSignature(payload)})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	suite.Equal(services.OutcomeApplied, response["outcome"])
	suite.Equal("completed", response["status"])

	w, response = suite.do(http.MethodGet, "/transactions/"+txID, nil, suite.asBuyer())
	suite.Require().Equal(http.StatusOK, w.Code)
	suite.Equal("completed", data(response)["status"])
	suite.Equal(float64(52500), data(response)["commission"])
	suite.Equal(float64(297500), data(response)["net_amount"])

	// A second purchase of the same idea is refused.
	w, response = suite.do(http.MethodPost, "/payment-intents", gin.H{"idea_id": suite.idea.ID}, suite.asBuyer())
	suite.Equal(http.StatusConflict, w.Code)
	suite.Equal("ALREADY_PURCHASED", errorCode(response))

	w, _ = suite.do(http.MethodGet, "/metrics", nil, nil)
	suite.Equal(http.StatusOK, w.Code)
	suite.Contains(w.Body.String(), `settlement_transitions_total{gateway="card",state="completed"} 1`)
}

func (suite *SettlementAPITestSuite) TestPaymentIntentErrors() {
	w, response := suite.do(http.MethodPost, "/payment-intents", gin.H{"idea_id": suite.idea.ID}, nil)
	suite.Equal(http.StatusUnauthorized, w.Code)
	suite.False(response["success"].(bool))
	suite.Equal("UNAUTHORIZED", errorCode(response))

	w, response = suite.do(http.MethodPost, "/payment-intents", gin.H{"idea_id": "not-a-uuid"}, suite.asBuyer())
	suite.Equal(http.StatusBadRequest, w.Code)
	suite.Equal("VALIDATION_ERROR", errorCode(response))

	seller := map[string]string{"Authorization": suite.token(suite.sellerID)}
	w, response = suite.do(http.MethodPost, "/payment-intents", gin.H{"idea_id": suite.idea.ID}, seller)
	suite.Equal(http.StatusBadRequest, w.Code)
	suite.Equal("SELF_PURCHASE", errorCode(response))

	w, response = suite.do(http.MethodPost, "/payment-intents", gin.H{"idea_id": uuid.New()}, suite.asBuyer())
	suite.Equal(http.StatusNotFound, w.Code)
	suite.Equal("IDEA_NOT_FOUND", errorCode(response))

	var count int64
	suite.Require().NoError(suite.db.Model(&models.Transaction{}).Count(&count).Error)
	suite.Zero(count)
}

func (suite *SettlementAPITestSuite) TestPaymentIntentIdempotencyKey() {
	headers := suite.asBuyer()
	headers["Idempotency-Key"] = "checkout-1"

	w, first := suite.do(http.MethodPost, "/payment-intents", gin.H{"idea_id": suite.idea.ID}, headers)
	suite.Require().Equal(http.StatusCreated, w.Code)

	headers["Idempotency-Key"] = "bad key with spaces"
	w, response := suite.do(http.MethodPost, "/payment-intents", gin.H{"idea_id": suite.idea.ID}, headers)
	suite.Equal(http.StatusBadRequest, w.Code)
	suite.Equal("BAD_REQUEST", errorCode(response))

	suite.NotEmpty(data(first)["transaction_id"])
}

func (suite *SettlementAPITestSuite) TestCardWebhookRejectsForgedSignature() {
	payload := cardEvent("evt_1", services.CardEventSucceeded, "pi_1")

	w, response := suite.do(http.MethodPost, "/webhooks/card", payload, map[string]string{"Stripe-Signature": "t=1,v1=deadbeef"})
	suite.Equal(http.StatusBadRequest, w.Code)
	suite.Equal("INVALID_SIGNATURE", errorCode(response))

	w, _ = suite.do(http.MethodPost, "/webhooks/card", payload, nil)
	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *SettlementAPITestSuite) TestCardWebhookIgnoresOtherEvents() {
	payload := cardEvent("evt_9", "payment_intent.created", "pi_1")

	w, response := suite.do(http.MethodPost, "/webhooks/card", payload, map[string]string{"Stripe-Signature": cardSignature(payload)})
	suite.Equal(http.StatusOK, w.Code)
	suite.Equal(services.OutcomeIgnored, response["outcome"])
}

func (suite *SettlementAPITestSuite) TestRedirectPurchaseFlow() {
	w, response := suite.do(http.MethodPost, "/payment-orders/redirect", gin.H{"idea_id": suite.idea.ID}, suite.asBuyer())
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	orderID := data(response)["order_id"].(string)
	suite.Equal(suite.idea.Title, data(response)["order_name"])

	confirm := gin.H{"paymentKey": "pk_1", "orderId": orderID, "amount": 1000}
	w, response = suite.do(http.MethodPost, "/payment-confirmations/redirect", confirm, suite.asBuyer())
	suite.Equal(http.StatusBadRequest, w.Code)
	suite.Equal("AMOUNT_MISMATCH", errorCode(response))

	confirm["amount"] = 350000
	w, response = suite.do(http.MethodPost, "/payment-confirmations/redirect", confirm, suite.asBuyer())
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	suite.Equal("paid", data(response)["status"])
	suite.Equal(services.RedirectStatusDone, data(response)["gateway_status"])

	w, response = suite.do(http.MethodGet, "/transactions?status=paid", nil, suite.asBuyer())
	suite.Require().Equal(http.StatusOK, w.Code)
	list, _ := response["data"].([]interface{})
	suite.Len(list, 1)
	suite.Equal("1", w.Header().Get("X-Total-Count"))
}

func (suite *SettlementAPITestSuite) TestRedirectPaymentNotApproved() {
	suite.redirectStatus = services.RedirectStatusExpired

	w, response := suite.do(http.MethodPost, "/payment-orders/redirect", gin.H{"idea_id": suite.idea.ID}, suite.asBuyer())
	suite.Require().Equal(http.StatusCreated, w.Code)
	orderID := data(response)["order_id"].(string)

	confirm := gin.H{"paymentKey": "pk_1", "orderId": orderID, "amount": 350000}
	w, response = suite.do(http.MethodPost, "/payment-confirmations/redirect", confirm, suite.asBuyer())
	suite.Equal(http.StatusBadRequest, w.Code)
	suite.Equal("PAYMENT_NOT_APPROVED", errorCode(response))
	details := response["error"].(map[string]interface{})["details"].(map[string]interface{})
	suite.Equal(services.RedirectStatusExpired, details["gateway_status"])
}

func (suite *SettlementAPITestSuite) TestRedirectWebhook() {
	w, response := suite.do(http.MethodPost, "/payment-orders/redirect", gin.H{"idea_id": suite.idea.ID}, suite.asBuyer())
	suite.Require().Equal(http.StatusCreated, w.Code)
	orderID := data(response)["order_id"].(string)

	payload := []byte(fmt.Sprintf(`{"eventType":"PAYMENT_STATUS_CHANGED","data":{"paymentKey":"pk_hook","orderId":%q,"status":"DONE","totalAmount":350000}}`, orderID))

	w, response = suite.do(http.MethodPost, "/webhooks/redirect", payload, map[string]string{"X-Redirect-Signature": "00"})
	suite.Equal(http.StatusBadRequest, w.Code)
	suite.Equal("INVALID_SIGNATURE", errorCode(response))

	signature := services.SignHMAC(payload, redirectWebhookSecret)
	w, response = suite.do(http.MethodPost, "/webhooks/redirect", payload, map[string]string{"X-Redirect-Signature": signature})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	suite.Equal("paid", response["status"])
}

func (suite *SettlementAPITestSuite) TestLocalizedErrors() {
	headers := suite.asBuyer()
	headers["Accept-Language"] = "ko-KR,ko;q=0.9,en;q=0.8"

	w, response := suite.do(http.MethodGet, "/transactions/"+uuid.NewString(), nil, headers)
	suite.Equal(http.StatusNotFound, w.Code)
	suite.Equal("거래를 찾을 수 없습니다", response["error"].(map[string]interface{})["message"])
}

func TestSettlementAPISuite(t *testing.T) {
	suite.Run(t, new(SettlementAPITestSuite))
}

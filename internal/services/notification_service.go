// internal/services/notification_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/idea-market/internal/config"
)

// PurchaseNotification is published once a transaction reaches a success state.
type PurchaseNotification struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	IdeaID        uuid.UUID `json:"idea_id"`
	IdeaTitle     string    `json:"idea_title"`
	BuyerID       uuid.UUID `json:"buyer_id"`
	SellerID      uuid.UUID `json:"seller_id"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Gateway       string    `json:"gateway"`
	PurchasedAt   time.Time `json:"purchased_at"`
}

// NotificationDispatcher delivers purchase notices on a best-effort basis.
type NotificationDispatcher interface {
	NotifyPurchase(ctx context.Context, n PurchaseNotification) (bool, error)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotificationService hands purchase notices to the notification
// consumers through a Kafka topic.
type KafkaNotificationService struct {
	writer messageWriter
}

func NewKafkaNotificationService(cfg config.KafkaConfig) *KafkaNotificationService {
	return &KafkaNotificationService{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.PurchaseTopic,
			Balancer:               &kafka.LeastBytes{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}
}

func (s *KafkaNotificationService) NotifyPurchase(ctx context.Context, n PurchaseNotification) (bool, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return false, fmt.Errorf("encode purchase notification: %w", err)
	}

	// Keyed by transaction so consumers can drop repeats.
	if err := s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(n.TransactionID.String()),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("purchase.completed")},
		},
	}); err != nil {
		return false, fmt.Errorf("publish purchase notification: %w", err)
	}
	return true, nil
}

func (s *KafkaNotificationService) Close() error {
	return s.writer.Close()
}

// LogNotificationService only logs; used when no broker is configured.
type LogNotificationService struct{}

func (LogNotificationService) NotifyPurchase(ctx context.Context, n PurchaseNotification) (bool, error) {
	logrus.WithFields(logrus.Fields{
		"transaction_id": n.TransactionID,
		"idea_id":        n.IdeaID,
		"buyer_id":       n.BuyerID,
		"seller_id":      n.SellerID,
		"amount":         n.Amount,
	}).Info("Purchase notification (no broker configured)")
	return false, nil
}

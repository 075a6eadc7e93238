// internal/services/idea_store.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/javajoker/idea-market/internal/models"
)

var ErrIdeaNotFound = errors.New("idea not found")

// IdeaStore is the settlement core's view of the idea catalog.
type IdeaStore interface {
	FindIdea(ctx context.Context, id uuid.UUID) (*models.Idea, error)
	IncrementPurchaseCount(ctx context.Context, id uuid.UUID) error
}

type GormIdeaStore struct {
	db *gorm.DB
}

func NewGormIdeaStore(db *gorm.DB) *GormIdeaStore {
	return &GormIdeaStore{db: db}
}

func (s *GormIdeaStore) FindIdea(ctx context.Context, id uuid.UUID) (*models.Idea, error) {
	var idea models.Idea
	if err := s.db.WithContext(ctx).First(&idea, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIdeaNotFound
		}
		return nil, fmt.Errorf("failed to load idea: %w", err)
	}
	return &idea, nil
}

func (s *GormIdeaStore) IncrementPurchaseCount(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Model(&models.Idea{}).
		Where("id = ?", id).
		UpdateColumn("purchase_count", gorm.Expr("purchase_count + ?", 1))
	if result.Error != nil {
		return fmt.Errorf("failed to increment purchase count: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrIdeaNotFound
	}
	return nil
}

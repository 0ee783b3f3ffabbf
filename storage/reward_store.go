package storage

import (
	"context"
	"fmt"

	"breathesmart/models"

	"gorm.io/gorm"
)

// RewardStore persists reward approvals. There is deliberately no
// uniqueness constraint on (user_id, reward_type): repeated completed
// approvals create repeated records.
type RewardStore interface {
	CreateApproval(ctx context.Context, a *models.RewardApproval) error
	ListApprovals(ctx context.Context) ([]models.RewardApproval, error)
}

type GormRewardStore struct {
	DB *gorm.DB
}

func NewGormRewardStore(db *gorm.DB) *GormRewardStore {
	return &GormRewardStore{DB: db}
}

func (s *GormRewardStore) CreateApproval(ctx context.Context, a *models.RewardApproval) error {
	if err := s.DB.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *GormRewardStore) ListApprovals(ctx context.Context) ([]models.RewardApproval, error) {
	var approvals []models.RewardApproval
	err := s.DB.WithContext(ctx).Order("created_at DESC").Find(&approvals).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return approvals, nil
}

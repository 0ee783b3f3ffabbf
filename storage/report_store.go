package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"breathesmart/models"

	"gorm.io/gorm"
)

// ReportStore is the persistence boundary for reports. Services accept
// this interface so the validation state machine can run against the
// in-memory store in tests.
type ReportStore interface {
	Create(ctx context.Context, r *models.Report) error
	Get(ctx context.Context, id uint) (*models.Report, error)
	// List returns reports filtered by status; empty status means all.
	List(ctx context.Context, status models.ReportStatus) ([]models.Report, error)
	FindByImageHash(ctx context.Context, hash string) (*models.Report, error)
	ListPending(ctx context.Context, limit int) ([]models.Report, error)
	Update(ctx context.Context, r *models.Report) error
	// Resolve transitions a verified report to approved or rejected.
	// The update is conditional on the current status still being
	// verified; losing a race yields ErrInvalidStateTransition.
	Resolve(ctx context.Context, id uint, to models.ReportStatus, precautions, actionTaken, validatedBy string) (*models.Report, error)
	// LeaderboardTotals sums awarded credits per contributor over
	// verified and approved reports, in first-report order. Sorting by
	// credits is the reward service's job.
	LeaderboardTotals(ctx context.Context) ([]models.LeaderboardEntry, error)
}

type GormReportStore struct {
	DB *gorm.DB
}

func NewGormReportStore(db *gorm.DB) *GormReportStore {
	return &GormReportStore{DB: db}
}

func (s *GormReportStore) Create(ctx context.Context, r *models.Report) error {
	if err := s.DB.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *GormReportStore) Get(ctx context.Context, id uint) (*models.Report, error) {
	var r models.Report
	err := s.DB.WithContext(ctx).First(&r, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &r, nil
}

func (s *GormReportStore) List(ctx context.Context, status models.ReportStatus) ([]models.Report, error) {
	q := s.DB.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var reports []models.Report
	if err := q.Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return reports, nil
}

func (s *GormReportStore) FindByImageHash(ctx context.Context, hash string) (*models.Report, error) {
	var r models.Report
	err := s.DB.WithContext(ctx).Where("image_hash = ?", hash).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &r, nil
}

func (s *GormReportStore) ListPending(ctx context.Context, limit int) ([]models.Report, error) {
	var reports []models.Report
	err := s.DB.WithContext(ctx).
		Where("status = ?", models.ReportStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&reports).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return reports, nil
}

func (s *GormReportStore) Update(ctx context.Context, r *models.Report) error {
	if err := s.DB.WithContext(ctx).Save(r).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *GormReportStore) Resolve(ctx context.Context, id uint, to models.ReportStatus, precautions, actionTaken, validatedBy string) (*models.Report, error) {
	updates := map[string]interface{}{
		"status":          to,
		"validated_by":    validatedBy,
		"last_checked_at": time.Now(),
	}
	if to == models.ReportStatusApproved {
		updates["precautions"] = precautions
		updates["action_taken"] = actionTaken
	}

	res := s.DB.WithContext(ctx).Model(&models.Report{}).
		Where("id = ? AND status = ?", id, models.ReportStatusVerified).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		// Distinguish a missing report from one another operator
		// already resolved.
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrInvalidStateTransition
	}
	return s.Get(ctx, id)
}

func (s *GormReportStore) LeaderboardTotals(ctx context.Context) ([]models.LeaderboardEntry, error) {
	var entries []models.LeaderboardEntry
	err := s.DB.WithContext(ctx).Model(&models.Report{}).
		Select("user_name AS username, COALESCE(SUM(awarded_credits), 0) AS green_credits").
		Where("status IN ?", []models.ReportStatus{models.ReportStatusVerified, models.ReportStatusApproved}).
		Where("user_name <> ''").
		Group("user_name").
		Order("MIN(id)").
		Scan(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return entries, nil
}

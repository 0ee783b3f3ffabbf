package services

import (
	"context"

	"breathesmart/bus"
	"breathesmart/models"
	"breathesmart/storage"
)

// ValidationService enforces the report state machine:
//
//	verified -> approved  (Approve)
//	verified -> rejected  (Reject)
//
// Any other transition is refused by the store with
// ErrInvalidStateTransition. Outcomes are broadcast on the sync
// channel only after persistence succeeded — a publish is never
// emitted for a mutation that did not durably happen.
type ValidationService struct {
	Store   storage.ReportStore
	Channel bus.Channel
}

func NewValidationService(store storage.ReportStore, channel bus.Channel) *ValidationService {
	return &ValidationService{Store: store, Channel: channel}
}

// ListVerified returns the reports awaiting validation. No caching:
// portals re-fetch on demand.
func (s *ValidationService) ListVerified(ctx context.Context) ([]models.Report, error) {
	return s.Store.List(ctx, models.ReportStatusVerified)
}

// ListApproved returns reports a validator already approved.
func (s *ValidationService) ListApproved(ctx context.Context) ([]models.Report, error) {
	return s.Store.List(ctx, models.ReportStatusApproved)
}

// Approve resolves a verified report with precautions and the
// government action taken, then broadcasts the outcome.
func (s *ValidationService) Approve(ctx context.Context, sess models.Session, id uint, precautions, actionTaken string) (*models.Report, error) {
	report, err := s.Store.Resolve(ctx, id, models.ReportStatusApproved, precautions, actionTaken, sess.Email)
	if err != nil {
		return nil, err
	}
	s.Channel.Publish(ctx, bus.Event{Type: bus.EventApproved, Report: *report})
	return report, nil
}

// Reject resolves a verified report without precaution or action
// fields, then broadcasts the outcome.
func (s *ValidationService) Reject(ctx context.Context, sess models.Session, id uint) (*models.Report, error) {
	report, err := s.Store.Resolve(ctx, id, models.ReportStatusRejected, "", "", sess.Email)
	if err != nil {
		return nil, err
	}
	s.Channel.Publish(ctx, bus.Event{Type: bus.EventRejected, Report: *report})
	return report, nil
}

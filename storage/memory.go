package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"breathesmart/models"
)

// MemoryReportStore is an in-memory ReportStore with the same
// transition semantics as the Postgres store. Used by tests and by
// single-process deployments without a database.
type MemoryReportStore struct {
	mu      sync.Mutex
	nextID  uint
	reports map[uint]models.Report
	order   []uint

	// FailNext makes the next mutating call fail with ErrUnavailable,
	// simulating a transport outage.
	FailNext bool
}

func NewMemoryReportStore() *MemoryReportStore {
	return &MemoryReportStore{
		nextID:  1,
		reports: make(map[uint]models.Report),
	}
}

func (s *MemoryReportStore) failNext() bool {
	if s.FailNext {
		s.FailNext = false
		return true
	}
	return false
}

func (s *MemoryReportStore) Create(_ context.Context, r *models.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext() {
		return ErrUnavailable
	}
	if r.ID == 0 {
		r.ID = s.nextID
		s.nextID++
	} else if r.ID >= s.nextID {
		s.nextID = r.ID + 1
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	s.reports[r.ID] = *r
	s.order = append(s.order, r.ID)
	return nil
}

func (s *MemoryReportStore) Get(_ context.Context, id uint) (*models.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (s *MemoryReportStore) List(_ context.Context, status models.ReportStatus) ([]models.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Report
	for _, id := range s.order {
		r := s.reports[id]
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryReportStore) FindByImageHash(_ context.Context, hash string) (*models.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		r := s.reports[id]
		if r.ImageHash == hash {
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryReportStore) ListPending(_ context.Context, limit int) ([]models.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Report
	for _, id := range s.order {
		r := s.reports[id]
		if r.Status == models.ReportStatusPending {
			out = append(out, r)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryReportStore) Update(_ context.Context, r *models.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext() {
		return ErrUnavailable
	}
	if _, ok := s.reports[r.ID]; !ok {
		return ErrNotFound
	}
	s.reports[r.ID] = *r
	return nil
}

func (s *MemoryReportStore) Resolve(_ context.Context, id uint, to models.ReportStatus, precautions, actionTaken, validatedBy string) (*models.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext() {
		return nil, ErrUnavailable
	}
	r, ok := s.reports[id]
	if !ok {
		return nil, ErrNotFound
	}
	if r.Status != models.ReportStatusVerified {
		return nil, ErrInvalidStateTransition
	}
	r.Status = to
	r.ValidatedBy = validatedBy
	r.LastCheckedAt = time.Now()
	if to == models.ReportStatusApproved {
		r.Precautions = precautions
		r.ActionTaken = actionTaken
	}
	s.reports[id] = r
	return &r, nil
}

func (s *MemoryReportStore) LeaderboardTotals(_ context.Context) ([]models.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	totals := make(map[string]int)
	var names []string
	for _, id := range s.order {
		r := s.reports[id]
		if r.UserName == "" {
			continue
		}
		if r.Status != models.ReportStatusVerified && r.Status != models.ReportStatusApproved {
			continue
		}
		if _, seen := totals[r.UserName]; !seen {
			names = append(names, r.UserName)
		}
		totals[r.UserName] += r.AwardedCredits
	}
	entries := make([]models.LeaderboardEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, models.LeaderboardEntry{Username: name, GreenCredits: totals[name]})
	}
	return entries, nil
}

// MemoryRewardStore is the in-memory RewardStore counterpart.
type MemoryRewardStore struct {
	mu        sync.Mutex
	approvals []models.RewardApproval

	FailNext bool
}

func NewMemoryRewardStore() *MemoryRewardStore {
	return &MemoryRewardStore{}
}

func (s *MemoryRewardStore) CreateApproval(_ context.Context, a *models.RewardApproval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailNext {
		s.FailNext = false
		return ErrUnavailable
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	s.approvals = append(s.approvals, *a)
	return nil
}

func (s *MemoryRewardStore) ListApprovals(_ context.Context) ([]models.RewardApproval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.RewardApproval, len(s.approvals))
	copy(out, s.approvals)
	return out, nil
}

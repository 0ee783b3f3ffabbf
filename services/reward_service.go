package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"breathesmart/models"
	"breathesmart/storage"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrRewardInFlight is returned while a prior approval for the same
// contributor is still outstanding. Completed approvals are not
// deduplicated — reward identity is keyed by username only.
var ErrRewardInFlight = errors.New("reward approval already in flight for this user")

const (
	leaderboardCacheKey = "leaderboard:snapshot"
	leaderboardCacheTTL = 2 * time.Minute
)

// RewardService reads the ranked leaderboard and issues reward
// approvals. It never touches the sync bus: reward state is not
// broadcast.
type RewardService struct {
	Reports storage.ReportStore
	Rewards storage.RewardStore

	rdb *redis.Client // optional snapshot cache

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewRewardService(reports storage.ReportStore, rewards storage.RewardStore, rdb *redis.Client) *RewardService {
	return &RewardService{
		Reports:  reports,
		Rewards:  rewards,
		rdb:      rdb,
		inflight: make(map[string]struct{}),
	}
}

// FetchLeaderboard returns the full ranked set, descending by green
// credits. Ties keep the store's original (first-report) order; a
// bounded top-N view is the caller's concern.
func (s *RewardService) FetchLeaderboard(ctx context.Context) ([]models.LeaderboardEntry, error) {
	entries, err := s.Reports.LeaderboardTotals(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].GreenCredits > entries[j].GreenCredits
	})
	return entries, nil
}

// CachedLeaderboard serves the Redis snapshot when present, falling
// back to (and repopulating from) the authoritative store.
func (s *RewardService) CachedLeaderboard(ctx context.Context) ([]models.LeaderboardEntry, error) {
	if s.rdb != nil {
		if raw, err := s.rdb.Get(ctx, leaderboardCacheKey).Result(); err == nil {
			var entries []models.LeaderboardEntry
			if err := json.Unmarshal([]byte(raw), &entries); err == nil {
				return entries, nil
			}
		}
	}
	entries, err := s.FetchLeaderboard(ctx)
	if err != nil {
		return nil, err
	}
	s.storeSnapshot(ctx, entries)
	return entries, nil
}

// RefreshLeaderboardSnapshot recomputes the ranking and rewrites the
// cache. Run periodically by the scheduler.
func (s *RewardService) RefreshLeaderboardSnapshot(ctx context.Context) error {
	entries, err := s.FetchLeaderboard(ctx)
	if err != nil {
		return err
	}
	s.storeSnapshot(ctx, entries)
	return nil
}

func (s *RewardService) storeSnapshot(ctx context.Context, entries []models.LeaderboardEntry) {
	if s.rdb == nil {
		return
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, leaderboardCacheKey, raw, leaderboardCacheTTL).Err(); err != nil {
		log.Printf("[REWARDS] leaderboard snapshot write failed: %v", err)
	}
}

// ApproveReward posts an approval record for a leaderboard entry with
// reward_value = the entry's green credits. A second call for the same
// username while the first is outstanding fails with ErrRewardInFlight.
func (s *RewardService) ApproveReward(ctx context.Context, sess models.Session, entry models.LeaderboardEntry, rewardType string) (*models.RewardApproval, error) {
	s.mu.Lock()
	if _, busy := s.inflight[entry.Username]; busy {
		s.mu.Unlock()
		return nil, ErrRewardInFlight
	}
	s.inflight[entry.Username] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inflight, entry.Username)
		s.mu.Unlock()
	}()

	approval := &models.RewardApproval{
		ID:          uuid.NewString(),
		UserID:      entry.Username,
		RewardType:  rewardType,
		RewardValue: entry.GreenCredits,
		ApprovedBy:  sess.Email,
		CreatedAt:   time.Now(),
	}
	if err := s.Rewards.CreateApproval(ctx, approval); err != nil {
		return nil, err
	}
	return approval, nil
}

// ListApprovals returns the issued approvals, newest first.
func (s *RewardService) ListApprovals(ctx context.Context) ([]models.RewardApproval, error) {
	return s.Rewards.ListApprovals(ctx)
}

package services

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartLeaderboardScheduler refreshes the Redis leaderboard snapshot
// every minute so portal reads stay cheap between report mutations.
func (s *RewardService) StartLeaderboardScheduler() {
	if s.rdb == nil {
		return
	}
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			if err := s.RefreshLeaderboardSnapshot(context.Background()); err != nil {
				log.Printf("[SCHEDULER] leaderboard refresh failed: %v", err)
			}
		}),
	)
}

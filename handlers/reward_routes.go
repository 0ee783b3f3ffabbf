// handlers/reward_routes.go
package handlers

import (
	"strings"

	"breathesmart/middleware"
	"breathesmart/models"
	"breathesmart/services"

	"github.com/gofiber/fiber/v2"
)

func SetupRewardRoutes(app *fiber.App, rewards *services.RewardService) {
	group := app.Group("/api/rewards", middleware.RequireRole("government"))

	group.Post("/approve", func(c *fiber.Ctx) error {
		var req struct {
			UserID      string `json:"user_id"`
			RewardType  string `json:"reward_type"`
			RewardValue int    `json:"reward_value"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
		if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.RewardType) == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id and reward_type are required"})
		}

		entry := models.LeaderboardEntry{Username: req.UserID, GreenCredits: req.RewardValue}
		approval, err := rewards.ApproveReward(c.Context(), middleware.SessionFrom(c), entry, req.RewardType)
		if err != nil {
			return c.Status(statusForError(err)).JSON(fiber.Map{
				"error": "reward approval failed",
				"cause": err.Error(),
			})
		}
		return c.Status(fiber.StatusCreated).JSON(approval)
	})

	group.Get("/", func(c *fiber.Ctx) error {
		approvals, err := rewards.ListApprovals(c.Context())
		if err != nil {
			return c.Status(statusForError(err)).JSON(fiber.Map{
				"error": "failed to fetch approvals",
				"cause": err.Error(),
			})
		}
		if approvals == nil {
			approvals = []models.RewardApproval{}
		}
		return c.JSON(approvals)
	})
}

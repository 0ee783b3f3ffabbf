// handlers/report_routes.go
package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"strconv"
	"time"

	"breathesmart/middleware"
	"breathesmart/models"
	"breathesmart/services"
	"breathesmart/storage"
	"breathesmart/utils"

	"github.com/gofiber/fiber/v2"
)

func SetupReportRoutes(app *fiber.App, validation *services.ValidationService, rewards *services.RewardService, store storage.ReportStore) {
	reports := app.Group("/api/reports")

	// All reports; portals filter client-side, but ?status= is honored
	// for callers that want the server to do it.
	reports.Get("/", func(c *fiber.Ctx) error {
		status := models.ReportStatus(c.Query("status"))
		list, err := store.List(c.Context(), status)
		if err != nil {
			return c.Status(statusForError(err)).JSON(fiber.Map{
				"error": "failed to fetch reports",
				"cause": err.Error(),
			})
		}
		if list == nil {
			list = []models.Report{}
		}
		return c.JSON(list)
	})

	// Reports a validator already approved (Govt portal)
	reports.Get("/approved", func(c *fiber.Ctx) error {
		list, err := validation.ListApproved(c.Context())
		if err != nil {
			return c.Status(statusForError(err)).JSON(fiber.Map{
				"error": "failed to fetch approved reports",
				"cause": err.Error(),
			})
		}
		if list == nil {
			list = []models.Report{}
		}
		return c.JSON(list)
	})

	reports.Get("/leaderboard", func(c *fiber.Ctx) error {
		entries, err := rewards.CachedLeaderboard(c.Context())
		if err != nil {
			return c.Status(statusForError(err)).JSON(fiber.Map{
				"error": "failed to fetch leaderboard",
				"cause": err.Error(),
			})
		}
		if entries == nil {
			entries = []models.LeaderboardEntry{}
		}
		return c.JSON(entries)
	})

	// Validator/Govt resolves a verified report
	reports.Put("/:id/validate", middleware.RequireRole("government"), func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid report ID"})
		}

		var req struct {
			Status      string `json:"status"`
			Precautions string `json:"precautions"`
			ActionTaken string `json:"action_taken"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}

		sess := middleware.SessionFrom(c)

		var report *models.Report
		switch req.Status {
		case string(models.ReportStatusApproved):
			report, err = validation.Approve(c.Context(), sess, uint(id), req.Precautions, req.ActionTaken)
		case string(models.ReportStatusRejected):
			report, err = validation.Reject(c.Context(), sess, uint(id))
		default:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid status"})
		}
		if err != nil {
			return c.Status(statusForError(err)).JSON(fiber.Map{
				"error": "validation failed",
				"cause": err.Error(),
			})
		}

		return c.JSON(fiber.Map{
			"message": fmt.Sprintf("Report %s", report.Status),
			"report":  report,
		})
	})

	// Citizen ingestion: image + description + coordinates. The report
	// starts in pending; the verification worker moves it on.
	reports.Post("/upload", func(c *fiber.Ctx) error {
		sess := middleware.SessionFrom(c)
		if sess.Token == "" || sess.Name == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
		}

		fileHeader, err := c.FormFile("image")
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No image file uploaded"})
		}
		lat, errLat := parseCoord(c.FormValue("lat"))
		lng, errLng := parseCoord(c.FormValue("lng"))
		if errLat != nil || errLng != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Latitude and longitude are required"})
		}
		description := c.FormValue("description")

		file, err := fileHeader.Open()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unreadable image file"})
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil || len(data) == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Uploaded file is empty"})
		}

		sum := sha256.Sum256(data)
		imageHash := hex.EncodeToString(sum[:])

		// Duplicate images: the same citizen may re-submit (re-queued
		// for verification); anyone else is refused.
		if existing, err := store.FindByImageHash(c.Context(), imageHash); err == nil {
			if existing.UserName != sess.Name {
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Duplicate image uploaded by another user"})
			}
			if description != "" {
				existing.Description = description
			}
			existing.Status = models.ReportStatusPending
			existing.LastCheckedAt = time.Now()
			if err := store.Update(c.Context(), existing); err != nil {
				return c.Status(statusForError(err)).JSON(fiber.Map{
					"error": "failed to update report",
					"cause": err.Error(),
				})
			}
			return c.JSON(existing)
		}

		var imageURL string
		if utils.R2Ready() {
			key := utils.ReportImageKey(sess.Name, fileHeader.Filename)
			imageURL, err = utils.UploadReportImage(c.Context(), data, fileHeader.Header.Get("Content-Type"), key)
			if err != nil {
				log.Printf("[REPORTS] image upload failed: %v", err)
				return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "failed to store image"})
			}
		}

		report := &models.Report{
			UserName:      sess.Name,
			Description:   description,
			ImageURL:      imageURL,
			ImageHash:     imageHash,
			Lat:           lat,
			Lng:           lng,
			Status:        models.ReportStatusPending,
			CreatedAt:     time.Now(),
			LastCheckedAt: time.Now(),
		}
		if err := store.Create(c.Context(), report); err != nil {
			return c.Status(statusForError(err)).JSON(fiber.Map{
				"error": "failed to create report",
				"cause": err.Error(),
			})
		}
		return c.Status(fiber.StatusCreated).JSON(report)
	})
}

func parseCoord(raw string) (float64, error) {
	if raw == "" {
		return 0, fmt.Errorf("missing coordinate")
	}
	return strconv.ParseFloat(raw, 64)
}

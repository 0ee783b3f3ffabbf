// handlers/aqi_routes.go
package handlers

import (
	"strconv"

	"breathesmart/services"

	"github.com/gofiber/fiber/v2"
)

func SetupAQIRoutes(app *fiber.App, aqi *services.AQIService) {
	app.Get("/api/aqi", func(c *fiber.Ctx) error {
		lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
		lon, errLon := strconv.ParseFloat(c.Query("lon"), 64)
		if errLat != nil || errLon != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "lat and lon are required"})
		}

		advisory, err := aqi.Fetch(c.Context(), lat, lon)
		if err != nil {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": "Failed to fetch AQI",
				"cause": err.Error(),
			})
		}
		return c.JSON(advisory)
	})
}

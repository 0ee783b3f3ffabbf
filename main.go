package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"breathesmart/bus"
	"breathesmart/handlers"
	"breathesmart/middleware"
	"breathesmart/models"
	"breathesmart/services"
	"breathesmart/storage"
	"breathesmart/utils"
	"breathesmart/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 20 * 1024 * 1024, // report images
	})
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		TimeFormat: "15:04:05",
	}))

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		log.Println("⚠️  ALLOWED_ORIGINS not set, using default: http://localhost:5173")
		allowedOrigins = "http://localhost:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-User-Name, X-User-Email, X-User-Role",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Session context for every request; role checks sit on the routes
	app.Use(middleware.SessionContext())

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Report{},
		&models.RewardApproval{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	var rdb *redis.Client
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Fatal("invalid REDIS_URL:", err)
		}
		rdb = redis.NewClient(opts)
	} else {
		log.Println("⚠️  REDIS_URL not set — sync bus runs in-process, no cross-process fan-out")
	}

	if os.Getenv("R2_BUCKET_NAME") != "" {
		if err := utils.InitR2(); err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
	} else {
		log.Println("⚠️  R2_BUCKET_NAME not set — report images will not be stored")
	}

	reportStore := storage.NewGormReportStore(db)
	rewardStore := storage.NewGormRewardStore(db)

	broker := bus.New(rdb)
	syncChannel := broker.Open()
	defer syncChannel.Close()

	validationService := services.NewValidationService(reportStore, syncChannel)
	rewardService := services.NewRewardService(reportStore, rewardStore, rdb)
	aqiService := services.NewAQIService(os.Getenv("WAQI_TOKEN"), rdb)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if os.Getenv("VERIFY_SERVICE_URL") != "" {
		verifier := workers.NewVerificationClient(reportStore)
		go workers.PollPendingReports(ctx, verifier, 15*time.Second)
	} else {
		log.Println("⚠️  VERIFY_SERVICE_URL not set — pending reports will not be verified")
	}

	rewardService.StartLeaderboardScheduler()

	handlers.SetupReportRoutes(app, validationService, rewardService, reportStore)
	handlers.SetupStreamRoutes(app, broker)
	handlers.SetupRewardRoutes(app, rewardService)
	handlers.SetupAQIRoutes(app, aqiService)

	app.Get("/api/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "5001"
	}
	addr := ":" + strings.TrimPrefix(port, ":")

	go func() {
		if err := app.Listen(addr); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost%s", addr)
	log.Printf("✅ CORS configured for origins: %s", allowedOrigins)

	<-ctx.Done()
	log.Println("Shutting down server...")
	_ = app.Shutdown()
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"predictpix/internal/config"
	"predictpix/internal/database"
	"predictpix/internal/handlers"
	"predictpix/internal/jobs"
	"predictpix/internal/notify"
	"predictpix/internal/payments"
	"predictpix/internal/repository"
	"predictpix/internal/services"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to database
	if err := database.Connect(cfg.GetDSN()); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	repo := repository.NewRepository(database.GetDB())
	publisher := notify.NewLogPublisher(log)
	rail := payments.NewLocalRail(log)

	// Initialize services
	marketService := services.NewMarketService(repo, cfg.Market, publisher, log)
	referralService := services.NewReferralService(repo, log)
	predictionService := services.NewPredictionService(repo, cfg.Market, referralService, log)
	settlementService := services.NewSettlementService(repo, publisher, log)
	rewardService := services.NewRewardService(repo, publisher)
	transactionService := services.NewTransactionService(repo, rail, log)

	// Initialize handlers
	marketHandler := handlers.NewMarketHandler(marketService, predictionService, settlementService)
	predictionHandler := handlers.NewPredictionHandler(predictionService)
	rewardHandler := handlers.NewRewardHandler(rewardService)
	transactionHandler := handlers.NewTransactionHandler(transactionService)
	referralHandler := handlers.NewReferralHandler(referralService)

	// Start background jobs
	lifecycleDriver := jobs.NewMarketLifecycleDriver(
		marketService,
		settlementService,
		cfg.Jobs.LifecyclePollInterval,
		log,
	)
	go lifecycleDriver.Start()

	paymentProcessor := jobs.NewPaymentProcessor(
		rewardService,
		transactionService,
		rail,
		cfg.Jobs.PaymentPollInterval,
		log,
	)
	go paymentProcessor.Start()

	// Set up Gin router
	router := gin.Default()

	// CORS middleware
	allowedOrigins := []string{
		"http://localhost:3000",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
	if frontendURL := os.Getenv("FRONTEND_URL"); frontendURL != "" {
		allowedOrigins = append(allowedOrigins, frontendURL)
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Requested-With", "X-User-ID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Public market routes
	router.GET("/api/markets", marketHandler.GetMarkets)
	router.GET("/api/markets/:id", marketHandler.GetMarketByID)
	router.GET("/api/markets/:id/odds", marketHandler.GetMarketOdds)
	router.GET("/api/markets/:id/rewards", rewardHandler.GetMarketRewards)

	// API routes (identified caller)
	api := router.Group("/api")
	api.Use(handlers.UserContext())
	{
		// Market endpoints
		api.POST("/markets", marketHandler.CreateMarket)
		api.POST("/markets/:id/predictions", marketHandler.PlacePrediction)
		api.POST("/markets/:id/resolve", marketHandler.ResolveMarket)
		api.POST("/markets/:id/settle", marketHandler.SettleMarket)
		api.POST("/markets/:id/approve", marketHandler.ApproveMarket)
		api.POST("/markets/:id/reject", marketHandler.RejectMarket)
		api.POST("/markets/:id/cancel", marketHandler.CancelMarket)

		// Prediction endpoints
		api.GET("/predictions", predictionHandler.GetMyPredictions)
		api.GET("/predictions/:id", predictionHandler.GetPredictionByID)
		api.POST("/predictions/:id/cancel", predictionHandler.CancelPrediction)

		// Reward endpoints
		api.GET("/rewards", rewardHandler.GetMyRewards)

		// Referral endpoints
		api.POST("/referrals", referralHandler.LinkReferrer)

		// Transaction endpoints
		api.GET("/transactions", transactionHandler.GetMyTransactions)
		api.POST("/transactions/deposit", transactionHandler.Deposit)
		api.POST("/transactions/withdraw", transactionHandler.Withdraw)
		api.POST("/transactions/:id/verify", transactionHandler.VerifyTransaction)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Infof("Server starting on port %s", cfg.Server.Port)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	lifecycleDriver.Stop()
	paymentProcessor.Stop()

	// Graceful shutdown with 5 second timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited")
}

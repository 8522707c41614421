package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mangrovewatch/auth"
	"mangrovewatch/config"
	"mangrovewatch/database"
	"mangrovewatch/email"
	"mangrovewatch/estimator"
	"mangrovewatch/handlers"
	"mangrovewatch/metrics"
	"mangrovewatch/middleware"
	"mangrovewatch/ml"
	"mangrovewatch/rabbitmq"
	"mangrovewatch/service"
	"mangrovewatch/verification"
	"mangrovewatch/websocket"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, using system environment variables")
	}

	cfg := config.Load()
	metrics.Register()

	if !cfg.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}

	// Pick the store: MySQL when configured, otherwise the in-memory store.
	var store database.Store
	if cfg.DBHost != "" {
		db, err := database.NewDatabase(cfg)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize database")
		}
		defer db.Close()
		store = db
	} else {
		log.Warn("DB_HOST not set, using in-memory store (data is lost on restart)")
		store = database.NewMemoryStore()
	}

	authService := auth.NewService(store, cfg.JWTSecret, cfg.TokenLifetime)

	mlClient := ml.NewHTTPClient(cfg.MLBaseURL, ml.Timeouts{
		Health:  cfg.MLHealthTimeout,
		Verify:  cfg.MLVerifyTimeout,
		Analyze: cfg.MLAnalyzeTimeout,
		Predict: cfg.MLPredictTimeout,
	})

	est := estimator.New()
	workflow := verification.New(mlClient, store, verification.NewHTTPFetch(cfg.MLVerifyTimeout))

	hub := websocket.NewHub()
	go hub.Run()

	var publisher *rabbitmq.Publisher
	if cfg.AMQPURL != "" {
		var err error
		publisher, err = rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.IncidentRoutingKey)
		if err != nil {
			log.WithError(err).Warn("RabbitMQ unavailable, continuing without event publishing")
			publisher = nil
		}
	}

	var events handlers.EventPublisher
	if publisher != nil {
		events = publisher
	}

	notifier := email.NewSender(cfg)

	h := handlers.New(cfg, store, authService, mlClient, est, workflow, hub, events, notifier)

	router := gin.Default()
	if len(cfg.TrustedProxies) > 0 {
		if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
			log.WithError(err).Fatal("Invalid TRUSTED_PROXIES")
		}
	}
	router.Use(gzip.Gzip(gzip.DefaultCompression))
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.SecurityHeaders())

	router.GET("/health", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v3")
	{
		api.GET("/health", h.HealthCheck)
		api.POST("/auth/register", h.Register)
		api.POST("/auth/login", h.Login)

		api.POST("/incidents", h.CreateIncident)
		api.GET("/incidents", h.ListIncidents)
		api.GET("/incidents/:id", h.GetIncident)

		api.POST("/analyze-image", h.AnalyzeImage)
		api.POST("/verify-mangrove-image", h.VerifyMangroveImage)
		api.POST("/predict-mangrove", h.PredictMangrove)

		api.GET("/ws", h.LiveFeed)
		api.GET("/ws/stats", h.FeedStats)
	}

	protected := router.Group("/api/v3")
	protected.Use(middleware.AuthMiddleware(authService))
	{
		protected.GET("/users/me", h.Me)
		protected.PUT("/users/me", h.UpdateMe)
		protected.GET("/leaderboard", h.Leaderboard)
		protected.PUT("/incidents/:id", h.UpdateIncident)
		protected.POST("/incidents/:id/verify", h.VerifyIncident)
		protected.GET("/analytics/dashboard", h.DashboardAnalytics)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	sweeper := service.NewSweeper(cfg, store, workflow, events)
	go sweeper.Start()

	go func() {
		log.Infof("Starting HTTP server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	sweeper.Stop()
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.WithError(err).Warn("Failed to close RabbitMQ publisher")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("Server forced to shutdown")
	}

	log.Info("Server exited")
}

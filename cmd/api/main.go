package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/arpitvarshney44/ludo-backend/internal/config"
	"github.com/arpitvarshney44/ludo-backend/internal/handlers"
	"github.com/arpitvarshney44/ludo-backend/internal/middleware"
	"github.com/arpitvarshney44/ludo-backend/internal/pkg/db"
	"github.com/arpitvarshney44/ludo-backend/internal/repository"
	"github.com/arpitvarshney44/ludo-backend/internal/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if cfg.Env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisService, err := services.NewRedisService(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisService.Close()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	userRepo := repository.NewUserRepository(pool.Pool)
	walletRepo := repository.NewWalletRepository(pool.Pool)

	jwtService := services.NewJWTService(cfg.JWTSecret)
	settlement := services.NewSettlement(walletRepo, userRepo, cfg.ReferralBonusRate, log.Logger)
	engine := services.NewEngine(
		redisService,
		walletRepo,
		userRepo,
		settlement,
		services.NewHMACDiceRoller(),
		services.EngineConfig{
			CommissionRate: cfg.CommissionRate,
			MinEntryFee:    cfg.MinEntryFee,
			MaxEntryFee:    cfg.MaxEntryFee,
		},
		log.Logger,
	)

	hub := handlers.NewHub(log.Logger)
	go hub.Run()
	engine.SetBroadcaster(hub)

	wsHandler := handlers.NewWebSocketHandler(engine, redisService, hub, log.Logger)
	gameHandler := handlers.NewGameHandler(engine, redisService, walletRepo)
	adminHandler := handlers.NewAdminHandler(engine, log.Logger)

	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	router.GET("/healthz", func(c *gin.Context) {
		if err := pool.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	protected := router.Group("/api")
	protected.Use(middleware.AuthMiddleware(jwtService, userRepo))
	{
		protected.GET("/ws", wsHandler.HandleWebSocket)

		games := protected.Group("/games")
		{
			games.POST("", gameHandler.CreateGame)
			games.POST("/:code/join", gameHandler.JoinGame)
			games.POST("/:code/cancel", gameHandler.CancelGame)
			games.GET("/history", gameHandler.GameHistory)
			games.GET("/:code", gameHandler.GetGame)
		}

		wallet := protected.Group("/wallet")
		{
			wallet.GET("/balance", gameHandler.GetBalance)
			wallet.GET("/transactions", gameHandler.GetTransactions)
		}
	}

	admin := router.Group("/admin")
	admin.Use(middleware.AdminAuthMiddleware(jwtService, services.PermissionManageGames))
	{
		admin.POST("/games/:code/declare-winner", adminHandler.DeclareWinner)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
}

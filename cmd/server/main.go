package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZAPHODh/ws-guess-server/internal/config"
	"github.com/ZAPHODh/ws-guess-server/internal/database"
	"github.com/ZAPHODh/ws-guess-server/internal/handlers"
	"github.com/ZAPHODh/ws-guess-server/internal/middleware"
	"github.com/ZAPHODh/ws-guess-server/internal/services"
	"github.com/ZAPHODh/ws-guess-server/internal/ws"

	_ "github.com/ZAPHODh/ws-guess-server/docs"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	cachecontrol "go.eigsys.de/gin-cachecontrol/v2"
)

// @title           Guess Game API
// @version         1.0
// @description     Multiplayer timed guessing game: sessions, rounds and a websocket game channel
// @host            localhost:8080
// @BasePath        /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Enter "Bearer {token}"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	store := database.NewStore(db)
	catalog := database.NewCatalog(db)
	if _, err := catalog.SeedFromFile(context.Background(), cfg.ItemsFile); err != nil {
		log.Printf("catalog: seed skipped: %v", err)
	}

	hub := ws.NewHub()
	metrics := services.NewMetrics()
	engine := services.NewEngine(store, catalog, hub, metrics, services.EngineOptions{
		TimeUnit: cfg.TimeUnit,
	})
	sweeper := services.NewSweeper(engine, store, services.SweeperConfig{
		Interval:          cfg.SweepInterval,
		IdleGrace:         cfg.IdleGrace,
		FinishedRetention: cfg.FinishedRetention,
	})
	sweeper.Start()

	actionLimiter := ws.NewRateLimiter(cfg.WSActionLimit, cfg.WSActionWindow)
	stopLimiterCleanup := actionLimiter.RunCleanup(time.Minute)
	ipLimiter := middleware.NewIPRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, metrics.IncrementRateLimited)
	go func() {
		for range time.Tick(5 * time.Minute) {
			ipLimiter.Cleanup(10 * time.Minute)
		}
	}()

	authService := services.NewAuthService(db, cfg.JWTSecret)

	r := newRouter(cfg, routerDeps{
		auth:      authService,
		engine:    engine,
		hub:       hub,
		limiter:   actionLimiter,
		ipLimiter: ipLimiter,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
		<-sigint
		log.Println("shutdown signal received, shutting down server gracefully...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("http server shutdown: %v", err)
		}
		close(idleConnsClosed)
	}()

	log.Printf("server starting on :%s", cfg.ServerPort)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("failed to start server: %v", err)
	}
	<-idleConnsClosed

	sweeper.Stop()
	stopLimiterCleanup()
	engine.Shutdown()
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	log.Println("server shutdown complete")
}

type routerDeps struct {
	auth      *services.AuthService
	engine    *services.Engine
	hub       *ws.Hub
	limiter   *ws.RateLimiter
	ipLimiter *middleware.IPRateLimiter
}

func newRouter(cfg *config.Config, deps routerDeps) *gin.Engine {
	authHandler := handlers.NewAuthHandler(deps.auth)
	sessionHandler := handlers.NewSessionHandler(deps.engine, cfg.PublicBaseURL)
	systemHandler := handlers.NewSystemHandler(deps.engine)
	wsHandler := handlers.NewWSHandler(deps.engine, deps.hub, deps.limiter, cfg.AllowedOrigins)

	r := gin.Default()
	r.Use(middleware.RequestID())

	corsConfig := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
		corsConfig.AllowCredentials = true
	}
	r.Use(cors.New(corsConfig))

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.GET("/healthz", systemHandler.Health)
	r.GET("/metrics", systemHandler.Metrics)
	r.GET("/ws", middleware.OptionalAuth(deps.auth), wsHandler.HandleWebSocket)

	noStore := cachecontrol.New(cachecontrol.Config{
		NoStore:        true,
		NoCache:        true,
		MustRevalidate: true,
	})

	api := r.Group("/api/v1")
	api.Use(gzip.Gzip(gzip.DefaultCompression), deps.ipLimiter.Middleware())
	{
		auth := api.Group("/auth", noStore)
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.GET("/me", middleware.JWTAuth(deps.auth), authHandler.Me)
		}

		sessions := api.Group("/sessions")
		{
			sessions.POST("", noStore, middleware.JWTAuth(deps.auth), sessionHandler.CreateSession)
			sessions.GET("/code/:code", noStore, sessionHandler.GetSessionByCode)
			sessions.GET("/:id", noStore, sessionHandler.GetSession)
			sessions.GET("/:id/leaderboard", noStore, sessionHandler.GetLeaderboard)
			sessions.GET("/:id/invite.png", cachecontrol.New(cachecontrol.Config{
				Public: true,
				MaxAge: cachecontrol.Duration(time.Hour),
			}), sessionHandler.GetInviteQR)
		}
	}

	return r
}

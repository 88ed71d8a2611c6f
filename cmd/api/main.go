package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"evalform/internal/cache"
	"evalform/internal/config"
	"evalform/internal/database"
	"evalform/internal/domain"
	"evalform/internal/handler"
	"evalform/internal/question"
	"evalform/internal/service"
	"evalform/internal/session"
	"evalform/internal/store"
	filestore "evalform/internal/store/file"
	pgstore "evalform/internal/store/postgres"
	"evalform/internal/websocket"
)

func main() {
	// Optional .env for local development
	_ = godotenv.Load()

	configPath := os.Getenv("EVALFORM_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	// Load questions; an unusable source halts startup.
	items, err := question.NewCSVSource(cfg.Study.QuestionsCSV).Load(ctx)
	if err != nil {
		log.Fatalf("Failed to load questions: %v", err)
	}

	// Initialize Redis (session state + answered-blocks cache)
	redisClient, err := database.ConnectRedis(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	// Initialize the result store backend
	var resultStore domain.ResultStore
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		pool, err := database.ConnectPostgres(ctx, cfg.Postgres)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pool.Close()

		pg, err := pgstore.NewResultStore(ctx, pool, cfg.Store.Table)
		if err != nil {
			log.Fatalf("Failed to initialize result store: %v", err)
		}
		resultStore = store.WithRetry(pg, pgstore.IsTransient)
	case config.BackendFile:
		fs, err := filestore.NewResultStore(cfg.Store.ResultsDir)
		if err != nil {
			log.Fatalf("Failed to initialize result store: %v", err)
		}
		// Local writes fail permanently or not at all.
		resultStore = store.WithRetry(fs, nil)
	}

	// Initialize session manager and answered cache
	sessionManager := session.NewManager(redisClient)
	answeredCache := cache.NewAnsweredCache(redisClient)

	// Initialize websocket hub for the live progress feed
	hub := websocket.NewHub()
	go hub.Run()

	// Initialize service and handlers
	ratingService := service.NewRatingService(items, resultStore, answeredCache, sessionManager, hub)
	ratingHandler := handler.NewRatingHandler(ratingService, cfg.Study.Title)
	wsHandler := handler.NewWebSocketHandler(hub)

	// Initialize Echo
	e := echo.New()
	renderer, err := handler.NewRenderer()
	if err != nil {
		log.Fatalf("Failed to initialize renderer: %v", err)
	}
	e.Renderer = renderer

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Routes
	ratingHandler.Register(e)
	e.GET("/ws", wsHandler.HandleWebSocket)

	// Health check endpoint
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	log.Printf("Loaded %d answer variants in %d blocks from %s",
		len(items), ratingService.TotalBlocks(), cfg.Study.QuestionsCSV)

	// Start server
	go func() {
		if err := e.Start(cfg.Server.Address); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("shutting down the server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		e.Logger.Fatal(err)
	}
}

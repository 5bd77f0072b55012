package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bidhub-api/internal/cache"
	"bidhub-api/internal/config"
	"bidhub-api/internal/events"
	"bidhub-api/internal/handler"
	"bidhub-api/internal/middleware"
	"bidhub-api/internal/repository"
	"bidhub-api/internal/router"
	"bidhub-api/internal/service"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting BidHub API...")

	// Load configuration
	cfg := config.MustLoad()
	log.Printf("Environment: %s", cfg.App.Environment)

	// Initialize lot repository based on config
	var lotRepo repository.LotRepository
	var orderRepo repository.OrderRepository
	switch cfg.LotDB.Type {
	case "mongodb", "mongo":
		mongoRepo, err := repository.NewMongoLotRepository(
			cfg.LotDB.MongoURI,
			cfg.LotDB.MongoDatabase,
			cfg.LotDB.MongoCollection,
		)
		if err != nil {
			log.Fatalf("Failed to initialize MongoDB: %v", err)
		}
		defer mongoRepo.Close()
		lotRepo = mongoRepo
		orderRepo = mongoRepo
		log.Println("MongoDB lot repository initialized")
	case "memory":
		memRepo := repository.NewMemoryLotRepository()
		lotRepo = memRepo
		orderRepo = memRepo
		log.Println("In-memory lot repository initialized")
	default: // sqlite
		sqliteRepo, err := repository.NewSQLiteLotRepository(cfg.LotDB.Path)
		if err != nil {
			log.Fatalf("Failed to initialize SQLite: %v", err)
		}
		defer sqliteRepo.Close()
		lotRepo = sqliteRepo
		orderRepo = sqliteRepo
		log.Println("SQLite lot repository initialized")
	}

	// Initialize MySQL connection for user accounts (optional)
	var mysqlDB *sql.DB
	var userRepo repository.UserRepository

	mysqlDB, err := sql.Open("mysql", cfg.Database.DSN())
	if err != nil {
		log.Printf("Warning: MySQL connection failed: %v", err)
	} else {
		mysqlDB.SetMaxOpenConns(10)
		mysqlDB.SetMaxIdleConns(5)
		mysqlDB.SetConnMaxLifetime(5 * time.Minute)

		if err := mysqlDB.Ping(); err != nil {
			log.Printf("Warning: MySQL ping failed: %v", err)
			mysqlDB.Close()
			mysqlDB = nil
		} else {
			userRepo = repository.NewMySQLUserRepository(mysqlDB)
			log.Println("MySQL user repository initialized")
		}
	}
	if mysqlDB != nil {
		defer mysqlDB.Close()
	}

	// Initialize Redis client (optional)
	var redisClient *redis.Client
	if cfg.Cache.Type == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddress(),
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("Warning: Redis connection failed: %v", err)
			redisClient = nil
		} else {
			log.Println("Redis client initialized")
		}
		cancel()
	}

	// Lot read cache: Redis when available, in-process otherwise.
	var lotCache cache.Cache
	if redisClient != nil {
		lotCache = cache.NewRedisCache(redisClient, "bidhub:cache:")
	} else {
		lotCache = cache.NewMemoryCache()
	}
	defer lotCache.Close()

	// Initialize event publisher (optional)
	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.Events.NATSURL != "" {
		natsPub, err := events.NewNATSPublisher(cfg.Events.NATSURL, cfg.App.Name)
		if err != nil {
			log.Printf("Warning: NATS connection failed: %v", err)
		} else {
			publisher = natsPub
			defer natsPub.Close()
			log.Println("NATS publisher initialized")
		}
	}

	notifier := service.LogNotifier{}

	// Initialize services
	closeService := service.NewCloseService(lotRepo, orderRepo, notifier, publisher, cfg.Auction)
	closeService.SetCache(lotCache)

	reconcileService := service.NewReconcileService(lotRepo, publisher, cfg.Auction)
	reconcileService.SetCloser(closeService)
	reconcileService.SetCache(lotCache)

	scheduler := service.NewReconcileScheduler(reconcileService, cfg.Auction.ReconcileInterval)

	bidService := service.NewBidService(lotRepo, orderRepo, userRepo, notifier, publisher, cfg.Auction)
	bidService.SetScheduler(scheduler)
	bidService.SetCache(lotCache)

	lotService := service.NewLotService(lotRepo, cfg.Auction, cfg.Cache.TTL)
	lotService.SetCloser(closeService)
	lotService.SetCache(lotCache)

	var tokenService *service.TokenService
	if redisClient != nil {
		tokenService = service.NewTokenService(redisClient)
	}

	// Initialize handlers
	healthHandler := handler.New(cfg.App.Version)
	auctionHandler := handler.NewAuctionHandler(lotService, bidService, scheduler)
	adminHandler := handler.NewAdminHandler(lotRepo, scheduler, cfg.LotDB.Type)

	var authHandler *handler.AuthHandler
	if tokenService != nil && userRepo != nil {
		authHandler = handler.NewAuthHandler(tokenService, userRepo)
	}

	// Create auth middleware with injected dependencies (NO GLOBALS!)
	authMiddleware := middleware.NewAuthMiddleware(middleware.AuthConfig{
		TokenService: tokenService,
	})

	// Create router
	r := router.New(router.Config{
		Handler:        healthHandler,
		AuctionHandler: auctionHandler,
		AdminHandler:   adminHandler,
		AuthHandler:    authHandler,
		AuthMiddleware: authMiddleware,
	})

	// Kick off the reconcile loop. It parks itself once no lot needs work
	// and every accepted bid wakes it again.
	scheduler.Start()

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	scheduler.Stop()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
	fmt.Println("Goodbye!")
}

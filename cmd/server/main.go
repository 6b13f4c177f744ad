package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/rabbitmq/amqp091-go"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	"github.com/mangaverse/backend/docs"
	"github.com/mangaverse/backend/internal/accounts"
	"github.com/mangaverse/backend/internal/catalogue"
	"github.com/mangaverse/backend/internal/config"
	"github.com/mangaverse/backend/internal/database"
	"github.com/mangaverse/backend/internal/entitlements"
	"github.com/mangaverse/backend/internal/handlers"
	"github.com/mangaverse/backend/internal/idempotency"
	"github.com/mangaverse/backend/internal/ledger"
	"github.com/mangaverse/backend/internal/logging"
	mW "github.com/mangaverse/backend/internal/middleware"
	"github.com/mangaverse/backend/internal/offers"
	"github.com/mangaverse/backend/internal/scheduler"
	"github.com/mangaverse/backend/internal/services"
)

// @title Mangaverse Ledger API
// @version 1.0
// @description Wallets, access purchases, donations and work investments for the manga platform
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	docs.SwaggerInfo.Host = "localhost:" + cfg.Port

	ctx := context.Background()

	db := initReportingDB(ctx, logger)
	if db != nil {
		defer db.Close()
	}

	redisClient := database.InitRedis(ctx, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	var amqpChannel *amqp091.Channel
	if cfg.AMQPURL != "" {
		conn, ch, err := database.InitAMQP(cfg.AMQPURL, logger)
		if err != nil {
			logger.Warn("rabbitmq unavailable, amqp export disabled", zap.Error(err))
		} else {
			defer conn.Close()
			amqpChannel = ch
		}
	}

	// Engine
	catalogueDir := catalogue.NewDirectory()
	entryLedger := ledger.New()
	engine := services.NewCoordinator(cfg.Engine, services.Dependencies{
		Ledger:       entryLedger,
		Accounts:     accounts.NewStore(entryLedger),
		Offers:       offers.NewRegistry(cfg.Engine.MaxSharesPerOffer),
		Entitlements: entitlements.NewTracker(cfg.Engine.ActionsPerOpportunity),
		Catalogue:    catalogueDir,
		Identity:     catalogueDir,
		Logger:       logger,
	})

	shipper := ledger.NewShipper(entryLedger, cfg.ExportBatchSize, logger.Named("export"), exporters(db, redisClient, amqpChannel, cfg)...)
	jobs := scheduler.NewJobs(shipper, engine, logger)
	sched := scheduler.NewScheduler(jobs, logger.Named("scheduler"), scheduler.Schedules{
		Export:       cfg.ExportSchedule,
		DividendScan: cfg.DividendScanSchedule,
	})
	if err := sched.Start(); err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}

	var idemStore *idempotency.Store
	if redisClient != nil {
		idemStore = idempotency.NewStore(redisClient, cfg.IdempotencyTTL)
	}
	auth := mW.NewAuthenticator(cfg.JWTSecret, redisClient, logger.Named("auth"))

	walletHandler := handlers.NewWalletHandler(engine)
	workHandler := handlers.NewWorkHandler(engine)
	marketHandler := handlers.NewMarketHandler(engine)
	internalHandler := handlers.NewInternalHandler(catalogueDir, entryLedger)

	// Setup router
	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", idempotency.HeaderKey},
		ExposedHeaders:   []string{"Link", "Idempotent-Replayed"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":        "healthy",
			"ledgerEntries": entryLedger.Len(),
			"exportCursor":  shipper.Cursor(),
			"exportCursors": shipper.Cursors(),
		})
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/internal", func(r chi.Router) {
			r.Use(mW.RequireServiceToken(cfg.ServiceToken))
			internalHandler.Routes(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware)
			r.Use(idempotency.Middleware(idemStore, func(r *http.Request) string {
				userID, _ := mW.UserID(r.Context())
				return userID
			}, logger.Named("idempotency")))

			r.Post("/auth/logout", auth.Logout)
			walletHandler.Routes(r)
			workHandler.Routes(r)
			marketHandler.Routes(r)
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	select {
	case <-sched.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("scheduled jobs still running at shutdown")
	}

	if n, err := shipper.Flush(shutdownCtx); err != nil {
		logger.Error("final ledger export failed", zap.Int("shipped", n), zap.Error(err))
	} else {
		logger.Info("final ledger export", zap.Int("shipped", n))
	}

	logger.Info("server stopped")
}

// initReportingDB connects to the reporting database. The engine keeps
// running without it; only the Postgres export is disabled.
func initReportingDB(ctx context.Context, logger *zap.Logger) *sql.DB {
	db, err := database.InitDB(ctx, database.GetConfig(), logger)
	if err != nil {
		logger.Warn("reporting database unavailable, postgres export disabled", zap.Error(err))
		return nil
	}
	if err := database.EnsureSchema(ctx, db); err != nil {
		logger.Warn("failed to prepare reporting schema, postgres export disabled", zap.Error(err))
		db.Close()
		return nil
	}
	return db
}

func exporters(db *sql.DB, rdb *redis.Client, ch *amqp091.Channel, cfg *config.Config) []ledger.Exporter {
	var out []ledger.Exporter
	if db != nil {
		out = append(out, ledger.NewPostgresExporter(db))
	}
	if rdb != nil {
		out = append(out, ledger.NewRedisExporter(rdb, cfg.ExportQueue))
	}
	if ch != nil {
		out = append(out, ledger.NewAMQPExporter(ch, cfg.AMQPExchange))
	}
	return out
}

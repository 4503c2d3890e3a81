package main

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ezvendo/portal/internal/auth"
	"github.com/ezvendo/portal/internal/config"
	appdb "github.com/ezvendo/portal/internal/db"
	"github.com/ezvendo/portal/internal/events"
	"github.com/ezvendo/portal/internal/handlers"
	"github.com/ezvendo/portal/internal/logging"
	"github.com/ezvendo/portal/internal/middleware"
	"github.com/ezvendo/portal/internal/realtime"
	"github.com/ezvendo/portal/internal/repositories"
	"github.com/ezvendo/portal/internal/repositories/scanlog"
	"github.com/ezvendo/portal/internal/rfid"
	"github.com/ezvendo/portal/internal/routes"
	"github.com/ezvendo/portal/internal/services"
	"github.com/ezvendo/portal/internal/storage"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Args[1:], os.LookupEnv)
	if err != nil {
		logging.New(os.Stderr, "text", "info").Error(context.Background(), "config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.LogFormat, cfg.LogLevel).With("service", "portal", "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error(ctx, "server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	// ============================================================================
	// MYSQL
	// ============================================================================
	db, err := connectMySQL(ctx, cfg.MySQLDSN, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	// ============================================================================
	// REDIS (scan channel, token revocation)
	// ============================================================================
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn(ctx, "redis not reachable yet", "addr", cfg.RedisAddr, "error", err)
	}

	// ============================================================================
	// MONGODB (scan audit log)
	// ============================================================================
	checks := map[string]handlers.Check{
		"mysql": db.PingContext,
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}

	var scans scanlog.Repository = scanlog.NopRepository{}
	if cfg.MongoURI != "" {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return err
		}
		defer func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(dctx)
		}()
		repo := scanlog.NewMongoRepository(client.Database(cfg.MongoDatabase))
		if err := repo.EnsureIndexes(ctx); err != nil {
			logger.Warn(ctx, "scan log indexes not created", "error", err)
		}
		scans = repo
		checks["mongo"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
	}

	// ============================================================================
	// KAFKA (events out, coin top-ups in)
	// ============================================================================
	var publisher events.Publisher = events.NopPublisher{}
	var coins *events.CoinConsumer
	if cfg.KafkaEnabled() {
		kafkaLog := logger.With("module", "events")
		producer, err := events.DialProducer(ctx, cfg.KafkaBrokers, 10, 3*time.Second, kafkaLog)
		if err != nil {
			return err
		}
		kp := events.NewKafkaPublisher(producer, cfg.TransactionsTopic, cfg.RegistrationsTopic, kafkaLog)
		defer kp.Close()
		publisher = kp

		consumer, err := events.DialConsumer(ctx, cfg.KafkaBrokers, 10, 3*time.Second, kafkaLog)
		if err != nil {
			return err
		}
		coins = events.NewCoinConsumer(consumer, cfg.CoinsTopic, kafkaLog)
		defer coins.Close()
	}

	// ============================================================================
	// S3 (avatars)
	// ============================================================================
	avatars, err := storage.NewAvatarStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer avatars.Close()

	// ============================================================================
	// SERVICES
	// ============================================================================
	hub := realtime.NewHub(logger.With("module", "realtime"))
	tx := appdb.NewSQLTransactor(db)
	repos := repositories.NewMySQLManager()

	authSvc := services.NewAuthService(tx, repos, auth.NewRedisRevocationStore(rdb), cfg, logger.With("module", "auth"))
	tapSvc := services.NewTapService(tx, repos, authSvc, hub, cfg, logger.With("module", "tap"))
	regSvc := services.NewRegistrationService(tx, repos, authSvc, publisher, cfg, logger.With("module", "registration"))
	billing := services.NewBillingService(tx, repos, publisher, hub, cfg, logger.With("module", "billing"))
	history := services.NewHistoryService(tx, repos, cfg)
	profiles := services.NewProfileService(tx, repos, avatars, hub, cfg, logger.With("module", "profile"))

	listener := rfid.NewListener(rdb, cfg.ScanChannel, rfid.NewFilter(cfg.ScanMaxAge), scans, logger.With("module", "rfid"))
	checks["scan_listener"] = func(context.Context) error {
		if !listener.Connected() {
			return errors.New("not subscribed")
		}
		return nil
	}

	// ============================================================================
	// BACKGROUND WORKERS
	// ============================================================================
	workers, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()
	var wg sync.WaitGroup
	spawn := func(fn func(ctx context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(workers)
		}()
	}

	spawn(hub.Run)
	spawn(billing.RunSweeper)
	spawn(func(ctx context.Context) {
		if err := listener.Run(ctx, tapSvc.HandleScan); err != nil {
			logger.Error(ctx, "scan listener stopped", "error", err)
		}
	})
	if coins != nil {
		spawn(func(ctx context.Context) {
			if err := coins.Run(ctx, billing.HandleCoin); err != nil {
				logger.Error(ctx, "coin consumer stopped", "error", err)
			}
		})
	}

	// ============================================================================
	// HTTP
	// ============================================================================
	stats := &middleware.RequestStats{}
	app := fiber.New(fiber.Config{AppName: "ezvendo-portal " + version})
	app.Use(recover.New())
	app.Use(middleware.AccessLog(logger.With("module", "http")))
	app.Use(middleware.Metrics(stats))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, " + middleware.HeaderKioskKey,
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	routes.Register(app, routes.Handlers{
		Health: handlers.NewHealthHandler(checks, version),
		Status: handlers.NewStatusHandler(handlers.StatusDeps{
			DB:          db,
			Checks:      checks,
			OnlineUsers: billing.OnlineUsers,
			Listener:    listener,
			Sockets:     hub,
			Requests:    stats,
			Version:     version,
		}),
		Auth:         handlers.NewAuthHandler(authSvc),
		Tap:          handlers.NewTapHandler(tapSvc),
		Registration: handlers.NewRegistrationHandler(regSvc),
		Dashboard:    handlers.NewDashboardHandler(billing, history),
		Profile:      handlers.NewProfileHandler(profiles, authSvc),
		Kiosk:        handlers.NewKioskHandler(rfid.NewPublisher(rdb, cfg.ScanChannel), billing, scans),
		WS:           handlers.NewWSHandler(hub, tapSvc, authSvc),
	}, routes.Options{
		Authn:        authSvc,
		KioskKey:     cfg.KioskKey,
		APIRateLimit: cfg.APIRateLimit,
	})

	listenErr := make(chan error, 1)
	go func() {
		logger.Info(ctx, "listening", "addr", cfg.HTTPAddr, "env", cfg.Env)
		listenErr <- app.Listen(cfg.HTTPAddr)
	}()

	// ============================================================================
	// GRACEFUL SHUTDOWN
	// ============================================================================
	select {
	case err := <-listenErr:
		return err
	case <-ctx.Done():
	}
	logger.Info(context.Background(), "shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn(context.Background(), "http shutdown", "error", err)
	}
	cancelWorkers()
	wg.Wait()
	return nil
}

// connectMySQL retries until the database answers, then migrates it.
func connectMySQL(ctx context.Context, dsn string, logger logging.Logger) (*sql.DB, error) {
	for {
		db, err := appdb.Connect(ctx, dsn)
		if err == nil {
			if err = appdb.Migrate(ctx, db); err == nil {
				logger.Info(ctx, "database ready")
				return db, nil
			}
			db.Close()
		}
		logger.Warn(ctx, "database not ready, retrying in 5s", "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
}

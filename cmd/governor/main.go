package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/send-governor/internal/api"
	"github.com/ignite/send-governor/internal/config"
	"github.com/ignite/send-governor/internal/export"
	"github.com/ignite/send-governor/internal/pkg/distlock"
	"github.com/ignite/send-governor/internal/pkg/logger"
	"github.com/ignite/send-governor/internal/pkg/retry"
	"github.com/ignite/send-governor/internal/repository/memory"
	"github.com/ignite/send-governor/internal/repository/postgres"
	redisrepo "github.com/ignite/send-governor/internal/repository/redis"
	"github.com/ignite/send-governor/internal/service/decision"
	"github.com/ignite/send-governor/internal/service/experiment"
	"github.com/ignite/send-governor/internal/service/quota"
	"github.com/ignite/send-governor/internal/service/suppression"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("[Config] Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedactPII(!cfg.Logging.DisableRedaction)

	loc, err := cfg.Governance.Location()
	if err != nil {
		log.Fatalf("[Config] Invalid service_timezone: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db := openDatabase(cfg.Database)
	if db != nil {
		defer db.Close()
	}
	redisClient := openRedis(cfg.Redis)
	if redisClient != nil {
		defer redisClient.Close()
	}

	policy := retry.DefaultPolicy()
	policy.Timeout = cfg.Governance.StoreTimeout()
	policy.MaxRetries = cfg.Governance.StoreRetries
	limits := quota.Limits{
		Campaign:  cfg.Governance.DefaultCampaignDailyLimit,
		Workspace: cfg.Governance.DefaultWorkspaceDailyLimit,
	}

	// Stores
	var (
		suppressionRepo suppression.Repository
		quotaStore      quota.Store
		variants        experiment.VariantRepository
		assignments     experiment.AssignmentRepository
		experiments     experiment.ExperimentRepository
		stats           experiment.StatsRepository
	)
	if db != nil {
		suppressionRepo = postgres.NewSuppressionRepo(db)
		variants = postgres.NewVariantRepo(db)
		assignments = postgres.NewAssignmentRepo(db)
		experiments = postgres.NewExperimentRepo(db)
		stats = postgres.NewStatsRepo(db)
	} else {
		log.Println("[Governor] No DATABASE_URL; running in single-process memory mode")
		suppressionRepo = memory.NewSuppressionRepo()
		es := memory.NewExperimentStore()
		variants, assignments, experiments, stats = es, es, es, es
	}

	backend := cfg.Governance.QuotaBackend
	if db == nil && backend == config.QuotaBackendPostgres {
		backend = config.QuotaBackendMemory
	}
	switch backend {
	case config.QuotaBackendRedis:
		if redisClient == nil {
			log.Fatalf("[Governor] quota_backend redis requires a reachable Redis")
		}
		quotaStore = redisrepo.NewQuotaStore(redisClient, limits)
	case config.QuotaBackendPostgres:
		quotaStore = postgres.NewQuotaStore(db, limits)
	default:
		quotaStore = memory.NewQuotaStore(limits)
	}
	log.Printf("[Governor] Quota counters: %s (service day in %s)", backend, loc)

	locks := distlock.NewLocalFactory()
	if redisClient != nil || db != nil {
		locks = distlock.NewFactory(redisClient, db, cfg.Governance.LockTTL())
	}

	// Services
	suppressionSvc := suppression.NewService(suppressionRepo,
		suppression.WithFailClosed(cfg.Governance.SuppressionFailClosed),
		suppression.WithRetryPolicy(policy))
	quotaSvc := quota.NewService(quotaStore, quota.NewServiceDay(loc, time.Now), quota.WithRetryPolicy(policy))
	experimentSvc := experiment.NewService(variants, assignments, experiments, stats, experiment.WithLocks(locks))
	decisionSvc := decision.NewService(suppressionSvc, quotaSvc, experimentSvc)

	// Suppression snapshot export
	var s3Client *s3.Client
	if cfg.Export.Enabled {
		s3Client, err = export.NewS3Client(ctx, cfg.Export.S3Region, cfg.Export.AWSProfile)
		if err != nil {
			log.Fatalf("[Export] %v", err)
		}
		exporter := export.NewExporter(s3Client, suppressionSvc, cfg.Export.S3Bucket, cfg.Export.S3Prefix, cfg.Export.WorkspaceIDs)
		go exporter.Run(ctx, cfg.Export.Interval())
		log.Printf("[Export] Suppression snapshots to s3://%s/%s every %s", cfg.Export.S3Bucket, cfg.Export.S3Prefix, cfg.Export.Interval())
	}

	var bucket api.BucketHeader
	if s3Client != nil {
		bucket = s3Client
	}
	health := api.NewHealthChecker(db, redisClient, backend == config.QuotaBackendRedis, bucket, cfg.Export.S3Bucket)
	handlers := api.NewHandlers(suppressionSvc, quotaSvc, experimentSvc, decisionSvc, health)
	server := api.NewServer(cfg.Server, handlers, cfg.CORS.AllowedOrigins)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("[Governor] Listening on %s", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[Governor] Server error: %v", err)
		}
	}()

	<-done
	log.Println("[Governor] Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Governor] Shutdown error: %v", err)
	}
	log.Println("[Governor] Stopped")
}

// openDatabase returns nil when no database is configured.
func openDatabase(cfg config.DatabaseConfig) *sql.DB {
	if cfg.URL == "" {
		return nil
	}
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		log.Fatalf("[Database] Failed to open: %v", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime())

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("[Database] Ping failed: %v", err)
	}
	log.Println("[Database] Connected")
	return db
}

// openRedis returns nil when Redis is disabled or unreachable.
func openRedis(cfg config.RedisConfig) *redis.Client {
	if !cfg.Enabled || cfg.URL == "" {
		return nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		opts = &redis.Options{Addr: cfg.URL}
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("[Redis] Ping failed, continuing without Redis: %v", err)
		client.Close()
		return nil
	}
	log.Println("[Redis] Connected")
	return client
}

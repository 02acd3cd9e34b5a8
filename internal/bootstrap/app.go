package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"inbound-backend/internal/attachments"
	"inbound-backend/internal/queue"
	"inbound-backend/internal/resend"
	"inbound-backend/internal/shared/config"
	"inbound-backend/internal/shared/server"
	"inbound-backend/internal/shared/server/middleware"
	"inbound-backend/internal/shared/storage/db"
	"inbound-backend/internal/shared/storage/object"
	localstore "inbound-backend/internal/shared/storage/object/local"
	s3store "inbound-backend/internal/shared/storage/object/s3"
	"inbound-backend/internal/shared/telemetry"
	"inbound-backend/internal/webhook"
	"inbound-backend/internal/workerproc"
)

// App holds the shared dependencies of every entrypoint.
type App struct {
	Config     config.Config
	Router     *gin.Engine
	DB         *sql.DB
	Redis      *redis.Client
	Store      object.ObjectStore
	Queue      queue.Client
	Consumer   queue.Consumer
	Repo       attachments.Repo
	Processor  *attachments.Processor
	Webhook    *webhook.Handler
	WorkerDeps workerproc.Deps

	closeDB bool
}

// Build prepares shared dependencies and the HTTP router.
func Build(cfg config.Config) (*App, error) {
	return BuildContext(context.Background(), cfg)
}

// BuildContext is Build with a caller-provided context for startup I/O.
func BuildContext(ctx context.Context, cfg config.Config) (*App, error) {
	telemetry.Configure(cfg.LogLevel, cfg.LogFormat)

	app := &App{Config: cfg}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.DB = sqlDB
	app.closeDB = sqlDB != nil && !db.IsLambdaRuntime()

	rdb, err := buildRedis(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Redis = rdb

	store, err := buildStore(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Store = store

	if err := buildQueue(ctx, app); err != nil {
		app.Close()
		return nil, err
	}

	if err := buildProcessor(app); err != nil {
		app.Close()
		return nil, err
	}

	if err := buildWebhook(app); err != nil {
		app.Close()
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Webhook: app.Webhook,
		WebhookLimit: middleware.RateLimitRule{
			Rate:  cfg.WebhookRateLimitRPS,
			Burst: cfg.WebhookRateLimitBurst,
		},
		Health:        app.healthChecks(),
		EnableMetrics: true,
	})

	return app, nil
}

// KeepDBOpen makes Close leave the database pool open, for tasks that outlived shutdown.
func (a *App) KeepDBOpen() {
	if a != nil {
		a.closeDB = false
	}
}

// Close releases connections owned by the app.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			telemetry.Warn("bootstrap.redis.close_failed", map[string]any{"error": err.Error()})
		}
	}
	// The Lambda singleton outlives a single App.
	if a.DB != nil && a.closeDB {
		if err := a.DB.Close(); err != nil {
			telemetry.Warn("bootstrap.db.close_failed", map[string]any{"error": err.Error()})
		}
	}
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if cfg.DatabaseURL == "" {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.db.disabled", map[string]any{"reason": "DATABASE_URL empty; using in-memory repository"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	opts := db.OptionsFromConfig(cfg)
	if db.IsLambdaRuntime() {
		sqlDB, err = db.GetSingleton(ctx, cfg.DatabaseURL, db.LambdaOptions(opts))
	} else {
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, opts)
	}
	if err != nil {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.db.connect_failed", map[string]any{"error": err.Error(), "fallback": "memory"})
			return nil, nil
		}
		return nil, err
	}

	if cfg.IsDevLike() {
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			if !db.IsLambdaRuntime() {
				sqlDB.Close()
			}
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return sqlDB, nil
}

func buildRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		if cfg.QueueBackend == config.QueueRedis {
			return nil, fmt.Errorf("QUEUE_BACKEND=redis requires REDIS_URL")
		}
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	telemetry.Info("bootstrap.redis.connected", map[string]any{"addr": opts.Addr, "db": opts.DB})
	return rdb, nil
}

// buildStore returns a nil interface when storage is not configured.
func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	if !cfg.StorageEnabled() {
		telemetry.Warn("bootstrap.storage.disabled", map[string]any{"object_store": cfg.ObjectStoreType})
		return nil, nil
	}
	switch cfg.ObjectStoreType {
	case config.StoreLocal:
		return localstore.New(cfg.LocalStoreDir), nil
	default:
		store, err := s3store.New(ctx, s3store.Options{
			Region:          cfg.AWSRegion,
			Bucket:          cfg.S3Bucket,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			EndpointURL:     cfg.S3EndpointURL,
			KMSKeyID:        cfg.SSEKMSKeyID,
			UploadTimeout:   cfg.UploadTimeout,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

func buildQueue(ctx context.Context, app *App) error {
	cfg := app.Config
	switch cfg.QueueBackend {
	case config.QueueMemory:
		mem := queue.NewMemoryQueue()
		app.Queue, app.Consumer = mem, mem
	case config.QueueSQS:
		client, err := queue.NewSQSClient(ctx, queue.SQSOptions{
			QueueURL:          cfg.SQSQueueURL,
			Region:            cfg.SQSRegion,
			VisibilitySeconds: int(cfg.SQSVisibility.Seconds()),
		})
		if err != nil {
			return err
		}
		app.Queue, app.Consumer = client, client
	case config.QueueRedis:
		rq := queue.NewRedisQueue(app.Redis, queue.RedisOptions{
			Queue:      cfg.RedisQueueName,
			ConsumerID: consumerID(cfg),
		})
		app.Queue, app.Consumer = rq, rq
	default:
		telemetry.Warn("bootstrap.queue.disabled", map[string]any{"reason": "QUEUE_BACKEND not set; webhook events will be rejected"})
		return nil
	}
	telemetry.Info("bootstrap.queue.ready", map[string]any{"backend": cfg.QueueBackend})
	return nil
}

func consumerID(cfg config.Config) string {
	if cfg.RedisConsumerID != "" {
		return cfg.RedisConsumerID
	}
	if host, err := os.Hostname(); err == nil && strings.TrimSpace(host) != "" {
		return host
	}
	return ""
}

func buildProcessor(app *App) error {
	cfg := app.Config

	if app.DB != nil {
		app.Repo = &attachments.PGRepo{DB: app.DB}
	} else {
		app.Repo = attachments.NewMemoryRepo()
	}

	proc := &attachments.Processor{
		Store:  app.Store,
		Repo:   app.Repo,
		Prefix: cfg.S3Prefix,
	}
	if cfg.ResendAPIKey != "" {
		client, err := resend.NewClient(resend.Options{
			APIKey:          cfg.ResendAPIKey,
			BaseURL:         cfg.ResendAPIBaseURL,
			APITimeout:      cfg.ResendTimeout,
			DownloadTimeout: cfg.DownloadTimeout,
			MaxBytes:        cfg.AttachmentMaxBytes,
		})
		if err != nil {
			return err
		}
		proc.Source = client
	} else if !cfg.IsDevLike() {
		return fmt.Errorf("RESEND_API_KEY is required")
	} else {
		telemetry.Warn("bootstrap.resend.disabled", map[string]any{"reason": "RESEND_API_KEY empty; attachment fetches will fail"})
	}

	app.Processor = proc
	app.WorkerDeps = workerproc.Deps{Attachments: proc}
	return nil
}

func buildWebhook(app *App) error {
	cfg := app.Config
	h := &webhook.Handler{
		Queue:        app.Queue,
		MaxBodyBytes: cfg.MaxWebhookBodyBytes,
	}

	if cfg.ResendWebhookSecret != "" {
		v, err := webhook.NewVerifier(cfg.ResendWebhookSecret, cfg.SignatureTolerance)
		if err != nil {
			return fmt.Errorf("RESEND_WEBHOOK_SECRET: %w", err)
		}
		h.Verifier = v
	} else if !cfg.IsDevLike() {
		return errors.New("RESEND_WEBHOOK_SECRET is required")
	} else {
		telemetry.Warn("bootstrap.webhook.unverified", map[string]any{"reason": "RESEND_WEBHOOK_SECRET empty; every webhook will be rejected"})
	}

	if app.Redis != nil && cfg.WebhookDedupTTL > 0 {
		h.Dedup = webhook.NewRedisDeliveryFilter(app.Redis, cfg.WebhookDedupTTL)
	}

	app.Webhook = h
	return nil
}

func (a *App) healthChecks() map[string]server.HealthCheck {
	checks := map[string]server.HealthCheck{}
	if a.DB != nil {
		checks["database"] = func(c *gin.Context) error {
			return a.DB.PingContext(c.Request.Context())
		}
	}
	if a.Redis != nil {
		checks["redis"] = func(c *gin.Context) error {
			return a.Redis.Ping(c.Request.Context()).Err()
		}
	}
	if a.Queue == nil {
		checks["queue"] = func(*gin.Context) error {
			return errors.New("queue not configured")
		}
	}
	return checks
}

package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreS3    = "s3"
	StoreLocal = "local"

	QueueMemory = "memory"
	QueueSQS    = "sqs"
	QueueRedis  = "redis"
)

// Config holds application configuration.
type Config struct {
	Env       string
	Port      string
	LogLevel  string
	LogFormat string

	MaxWebhookBodyBytes   int64
	SignatureTolerance    time.Duration
	WebhookDedupTTL       time.Duration
	WebhookRateLimitRPS   float64
	WebhookRateLimitBurst int

	ResendAPIKey        string
	ResendWebhookSecret string
	ResendAPIBaseURL    string
	ResendTimeout       time.Duration
	DownloadTimeout     time.Duration
	AttachmentMaxBytes  int64

	QueueBackend      string
	SQSQueueURL       string
	SQSRegion         string
	SQSVisibility     time.Duration
	RedisURL          string
	RedisQueueName    string
	RedisConsumerID   string
	WorkerConcurrency int
	WorkerMaxAttempts int
	ShutdownTimeout   time.Duration

	DatabaseURL    string
	DBMaxOpenConns int
	DBMaxIdleConns int
	DBConnMaxLife  time.Duration
	DBConnMaxIdle  time.Duration
	DBPingTimeout  time.Duration

	ObjectStoreType    string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	S3Bucket           string
	S3Prefix           string
	S3EndpointURL      string
	SSEKMSKeyID        string
	LocalStoreDir      string
	UploadTimeout      time.Duration
}

// Load reads configuration from .env files and the environment. Environment
// variables win over file values.
func Load() Config {
	v := viper.New()
	setDefaults(v)
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(v, ".env", "cmd/.env")
	v.AutomaticEnv()
	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("MAX_WEBHOOK_BODY_BYTES", 1<<20)
	v.SetDefault("WEBHOOK_SIGNATURE_TOLERANCE_SECONDS", 300)
	v.SetDefault("WEBHOOK_DEDUP_TTL_SECONDS", 24*60*60)
	v.SetDefault("WEBHOOK_RATE_LIMIT_RPS", 0)
	v.SetDefault("WEBHOOK_RATE_LIMIT_BURST", 0)
	v.SetDefault("RESEND_API_BASE_URL", "https://api.resend.com")
	v.SetDefault("RESEND_TIMEOUT_SECONDS", 30)
	v.SetDefault("ATTACHMENT_DOWNLOAD_TIMEOUT_SECONDS", 120)
	v.SetDefault("ATTACHMENT_MAX_BYTES", 40<<20)
	v.SetDefault("QUEUE_BACKEND", "")
	v.SetDefault("SQS_REGION", "us-east-1")
	v.SetDefault("SQS_VISIBILITY_TIMEOUT_SECONDS", 600)
	v.SetDefault("REDIS_QUEUE_NAME", "attachments")
	v.SetDefault("WORKER_CONCURRENCY", 4)
	v.SetDefault("WORKER_MAX_ATTEMPTS", 5)
	v.SetDefault("SHUTDOWN_TIMEOUT_SECONDS", 30)
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "1h")
	v.SetDefault("DB_CONN_MAX_IDLE_TIME", "2m")
	v.SetDefault("DB_PING_TIMEOUT", "5s")
	v.SetDefault("OBJECT_STORE", StoreS3)
	v.SetDefault("LOCAL_STORE_DIR", "")
	v.SetDefault("STORAGE_UPLOAD_TIMEOUT_SECONDS", 120)

	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{
		"RESEND_API_KEY", "RESEND_WEBHOOK_SECRET", "SQS_QUEUE_URL", "REDIS_URL", "REDIS_CONSUMER_ID", "DATABASE_URL",
		"AWS_REGION", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "S3_BUCKET", "S3_PREFIX",
		"S3_ENDPOINT_URL", "SSE_KMS_KEY_ID",
	} {
		v.SetDefault(key, "")
	}
}

func fromViper(v *viper.Viper) Config {
	env := normalizeEnv(v.GetString("ENV"))
	return Config{
		Env:       env,
		Port:      strings.TrimSpace(v.GetString("PORT")),
		LogLevel:  strings.TrimSpace(v.GetString("LOG_LEVEL")),
		LogFormat: strings.TrimSpace(v.GetString("LOG_FORMAT")),

		MaxWebhookBodyBytes:   v.GetInt64("MAX_WEBHOOK_BODY_BYTES"),
		SignatureTolerance:    seconds(v, "WEBHOOK_SIGNATURE_TOLERANCE_SECONDS"),
		WebhookDedupTTL:       seconds(v, "WEBHOOK_DEDUP_TTL_SECONDS"),
		WebhookRateLimitRPS:   v.GetFloat64("WEBHOOK_RATE_LIMIT_RPS"),
		WebhookRateLimitBurst: v.GetInt("WEBHOOK_RATE_LIMIT_BURST"),

		ResendAPIKey:        strings.TrimSpace(v.GetString("RESEND_API_KEY")),
		ResendWebhookSecret: strings.TrimSpace(v.GetString("RESEND_WEBHOOK_SECRET")),
		ResendAPIBaseURL:    strings.TrimRight(strings.TrimSpace(v.GetString("RESEND_API_BASE_URL")), "/"),
		ResendTimeout:       seconds(v, "RESEND_TIMEOUT_SECONDS"),
		DownloadTimeout:     seconds(v, "ATTACHMENT_DOWNLOAD_TIMEOUT_SECONDS"),
		AttachmentMaxBytes:  v.GetInt64("ATTACHMENT_MAX_BYTES"),

		QueueBackend:      normalizeQueueBackend(v.GetString("QUEUE_BACKEND"), env),
		SQSQueueURL:       strings.TrimSpace(v.GetString("SQS_QUEUE_URL")),
		SQSRegion:         strings.TrimSpace(v.GetString("SQS_REGION")),
		SQSVisibility:     seconds(v, "SQS_VISIBILITY_TIMEOUT_SECONDS"),
		RedisURL:          strings.TrimSpace(v.GetString("REDIS_URL")),
		RedisQueueName:    strings.TrimSpace(v.GetString("REDIS_QUEUE_NAME")),
		RedisConsumerID:   strings.TrimSpace(v.GetString("REDIS_CONSUMER_ID")),
		WorkerConcurrency: v.GetInt("WORKER_CONCURRENCY"),
		WorkerMaxAttempts: v.GetInt("WORKER_MAX_ATTEMPTS"),
		ShutdownTimeout:   seconds(v, "SHUTDOWN_TIMEOUT_SECONDS"),

		DatabaseURL:    strings.TrimSpace(v.GetString("DATABASE_URL")),
		DBMaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		DBMaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		DBConnMaxLife:  v.GetDuration("DB_CONN_MAX_LIFETIME"),
		DBConnMaxIdle:  v.GetDuration("DB_CONN_MAX_IDLE_TIME"),
		DBPingTimeout:  v.GetDuration("DB_PING_TIMEOUT"),

		ObjectStoreType:    normalizeStoreType(v.GetString("OBJECT_STORE")),
		AWSRegion:          strings.TrimSpace(v.GetString("AWS_REGION")),
		AWSAccessKeyID:     strings.TrimSpace(v.GetString("AWS_ACCESS_KEY_ID")),
		AWSSecretAccessKey: strings.TrimSpace(v.GetString("AWS_SECRET_ACCESS_KEY")),
		S3Bucket:           strings.TrimSpace(v.GetString("S3_BUCKET")),
		S3Prefix:           strings.TrimSpace(v.GetString("S3_PREFIX")),
		S3EndpointURL:      strings.TrimSpace(v.GetString("S3_ENDPOINT_URL")),
		SSEKMSKeyID:        strings.TrimSpace(v.GetString("SSE_KMS_KEY_ID")),
		LocalStoreDir:      strings.TrimSpace(v.GetString("LOCAL_STORE_DIR")),
		UploadTimeout:      seconds(v, "STORAGE_UPLOAD_TIMEOUT_SECONDS"),
	}
}

// StorageEnabled reports whether object storage credentials are configured.
// A false result is the "storage disabled" mode, not an error.
func (c Config) StorageEnabled() bool {
	switch c.ObjectStoreType {
	case StoreLocal:
		return c.LocalStoreDir != ""
	default:
		return c.S3Bucket != "" && c.AWSAccessKeyID != "" && c.AWSSecretAccessKey != ""
	}
}

// IsDevLike reports whether the environment tolerates in-memory fallbacks.
func (c Config) IsDevLike() bool {
	return c.Env == "dev" || c.Env == "local"
}

func seconds(v *viper.Viper, key string) time.Duration {
	n := v.GetInt(key)
	if n < 0 {
		n = 0
	}
	return time.Duration(n) * time.Second
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case StoreLocal:
		return StoreLocal
	default:
		return StoreS3
	}
}

func normalizeQueueBackend(raw, env string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case QueueSQS:
		return QueueSQS
	case QueueRedis:
		return QueueRedis
	case QueueMemory:
		return QueueMemory
	default:
		if env == "dev" || env == "local" {
			return QueueMemory
		}
		return ""
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("ENV", "prod")
	t.Setenv("PORT", "9090")
	t.Setenv("QUEUE_BACKEND", "SQS")
	t.Setenv("SQS_QUEUE_URL", "https://sqs.example/queue")
	t.Setenv("WEBHOOK_SIGNATURE_TOLERANCE_SECONDS", "60")
	t.Setenv("S3_BUCKET", "attachments")
	t.Setenv("DB_CONN_MAX_LIFETIME", "20m")
	t.Setenv("WORKER_MAX_ATTEMPTS", "8")

	cfg := Load()

	if cfg.Env != "production" {
		t.Fatalf("expected production env, got %q", cfg.Env)
	}
	if cfg.Port != "9090" {
		t.Fatalf("expected port 9090, got %q", cfg.Port)
	}
	if cfg.QueueBackend != QueueSQS {
		t.Fatalf("expected sqs backend, got %q", cfg.QueueBackend)
	}
	if cfg.SignatureTolerance != time.Minute {
		t.Fatalf("expected 1m tolerance, got %s", cfg.SignatureTolerance)
	}
	if cfg.DBConnMaxLife != 20*time.Minute {
		t.Fatalf("expected 20m lifetime, got %s", cfg.DBConnMaxLife)
	}
	if cfg.S3Bucket != "attachments" {
		t.Fatalf("expected bucket attachments, got %q", cfg.S3Bucket)
	}
	if cfg.WorkerMaxAttempts != 8 {
		t.Fatalf("expected 8 max attempts, got %d", cfg.WorkerMaxAttempts)
	}
}

func TestLoadDefaultsToMemoryQueueInDev(t *testing.T) {
	t.Setenv("ENV", "dev")
	t.Setenv("QUEUE_BACKEND", "")

	cfg := Load()
	if cfg.QueueBackend != QueueMemory {
		t.Fatalf("expected memory backend in dev, got %q", cfg.QueueBackend)
	}
	if cfg.MaxWebhookBodyBytes != 1<<20 {
		t.Fatalf("expected default body limit, got %d", cfg.MaxWebhookBodyBytes)
	}
	if cfg.WorkerMaxAttempts != 5 {
		t.Fatalf("expected default max attempts 5, got %d", cfg.WorkerMaxAttempts)
	}
}

func TestLoadMergesEnvFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("S3_PREFIX=inbound\nRESEND_WEBHOOK_SECRET=whsec_abc\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg := Load()
	if cfg.S3Prefix != "inbound" {
		t.Fatalf("expected prefix from env file, got %q", cfg.S3Prefix)
	}
	if cfg.ResendWebhookSecret != "whsec_abc" {
		t.Fatalf("expected secret from env file, got %q", cfg.ResendWebhookSecret)
	}
}

func TestStorageEnabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{name: "s3 complete", cfg: Config{ObjectStoreType: StoreS3, S3Bucket: "b", AWSAccessKeyID: "id", AWSSecretAccessKey: "secret"}, want: true},
		{name: "s3 missing secret", cfg: Config{ObjectStoreType: StoreS3, S3Bucket: "b", AWSAccessKeyID: "id"}, want: false},
		{name: "s3 missing bucket", cfg: Config{ObjectStoreType: StoreS3, AWSAccessKeyID: "id", AWSSecretAccessKey: "secret"}, want: false},
		{name: "local with dir", cfg: Config{ObjectStoreType: StoreLocal, LocalStoreDir: "/tmp/x"}, want: true},
		{name: "local without dir", cfg: Config{ObjectStoreType: StoreLocal}, want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.StorageEnabled(); got != tt.want {
				t.Fatalf("StorageEnabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

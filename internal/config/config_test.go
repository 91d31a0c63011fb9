package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"CONFIG_FILE", "INGEST_BATCH_SIZE", "UPLOAD_MAX_BYTES", "INGEST_JOB_TIMEOUT", "QUEUE_DRIVER"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.IngestBatchSize != 10 {
		t.Fatalf("expected default batch size 10, got %d", cfg.IngestBatchSize)
	}
	if cfg.UploadMaxBytes != 50<<20 {
		t.Fatalf("expected default upload limit 50MiB, got %d", cfg.UploadMaxBytes)
	}
	if cfg.IngestJobTimeout != 0 {
		t.Fatalf("expected no job timeout by default, got %v", cfg.IngestJobTimeout)
	}
	if cfg.QueueDriver != "nats" {
		t.Fatalf("expected default queue driver nats, got %q", cfg.QueueDriver)
	}
	if cfg.IngestSampleBytes != 4096 {
		t.Fatalf("expected default sample size 4096, got %d", cfg.IngestSampleBytes)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("INGEST_BATCH_SIZE", "25")
	t.Setenv("INGEST_JOB_TIMEOUT", "90s")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")
	t.Setenv("QUEUE_DRIVER", "MEMORY")
	t.Setenv("WORKER_CONCURRENCY", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.IngestBatchSize != 25 {
		t.Fatalf("expected batch size 25, got %d", cfg.IngestBatchSize)
	}
	if cfg.IngestJobTimeout != 90*time.Second {
		t.Fatalf("expected timeout 90s, got %v", cfg.IngestJobTimeout)
	}
	if cfg.APIRateLimitRPS != 2.5 {
		t.Fatalf("expected rps 2.5, got %v", cfg.APIRateLimitRPS)
	}
	if cfg.QueueDriver != "memory" {
		t.Fatalf("expected queue driver memory, got %q", cfg.QueueDriver)
	}
	if cfg.WorkerConcurrency != 2 {
		t.Fatalf("expected fallback concurrency 2, got %d", cfg.WorkerConcurrency)
	}
}

func TestLoadClampsBatchSize(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{value: "20000", want: MaxIngestBatchSize},
		{value: "0", want: 1},
		{value: "-5", want: 1},
		{value: "13107", want: 13107},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("CONFIG_FILE", "")
			t.Setenv("INGEST_BATCH_SIZE", tt.value)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.IngestBatchSize != tt.want {
				t.Fatalf("expected batch size %d, got %d", tt.want, cfg.IngestBatchSize)
			}
		})
	}
}

func TestLoadReadsYAMLFileAndEnvWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chapterflow.yaml")
	content := "INGEST_BATCH_SIZE: 50\nlog_level: debug\nINGEST_JOB_TIMEOUT: 120\nNATS_SUBJECT: books.ingest\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("INGEST_BATCH_SIZE", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("INGEST_JOB_TIMEOUT", "")
	t.Setenv("NATS_SUBJECT", "env.subject")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.IngestBatchSize != 50 {
		t.Fatalf("expected batch size from file, got %d", cfg.IngestBatchSize)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected log level from file, got %q", cfg.LogLevel)
	}
	if cfg.IngestJobTimeout != 2*time.Minute {
		t.Fatalf("expected timeout 2m, got %v", cfg.IngestJobTimeout)
	}
	if cfg.NATSSubject != "env.subject" {
		t.Fatalf("expected env to win, got %q", cfg.NATSSubject)
	}
}

func TestLoadRejectsBrokenYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("::: not yaml\n\t- ["), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for malformed file")
	}
}

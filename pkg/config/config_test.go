package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("loading defaults: %v", err)
	}
	if cfg.Ingest.MaxDecodedBodyBytes != 64<<20 {
		t.Fatalf("unexpected default decoded-body cap: %d", cfg.Ingest.MaxDecodedBodyBytes)
	}
	if cfg.Ingest.BrotliBufferBytes != 4096 {
		t.Fatalf("unexpected default brotli buffer: %d", cfg.Ingest.BrotliBufferBytes)
	}
	if cfg.Publisher.RetryMaxAttempts != 5 {
		t.Fatalf("unexpected default retry attempts: %d", cfg.Publisher.RetryMaxAttempts)
	}
	if cfg.Kafka.Topics.SegmentUploaded != "segment-uploaded" {
		t.Fatalf("unexpected default topic: %q", cfg.Kafka.Topics.SegmentUploaded)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9999
ingest:
  maxDecodedBodyBytes: 16384
publisher:
  shards: 8
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Fatalf("expected port 9999, got %d", cfg.Server.Port)
	}
	if cfg.Ingest.MaxDecodedBodyBytes != 16384 {
		t.Fatalf("expected cap 16384, got %d", cfg.Ingest.MaxDecodedBodyBytes)
	}
	if cfg.Publisher.Shards != 8 {
		t.Fatalf("expected 8 shards, got %d", cfg.Publisher.Shards)
	}
	// Unspecified fields keep their defaults.
	if cfg.Publisher.RetryInitialBackoff != 250*time.Millisecond {
		t.Fatalf("expected default initial backoff, got %v", cfg.Publisher.RetryInitialBackoff)
	}
	if cfg.Publisher.RetryMaxAttempts != 5 {
		t.Fatalf("expected default retry attempts, got %d", cfg.Publisher.RetryMaxAttempts)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MD_SERVER_PORT", "8123")
	t.Setenv("MD_POSTGRES_HOST", "db.internal")
	t.Setenv("MD_INGEST_MAX_DECODED_BODY_BYTES", "1048576")
	t.Setenv("MD_PUBLISHER_SHARDS", "16")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	if cfg.Server.Port != 8123 {
		t.Fatalf("expected port override, got %d", cfg.Server.Port)
	}
	if cfg.Postgres.Host != "db.internal" {
		t.Fatalf("expected host override, got %q", cfg.Postgres.Host)
	}
	if cfg.Ingest.MaxDecodedBodyBytes != 1048576 {
		t.Fatalf("expected cap override, got %d", cfg.Ingest.MaxDecodedBodyBytes)
	}
	if cfg.Publisher.Shards != 16 {
		t.Fatalf("expected shards override, got %d", cfg.Publisher.Shards)
	}
}

func TestUnboundedDecodedBodyRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
ingest:
  maxDecodedBodyBytes: -1
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("negative decoded-body cap must be rejected")
	}
}

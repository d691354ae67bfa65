package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Fetch.TimeoutSeconds != 8 || cfg.Fetch.MaxPageBytes != 200000 {
		t.Fatalf("expected fetch defaults, got %+v", cfg.Fetch)
	}
	if cfg.Fetch.TokensPerSecond != 5 || cfg.Fetch.BucketCapacity != 10 {
		t.Fatalf("expected token bucket defaults, got %+v", cfg.Fetch)
	}
	if !cfg.Fetch.RespectRobots {
		t.Fatal("robots compliance must default to on")
	}
	if cfg.PubSub.TopicName != "imports.completed" {
		t.Fatalf("unexpected default topic %q", cfg.PubSub.TopicName)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
fetch:
  user_agent: rod-agent
  timeout_seconds: 12
  max_page_bytes: 50000
  respect_robots: false
  tokens_per_second: 2
  bucket_capacity: 4
headless:
  enabled: true
  max_parallel: 2
  nav_timeout_seconds: 30
  promotion_threshold: 4096
storage:
  gcs_bucket: bucket
  prefix: snapshots
  content_type: text/plain
db:
  dsn: postgres://localhost/imports
pubsub:
  project_id: proj
  topic_name: custom.topic
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Fetch.UserAgent != "rod-agent" || cfg.Fetch.RespectRobots {
		t.Fatalf("expected fetch overrides to apply: %+v", cfg.Fetch)
	}
	if cfg.DB.DSN != "postgres://localhost/imports" {
		t.Fatalf("expected db dsn override, got %q", cfg.DB.DSN)
	}
	if cfg.PubSub.TopicName != "custom.topic" {
		t.Fatalf("expected topic override, got %q", cfg.PubSub.TopicName)
	}
	if cfg.Logging.Development {
		t.Fatal("expected logging.development=false")
	}
	if got := cfg.FetchTimeout(); got != 12*time.Second {
		t.Fatalf("expected fetch timeout 12s, got %v", got)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server: ServerConfig{Port: 8080},
		Fetch: FetchConfig{
			TimeoutSeconds:  8,
			MaxPageBytes:    200000,
			TokensPerSecond: 5,
			BucketCapacity:  10,
		},
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "invalid port",
			mutate: func(c *Config) { c.Server.Port = 0 },
			want:   "server.port",
		},
		{
			name:   "invalid timeout",
			mutate: func(c *Config) { c.Fetch.TimeoutSeconds = 0 },
			want:   "fetch.timeout_seconds",
		},
		{
			name:   "invalid page cap",
			mutate: func(c *Config) { c.Fetch.MaxPageBytes = 0 },
			want:   "fetch.max_page_bytes",
		},
		{
			name:   "invalid refill rate",
			mutate: func(c *Config) { c.Fetch.TokensPerSecond = 0 },
			want:   "fetch.tokens_per_second",
		},
		{
			name:   "invalid bucket capacity",
			mutate: func(c *Config) { c.Fetch.BucketCapacity = 0 },
			want:   "fetch.bucket_capacity",
		},
		{
			name: "headless without parallelism",
			mutate: func(c *Config) {
				c.Headless.Enabled = true
				c.Headless.MaxParallel = 0
			},
			want: "headless.max_parallel",
		},
		{
			name: "auth without key",
			mutate: func(c *Config) {
				c.Auth.Enabled = true
				c.Auth.APIKey = ""
			},
			want: "auth.api_key",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

package config

import (
	"os"
	"testing"
	"time"
)

const sampleConfig = `
server:
  host: 127.0.0.1
  port: "9090"
  request_timeout: 15s
  allowed_origins:
    - http://localhost:8000
  rate_limit:
    rps: 2
    burst: 4
llm:
  provider: openai
  base_url: https://api.example.com
  api_key: dummy
  model: gpt-4o
store:
  driver: dynamo
  dynamo:
    table: vibe_chats
    region: eu-central-1
limits:
  max_messages: 3
  max_chats_per_user: 2
allowed_user_ids:
  - user-1
  - user-2
`

// TestLoad verifies that Load unmarshals the full configuration tree.
func TestLoad(t *testing.T) {
	tmp, err := os.CreateTemp(t.TempDir(), "cfg-*.yaml")
	if err != nil {
		t.Fatalf("temp file: %v", err)
	}
	if _, err := tmp.WriteString(sampleConfig); err != nil {
		t.Fatalf("write: %v", err)
	}
	tmp.Close()

	t.Setenv("CONFIG_PATH", tmp.Name())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != "9090" {
		t.Fatalf("unexpected server address: %s:%s", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout != 15*time.Second {
		t.Fatalf("unexpected request timeout: %v", cfg.Server.RequestTimeout)
	}
	if cfg.Server.RateLimit.RPS != 2 || cfg.Server.RateLimit.Burst != 4 {
		t.Fatalf("unexpected rate limit: %+v", cfg.Server.RateLimit)
	}
	if cfg.Store.Driver != "dynamo" || cfg.Store.Dynamo.Table != "vibe_chats" {
		t.Fatalf("unexpected store config: %+v", cfg.Store)
	}
	if cfg.Limits.MaxMessages != 3 || cfg.Limits.MaxChatsPerUser != 2 {
		t.Fatalf("unexpected limits: %+v", cfg.Limits)
	}
	if len(cfg.AllowedUserIDs) != 2 || cfg.AllowedUserIDs[0] != "user-1" {
		t.Fatalf("unexpected allow-list: %v", cfg.AllowedUserIDs)
	}
}

// TestLoad_Defaults verifies a missing config file still yields a runnable
// configuration.
func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Fatalf("unexpected default port: %s", cfg.Server.Port)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Fatalf("unexpected default driver: %s", cfg.Store.Driver)
	}
	if cfg.Limits.MaxMessages != 100 {
		t.Fatalf("unexpected default max_messages: %d", cfg.Limits.MaxMessages)
	}
	if cfg.LLM.Model != "gpt-4o" {
		t.Fatalf("unexpected default model: %s", cfg.LLM.Model)
	}
}

// TestLoad_EnvOverride verifies environment variables win over defaults.
func TestLoad_EnvOverride(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CHATRELAY_LLM_MODEL", "gpt-4o-mini")
	t.Setenv("CHATRELAY_STORE_DRIVER", "memory")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LLM.Model != "gpt-4o-mini" {
		t.Fatalf("env override not applied: %s", cfg.LLM.Model)
	}
	if cfg.Store.Driver != "memory" {
		t.Fatalf("env override not applied: %s", cfg.Store.Driver)
	}
}

// chdir changes into dir for the duration of the test, mirroring t.Chdir
// from newer Go releases.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore chdir: %v", err)
		}
	})
}

package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "9090")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("expected port 9090, got %q", cfg.Port)
	}
	if cfg.Backend.Timeout != 90*time.Second {
		t.Fatalf("expected default backend timeout 90s, got %v", cfg.Backend.Timeout)
	}
	if cfg.Dialog.FinishPhrase != "ЗАВЕРШИТЬ СИМУЛЯЦИЮ" {
		t.Fatalf("unexpected finish phrase %q", cfg.Dialog.FinishPhrase)
	}
	if cfg.Dialog.TimerTick != time.Second {
		t.Fatalf("expected 1s tick, got %v", cfg.Dialog.TimerTick)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BACKEND_URL", "https://trainer.example.com/api/chat")
	t.Setenv("BACKEND_TIMEOUT", "15s")
	t.Setenv("TRANSCRIPT_ENABLED", "false")
	t.Setenv("RATE_LIMIT_REQUESTS", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backend.URL != "https://trainer.example.com/api/chat" {
		t.Fatalf("unexpected backend url %q", cfg.Backend.URL)
	}
	if cfg.Backend.Timeout != 15*time.Second {
		t.Fatalf("expected 15s, got %v", cfg.Backend.Timeout)
	}
	if cfg.Transcript.Enabled {
		t.Fatal("expected transcripts to be disabled")
	}
	if cfg.RateLimit.Requests != 5 {
		t.Fatalf("expected 5 requests, got %d", cfg.RateLimit.Requests)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Port:       "8080",
			DBPath:     "db",
			Backend:    BackendConfig{URL: "http://b", Timeout: time.Second},
			Dialog:     DialogConfig{FinishPhrase: "END", TimerTick: time.Second},
			Bindings:   BindingConfig{TTL: time.Hour, SweepInterval: time.Minute},
			Transcript: TranscriptConfig{Enabled: true, Dir: "t", QueueSize: 1},
			RateLimit:  RateLimitConfig{Requests: 1, Window: time.Second},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "empty db path", mutate: func(c *Config) { c.DBPath = "" }, wantErr: "DB_PATH"},
		{name: "blank finish phrase", mutate: func(c *Config) { c.Dialog.FinishPhrase = "  " }, wantErr: "FINISH_PHRASE"},
		{name: "zero tick", mutate: func(c *Config) { c.Dialog.TimerTick = 0 }, wantErr: "TIMER_TICK"},
		{name: "transcript dir required when enabled", mutate: func(c *Config) { c.Transcript.Dir = "" }, wantErr: "TRANSCRIPT_DIR"},
		{name: "transcript dir optional when disabled", mutate: func(c *Config) {
			c.Transcript.Enabled = false
			c.Transcript.Dir = ""
		}},
		{name: "zero rate limit", mutate: func(c *Config) { c.RateLimit.Requests = 0 }, wantErr: "RATE_LIMIT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestIsDevelopment(t *testing.T) {
	for url, want := range map[string]bool{
		"":                            true,
		"http://localhost:5173":       true,
		"http://127.0.0.1:3000":       true,
		"https://trainer.example.com": false,
	} {
		cfg := Config{FrontendURL: url}
		if got := cfg.IsDevelopment(); got != want {
			t.Errorf("IsDevelopment(%q) = %v, want %v", url, got, want)
		}
	}
}

package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "default values",
			env:  map[string]string{},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Port != "8080" {
					t.Errorf("expected port 8080, got %s", cfg.Port)
				}
				if cfg.LogLevel != "info" {
					t.Errorf("expected log level info, got %s", cfg.LogLevel)
				}
				if cfg.OfflineDebounce != 120*time.Second {
					t.Errorf("expected OfflineDebounce 120s, got %v", cfg.OfflineDebounce)
				}
				if cfg.PollInterval != 1*time.Second {
					t.Errorf("expected PollInterval 1s, got %v", cfg.PollInterval)
				}
				if cfg.RosterRefreshInterval != 1*time.Second {
					t.Errorf("expected RosterRefreshInterval 1s, got %v", cfg.RosterRefreshInterval)
				}
				if cfg.JanitorHour != 1 {
					t.Errorf("expected JanitorHour 1, got %d", cfg.JanitorHour)
				}
			},
		},
		{
			name: "custom values",
			env: map[string]string{
				"PORT":              "9000",
				"LOG_LEVEL":         "debug",
				"OFFLINE_DEBOUNCE":  "30",
				"POLL_INTERVAL":     "2",
				"DIALER_CALL_TIMEOUT": "3",
				"ALLOWED_ORIGINS":   "http://example.com, http://test.com",
				"JANITOR_HOUR":      "3",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Port != "9000" {
					t.Errorf("expected port 9000, got %s", cfg.Port)
				}
				if cfg.OfflineDebounce != 30*time.Second {
					t.Errorf("expected OfflineDebounce 30s, got %v", cfg.OfflineDebounce)
				}
				if cfg.PollInterval != 2*time.Second {
					t.Errorf("expected PollInterval 2s, got %v", cfg.PollInterval)
				}
				if cfg.DialerCallTimeout != 3*time.Second {
					t.Errorf("expected DialerCallTimeout 3s, got %v", cfg.DialerCallTimeout)
				}
				if len(cfg.AllowedOrigins) != 2 {
					t.Errorf("expected 2 allowed origins, got %d", len(cfg.AllowedOrigins))
				}
				if cfg.AllowedOrigins[1] != "http://test.com" {
					t.Errorf("expected trimmed origin, got %q", cfg.AllowedOrigins[1])
				}
				if cfg.JanitorHour != 3 {
					t.Errorf("expected JanitorHour 3, got %d", cfg.JanitorHour)
				}
			},
		},
		{
			name:    "invalid poll interval",
			env:     map[string]string{"POLL_INTERVAL": "abc"},
			wantErr: true,
		},
		{
			name:    "invalid debounce",
			env:     map[string]string{"OFFLINE_DEBOUNCE": "two minutes"},
			wantErr: true,
		},
		{
			name:    "janitor hour out of range",
			env:     map[string]string{"JANITOR_HOUR": "24"},
			wantErr: true,
		},
		{
			name:    "janitor batch size not positive",
			env:     map[string]string{"JANITOR_BATCH_SIZE": "0"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.env {
				os.Setenv(k, v)
			}
			defer os.Clearenv()

			cfg, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const baseConfig = `app:
  name: "Fitclub"
  environment: "development"
  port: 8080
  base_url: "http://localhost:8080"

database:
  driver: "sqlite"
  filename: "data/fitclub.db"
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(baseConfig))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if cfg.Scheduler.GenerationCron != defaultGenerationCron {
		t.Fatalf("generation cron: %q", cfg.Scheduler.GenerationCron)
	}
	if cfg.Scheduler.ReminderHoursBefore != defaultReminderHours {
		t.Fatalf("reminder hours: %d", cfg.Scheduler.ReminderHoursBefore)
	}
	if cfg.Storage.Provider != StorageProviderLocal {
		t.Fatalf("storage provider: %q", cfg.Storage.Provider)
	}
	if cfg.Checkin.WindowBefore().Minutes() != defaultCheckinWindowMins {
		t.Fatalf("checkin window: %s", cfg.Checkin.WindowBefore())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		extra   string
		secret  string
		wantErr string
	}{
		{name: "valid", secret: "s3cret"},
		{name: "missing secret", wantErr: "APP_SECRET_KEY"},
		{
			name:    "bad cron",
			secret:  "s3cret",
			extra:   "scheduler:\n  reminder_cron: \"every minute\"\n",
			wantErr: "scheduler.reminder_cron",
		},
		{
			name:    "cloudinary without credentials",
			secret:  "s3cret",
			extra:   "storage:\n  provider: \"cloudinary\"\n",
			wantErr: "cloudinary",
		},
		{
			name:    "half cognito",
			secret:  "s3cret",
			extra:   "cognito:\n  pool_id: \"us-east-1_abc\"\n",
			wantErr: "cognito",
		},
		{
			name:    "email without sender",
			secret:  "s3cret",
			extra:   "email:\n  enabled: true\n  region: \"us-east-1\"\n",
			wantErr: "email region and sender",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(baseConfig + tt.extra))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			cfg.App.SecretKey = tt.secret

			err = cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadReadsSecretsFromEnvironment(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(baseConfig), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("APP_SECRET_KEY", "from-env")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.SecretKey != "from-env" {
		t.Fatalf("secret key: %q", cfg.App.SecretKey)
	}
	if !cfg.IsDevelopment() {
		t.Fatal("expected development environment")
	}
}

// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	defaultGenerationCron     = "0 3 25 * *"
	defaultReminderCron       = "*/15 * * * *"
	defaultCreditExpiryCron   = "30 0 * * *"
	defaultReminderHours      = 24
	defaultCheckinWindowMins  = 60
	defaultProofMaxBytes      = 5 << 20
	defaultLocalProofDir      = "data/proofs"
	defaultCloudinaryFolder   = "payment-proofs"
	StorageProviderLocal      = "local"
	StorageProviderCloudinary = "cloudinary"
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Filename string `yaml:"filename"`
}

type EmailConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Region          string `yaml:"region"`
	Sender          string `yaml:"sender"`
	AccessKeyID     string `yaml:"-"` // Loaded from environment
	SecretAccessKey string `yaml:"-"` // Loaded from environment
}

type CognitoConfig struct {
	PoolID   string `yaml:"pool_id"`
	ClientID string `yaml:"client_id"`
}

func (c CognitoConfig) Enabled() bool {
	return c.PoolID != "" && c.ClientID != ""
}

type StorageConfig struct {
	Provider      string `yaml:"provider"`
	LocalDir      string `yaml:"local_dir"`
	MaxProofBytes int64  `yaml:"max_proof_bytes"`
	Cloudinary    struct {
		CloudName string `yaml:"cloud_name"`
		APIKey    string `yaml:"api_key"`
		Folder    string `yaml:"folder"`
		APISecret string `yaml:"-"` // Loaded from environment
	} `yaml:"cloudinary"`
}

type SchedulerConfig struct {
	GenerationCron      string `yaml:"generation_cron"`
	ReminderCron        string `yaml:"reminder_cron"`
	CreditExpiryCron    string `yaml:"credit_expiry_cron"`
	ReminderHoursBefore int64  `yaml:"reminder_hours_before"`
}

type CheckinConfig struct {
	WindowBeforeMinutes int64 `yaml:"window_before_minutes"`
}

func (c CheckinConfig) WindowBefore() time.Duration {
	return time.Duration(c.WindowBeforeMinutes) * time.Minute
}

type Config struct {
	App struct {
		Name        string `yaml:"name"`
		Environment string `yaml:"environment"`
		Port        int    `yaml:"port"`
		BaseURL     string `yaml:"base_url"`
		TrustProxy  bool   `yaml:"trust_proxy"`
		SecretKey   string `yaml:"-"` // Loaded from environment
	} `yaml:"app"`

	Database  DatabaseConfig  `yaml:"database"`
	Email     EmailConfig     `yaml:"email"`
	Cognito   CognitoConfig   `yaml:"cognito"`
	Storage   StorageConfig   `yaml:"storage"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Checkin   CheckinConfig   `yaml:"checkin"`

	Features struct {
		EnableScheduler bool `yaml:"enable_scheduler"`
		EnableDebug     bool `yaml:"enable_debug"`
	} `yaml:"features"`
}

// Load loads both .env and yaml configuration
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	// Load sensitive values from environment
	cfg.App.SecretKey = os.Getenv("APP_SECRET_KEY")
	cfg.Email.AccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	cfg.Email.SecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	cfg.Storage.Cloudinary.APISecret = os.Getenv("CLOUDINARY_API_SECRET")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML and fills defaults. It does not read the environment or validate.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Scheduler.GenerationCron == "" {
		c.Scheduler.GenerationCron = defaultGenerationCron
	}
	if c.Scheduler.ReminderCron == "" {
		c.Scheduler.ReminderCron = defaultReminderCron
	}
	if c.Scheduler.CreditExpiryCron == "" {
		c.Scheduler.CreditExpiryCron = defaultCreditExpiryCron
	}
	if c.Scheduler.ReminderHoursBefore <= 0 {
		c.Scheduler.ReminderHoursBefore = defaultReminderHours
	}
	if c.Checkin.WindowBeforeMinutes <= 0 {
		c.Checkin.WindowBeforeMinutes = defaultCheckinWindowMins
	}
	if c.Storage.Provider == "" {
		c.Storage.Provider = StorageProviderLocal
	}
	if c.Storage.LocalDir == "" {
		c.Storage.LocalDir = defaultLocalProofDir
	}
	if c.Storage.MaxProofBytes <= 0 {
		c.Storage.MaxProofBytes = defaultProofMaxBytes
	}
	if c.Storage.Cloudinary.Folder == "" {
		c.Storage.Cloudinary.Folder = defaultCloudinaryFolder
	}
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.App.Port == 0 {
		return fmt.Errorf("app port is required")
	}
	if c.App.SecretKey == "" {
		return fmt.Errorf("APP_SECRET_KEY is required")
	}
	if c.Database.Driver == "" {
		return fmt.Errorf("database driver is required")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Filename == "" {
			return fmt.Errorf("database filename is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Email.Enabled {
		if c.Email.Region == "" || c.Email.Sender == "" {
			return fmt.Errorf("email region and sender are required when email is enabled")
		}
	}

	if (c.Cognito.PoolID == "") != (c.Cognito.ClientID == "") {
		return fmt.Errorf("cognito pool_id and client_id must be set together")
	}

	switch c.Storage.Provider {
	case StorageProviderLocal:
	case StorageProviderCloudinary:
		cld := c.Storage.Cloudinary
		if cld.CloudName == "" || cld.APIKey == "" || cld.APISecret == "" {
			return fmt.Errorf("cloudinary cloud_name, api_key and CLOUDINARY_API_SECRET are required")
		}
	default:
		return fmt.Errorf("unsupported storage provider: %s", c.Storage.Provider)
	}

	for name, expr := range map[string]string{
		"generation_cron":    c.Scheduler.GenerationCron,
		"reminder_cron":      c.Scheduler.ReminderCron,
		"credit_expiry_cron": c.Scheduler.CreditExpiryCron,
	} {
		if err := ValidateCronExpr(expr); err != nil {
			return fmt.Errorf("scheduler.%s: %w", name, err)
		}
	}

	return nil
}

// ValidateCronExpr checks a standard five-field cron expression.
func ValidateCronExpr(expr string) error {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return fmt.Errorf("cron expression is required")
	}
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

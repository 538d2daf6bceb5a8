package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Log         LogConfig         `yaml:"log"`
	SendGrid    SendGridConfig    `yaml:"sendgrid"`
	Payments    PaymentsConfig    `yaml:"payments"`
	Marketplace MarketplaceConfig `yaml:"marketplace"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// SendGridConfig contains outbound email settings
type SendGridConfig struct {
	APIKey    string `yaml:"api_key"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
}

// PaymentsConfig contains payment gateway settings
type PaymentsConfig struct {
	Provider string `yaml:"provider"` // "sandbox" or a real provider name
	APIKey   string `yaml:"api_key"`
	Currency string `yaml:"currency"`
}

// MarketplaceConfig contains the booking, settlement and dispute policy knobs.
// Services read this snapshot at call time; transition logic is a function of
// (state, config, now).
type MarketplaceConfig struct {
	RenterFeePercent int `yaml:"renter_fee_percent"`
	OwnerFeePercent  int `yaml:"owner_fee_percent"`

	FilingWindowHours   int `yaml:"filing_window_hours"`
	IntakeWindowHours   int `yaml:"intake_window_hours"`
	RebuttalWindowHours int `yaml:"rebuttal_window_hours"`
	NoShowRebuttalHours int `yaml:"no_show_rebuttal_hours"`

	DepositMaxAttempts       int `yaml:"deposit_max_attempts"`
	DepositRetryDelayMinutes int `yaml:"deposit_retry_delay_minutes"`

	MaxLateDays                int `yaml:"max_late_days"`
	SevereOverdueThresholdDays int `yaml:"severe_overdue_threshold_days"`

	// Deposit-authorization-failure split of the original rental charge.
	// The platform leg absorbs the rounding remainder.
	FailureRefundPercent int `yaml:"failure_refund_percent"`
	FailureOwnerPercent  int `yaml:"failure_owner_percent"`

	RequireBeforePhotos bool `yaml:"require_before_photos"`
	// Safety-or-fraud disputes skip the filing window unless this is set.
	EnforceWindowForSafety bool `yaml:"enforce_window_for_safety"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	ExpireStaleBookings   string `yaml:"expire_stale_bookings"`
	AuthorizeDeposits     string `yaml:"authorize_deposits"`
	ReleaseDeposits       string `yaml:"release_deposits"`
	SweepRebuttalTimeouts string `yaml:"sweep_rebuttal_timeouts"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override with environment variables if present
	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// SendGrid
	if val := os.Getenv("SENDGRID_API_KEY"); val != "" {
		c.SendGrid.APIKey = val
	}
	if val := os.Getenv("SENDGRID_FROM_EMAIL"); val != "" {
		c.SendGrid.FromEmail = val
	}

	// Payments
	if val := os.Getenv("PAYMENTS_PROVIDER"); val != "" {
		c.Payments.Provider = val
	}
	if val := os.Getenv("PAYMENTS_API_KEY"); val != "" {
		c.Payments.APIKey = val
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	// Set defaults for log if not configured
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Database validation
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	// Payments defaults
	if c.Payments.Provider == "" {
		c.Payments.Provider = "sandbox"
	}
	if c.Payments.Currency == "" {
		c.Payments.Currency = "usd"
	}

	// Marketplace defaults
	m := &c.Marketplace
	if m.RenterFeePercent == 0 {
		m.RenterFeePercent = 10
	}
	if m.OwnerFeePercent == 0 {
		m.OwnerFeePercent = 15
	}
	if m.FilingWindowHours == 0 {
		m.FilingWindowHours = 24
	}
	if m.IntakeWindowHours == 0 {
		m.IntakeWindowHours = 24
	}
	if m.RebuttalWindowHours == 0 {
		m.RebuttalWindowHours = 24
	}
	if m.NoShowRebuttalHours == 0 {
		m.NoShowRebuttalHours = 24
	}
	if m.DepositMaxAttempts == 0 {
		m.DepositMaxAttempts = 2
	}
	if m.DepositRetryDelayMinutes == 0 {
		m.DepositRetryDelayMinutes = 60
	}
	if m.MaxLateDays == 0 {
		m.MaxLateDays = 2
	}
	if m.SevereOverdueThresholdDays == 0 {
		m.SevereOverdueThresholdDays = 2
	}
	if m.FailureRefundPercent == 0 {
		m.FailureRefundPercent = 50
	}
	if m.FailureOwnerPercent == 0 {
		m.FailureOwnerPercent = 30
	}
	if m.FailureRefundPercent+m.FailureOwnerPercent > 100 {
		return fmt.Errorf("failure split percents exceed 100")
	}

	// Scheduler defaults
	if c.Scheduler.ExpireStaleBookings == "" {
		c.Scheduler.ExpireStaleBookings = "0 0 1 * * *" // 1 AM UTC
	}
	if c.Scheduler.AuthorizeDeposits == "" {
		c.Scheduler.AuthorizeDeposits = "0 0 6 * * *" // 6 AM UTC
	}
	if c.Scheduler.ReleaseDeposits == "" {
		c.Scheduler.ReleaseDeposits = "0 30 * * * *" // hourly at :30
	}
	if c.Scheduler.SweepRebuttalTimeouts == "" {
		c.Scheduler.SweepRebuttalTimeouts = "0 */10 * * * *" // every 10 minutes
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

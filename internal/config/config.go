// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/Shivanand-hulikatti/futsal-booking/internal/database"
)

// Config is the full runtime configuration of futsald.
type Config struct {
	Port   string `envconfig:"PORT" default:"8080"`
	AppEnv string `envconfig:"APP_ENV" default:"development"`

	DB database.Config `envconfig:"DB"`

	VenueTimezone     string        `envconfig:"VENUE_TIMEZONE" default:"Asia/Kathmandu"`
	PaymentWindow     time.Duration `envconfig:"PAYMENT_WINDOW" default:"15m"`
	MaxPendingPerUser int           `envconfig:"MAX_PENDING_PER_USER" default:"3"`
	MaxBulkDays       int           `envconfig:"MAX_BULK_DAYS" default:"30"`

	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m"`
	SweepBatch    int           `envconfig:"SWEEP_BATCH" default:"100"`

	RemindersEnabled bool `envconfig:"REMINDERS_ENABLED" default:"true"`
	ReminderHour     int  `envconfig:"REMINDER_HOUR" default:"10"`

	PaymentProvider  string        `envconfig:"PAYMENT_PROVIDER" default:"khalti"`
	KhaltiBaseURL    string        `envconfig:"KHALTI_BASE_URL" default:"https://a.khalti.com/api/v2"`
	KhaltiSecretKey  string        `envconfig:"KHALTI_SECRET_KEY"`
	OmisePublicKey   string        `envconfig:"OMISE_PUBLIC_KEY"`
	OmiseSecretKey   string        `envconfig:"OMISE_SECRET_KEY"`
	OmiseCurrency    string        `envconfig:"OMISE_CURRENCY" default:"thb"`
	OmiseSourceType  string        `envconfig:"OMISE_SOURCE_TYPE" default:"promptpay"`
	PaymentReturnURL string        `envconfig:"PAYMENT_RETURN_URL" default:"http://localhost:8080/payments/return"`
	PaymentTimeout   time.Duration `envconfig:"PAYMENT_TIMEOUT" default:"10s"`

	HolidayAPIURL   string        `envconfig:"HOLIDAY_API_URL"`
	Holidays        []string      `envconfig:"HOLIDAYS"`
	HolidayCacheTTL time.Duration `envconfig:"HOLIDAY_CACHE_TTL" default:"24h"`

	RabbitURL      string        `envconfig:"RABBIT_URL"`
	NotifyExchange string        `envconfig:"NOTIFY_EXCHANGE" default:"booking.exchange"`
	NotifyTimeout  time.Duration `envconfig:"NOTIFY_TIMEOUT" default:"3s"`

	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`

	OtelEnabled  bool   `envconfig:"OTEL_ENABLED" default:"false"`
	OtelEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	if _, err := time.LoadLocation(c.VenueTimezone); err != nil {
		return fmt.Errorf("VENUE_TIMEZONE: %w", err)
	}
	if c.PaymentWindow <= 0 {
		return fmt.Errorf("PAYMENT_WINDOW must be positive")
	}
	if c.MaxPendingPerUser <= 0 {
		return fmt.Errorf("MAX_PENDING_PER_USER must be positive")
	}
	if c.SweepInterval <= 0 || c.SweepBatch <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL and SWEEP_BATCH must be positive")
	}
	if c.MaxBulkDays <= 0 {
		return fmt.Errorf("MAX_BULK_DAYS must be positive")
	}
	if c.ReminderHour < 0 || c.ReminderHour > 23 {
		return fmt.Errorf("REMINDER_HOUR %d: want 0-23", c.ReminderHour)
	}
	switch c.PaymentProvider {
	case "khalti", "omise":
	default:
		return fmt.Errorf("PAYMENT_PROVIDER %q: want khalti or omise", c.PaymentProvider)
	}
	return nil
}

// Production reports whether detailed internal errors must be hidden.
func (c *Config) Production() bool { return c.AppEnv == "production" }

// Location returns the venue time zone. validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.VenueTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

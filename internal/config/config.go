// Package config manages application configuration from config.yaml,
// BOT_* environment variables, and default values.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrConfiguration indicates a configuration loading or validation failure.
var ErrConfiguration = errors.New("configuration error")

// Config defines the full application configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Shop      ShopConfig      `mapstructure:"shop"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Matcher   MatcherConfig   `mapstructure:"matcher"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	Orders    OrdersConfig    `mapstructure:"orders"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds the Telegram channel credentials. An empty token
// disables the channel at startup without affecting the rest of the system.
type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

// GeminiConfig holds settings for the language-generation collaborator.
type GeminiConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"       validate:"required"`
	Temperature float32       `mapstructure:"temperature" validate:"min=0,max=2"`
	Timeout     time.Duration `mapstructure:"timeout"     validate:"min=1s,max=10m"`
	MaxRetries  int           `mapstructure:"max_retries" validate:"min=0,max=5"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
}

// DatabaseConfig holds SQLite settings for the persistence mirror.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// DeliveryRecord describes delivery charge and time for a region.
type DeliveryRecord struct {
	Country        string `mapstructure:"country"`
	Region         string `mapstructure:"region"`
	DeliveryCharge int64  `mapstructure:"delivery_charge"`
	DeliveryTime   string `mapstructure:"delivery_time"`
}

// PaymentMethods describes which payment options are enabled and their
// account details, consumed read-only by the prompt builder.
type PaymentMethods struct {
	COD         bool   `mapstructure:"cod"`
	Bkash       bool   `mapstructure:"bkash"`
	BkashNumber string `mapstructure:"bkash_number"`
	BkashType   string `mapstructure:"bkash_type"`
	Nagad       bool   `mapstructure:"nagad"`
	NagadNumber string `mapstructure:"nagad_number"`
	NagadType   string `mapstructure:"nagad_type"`
	PayPal      bool   `mapstructure:"paypal"`
	PayPalEmail string `mapstructure:"paypal_email"`
}

// ShopConfig holds shop identity and policy settings used when building
// the assistant's system instruction.
type ShopConfig struct {
	Name            string           `mapstructure:"name"     validate:"required"`
	Number          string           `mapstructure:"number"`
	Email           string           `mapstructure:"email"`
	Currency        string           `mapstructure:"currency" validate:"required"`
	AssistantName   string           `mapstructure:"assistant_name"`
	ServiceProducts string           `mapstructure:"service_products"`
	ReturnPolicy    string           `mapstructure:"return_policy"`
	DeliveryRecords []DeliveryRecord `mapstructure:"delivery_records"`
	Payment         PaymentMethods   `mapstructure:"payment"`
}

// CatalogSeedProduct describes a starter product installed on first boot
// when the stored catalog is empty.
type CatalogSeedProduct struct {
	Category string   `mapstructure:"category"`
	Type     string   `mapstructure:"type"`
	Sizes    []string `mapstructure:"sizes"`
	Colors   []string `mapstructure:"colors"`
	ImageURL string   `mapstructure:"image_url"`
	Price    int64    `mapstructure:"price"`
}

// CatalogConfig holds the optional seed catalog.
type CatalogConfig struct {
	Seed []CatalogSeedProduct `mapstructure:"seed"`
}

// MatcherConfig tunes the catalog similarity matcher. The threshold and
// score weights mirror the values the matching pipeline was tuned with;
// they are exposed as configuration rather than hard-coded.
type MatcherConfig struct {
	Threshold        float64       `mapstructure:"threshold"         validate:"min=0,max=1"`
	StructuralWeight float64       `mapstructure:"structural_weight" validate:"min=0,max=1"`
	FeatureWeight    float64       `mapstructure:"feature_weight"    validate:"min=0,max=1"`
	CanonicalSize    int           `mapstructure:"canonical_size"    validate:"min=32,max=1024"`
	FetchTimeout     time.Duration `mapstructure:"fetch_timeout"     validate:"min=1s,max=2m"`
}

// MemoryConfig bounds the per-user conversation buffers.
type MemoryConfig struct {
	Capacity int           `mapstructure:"capacity" validate:"min=1,max=200"`
	MaxIdle  time.Duration `mapstructure:"max_idle" validate:"min=1m"`
}

// OrdersConfig controls sales log retention.
type OrdersConfig struct {
	RetentionDays int `mapstructure:"retention_days" validate:"min=1"`
}

// DispatchConfig bounds the event coordinator.
type DispatchConfig struct {
	MaxConcurrent   int64         `mapstructure:"max_concurrent"    validate:"min=1"`
	DedupCapacity   int           `mapstructure:"dedup_capacity"    validate:"min=16"`
	DedupTTL        time.Duration `mapstructure:"dedup_ttl"         validate:"min=1m"`
	AckStickerID    string        `mapstructure:"ack_sticker_id"`
	AckMessage      string        `mapstructure:"ack_message"`
	FallbackMessage string        `mapstructure:"fallback_message"`
	NoMatchMessage  string        `mapstructure:"no_match_message"`
	ShutdownGrace   time.Duration `mapstructure:"shutdown_grace"    validate:"min=1s"`
}

// NotifyConfig holds SMTP settings for order notifications. An empty host
// disables notifications. Timeout bounds the dial and every protocol
// exchange of a delivery.
type NotifyConfig struct {
	SMTPHost string        `mapstructure:"smtp_host"`
	SMTPPort int           `mapstructure:"smtp_port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	To       string        `mapstructure:"to"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// TaskConfig configures a single scheduled task.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// SchedulerConfig maps task names to their schedules.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// Validate checks the configuration against the struct validation tags and
// cross-field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if sum := c.Matcher.StructuralWeight + c.Matcher.FeatureWeight; sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("matcher score weights must sum to 1, got %.3f", sum)
	}

	return nil
}

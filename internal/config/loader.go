package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Load loads and validates configuration from:
// 1. Default values
// 2. config.yaml file (optional)
// 3. BOT_* environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("%w: failed to read config file: %v", ErrConfiguration, err)
		}
		// Config file not found is okay, defaults and env vars apply.
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	return cfg, nil
}

// setDefaults sets default values for optional configuration parameters.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", true)

	v.SetDefault("database.path", "storage.db")

	v.SetDefault("gemini.model", "gemini-1.5-flash")
	v.SetDefault("gemini.temperature", 0.3)
	v.SetDefault("gemini.timeout", 2*time.Minute)
	v.SetDefault("gemini.max_retries", 2)
	v.SetDefault("gemini.retry_delay", 2*time.Second)

	v.SetDefault("shop.name", "Febrica")
	v.SetDefault("shop.currency", "BDT")
	v.SetDefault("shop.assistant_name", "Ruhi")
	v.SetDefault("shop.return_policy", "Customers can return products within 7 days if there is a valid issue.")
	v.SetDefault("shop.payment.cod", true)

	v.SetDefault("matcher.threshold", 0.4)
	v.SetDefault("matcher.structural_weight", 0.7)
	v.SetDefault("matcher.feature_weight", 0.3)
	v.SetDefault("matcher.canonical_size", 256)
	v.SetDefault("matcher.fetch_timeout", 30*time.Second)

	v.SetDefault("memory.capacity", 30)
	v.SetDefault("memory.max_idle", 30*24*time.Hour)

	v.SetDefault("orders.retention_days", 60)

	v.SetDefault("notify.timeout", 10*time.Second)

	v.SetDefault("dispatch.max_concurrent", 32)
	v.SetDefault("dispatch.dedup_capacity", 4096)
	v.SetDefault("dispatch.dedup_ttl", time.Hour)
	v.SetDefault("dispatch.ack_message", "Thanks! 👍")
	v.SetDefault("dispatch.fallback_message", "Sorry, I encountered an error processing your message. Please try again later.")
	v.SetDefault("dispatch.no_match_message", "I couldn't find a matching product in our catalog. Could you please describe what you're looking for?")
	v.SetDefault("dispatch.shutdown_grace", 15*time.Second)

	v.SetDefault("scheduler.tasks.sales_log_retention.enabled", true)
	v.SetDefault("scheduler.tasks.sales_log_retention.schedule", "0 0 4 * * *")
	v.SetDefault("scheduler.tasks.memory_purge.enabled", true)
	v.SetDefault("scheduler.tasks.memory_purge.schedule", "0 30 4 * * *")
	v.SetDefault("scheduler.tasks.sql_maintenance.enabled", true)
	v.SetDefault("scheduler.tasks.sql_maintenance.schedule", "0 0 5 * * 0")
}

// Package config loads the process-wide configuration once at startup and
// returns an immutable value passed explicitly into every component,
// avoiding a global mutable config.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully-resolved, immutable configuration for one process run.
type Config struct {
	DatabaseURL    string
	Host           string
	Port           int
	LogLevel       string
	WhitelistEnabled bool
	WhitelistIPs     []string
	WebhookOnCaseCreate bool
	WebhookOnCaseMove   bool
	WebhookTimeout      time.Duration
	MaxChainDepth       int
}

// Load reads environment variables into a Config, applying the defaults
// applying defaults where a variable is unset.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 3296)
	v.SetDefault("log_level", "info")
	v.SetDefault("whitelist_enabled", false)
	v.SetDefault("webhook_on_case_create", true)
	v.SetDefault("webhook_on_case_move", true)
	v.SetDefault("webhook_timeout_seconds", 30)
	v.SetDefault("max_chain_depth", 16)

	_ = v.BindEnv("database_url", "DATABASE_URL")
	_ = v.BindEnv("host", "HOST")
	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("log_level", "RUST_LOG", "LOG_LEVEL")
	_ = v.BindEnv("whitelist_enabled", "WHITELIST_ENABLED")
	_ = v.BindEnv("whitelist_ips", "WHITELIST_IPS")
	_ = v.BindEnv("webhook_on_case_create", "WEBHOOK_ON_CASE_CREATE")
	_ = v.BindEnv("webhook_on_case_move", "WEBHOOK_ON_CASE_MOVE")
	_ = v.BindEnv("webhook_timeout_seconds", "WEBHOOK_TIMEOUT_SECONDS")
	_ = v.BindEnv("max_chain_depth", "MAX_CHAIN_DEPTH")

	databaseURL := v.GetString("database_url")
	if databaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is required")
	}

	var ips []string
	for _, ip := range strings.Split(v.GetString("whitelist_ips"), ",") {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			ips = append(ips, ip)
		}
	}

	return &Config{
		DatabaseURL:         databaseURL,
		Host:                v.GetString("host"),
		Port:                v.GetInt("port"),
		LogLevel:            v.GetString("log_level"),
		WhitelistEnabled:    v.GetBool("whitelist_enabled"),
		WhitelistIPs:        ips,
		WebhookOnCaseCreate: v.GetBool("webhook_on_case_create"),
		WebhookOnCaseMove:   v.GetBool("webhook_on_case_move"),
		WebhookTimeout:      time.Duration(v.GetInt("webhook_timeout_seconds")) * time.Second,
		MaxChainDepth:       v.GetInt("max_chain_depth"),
	}, nil
}

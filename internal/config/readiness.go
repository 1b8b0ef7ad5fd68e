package config

import (
	"fmt"
	"strings"
)

// Readiness is a production readiness report over the loaded configuration.
type Readiness struct {
	Errors   []string
	Warnings []string
}

// Ready reports whether no critical error was found.
func (r Readiness) Ready() bool {
	return len(r.Errors) == 0
}

// CheckReadiness inspects settings that work in development but not in production.
func (c *Config) CheckReadiness() Readiness {
	var r Readiness

	if c.GatewayInstanceID == "" || c.GatewayToken == "" {
		r.Errors = append(r.Errors, "gateway credentials are not set (ULTRAMSG_INSTANCE_ID, ULTRAMSG_TOKEN)")
	}
	if c.DebugMode {
		r.Warnings = append(r.Warnings, "DEBUG_MODE is on, gateway calls are simulated")
	}
	if strings.Contains(c.BackendURL, "localhost") {
		r.Warnings = append(r.Warnings, fmt.Sprintf("BACKEND_URL is %s, action links will not open outside this host", c.BackendURL))
	}
	if strings.Contains(c.FrontendURL, "localhost") {
		r.Warnings = append(r.Warnings, fmt.Sprintf("FRONTEND_URL is %s, tracking links will not open outside this host", c.FrontendURL))
	}
	if c.DatabaseURL == "" {
		r.Warnings = append(r.Warnings, "DATABASE_URL is not set, the delivery ledger is in memory")
	}
	if c.RedisAddr == "" {
		r.Warnings = append(r.Warnings, "REDIS_ADDR is not set, action tokens do not survive restarts")
	}
	if (c.TelegramBotToken == "") != (c.TelegramChatID == "") {
		r.Warnings = append(r.Warnings, "only one of TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID is set, Telegram alerts are off")
	}
	if c.OperatorAddress == "" && (c.TelegramBotToken == "" || c.TelegramChatID == "") {
		r.Warnings = append(r.Warnings, "OPERATOR_ADDRESS is not set, delivery failures raise no alert")
	}

	return r
}

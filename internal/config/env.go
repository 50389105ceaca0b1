package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment variables that override file values.
const (
	EnvToken    = "TELEGRAM_BOT_TOKEN"
	EnvUserID   = "USER_ID"
	EnvFeeURL   = "FEE_SOURCE_URL"
	EnvLogLevel = "LOG_LEVEL"
)

// ApplyEnv overlays non-empty environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv(EnvToken)); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvUserID)); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: invalid user id %q", EnvUserID, v)
		}
		cfg.Telegram.OwnerUserID = id
	}
	if v := strings.TrimSpace(os.Getenv(EnvFeeURL)); v != "" {
		cfg.FeeSource.URL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}

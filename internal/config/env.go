package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Environment variables that override file values.
const (
	EnvToken        = "BOT_TOKEN"
	EnvPort         = "PORT"
	EnvPublicURL    = "PUBLIC_URL"
	EnvTargetChatID = "TARGET_CHAT_ID"
	EnvMode         = "BOT_MODE"
	EnvLogLevel     = "LOG_LEVEL"
)

// ApplyEnv overlays environment values on cfg. getenv is os.Getenv outside
// tests. Unset or blank variables leave cfg untouched.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	get := func(k string) string { return strings.TrimSpace(getenv(k)) }

	if v := get(EnvToken); v != "" {
		cfg.Telegram.Token = v
	}
	if v := get(EnvPort); v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			return fmt.Errorf("%s: want a port number, got %q", EnvPort, v)
		}
		cfg.HTTP.Addr = ":" + v
	}
	if v := get(EnvPublicURL); v != "" {
		cfg.Telegram.PublicURL = v
	}
	if v := get(EnvTargetChatID); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: want a chat id, got %q", EnvTargetChatID, v)
		}
		cfg.Telegram.TargetChatID = id
	}
	if v := get(EnvMode); v != "" {
		cfg.Telegram.Mode = strings.ToLower(v)
	}
	if v := get(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}

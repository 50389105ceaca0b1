package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

var (
	ErrMissingToken = errors.New("telegram.token is required (or set " + EnvToken + ")")
	ErrMissingOwner = errors.New("telegram.owner_user_id must be a non-zero integer (or set " + EnvUserID + ")")
)

// Validate rejects configs the bot cannot start with. Schedule syntax is
// checked by the caller, which owns the schedule parser.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return ErrMissingToken
	}
	if cfg.Telegram.OwnerUserID == 0 {
		return ErrMissingOwner
	}

	for path, raw := range map[string]string{
		"telegram.poll_timeout":    cfg.Telegram.PollTimeout,
		"telegram.command_timeout": cfg.Telegram.CommandTimeout,
		"fee_source.timeout":       cfg.FeeSource.Timeout,
		"monitor.tick_timeout":     cfg.Monitor.TickTimeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}
	if u := strings.TrimSpace(cfg.FeeSource.URL); u != "" {
		pu, err := url.Parse(u)
		if err != nil || (pu.Scheme != "http" && pu.Scheme != "https") || pu.Host == "" {
			return fmt.Errorf("fee_source.url: invalid %q", u)
		}
	}
	if cfg.Monitor.Min < 0 || cfg.Monitor.Max < 0 {
		return fmt.Errorf("monitor.min and monitor.max must be >= 0")
	}

	if n := cfg.Notifier; n != nil {
		if n.Workers < 0 || n.QueueSize < 0 || n.RatePerSec < 0 {
			return fmt.Errorf("notifier: workers, queue_size and rate_per_sec must be >= 0")
		}
		if _, err := ParseDurationField("notifier.send_timeout", n.SendTimeout); err != nil {
			return err
		}
	}
	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(s.Path) == "" {
				return fmt.Errorf("storage.path is required when storage.driver=%s", s.Driver)
			}
		default:
			return fmt.Errorf("unknown storage.driver: %s", s.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			return err
		}
	}
	if d := cfg.Debug; d != nil {
		if _, err := ParseDurationField("debug.read_timeout", d.ReadTimeout); err != nil {
			return err
		}
		if _, err := ParseDurationField("debug.idle_timeout", d.IdleTimeout); err != nil {
			return err
		}
		if a := strings.TrimSpace(d.Addr); d.Enabled && a != "" {
			if _, _, err := net.SplitHostPort(a); err != nil {
				return fmt.Errorf("debug.addr: invalid %q (expected host:port): %w", a, err)
			}
		}
	}
	return nil
}

// ParseDurationField parses an optional Go duration string found at path.
// Empty means zero; negative values are rejected.
func ParseDurationField(path, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: duration %q must not be negative", path, raw)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for empty or zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}

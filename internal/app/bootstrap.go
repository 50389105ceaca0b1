package app

import (
	"fmt"
	"strings"
	"time"

	"feebot/internal/config"
	"feebot/internal/feesource"
	"feebot/internal/monitor"
	"feebot/internal/notifier"
	"feebot/internal/observability/debughttp"
	"feebot/internal/storage"
	"feebot/internal/threshold"
	telegram "feebot/internal/transport/telegram/adapter"
	logx "feebot/pkg/logx"
)

// Mapping from the on-disk config to component configs. Every function here
// is also used by the reload validator, so a bad reload is rejected before it
// reaches a component.

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout}, nil
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     cfg.Telegram.OwnerUserID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapFeeSourceOptions(cfg *config.Config, log logx.Logger) (string, []feesource.Option, error) {
	timeout, err := config.ParseDurationOrDefault("fee_source.timeout", cfg.FeeSource.Timeout, 10*time.Second)
	if err != nil {
		return "", nil, err
	}
	url := strings.TrimSpace(cfg.FeeSource.URL)
	if url == "" {
		url = feesource.DefaultURL
	}
	opts := []feesource.Option{feesource.WithTimeout(timeout), feesource.WithLogger(log)}
	if ua := strings.TrimSpace(cfg.FeeSource.UserAgent); ua != "" {
		opts = append(opts, feesource.WithUserAgent(ua))
	}
	return url, opts, nil
}

type monitorSettings struct {
	schedule    monitor.ParsedSpec
	tickTimeout time.Duration
	pollOnStart bool
	thresholds  threshold.Thresholds
}

func mapMonitorConfig(cfg *config.Config) (monitorSettings, error) {
	spec, err := monitor.ParseSchedule(cfg.Monitor.Schedule)
	if err != nil {
		return monitorSettings{}, err
	}
	tickTimeout, err := config.ParseDurationOrDefault("monitor.tick_timeout", cfg.Monitor.TickTimeout, 30*time.Second)
	if err != nil {
		return monitorSettings{}, err
	}
	return monitorSettings{
		schedule:    spec,
		tickTimeout: tickTimeout,
		pollOnStart: cfg.Monitor.PollOnStart,
		thresholds:  threshold.Thresholds{Min: cfg.Monitor.Min, Max: cfg.Monitor.Max},
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	n := config.EffectiveNotifier(cfg.Notifier)
	sendTimeout, err := config.ParseDurationOrDefault("notifier.send_timeout", n.SendTimeout, 15*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Enabled:     n.IsEnabled(),
		Workers:     n.Workers,
		QueueSize:   n.QueueSize,
		RatePerSec:  n.RatePerSec,
		SendTimeout: sendTimeout,
	}, nil
}

// mapStorageConfig reports enabled=false when no driver is configured.
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{Driver: driver, Path: strings.TrimSpace(cfg.Storage.Path), BusyTimeout: busy}, true, nil
}

func commandTimeout(cfg *config.Config) (time.Duration, error) {
	return config.ParseDurationOrDefault("telegram.command_timeout", cfg.Telegram.CommandTimeout, 30*time.Second)
}

func mapDebugConfig(cfg *config.Config) (debughttp.Config, error) {
	if cfg.Debug == nil {
		return debughttp.Config{}, nil
	}
	d := cfg.Debug
	out := debughttp.Config{
		Enabled:       d.Enabled,
		Addr:          strings.TrimSpace(d.Addr),
		Prefix:        debughttp.NormalizePrefix(d.Prefix),
		Token:         strings.TrimSpace(d.Token),
		AllowInsecure: d.AllowInsecure,
	}
	if out.Addr == "" {
		out.Addr = debughttp.DefaultAddr
	}
	var err error
	if out.ReadTimeout, err = config.ParseDurationOrDefault("debug.read_timeout", d.ReadTimeout, 5*time.Second); err != nil {
		return out, err
	}
	if out.IdleTimeout, err = config.ParseDurationOrDefault("debug.idle_timeout", d.IdleTimeout, 120*time.Second); err != nil {
		return out, err
	}
	if out.Enabled && !out.AllowInsecure && out.Token == "" && !debughttp.IsLoopbackAddr(out.Addr) {
		return out, fmt.Errorf("debug.addr %q: %w", out.Addr, debughttp.ErrInsecureBind)
	}
	return out, nil
}

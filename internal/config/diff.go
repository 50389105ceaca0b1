package config

import (
	"sort"
	"strings"

	logx "feebot/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe
// structured attrs for logging. Tokens are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 16)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token || ot.OwnerUserID != nt.OwnerUserID ||
		strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) ||
		strings.TrimSpace(ot.CommandTimeout) != strings.TrimSpace(nt.CommandTimeout) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
			logx.Bool("telegram.owner_changed", ot.OwnerUserID != nt.OwnerUserID),
			logx.String("telegram.poll_timeout", strings.TrimSpace(nt.PollTimeout)),
		)
	}

	if oldCfg.FeeSource != newCfg.FeeSource {
		changed = append(changed, "fee_source")
		attrs = append(attrs,
			logx.String("fee_source.url", newCfg.FeeSource.URL),
			logx.String("fee_source.timeout", newCfg.FeeSource.Timeout),
		)
	}

	if oldCfg.Monitor != newCfg.Monitor {
		changed = append(changed, "monitor")
		attrs = append(attrs,
			logx.String("monitor.schedule", newCfg.Monitor.Schedule),
			logx.String("monitor.tick_timeout", newCfg.Monitor.TickTimeout),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	on, nn := EffectiveNotifier(oldCfg.Notifier), EffectiveNotifier(newCfg.Notifier)
	if notifierChanged(on, nn) {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Bool("notifier.enabled", nn.IsEnabled()),
			logx.Int("notifier.workers", nn.Workers),
			logx.Int("notifier.rate_per_sec", nn.RatePerSec),
		)
	}

	ost, nst := derefStorage(oldCfg.Storage), derefStorage(newCfg.Storage)
	if ost != nst {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nst.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nst.Path) != ""),
		)
	}

	od, nd := derefDebug(oldCfg.Debug), derefDebug(newCfg.Debug)
	if od != nd {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", nd.Enabled),
			logx.String("debug.addr", strings.TrimSpace(nd.Addr)),
			logx.Bool("debug.token_set", nd.Token != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// DefaultNotifier is used for omitted notifier fields.
func DefaultNotifier() NotifierConfig {
	on := true
	return NotifierConfig{Enabled: &on, Workers: 1, QueueSize: 64, RatePerSec: 1, SendTimeout: "15s"}
}

// IsEnabled reports the effective switch; nil means enabled.
func (n NotifierConfig) IsEnabled() bool { return n.Enabled == nil || *n.Enabled }

// EffectiveNotifier layers n over DefaultNotifier. Zero values fall back to
// the defaults; the result always has a non-nil Enabled.
func EffectiveNotifier(n *NotifierConfig) NotifierConfig {
	out := DefaultNotifier()
	if n == nil {
		return out
	}
	on := n.IsEnabled()
	out.Enabled = &on
	if n.Workers > 0 {
		out.Workers = n.Workers
	}
	if n.QueueSize > 0 {
		out.QueueSize = n.QueueSize
	}
	if n.RatePerSec > 0 {
		out.RatePerSec = n.RatePerSec
	}
	if strings.TrimSpace(n.SendTimeout) != "" {
		out.SendTimeout = n.SendTimeout
	}
	return out
}

// notifierChanged compares effective settings; Enabled is a pointer.
func notifierChanged(a, b NotifierConfig) bool {
	return a.IsEnabled() != b.IsEnabled() ||
		a.Workers != b.Workers ||
		a.QueueSize != b.QueueSize ||
		a.RatePerSec != b.RatePerSec ||
		strings.TrimSpace(a.SendTimeout) != strings.TrimSpace(b.SendTimeout)
}

func derefStorage(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{}
	}
	return *s
}

func derefDebug(d *DebugConfig) DebugConfig {
	if d == nil {
		return DebugConfig{}
	}
	return *d
}

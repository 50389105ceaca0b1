package config

// Config is the on-disk configuration (JSON or YAML).
//
// Example (YAML):
//
//	telegram:
//	  token: "123:abc"
//	  owner_user_id: 123456789
//	monitor:
//	  schedule: "60s"
//	  min: 2
//	  max: 10
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	FeeSource FeeSourceConfig `json:"fee_source"`
	Monitor   MonitorConfig   `json:"monitor"`
	Logging   LoggingConfig   `json:"logging"`

	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
	Debug    *DebugConfig    `json:"debug,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// OwnerUserID is the only chat the bot answers and notifies.
	OwnerUserID int64 `json:"owner_user_id"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// CommandTimeout bounds handling of one inbound message.
	CommandTimeout string `json:"command_timeout,omitempty"`
}

// FeeSourceConfig points at a mempool.space compatible recommended-fees endpoint.
type FeeSourceConfig struct {
	URL       string `json:"url,omitempty"`
	Timeout   string `json:"timeout,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// MonitorConfig controls polling.
//
// Min and Max are startup defaults only; /min and /max change the live values
// and a config reload never overrides them.
type MonitorConfig struct {
	// Schedule is a Go duration ("60s"), an HH:MM interval or a cron expression.
	Schedule    string `json:"schedule,omitempty"`
	PollOnStart bool   `json:"poll_on_start,omitempty"`
	TickTimeout string `json:"tick_timeout,omitempty"`
	Min         int64  `json:"min,omitempty"`
	Max         int64  `json:"max,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram forwards log lines to the owner chat.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// NotifierConfig controls the async notification pipeline.
//
// Omitted fields (or the whole section) take the values of DefaultNotifier;
// band notifications are only turned off by an explicit "enabled: false".
type NotifierConfig struct {
	Enabled     *bool  `json:"enabled,omitempty"`
	Workers     int    `json:"workers"`
	QueueSize   int    `json:"queue_size"`
	RatePerSec  int    `json:"rate_per_sec"`
	SendTimeout string `json:"send_timeout,omitempty"`
}

// StorageConfig controls the optional audit log.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/feebot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// DebugConfig controls the optional HTTP endpoint (/healthz, /state, pprof).
// It is hot-reloadable.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Prefix        string `json:"prefix,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	ReadTimeout   string `json:"read_timeout,omitempty"`
	IdleTimeout   string `json:"idle_timeout,omitempty"`
}

package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines file next to Path (<name>.audit.jsonl)
//   - "sqlite": SQLite database file at Path
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records an operator action.
type AuditEntry struct {
	At       time.Time `json:"at"`
	ReqID    string    `json:"req_id,omitempty"`
	ActorID  int64     `json:"actor_id"`
	ChatID   int64     `json:"chat_id"`
	Action   string    `json:"action"`
	Target   string    `json:"target"`
	Error    string    `json:"error,omitempty"`
	MetaJSON string    `json:"meta,omitempty"`
}

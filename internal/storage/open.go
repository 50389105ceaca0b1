package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	logx "feebot/pkg/logx"
)

// ErrUnknownDriver is returned by Open for a driver name it cannot serve.
var ErrUnknownDriver = errors.New("unknown storage driver")

// Store is the persistence API used by the command handler.
type Store interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

type opener func(Config, logx.Logger) (Store, error)

var openers = map[string]opener{
	"file":    openFile,
	"sqlite":  openSQLite,
	"sqlite3": openSQLite,
}

// Open returns the audit store for cfg.Driver, or (nil, nil) when the driver
// is empty or "none".
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	open, ok := openers[driver]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return open(cfg, log.With(logx.String("comp", "storage"), logx.String("driver", driver)))
}

package app

import (
	"time"

	rtsup "feebot/internal/runtime/supervisor"
)

// State is the operator snapshot served by the debug endpoint at /state.
type State struct {
	Min             int64          `json:"min"`
	Max             int64          `json:"max"`
	Band            string         `json:"band"`
	NextPoll        time.Time      `json:"next_poll,omitempty"`
	NotifierEnabled bool           `json:"notifier_enabled"`
	AuditEnabled    bool           `json:"audit_enabled"`
	Goroutines      rtsup.Counters `json:"goroutines"`
}

func (a *App) state() any {
	th := a.mon.Thresholds()
	return State{
		Min:             th.Min,
		Max:             th.Max,
		Band:            a.mon.Band().String(),
		NextPoll:        a.sched.Next(),
		NotifierEnabled: a.notif.Enabled(),
		AuditEnabled:    a.store != nil,
		Goroutines:      a.sup.Counters(),
	}
}

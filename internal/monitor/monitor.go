package monitor

import (
	"context"
	"errors"
	"sync"

	"feebot/internal/eventbus"
	"feebot/internal/feesource"
	"feebot/internal/threshold"
	kit "feebot/internal/transport"
	logx "feebot/pkg/logx"
)

// Notifier dispatches one notification. *notifier.Service satisfies it.
type Notifier interface {
	Notify(ctx context.Context, n kit.Notification) error
}

// Config configures a Monitor.
type Config struct {
	// Owner receives band transition notifications.
	Owner int64
	// Thresholds are the startup bounds; zero fields fall back to threshold.Default().
	Thresholds threshold.Thresholds
}

// Monitor owns the thresholds and the last observed band. Commands and the
// poll schedule both go through it; all methods are safe for concurrent use.
type Monitor struct {
	fetcher  feesource.Fetcher
	notifier Notifier
	bus      eventbus.Bus
	log      logx.Logger
	owner    int64

	// tickMu keeps ticks non-reentrant.
	tickMu sync.Mutex

	mu         sync.Mutex
	thresholds threshold.Thresholds
	band       threshold.Band
}

// Status is the reply payload for /status.
type Status struct {
	Thresholds threshold.Thresholds
	Fee        feesource.Snapshot
	Band       threshold.Band
	LastBand   threshold.Band
}

// ThresholdsChanged is published on the bus after SetMin/SetMax.
type ThresholdsChanged struct {
	Field string `json:"field"`
	Old   int64  `json:"old"`
	New   int64  `json:"new"`
}

// BandChanged is published on the bus after a transition.
type BandChanged struct {
	From string  `json:"from"`
	To   string  `json:"to"`
	Fee  float64 `json:"fee"`
	Min  int64   `json:"min"`
	Max  int64   `json:"max"`
}

func New(cfg Config, fetcher feesource.Fetcher, n Notifier, bus eventbus.Bus, log logx.Logger) *Monitor {
	if log.IsZero() {
		log = logx.Nop()
	}
	th := threshold.Default()
	if cfg.Thresholds.Min > 0 {
		th.Min = cfg.Thresholds.Min
	}
	if cfg.Thresholds.Max > 0 {
		th.Max = cfg.Thresholds.Max
	}
	return &Monitor{
		fetcher:    fetcher,
		notifier:   n,
		bus:        bus,
		log:        log,
		owner:      cfg.Owner,
		thresholds: th,
		band:       threshold.Unset,
	}
}

func (m *Monitor) Thresholds() threshold.Thresholds {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.thresholds
}

// Band returns the last observed band (Unset before the first successful poll).
func (m *Monitor) Band() threshold.Band {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.band
}

var ErrNotPositive = errors.New("threshold must be a positive integer")

func (m *Monitor) SetMin(v int64) (threshold.Thresholds, error) {
	return m.set("min", v)
}

func (m *Monitor) SetMax(v int64) (threshold.Thresholds, error) {
	return m.set("max", v)
}

func (m *Monitor) set(field string, v int64) (threshold.Thresholds, error) {
	if v <= 0 {
		return m.Thresholds(), ErrNotPositive
	}
	m.mu.Lock()
	var old int64
	if field == "min" {
		old, m.thresholds.Min = m.thresholds.Min, v
	} else {
		old, m.thresholds.Max = m.thresholds.Max, v
	}
	th := m.thresholds
	m.mu.Unlock()

	m.log.Info("threshold updated", logx.String("field", field), logx.Int64("old", old), logx.Int64("new", v))
	m.publish(eventbus.TypeThresholdsChanged, ThresholdsChanged{Field: field, Old: old, New: v})
	return th, nil
}

// Tick runs one evaluate-and-notify cycle. A fetch failure leaves state untouched
// and is returned for the caller's information only.
func (m *Monitor) Tick(ctx context.Context) error {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	snap, err := m.fetcher.Fetch(ctx)
	if err != nil {
		m.publish(eventbus.TypeFeeFetchFailed, err.Error())
		return err
	}
	m.publish(eventbus.TypeFeePolled, snap)

	m.mu.Lock()
	th := m.thresholds
	prev := m.band
	next := threshold.Classify(snap.FastestFee, th)
	if next == prev {
		m.mu.Unlock()
		m.log.Debug("band unchanged", logx.String("band", next.String()), logx.Float64("fee", snap.FastestFee))
		return nil
	}
	m.band = next
	m.mu.Unlock()

	m.log.Info("band changed",
		logx.String("from", prev.String()),
		logx.String("to", next.String()),
		logx.Float64("fee", snap.FastestFee),
		logx.Int64("min", th.Min),
		logx.Int64("max", th.Max),
	)
	m.publish(eventbus.TypeBandChanged, BandChanged{From: prev.String(), To: next.String(), Fee: snap.FastestFee, Min: th.Min, Max: th.Max})

	n := kit.Notification{
		Channel: "telegram",
		Kind:    "band." + next.String(),
		Target:  kit.ChatTarget{ChatID: m.owner},
		Text:    threshold.TransitionMessage(next, snap.FastestFee, th),
		Options: &kit.SendOptions{ParseMode: "HTML", DisablePreview: true},
	}
	if err := m.notifier.Notify(ctx, n); err != nil {
		m.log.Warn("band notification not dispatched", logx.String("band", next.String()), logx.Err(err))
	}
	return nil
}

// Status fetches a fresh snapshot and reports it with the current thresholds.
// It never changes the tracked band.
func (m *Monitor) Status(ctx context.Context) (Status, error) {
	snap, err := m.fetcher.Fetch(ctx)
	if err != nil {
		return Status{}, err
	}
	m.mu.Lock()
	th, last := m.thresholds, m.band
	m.mu.Unlock()
	return Status{
		Thresholds: th,
		Fee:        snap,
		Band:       threshold.Classify(snap.FastestFee, th),
		LastBand:   last,
	}, nil
}

func (m *Monitor) publish(typ string, data any) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

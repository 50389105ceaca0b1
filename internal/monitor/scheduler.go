package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "feebot/pkg/logx"
)

// Scheduler drives Monitor.Tick on a cron schedule.
type Scheduler struct {
	mon     *Monitor
	log     logx.Logger
	parser  cron.Parser
	timeout time.Duration

	mu      sync.Mutex
	c       *cron.Cron
	ctx     context.Context
	spec    ParsedSpec
	entryID cron.EntryID
}

// NewScheduler creates a scheduler for mon. timeout bounds each tick (0 means none).
func NewScheduler(mon *Monitor, spec ParsedSpec, timeout time.Duration, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		mon:  mon,
		log:  log,
		spec: spec,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser:  cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		timeout: timeout,
	}
}

// Validate checks that spec can be scheduled without starting anything.
func (s *Scheduler) Validate(spec ParsedSpec) error {
	_, err := s.schedule(spec)
	return err
}

func (s *Scheduler) schedule(spec ParsedSpec) (cron.Schedule, error) {
	if spec.Kind == SpecInterval {
		if spec.Every <= 0 {
			return nil, fmt.Errorf("interval must be > 0")
		}
		return cron.Every(spec.Every), nil
	}
	sched, err := s.parser.Parse(spec.Cron)
	if err != nil {
		return nil, fmt.Errorf("parse cron %q: %w", spec.Cron, err)
	}
	return sched, nil
}

// Start begins ticking. When runNow is set, one tick runs immediately.
func (s *Scheduler) Start(ctx context.Context, runNow bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	sched, err := s.schedule(s.spec)
	if err != nil {
		return err
	}
	s.ctx = ctx
	s.c = cron.New(
		cron.WithParser(s.parser),
		cron.WithLogger(cronLogger{log: s.log}),
		cron.WithChain(cron.Recover(cronLogger{log: s.log}), cron.SkipIfStillRunning(cronLogger{log: s.log})),
	)
	s.entryID = s.c.Schedule(sched, cron.FuncJob(s.run))
	s.c.Start()
	s.log.Info("poll schedule started", logx.String("schedule", s.spec.String()))

	if runNow {
		go s.run()
	}
	return nil
}

// Reschedule swaps the poll schedule in place.
func (s *Scheduler) Reschedule(spec ParsedSpec) error {
	sched, err := s.schedule(spec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if spec == s.spec {
		return nil
	}
	old := s.spec
	s.spec = spec
	if s.c != nil {
		s.c.Remove(s.entryID)
		s.entryID = s.c.Schedule(sched, cron.FuncJob(s.run))
	}
	s.log.Info("poll schedule changed", logx.String("old", old.String()), logx.String("new", spec.String()))
	return nil
}

// Stop stops triggering and waits for a running tick until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("poll schedule stopped")
}

// Next reports the next scheduled tick (zero if not running).
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return time.Time{}
	}
	return s.c.Entry(s.entryID).Next
}

func (s *Scheduler) run() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	_ = s.mon.Tick(ctx)
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}

package monitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"feebot/internal/eventbus"
	"feebot/internal/feesource"
	"feebot/internal/threshold"
	kit "feebot/internal/transport"
	logx "feebot/pkg/logx"
)

// seqFetcher returns fees in order, repeating the last one. A non-nil errs[i]
// fails call i instead.
type seqFetcher struct {
	mu   sync.Mutex
	fees []float64
	errs []error
	i    int
}

func (f *seqFetcher) Fetch(ctx context.Context) (feesource.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.i
	if i >= len(f.fees) {
		i = len(f.fees) - 1
	}
	f.i++
	if i < len(f.errs) && f.errs[i] != nil {
		return feesource.Snapshot{}, f.errs[i]
	}
	return feesource.Snapshot{FastestFee: f.fees[i], FetchedAt: time.Now()}, nil
}

type recNotifier struct {
	mu  sync.Mutex
	got []kit.Notification
	err error
}

func (r *recNotifier) Notify(ctx context.Context, n kit.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return r.err
}

func (r *recNotifier) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.got))
	for _, n := range r.got {
		out = append(out, n.Kind)
	}
	return out
}

func newTestMonitor(f feesource.Fetcher, n Notifier, th threshold.Thresholds) *Monitor {
	return New(Config{Owner: 42, Thresholds: th}, f, n, eventbus.New(), logx.Nop())
}

// tickAll runs one tick per fee and returns the notification kinds observed after each tick.
func tickAll(t *testing.T, m *Monitor, n *recNotifier, count int) [][]string {
	t.Helper()
	var out [][]string
	seen := 0
	for i := 0; i < count; i++ {
		_ = m.Tick(context.Background())
		k := n.kinds()
		out = append(out, k[seen:])
		seen = len(k)
	}
	return out
}

func TestTickScenarioA(t *testing.T) {
	n := &recNotifier{}
	m := newTestMonitor(&seqFetcher{fees: []float64{5, 5, 1}}, n, threshold.Thresholds{Min: 2, Max: 10})
	// The first poll moves Unset -> Inside, which notifies; the scenario's interest is
	// that the repeated 5 stays silent and 1 produces exactly one "below".
	got := tickAll(t, m, n, 3)
	if len(got[0]) != 1 || got[0][0] != "band.inside" {
		t.Fatalf("tick 1: %v", got[0])
	}
	if len(got[1]) != 0 {
		t.Fatalf("tick 2 should be silent, got %v", got[1])
	}
	if len(got[2]) != 1 || got[2][0] != "band.below" {
		t.Fatalf("tick 3: %v", got[2])
	}
}

func TestTickScenarioB(t *testing.T) {
	n := &recNotifier{}
	m := newTestMonitor(&seqFetcher{fees: []float64{1, 15}}, n, threshold.Thresholds{})
	got := tickAll(t, m, n, 2)
	if len(got[0]) != 1 || got[0][0] != "band.below" {
		t.Fatalf("tick 1: %v", got[0])
	}
	if len(got[1]) != 1 || got[1][0] != "band.above" {
		t.Fatalf("tick 2: %v", got[1])
	}
	if m.Band() != threshold.Above {
		t.Fatalf("band = %v, want above", m.Band())
	}
}

func TestTickIdempotent(t *testing.T) {
	n := &recNotifier{}
	m := newTestMonitor(&seqFetcher{fees: []float64{12}}, n, threshold.Thresholds{})
	for i := 0; i < 5; i++ {
		if err := m.Tick(context.Background()); err != nil {
			t.Fatalf("Tick() error: %v", err)
		}
	}
	if got := n.kinds(); len(got) != 1 || got[0] != "band.above" {
		t.Fatalf("notifications = %v, want exactly one above", got)
	}
}

func TestTickFetchFailureIsNoop(t *testing.T) {
	n := &recNotifier{}
	boom := errors.New("network down")
	m := newTestMonitor(&seqFetcher{fees: []float64{1, 1, 1}, errs: []error{nil, boom}}, n, threshold.Thresholds{})

	_ = m.Tick(context.Background())
	if err := m.Tick(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Tick() error = %v, want %v", err, boom)
	}
	if m.Band() != threshold.Below {
		t.Fatalf("band changed on failed fetch: %v", m.Band())
	}
	_ = m.Tick(context.Background())
	if got := n.kinds(); len(got) != 1 {
		t.Fatalf("notifications = %v, want one", got)
	}
}

func TestTickFirstFailureKeepsUnset(t *testing.T) {
	n := &recNotifier{}
	m := newTestMonitor(&seqFetcher{fees: []float64{5}, errs: []error{errors.New("x")}}, n, threshold.Thresholds{})
	_ = m.Tick(context.Background())
	if m.Band() != threshold.Unset || len(n.kinds()) != 0 {
		t.Fatalf("band = %v, notifications = %v", m.Band(), n.kinds())
	}
}

func TestTickDispatchFailureStillRecordsBand(t *testing.T) {
	n := &recNotifier{err: errors.New("queue full")}
	m := newTestMonitor(&seqFetcher{fees: []float64{1, 1}}, n, threshold.Thresholds{})
	_ = m.Tick(context.Background())
	_ = m.Tick(context.Background())
	if m.Band() != threshold.Below {
		t.Fatalf("band = %v, want below", m.Band())
	}
	if got := n.kinds(); len(got) != 1 {
		t.Fatalf("dispatch attempts = %d, want 1 (no retry)", len(got))
	}
}

func TestTickNotificationContent(t *testing.T) {
	n := &recNotifier{}
	m := newTestMonitor(&seqFetcher{fees: []float64{1}}, n, threshold.Thresholds{Min: 3, Max: 9})
	_ = m.Tick(context.Background())

	got := n.got[0]
	if got.Target.ChatID != 42 {
		t.Fatalf("target = %d, want 42", got.Target.ChatID)
	}
	if !strings.Contains(got.Text, "minimum threshold of 3 sat/vByte") || got.Options.ParseMode != "HTML" {
		t.Fatalf("unexpected notification: %+v", got)
	}
}

func TestThresholdChangeAffectsNextTick(t *testing.T) {
	n := &recNotifier{}
	m := newTestMonitor(&seqFetcher{fees: []float64{5}}, n, threshold.Thresholds{Min: 2, Max: 10})
	_ = m.Tick(context.Background())
	if _, err := m.SetMax(4); err != nil {
		t.Fatalf("SetMax: %v", err)
	}
	_ = m.Tick(context.Background())
	if got := n.kinds(); len(got) != 2 || got[1] != "band.above" {
		t.Fatalf("notifications = %v", got)
	}
}

func TestSetRejectsNonPositive(t *testing.T) {
	t.Parallel()
	m := newTestMonitor(&seqFetcher{fees: []float64{1}}, &recNotifier{}, threshold.Thresholds{})
	for _, v := range []int64{0, -3} {
		if _, err := m.SetMin(v); !errors.Is(err, ErrNotPositive) {
			t.Fatalf("SetMin(%d) error = %v", v, err)
		}
		if _, err := m.SetMax(v); !errors.Is(err, ErrNotPositive) {
			t.Fatalf("SetMax(%d) error = %v", v, err)
		}
	}
	if th := m.Thresholds(); th != threshold.Default() {
		t.Fatalf("thresholds mutated: %+v", th)
	}
}

func TestSetPublishesEvent(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4)
	defer unsub()
	m := New(Config{Owner: 1}, &seqFetcher{fees: []float64{1}}, &recNotifier{}, bus, logx.Nop())

	th, err := m.SetMin(4)
	if err != nil || th.Min != 4 || th.Max != threshold.DefaultMax {
		t.Fatalf("SetMin = %+v, %v", th, err)
	}
	e := <-ch
	tc, ok := e.Data.(ThresholdsChanged)
	if e.Type != eventbus.TypeThresholdsChanged || !ok || tc.Old != threshold.DefaultMin || tc.New != 4 {
		t.Fatalf("unexpected event %+v", e)
	}
}

func TestStatusDoesNotTouchBand(t *testing.T) {
	m := newTestMonitor(&seqFetcher{fees: []float64{20}}, &recNotifier{}, threshold.Thresholds{})
	st, err := m.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Band != threshold.Above || st.LastBand != threshold.Unset || m.Band() != threshold.Unset {
		t.Fatalf("status = %+v, band = %v", st, m.Band())
	}

	fail := newTestMonitor(&seqFetcher{fees: []float64{1}, errs: []error{errors.New("down")}}, &recNotifier{}, threshold.Thresholds{})
	if _, err := fail.Status(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

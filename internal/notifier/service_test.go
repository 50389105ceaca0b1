package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"feebot/internal/eventbus"
	kit "feebot/internal/transport"
	logx "feebot/pkg/logx"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return kit.MessageRef{}, f.err
	}
	f.sent = append(f.sent, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func waitEvent(t *testing.T, ch <-chan eventbus.Event, typ string) eventbus.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e := <-ch:
			if e.Type == typ {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func TestNotifyDelivers(t *testing.T) {
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	fs := &fakeSender{}
	s := New(Config{Enabled: true, RatePerSec: 100}, fs, logx.Nop(), bus)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	err := s.Notify(context.Background(), kit.Notification{Channel: "telegram", Kind: "band.below", Target: kit.ChatTarget{ChatID: 42}, Text: "hello"})
	if err != nil {
		t.Fatalf("Notify() error: %v", err)
	}
	ev := waitEvent(t, events, eventbus.TypeNotifySent)
	if ne, ok := ev.Data.(NotificationEvent); !ok || ne.ChatID != 42 || ne.Kind != "band.below" {
		t.Fatalf("unexpected event data: %+v", ev.Data)
	}
	if got := fs.texts(); len(got) != 1 || got[0] != "hello" {
		t.Fatalf("sent = %v", got)
	}
}

func TestNotifyFailureIsReportedNotRetried(t *testing.T) {
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	fs := &fakeSender{err: errors.New("telegram down")}
	s := New(Config{Enabled: true, RatePerSec: 100}, fs, logx.Nop(), bus)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.Notify(context.Background(), kit.Notification{Target: kit.ChatTarget{ChatID: 1}, Text: "x"}); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}
	ev := waitEvent(t, events, eventbus.TypeNotifyFailed)
	if ne := ev.Data.(NotificationEvent); ne.Error != "telegram down" {
		t.Fatalf("error = %q", ne.Error)
	}
	select {
	case e := <-events:
		if e.Type == eventbus.TypeNotifyFailed {
			t.Fatal("send was retried")
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotifyDisabledAndStopped(t *testing.T) {
	s := New(Config{Enabled: false}, &fakeSender{}, logx.Nop(), nil)
	if err := s.Notify(context.Background(), kit.Notification{Text: "x"}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("disabled: err = %v", err)
	}

	s = New(Config{Enabled: true}, &fakeSender{}, logx.Nop(), nil)
	if err := s.Notify(context.Background(), kit.Notification{Text: "x"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("not started: err = %v", err)
	}
	s.Start(context.Background())
	s.Stop(context.Background())
	if err := s.Notify(context.Background(), kit.Notification{Text: "x"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("stopped: err = %v", err)
	}
}

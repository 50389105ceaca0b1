package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"feebot/internal/config"
	"feebot/internal/observability/debughttp"
	kit "feebot/internal/transport"
	logx "feebot/pkg/logx"
)

type fakeAdapter struct {
	mu   sync.Mutex
	out  chan<- kit.Update
	sent []string
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error {
	f.mu.Lock()
	f.out = out
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) Stop(ctx context.Context) error { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, fmt.Sprintf("%d|%s", to.ChatID, text))
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) push(text string, chat int64) {
	f.mu.Lock()
	out := f.out
	f.mu.Unlock()
	out <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: chat, FromID: chat, Text: text}}
}

func (f *fakeAdapter) waitFor(t *testing.T, substr string) string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		for _, s := range f.sent {
			if strings.Contains(s, substr) {
				f.mu.Unlock()
				return s
			}
		}
		f.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no message containing %q; sent = %v", substr, f.sent)
	return ""
}

func feeServer(t *testing.T, fee float64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"fastestFee":%v,"halfHourFee":1,"hourFee":1,"economyFee":1,"minimumFee":1}`, fee)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	for _, k := range []string{config.EnvToken, config.EnvUserID, config.EnvFeeURL, config.EnvLogLevel} {
		t.Setenv(k, "")
	}
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestAppEndToEnd(t *testing.T) {
	srv := feeServer(t, 1)
	dir := t.TempDir()
	p := writeConfig(t, fmt.Sprintf(`
telegram:
  token: "123:abc"
  owner_user_id: 42
fee_source:
  url: %q
monitor:
  schedule: "1h"
  poll_on_start: true
logging:
  level: error
storage:
  driver: file
  path: %q
`, srv.URL, filepath.Join(dir, "feebot.db")))

	ad := &fakeAdapter{}
	a, err := NewApp(p, WithAdapter(ad))
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// poll_on_start: fee 1 is below the default minimum of 2
	ad.waitFor(t, "42|🚨 Fee rate has dropped <b>below</b>")

	ad.push("/min 1", 42)
	ad.waitFor(t, "Minimum threshold set to 1 sat/vByte.")

	ad.push("/status", 42)
	ad.waitFor(t, "Current fee rate: 1 sat/vByte")

	ad.push("/status", 7)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopSignal); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	for _, s := range ad.sent {
		if strings.HasPrefix(s, "7|") {
			t.Fatalf("replied to unauthorized chat: %q", s)
		}
	}
	if th := a.Monitor().Thresholds(); th.Min != 1 {
		t.Fatalf("thresholds = %+v", th)
	}

	b, err := os.ReadFile(filepath.Join(dir, "feebot.audit.jsonl"))
	if err != nil || !strings.Contains(string(b), `"action":"set_min"`) {
		t.Fatalf("audit log = %q, %v", b, err)
	}
}

func TestNewAppRejectsBadSchedule(t *testing.T) {
	p := writeConfig(t, `
telegram:
  token: "123:abc"
  owner_user_id: 42
monitor:
  schedule: "whenever"
`)
	if _, err := NewApp(p, WithAdapter(&fakeAdapter{})); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewAppRequiresCredentials(t *testing.T) {
	p := writeConfig(t, "logging:\n  level: info\n")
	if _, err := NewApp(p, WithAdapter(&fakeAdapter{})); err == nil {
		t.Fatal("expected missing token error")
	}
}

func TestMapNotifierDefaults(t *testing.T) {
	t.Parallel()
	n, err := mapNotifierConfig(&config.Config{})
	if err != nil {
		t.Fatalf("mapNotifierConfig: %v", err)
	}
	if !n.Enabled || n.Workers != 1 || n.SendTimeout != 15*time.Second {
		t.Fatalf("defaults = %+v", n)
	}
}

func TestPartialNotifierSectionKeepsNotifying(t *testing.T) {
	srv := feeServer(t, 1)
	p := writeConfig(t, fmt.Sprintf(`
telegram:
  token: "123:abc"
  owner_user_id: 42
fee_source:
  url: %q
monitor:
  schedule: "1h"
  poll_on_start: true
logging:
  level: error
notifier:
  workers: 2
`, srv.URL))

	ad := &fakeAdapter{}
	a, err := NewApp(p, WithAdapter(ad))
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = a.Stop(stopCtx, StopSignal)
	}()

	if !a.notif.Enabled() {
		t.Fatal("notifier disabled by a section that never mentions enabled")
	}
	ad.waitFor(t, "42|🚨 Fee rate has dropped <b>below</b>")
}

func TestMapNotifierExplicitDisable(t *testing.T) {
	t.Parallel()
	off := false
	n, err := mapNotifierConfig(&config.Config{Notifier: &config.NotifierConfig{Enabled: &off, QueueSize: 8}})
	if err != nil {
		t.Fatalf("mapNotifierConfig: %v", err)
	}
	if n.Enabled || n.QueueSize != 8 || n.Workers != 1 {
		t.Fatalf("config = %+v", n)
	}
}

func TestReloadEnablesDebugEndpoint(t *testing.T) {
	a := &App{log: logx.Nop(), debug: debughttp.New(debughttp.Config{}, nil, logx.Nop())}
	ready := a.debug.Ready()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer stopCancel()
		a.debug.Stop(stopCtx)
	}()

	oldCfg := &config.Config{}
	newCfg := &config.Config{Debug: &config.DebugConfig{Enabled: true, Addr: "127.0.0.1:0"}}
	a.applyConfig(ctx, oldCfg, newCfg)

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("debug endpoint did not start")
	}
	// The listener must outlive applyConfig.
	time.Sleep(200 * time.Millisecond)
	addr := a.debug.Addr()
	if addr == "" {
		t.Fatal("debug endpoint stopped after reload returned")
	}
	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/healthz = %d", resp.StatusCode)
	}
}

func TestMapDebugConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		dbg     *config.DebugConfig
		wantErr bool
		addr    string
	}{
		{name: "omitted", dbg: nil},
		{name: "loopback default", dbg: &config.DebugConfig{Enabled: true}, addr: "127.0.0.1:6060"},
		{name: "public with token", dbg: &config.DebugConfig{Enabled: true, Addr: "0.0.0.0:6060", Token: "t"}, addr: "0.0.0.0:6060"},
		{name: "public without token", dbg: &config.DebugConfig{Enabled: true, Addr: "0.0.0.0:6060"}, wantErr: true},
		{name: "public insecure opt-in", dbg: &config.DebugConfig{Enabled: true, Addr: ":6060", AllowInsecure: true}, addr: ":6060"},
		{name: "bad timeout", dbg: &config.DebugConfig{ReadTimeout: "soon"}, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := mapDebugConfig(&config.Config{Debug: tt.dbg})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got.Addr != tt.addr && tt.addr != "" {
				t.Fatalf("addr = %q, want %q", got.Addr, tt.addr)
			}
		})
	}
}

package debughttp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	logx "feebot/pkg/logx"
)

func startServer(t *testing.T, cfg Config, state StateFunc) *Server {
	t.Helper()
	s := New(cfg, state, logx.Nop())
	ready := s.Ready()
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	t.Cleanup(func() {
		stopCtx, c := context.WithTimeout(context.Background(), 2*time.Second)
		defer c()
		s.Stop(stopCtx)
		cancel()
	})
	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not bind")
	}
	return s
}

func get(t *testing.T, url string, header map[string]string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestServerHealthAndState(t *testing.T) {
	state := func() any { return map[string]any{"band": "inside", "min": 2} }
	s := startServer(t, Config{Enabled: true, Addr: "127.0.0.1:0", Token: "s3cret"}, state)
	base := "http://" + s.Addr()

	if code, body := get(t, base+"/healthz", nil); code != http.StatusOK || body != "ok" {
		t.Fatalf("/healthz = %d %q", code, body)
	}
	if code, _ := get(t, base+"/state", nil); code != http.StatusUnauthorized {
		t.Fatalf("/state without token = %d, want 401", code)
	}

	code, body := get(t, base+"/state", map[string]string{"Authorization": "Bearer s3cret"})
	if code != http.StatusOK {
		t.Fatalf("/state = %d", code)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if got["band"] != "inside" {
		t.Fatalf("state = %v", got)
	}

	if code, _ := get(t, base+"/debug/pprof/?token=s3cret", nil); code != http.StatusOK {
		t.Fatalf("pprof index = %d", code)
	}
}

func TestServerReconfigureDisable(t *testing.T) {
	s := startServer(t, Config{Enabled: true, Addr: "127.0.0.1:0"}, nil)
	if s.Addr() == "" {
		t.Fatal("expected bound addr")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Reconfigure(ctx, Config{Enabled: false})
	if s.Addr() != "" {
		t.Fatalf("addr after disable = %q", s.Addr())
	}
}

func TestServerReconfigureEnableOutlivesCall(t *testing.T) {
	s := New(Config{}, nil, logx.Nop())
	ready := s.Ready()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer s.Stop(context.Background())

	s.Reconfigure(ctx, Config{Enabled: true, Addr: "127.0.0.1:0"})
	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not bind")
	}

	// A changed config restarts the listener under the same long-lived ctx.
	s.Reconfigure(ctx, Config{Enabled: true, Addr: "127.0.0.1:0", Token: "x"})
	deadline := time.Now().Add(2 * time.Second)
	for s.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatal("listener not restarted")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if code, _ := get(t, "http://"+s.Addr()+"/healthz", nil); code != http.StatusOK {
		t.Fatalf("/healthz after restart = %d", code)
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:6060", true},
		{"localhost:6060", true},
		{"[::1]:6060", true},
		{":6060", false},
		{"0.0.0.0:6060", false},
		{"10.0.0.1:6060", false},
		{"nonsense", false},
	}
	for _, tt := range tests {
		if got := IsLoopbackAddr(tt.addr); got != tt.want {
			t.Errorf("IsLoopbackAddr(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestNormalizePrefix(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]string{
		"":          DefaultPrefix,
		"debug":     "/debug/",
		"/x/pprof":  "/x/pprof/",
		"/x/pprof/": "/x/pprof/",
	} {
		if got := NormalizePrefix(in); got != want {
			t.Errorf("NormalizePrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

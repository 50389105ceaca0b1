package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	kit "feebot/internal/transport"
	logx "feebot/pkg/logx"
)

func TestSplitTelegramText(t *testing.T) {
	t.Parallel()
	if got := splitTelegramText("short", 10, ""); len(got) != 1 || got[0] != "short" {
		t.Fatalf("short text split: %q", got)
	}

	long := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := splitTelegramText(long, 10, "")
	if len(got) != 2 || got[0] != "aaaaaa" || got[1] != "bbbbbb" {
		t.Fatalf("newline split = %q", got)
	}

	html := "abcdef<b>bold</b>"
	for _, chunk := range splitTelegramText(html, 8, "HTML") {
		if strings.Count(chunk, "<") != strings.Count(chunk, ">") {
			t.Fatalf("chunk %q cuts a tag", chunk)
		}
	}
}

func TestToUpdate(t *testing.T) {
	t.Parallel()
	if _, ok := toUpdate(nil); ok {
		t.Fatal("nil message converted")
	}
	up, ok := toUpdate(&tele.Message{
		ID:     9,
		Chat:   &tele.Chat{ID: 42},
		Sender: &tele.User{ID: 7, Username: "alice"},
		Text:   "/status",
	})
	if !ok || up.Kind != kit.UpdateMessage || up.Message.ChatID != 42 || up.Message.FromID != 7 || up.Message.Text != "/status" {
		t.Fatalf("update = %+v", up)
	}
	// channel posts have no sender
	if up, ok := toUpdate(&tele.Message{Chat: &tele.Chat{ID: 1}, Text: "x"}); !ok || up.Message.FromID != 0 {
		t.Fatalf("senderless message = %+v, %v", up, ok)
	}
}

// botAPI is a minimal Bot API stand-in recording method calls.
type botAPI struct {
	mu    sync.Mutex
	calls map[string]int
	texts []string
}

func (b *botAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndexByte(r.URL.Path, '/')+1:]
	b.mu.Lock()
	if b.calls == nil {
		b.calls = map[string]int{}
	}
	b.calls[method]++
	b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch method {
	case "sendMessage":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		text, _ := body["text"].(string)
		b.mu.Lock()
		b.texts = append(b.texts, text)
		n := len(b.texts)
		b.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"result": map[string]any{
				"message_id": 100 + n,
				"date":       0,
				"chat":       map[string]any{"id": 42, "type": "private"},
				"text":       text,
			},
		})
	default:
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	}
}

func newTestAdapter(t *testing.T) (*Adapter, *botAPI) {
	t.Helper()
	api := &botAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	a, err := New(Config{Token: "123:test", URL: srv.URL, Offline: true}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, api
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Token: "  "}, logx.Nop()); err == nil {
		t.Fatal("expected error")
	}
}

func TestSendTextSplitsLongMessages(t *testing.T) {
	t.Parallel()
	a, api := newTestAdapter(t)

	text := strings.Repeat("x", telegramTextLimit) + "\n" + "tail"
	ref, err := a.SendText(context.Background(), kit.ChatTarget{ChatID: 42}, text, nil)
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if ref.ChatID != 42 || ref.MessageID != 101 {
		t.Fatalf("ref = %+v", ref)
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if api.calls["sendMessage"] != 2 || api.texts[1] != "tail" {
		t.Fatalf("calls = %v texts = %d", api.calls, len(api.texts))
	}
}

func TestUpdateMenuCommandsSkipsUnchanged(t *testing.T) {
	t.Parallel()
	a, api := newTestAdapter(t)
	cmds := []kit.BotCommand{{Command: "status", Description: "Show status"}}
	for i := 0; i < 3; i++ {
		if err := a.UpdateMenuCommands(context.Background(), cmds); err != nil {
			t.Fatalf("UpdateMenuCommands: %v", err)
		}
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if api.calls["setMyCommands"] != 1 {
		t.Fatalf("setMyCommands calls = %d", api.calls["setMyCommands"])
	}
}

func TestSendUpdateDropsWhenFull(t *testing.T) {
	t.Parallel()
	a, _ := newTestAdapter(t)
	out := make(chan kit.Update, 1)
	a.out.Store((chan<- kit.Update)(out))

	up := kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 1}}
	a.sendUpdate(up)
	a.sendUpdate(up)
	if len(out) != 1 || a.droppedUpdates.Load() != 1 {
		t.Fatalf("queued=%d dropped=%d", len(out), a.droppedUpdates.Load())
	}
}

func TestMenuDescription(t *testing.T) {
	t.Parallel()
	if got := menuDescription(kit.BotCommand{Command: "status"}); got != "status" {
		t.Fatalf("fallback = %q", got)
	}
	long := strings.Repeat("✅", 300)
	got := menuDescription(kit.BotCommand{Command: "min", Description: long})
	if !utf8.ValidString(got) || utf8.RuneCountInString(got) != 256 {
		t.Fatalf("description has %d runes, valid=%v", utf8.RuneCountInString(got), utf8.ValidString(got))
	}
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "cevshenbot/pkg/logx"
)

type recordingProcessor struct {
	mu      sync.Mutex
	updates []tele.Update
}

func (p *recordingProcessor) ProcessUpdate(u tele.Update) {
	p.mu.Lock()
	p.updates = append(p.updates, u)
	p.mu.Unlock()
}

func (p *recordingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.updates)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestRootReportsRunning(t *testing.T) {
	t.Parallel()
	s := New(Config{}, nil, logx.Nop())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decodeBody(t, rec)["message"]; got != "Bot is running." {
		t.Fatalf("message = %q", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q", ct)
	}
}

func TestWebhook(t *testing.T) {
	t.Parallel()
	valid := `{"update_id":42,"message":{"message_id":1,"date":0,"chat":{"id":-100,"type":"supergroup"},"text":"/start"}}`
	cases := []struct {
		name      string
		strict    bool
		body      string
		wantCode  int
		wantCalls int
	}{
		{"valid", false, valid, http.StatusOK, 1},
		{"malformed acknowledged", false, `{not json`, http.StatusOK, 0},
		{"malformed strict", true, `{not json`, http.StatusBadRequest, 0},
		{"empty object", false, `{}`, http.StatusOK, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			proc := &recordingProcessor{}
			s := New(Config{StrictWebhook: tc.strict}, proc, logx.Nop())
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(tc.body))
			s.Handler().ServeHTTP(rec, req)

			if rec.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantCode)
			}
			if got := proc.count(); got != tc.wantCalls {
				t.Fatalf("ProcessUpdate calls = %d, want %d", got, tc.wantCalls)
			}
			if tc.wantCode == http.StatusOK {
				if got := decodeBody(t, rec)["status"]; got != "ok" {
					t.Fatalf("status field = %q", got)
				}
			}
		})
	}
}

func TestWebhookDecodesUpdate(t *testing.T) {
	t.Parallel()
	proc := &recordingProcessor{}
	s := New(Config{WebhookPath: "hook"}, proc, logx.Nop())
	body := `{"update_id":7,"message":{"message_id":3,"date":0,"chat":{"id":55,"type":"private"},"text":"/today"}}`
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/hook", bytes.NewBufferString(body)))

	if rec.Code != http.StatusOK || proc.count() != 1 {
		t.Fatalf("status = %d calls = %d", rec.Code, proc.count())
	}
	u := proc.updates[0]
	if u.ID != 7 || u.Message == nil || u.Message.Chat.ID != 55 || u.Message.Text != "/today" {
		t.Fatalf("update = %+v", u)
	}
}

func TestWebhookRejectsGet(t *testing.T) {
	t.Parallel()
	s := New(Config{}, &recordingProcessor{}, logx.Nop())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestStartServesAndStops(t *testing.T) {
	t.Parallel()
	s := New(Config{Addr: "127.0.0.1:0"}, &recordingProcessor{}, logx.Nop())
	s.Start(context.Background())

	select {
	case <-s.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("server did not become ready")
	}
	resp, err := http.Get("http://" + s.Addr() + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	s.Stop(ctx)
	if s.Supervisor() != nil {
		t.Fatal("supervisor still set after Stop")
	}
}

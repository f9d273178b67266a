package telegram

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"
)

const fakeToken = "123:TEST"

type apiCall struct {
	Method string
	Form   url.Values
}

// fakeBotAPI is an httptest stand-in for api.telegram.org. Responses are
// queued per method; unqueued calls succeed with a method-specific default.
type fakeBotAPI struct {
	server *httptest.Server

	mu        sync.Mutex
	calls     []apiCall
	responses map[string][]string
}

func newFakeBotAPI(t *testing.T) *fakeBotAPI {
	t.Helper()
	f := &fakeBotAPI{responses: make(map[string][]string)}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeBotAPI) serve(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	_ = r.ParseForm()

	f.mu.Lock()
	f.calls = append(f.calls, apiCall{Method: method, Form: r.PostForm})
	var body string
	if q := f.responses[method]; len(q) > 0 {
		body = q[0]
		f.responses[method] = q[1:]
	}
	f.mu.Unlock()

	if body == "" {
		body = f.defaultResponse(method)
	}
	var envelope struct {
		OK        bool `json:"ok"`
		ErrorCode int  `json:"error_code"`
	}
	_ = json.Unmarshal([]byte(body), &envelope)
	w.Header().Set("Content-Type", "application/json")
	if !envelope.OK && envelope.ErrorCode != 0 {
		w.WriteHeader(envelope.ErrorCode)
	}
	_, _ = w.Write([]byte(body))
}

func (f *fakeBotAPI) defaultResponse(method string) string {
	switch method {
	case "getMe":
		return `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Gatekeeper","username":"gatekeeper_bot"}}`
	case "getUpdates":
		time.Sleep(5 * time.Millisecond)
		return `{"ok":true,"result":[]}`
	default:
		return `{"ok":true,"result":true}`
	}
}

func (f *fakeBotAPI) queue(method, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[method] = append(f.responses[method], body)
}

func (f *fakeBotAPI) callsTo(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeBotAPI) bot(t *testing.T) *tgbotapi.BotAPI {
	t.Helper()
	bot, err := Connect(fakeToken, f.server.URL+"/bot%s/%s", f.server.Client())
	require.NoError(t, err)
	return bot
}

func apiError(code int, description string) string {
	b, _ := json.Marshal(map[string]any{"ok": false, "error_code": code, "description": description})
	return string(b)
}

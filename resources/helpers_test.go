package resources

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/leofalp/qianfan/core/config"
)

// recorded is one request seen by the fake service.
type recorded struct {
	Path  string
	Query string
	Token string
	Body  map[string]any
}

// fakeService records requests and answers with respond. The path passed to
// respond has the API prefix stripped.
type fakeService struct {
	*httptest.Server

	mu       sync.Mutex
	requests []recorded
}

func newFakeService(t *testing.T, respond func(w http.ResponseWriter, path string, body map[string]any)) *fakeService {
	t.Helper()
	f := &fakeService{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)

		path := strings.TrimPrefix(r.URL.Path, config.APIPath)
		f.mu.Lock()
		f.requests = append(f.requests, recorded{
			Path:  path,
			Query: r.URL.RawQuery,
			Token: r.URL.Query().Get("access_token"),
			Body:  body,
		})
		f.mu.Unlock()

		respond(w, path, body)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeService) Requests() []recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recorded(nil), f.requests...)
}

// config points at the fake service with a static token and no retry wait.
func (f *fakeService) config() *config.Config {
	cfg := config.Default()
	cfg.BaseURL = f.URL
	cfg.AccessToken = "test-token"
	cfg.RetryJitter = 0
	cfg.RetryBackoffFactor = 0
	return cfg
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeSSE(w http.ResponseWriter, chunks ...any) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, c := range chunks {
		raw, _ := json.Marshal(c)
		_, _ = w.Write([]byte("data: " + string(raw) + "\n\n"))
	}
}

// messagesOf returns the messages of a recorded chat body.
func messagesOf(body map[string]any) []map[string]any {
	raw, _ := body["messages"].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, m := range raw {
		out = append(out, m.(map[string]any))
	}
	return out
}

package resources

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leofalp/qianfan/internal/utils"
)

func TestCompletions_Do(t *testing.T) {
	svc := newFakeService(t, func(w http.ResponseWriter, _ string, _ map[string]any) {
		writeJSON(w, map[string]any{"id": "as-c", "result": "SELECT 1;", "usage": map[string]any{"total_tokens": 7}})
	})

	resp, err := NewCompletions(WithConfig(svc.config())).Do(context.Background(), &CompletionRequest{
		Prompt: "-- count users",
		TopK:   utils.Ptr(2),
		Stop:   []string{";"},
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1;", resp.Result)

	req := svc.Requests()[0]
	assert.Equal(t, "/completions/sqlcoder_7b", req.Path)
	assert.Equal(t, "-- count users", req.Body["prompt"])
	assert.InDelta(t, 2, req.Body["top_k"], 1e-9)
	assert.NotContains(t, req.Body, "messages")
}

func TestCompletions_ChatModelFallback(t *testing.T) {
	svc := newFakeService(t, func(w http.ResponseWriter, _ string, _ map[string]any) {
		writeJSON(w, map[string]any{"result": "from chat"})
	})

	resp, err := NewCompletions(WithConfig(svc.config()), WithModel("ERNIE-Bot")).Do(context.Background(), &CompletionRequest{
		Prompt:      "hello",
		Temperature: utils.Ptr(0.2),
		Stop:        []string{"\n"},
	})
	require.NoError(t, err)
	assert.Equal(t, "from chat", resp.Result)

	req := svc.Requests()[0]
	assert.Equal(t, "/chat/completions", req.Path)
	assert.NotContains(t, req.Body, "prompt")
	assert.NotContains(t, req.Body, "stop", "chat models take no stop words")
	msgs := messagesOf(req.Body)
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0]["role"])
	assert.Equal(t, "hello", msgs[0]["content"])
}

func TestCompletions_CustomEndpoint(t *testing.T) {
	svc := newFakeService(t, func(w http.ResponseWriter, _ string, _ map[string]any) {
		writeJSON(w, map[string]any{"result": "ok"})
	})

	_, err := NewCompletions(WithConfig(svc.config())).Do(context.Background(), &CompletionRequest{
		Model:    "ERNIE-Bot",
		Endpoint: "my_completion",
		Prompt:   "x",
	})
	require.NoError(t, err)
	assert.Equal(t, "/completions/my_completion", svc.Requests()[0].Path)
}

func TestCompletions_Stream(t *testing.T) {
	svc := newFakeService(t, func(w http.ResponseWriter, _ string, _ map[string]any) {
		writeSSE(w,
			map[string]any{"result": "SELECT "},
			map[string]any{"result": "1;", "is_end": true},
		)
	})

	stream, err := NewCompletions(WithConfig(svc.config())).Stream(context.Background(), &CompletionRequest{Prompt: "--"})
	require.NoError(t, err)
	resp, err := stream.Collect()
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1;", resp.Result)
	assert.True(t, resp.IsEnd)
}

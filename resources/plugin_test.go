package resources

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlugin_Do(t *testing.T) {
	svc := newFakeService(t, func(w http.ResponseWriter, _ string, _ map[string]any) {
		writeJSON(w, map[string]any{"log_id": "log-1", "result": "<p>答案是 <strong>42</strong></p>"})
	})

	resp, err := NewPlugin(WithConfig(svc.config()), WithEndpoint("kb_plugin")).Do(context.Background(), &PluginRequest{
		Query:   "问题",
		Plugins: []string{"uuid-zhishiku"},
	})
	require.NoError(t, err)
	assert.Equal(t, "log-1", resp.LogID)

	md, err := resp.Markdown()
	require.NoError(t, err)
	assert.Equal(t, "答案是 **42**", md)

	req := svc.Requests()[0]
	assert.Equal(t, "/plugin/kb_plugin/", req.Path)
	assert.Equal(t, "问题", req.Body["query"])
}

func TestPlugin_MarkdownPlainText(t *testing.T) {
	r := &PluginResponse{Result: "plain answer"}
	md, err := r.Markdown()
	require.NoError(t, err)
	assert.Equal(t, "plain answer", md)
}

func TestPlugin_EndpointRequired(t *testing.T) {
	svc := newFakeService(t, func(http.ResponseWriter, string, map[string]any) {})
	_, err := NewPlugin(WithConfig(svc.config())).Do(context.Background(), &PluginRequest{Query: "q"})
	require.ErrorIs(t, err, ErrEndpointRequired)
}

func TestPlugin_EBPluginStream(t *testing.T) {
	svc := newFakeService(t, func(w http.ResponseWriter, _ string, _ map[string]any) {
		writeSSE(w,
			map[string]any{"id": "as-p", "result": "北京", "is_end": false, "plugin_info": []any{map[string]any{"plugin_name": "eChart"}}},
			map[string]any{"id": "as-p", "result": "晴", "is_end": true, "usage": map[string]any{"total_tokens": 9}},
		)
	})

	stream, err := NewPlugin(WithConfig(svc.config()), WithModel(EBPluginModel)).Stream(context.Background(), &PluginRequest{
		Messages: userMessages("北京天气"),
		Plugins:  []string{"eChart"},
	})
	require.NoError(t, err)

	resp, err := stream.Collect()
	require.NoError(t, err)
	assert.Equal(t, "北京晴", resp.Result)
	assert.True(t, resp.IsEnd)
	assert.NotNil(t, resp.PluginInfo)
	assert.Equal(t, 9, resp.Usage.TotalTokens)

	req := svc.Requests()[0]
	assert.Equal(t, "/erniebot/plugin", req.Path)
	assert.Equal(t, true, req.Body["stream"])
}

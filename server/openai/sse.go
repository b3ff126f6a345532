package openai

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	goopenai "github.com/sashabaranov/go-openai"
)

// sseWriter writes OpenAI style server-sent events: one "data:" line per
// JSON chunk and a final "data: [DONE]".
type sseWriter struct {
	c *gin.Context
}

func startSSE(c *gin.Context) *sseWriter {
	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	c.Status(http.StatusOK)
	return &sseWriter{c: c}
}

// send writes v and reports whether the client is still there.
func (w *sseWriter) send(v any) bool {
	raw, err := json.Marshal(v)
	if err != nil {
		return false
	}
	if _, err := fmt.Fprintf(w.c.Writer, "data: %s\n\n", raw); err != nil {
		return false
	}
	w.c.Writer.Flush()
	return w.c.Request.Context().Err() == nil
}

// error reports a failure after the status line was sent. Headers are gone
// by then, so the error travels as an event.
func (w *sseWriter) error(err error) {
	_, errType, code := errorStatus(err)
	w.send(goopenai.ErrorResponse{Error: &goopenai.APIError{Type: errType, Code: code, Message: err.Error()}})
	w.done()
}

func (w *sseWriter) done() {
	_, _ = fmt.Fprint(w.c.Writer, "data: [DONE]\n\n")
	w.c.Writer.Flush()
}

package openai

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/leofalp/qianfan/resources"
)

// completionResponse is the text_completion object. go-openai's own type
// carries an unexported header field and a nullable usage, so the adapter
// writes this one.
type completionResponse struct {
	ID      string                      `json:"id"`
	Object  string                      `json:"object"`
	Created int64                       `json:"created"`
	Model   string                      `json:"model"`
	Choices []goopenai.CompletionChoice `json:"choices"`
	Usage   *goopenai.Usage             `json:"usage,omitempty"`
}

func (s *Server) handleCompletions(c *gin.Context) {
	var in goopenai.CompletionRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		s.writeError(c, badRequest("decode body: %v", err))
		return
	}
	req, err := toCompletionRequest(&in)
	if err != nil {
		s.writeError(c, err)
		return
	}
	model := lo.CoalesceOrEmpty(in.Model, resources.DefaultCompletionModel)
	ctx := c.Request.Context()

	if !in.Stream {
		resp, err := s.completions.Do(ctx, req)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, completionResponse{
			ID:      lo.CoalesceOrEmpty(resp.ID, completionID("cmpl")),
			Object:  "text_completion",
			Created: createdAt(resp.Created),
			Model:   model,
			Choices: []goopenai.CompletionChoice{{Text: resp.Result, FinishReason: string(finishReason(resp))}},
			Usage:   lo.ToPtr(toUsage(resp.Usage)),
		})
		return
	}

	stream, err := s.completions.Stream(ctx, req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	id := completionID("cmpl")
	sse := startSSE(c)
	for chunk, err := range stream.Iter() {
		if err != nil {
			sse.error(err)
			return
		}
		out := completionResponse{
			ID:      id,
			Object:  "text_completion",
			Created: createdAt(chunk.Created),
			Model:   model,
			Choices: []goopenai.CompletionChoice{{Text: chunk.Result}},
		}
		if chunk.IsEnd {
			out.Choices[0].FinishReason = string(finishReason(chunk))
			out.Usage = lo.ToPtr(toUsage(chunk.Usage))
		}
		if !sse.send(out) {
			return
		}
	}
	sse.done()
}

// toCompletionRequest accepts a prompt given as a string or as a list
// holding exactly one string.
func toCompletionRequest(in *goopenai.CompletionRequest) (*resources.CompletionRequest, error) {
	var prompt string
	switch p := in.Prompt.(type) {
	case string:
		prompt = p
	case []any:
		if len(p) != 1 {
			return nil, badRequest("prompt lists must hold exactly one prompt, got %d", len(p))
		}
		s, ok := p[0].(string)
		if !ok {
			return nil, badRequest("prompt must be text")
		}
		prompt = s
	default:
		return nil, badRequest("prompt must be a string")
	}
	if prompt == "" {
		return nil, badRequest("prompt must not be empty")
	}

	req := &resources.CompletionRequest{
		Model:       in.Model,
		Prompt:      prompt,
		Temperature: clampTemperature(in.Temperature),
		Stop:        in.Stop,
		UserID:      in.User,
	}
	if in.TopP > 0 {
		req.TopP = lo.ToPtr(float64(min(in.TopP, 1)))
	}
	return req, nil
}

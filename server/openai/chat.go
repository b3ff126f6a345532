package openai

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/leofalp/qianfan/internal/jsonschema"
	"github.com/leofalp/qianfan/resources"
)

func (s *Server) handleChat(c *gin.Context) {
	var in goopenai.ChatCompletionRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		s.writeError(c, badRequest("decode body: %v", err))
		return
	}
	req, err := toChatRequest(&in)
	if err != nil {
		s.writeError(c, err)
		return
	}
	model := lo.CoalesceOrEmpty(in.Model, resources.DefaultChatModel)
	ctx := c.Request.Context()

	if !in.Stream {
		resp, err := s.chat.Do(ctx, req)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, toChatResponse(model, resp))
		return
	}

	stream, err := s.chat.Stream(ctx, req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	id := completionID("chatcmpl")
	sse := startSSE(c)
	first := true
	for chunk, err := range stream.Iter() {
		if err != nil {
			sse.error(err)
			return
		}
		out := toChatChunk(id, model, chunk)
		if first {
			out.Choices[0].Delta.Role = goopenai.ChatMessageRoleAssistant
			first = false
		}
		if !sse.send(out) {
			return
		}
	}
	sse.done()
}

// toChatRequest translates an OpenAI chat request. System messages are
// joined into the system field, max_tokens is dropped and the temperature
// is clamped into (0, 1].
func toChatRequest(in *goopenai.ChatCompletionRequest) (*resources.ChatRequest, error) {
	if len(in.Messages) == 0 {
		return nil, badRequest("messages must not be empty")
	}
	req := &resources.ChatRequest{
		Model:       in.Model,
		Temperature: clampTemperature(in.Temperature),
		UserID:      in.User,
	}
	if in.TopP > 0 {
		req.TopP = lo.ToPtr(float64(min(in.TopP, 1)))
	}

	var system []string
	for _, m := range in.Messages {
		content := messageText(m)
		switch m.Role {
		case goopenai.ChatMessageRoleSystem, "developer":
			system = append(system, content)
		case goopenai.ChatMessageRoleUser:
			req.Messages = append(req.Messages, resources.Message{Role: resources.RoleUser, Content: content})
		case goopenai.ChatMessageRoleAssistant:
			msg := resources.Message{Role: resources.RoleAssistant, Content: content}
			if call := assistantCall(m); call != nil {
				msg.FunctionCall = call
			}
			req.Messages = append(req.Messages, msg)
		case goopenai.ChatMessageRoleFunction, goopenai.ChatMessageRoleTool:
			req.Messages = append(req.Messages, resources.Message{Role: resources.RoleFunction, Content: content, Name: m.Name})
		default:
			return nil, badRequest("unsupported role %q", m.Role)
		}
	}
	req.System = strings.Join(system, "\n")

	defs := slices.Concat(in.Functions, lo.FilterMap(in.Tools, func(t goopenai.Tool, _ int) (goopenai.FunctionDefinition, bool) {
		if t.Type != goopenai.ToolTypeFunction || t.Function == nil {
			return goopenai.FunctionDefinition{}, false
		}
		return *t.Function, true
	}))
	for _, def := range defs {
		fn, err := toFunction(def)
		if err != nil {
			return nil, err
		}
		req.Functions = append(req.Functions, fn)
	}

	if len(in.Stop) > 0 {
		req.Extra = map[string]any{"stop": in.Stop}
	}
	return req, nil
}

func clampTemperature(t float32) *float64 {
	if t <= 0 {
		return nil
	}
	return lo.ToPtr(float64(min(t, 1)))
}

// messageText flattens multi part content into its text parts.
func messageText(m goopenai.ChatCompletionMessage) string {
	if len(m.MultiContent) == 0 {
		return m.Content
	}
	parts := lo.FilterMap(m.MultiContent, func(p goopenai.ChatMessagePart, _ int) (string, bool) {
		return p.Text, p.Type == goopenai.ChatMessagePartTypeText
	})
	return strings.Join(parts, "\n")
}

func assistantCall(m goopenai.ChatCompletionMessage) *resources.FunctionCall {
	switch {
	case m.FunctionCall != nil:
		return &resources.FunctionCall{Name: m.FunctionCall.Name, Arguments: m.FunctionCall.Arguments}
	case len(m.ToolCalls) > 0:
		call := m.ToolCalls[0].Function
		return &resources.FunctionCall{Name: call.Name, Arguments: call.Arguments}
	}
	return nil
}

func toFunction(def goopenai.FunctionDefinition) (resources.Function, error) {
	fn := resources.Function{Name: def.Name, Description: def.Description}
	if def.Parameters == nil {
		return fn, nil
	}
	raw, err := json.Marshal(def.Parameters)
	if err != nil {
		return fn, badRequest("function %s parameters: %v", def.Name, err)
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return fn, badRequest("function %s parameters: %v", def.Name, err)
	}
	fn.Parameters = &schema
	return fn, nil
}

func toChatResponse(model string, resp *resources.ChatResponse) goopenai.ChatCompletionResponse {
	msg := goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleAssistant, Content: resp.Result}
	finish := finishReason(resp)
	if resp.FunctionCall != nil {
		msg.ToolCalls = []goopenai.ToolCall{{
			ID:   completionID("call"),
			Type: goopenai.ToolTypeFunction,
			Function: goopenai.FunctionCall{
				Name:      resp.FunctionCall.Name,
				Arguments: resp.FunctionCall.Arguments,
			},
		}}
		finish = goopenai.FinishReasonToolCalls
	}
	return goopenai.ChatCompletionResponse{
		ID:      lo.CoalesceOrEmpty(resp.ID, completionID("chatcmpl")),
		Object:  "chat.completion",
		Created: createdAt(resp.Created),
		Model:   model,
		Choices: []goopenai.ChatCompletionChoice{{Index: 0, Message: msg, FinishReason: finish}},
		Usage:   toUsage(resp.Usage),
	}
}

func toChatChunk(id, model string, chunk *resources.ChatResponse) goopenai.ChatCompletionStreamResponse {
	choice := goopenai.ChatCompletionStreamChoice{
		Index: 0,
		Delta: goopenai.ChatCompletionStreamChoiceDelta{Content: chunk.Result},
	}
	out := goopenai.ChatCompletionStreamResponse{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: createdAt(chunk.Created),
		Model:   model,
	}
	if chunk.FunctionCall != nil {
		choice.Delta.ToolCalls = []goopenai.ToolCall{{
			Index:    lo.ToPtr(0),
			ID:       completionID("call"),
			Type:     goopenai.ToolTypeFunction,
			Function: goopenai.FunctionCall{Name: chunk.FunctionCall.Name, Arguments: chunk.FunctionCall.Arguments},
		}}
	}
	if chunk.IsEnd {
		choice.FinishReason = finishReason(chunk)
		if chunk.FunctionCall != nil {
			choice.FinishReason = goopenai.FinishReasonToolCalls
		}
		out.Usage = lo.ToPtr(toUsage(chunk.Usage))
	}
	out.Choices = []goopenai.ChatCompletionStreamChoice{choice}
	return out
}

// finishReason maps the Qianfan finish state. A truncated reply is
// reported as length.
func finishReason(resp *resources.ChatResponse) goopenai.FinishReason {
	if resp.IsTruncated {
		return goopenai.FinishReasonLength
	}
	switch resp.FinishReason {
	case "length":
		return goopenai.FinishReasonLength
	case "content_filter":
		return goopenai.FinishReasonContentFilter
	case "function_call":
		return goopenai.FinishReasonFunctionCall
	}
	return goopenai.FinishReasonStop
}

func toUsage(u resources.Usage) goopenai.Usage {
	return goopenai.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

func completionID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, strings.ReplaceAll(uuid.NewString(), "-", ""))
}

func createdAt(ts int64) int64 {
	if ts > 0 {
		return ts
	}
	return time.Now().Unix()
}

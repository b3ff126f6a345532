package resources

import (
	"context"
	"sync"

	"github.com/leofalp/qianfan/providers/observability"
)

// History is a conversation that grows turn by turn. It is safe for
// concurrent use; the zero value is an empty history.
//
//	var h resources.History
//	h.Append(ctx, resources.RoleUser, "你好")
//	resp, err := chat.Do(ctx, &resources.ChatRequest{Messages: h.Messages()})
//	h.AppendResponse(ctx, resp)
type History struct {
	mu       sync.RWMutex
	messages []Message
}

// NewHistory returns a history holding a copy of messages.
func NewHistory(messages ...Message) *History {
	return &History{messages: append([]Message(nil), messages...)}
}

// Append adds a message with the given role. When ctx carries a span the
// append is recorded on it.
func (h *History) Append(ctx context.Context, role Role, content string) {
	h.AppendMessage(ctx, Message{Role: role, Content: content})
}

// AppendMessage adds msg as is.
func (h *History) AppendMessage(ctx context.Context, msg Message) {
	h.mu.Lock()
	h.messages = append(h.messages, msg)
	size := len(h.messages)
	h.mu.Unlock()

	if span := observability.SpanFromContext(ctx); span != nil {
		span.AddEvent(observability.EventHistoryAppend,
			observability.String(observability.AttrHistoryRole, string(msg.Role)),
			observability.Int(observability.AttrHistoryLength, len(msg.Content)),
		)
		span.SetAttributes(observability.Int(observability.AttrHistorySize, size))
	}
}

// AppendResponse adds the assistant reply of resp, keeping its function
// call if the model requested one.
func (h *History) AppendResponse(ctx context.Context, resp *ChatResponse) {
	if resp == nil {
		return
	}
	h.AppendMessage(ctx, Message{Role: RoleAssistant, Content: resp.Result, FunctionCall: resp.FunctionCall})
}

// Messages returns a copy of the conversation.
func (h *History) Messages() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Message(nil), h.messages...)
}

// Last returns a copy of up to the last n messages.
func (h *History) Last(n int) []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n = max(0, min(n, len(h.messages)))
	return append([]Message(nil), h.messages[len(h.messages)-n:]...)
}

// Pop removes the last message. ok is false when the history is empty.
func (h *History) Pop() (msg Message, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.messages) == 0 {
		return Message{}, false
	}
	msg = h.messages[len(h.messages)-1]
	h.messages = h.messages[:len(h.messages)-1]
	return msg, true
}

// Len returns the number of messages.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Clear empties the history.
func (h *History) Clear(ctx context.Context) {
	if span := observability.SpanFromContext(ctx); span != nil {
		span.AddEvent(observability.EventHistoryClear)
	}
	h.mu.Lock()
	h.messages = nil
	h.mu.Unlock()
}

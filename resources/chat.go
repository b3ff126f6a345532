package resources

import (
	"context"
	"slices"

	"github.com/leofalp/qianfan/core/requestor"
)

// ChatCompletion talks to the chat models. The zero value uses
// DefaultChatModel and loads its configuration on first use.
type ChatCompletion struct {
	base
}

// NewChatCompletion returns a ChatCompletion configured by opts.
func NewChatCompletion(opts ...Option) *ChatCompletion {
	c := &ChatCompletion{}
	c.apply(opts)
	return c
}

// ChatRequest is the input of ChatCompletion.
type ChatRequest struct {
	Model    string `json:"-"` // Overrides the client model
	Endpoint string `json:"-"` // Overrides the client endpoint and the model's preset one

	Messages     []Message  `json:"messages"`
	System       string     `json:"system,omitempty"`
	Temperature  *float64   `json:"temperature,omitempty"`   // (0, 1]
	TopP         *float64   `json:"top_p,omitempty"`         // [0, 1]
	PenaltyScore *float64   `json:"penalty_score,omitempty"` // [1, 2]
	Functions    []Function `json:"functions,omitempty"`
	UserID       string     `json:"user_id,omitempty"`

	// AutoConcatTruncate keeps asking the model to continue while the reply
	// is truncated and returns the whole reply.
	AutoConcatTruncate bool `json:"-"`

	// Extra is merged into the body as is, for keys without a field.
	Extra map[string]any `json:"-"`
}

// Do sends the conversation and returns the reply.
//
// With AutoConcatTruncate each truncated reply is appended to a copy of the
// conversation as an assistant message, followed by a user message asking
// to continue, until a reply is complete. The returned response carries the
// concatenated text and the metadata of the last round. req.Messages is
// never modified.
func (c *ChatCompletion) Do(ctx context.Context, req *ChatRequest, opts ...CallOption) (*ChatResponse, error) {
	resp, err := c.round(ctx, req, req.Messages, opts)
	if err != nil || !req.AutoConcatTruncate {
		return resp, err
	}

	messages := slices.Clone(req.Messages)
	entire := resp.Result
	for resp.IsTruncated {
		messages = appendContinuation(messages, resp.Result)
		resp, err = c.round(ctx, req, messages, opts)
		if err != nil {
			return nil, err
		}
		entire += resp.Result
	}
	resp.Result = entire
	return resp, nil
}

// Stream sends the conversation and streams the reply. With
// AutoConcatTruncate the chunks of every continuation round follow each
// other in one stream.
func (c *ChatCompletion) Stream(ctx context.Context, req *ChatRequest, opts ...CallOption) (*ChatStream, error) {
	first, firstCall, err := c.openRound(ctx, req, req.Messages, opts)
	if err != nil {
		return nil, err
	}

	return newStream(func(yield func(*ChatResponse, error) bool) {
		messages := slices.Clone(req.Messages)
		stream, cl := first, firstCall
		for {
			content, truncated, ok := forwardChat(ctx, stream, cl, yield)
			if !ok || !req.AutoConcatTruncate || !truncated {
				return
			}

			messages = appendContinuation(messages, content)
			var err error
			stream, cl, err = c.openRound(ctx, req, messages, opts)
			if err != nil {
				yield(nil, err)
				return
			}
		}
	}, mergeChat), nil
}

// forwardChat yields the decoded chunks of one round. ok is false when the
// consumer stopped or an error was yielded.
func forwardChat(ctx context.Context, stream *requestor.Stream, cl *call, yield func(*ChatResponse, error) bool) (content string, truncated, ok bool) {
	var last *ChatResponse
	for chunk, err := range stream.Iter() {
		if err != nil {
			yield(nil, err)
			return content, false, false
		}
		out, err := decode[ChatResponse](chunk)
		if err != nil {
			yield(nil, err)
			return content, false, false
		}
		content += out.Result
		last = out
		if !yield(out, nil) {
			return content, false, false
		}
	}
	if last == nil {
		return content, false, true
	}
	recordCall(ctx, cl, last.ID, last.Usage, last.Statistic)
	return content, last.IsTruncated, true
}

func appendContinuation(messages []Message, partial string) []Message {
	return append(messages,
		Message{Role: RoleAssistant, Content: partial},
		Message{Role: RoleUser, Content: continuePrompt},
	)
}

func (c *ChatCompletion) prepareRound(ctx context.Context, req *ChatRequest, messages []Message, opts []CallOption) (*call, error) {
	r := *req
	r.Messages = messages
	body, err := buildBody(&r, req.Extra)
	if err != nil {
		return nil, err
	}
	return c.prepare(ctx, chatKind, req.Model, req.Endpoint, body, opts)
}

func (c *ChatCompletion) round(ctx context.Context, req *ChatRequest, messages []Message, opts []CallOption) (*ChatResponse, error) {
	cl, err := c.prepareRound(ctx, req, messages, opts)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, cl)
	if err != nil {
		return nil, err
	}
	out, err := decode[ChatResponse](resp)
	if err != nil {
		return nil, err
	}
	recordCall(ctx, cl, out.ID, out.Usage, out.Statistic)
	return out, nil
}

func (c *ChatCompletion) openRound(ctx context.Context, req *ChatRequest, messages []Message, opts []CallOption) (*requestor.Stream, *call, error) {
	cl, err := c.prepareRound(ctx, req, messages, opts)
	if err != nil {
		return nil, nil, err
	}
	stream, err := c.stream(ctx, cl)
	if err != nil {
		return nil, nil, err
	}
	return stream, cl, nil
}

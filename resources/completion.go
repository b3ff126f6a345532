package resources

import (
	"context"

	"github.com/samber/lo"
)

// Completions continues a prompt. Models present only in the chat table
// are served through the chat API with the prompt as a single user message.
type Completions struct {
	base
}

// NewCompletions returns a Completions configured by opts.
func NewCompletions(opts ...Option) *Completions {
	c := &Completions{}
	c.apply(opts)
	return c
}

// CompletionRequest is the input of Completions.
type CompletionRequest struct {
	Model    string `json:"-"`
	Endpoint string `json:"-"`

	Prompt       string   `json:"prompt"`
	Temperature  *float64 `json:"temperature,omitempty"`
	TopK         *int     `json:"top_k,omitempty"`
	TopP         *float64 `json:"top_p,omitempty"`
	PenaltyScore *float64 `json:"penalty_score,omitempty"`
	Stop         []string `json:"stop,omitempty"`
	UserID       string   `json:"user_id,omitempty"`

	Extra map[string]any `json:"-"`
}

// Do returns the completion of req.Prompt.
func (c *Completions) Do(ctx context.Context, req *CompletionRequest, opts ...CallOption) (*ChatResponse, error) {
	cl, err := c.prepareCompletion(ctx, req, opts)
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

// Stream streams the completion of req.Prompt.
func (c *Completions) Stream(ctx context.Context, req *CompletionRequest, opts ...CallOption) (*ChatStream, error) {
	cl, err := c.prepareCompletion(ctx, req, opts)
	if err != nil {
		return nil, err
	}
	stream, err := c.stream(ctx, cl)
	if err != nil {
		return nil, err
	}
	return newStream(func(yield func(*ChatResponse, error) bool) {
		forwardChat(ctx, stream, cl, yield)
	}, mergeChat), nil
}

func (c *Completions) prepareCompletion(ctx context.Context, req *CompletionRequest, opts []CallOption) (*call, error) {
	model := lo.CoalesceOrEmpty(req.Model, c.model)
	endpoint := lo.CoalesceOrEmpty(req.Endpoint, c.endpoint)

	if endpoint == "" && servedByChat(model) {
		chat := ChatRequest{
			Messages:     []Message{{Role: RoleUser, Content: req.Prompt}},
			Temperature:  req.Temperature,
			TopP:         req.TopP,
			PenaltyScore: req.PenaltyScore,
			UserID:       req.UserID,
		}
		body, err := buildBody(&chat, req.Extra)
		if err != nil {
			return nil, err
		}
		return c.prepare(ctx, chatKind, model, "", body, opts)
	}

	body, err := buildBody(req, req.Extra)
	if err != nil {
		return nil, err
	}
	return c.prepare(ctx, completionKind, model, endpoint, body, opts)
}

func servedByChat(model string) bool {
	_, isCompletion := completionModels[model]
	_, isChat := chatModels[model]
	return !isCompletion && isChat
}


package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/leofalp/qianfan/core/config"
	"github.com/leofalp/qianfan/core/overview"
	"github.com/leofalp/qianfan/core/requestor"
	"github.com/leofalp/qianfan/providers/observability"
)

/*
	##### CLIENT OPTIONS #####
*/

// Option configures a resource client.
type Option func(*base)

// WithModel sets the model used when a request names none.
func WithModel(model string) Option {
	return func(b *base) { b.model = model }
}

// WithEndpoint sets the endpoint used when a request names none. An
// endpoint takes precedence over the model's preset endpoint.
func WithEndpoint(endpoint string) Option {
	return func(b *base) { b.endpoint = endpoint }
}

// WithConfig uses cfg instead of config.Load.
func WithConfig(cfg *config.Config) Option {
	return func(b *base) { b.cfg = cfg }
}

// WithRequestor uses r instead of building one with NewRequestor. The
// configuration still supplies the base URL.
func WithRequestor(r *requestor.Requestor) Option {
	return func(b *base) { b.requestor = r }
}

// WithRequestorOptions passes extra options to NewRequestor, for example
// requestor.WithObservability.
func WithRequestorOptions(opts ...requestor.Option) Option {
	return func(b *base) { b.requestorOpts = append(b.requestorOpts, opts...) }
}

/*
	##### CALL OPTIONS #####
*/

// CallOption tunes a single call.
type CallOption func(*requestor.Request)

// WithRetryCount sets the total number of attempts for this call.
func WithRetryCount(n int) CallOption {
	return func(r *requestor.Request) { r.RetryCount = n }
}

// WithRequestTimeout bounds each attempt of this call.
func WithRequestTimeout(d time.Duration) CallOption {
	return func(r *requestor.Request) { r.Timeout = d }
}

// WithBackoffFactor sets the initial retry wait, in seconds, for this call.
func WithBackoffFactor(f float64) CallOption {
	return func(r *requestor.Request) { r.BackoffFactor = &f }
}

/*
	##### SHARED BEHAVIOUR #####
*/

// base is embedded by every resource client. Its zero value loads the
// configuration on first use.
type base struct {
	model         string
	endpoint      string
	cfg           *config.Config
	requestor     *requestor.Requestor
	requestorOpts []requestor.Option

	once    sync.Once
	initErr error
}

func (b *base) apply(opts []Option) {
	for _, opt := range opts {
		opt(b)
	}
}

func (b *base) init() error {
	b.once.Do(func() {
		if b.cfg == nil {
			cfg, err := config.Load()
			if err != nil {
				b.initErr = err
				return
			}
			b.cfg = cfg
		}
		if b.requestor == nil {
			r, err := NewRequestor(b.cfg, b.requestorOpts...)
			if err != nil {
				b.initErr = err
				return
			}
			b.requestor = r
		}
	})
	return b.initErr
}

// call is a prepared request plus what is needed to report on it.
type call struct {
	kind   kind
	model  string
	req    *requestor.Request
	custom bool
}

// prepare resolves the model, validates the body and builds the request.
// model and endpoint from the request override the client's own.
func (b *base) prepare(ctx context.Context, k kind, model, endpoint string, body map[string]any, opts []CallOption) (*call, error) {
	if err := b.init(); err != nil {
		return nil, err
	}
	model = lo.CoalesceOrEmpty(model, b.model)
	endpoint = lo.CoalesceOrEmpty(endpoint, b.endpoint)

	name, info, custom, err := k.resolve(model, endpoint)
	if err != nil {
		return nil, err
	}
	if err := checkKeys(ctx, b.requestor.Observability(), k, name, info, custom, body); err != nil {
		return nil, err
	}

	req := &requestor.Request{
		URL:      b.cfg.APIBaseURL() + info.Endpoint,
		JSONBody: body,
		Resource: k.name,
		Model:    lo.CoalesceOrEmpty(name, endpoint),
		Endpoint: info.Endpoint,
	}
	for _, opt := range opts {
		opt(req)
	}
	return &call{kind: k, model: req.Model, req: req, custom: custom}, nil
}

// checkKeys fails on missing required keys and warns about keys the model
// does not document. Models outside the preset table are not warned about.
func checkKeys(ctx context.Context, obs observability.Provider, k kind, model string, info ModelInfo, custom bool, body map[string]any) error {
	for _, key := range info.RequiredKeys {
		if v, ok := body[key]; !ok || v == nil {
			return fmt.Errorf("%w: %s %q requires %q", ErrMissingRequiredKey, k.name, model, key)
		}
	}
	if custom {
		return nil
	}
	unknown := lo.Reject(lo.Keys(body), func(key string, _ int) bool { return info.accepts(key) })
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	msg := fmt.Sprintf("%s model %q does not document keys %v, sending them anyway", k.name, model, unknown)
	if obs != nil {
		obs.Warn(ctx, msg)
	} else {
		slog.WarnContext(ctx, msg)
	}
	return nil
}

func (b *base) do(ctx context.Context, c *call) (*requestor.Response, error) {
	resp, err := b.requestor.Do(ctx, c.req)
	if err != nil {
		recordError(ctx, c, err)
		return nil, err
	}
	return resp, nil
}

func (b *base) stream(ctx context.Context, c *call) (*requestor.Stream, error) {
	c.req.JSONBody["stream"] = true
	s, err := b.requestor.Stream(ctx, c.req)
	if err != nil {
		recordError(ctx, c, err)
		return nil, err
	}
	return s, nil
}

// buildBody turns a typed request into the JSON body and merges extra into
// it. Keys of extra override typed fields.
func buildBody(v any, extra map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	body := map[string]any{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	maps.Copy(body, extra)
	return body, nil
}

/*
	##### OVERVIEW #####
*/

func recordCall(ctx context.Context, c *call, id string, usage Usage, stat requestor.Statistic) {
	o := overview.FromContext(ctx)
	if o == nil {
		return
	}
	o.Record(overview.Call{
		Resource:   c.kind.name,
		Model:      c.model,
		ResponseID: id,
		Streaming:  c.req.JSONBody["stream"] == true,
		Usage: overview.Usage{
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			TotalTokens:      usage.TotalTokens,
		},
		RequestLatency:    stat.RequestLatency,
		FirstTokenLatency: stat.FirstTokenLatency,
		TotalLatency:      stat.TotalLatency,
	})
}

func recordError(ctx context.Context, c *call, err error) {
	if o := overview.FromContext(ctx); o != nil {
		o.Record(overview.Call{Resource: c.kind.name, Model: c.model, Err: err.Error()})
	}
}

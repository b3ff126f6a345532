package resources

import "context"

// Reranker orders documents by relevance to a query.
type Reranker struct {
	base
}

// NewReranker returns a Reranker configured by opts.
func NewReranker(opts ...Option) *Reranker {
	r := &Reranker{}
	r.apply(opts)
	return r
}

// RerankRequest is the input of Reranker.
type RerankRequest struct {
	Model    string `json:"-"`
	Endpoint string `json:"-"`

	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n,omitempty"`
	UserID    string   `json:"user_id,omitempty"`

	Extra map[string]any `json:"-"`
}

// Do scores req.Documents against req.Query.
func (r *Reranker) Do(ctx context.Context, req *RerankRequest, opts ...CallOption) (*RerankResponse, error) {
	body, err := buildBody(req, req.Extra)
	if err != nil {
		return nil, err
	}
	cl, err := r.prepare(ctx, rerankerKind, req.Model, req.Endpoint, body, opts)
	if err != nil {
		return nil, err
	}
	resp, err := r.do(ctx, cl)
	if err != nil {
		return nil, err
	}
	out, err := decode[RerankResponse](resp)
	if err != nil {
		return nil, err
	}
	recordCall(ctx, cl, out.ID, out.Usage, out.Statistic)
	return out, nil
}

package resources

import (
	"context"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// maxEmbeddingConcurrency bounds the batches in flight for one Do call.
const maxEmbeddingConcurrency = 4

// Embedding turns texts into vectors.
type Embedding struct {
	base
}

// NewEmbedding returns an Embedding configured by opts.
func NewEmbedding(opts ...Option) *Embedding {
	e := &Embedding{}
	e.apply(opts)
	return e
}

// EmbeddingRequest is the input of Embedding.
type EmbeddingRequest struct {
	Model    string `json:"-"`
	Endpoint string `json:"-"`

	Input  []string `json:"input"`
	UserID string   `json:"user_id,omitempty"`

	Extra map[string]any `json:"-"`
}

// Do embeds req.Input. Inputs beyond the model's batch size are split into
// several requests sent concurrently; the response lists the vectors in
// input order with usage summed over the batches.
func (e *Embedding) Do(ctx context.Context, req *EmbeddingRequest, opts ...CallOption) (*EmbeddingResponse, error) {
	model := lo.CoalesceOrEmpty(req.Model, e.model, DefaultEmbeddingModel)
	size := embeddingBatchSize[model]
	if size <= 0 {
		size = defaultEmbeddingBatchSize
	}

	batches := lo.Chunk(req.Input, size)
	if len(batches) <= 1 {
		return e.batch(ctx, req, req.Input, opts)
	}

	results := make([]*EmbeddingResponse, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxEmbeddingConcurrency)
	for i, input := range batches {
		g.Go(func() error {
			resp, err := e.batch(gctx, req, input, opts)
			if err != nil {
				return err
			}
			results[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := *results[0]
	merged.Data = nil
	merged.Usage = Usage{}
	offset := 0
	for i, resp := range results {
		for _, d := range resp.Data {
			d.Index += offset
			merged.Data = append(merged.Data, d)
		}
		offset += len(batches[i])
		merged.Usage.PromptTokens += resp.Usage.PromptTokens
		merged.Usage.CompletionTokens += resp.Usage.CompletionTokens
		merged.Usage.TotalTokens += resp.Usage.TotalTokens
	}
	return &merged, nil
}

func (e *Embedding) batch(ctx context.Context, req *EmbeddingRequest, input []string, opts []CallOption) (*EmbeddingResponse, error) {
	r := *req
	r.Input = input
	body, err := buildBody(&r, req.Extra)
	if err != nil {
		return nil, err
	}
	cl, err := e.prepare(ctx, embeddingKind, req.Model, req.Endpoint, body, opts)
	if err != nil {
		return nil, err
	}
	resp, err := e.do(ctx, cl)
	if err != nil {
		return nil, err
	}
	out, err := decode[EmbeddingResponse](resp)
	if err != nil {
		return nil, err
	}
	recordCall(ctx, cl, out.ID, out.Usage, out.Statistic)
	return out, nil
}

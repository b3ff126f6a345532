package openai

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/leofalp/qianfan/resources"
)

func (s *Server) handleEmbeddings(c *gin.Context) {
	var in goopenai.EmbeddingRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		s.writeError(c, badRequest("decode body: %v", err))
		return
	}
	input, err := embeddingInput(in.Input)
	if err != nil {
		s.writeError(c, err)
		return
	}
	model := lo.CoalesceOrEmpty(string(in.Model), resources.DefaultEmbeddingModel)

	resp, err := s.embedding.Do(c.Request.Context(), &resources.EmbeddingRequest{
		Model:  string(in.Model),
		Input:  input,
		UserID: in.User,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	data := lo.Map(resp.Data, func(d resources.EmbeddingData, _ int) goopenai.Embedding {
		return goopenai.Embedding{
			Object:    "embedding",
			Index:     d.Index,
			Embedding: lo.Map(d.Embedding, func(v float64, _ int) float32 { return float32(v) }),
		}
	})
	c.JSON(http.StatusOK, goopenai.EmbeddingResponse{
		Object: "list",
		Data:   data,
		Model:  goopenai.EmbeddingModel(model),
		Usage:  toUsage(resp.Usage),
	})
}

// embeddingInput accepts a string or a list of strings. Token arrays are
// not supported since Qianfan tokenizes server side.
func embeddingInput(v any) ([]string, error) {
	switch in := v.(type) {
	case string:
		if in == "" {
			return nil, badRequest("input must not be empty")
		}
		return []string{in}, nil
	case []any:
		if len(in) == 0 {
			return nil, badRequest("input must not be empty")
		}
		out := make([]string, len(in))
		for i, item := range in {
			s, ok := item.(string)
			if !ok {
				return nil, badRequest("input[%d] must be a string", i)
			}
			out[i] = s
		}
		return out, nil
	}
	return nil, badRequest("input must be a string or a list of strings")
}

package openai

import (
	"maps"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/leofalp/qianfan/resources"
)

const modelOwner = "qianfan"

// handleModels lists the preset chat, completion and embedding models.
// Custom endpoints are usable but cannot be listed.
func (s *Server) handleModels(c *gin.Context) {
	var names []string
	for _, set := range []map[string]resources.ModelInfo{
		resources.ChatModels(),
		resources.CompletionModels(),
		resources.EmbeddingModels(),
	} {
		names = append(names, slices.Sorted(maps.Keys(set))...)
	}

	data := make([]goopenai.Model, len(names))
	for i, name := range names {
		data[i] = goopenai.Model{ID: name, Object: "model", OwnedBy: modelOwner}
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}

package handlers

import (
	"net/http"
	"time"

	"github.com/drawgate/api/internal/openai"
	"github.com/drawgate/api/internal/upstream"
	"github.com/gin-gonic/gin"
)

// ModelsHandler serves the supported model catalog.
type ModelsHandler struct{}

// NewModelsHandler creates a models handler.
func NewModelsHandler() *ModelsHandler {
	return &ModelsHandler{}
}

// ListModels handles GET /v1/models.
func (h *ModelsHandler) ListModels(c *gin.Context) {
	created := time.Now().Unix()
	data := make([]openai.Model, 0, len(upstream.SupportedModels))
	for _, id := range upstream.SupportedModels {
		data = append(data, openai.Model{
			ID:      id,
			Object:  "model",
			Created: created,
			OwnedBy: "drawgate",
		})
	}

	c.JSON(http.StatusOK, openai.ModelList{Object: "list", Data: data})
}

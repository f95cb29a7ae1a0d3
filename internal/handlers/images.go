package handlers

import (
	"net/http"
	"time"

	"github.com/drawgate/api/internal/config"
	"github.com/drawgate/api/internal/directive"
	"github.com/drawgate/api/internal/dispatch"
	"github.com/drawgate/api/internal/metrics"
	"github.com/drawgate/api/internal/middleware"
	"github.com/drawgate/api/internal/openai"
	"github.com/drawgate/api/internal/stream"
	"github.com/drawgate/api/internal/upstream"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ImagesHandler exposes the plain OpenAI images API on top of the same
// dispatcher the chat pipeline uses.
type ImagesHandler struct {
	cfg        *config.Config
	dispatcher Dispatcher
	rehoster   Rehoster
	logger     *zap.Logger
}

// NewImagesHandler creates the images generations handler.
func NewImagesHandler(cfg *config.Config, dispatcher Dispatcher, rehoster Rehoster, logger *zap.Logger) *ImagesHandler {
	return &ImagesHandler{cfg: cfg, dispatcher: dispatcher, rehoster: rehoster, logger: logger}
}

// GenerateImages handles POST /v1/images/generations.
func (h *ImagesHandler) GenerateImages(c *gin.Context) {
	var req openai.ImageGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Prompt == "" || req.Model == "" {
		metrics.RequestsTotal.WithLabelValues("images_generations", "bad_request").Inc()
		middleware.RespondOpenAIError(c, http.StatusBadRequest, "invalid_request_error", "Bad Request: Missing required fields")
		return
	}

	if upstream.IsRetired(req.Model) {
		metrics.RequestsTotal.WithLabelValues("images_generations", "model_retired").Inc()
		middleware.RespondOpenAIError(c, http.StatusGone, "model_retired", "该模型已下架: "+req.Model)
		return
	}

	n := req.N
	if n < 1 {
		n = 1
	}
	if n > h.cfg.MaxImagesPerRequest {
		n = h.cfg.MaxImagesPerRequest
	}

	size := req.Size
	if size == "" {
		size = directive.DefaultResolution
	}

	outcomes := stream.OrderByIndex(h.dispatcher.Dispatch(c.Request.Context(), dispatch.Request{
		Model:      req.Model,
		Prompt:     req.Prompt,
		Resolution: size,
		Count:      n,
	}))

	data := make([]openai.ImageData, 0, n)
	var lastErr error
	for outcome := range outcomes {
		if !outcome.Succeeded() {
			lastErr = outcome.Err
			continue
		}
		img := h.rehoster.Rehost(c.Request.Context(), outcome.URL)
		data = append(data, openai.ImageData{
			URL:           img.BestURL(),
			RevisedPrompt: req.Prompt,
		})
	}

	if len(data) == 0 {
		metrics.RequestsTotal.WithLabelValues("images_generations", "upstream_failed").Inc()
		msg := "image generation failed"
		if lastErr != nil {
			msg = lastErr.Error()
		}
		middleware.RespondOpenAIError(c, http.StatusBadGateway, "upstream_error", msg)
		return
	}

	metrics.RequestsTotal.WithLabelValues("images_generations", "ok").Inc()
	c.JSON(http.StatusOK, openai.ImagesResponse{
		Created: time.Now().Unix(),
		Data:    data,
	})
}

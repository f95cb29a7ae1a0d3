package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/drawgate/api/internal/config"
	"github.com/drawgate/api/internal/directive"
	"github.com/drawgate/api/internal/dispatch"
	"github.com/drawgate/api/internal/keypool"
	"github.com/drawgate/api/internal/metrics"
	"github.com/drawgate/api/internal/middleware"
	"github.com/drawgate/api/internal/moderation"
	"github.com/drawgate/api/internal/openai"
	"github.com/drawgate/api/internal/rehost"
	"github.com/drawgate/api/internal/stream"
	"github.com/drawgate/api/internal/upstream"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PromptExpander enriches a prompt, returning its input on failure.
type PromptExpander interface {
	Expand(ctx context.Context, apiKey, text string) string
}

// Dispatcher fans one generation request out into per-image outcomes.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) <-chan dispatch.Outcome
}

// Rehoster re-hosts a generated image URL, best-effort.
type Rehoster interface {
	Rehost(ctx context.Context, originalURL string) rehost.RehostedImage
}

// ChatHandler turns chat-completion requests into image-generation fan-outs
// and streams OpenAI-compatible results back.
type ChatHandler struct {
	cfg        *config.Config
	filter     *moderation.Filter
	pool       *keypool.Pool
	expander   PromptExpander
	dispatcher Dispatcher
	rehoster   Rehoster
	breaker    *middleware.CircuitBreaker
	logger     *zap.Logger
}

// NewChatHandler creates the chat completions handler.
func NewChatHandler(
	cfg *config.Config,
	filter *moderation.Filter,
	pool *keypool.Pool,
	expander PromptExpander,
	dispatcher Dispatcher,
	rehoster Rehoster,
	breaker *middleware.CircuitBreaker,
	logger *zap.Logger,
) *ChatHandler {
	return &ChatHandler{
		cfg:        cfg,
		filter:     filter,
		pool:       pool,
		expander:   expander,
		dispatcher: dispatcher,
		rehoster:   rehoster,
		breaker:    breaker,
		logger:     logger,
	}
}

// ChatCompletions handles POST /v1/chat/completions.
func (h *ChatHandler) ChatCompletions(c *gin.Context) {
	var req openai.ChatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Model == "" || len(req.Messages) == 0 {
		metrics.RequestsTotal.WithLabelValues("chat_completions", "bad_request").Inc()
		middleware.RespondOpenAIError(c, http.StatusBadRequest, "invalid_request_error", "Bad Request: Missing required fields")
		return
	}

	if upstream.IsRetired(req.Model) {
		metrics.RequestsTotal.WithLabelValues("chat_completions", "model_retired").Inc()
		middleware.RespondOpenAIError(c, http.StatusGone, "model_retired", fmt.Sprintf("该模型已下架: %s", req.Model))
		return
	}

	// Flatten the conversation: every non-assistant message contributes to
	// the drawing request.
	rawContext := buildContext(req.Messages)

	// Content filter runs before any parsing or outbound call.
	if keyword, banned := h.filter.Check(rawContext); banned {
		h.logger.Info("prompt rejected by content filter", zap.String("keyword", keyword))
		metrics.PolicyRejectionsTotal.Inc()
		metrics.RequestsTotal.WithLabelValues("chat_completions", "policy_rejected").Inc()
		h.respondText(c, req, rawContext, moderation.RejectionNotice)
		return
	}

	spec, err := directive.Parse(rawContext, h.cfg.MaxImagesPerRequest)
	if err != nil {
		if errors.Is(err, directive.ErrInvalidDirective) {
			metrics.RequestsTotal.WithLabelValues("chat_completions", "invalid_directive").Inc()
			middleware.RespondOpenAIError(c, http.StatusBadRequest, "invalid_directive", err.Error())
			return
		}
		metrics.RequestsTotal.WithLabelValues("chat_completions", "error").Inc()
		middleware.RespondOpenAIError(c, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	// One expansion call per request, not per image. Failures fall back to
	// the raw prompt inside the expander.
	prompt := h.expander.Expand(c.Request.Context(), h.pool.Acquire(1)[0], spec.Prompt)

	genReq := dispatch.Request{
		Model:      req.Model,
		Prompt:     prompt,
		Resolution: spec.Resolution,
		Count:      spec.Count,
	}

	h.logger.Info("starting image generation",
		zap.String("model", req.Model),
		zap.Int("count", spec.Count),
		zap.String("resolution", spec.Resolution),
		zap.Int("pool_size", h.pool.Size()),
	)

	if req.Stream {
		h.streamResults(c, req.Model, genReq)
	} else {
		h.aggregateResults(c, req, rawContext, genReq)
	}
}

// streamResults drives the SSE state machine: announce, generating, one
// chunk per image slot in index order, completion, [DONE].
func (h *ChatHandler) streamResults(c *gin.Context, model string, genReq dispatch.Request) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	now := time.Now()
	emitter := stream.NewEmitter(c.Writer, openai.NewCompletionID(now), model, now)

	safePrompt := stream.SafePrompt(genReq.Prompt)
	if err := emitter.Announce(safePrompt, genReq.Count); err != nil {
		h.logger.Warn("client gone before announcement", zap.Error(err))
		return
	}
	if err := emitter.Generating(genReq.Count); err != nil {
		return
	}

	ordered := stream.OrderByIndex(h.dispatcher.Dispatch(c.Request.Context(), genReq))

	failures := 0
	clientGone := false
	for outcome := range ordered {
		if clientGone {
			continue // drain so the ordering goroutine can exit
		}

		var content string
		if outcome.Succeeded() {
			img := h.rehoster.Rehost(c.Request.Context(), outcome.URL)
			content = stream.RenderSuccess(outcome.Index, genReq.Count, genReq.Prompt, img)
		} else {
			failures++
			content = stream.RenderFailure(outcome.Index, genReq.Count, outcome.Err)
		}

		if err := emitter.Result(content); err != nil {
			h.logger.Warn("client disconnected mid-stream, abandoning remaining slots", zap.Error(err))
			clientGone = true
		}
	}

	h.recordBreaker(failures, genReq.Count)

	if !clientGone {
		if err := emitter.Complete(genReq.Count); err != nil {
			h.logger.Warn("stream completion write failed", zap.Error(err))
		}
		metrics.RequestsTotal.WithLabelValues("chat_completions", "ok").Inc()
	}
}

// aggregateResults waits for every slot and returns a single completion body.
func (h *ChatHandler) aggregateResults(c *gin.Context, req openai.ChatCompletionRequest, rawContext string, genReq dispatch.Request) {
	var b strings.Builder
	safePrompt := stream.SafePrompt(genReq.Prompt)
	fmt.Fprintf(&b, "{\n \"prompt\":\"%s\",\n \"image_size\": \"%s\",\n \"count\": %d\n}\n", safePrompt, genReq.Resolution, genReq.Count)

	failures := 0
	for outcome := range stream.OrderByIndex(h.dispatcher.Dispatch(c.Request.Context(), genReq)) {
		if outcome.Succeeded() {
			img := h.rehoster.Rehost(c.Request.Context(), outcome.URL)
			b.WriteString(stream.RenderSuccess(outcome.Index, genReq.Count, genReq.Prompt, img))
		} else {
			failures++
			b.WriteString(stream.RenderFailure(outcome.Index, genReq.Count, outcome.Err))
		}
	}

	h.recordBreaker(failures, genReq.Count)
	metrics.RequestsTotal.WithLabelValues("chat_completions", "ok").Inc()

	c.JSON(http.StatusOK, buildCompletion(req.Model, rawContext, b.String()))
}

// respondText returns plain assistant text (streamed or not), used for
// policy rejections that never reach the dispatcher.
func (h *ChatHandler) respondText(c *gin.Context, req openai.ChatCompletionRequest, rawContext, text string) {
	if req.Stream {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("X-Accel-Buffering", "no")

		now := time.Now()
		emitter := stream.NewEmitter(c.Writer, openai.NewCompletionID(now), req.Model, now)
		if err := emitter.Text(text); err != nil {
			h.logger.Warn("stream write failed", zap.Error(err))
		}
		return
	}
	c.JSON(http.StatusOK, buildCompletion(req.Model, rawContext, text))
}

// recordBreaker feeds the upstream circuit breaker: a request where every
// slot failed counts as an upstream failure.
func (h *ChatHandler) recordBreaker(failures, count int) {
	if h.breaker == nil {
		return
	}
	if failures == count {
		h.breaker.RecordFailure()
	} else {
		h.breaker.RecordSuccess()
	}
}

// buildContext concatenates every non-assistant message into one drawing
// request.
func buildContext(messages []openai.ChatMessage) string {
	var b strings.Builder
	for _, m := range messages {
		if m.Role == "assistant" {
			continue
		}
		b.WriteString(m.Content)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

// buildCompletion wraps text in a non-streamed completion body. Token usage
// is approximated with character counts.
func buildCompletion(model, promptText, responseText string) openai.ChatCompletionResponse {
	now := time.Now()
	return openai.ChatCompletionResponse{
		ID:      openai.NewCompletionID(now),
		Object:  "chat.completion",
		Created: now.Unix(),
		Model:   model,
		Choices: []openai.Choice{
			{
				Index:        0,
				Message:      openai.ChatMessage{Role: "assistant", Content: responseText},
				FinishReason: "stop",
			},
		},
		Usage: openai.Usage{
			PromptTokens:     len(promptText),
			CompletionTokens: len(responseText),
			TotalTokens:      len(promptText) + len(responseText),
		},
	}
}

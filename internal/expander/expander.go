package expander

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/drawgate/api/internal/openai"
	"go.uber.org/zap"
)

const systemPrompt = "你是一个技术精湛、善于观察、富有创造力和想象力、擅长使用精准语言描述画面的艺术家。" +
	"请根据用户的作画请求（可能是一组包含绘画要求的上下文，跳过其中的非绘画内容），" +
	"扩充为一段具体的画面描述，100 words以内。可以包括画面内容、风格、技法等，使用英文回复."

// Expander enriches a short drawing request into a detailed English prompt
// by calling an external chat-completions endpoint. Expansion is strictly
// best-effort: any failure returns the original prompt unchanged.
type Expander struct {
	endpoint   string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates an expander against the given chat-completions endpoint.
func New(endpoint, model string, logger *zap.Logger) *Expander {
	return &Expander{
		endpoint:   endpoint,
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// Expand returns a detailed image prompt for the given text, or the text
// itself when the expansion call fails. Errors are logged, never returned.
func (e *Expander) Expand(ctx context.Context, apiKey, text string) string {
	body, err := json.Marshal(openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: text},
		},
	})
	if err != nil {
		e.logger.Error("marshal expansion request", zap.Error(err))
		return text
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		e.logger.Error("build expansion request", zap.Error(err))
		return text
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		e.logger.Warn("prompt expansion call failed, using original prompt", zap.Error(err))
		return text
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		e.logger.Warn("prompt expansion returned non-200, using original prompt",
			zap.Int("status", resp.StatusCode))
		return text
	}

	var completion openai.ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		e.logger.Warn("decode expansion response failed, using original prompt", zap.Error(err))
		return text
	}
	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return text
	}

	return completion.Choices[0].Message.Content
}

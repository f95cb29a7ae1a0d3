package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/drawgate/api/internal/config"
	"github.com/drawgate/api/internal/dispatch"
	"github.com/drawgate/api/internal/keypool"
	"github.com/drawgate/api/internal/moderation"
	"github.com/drawgate/api/internal/openai"
	"github.com/drawgate/api/internal/rehost"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubExpander struct{}

func (stubExpander) Expand(ctx context.Context, apiKey, text string) string {
	return text
}

// stubDispatcher synthesizes one outcome per requested slot, failing the
// indices listed in failAt.
type stubDispatcher struct {
	calls   atomic.Int64
	lastReq dispatch.Request
	failAt  map[int]error
}

func (s *stubDispatcher) Dispatch(ctx context.Context, req dispatch.Request) <-chan dispatch.Outcome {
	s.calls.Add(1)
	s.lastReq = req

	ch := make(chan dispatch.Outcome, req.Count)
	// Deliver in reverse completion order to exercise index re-sequencing.
	for i := req.Count; i >= 1; i-- {
		if err, ok := s.failAt[i]; ok {
			ch <- dispatch.Outcome{Index: i, Err: err}
		} else {
			ch <- dispatch.Outcome{Index: i, URL: "https://up.example.com/img" + strconv.Itoa(i) + ".png"}
		}
	}
	close(ch)
	return ch
}

type stubRehoster struct{}

func (stubRehoster) Rehost(ctx context.Context, originalURL string) rehost.RehostedImage {
	return rehost.RehostedImage{OriginalURL: originalURL}
}

func testConfig() *config.Config {
	return &config.Config{MaxImagesPerRequest: 4}
}

func newTestRouter(t *testing.T, d Dispatcher, banned []string) *gin.Engine {
	t.Helper()
	pool, err := keypool.New([]string{"k1", "k2"})
	require.NoError(t, err)

	h := NewChatHandler(testConfig(), moderation.NewFilter(banned), pool, stubExpander{}, d, stubRehoster{}, nil, zap.NewNop())

	r := gin.New()
	r.POST("/v1/chat/completions", h.ChatCompletions)
	return r
}

func postChat(t *testing.T, r *gin.Engine, body openai.ChatCompletionRequest) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func chatRequest(prompt string, streaming bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:    "Kwai-Kolors/Kolors",
		Messages: []openai.ChatMessage{{Role: "user", Content: prompt}},
		Stream:   streaming,
	}
}

func TestStreamingProtocolOrder(t *testing.T) {
	d := &stubDispatcher{}
	r := newTestRouter(t, d, nil)

	w := postChat(t, r, chatRequest("draw a cat pic:2", true))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")

	body := w.Body.String()
	assert.True(t, strings.HasSuffix(strings.TrimSpace(body), "data: [DONE]"))

	// announce → generating → image1 → image2, strictly in that order.
	announceAt := strings.Index(body, `\"count\":2`)
	generatingAt := strings.Index(body, "正在生成 2 张图片")
	img1At := strings.Index(body, "![image1|")
	img2At := strings.Index(body, "![image2|")
	doneAt := strings.Index(body, "处理完成")

	require.GreaterOrEqual(t, announceAt, 0)
	require.GreaterOrEqual(t, generatingAt, 0)
	require.GreaterOrEqual(t, img1At, 0)
	require.GreaterOrEqual(t, img2At, 0)
	require.GreaterOrEqual(t, doneAt, 0)

	assert.Less(t, announceAt, generatingAt)
	assert.Less(t, generatingAt, img1At)
	assert.Less(t, img1At, img2At)
	assert.Less(t, img2At, doneAt)

	assert.Equal(t, 2, d.lastReq.Count)
}

func TestDefaultToSingleImage(t *testing.T) {
	d := &stubDispatcher{}
	r := newTestRouter(t, d, nil)

	w := postChat(t, r, chatRequest("draw a cat", true))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "![image1|")
	assert.NotContains(t, body, "![image2|")
	assert.Equal(t, 1, d.lastReq.Count)
}

func TestCountClampedToMax(t *testing.T) {
	d := &stubDispatcher{}
	r := newTestRouter(t, d, nil)

	postChat(t, r, chatRequest("draw a cat pic:99", false))
	assert.Equal(t, 4, d.lastReq.Count)
}

func TestInvalidDirectiveRejectedBeforeDispatch(t *testing.T) {
	for _, prompt := range []string{"a cat pic:0", "a cat pic:-1", "a cat pic:abc"} {
		t.Run(prompt, func(t *testing.T) {
			d := &stubDispatcher{}
			r := newTestRouter(t, d, nil)

			w := postChat(t, r, chatRequest(prompt, false))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			var resp openai.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "invalid_directive", resp.Error.Type)
			// No upstream work may happen for rejected directives.
			assert.Equal(t, int64(0), d.calls.Load())
		})
	}
}

func TestBannedKeywordRejectedBeforeDispatch(t *testing.T) {
	d := &stubDispatcher{}
	r := newTestRouter(t, d, []string{"forbidden"})

	w := postChat(t, r, chatRequest("draw something FORBIDDEN", false))

	require.Equal(t, http.StatusOK, w.Code)
	var resp openai.ChatCompletionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Choices, 1)
	assert.Contains(t, resp.Choices[0].Message.Content, "Prohibited Content")
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)
	assert.Equal(t, int64(0), d.calls.Load())
}

func TestBannedKeywordStreamed(t *testing.T) {
	d := &stubDispatcher{}
	r := newTestRouter(t, d, []string{"forbidden"})

	w := postChat(t, r, chatRequest("forbidden scene", true))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Prohibited Content")
	assert.Contains(t, w.Body.String(), "data: [DONE]")
	assert.Equal(t, int64(0), d.calls.Load())
}

func TestSlotFailureIsIsolated(t *testing.T) {
	d := &stubDispatcher{failAt: map[int]error{2: errors.New("upstream returned status 500")}}
	r := newTestRouter(t, d, nil)

	w := postChat(t, r, chatRequest("a cat pic:3", true))

	body := w.Body.String()
	assert.Contains(t, body, "![image1|")
	assert.Contains(t, body, "图片 #2/3 生成失败 ❌")
	assert.Contains(t, body, "![image3|")
	assert.NotContains(t, body, "![image2|")
}

func TestAggregateResponseContainsAllSlots(t *testing.T) {
	d := &stubDispatcher{failAt: map[int]error{1: errors.New("boom")}}
	r := newTestRouter(t, d, nil)

	w := postChat(t, r, chatRequest("a cat pic:2", false))

	require.Equal(t, http.StatusOK, w.Code)
	var resp openai.ChatCompletionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Choices, 1)

	content := resp.Choices[0].Message.Content
	assert.Contains(t, content, "图片 #1/2 生成失败")
	assert.Contains(t, content, "![image2|")
	assert.Equal(t, "chat.completion", resp.Object)
	assert.Positive(t, resp.Usage.TotalTokens)
}

func TestMissingFieldsRejected(t *testing.T) {
	d := &stubDispatcher{}
	r := newTestRouter(t, d, nil)

	w := postChat(t, r, openai.ChatCompletionRequest{Model: "m"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postChat(t, r, openai.ChatCompletionRequest{
		Messages: []openai.ChatMessage{{Role: "user", Content: "x"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRetiredModelRejected(t *testing.T) {
	d := &stubDispatcher{}
	r := newTestRouter(t, d, nil)

	req := chatRequest("a cat", false)
	req.Model = "deepseek-ai/Janus-Pro-7B"
	w := postChat(t, r, req)

	assert.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, int64(0), d.calls.Load())
}

func TestResolutionForwardedToDispatcher(t *testing.T) {
	d := &stubDispatcher{}
	r := newTestRouter(t, d, nil)

	postChat(t, r, chatRequest("a cat 16:9 pic:1", false))
	assert.Equal(t, "1024x576", d.lastReq.Resolution)
}

func TestAssistantMessagesExcludedFromContext(t *testing.T) {
	d := &stubDispatcher{}
	r := newTestRouter(t, d, nil)

	postChat(t, r, openai.ChatCompletionRequest{
		Model: "Kwai-Kolors/Kolors",
		Messages: []openai.ChatMessage{
			{Role: "user", Content: "draw a cat"},
			{Role: "assistant", Content: "pic:3 should be ignored"},
			{Role: "user", Content: "make it blue"},
		},
	})

	assert.Equal(t, 1, d.lastReq.Count)
	assert.Contains(t, d.lastReq.Prompt, "draw a cat")
	assert.Contains(t, d.lastReq.Prompt, "make it blue")
}

package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// GenerateParams carries one image-generation call's inputs.
type GenerateParams struct {
	Model     string
	Prompt    string
	ImageSize string
	APIKey    string
}

// Client calls the upstream image-generation provider. One call produces one
// image URL; fan-out across keys happens a layer above.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates an upstream client against the given API base URL.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 90 * time.Second},
		logger:     logger,
	}
}

// generationResponse is the provider's response envelope.
type generationResponse struct {
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
	Message string `json:"message"`
}

// Generate submits one text-to-image call and returns the image URL.
// The endpoint and body shape depend on the model family.
func (c *Client) Generate(ctx context.Context, p GenerateParams) (string, error) {
	url, body := c.buildRequest(p)

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build generation request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.APIKey)

	c.logger.Info("calling image generation API",
		zap.String("url", url),
		zap.String("model", p.Model),
		zap.String("image_size", p.ImageSize),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("generation call failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read generation response: %w", err)
	}

	var parsed generationResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse generation response (status %d): %s", resp.StatusCode, truncate(string(raw), 100))
	}

	if resp.StatusCode != http.StatusOK {
		msg := parsed.Message
		if msg == "" {
			msg = truncate(string(raw), 100)
		}
		return "", fmt.Errorf("upstream returned status %d: %s", resp.StatusCode, msg)
	}

	if len(parsed.Images) == 0 || parsed.Images[0].URL == "" {
		if parsed.Message != "" {
			return "", fmt.Errorf("generation failed: %s", parsed.Message)
		}
		return "", fmt.Errorf("generation response contained no image URL")
	}

	return parsed.Images[0].URL, nil
}

// buildRequest picks the provider endpoint and body for the model family.
func (c *Client) buildRequest(p GenerateParams) (string, map[string]interface{}) {
	switch {
	case p.Model == "Kwai-Kolors/Kolors":
		return c.baseURL + "/v1/images/generations", map[string]interface{}{
			"model":               p.Model,
			"prompt":              p.Prompt,
			"image_size":          p.ImageSize,
			"batch_size":          1,
			"num_inference_steps": 20,
			"guidance_scale":      7.5,
		}
	case strings.Contains(strings.ToLower(p.Model), "flux"):
		return c.baseURL + "/v1/image/generations", map[string]interface{}{
			"model":               p.Model,
			"prompt":              p.Prompt,
			"image_size":          p.ImageSize,
			"num_inference_steps": 20,
			"prompt_enhancement":  true,
		}
	default:
		return c.baseURL + "/v1/" + p.Model + "/text-to-image", map[string]interface{}{
			"prompt":              p.Prompt,
			"image_size":          p.ImageSize,
			"num_inference_steps": 20,
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

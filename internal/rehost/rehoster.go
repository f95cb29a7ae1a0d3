package rehost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// minShortenLength skips shortening URLs that are already short.
const minShortenLength = 30

const cacheTTL = 24 * time.Hour

// RehostedImage carries every URL known for one generated image. Absent
// permanent/short URLs mean rehosting was disabled or failed; OriginalURL
// is always the fallback of record.
type RehostedImage struct {
	OriginalURL  string `json:"original_url"`
	PermanentURL string `json:"permanent_url,omitempty"`
	ShortURL     string `json:"short_url,omitempty"`
}

// BestURL returns the preferred URL: short, then permanent, then original.
func (r RehostedImage) BestURL() string {
	if r.ShortURL != "" {
		return r.ShortURL
	}
	if r.PermanentURL != "" {
		return r.PermanentURL
	}
	return r.OriginalURL
}

// Cache stores rehost results keyed by original URL so repeated generations
// of the same image skip the upload round trip. A nil Cache disables caching.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Options toggles the two rehosting steps independently.
type Options struct {
	UseImageHost     bool
	ImageHostURL     string
	ImageHostToken   string
	UseShortlink     bool
	ShortlinkBaseURL string
	ShortlinkAPIKey  string
}

// Rehoster re-hosts generated images on a permanent image host and shortens
// the resulting link. Both steps are best-effort with independent failure
// domains: a failure degrades to the next-best URL and is never surfaced to
// the caller.
type Rehoster struct {
	opts       Options
	httpClient *http.Client
	cache      Cache
	logger     *zap.Logger
}

// New creates a rehoster. cache may be nil.
func New(opts Options, cache Cache, logger *zap.Logger) *Rehoster {
	return &Rehoster{
		opts:       opts,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      cache,
		logger:     logger,
	}
}

// Rehost processes one successful image URL through the configured steps.
// It never returns an error: every failure degrades to the original URL.
func (r *Rehoster) Rehost(ctx context.Context, originalURL string) RehostedImage {
	if cached, ok := r.fromCache(ctx, originalURL); ok {
		return cached
	}

	img := RehostedImage{OriginalURL: originalURL}

	if r.opts.UseImageHost {
		if permanent, err := r.upload(ctx, originalURL); err != nil {
			r.logger.Warn("image host upload failed, keeping original URL", zap.Error(err))
		} else {
			img.PermanentURL = permanent
		}
	}

	if r.opts.UseShortlink {
		target := img.OriginalURL
		if img.PermanentURL != "" {
			target = img.PermanentURL
		}
		if short, err := r.shorten(ctx, target); err != nil {
			r.logger.Warn("link shortening failed, keeping longer URL", zap.Error(err))
		} else {
			img.ShortURL = short
		}
	}

	r.toCache(ctx, originalURL, img)
	return img
}

// upload downloads the image bytes and re-uploads them to the image host,
// returning the permanent URL.
func (r *Rehoster) upload(ctx context.Context, imageURL string) (string, error) {
	if r.opts.ImageHostURL == "" || r.opts.ImageHostToken == "" {
		return "", fmt.Errorf("image host not fully configured")
	}

	data, err := r.download(ctx, imageURL)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "image.png")
	if err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write upload form: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("close upload form: %w", err)
	}

	uploadURL := strings.TrimRight(r.opts.ImageHostURL, "/") + "/api/v1/upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, &buf)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+r.opts.ImageHostToken)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image host returned status %d", resp.StatusCode)
	}

	var parsed struct {
		Status bool `json:"status"`
		Data   struct {
			Links struct {
				URL string `json:"url"`
			} `json:"links"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("parse image host response: %w", err)
	}
	if !parsed.Status || parsed.Data.Links.URL == "" {
		return "", fmt.Errorf("image host response contained no URL")
	}

	return parsed.Data.Links.URL, nil
}

func (r *Rehoster) download(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// shorten registers a random slug for the URL with the shortening service.
func (r *Rehoster) shorten(ctx context.Context, longURL string) (string, error) {
	if r.opts.ShortlinkBaseURL == "" || r.opts.ShortlinkAPIKey == "" {
		return "", fmt.Errorf("shortlink service not fully configured")
	}
	if len(longURL) < minShortenLength {
		return longURL, nil
	}

	slug := randomSlug(3)
	body, err := json.Marshal(map[string]string{"url": longURL, "slug": slug})
	if err != nil {
		return "", fmt.Errorf("marshal shortlink request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(r.opts.ShortlinkBaseURL, "/")+"/api/link/create", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build shortlink request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.opts.ShortlinkAPIKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("shortlink call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("shortlink service returned status %d", resp.StatusCode)
	}

	return strings.TrimRight(r.opts.ShortlinkBaseURL, "/") + "/" + slug, nil
}

func (r *Rehoster) fromCache(ctx context.Context, originalURL string) (RehostedImage, bool) {
	if r.cache == nil {
		return RehostedImage{}, false
	}
	raw, err := r.cache.Get(ctx, cacheKey(originalURL))
	if err != nil || raw == "" {
		return RehostedImage{}, false
	}
	var img RehostedImage
	if err := json.Unmarshal([]byte(raw), &img); err != nil {
		return RehostedImage{}, false
	}
	return img, true
}

func (r *Rehoster) toCache(ctx context.Context, originalURL string, img RehostedImage) {
	if r.cache == nil {
		return
	}
	raw, err := json.Marshal(img)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, cacheKey(originalURL), string(raw), cacheTTL); err != nil {
		r.logger.Warn("caching rehost result failed", zap.Error(err))
	}
}

func cacheKey(originalURL string) string {
	return "rehost:" + originalURL
}

const slugChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomSlug(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = slugChars[rand.Intn(len(slugChars))]
	}
	return string(b)
}

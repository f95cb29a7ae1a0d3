package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the gateway service
type Config struct {
	// Server
	Port        string
	Environment string

	// Security
	ServiceAPIKey string // inbound auth key; empty disables auth

	// Upstream image generation
	UpstreamBaseURL     string
	UpstreamAPIKeys     []string
	MaxImagesPerRequest int
	JobTimeout          time.Duration

	// Prompt expansion
	PromptModel string
	LLMAPIURL   string

	// Rehosting
	UseShortlink     bool
	ShortlinkBaseURL string
	ShortlinkAPIKey  string
	UseImageHost     bool
	ImageHostURL     string
	ImageHostToken   string

	// Moderation
	BannedKeywords []string

	// Cache (optional)
	RedisURL string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:                getEnv("PORT", "8080"),
		Environment:         getEnv("GO_ENV", "development"),
		ServiceAPIKey:       getEnv("API_KEY", ""),
		UpstreamBaseURL:     getEnv("API_BASE_URL", "https://api.siliconflow.cn"),
		UpstreamAPIKeys:     splitList(getEnv("API_KEYS", "")),
		MaxImagesPerRequest: getEnvInt("MAX_IMAGES_PER_REQUEST", 4),
		JobTimeout:          time.Duration(getEnvInt("JOB_TIMEOUT_SECONDS", 60)) * time.Second,
		PromptModel:         getEnv("IMAGE_PROMPT_MODEL", "Qwen/Qwen2.5-7B-Instruct"),
		LLMAPIURL:           getEnv("LLM_API_URL", "http://localhost:3000/v1/chat/completions"),
		UseShortlink:        getEnvBool("USE_SHORTLINK", false),
		ShortlinkBaseURL:    getEnv("SHORTLINK_BASE_URL", ""),
		ShortlinkAPIKey:     getEnv("SHORTLINK_API_KEY", ""),
		UseImageHost:        getEnvBool("USE_IMAGE_HOST", false),
		ImageHostURL:        getEnv("IMAGE_HOST_URL", ""),
		ImageHostToken:      getEnv("IMAGE_HOST_TOKEN", ""),
		BannedKeywords:      splitList(getEnv("BANNED_KEYWORDS", "")),
		RedisURL:            getEnv("REDIS_URL", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	switch strings.ToLower(value) {
	case "true", "1", "yes", "y", "t":
		return true
	default:
		return false
	}
}

// splitList parses a comma separated list, dropping empty entries.
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

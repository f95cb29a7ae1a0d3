package directive

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCount(t *testing.T) {
	tests := []struct {
		name      string
		prompt    string
		max       int
		wantCount int
		wantText  string
	}{
		{"no directive", "draw a cat", 4, 1, "draw a cat"},
		{"explicit count", "draw a cat pic:2", 4, 2, "draw a cat"},
		{"count of one", "pic:1 draw a cat", 4, 1, "draw a cat"},
		{"clamped to max", "draw a cat pic:9", 4, 4, "draw a cat"},
		{"embedded token", "draw pic:3 a cat", 4, 3, "draw  a cat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := Parse(tt.prompt, tt.max)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCount, spec.Count)
			assert.Equal(t, tt.wantText, spec.Prompt)
		})
	}
}

func TestParseInvalidDirective(t *testing.T) {
	for _, prompt := range []string{
		"draw a cat pic:0",
		"draw a cat pic:-1",
		"draw a cat pic:abc",
		"draw a cat pic:1.5",
	} {
		t.Run(prompt, func(t *testing.T) {
			_, err := Parse(prompt, 4)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidDirective))
		})
	}
}

func TestMatchResolution(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		want   string
	}{
		{"explicit dimensions", "a cat at 800x600", "800x600"},
		{"explicit with times sign", "a cat at 512×768", "512x768"},
		{"preset resolution", "a cat 1024x576 please", "1024x576"},
		{"aspect ratio", "a cat 16:9", "1024x576"},
		{"portrait ratio", "a cat 9:16", "576x1024"},
		{"keyword square", "a square cat", "1024x1024"},
		{"keyword landscape", "a landscape cat", "1024x768"},
		{"keyword portrait chinese", "一只竖屏的猫", "768x1024"},
		{"keyword wide", "a wide cat", "1024x576"},
		{"no hint", "just a cat", DefaultResolution},
		// First recognized token wins over later conflicting ones.
		{"explicit beats ratio", "a cat 640x480 in 16:9", "640x480"},
		{"ratio beats keyword", "a portrait cat in 2:1", "1024x512"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchResolution(tt.prompt))
		})
	}
}

func TestParseResolutionFromOriginalText(t *testing.T) {
	// The size hint sits next to the stripped pic: token but must still apply.
	spec, err := Parse("a cat 16:9 pic:2", 4)
	require.NoError(t, err)
	assert.Equal(t, 2, spec.Count)
	assert.Equal(t, "1024x576", spec.Resolution)
}

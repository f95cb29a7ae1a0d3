package directive

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidDirective is returned when a pic: token is present but its
// argument is not a positive integer.
var ErrInvalidDirective = errors.New("invalid pic: directive")

// DefaultResolution is used when the prompt carries no size hint.
const DefaultResolution = "1024x1024"

// GenerationSpec is the normalized result of parsing a raw prompt.
// It is immutable after Parse returns.
type GenerationSpec struct {
	Prompt     string // prompt with the pic: token stripped
	Count      int    // requested image count, clamped to [1, max]
	Resolution string // WxH resolution to request upstream
}

var (
	picPattern        = regexp.MustCompile(`\bpic:(\S+)`)
	picValidPattern   = regexp.MustCompile(`^\d+$`)
	resolutionPattern = regexp.MustCompile(`\b(\d+)[xX×*](\d+)\b`)
)

// Resolutions the upstream providers accept natively; matched as literal
// keywords before ratio mapping kicks in.
var presetResolutions = []string{
	"1024x1024", "512x1024", "768x512", "768x1024", "1024x576", "576x1024",
}

var aspectRatios = []struct {
	ratio      string
	resolution string
}{
	{"1:1", "1024x1024"},
	{"1:2", "512x1024"},
	{"2:1", "1024x512"},
	{"3:2", "768x512"},
	{"2:3", "512x768"},
	{"3:4", "768x1024"},
	{"4:3", "1024x768"},
	{"16:9", "1024x576"},
	{"9:16", "576x1024"},
}

var orientationKeywords = []struct {
	pattern    *regexp.Regexp
	resolution string
}{
	{regexp.MustCompile(`(?i)\bsquare\b|正方形`), "1024x1024"},
	{regexp.MustCompile(`(?i)\blandscape\b|横向|横屏`), "1024x768"},
	{regexp.MustCompile(`(?i)\bportrait\b|纵向|竖屏`), "768x1024"},
	{regexp.MustCompile(`(?i)\bwide\b|宽屏`), "1024x576"},
}

// Parse extracts the image count and resolution directives from a raw
// prompt. maxImages bounds the count; a prompt without a pic: token yields
// count 1. A pic: token with a non-numeric or non-positive argument fails
// with ErrInvalidDirective; all other directives are best-effort.
func Parse(raw string, maxImages int) (GenerationSpec, error) {
	prompt, count, err := extractCount(raw, maxImages)
	if err != nil {
		return GenerationSpec{}, err
	}
	// Resolution is matched against the original text so size hints embedded
	// next to the pic: token still apply.
	return GenerationSpec{
		Prompt:     prompt,
		Count:      count,
		Resolution: MatchResolution(raw),
	}, nil
}

func extractCount(text string, maxImages int) (string, int, error) {
	m := picPattern.FindStringSubmatch(text)
	if m == nil {
		return strings.TrimSpace(text), 1, nil
	}

	arg := m[1]
	if !picValidPattern.MatchString(arg) {
		return "", 0, fmt.Errorf("%w: %q is not a positive integer", ErrInvalidDirective, arg)
	}
	count, err := strconv.Atoi(arg)
	if err != nil || count < 1 {
		return "", 0, fmt.Errorf("%w: %q is not a positive integer", ErrInvalidDirective, arg)
	}
	if maxImages > 0 && count > maxImages {
		count = maxImages
	}

	cleaned := strings.TrimSpace(picPattern.ReplaceAllString(text, ""))
	return cleaned, count, nil
}

// MatchResolution resolves a size hint from the prompt text. The first
// recognized token wins; later conflicting tokens are ignored. Match order:
// explicit WxH, preset resolutions, aspect ratios, orientation keywords.
func MatchResolution(text string) string {
	if m := resolutionPattern.FindStringSubmatch(text); m != nil {
		return m[1] + "x" + m[2]
	}

	for _, res := range presetResolutions {
		if regexp.MustCompile(`\b` + res + `\b`).MatchString(text) {
			return res
		}
	}

	for _, ar := range aspectRatios {
		if regexp.MustCompile(`\b` + regexp.QuoteMeta(ar.ratio) + `\b`).MatchString(text) {
			return ar.resolution
		}
	}

	for _, kw := range orientationKeywords {
		if kw.pattern.MatchString(text) {
			return kw.resolution
		}
	}

	return DefaultResolution
}

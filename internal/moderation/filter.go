package moderation

import "strings"

// RejectionNotice is returned to the caller when a prompt trips the filter.
const RejectionNotice = "Warning: Prohibited Content Detected! 🚫\n\n" +
	"Your request contains banned keywords. Please check the content and try again.\n\n" +
	"-----------------------\n\n" +
	"警告：请求包含被禁止的关键词，请检查后重试！⚠️"

// Filter rejects prompts containing banned keywords. It runs before any
// upstream call so rejected prompts never consume a key.
type Filter struct {
	keywords []string
}

// NewFilter builds a filter from the configured keyword list. Keywords are
// trimmed and lowercased once at construction.
func NewFilter(keywords []string) *Filter {
	normalized := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			normalized = append(normalized, kw)
		}
	}
	return &Filter{keywords: normalized}
}

// Check reports whether the text contains any banned keyword and, if so,
// which one matched. Matching is case-insensitive substring containment.
func (f *Filter) Check(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, kw := range f.keywords {
		if strings.Contains(lower, kw) {
			return kw, true
		}
	}
	return "", false
}

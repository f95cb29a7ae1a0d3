package stream

import (
	"fmt"
	"strings"

	"github.com/drawgate/api/internal/rehost"
)

// SafePrompt strips newlines so the prompt can be embedded in a one-line
// markdown image tag.
func SafePrompt(prompt string) string {
	return strings.ReplaceAll(prompt, "\n", " ")
}

// RenderSuccess builds the per-image result text for a successful slot:
// download links followed by the markdown image tag
// ![imageN|prompt](url), where N is the 1-based slot index.
func RenderSuccess(index, total int, prompt string, img rehost.RehostedImage) string {
	safe := SafePrompt(prompt)
	display := img.BestURL()

	var b strings.Builder
	fmt.Fprintf(&b, "\n\n图片 #%d/%d 生成完成 ✅\n", index, total)
	fmt.Fprintf(&b, "下载链接(链接有时效性，及时下载保存)：%s\n", downloadURL(img))
	if img.PermanentURL != "" {
		fmt.Fprintf(&b, "\n图床链接(永久有效)：%s\n", img.PermanentURL)
	}
	fmt.Fprintf(&b, "\n![image%d|%s](%s)", index, safe, display)
	return b.String()
}

// downloadURL prefers the short link for the human-facing download line,
// falling back to the original upstream URL.
func downloadURL(img rehost.RehostedImage) string {
	if img.ShortURL != "" {
		return img.ShortURL
	}
	return img.OriginalURL
}

// RenderFailure builds the per-image error text for a failed slot.
func RenderFailure(index, total int, err error) string {
	return fmt.Sprintf("\n\n图片 #%d/%d 生成失败 ❌ - %s", index, total, err.Error())
}

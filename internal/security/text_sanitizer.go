package security

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はプロバイダー由来のあらすじ等からHTMLを取り除き、プレーンテキストにする。
type TextSanitizer interface {
	Clean(raw string) string
}

var (
	lineBreakTags  = regexp.MustCompile(`(?i)<br\s*/?>|</p>`)
	excessNewlines = regexp.MustCompile(`\n{3,}`)
)

type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はすべてのタグを除去するTextSanitizerを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Clean は改行タグを改行文字に置き換えた上でタグを除去し、実体参照を復元する。
// 空文字列には空文字列を返す。
func (s *textSanitizer) Clean(raw string) string {
	if raw == "" {
		return ""
	}

	text := lineBreakTags.ReplaceAllString(raw, "\n")
	text = s.policy.Sanitize(text)
	text = html.UnescapeString(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = excessNewlines.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}

package stream

import (
	"strings"
)

// decodeTable は "--" で始まる難読化URLの2文字組と平文1文字の対応表。
var decodeTable = map[string]byte{
	"01": '9', "08": '0', "05": '=', "0a": '2', "0b": '3', "0c": '4',
	"07": '?', "00": '8', "5c": 'd', "0f": '7', "5e": 'f', "17": '/',
	"54": 'l', "09": '1', "48": 'p', "4f": 'w', "0e": '6', "5b": 'c',
	"5d": 'e', "0d": '5', "53": 'k', "1e": '&', "5a": 'b', "59": 'a',
	"4a": 'r', "4c": 't', "4e": 'v', "57": 'o', "51": 'i',
}

// serverNames は配信元の種別名と表示名の対応。
var serverNames = map[string]string{
	"default": "Maria",
	"Luf-mp4": "Rose",
	"S-mp4":   "Sina",
	"Default": "Eren",
	"Luf-Mp4": "Mikasa",
	"S-Mp4":   "Armin",
}

// escapedSlash はJSON由来のURLに残るスラッシュのエスケープ表記。
const escapedSlash = "\\u002F"

// allowedLinkPatterns は再生可能と判断するURLに含まれるべき文字列。
var allowedLinkPatterns = []string{"sharepoint.com", ".m3u8", ".mp4", "fast4speed.rsvp"}

// DecodeSourceURL は "--" で始まるURLを対応表で復号する。表にない組は読み飛ばす。
// それ以外のURLはエスケープされたスラッシュのみ元に戻す。
func DecodeSourceURL(encoded string) string {
	if !strings.HasPrefix(encoded, "--") {
		return strings.ReplaceAll(encoded, escapedSlash, "/")
	}

	body := encoded[2:]
	var b strings.Builder
	b.Grow(len(body) / 2)
	for i := 0; i < len(body); i += 2 {
		end := i + 2
		if end > len(body) {
			end = len(body)
		}
		if ch, ok := decodeTable[body[i:end]]; ok {
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// ServerName は配信元の種別名を表示名に変換する。未知の種別はそのまま返す。
func ServerName(sourceName string) string {
	if name, ok := serverNames[sourceName]; ok {
		return name
	}
	return sourceName
}

// IsAllowedLink はURLが再生可能な形式かどうかを返す。
func IsAllowedLink(link string) bool {
	lower := strings.ToLower(link)
	for _, p := range allowedLinkPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Similarity は検索語とタイトルの類似度を返す。
// 完全一致は1.0、部分一致は0.9、それ以外は検索語の文字のうちタイトルに含まれる割合。
func Similarity(query, title string) float64 {
	query = strings.ToLower(strings.TrimSpace(query))
	title = strings.ToLower(strings.TrimSpace(title))

	if query == title {
		return 1.0
	}
	if strings.Contains(title, query) {
		return 0.9
	}

	queryRunes := []rune(query)
	if len(queryRunes) == 0 {
		return 0
	}

	matches := 0
	for _, r := range queryRunes {
		if strings.ContainsRune(title, r) {
			matches++
		}
	}
	return float64(matches) / float64(len(queryRunes))
}

package tmdb

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"
)

var (
	animationPrefix   = regexp.MustCompile(`(?i)^(TV\s+)?Animation\s+`)
	colonSeasonSuffix = regexp.MustCompile(`(?i)\s*:\s*Season\s+\d+$`)
	seasonSuffix      = regexp.MustCompile(`(?i)\s*Season\s+\d+$`)
	partSuffix        = regexp.MustCompile(`(?i)\s*Part\s+\d+$`)
	courSuffix        = regexp.MustCompile(`(?i)\s*Cour\s+\d+$`)
	parenSuffix       = regexp.MustCompile(`\s*\([^)]+\)$`)

	mediaTypeSuffix = regexp.MustCompile(`(?i)\s*\b(TV|TV_SHORT|OVA|ONA|MOVIE|SPECIAL|MUSIC)\s*$`)
	romanNumeral    = `\bI{1,3}\b|\bIV\b|\bV\b|\bVI\b|\bVII\b|\bVIII\b|\bIX\b|\bX\b`
	seasonMarker    = regexp.MustCompile(`(?i)^(.*?)(Season \d+|Cour \d+|Part \d+|Series \d+|Level \d+|(` + romanNumeral + `)( Part \d+)?|` + romanNumeral + `)$`)
	romanOnly       = regexp.MustCompile(`(?i)(` + romanNumeral + `)`)
	seasonNumber    = regexp.MustCompile(`(?i)^Season (\d+)$`)
	typeQualifier   = regexp.MustCompile(`(?i)\s*\([A-Z_]+\)\s*$`)
)

// FoldLatin はアクセント付きのラテン文字をASCIIに変換する。
// ラテン文字以外（かな・漢字など）を含む場合はそのまま返す。
func FoldLatin(s string) string {
	for _, r := range s {
		if unicode.IsLetter(r) && !unicode.In(r, unicode.Latin) {
			return s
		}
	}
	return unidecode.Unidecode(s)
}

// NormalizeTitle は検索用にタイトルからシーズン・パート表記や括弧書きを取り除く。
// "Dr. Stone: Stone Wars" のようにコロンを含む場合は主タイトルを優先する。
func NormalizeTitle(title string) string {
	normalized := FoldLatin(title)
	normalized = animationPrefix.ReplaceAllString(normalized, "")
	normalized = colonSeasonSuffix.ReplaceAllString(normalized, "")
	normalized = seasonSuffix.ReplaceAllString(normalized, "")
	normalized = partSuffix.ReplaceAllString(normalized, "")
	normalized = courSuffix.ReplaceAllString(normalized, "")
	normalized = parenSuffix.ReplaceAllString(normalized, "")

	if idx := strings.Index(normalized, ":"); idx > 0 {
		main := strings.TrimSpace(normalized[:idx])
		sub := strings.TrimSpace(normalized[idx+1:])
		lowerMain, lowerSub := strings.ToLower(main), strings.ToLower(sub)

		if strings.Contains(lowerMain, lowerSub) || strings.Contains(lowerSub, lowerMain) {
			if len(main) <= len(sub) {
				normalized = main
			} else {
				normalized = sub
			}
		} else {
			normalized = main
		}
	}

	return strings.TrimSpace(normalized)
}

// ParseTitleAndSeason はタイトル末尾のシーズン表記を分離する。
// ローマ数字は "Season N" に変換する。シーズン表記がない場合seasonInfoは空文字列になる。
func ParseTitleAndSeason(title string) (showName, seasonInfo string) {
	clean := strings.TrimSpace(mediaTypeSuffix.ReplaceAllString(title, ""))

	m := seasonMarker.FindStringSubmatch(clean)
	if m == nil {
		return clean, ""
	}

	showName = strings.TrimSpace(m[1])
	seasonInfo = strings.TrimSpace(m[2])

	if roman := romanOnly.FindStringSubmatch(seasonInfo); roman != nil {
		seasonInfo = "Season " + strconv.Itoa(romanToDecimal(roman[1]))
	}
	return showName, seasonInfo
}

// SeasonNumberFromTitle はタイトルのシーズン表記からシーズン番号を返す。表記がない場合は1を返す。
func SeasonNumberFromTitle(title string) int {
	_, info := ParseTitleAndSeason(title)
	if m := seasonNumber.FindStringSubmatch(info); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n
		}
	}
	return 1
}

func romanToDecimal(roman string) int {
	values := map[rune]int{'I': 1, 'V': 5, 'X': 10, 'L': 50, 'C': 100, 'D': 500, 'M': 1000}

	runes := []rune(strings.ToUpper(roman))
	total, prev := 0, 0
	for i := len(runes) - 1; i >= 0; i-- {
		v := values[runes[i]]
		if v >= prev {
			total += v
		} else {
			total -= v
		}
		prev = v
	}
	return total
}

package aggregate

import (
	"sort"
	"time"

	"github.com/hitoshi/metachan/internal/model"
)

// seasonTypeOrder は種別の並び順。表にない種別は最後になる。
var seasonTypeOrder = map[string]int{
	"TV":      1,
	"Movie":   2,
	"OVA":     3,
	"Special": 4,
}

func seasonTypeRank(t string) int {
	if r, ok := seasonTypeOrder[t]; ok {
		return r
	}
	return len(seasonTypeOrder) + 1
}

// SortSeasons は種別順、同じ種別内では放送開始日の昇順に並べ替える。
// 放送開始日が解析できないものは同じ種別の最後に置く。
func SortSeasons(seasons []model.SeasonSummary) {
	sort.SliceStable(seasons, func(i, j int) bool {
		a, b := seasons[i], seasons[j]
		if ra, rb := seasonTypeRank(a.Type), seasonTypeRank(b.Type); ra != rb {
			return ra < rb
		}

		ta, okA := parseAired(a.AiredFrom)
		tb, okB := parseAired(b.AiredFrom)
		switch {
		case okA && okB:
			return ta.Before(tb)
		case okA:
			return true
		default:
			return false
		}
	})
}

func parseAired(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

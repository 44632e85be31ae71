package aggregate

import (
	"testing"

	"github.com/hitoshi/metachan/internal/model"
)

func TestSortSeasons(t *testing.T) {
	seasons := []model.SeasonSummary{
		{MalID: 1, Type: "Special", AiredFrom: "2020-01-01T00:00:00+00:00"},
		{MalID: 2, Type: "TV", AiredFrom: "2021-10-01T00:00:00+00:00"},
		{MalID: 3, Type: "Movie", AiredFrom: "2019-01-01T00:00:00+00:00"},
		{MalID: 4, Type: "TV", AiredFrom: ""},
		{MalID: 5, Type: "TV", AiredFrom: "2019-04-01T00:00:00+00:00"},
		{MalID: 6, Type: "Music", AiredFrom: "2018-01-01T00:00:00+00:00"},
		{MalID: 7, Type: "OVA", AiredFrom: "not a date"},
	}

	SortSeasons(seasons)

	want := []int{5, 2, 4, 3, 7, 1, 6}
	for i, id := range want {
		if seasons[i].MalID != id {
			got := make([]int, len(seasons))
			for j, s := range seasons {
				got[j] = s.MalID
			}
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

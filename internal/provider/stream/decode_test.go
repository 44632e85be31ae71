package stream

import (
	"math"
	"testing"
)

func TestDecodeSourceURL(t *testing.T) {
	tests := []struct {
		name    string
		encoded string
		want    string
	}{
		{"encoded clock path", "--175948514e4c4f57175b54575b530751" + "5c050f", "/apivtwo/clock?id=7"},
		{"unknown pairs are skipped", "--59zz5a", "ab"},
		{"plain url keeps slashes", "https://cdn.example/a.mp4", "https://cdn.example/a.mp4"},
		{"escaped slashes are restored", "https:" + escapedSlash + escapedSlash + "cdn.example" + escapedSlash + "a.m3u8", "https://cdn.example/a.m3u8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeSourceURL(tt.encoded); got != tt.want {
				t.Errorf("DecodeSourceURL(%q) = %q, want %q", tt.encoded, got, tt.want)
			}
		})
	}
}

func TestServerName(t *testing.T) {
	tests := map[string]string{
		"default": "Maria",
		"Luf-mp4": "Rose",
		"S-mp4":   "Sina",
		"Default": "Eren",
		"Luf-Mp4": "Mikasa",
		"S-Mp4":   "Armin",
		"Yt-mp4":  "Yt-mp4",
	}
	for in, want := range tests {
		if got := ServerName(in); got != want {
			t.Errorf("ServerName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsAllowedLink(t *testing.T) {
	tests := []struct {
		link string
		want bool
	}{
		{"https://tools.fast4speed.rsvp/media/abc", true},
		{"https://x.sharepoint.com/file", true},
		{"https://cdn.example/master.M3U8", true},
		{"https://cdn.example/ep1.mp4?t=1", true},
		{"https://embed.example/player.html", false},
	}
	for _, tt := range tests {
		if got := IsAllowedLink(tt.link); got != tt.want {
			t.Errorf("IsAllowedLink(%q) = %v, want %v", tt.link, got, tt.want)
		}
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		query string
		title string
		want  float64
	}{
		{"Frieren", "frieren", 1.0},
		{"Frieren", "Sousou no Frieren", 0.9},
		{"abcd", "xxab", 0.5},
	}
	for _, tt := range tests {
		got := Similarity(tt.query, tt.title)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Similarity(%q, %q) = %v, want %v", tt.query, tt.title, got, tt.want)
		}
	}
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fatih/color"
)

const timeLayout = "2006-01-02 15:04 MST"

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// orDash は0を"-"として表示する。
func orDash(n int) string {
	if n == 0 {
		return "-"
	}
	return strconv.Itoa(n)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(timeLayout)
}

// parseMalID は正のMAL IDを解析する。
func parseMalID(raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid anime id %q", raw)
	}
	return id, nil
}

// resultLabel は実行結果を色付きで返す。
func resultLabel(status string) string {
	switch status {
	case "success":
		return color.GreenString("%-8s", status)
	case "error":
		return color.RedString("%-8s", status)
	case "":
		return color.HiBlackString("%-8s", "never")
	default:
		return fmt.Sprintf("%-8s", status)
	}
}

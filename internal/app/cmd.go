package app

import (
	"fmt"
	"sort"
	"strings"
)

// Command はmetachanバイナリの起動モード。
type Command string

const (
	CommandServe       Command = "serve"
	CommandWorker      Command = "worker"
	CommandMigrate     Command = "migrate"
	CommandHealthcheck Command = "healthcheck"
)

// commandSummaries は起動モードごとの説明。usageの出力にも使う。
var commandSummaries = map[Command]string{
	CommandServe:       "公開APIサーバーを起動する（既定）",
	CommandWorker:      "ID対応表の同期とキャッシュ整理の定期タスクを実行する",
	CommandMigrate:     "未適用のマイグレーションを適用して終了する",
	CommandHealthcheck: "ローカルの /health を叩いて結果を終了コードで返す",
}

// ParseCommand は先頭引数を起動モードに変換する。
// 引数なしはserve、未知の値はserveにフォールバックしknown=falseを返す。
func ParseCommand(args []string) (cmd Command, known bool) {
	if len(args) == 0 {
		return CommandServe, true
	}
	cmd = Command(args[0])
	if _, ok := commandSummaries[cmd]; !ok {
		return CommandServe, false
	}
	return cmd, true
}

// Usage は起動モードの一覧を名前順で返す。
func Usage() string {
	names := make([]string, 0, len(commandSummaries))
	for c := range commandSummaries {
		names = append(names, string(c))
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("usage: metachan [command]\n\ncommands:\n")
	for _, n := range names {
		fmt.Fprintf(&b, "  %-12s %s\n", n, commandSummaries[Command(n)])
	}
	return b.String()
}

func isHelpArg(arg string) bool {
	switch arg {
	case "help", "-h", "--help":
		return true
	}
	return false
}

package main

import (
	"context"
	"os"

	"github.com/hitoshi/metachan/internal/app"
	"github.com/hitoshi/metachan/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), app.LoadCLIBackend, os.Args[1:]))
}

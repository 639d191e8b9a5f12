package main

import (
	"os"

	"github.com/parable-ai/coderev/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

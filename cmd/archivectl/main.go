package main

import (
	"os"

	"github.com/archives-observability/archives/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

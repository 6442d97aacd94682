package main

import (
	"os"

	"github.com/rustyeddy/marginguard/cmd/marginguard/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"os"

	"github.com/majorcontext/nupush/cmd/nupush/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

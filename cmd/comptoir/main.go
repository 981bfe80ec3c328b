package main

import (
	"os"

	"github.com/comptoirhq/comptoir/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

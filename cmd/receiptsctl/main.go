package main

import (
	"fmt"
	"os"

	"receipts/internal/cli"
	"receipts/internal/config"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.LoadEnvFile()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := newRootCmd(cfg).Execute(); err != nil {
		for _, line := range formatCLIError(err) {
			fmt.Fprintln(os.Stderr, line)
		}
		os.Exit(1)
	}
}

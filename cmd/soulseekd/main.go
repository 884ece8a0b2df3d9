// Command soulseekd is the minimal process entrypoint around package
// client: load a config file, log in, and block. It is deliberately not
// a full CLI (argument parsing, search/download commands, the TUI) —
// those are out of scope per spec.md §1; this exists only so the module
// has a runnable ambient contract (exit codes, LOG_LEVEL) to test
// against, the way rain's own cmd/rain is a thin wrapper over session.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cenkalti/soulseek/client"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "soulseekd:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := os.Getenv("SOULSEEK_CONFIG")
	if configPath == "" {
		configPath = "soulseek.yaml"
	}
	cfg, err := client.LoadConfig(configPath)
	if err != nil {
		return err
	}

	c, err := client.New(*cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	if cfg.Username != "" {
		if err := c.Login(); err != nil {
			return err
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	return nil
}

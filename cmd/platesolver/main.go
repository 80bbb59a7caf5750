package main

import (
	"fmt"
	"os"

	"platesolver/internal/cli"
	"platesolver/internal/config"
	"platesolver/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	if err := cli.NewRootCmd(cfg, log).Execute(); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

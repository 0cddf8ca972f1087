// Package main provides the standalone score calculator. It computes SOFA,
// qSOFA and APACHE II from snapshot files and keeps a local SQLite history,
// requiring no external databases.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/hellf17/clinical-corvus-sub005/internal/cli"
	"github.com/hellf17/clinical-corvus-sub005/internal/config"
)

func main() {
	cfg := config.LoadLiteConfig()

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	app := cli.New(cfg, logger)
	if err := app.Run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

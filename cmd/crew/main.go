// crew chains LLM agents that build a project in a sandbox directory by
// emitting tag commands.
//
// Usage:
//
//	crew [--config crew.yaml] [--provider ollama] [--tui]
//	crew serve [--config crew.yaml]
//
// In line mode, type "exit" to quit.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/nstogner/crew/pkg/config"
	"github.com/nstogner/crew/pkg/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, provider, logLevel string
	var tui bool

	flagSet := pflag.NewFlagSet("crew", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "crew.yaml", "path to the YAML configuration file")
	flagSet.StringVarP(&provider, "provider", "p", "", "model provider: gemini, openai, ollama or mock")
	flagSet.BoolVar(&tui, "tui", false, "run the interactive terminal UI")
	flagSet.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if provider != "" {
		cfg.Provider = provider
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	args := flagSet.Args()
	mode := "chat"
	if len(args) > 0 {
		mode = args[0]
	}

	logOpts := logging.Options{Level: cfg.Log.Level, File: cfg.Log.File}
	if tui && mode == "chat" {
		// The terminal belongs to the UI; logs only go to the file.
		logOpts.Writer = io.Discard
		if logOpts.File == "" {
			logOpts.File = "crew.log"
		}
	}
	closeLog, err := logging.Setup(logOpts)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := newRegistry(cfg)

	switch mode {
	case "serve":
		return serve(ctx, cfg, registry)
	case "chat":
		if tui {
			return runTUI(ctx, cfg, registry)
		}
		return runLines(ctx, cfg, registry, os.Stdin, os.Stdout)
	default:
		return fmt.Errorf("unknown command %q", mode)
	}
}

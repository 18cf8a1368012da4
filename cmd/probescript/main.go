// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

// Command probescript runs a .probe source file against a fresh Engine,
// printing std:io.print output to stdout.
//
// Usage:
//
//	probescript [--config <file>] <source.probe>
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/urfave/cli.v1"

	"github.com/probechain/probescript"
	"github.com/probechain/probescript/config"
)

const version = "0.1.0"

var configFileFlag = cli.StringFlag{
	Name:  "config",
	Usage: "TOML configuration file (VM heap size / growth factor)",
}

func main() {
	app := cli.NewApp()
	app.Name = "probescript"
	app.Usage = "run a probescript source file"
	app.Version = version
	app.Flags = []cli.Flag{configFileFlag}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	if ctx.NArg() < 1 {
		return cli.NewExitError("usage: probescript [--config <file>] <source.probe>", 1)
	}

	logger := slog.Default()

	cfg := config.Defaults
	if file := ctx.String(configFileFlag.Name); file != "" {
		loaded, err := config.Load(file)
		if err != nil {
			return cli.NewExitError(fmt.Sprintf("loading config: %v", err), 1)
		}
		cfg = loaded
		logger.Info("loaded config", "file", file)
	}

	filename := ctx.Args().Get(0)
	source, err := os.ReadFile(filename)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("reading %s: %v", filename, err), 1)
	}

	var exitCode int
	eng := probescript.New(probescript.Options{
		Config:  cfg,
		Logger:  logger,
		OnPrint: func(s string) { fmt.Println(s) },
		OnError: func(ev probescript.ErrorEvent) {
			fmt.Fprintf(os.Stderr, "%s at line %d: %s\n", ev.Kind, ev.Line, ev.Message)
			exitCode = 1
		},
	})

	moduleName := moduleNameFor(filename)
	logger.Info("running script", "module", moduleName, "file", filename)
	if err := eng.Exec(moduleName, string(source)); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	if exitCode != 0 {
		return cli.NewExitError("", exitCode)
	}
	return nil
}

func moduleNameFor(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Copyright 2025 The CityServe Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package main implements the city search server and CLI [DBG] application.

CityServe loads a list of cities once, indexes their "name, country" display
names in a prefix trie, and answers search-as-you-type queries. Query edits
are debounced (500ms by default); each search cancels the one before it, and
results are grouped by the first letter of the city name.

# Usage

Start the msgpack IPC server with the default dataset:

	cityserve

Use another dataset and enable debug logging:

	cityserve -data /srv/cities.json.gz -d

Run in CLI mode for interactive testing:

	cityserve -c -rows 40

The dataset is a JSON array of objects like

	{"country": "UA", "name": "Hurzuf", "_id": 707860, "coord": {"lon": 34.28, "lat": 44.55}}

optionally gzip compressed or re-encoded as msgpack (see citypack).

# Configuration

Runtime configuration is read from a TOML file, created with defaults on
first run:

	[search]
	debounce_ms = 500
	cache_size = 256
	key_limit = 10

	[dataset]
	path = "data/cities.json"

	[server]
	max_prefix = 60
	max_results = 0

	[cli]
	max_rows = 20

Flags override the file.

# IPC Protocol

See package server. In short, requests are msgpack maps on stdin:

	{"id": "q1", "op": "query", "q": "alb"}

and every published state and event is written to stdout.
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bastiangx/cityserve/internal/cli"
	"github.com/bastiangx/cityserve/internal/logger"
	"github.com/bastiangx/cityserve/internal/utils"
	"github.com/bastiangx/cityserve/pkg/config"
	"github.com/bastiangx/cityserve/pkg/dataset"
	"github.com/bastiangx/cityserve/pkg/query"
	"github.com/bastiangx/cityserve/pkg/server"
	"github.com/bastiangx/cityserve/pkg/suggest"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

const (
	Version = "0.3.0"
	AppName = "cityserve"
	gh      = "https://github.com/bastiangx/cityserve"
)

// main wires config, dataset, controller and one front end together.
// It does not implement logic for them and only manages the flow.
func main() {
	showVersion := flag.Bool("version", false, "Show current version")
	configPath := flag.String("config", "", "Path to a config.toml (default: user config dir)")
	dataPath := flag.String("data", "", "City dataset file (.json, .msgpack, optionally .gz)")
	debugMode := flag.Bool("d", false, "Toggle debug mode")
	cliMode := flag.Bool("c", false, "Run CLI -- useful for testing and debugging")
	debounceMs := flag.Int("debounce", 0, "Debounce window in milliseconds (default from config)")
	rows := flag.Int("rows", 0, "Cities printed per result in CLI mode (default from config)")
	noCache := flag.Bool("no-cache", false, "Disable the prefix result cache")

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	logger.Setup(*debugMode)

	cfg, usedConfig, err := config.LoadConfigWithPriority(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Debugf("Using config: %s", config.GetActiveConfigPath(usedConfig))

	if *dataPath != "" {
		cfg.Dataset.Path = *dataPath
	}
	if *debounceMs > 0 {
		cfg.Search.DebounceMs = *debounceMs
	}
	if *rows > 0 {
		cfg.CLI.MaxRows = *rows
	}
	if *noCache {
		cfg.Search.CacheSize = 0
	}

	configDir, _ := config.GetConfigDir()
	resolved, err := utils.ResolveDataFile(cfg.Dataset.Path, configDir)
	if err != nil {
		// the controller reports the failure through its state; keep going
		log.Warnf("Dataset %s not found in any known location", cfg.Dataset.Path)
	}
	log.Debugf("Using dataset at: %s", resolved)

	builder := suggest.DefaultBuilder
	if cfg.Search.CacheSize > 0 {
		builder = suggest.CachedBuilder(cfg.Search.CacheSize)
	}

	ctrl := query.New(dataset.NewLoader(resolved),
		query.WithDebounce(cfg.Search.Debounce()),
		query.WithBuilder(builder),
		query.WithLogger(logger.New("query")),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctrl.Start(ctx)
	defer ctrl.Close()

	g, gctx := errgroup.WithContext(ctx)
	if *cliMode {
		log.Debug("Input info:", "maxPrefix", cfg.Server.MaxPrefix, "rows", cfg.CLI.MaxRows)
		handler := cli.NewInputHandler(ctrl, cfg.Server.MaxPrefix, cfg.CLI.MaxRows)
		g.Go(func() error { return handler.Start(gctx) })
	} else {
		showStartupInfo(resolved)
		srv := server.NewServer(ctrl, cfg)
		g.Go(func() error { return srv.Run(gctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("Exiting with error: %v", err)
		ctrl.Close()
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "\nExiting...\n")
}

func printVersion() {
	l := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    false,
		ReportTimestamp: false,
		Prefix:          "",
	})

	styles := log.DefaultStyles()
	styles.Values["version"] = lipgloss.NewStyle().Bold(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"}).
		Background(lipgloss.AdaptiveColor{Light: "#f2e9e1", Dark: "#26233a"})
	styles.Values["gh"] = lipgloss.NewStyle().Italic(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
	l.SetStyles(styles)

	l.Print("")
	l.Print("[ CityServe ] Search-as-you-type over a world of cities")
	l.Print("", "version", Version)
	l.Print("")
	l.Print("use -h or --help to see available options")
	l.Print("Github Repo", "gh", gh)
}

// showStartupInfo displays some basic info about the init process on stderr.
func showStartupInfo(dataPath string) {
	l := logger.NewWithConfig(AppName, log.InfoLevel, false, false, log.TextFormatter)
	l.Infof("Version: %s", Version)
	l.Infof("Process ID: [ %d ]", os.Getpid())
	l.Infof("dataset: ( %s )", dataPath)
	l.Info("status: loading")
	l.Print("Press Ctrl+C to exit")
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"codearena/internal/cli/command"
	"codearena/internal/cli/config"
	httpclient "codearena/internal/cli/http"
	"codearena/internal/cli/repl"
	"codearena/internal/cli/state"
)

const defaultConfigPath = "configs/arena_cli.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	baseURL := flag.String("base", "", "Override base URL")
	timeout := flag.Duration("timeout", 0, "Override HTTP timeout (e.g. 90s)")
	token := flag.String("token", os.Getenv("ARENA_TOKEN"), "Override access token")
	statePath := flag.String("state", "", "Override token state path")
	pretty := flag.Bool("pretty", false, "Pretty print JSON response")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if *statePath != "" {
		cfg.TokenStatePath = *statePath
	}
	if *pretty {
		trueValue := true
		cfg.PrettyJSON = &trueValue
	}

	tokenState, err := state.Load(cfg.TokenStatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load token state failed: %v\n", err)
		os.Exit(1)
	}
	if *token != "" {
		tokenState.AccessToken = *token
	}

	client := httpclient.New(cfg.BaseURL, cfg.Timeout, func() string {
		return tokenState.AccessToken
	})

	session, err := repl.New(client, command.Registry(), &tokenState, repl.Options{
		StatePath:     cfg.TokenStatePath,
		HistoryPath:   cfg.HistoryPath,
		PrettyJSON:    cfg.PrettyJSON != nil && *cfg.PrettyJSON,
		WatchDuration: cfg.WatchDuration,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init session failed: %v\n", err)
		os.Exit(1)
	}
	session.Run(context.Background())
}

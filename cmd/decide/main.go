// Command decide runs a single decision cycle against the configured
// database and prints the resulting decision as JSON on stdout. Logs go
// to stderr so the output stays pipeable.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"trading-decision-engine/config"
	"trading-decision-engine/internal/database"
	"trading-decision-engine/internal/engine"
	"trading-decision-engine/internal/marketdata"
	"trading-decision-engine/internal/strategy"
)

func main() {
	symbol := flag.String("symbol", "", "symbol to decide on, e.g. BTCUSDT")
	asOfFlag := flag.String("as-of", "", "decision date, RFC3339 or YYYY-MM-DD (default now)")
	lookback := flag.Int("lookback", 0, "days of history to load (default from config)")
	pretty := flag.Bool("pretty", false, "indent the JSON output")
	flag.Parse()

	if *symbol == "" {
		fmt.Fprintln(os.Stderr, "usage: decide -symbol BTCUSDT [-as-of 2025-06-01] [-lookback 365] [-pretty]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fatal("load configuration", err)
	}
	if *lookback > 0 {
		cfg.Scheduler.LookbackDays = *lookback
	}

	asOf := time.Now().UTC()
	if *asOfFlag != "" {
		asOf, err = parseAsOf(*asOfFlag)
		if err != nil {
			fatal("parse -as-of", err)
		}
	}

	if cfg.Database.URL == "" {
		fatal("load configuration", fmt.Errorf("DATABASE_URL is required"))
	}

	db, err := database.NewDB(database.Config{
		URL:      cfg.Database.URL,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		fatal("connect to database", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := db.RunMigrations(ctx); err != nil {
		fatal("run migrations", err)
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	repo := database.NewRepository(db)
	provider := marketdata.NewProvider(repo, nil, nil, logger)

	orch, err := engine.NewOrchestrator(cfg.Engine, logger)
	if err != nil {
		fatal("initialize orchestrator", err)
	}

	svc, err := engine.NewService(orch, strategy.DefaultSet(), provider, nil, nil, engine.ServiceConfig{
		LookbackDays:      cfg.Scheduler.LookbackDays,
		MetricsWindowDays: cfg.Scheduler.MetricsWindowDays,
	}, logger)
	if err != nil {
		fatal("initialize decision service", err)
	}

	dec, err := svc.RunCycle(ctx, *symbol, asOf)
	if err != nil {
		fatal("run decision cycle", err)
	}

	enc := json.NewEncoder(os.Stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(dec); err != nil {
		fatal("encode decision", err)
	}
}

func parseAsOf(value string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}

func fatal(what string, err error) {
	fmt.Fprintf(os.Stderr, "decide: %s: %v\n", what, err)
	os.Exit(1)
}

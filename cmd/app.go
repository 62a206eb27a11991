// Package cmd implements the taxctl command line application.
package cmd

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/etnz/taxlot"
	"github.com/etnz/taxlot/binance"
	"github.com/etnz/taxlot/coingecko"
	"github.com/etnz/taxlot/config"
	"github.com/etnz/taxlot/database"
	"github.com/etnz/taxlot/date"
	"github.com/etnz/taxlot/fxrate"
	"github.com/etnz/taxlot/logger"
	"github.com/etnz/taxlot/renderer"
	"github.com/google/subcommands"
)

// Register the subcommands.
// A main package will call Register() to allow subcommands, and Execute() on the user-selected one.
func Register(c *subcommands.Commander) {
	for _, cmd := range Commands() {
		c.Register(cmd.Command, cmd.Group)
	}
}

// Entry is a subcommand and the help group it is listed in.
type Entry struct {
	Command subcommands.Command
	Group   string
}

// Commands lists the taxctl subcommands.
func Commands() []Entry {
	return []Entry{
		{&importCmd{}, "ledger"},
		{&recomputeCmd{}, "ledger"},
		{&transactionsCmd{}, "reports"},
		{&eventsCmd{}, "reports"},
		{&summaryCmd{}, "reports"},
		{&lotsCmd{}, "reports"},
		{&holdingsCmd{}, "reports"},
		{&rateCmd{}, "reports"},
		{&serveCmd{}, "server"},
		{&topicCmd{}, "help"},
	}
}

// as a CLI application, it has a very short lived lifecycle, so it is ok to use global variables.

var envFile = flag.String("env", "", "Path to the .env configuration file. Defaults to .env in the current or parent directory.")

// loadConfig loads the configuration and sets the logger up.
func loadConfig() (*config.Config, error) {
	var files []string
	if *envFile != "" {
		files = append(files, *envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.LogLevel, os.Stderr)
	return cfg, nil
}

// openEngine builds the engine described by cfg. The returned function releases the store.
func openEngine(ctx context.Context, cfg *config.Config) (*taxlot.Engine, func(), error) {
	var store taxlot.Store
	closeStore := func() {}
	if cfg.DatabasePath == "" {
		logger.L.Warn("no database configured, using an in-memory store")
		store = taxlot.NewMemoryStore()
	} else {
		db, err := database.Open(ctx, cfg.DatabasePath)
		if err != nil {
			return nil, nil, err
		}
		store = db
		closeStore = func() {
			if err := db.Close(); err != nil {
				logger.L.Error("closing database", "path", cfg.DatabasePath, "error", err)
			}
		}
	}

	e, err := taxlot.NewEngine(store, newResolver(cfg, store), newNormalizer(cfg), taxlot.Options{
		Rates:              cfg.Rates,
		MissingBasisAsZero: cfg.MissingBasisAsZero,
		Location:           cfg.Location,
	})
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return e, closeStore, nil
}

func newResolver(cfg *config.Config, quotes taxlot.QuoteStore) *taxlot.Resolver {
	var sources []taxlot.PriceSource
	for _, name := range cfg.PriceSources {
		switch name {
		case "binance":
			sources = append(sources, binance.New(nil))
		case "coingecko":
			sources = append(sources, coingecko.New(nil, cfg.CoinGeckoAPIKey))
		}
	}
	var rates taxlot.RateSource
	if cfg.LiveRate {
		rates = fxrate.New(nil, cfg.Base, cfg.National)
	}
	return taxlot.NewResolver(taxlot.ChainSources(sources...), rates, quotes, taxlot.ResolverOptions{
		Base:       cfg.Base,
		National:   cfg.National,
		Pegged:     cfg.Pegged,
		Fallback:   cfg.PriceFallback,
		ManualRate: cfg.ManualRate,
		Location:   cfg.Location,
	})
}

func newNormalizer(cfg *config.Config) *taxlot.Normalizer {
	n := taxlot.NewNormalizer(cfg.Base)
	if len(cfg.Assets) > 0 {
		n.Assets = make(map[string]bool)
		for _, a := range cfg.Assets {
			n.Assets[a] = true
		}
	}
	return n
}

// withEngine loads the configuration, opens the engine and runs f.
func withEngine(ctx context.Context, f func(*config.Config, *taxlot.Engine) subcommands.ExitStatus) subcommands.ExitStatus {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return subcommands.ExitUsageError
	}
	e, closeStore, err := openEngine(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening the ledger: %v\n", err)
		return subcommands.ExitFailure
	}
	defer closeStore()
	return f(cfg, e)
}

// report prints a result, as JSON or as rendered markdown, and maps its status to an exit status.
func report[T any](r taxlot.Result[T], asJSON bool, render func(T) string) subcommands.ExitStatus {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding result: %v\n", err)
			return subcommands.ExitFailure
		}
	} else if r.Status == taxlot.StatusFailure {
		fmt.Fprintf(os.Stderr, "Error: %s\n", r.Message)
	} else {
		printMarkdown(render(r.Data) + renderer.RenderProblems(r.Status, r.Message, r.Problems))
	}
	if r.Status == taxlot.StatusFailure {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// printMarkdown renders md for the terminal, falling back on the raw markdown.
func printMarkdown(md string) {
	out, err := glamour.Render(md, "auto")
	if err != nil {
		fmt.Print(md)
		return
	}
	fmt.Print(out)
}

// parseDay parses an optional day flag, returning the first instant of the day in loc.
func parseDay(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := date.Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return d.Start(loc), nil
}

// parseRange parses inclusive from and to day flags into a half open time range.
func parseRange(from, to string, loc *time.Location) (time.Time, time.Time, error) {
	start, err := parseDay(from, loc)
	if err != nil {
		return start, time.Time{}, fmt.Errorf("invalid start date: %w", err)
	}
	if to == "" {
		return start, time.Time{}, nil
	}
	d, err := date.Parse(to)
	if err != nil {
		return start, time.Time{}, fmt.Errorf("invalid end date: %w", err)
	}
	return start, d.Add(1).Start(loc), nil
}

package cmd

import (
	"cmp"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/etnz/taxlot"
	"github.com/etnz/taxlot/api"
	"github.com/etnz/taxlot/config"
	"github.com/etnz/taxlot/logger"
	"github.com/google/subcommands"
)

type serveCmd struct {
	port string
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "serve the ledger over an HTTP JSON API" }
func (*serveCmd) Usage() string {
	return `taxctl serve [-port <port>]

  Serves the import, recompute and report operations under /api until
  interrupted. Every response is a JSON result envelope.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.port, "port", "", "port to listen on. Defaults to PORT.")
}

func (c *serveCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withEngine(ctx, func(cfg *config.Config, e *taxlot.Engine) subcommands.ExitStatus {
		addr := ":" + cmp.Or(c.port, cfg.Port)
		server := &http.Server{
			Addr:         addr,
			Handler:      api.New(e, api.Options{Location: cfg.Location, Bucketing: cfg.Bucketing}).Handler(),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		errc := make(chan error, 1)
		go func() {
			logger.L.Info("server starting", "address", addr)
			errc <- server.ListenAndServe()
		}()

		select {
		case err := <-errc:
			if !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintf(os.Stderr, "Error serving: %v\n", err)
				return subcommands.ExitFailure
			}
		case <-ctx.Done():
			logger.L.Info("server shutting down")
			shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdown); err != nil {
				fmt.Fprintf(os.Stderr, "Error shutting down: %v\n", err)
				return subcommands.ExitFailure
			}
		}
		return subcommands.ExitSuccess
	})
}

package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/etnz/taxlot"
	"github.com/etnz/taxlot/config"
	"github.com/etnz/taxlot/renderer"
	"github.com/google/subcommands"
)

type eventsCmd struct {
	from string
	to   string
	json bool
}

func (*eventsCmd) Name() string     { return "events" }
func (*eventsCmd) Synopsis() string { return "list the tax events, with their cost basis and tax" }
func (*eventsCmd) Usage() string {
	return `taxctl events [-s <start_date>] [-d <end_date>] [-json]

  Lists the tax events of the period. Events that could not be computed are
  listed with their reason, and make the command report a partial result.
`
}

func (c *eventsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.from, "s", "", "start date (YYYY-MM-DD)")
	f.StringVar(&c.to, "d", "", "end date (YYYY-MM-DD)")
	f.BoolVar(&c.json, "json", false, "print the events as JSON")
}

func (c *eventsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withEngine(ctx, func(cfg *config.Config, e *taxlot.Engine) subcommands.ExitStatus {
		from, to, err := parseRange(c.from, c.to, cfg.Location)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitUsageError
		}
		return report(e.TaxEvents(ctx, from, to), c.json, renderer.RenderEvents)
	})
}

package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/etnz/taxlot"
	"github.com/etnz/taxlot/config"
	"github.com/etnz/taxlot/date"
	"github.com/etnz/taxlot/renderer"
	"github.com/google/subcommands"
)

type rateCmd struct {
	date string
	json bool
}

func (*rateCmd) Name() string     { return "rate" }
func (*rateCmd) Synopsis() string { return "display the base to national currency rate of a day" }
func (*rateCmd) Usage() string {
	return `taxctl rate [-d <date>] [-json]

  Displays the conversion rate used for the day, and where it comes from:
  live, manual or manual-fallback.
`
}

func (c *rateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "d", date.Today().String(), "date of the rate (YYYY-MM-DD)")
	f.BoolVar(&c.json, "json", false, "print the rate as JSON")
}

func (c *rateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	on, err := date.Parse(c.date)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing date: %v\n", err)
		return subcommands.ExitUsageError
	}
	return withEngine(ctx, func(_ *config.Config, e *taxlot.Engine) subcommands.ExitStatus {
		return report(e.Rate(ctx, on), c.json, renderer.RenderRate)
	})
}

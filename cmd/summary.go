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

// summaryCmd holds the flags for the 'summary' subcommand.
type summaryCmd struct {
	bucketing string
	json      bool
}

func (*summaryCmd) Name() string     { return "summary" }
func (*summaryCmd) Synopsis() string { return "display the tax due per period" }
func (*summaryCmd) Usage() string {
	return `taxctl summary [-b month|quarter|year|all] [-json]

  Displays the transfer tax and the other income tax per period, with the
  realized gains. Periods containing events that could not be computed are
  flagged: their totals are incomplete.
`
}

func (c *summaryCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.bucketing, "b", "", "bucketing: month, quarter, year or all. Defaults to TAXLOT_BUCKETING.")
	f.BoolVar(&c.json, "json", false, "print the summary as JSON")
}

func (c *summaryCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withEngine(ctx, func(cfg *config.Config, e *taxlot.Engine) subcommands.ExitStatus {
		b := cfg.Bucketing
		if c.bucketing != "" {
			var err error
			if b, err = taxlot.ParseBucketing(c.bucketing); err != nil {
				fmt.Fprintln(os.Stderr, err)
				return subcommands.ExitUsageError
			}
		}
		return report(e.Summary(ctx, b), c.json, renderer.RenderSummary)
	})
}

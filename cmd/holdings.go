package cmd

import (
	"context"
	"flag"

	"github.com/etnz/taxlot"
	"github.com/etnz/taxlot/config"
	"github.com/etnz/taxlot/renderer"
	"github.com/google/subcommands"
)

// holdingsCmd holds the flags for the 'holdings' subcommand.
type holdingsCmd struct {
	json bool
}

func (*holdingsCmd) Name() string     { return "holdings" }
func (*holdingsCmd) Synopsis() string { return "display the quantity held of each asset" }
func (*holdingsCmd) Usage() string {
	return `taxctl holdings [-json]

  Displays the quantity of each asset still held in the lots.
`
}

func (c *holdingsCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.json, "json", false, "print the holdings as JSON")
}

func (c *holdingsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withEngine(ctx, func(_ *config.Config, e *taxlot.Engine) subcommands.ExitStatus {
		return report(e.Holdings(ctx), c.json, renderer.RenderHoldings)
	})
}

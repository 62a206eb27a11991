package cmd

import (
	"context"
	"flag"

	"github.com/etnz/taxlot"
	"github.com/etnz/taxlot/config"
	"github.com/etnz/taxlot/renderer"
	"github.com/google/subcommands"
)

type recomputeCmd struct {
	json bool
}

func (*recomputeCmd) Name() string     { return "recompute" }
func (*recomputeCmd) Synopsis() string { return "replay the whole ledger and recompute every tax event" }
func (*recomputeCmd) Usage() string {
	return `taxctl recompute [-json]

  Replays the transaction log from the start, rebuilds the lots and prints the
  tax events. Use it after a change of configuration (rates, fee treatment,
  price fallback).
`
}

func (c *recomputeCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.json, "json", false, "print the tax events as JSON")
}

func (c *recomputeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withEngine(ctx, func(_ *config.Config, e *taxlot.Engine) subcommands.ExitStatus {
		return report(e.Recompute(ctx), c.json, renderer.RenderEvents)
	})
}

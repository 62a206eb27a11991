package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/etnz/taxlot"
	"github.com/etnz/taxlot/config"
	"github.com/etnz/taxlot/renderer"
	"github.com/google/subcommands"
)

type lotsCmd struct {
	asset   string
	until   string
	retired bool
	json    bool
}

func (*lotsCmd) Name() string     { return "lots" }
func (*lotsCmd) Synopsis() string { return "list the acquisition lots and what remains of them" }
func (*lotsCmd) Usage() string {
	return `taxctl lots [-a <asset>] [-d <date>] [-r] [-json]

  Lists the lots of each asset in FIFO order, the oldest being consumed first.
`
}

func (c *lotsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.asset, "a", "", "only lots of this asset")
	f.StringVar(&c.until, "d", "", "only lots acquired on or before this date (YYYY-MM-DD)")
	f.BoolVar(&c.retired, "r", false, "include fully consumed lots")
	f.BoolVar(&c.json, "json", false, "print the lots as JSON")
}

func (c *lotsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withEngine(ctx, func(cfg *config.Config, e *taxlot.Engine) subcommands.ExitStatus {
		_, until, err := parseRange("", c.until, cfg.Location)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitUsageError
		}
		res := e.Lots(ctx, taxlot.LotFilter{Asset: strings.ToUpper(c.asset)})
		res.Data = slices.DeleteFunc(res.Data, func(l taxlot.Lot) bool {
			return (!c.retired && l.Retired()) || (!until.IsZero() && !l.Acquired.Before(until))
		})
		return report(res, c.json, renderer.RenderLots)
	})
}

package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/etnz/taxlot"
	"github.com/etnz/taxlot/config"
	"github.com/etnz/taxlot/renderer"
	"github.com/google/subcommands"
)

type transactionsCmd struct {
	asset   string
	from    string
	to      string
	classes string
	json    bool
}

func (*transactionsCmd) Name() string     { return "transactions" }
func (*transactionsCmd) Synopsis() string { return "list the transactions of the ledger" }
func (*transactionsCmd) Usage() string {
	return `taxctl transactions [-a <asset>] [-s <start_date>] [-d <end_date>] [-c <class>,...] [-json]

  Lists the logged transactions in replay order. Dates are inclusive.
`
}

func (c *transactionsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.asset, "a", "", "only transactions of this asset, given or received")
	f.StringVar(&c.from, "s", "", "start date (YYYY-MM-DD)")
	f.StringVar(&c.to, "d", "", "end date (YYYY-MM-DD)")
	f.StringVar(&c.classes, "c", "", "comma separated classifications, e.g. exchange,reward-income")
	f.BoolVar(&c.json, "json", false, "print the transactions as JSON")
}

func (c *transactionsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withEngine(ctx, func(cfg *config.Config, e *taxlot.Engine) subcommands.ExitStatus {
		from, to, err := parseRange(c.from, c.to, cfg.Location)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitUsageError
		}
		filter := taxlot.Filter{Asset: strings.ToUpper(c.asset), From: from, To: to}
		if c.classes != "" {
			for _, s := range strings.Split(c.classes, ",") {
				class, err := taxlot.ParseClassification(strings.TrimSpace(s))
				if err != nil {
					fmt.Fprintln(os.Stderr, err)
					return subcommands.ExitUsageError
				}
				filter.Classes = append(filter.Classes, class)
			}
		}
		return report(e.Transactions(ctx, filter), c.json, renderer.RenderTransactions)
	})
}

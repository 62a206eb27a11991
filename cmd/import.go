package cmd

import (
	"cmp"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/etnz/taxlot"
	"github.com/etnz/taxlot/config"
	"github.com/etnz/taxlot/renderer"
	"github.com/google/subcommands"
)

type importCmd struct {
	provenance string
	format     string
	json       bool
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "import transactions from wallet or exchange exports" }
func (*importCmd) Usage() string {
	return `taxctl import [-p <provenance>] [-f auto|jsonl|csv] [-json] <file>...

  Normalizes the records of each file, appends the new transactions to the
  ledger and recomputes the lots and tax events. A file named "-" is read from
  the standard input. Importing the same file twice is harmless: known records
  are reported as duplicates.

  JSONL files hold one record per line:
    {"key":"0xabc:1","time":"2025-05-01T10:00:00Z","type":"swap","asset":"ETH","amount":"1","secondaryAsset":"BTC","secondaryAmount":"0.05"}

  CSV files are either Binance trade history exports or custom files with the
  columns date, type, token, amount and optionally price, source and note.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.provenance, "p", "", "Provenance of the records (wallet, binance, csv...). Defaults to the detected format.")
	f.StringVar(&c.format, "f", "auto", "Input format: auto, jsonl or csv. auto uses the file extension.")
	f.BoolVar(&c.json, "json", false, "print the import report as JSON")
}

func (c *importCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "import needs at least one file")
		return subcommands.ExitUsageError
	}
	return withEngine(ctx, func(_ *config.Config, e *taxlot.Engine) subcommands.ExitStatus {
		status := subcommands.ExitSuccess
		for _, name := range f.Args() {
			records, provenance, err := c.decode(name)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading %q: %v\n", name, err)
				return subcommands.ExitFailure
			}
			res := e.Import(ctx, records, provenance)
			if s := report(res, c.json, renderer.RenderImport); s != subcommands.ExitSuccess {
				status = s
			}
		}
		return status
	})
}

// decode reads the records of a file, and the provenance they should be imported with.
func (c *importCmd) decode(name string) ([]taxlot.Record, string, error) {
	var r io.Reader = os.Stdin
	if name != "-" {
		file, err := os.Open(name)
		if err != nil {
			return nil, "", err
		}
		defer file.Close()
		r = file
	}

	format := c.format
	if format == "auto" {
		format = "jsonl"
		if strings.EqualFold(filepath.Ext(name), ".csv") {
			format = "csv"
		}
	}

	switch format {
	case "jsonl":
		records, err := taxlot.DecodeRecords(r)
		return records, cmp.Or(c.provenance, taxlot.ProvenanceWallet), err
	case "csv":
		records, csvFormat, err := taxlot.DecodeCSV(r)
		provenance := taxlot.ProvenanceCSV
		if csvFormat == taxlot.BinanceCSV {
			provenance = taxlot.ProvenanceBinance
		}
		return records, cmp.Or(c.provenance, provenance), err
	default:
		return nil, "", fmt.Errorf("unknown format %q", format)
	}
}

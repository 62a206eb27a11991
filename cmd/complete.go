package cmd

import (
	"flag"

	"github.com/etnz/taxlot"
	"github.com/etnz/taxlot/docs"
	"github.com/posener/complete/v2"
	"github.com/posener/complete/v2/predict"
)

// flagPredictors are the completions of flag values that are not free text.
var flagPredictors = map[string]map[string]complete.Predictor{
	"import":       {"f": predict.Set{"auto", "jsonl", "csv"}, "p": predict.Set{taxlot.ProvenanceWallet, taxlot.ProvenanceBinance, taxlot.ProvenanceCSV}},
	"summary":      {"b": predict.Set{"month", "quarter", "year", "all"}},
	"transactions": {"c": classifications()},
}

func classifications() predict.Set {
	var set predict.Set
	for _, c := range taxlot.Classifications() {
		set = append(set, c.String())
	}
	return set
}

func topics() predict.Set {
	all, _ := docs.GetAllTopics()
	set := predict.Set{"*"}
	for _, t := range all {
		set = append(set, t.Name)
	}
	return set
}

// Completion describes the taxctl command line for shell completion:
// its global flags, its subcommands and their flags.
func Completion() *complete.Command {
	root := &complete.Command{
		Sub:   make(map[string]*complete.Command),
		Flags: map[string]complete.Predictor{"env": predict.Files("*.env")},
	}
	for _, e := range Commands() {
		fs := flag.NewFlagSet(e.Command.Name(), flag.ContinueOnError)
		e.Command.SetFlags(fs)
		sub := &complete.Command{Flags: make(map[string]complete.Predictor)}
		fs.VisitAll(func(f *flag.Flag) {
			if p, ok := flagPredictors[e.Command.Name()][f.Name]; ok {
				sub.Flags[f.Name] = p
				return
			}
			if bf, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && bf.IsBoolFlag() {
				sub.Flags[f.Name] = predict.Nothing
				return
			}
			sub.Flags[f.Name] = predict.Something
		})
		switch e.Command.Name() {
		case "import":
			sub.Args = predict.Or(predict.Files("*.csv"), predict.Files("*.jsonl"))
		case "topic":
			sub.Args = topics()
		}
		root.Sub[e.Command.Name()] = sub
	}
	return root
}

// Package renderer renders taxlot reports as markdown, ready for the terminal.
package renderer

import (
	"cmp"
	"embed"
	"fmt"
	"io/fs"
	"maps"
	"slices"
	"strings"
	"text/template"
	"time"

	"github.com/etnz/taxlot"
)

//go:embed templates/*.md
var templates embed.FS

var funcs = template.FuncMap{
	"timestamp": func(t time.Time) string { return t.Format("2006-01-02 15:04") },
	"short":     short,
	"cell":      cell,
	"signed":    func(m taxlot.Money) string { return m.SignedString() },
}

// short truncates long identifiers such as transaction hashes.
func short(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12] + "…"
}

// cell escapes a free text for a table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}

// RenderSummary renders a bucketed tax summary.
func RenderSummary(s taxlot.Summary) string {
	partials := map[string]string{
		"summary_bucket": "summary_bucket.md",
		"summary_assets": "summary_assets.md",
		"summary_issues": "summary_issues.md",
	}
	return renderTemplate("summary", "summary.md", partials, s)
}

// RenderEvents renders tax events, one row each.
func RenderEvents(events []taxlot.TaxEvent) string {
	partials := map[string]string{"event_rows": "event_rows.md"}
	return renderTemplate("events", "events.md", partials, events)
}

// RenderTransactions renders the transaction log.
func RenderTransactions(txs []taxlot.Transaction) string {
	return renderTemplate("transactions", "transactions.md", nil, txs)
}

// RenderLots renders lots, grouped by asset in FIFO order.
func RenderLots(lots []taxlot.Lot) string {
	sorted := slices.Clone(lots)
	slices.SortStableFunc(sorted, func(a, b taxlot.Lot) int {
		return cmp.Or(cmp.Compare(a.Asset, b.Asset), cmp.Compare(a.Seq, b.Seq))
	})
	return renderTemplate("lots", "lots.md", nil, sorted)
}

type holding struct {
	Asset    string
	Quantity taxlot.Quantity
}

// RenderHoldings renders the quantity held per asset.
func RenderHoldings(h map[string]taxlot.Quantity) string {
	var rows []holding
	for _, asset := range slices.Sorted(maps.Keys(h)) {
		rows = append(rows, holding{asset, h[asset]})
	}
	return renderTemplate("holdings", "holdings.md", nil, rows)
}

// RenderImport renders the report of an import batch.
func RenderImport(r taxlot.ImportReport) string {
	partials := map[string]string{"event_rows": "event_rows.md"}
	return renderTemplate("import", "import.md", partials, r)
}

// RenderRate renders a conversion rate.
func RenderRate(c taxlot.Conversion) string {
	return renderTemplate("rate", "rate.md", nil, c)
}

// RenderProblems renders the problems of a partial or failed result, or nothing.
func RenderProblems(status taxlot.Status, message string, problems []taxlot.Problem) string {
	if status == taxlot.StatusSuccess {
		return ""
	}
	data := struct {
		Status   taxlot.Status
		Message  string
		Problems []taxlot.Problem
	}{status, message, problems}
	return renderTemplate("problems", "problems.md", nil, data)
}

// renderTemplate renders a main template that depends on several partials.
func renderTemplate(templateName, mainFile string, partials map[string]string, data any) string {
	mainContent, err := fs.ReadFile(templates, "templates/"+mainFile)
	if err != nil {
		return fmt.Sprintf("error reading main template %q: %v", mainFile, err)
	}

	tmpl, err := template.New(templateName).Funcs(funcs).Parse(string(mainContent))
	if err != nil {
		return fmt.Sprintf("error parsing main template %q: %v", mainFile, err)
	}

	for name, file := range partials {
		content, err := fs.ReadFile(templates, "templates/"+file)
		if err != nil {
			return fmt.Sprintf("error reading partial template %q: %v", file, err)
		}
		if _, err := tmpl.New(name).Parse(string(content)); err != nil {
			return fmt.Sprintf("error parsing partial template %q for %q: %v", file, name, err)
		}
	}

	var b strings.Builder
	if err := tmpl.ExecuteTemplate(&b, templateName, data); err != nil {
		return fmt.Sprintf("error executing template %q: %v", templateName, err)
	}
	return b.String()
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"corpusd/internal/logging"
	"corpusd/internal/orchestrator"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

// shouldColorize reports whether writer is a terminal the run summary can
// safely decorate with raw ANSI codes.
func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func colorizeCount(value int, color string, colorize bool) string {
	text := fmt.Sprintf("%d", value)
	if !colorize || value == 0 || color == "" {
		return text
	}
	return color + text + ansiReset
}

// renderSummaryTable renders a RunSummary as a rounded go-pretty table
// printed at the end of every run.
func renderSummaryTable(w io.Writer, summary orchestrator.RunSummary, runID string) {
	colorize := shouldColorize(w)

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Run", "Candidates", "Done", "Skipped", "Errored", "Mode", "Est. Cost", "Elapsed"})
	tw.AppendRow(table.Row{
		runID,
		summary.CandidateCount,
		colorizeCount(summary.Done, ansiGreen, colorize),
		colorizeCount(summary.Skipped, ansiYellow, colorize),
		colorizeCount(summary.Errored, ansiRed, colorize),
		string(summary.RoutingMode),
		fmt.Sprintf("$%.4f", summary.EstimatedCostUSD),
		logging.FormatDuration(summary.Elapsed),
	})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
	})
	tw.Render()

	if summary.BudgetExhausted {
		fmt.Fprintln(w, "note: cost budget exhausted; remaining candidates left pending")
	}
	if len(summary.SkipReasons) > 0 {
		reasons := table.NewWriter()
		reasons.SetOutputMirror(w)
		reasons.SetStyle(table.StyleRounded)
		reasons.AppendHeader(table.Row{"Skip Reason", "Count"})
		keys := make([]string, 0, len(summary.SkipReasons))
		for reason := range summary.SkipReasons {
			keys = append(keys, reason)
		}
		sort.Strings(keys)
		for _, reason := range keys {
			reasons.AppendRow(table.Row{reason, summary.SkipReasons[reason]})
		}
		reasons.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
		reasons.Render()
	}
}

type summaryJSON struct {
	RunID            string         `json:"run_id"`
	CandidateCount   int            `json:"candidate_count"`
	Done             int            `json:"done"`
	Skipped          int            `json:"skipped"`
	Errored          int            `json:"errored"`
	EstimatedCostUSD float64        `json:"estimated_cost_usd"`
	RoutingMode      string         `json:"routing_mode"`
	BudgetExhausted  bool           `json:"budget_exhausted"`
	ElapsedSeconds   float64        `json:"elapsed_seconds"`
	SkipReasons      map[string]int `json:"skip_reasons,omitempty"`
}

func renderSummaryJSON(w io.Writer, summary orchestrator.RunSummary, runID string) error {
	payload := summaryJSON{
		RunID:            runID,
		CandidateCount:   summary.CandidateCount,
		Done:             summary.Done,
		Skipped:          summary.Skipped,
		Errored:          summary.Errored,
		EstimatedCostUSD: summary.EstimatedCostUSD,
		RoutingMode:      string(summary.RoutingMode),
		BudgetExhausted:  summary.BudgetExhausted,
		ElapsedSeconds:   summary.Elapsed.Seconds(),
		SkipReasons:      summary.SkipReasons,
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}

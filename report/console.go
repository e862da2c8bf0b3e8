package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/SamuelRCrider/sitrecon/core"
)

// Console prints the run summary as tables: loaded methods, scenario metrics and warnings
func Console(w io.Writer, summary *core.RunSummary) error {
	if summary == nil {
		return nil
	}

	if len(summary.Loads) > 0 {
		fmt.Fprintln(w, "Methods")
		table := tablewriter.NewWriter(w)
		table.Header("Method", "Status", "Records", "Duplicates", "Skipped rows", "Source")
		for _, l := range summary.Loads {
			status := "loaded"
			if !l.Loaded() {
				status = "failed"
			}
			if err := table.Append(l.Method, status,
				strconv.Itoa(len(l.Records)), strconv.Itoa(l.Duplicates),
				strconv.Itoa(len(l.Skipped)), l.Path); err != nil {
				return err
			}
		}
		if err := table.Render(); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}

	if len(summary.Results) > 0 {
		fmt.Fprintln(w, "Scenarios")
		table := tablewriter.NewWriter(w)
		table.Header("Scenario", "TP", "FP", "FN", "Precision", "Recall", "F1", "FP rate", "Overlap", "Notes")
		var rows [][]string
		for _, r := range summary.Results {
			rows = append(rows, []string{
				r.Scenario,
				strconv.Itoa(len(r.TruePositives)),
				strconv.Itoa(len(r.FalsePositives)),
				strconv.Itoa(len(r.FalseNegatives)),
				r.Metrics.Precision.String(),
				r.Metrics.Recall.String(),
				r.Metrics.F1.String(),
				r.Metrics.FalsePositiveRate.String(),
				formatPercent(r.OverlapPercentage) + "%",
				strings.Join(r.Notes, "; "),
			})
		}
		totals, overlap := core.Totals(summary.Results)
		rows = append(rows, []string{
			SummaryRowName,
			strconv.Itoa(totals.TruePositives),
			strconv.Itoa(totals.FalsePositives),
			strconv.Itoa(totals.FalseNegatives),
			totals.Precision.String(),
			totals.Recall.String(),
			totals.F1.String(),
			totals.FalsePositiveRate.String(),
			formatPercent(overlap) + "%",
			strings.Join(totals.Notes(), "; "),
		})
		if err := table.Bulk(rows); err != nil {
			return err
		}
		if err := table.Render(); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}

	if len(summary.Warnings) > 0 {
		fmt.Fprintf(w, "Warnings (%d)\n", len(summary.Warnings))
		for _, warning := range summary.Warnings {
			fmt.Fprintf(w, "  - %s\n", warning)
		}
	}
	return nil
}

package report

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"strings"

	"github.com/SamuelRCrider/sitrecon/core"
)

// SummaryRowName labels the micro-averaged row of the summary CSV
const SummaryRowName = "SUMMARY"

// SummaryHeader is the column layout of the summary CSV
var SummaryHeader = []string{
	"Scenario", "Reference", "Candidate",
	"TruePositives", "FalsePositives", "FalseNegatives",
	"Precision", "Recall", "F1", "FalsePositiveRate", "OverlapPercentage", "Notes",
}

// DetailsHeader is the column layout of the drill-down CSV
var DetailsHeader = []string{
	"Scenario", "Bucket", "SourceMethod", "FileIdentifier",
	"EntityType", "Location", "Confidence", "EntityValue", "ComplianceCategory",
}

// SummaryCSV renders one row per scenario plus a summary row. The output only
// depends on the results, so identical inputs give identical bytes.
func SummaryCSV(results []core.ComparisonResult) ([]byte, error) {
	rows := [][]string{SummaryHeader}
	for _, r := range results {
		rows = append(rows, []string{
			r.Scenario, r.Reference, r.Candidate,
			strconv.Itoa(len(r.TruePositives)),
			strconv.Itoa(len(r.FalsePositives)),
			strconv.Itoa(len(r.FalseNegatives)),
			r.Metrics.Precision.Format(),
			r.Metrics.Recall.Format(),
			r.Metrics.F1.Format(),
			r.Metrics.FalsePositiveRate.Format(),
			formatPercent(r.OverlapPercentage),
			strings.Join(r.Notes, "; "),
		})
	}

	totals, overlap := core.Totals(results)
	rows = append(rows, []string{
		SummaryRowName, "", "",
		strconv.Itoa(totals.TruePositives),
		strconv.Itoa(totals.FalsePositives),
		strconv.Itoa(totals.FalseNegatives),
		totals.Precision.Format(),
		totals.Recall.Format(),
		totals.F1.Format(),
		totals.FalsePositiveRate.Format(),
		formatPercent(overlap),
		strings.Join(totals.Notes(), "; "),
	})
	return writeCSV(rows)
}

// DetailsCSV renders every bucketed record with its entity value masked
func DetailsCSV(results []core.ComparisonResult) ([]byte, error) {
	rows := [][]string{DetailsHeader}
	for _, r := range results {
		for _, bucket := range r.Buckets() {
			for _, rec := range core.RedactRecords(bucket.Records) {
				rows = append(rows, []string{
					r.Scenario, bucket.Name, rec.SourceMethod, rec.FileIdentifier,
					rec.EntityType, rec.Location, rec.Confidence.String(),
					rec.EntityValue, rec.Category,
				})
			}
		}
	}
	return writeCSV(rows)
}

func writeCSV(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatPercent(p float64) string {
	return strconv.FormatFloat(p, 'f', 2, 64)
}

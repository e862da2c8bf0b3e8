package report

import (
	"bytes"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SamuelRCrider/sitrecon/core"
	"github.com/SamuelRCrider/sitrecon/utils"
)

const site = "https://contoso.sharepoint.com/sites/hr"

var entityTypes = core.NewEntityTypeTable(nil)

func detection(method, file, entityType, value string, confidence utils.Confidence) utils.DetectionRecord {
	return utils.DetectionRecord{
		SourceMethod:   method,
		FileIdentifier: core.FileIdentifier(file, site),
		FileName:       file,
		EntityType:     entityType,
		Category:       string(entityTypes.Category(entityType)),
		EntityValue:    value,
		Location:       site,
		Confidence:     confidence,
	}
}

func sampleSummary() *core.RunSummary {
	ref := []utils.DetectionRecord{
		detection("PatternScan", "Payroll, Q1.xlsx", "U.S. Social Security Number (SSN)", "123-45-6789", utils.ConfidenceOf(85)),
		detection("PatternScan", "cards.csv", "Credit Card Number", "4111111111111111", utils.ConfidenceOf(75)),
	}
	cand := []utils.DetectionRecord{
		detection("ExactDataMatch", "Payroll, Q1.xlsx", "U.S. Social Security Number (SSN)", "123-45-6789", utils.NotApplicable()),
		detection("ExactDataMatch", "roster.xlsx", "Employee ID", "EMP-100001", utils.NotApplicable()),
	}

	pair := core.Reconcile(ref, cand, core.ReconcileOptions{})
	pair.Scenario, pair.Reference, pair.Candidate = "ExactDataMatch vs PatternScan", "PatternScan", "ExactDataMatch"

	empty := core.Reconcile(nil, nil, core.ReconcileOptions{})
	empty.Scenario, empty.Reference, empty.Candidate = "ContentExplorer vs PatternScan", "PatternScan", "ContentExplorer"

	return &core.RunSummary{
		Loads: []core.LoadResult{
			{Method: "PatternScan", Path: "reports/scan.csv", Records: ref},
			{Method: "ExactDataMatch", Path: "reports/edm.csv", Records: cand},
			{Method: "ContentExplorer", Err: errors.New("no file matches")},
		},
		Results: []core.ComparisonResult{pair, empty},
		Warnings: []core.Warning{
			{Category: core.CategoryPartialLoadFailure, Method: "ContentExplorer", Message: "no file matches"},
		},
	}
}

func readCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return rows
}

// TestSummaryCSV checks scenario rows, the summary row and undefined recall
func TestSummaryCSV(t *testing.T) {
	data, err := SummaryCSV(sampleSummary().Results)
	require.NoError(t, err)

	rows := readCSV(t, data)
	require.Len(t, rows, 4)
	assert.Equal(t, SummaryHeader, rows[0])
	assert.Equal(t, []string{
		"ExactDataMatch vs PatternScan", "PatternScan", "ExactDataMatch",
		"1", "1", "1", "50.00", "50.00", "50.00", "50.00", "33.33", "",
	}, rows[1])

	assert.Equal(t, "100.00", rows[2][6])
	assert.Equal(t, "N/A", rows[2][7])
	assert.Equal(t, "N/A", rows[2][8])
	assert.Equal(t, "0.00", rows[2][9])
	assert.Equal(t, core.NoteRecallUndefined, rows[2][11])

	// Counts are summed, metrics recomputed, overlap averaged
	assert.Equal(t, []string{
		SummaryRowName, "", "",
		"1", "1", "1", "50.00", "50.00", "50.00", "50.00", "16.67", "",
	}, rows[3])
}

// TestCSVDeterministic checks identical results render identical bytes
func TestCSVDeterministic(t *testing.T) {
	a, err := SummaryCSV(sampleSummary().Results)
	require.NoError(t, err)
	b, err := SummaryCSV(sampleSummary().Results)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	a, err = DetailsCSV(sampleSummary().Results)
	require.NoError(t, err)
	b, err = DetailsCSV(sampleSummary().Results)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

// TestDetailsCSV checks buckets, masking and that keys survive CSV quoting
func TestDetailsCSV(t *testing.T) {
	summary := sampleSummary()
	data, err := DetailsCSV(summary.Results)
	require.NoError(t, err)

	rows := readCSV(t, data)
	require.Len(t, rows, 4)
	assert.Equal(t, DetailsHeader, rows[0])

	byBucket := map[string][]string{}
	for _, row := range rows[1:] {
		byBucket[row[1]] = row
	}

	tp := byBucket[core.BucketTruePositive]
	require.NotNil(t, tp)
	assert.Equal(t, summary.Results[0].TruePositives[0].FileIdentifier, tp[3])
	assert.Equal(t, "U.S. Social Security Number (SSN)", tp[4])
	assert.Equal(t, "N/A", tp[6])
	assert.Equal(t, "*******6789", tp[7])
	assert.Equal(t, string(core.CompliancePII), tp[8])

	fn := byBucket[core.BucketFalseNegative]
	require.NotNil(t, fn)
	assert.Equal(t, "75", fn[6])
	assert.Equal(t, "************1111", fn[7])
	assert.Equal(t, string(core.ComplianceFinancial), fn[8])
	assert.NotContains(t, string(data), "4111111111111111")
}

// TestHTML checks the page carries the scenario table and warnings
func TestHTML(t *testing.T) {
	data, err := HTML(sampleSummary(), "lab <run>")
	require.NoError(t, err)

	page := string(data)
	assert.Contains(t, page, "lab &lt;run&gt;")
	assert.Contains(t, page, "ExactDataMatch vs PatternScan")
	assert.Contains(t, page, SummaryRowName)
	assert.Contains(t, page, "no file matches")
	assert.NotContains(t, page, "123-45-6789")
}

// TestConsole checks the tables name every method and scenario
func TestConsole(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Console(&buf, sampleSummary()))

	out := buf.String()
	assert.Contains(t, out, "ContentExplorer")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "ExactDataMatch")
	assert.Contains(t, out, "N/A")

	buf.Reset()
	require.NoError(t, Console(&buf, nil))
	assert.Empty(t, buf.String())
}

// TestWrite checks file names and selected artifacts
func TestWrite(t *testing.T) {
	dir := t.TempDir()
	ts := time.Date(2026, 3, 5, 14, 30, 9, 0, time.UTC)

	written, err := Write(sampleSummary(), core.OutputConfig{
		Directory: filepath.Join(dir, "out"),
		Prefix:    "lab",
		HTML:      true,
		Details:   true,
	}, ts)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "out", "lab_20260305_143009.csv"),
		filepath.Join(dir, "out", "lab_20260305_143009_details.csv"),
		filepath.Join(dir, "out", "lab_20260305_143009.html"),
	}, written)
	for _, p := range written {
		assert.FileExists(t, p)
	}

	written, err = Write(sampleSummary(), core.OutputConfig{Directory: filepath.Join(dir, "summary-only"), Prefix: "lab"}, ts)
	require.NoError(t, err)
	assert.Len(t, written, 1)
}

// TestWriteFailure checks an unwritable directory maps to the fatal exit code
func TestWriteFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := Write(sampleSummary(), core.OutputConfig{Directory: blocker, Prefix: "lab"}, time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.CategoryWriteFailure))
	assert.Equal(t, core.ExitFatal, core.ExitCode(err))
}

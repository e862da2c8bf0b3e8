package sitrecon

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SamuelRCrider/sitrecon/core"
)

const site = "https://contoso.sharepoint.com/sites/hr"

var fixedNow = func() time.Time { return time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC) }

var scanMapping = core.SchemaMapping{
	FileIdentifier: "FileName",
	Location:       "SiteUrl",
	EntityType:     "SITType",
	EntityValue:    "MatchedValue",
	Timestamp:      "DetectedDate",
}

var edmMapping = core.SchemaMapping{
	FileIdentifier: "FileName",
	Location:       "SiteUrl",
	EntityType:     "SensitiveType",
	EntityValue:    "MatchedValue",
}

func writeLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
}

// labDir lays out a small lab: a pattern scan that reports ten genuine and ten
// fabricated employee IDs, an EDM export with only the genuine ones, and the
// employee table
func labDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	scan := []string{"FileName,SiteUrl,SITType,MatchedValue,DetectedDate"}
	edm := []string{"FileName,SiteUrl,SensitiveType,MatchedValue"}
	ids := []string{"EmployeeID,Name"}
	for i := 1; i <= 10; i++ {
		genuine := fmt.Sprintf("EMP-1000%02d", i)
		fake := fmt.Sprintf("EMP-9000%02d", i)
		file := fmt.Sprintf("roster%02d.xlsx", i)
		scan = append(scan,
			fmt.Sprintf("%s,%s,Employee ID,%s,2026-03-01", file, site, genuine),
			fmt.Sprintf("decoy%02d.xlsx,%s,Employee ID,%s,2026-03-01", i, site, fake),
		)
		edm = append(edm, fmt.Sprintf("%s,%s,Employee ID,%s", file, site, genuine))
		ids = append(ids, fmt.Sprintf("%s,Employee %d", genuine, i))
	}
	writeLines(t, filepath.Join(dir, "reports", "Lab_PatternScan.csv"), scan...)
	writeLines(t, filepath.Join(dir, "reports", "Lab_EDM.csv"), edm...)
	writeLines(t, filepath.Join(dir, "reports", "employees.csv"), ids...)
	return dir
}

func labConfig(t *testing.T, dir, outDir string) core.Config {
	t.Helper()
	cfg, err := core.NewConfigBuilder().
		WithBaseDir(dir).
		AddMethodPattern("PatternScan", "reports/*PatternScan*.csv", scanMapping).
		AddMethodPattern("ExactDataMatch", "reports/*EDM*.csv", edmMapping).
		WithGroundTruth(core.GroundTruthConfig{Path: "reports/employees.csv", IDColumn: "EmployeeID"}).
		WithOutput(outDir, "lab").
		WithHTML(true).
		Build()
	require.NoError(t, err)
	return cfg
}

// TestRunFabricatedIDs checks the headline lab result end to end
func TestRunFabricatedIDs(t *testing.T) {
	dir := labDir(t)
	var stdout bytes.Buffer

	res, err := RunWithConfig(context.Background(), labConfig(t, dir, filepath.Join(dir, "out")), Options{Stdout: &stdout, Now: fixedNow})
	require.NoError(t, err)
	require.Len(t, res.Summary.Results, 3)

	scan := res.Summary.Results[0]
	assert.Equal(t, "PatternScan vs groundTruth", scan.Scenario)
	assert.Len(t, scan.TruePositives, 10)
	assert.Len(t, scan.FalsePositives, 10)
	assert.Equal(t, "50.00", scan.Metrics.Precision.Format())

	edm := res.Summary.Results[1]
	assert.Len(t, edm.TruePositives, 10)
	assert.Empty(t, edm.FalsePositives)
	assert.Equal(t, "100.00", edm.Metrics.Precision.Format())
	assert.Equal(t, "100.00", edm.Metrics.Recall.Format())

	assert.Len(t, res.Written, 3)
	assert.Contains(t, res.Written[0], "lab_20260305_143000.csv")
	assert.Contains(t, stdout.String(), "PatternScan")
}

// TestRunDeterministic checks two runs over the same inputs give identical reports
func TestRunDeterministic(t *testing.T) {
	dir := labDir(t)

	var outputs [][]string
	for _, out := range []string{"first", "second"} {
		res, err := RunWithConfig(context.Background(), labConfig(t, dir, filepath.Join(dir, out)), Options{Now: fixedNow})
		require.NoError(t, err)
		outputs = append(outputs, res.Written)
	}

	require.Len(t, outputs[0], len(outputs[1]))
	for i := range outputs[0] {
		a, err := os.ReadFile(outputs[0][i])
		require.NoError(t, err)
		b, err := os.ReadFile(outputs[1][i])
		require.NoError(t, err)
		assert.Equal(t, a, b, filepath.Base(outputs[0][i]))
	}
}

// TestRunInsufficientData checks that no report is written below the method threshold
func TestRunInsufficientData(t *testing.T) {
	dir := labDir(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "reports", "Lab_EDM.csv")))
	out := filepath.Join(dir, "out")

	var stdout bytes.Buffer
	res, err := RunWithConfig(context.Background(), labConfig(t, dir, out), Options{Stdout: &stdout, Now: fixedNow})
	require.Error(t, err)
	assert.Equal(t, core.ExitInsufficientData, core.ExitCode(err))
	assert.Empty(t, res.Written)
	assert.NoDirExists(t, out)

	// The console still shows which methods loaded
	assert.Contains(t, stdout.String(), "ExactDataMatch")
}

// TestRunWriteFailure checks an unwritable output location
func TestRunWriteFailure(t *testing.T) {
	dir := labDir(t)
	blocker := filepath.Join(dir, "blocked")
	writeLines(t, blocker, "not a directory")

	var stdout bytes.Buffer
	_, err := RunWithConfig(context.Background(), labConfig(t, dir, blocker), Options{Stdout: &stdout, Now: fixedNow})
	require.Error(t, err)
	assert.Equal(t, core.ExitFatal, core.ExitCode(err))

	// The summary was printed before writing failed
	assert.Contains(t, stdout.String(), "groundTruth")
}

// TestRunFromFile checks configuration loading, overrides and the audit log
func TestRunFromFile(t *testing.T) {
	dir := labDir(t)
	cfg := labConfig(t, dir, filepath.Join(dir, "out"))
	cfg.BaseDir = ""
	cfg.Audit.Path = filepath.Join(dir, "logs", "audit.log")
	path := filepath.Join(dir, "sitrecon.yaml")
	require.NoError(t, core.SaveConfig(cfg, path))

	res, err := Run(context.Background(), Options{
		ConfigPath: path,
		Overrides:  map[string]interface{}{"output.html": false},
		Now:        fixedNow,
	})
	require.NoError(t, err)
	assert.Equal(t, dir, res.Config.BaseDir)
	assert.Len(t, res.Written, 2)

	log, err := os.ReadFile(cfg.Audit.Path)
	require.NoError(t, err)
	assert.Contains(t, string(log), `"event_type":"run_started"`)
	assert.Contains(t, string(log), `"event_type":"report_written"`)
	assert.Contains(t, string(log), res.Summary.RunID)

	_, err = Run(context.Background(), Options{ConfigPath: filepath.Join(dir, "missing.json")})
	assert.Equal(t, core.ExitConfigError, core.ExitCode(err))
}

// TestSampleConfig checks the shipped configuration loads and validates
func TestSampleConfig(t *testing.T) {
	cfg, err := LoadConfig(Options{})
	require.NoError(t, err)
	assert.Equal(t, ".", cfg.BaseDir)
	assert.Len(t, cfg.EnabledMethods(), 3)
	require.NotNil(t, cfg.GroundTruth)
	assert.Len(t, cfg.ResolvedScenarios(), 6)
	assert.Nil(t, cfg.Filters.MinConfidence)
}

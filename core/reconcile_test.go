package core

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SamuelRCrider/sitrecon/utils"
)

const ssn = "U.S. Social Security Number (SSN)"

// TestReconcileIdentity reconciles a set against itself
func TestReconcileIdentity(t *testing.T) {
	set := []utils.DetectionRecord{
		record("PatternScan", "payroll.xlsx", ssn, "123-45-6789"),
		record("PatternScan", "payroll.xlsx", "Credit Card Number", "4111111111111111"),
		record("PatternScan", "benefits.docx", ssn, "987-65-4321"),
	}

	res := Reconcile(set, set, ReconcileOptions{})
	assert.Len(t, res.TruePositives, len(set))
	assert.Empty(t, res.FalsePositives)
	assert.Empty(t, res.FalseNegatives)
	assert.Equal(t, "100.00", res.Metrics.Precision.Format())
	assert.Equal(t, "100.00", res.Metrics.Recall.Format())
	assert.Equal(t, "100.00", res.Metrics.F1.Format())
	assert.Equal(t, 100.0, res.OverlapPercentage)
}

// TestReconcileOpenSetTypeCasing checks unknown type labels reconcile across
// methods that export them with different casing
func TestReconcileOpenSetTypeCasing(t *testing.T) {
	table := NewEntityTypeTable(nil)
	header := []string{"FileName", "SiteUrl", "SITType", "MatchedValue", "Confidence", "DetectedDate"}
	load := func(method, file, label string) []utils.DetectionRecord {
		m, err := NewMapper(method, patternMapping, table)
		require.NoError(t, err)
		row, err := m.Bind(header)
		require.NoError(t, err)
		recs, err := row(RawRow{
			"FileName": file, "SiteUrl": "https://contoso.sharepoint.com/sites/hr",
			"SITType": label, "MatchedValue": "", "Confidence": "", "DetectedDate": "",
		})
		require.NoError(t, err)
		return recs
	}

	ref := load("PatternScan", "doc.docx", "Contoso Project Code")
	cand := load("ContentExplorer", "DOC.docx", "CONTOSO PROJECT CODE")

	res := Reconcile(ref, cand, ReconcileOptions{})
	assert.Len(t, res.TruePositives, 1)
	assert.Empty(t, res.FalsePositives)
	assert.Empty(t, res.FalseNegatives)
	assert.Equal(t, 100.0, res.OverlapPercentage)
}

// TestReconcileDisjoint reconciles sets without a common match key
func TestReconcileDisjoint(t *testing.T) {
	ref := []utils.DetectionRecord{
		record("PatternScan", "payroll.xlsx", ssn, ""),
		record("PatternScan", "benefits.docx", ssn, ""),
	}
	cand := []utils.DetectionRecord{
		record("ExactDataMatch", "payroll.xlsx", "Credit Card Number", ""),
	}

	res := Reconcile(ref, cand, ReconcileOptions{})
	assert.Empty(t, res.TruePositives)
	assert.Len(t, res.FalsePositives, 1)
	assert.Len(t, res.FalseNegatives, 2)
	assert.Equal(t, "0.00", res.Metrics.Precision.Format())
	assert.Equal(t, "0.00", res.Metrics.Recall.Format())
	assert.Equal(t, "0.00", res.Metrics.F1.Format())
	assert.Equal(t, 0.0, res.OverlapPercentage)

	// Against an empty reference recall is undefined, never a made-up number
	res = Reconcile(nil, cand, ReconcileOptions{})
	assert.Equal(t, "0.00", res.Metrics.Precision.Format())
	assert.False(t, res.Metrics.Recall.Defined)
	assert.Contains(t, res.Notes, NoteRecallUndefined)

	// Both empty: nothing claimed and nothing to find
	res = Reconcile(nil, nil, ReconcileOptions{})
	assert.Equal(t, "100.00", res.Metrics.Precision.Format())
	assert.False(t, res.Metrics.Recall.Defined)
	assert.Equal(t, 0.0, res.OverlapPercentage)
}

// TestReconcileIgnoresValueAndConfidence checks that only the match key decides
func TestReconcileIgnoresValueAndConfidence(t *testing.T) {
	a := record("PatternScan", "payroll.xlsx", ssn, "123-45-6789")
	a.Confidence = utils.ConfidenceOf(85)
	b := record("ContentExplorer", "PAYROLL.xlsx", ssn, "")

	res := Reconcile([]utils.DetectionRecord{a}, []utils.DetectionRecord{b}, ReconcileOptions{})
	assert.Len(t, res.TruePositives, 1)
	assert.Equal(t, 100.0, res.OverlapPercentage)
}

// TestReconcileDuplicateKeysHigherConfidenceWins checks the tie-break rule
func TestReconcileDuplicateKeysHigherConfidenceWins(t *testing.T) {
	low := record("PatternScan", "payroll.xlsx", ssn, "low")
	low.Confidence = utils.ConfidenceOf(65)
	high := record("PatternScan", "payroll.xlsx", ssn, "high")
	high.Confidence = utils.ConfidenceOf(85)
	none := record("PatternScan", "payroll.xlsx", ssn, "none")

	ref := []utils.DetectionRecord{record("EDM", "payroll.xlsx", ssn, "")}
	for _, cand := range [][]utils.DetectionRecord{{low, high, none}, {none, high, low}, {high, low}} {
		res := Reconcile(ref, cand, ReconcileOptions{})
		require.Len(t, res.TruePositives, 1)
		assert.Equal(t, "high", res.TruePositives[0].EntityValue)
	}
}

// TestReconcileOverlap checks the Jaccard overlap of match keys
func TestReconcileOverlap(t *testing.T) {
	ref := []utils.DetectionRecord{
		record("A", "1.txt", ssn, ""),
		record("A", "2.txt", ssn, ""),
		record("A", "3.txt", ssn, ""),
	}
	cand := []utils.DetectionRecord{
		record("B", "2.txt", ssn, ""),
		record("B", "3.txt", ssn, ""),
		record("B", "4.txt", ssn, ""),
	}

	res := Reconcile(ref, cand, ReconcileOptions{})
	assert.InDelta(t, 50.0, res.OverlapPercentage, 0.001)
}

// fabricatedScenario builds 20 pattern detections: 10 carry real employee IDs
// and 10 carry IDs that are well formed but do not exist
func fabricatedScenario(t *testing.T) (*GroundTruth, []utils.DetectionRecord, []utils.DetectionRecord) {
	t.Helper()

	var genuine []string
	var pattern, edm []utils.DetectionRecord
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("EMP-%06d", 100000+i)
		genuine = append(genuine, id)

		file := fmt.Sprintf("roster-%02d.xlsx", i)
		pattern = append(pattern, record("PatternScan", file, "Employee ID", id))
		edm = append(edm, record("ExactDataMatch", file, "Employee ID", id))
	}
	for i := 0; i < 10; i++ {
		fake := fmt.Sprintf("EMP-%06d", 900000+i)
		pattern = append(pattern, record("PatternScan", fmt.Sprintf("synthetic-%02d.xlsx", i), "Employee ID", fake))
	}

	gt, err := NewGroundTruth(genuine, GroundTruthConfig{IDPattern: `EMP-\d{6}`})
	require.NoError(t, err)
	return gt, pattern, edm
}

// TestReconcileGroundTruthFabricatedIDs is the mixed real and fabricated scenario
func TestReconcileGroundTruthFabricatedIDs(t *testing.T) {
	gt, pattern, edm := fabricatedScenario(t)

	res := ReconcileGroundTruth(pattern, gt)
	assert.True(t, res.GroundTruth)
	assert.Len(t, res.TruePositives, 10)
	assert.Len(t, res.FalsePositives, 10)
	assert.Empty(t, res.FalseNegatives)
	assert.Equal(t, "50.00", res.Metrics.Precision.Format())
	assert.Equal(t, "100.00", res.Metrics.Recall.Format())

	res = ReconcileGroundTruth(edm, gt)
	assert.Len(t, res.TruePositives, 10)
	assert.Empty(t, res.FalsePositives)
	assert.Empty(t, res.FalseNegatives)
	assert.Equal(t, "100.00", res.Metrics.Precision.Format())

	// Pattern scan measured against the exact-match method instead
	res = Reconcile(edm, pattern, ReconcileOptions{})
	assert.Len(t, res.TruePositives, 10)
	assert.Len(t, res.FalsePositives, 10)
	assert.Equal(t, "50.00", res.Metrics.Precision.Format())
}

// TestReconcileGroundTruthMissedIDs checks genuine IDs nobody reported are false negatives
func TestReconcileGroundTruthMissedIDs(t *testing.T) {
	gt, _, edm := fabricatedScenario(t)

	res := ReconcileGroundTruth(edm[:7], gt)
	assert.Len(t, res.TruePositives, 7)
	require.Len(t, res.FalseNegatives, 3)
	assert.Equal(t, GroundTruthName, res.FalseNegatives[0].SourceMethod)
	assert.Equal(t, "EMP-100007", res.FalseNegatives[0].EntityValue)
	assert.InDelta(t, 70.0, res.Metrics.Recall.Percent, 0.001)
}

// TestReconcileGroundTruthManifest checks key matching plus genuineness with expected detections
func TestReconcileGroundTruthManifest(t *testing.T) {
	gt, err := NewGroundTruth([]string{"EMP-100001", "EMP-100002"}, GroundTruthConfig{})
	require.NoError(t, err)
	gt = gt.WithRecords([]utils.DetectionRecord{
		record(GroundTruthName, "a.xlsx", "Employee ID", "EMP-100001"),
		record(GroundTruthName, "b.xlsx", "Employee ID", "EMP-100002"),
		record(GroundTruthName, "c.xlsx", "Employee ID", "EMP-999999"),
	})

	cand := []utils.DetectionRecord{
		record("PatternScan", "a.xlsx", "Employee ID", "EMP-100001"),
		// Right file and type, but the value is not a real employee
		record("PatternScan", "b.xlsx", "Employee ID", "EMP-555555"),
		record("PatternScan", "d.xlsx", "Employee ID", "EMP-100002"),
	}

	res := ReconcileGroundTruth(cand, gt)
	assert.Len(t, res.TruePositives, 1)
	assert.Len(t, res.FalsePositives, 2)
	// c.xlsx carries an ID outside the reference set and is not expected to be found
	assert.Empty(t, res.FalseNegatives)
}

// TestReconcileGroundTruthHashed checks digest references
func TestReconcileGroundTruthHashed(t *testing.T) {
	gt, err := NewGroundTruth([]string{Fingerprint("EMP-100001")}, GroundTruthConfig{Hashed: true})
	require.NoError(t, err)

	cand := []utils.DetectionRecord{
		record("PatternScan", "a.xlsx", "Employee ID", "EMP-100001"),
		record("PatternScan", "b.xlsx", "Employee ID", "EMP-100002"),
	}
	res := ReconcileGroundTruth(cand, gt)
	assert.Len(t, res.TruePositives, 1)
	assert.Len(t, res.FalsePositives, 1)
	assert.Empty(t, res.FalseNegatives)
}

// TestReconcileDeterministicOrder checks buckets do not depend on input order
func TestReconcileDeterministicOrder(t *testing.T) {
	recs := []utils.DetectionRecord{
		record("A", "c.txt", ssn, ""),
		record("A", "a.txt", ssn, ""),
		record("A", "b.txt", ssn, ""),
	}
	reversed := []utils.DetectionRecord{recs[2], recs[1], recs[0]}

	assert.Equal(t, Reconcile(nil, recs, ReconcileOptions{}).FalsePositives,
		Reconcile(nil, reversed, ReconcileOptions{}).FalsePositives)
}

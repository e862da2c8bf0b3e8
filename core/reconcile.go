package core

import (
	"sort"

	"github.com/SamuelRCrider/sitrecon/utils"
)

// Bucket names used in drill-down output
const (
	BucketTruePositive  = "TP"
	BucketFalsePositive = "FP"
	BucketFalseNegative = "FN"
)

// GenuineChecker confirms that a matched value is a real identifier
type GenuineChecker interface {
	IsGenuine(value string) bool
}

// KeyFunc derives the key under which two records count as the same detection
type KeyFunc func(rec utils.DetectionRecord) utils.MatchKey

// ReconcileOptions tunes a comparison. The zero value compares by match key
// without ground-truth confirmation.
type ReconcileOptions struct {
	Key KeyFunc

	// When set, a candidate whose key exists in the reference but whose value
	// is not confirmed genuine is a false positive
	GroundTruth GenuineChecker
}

// ComparisonResult is the outcome of reconciling a candidate set against a reference
type ComparisonResult struct {
	Scenario    string
	Reference   string
	Candidate   string
	GroundTruth bool

	TruePositives  []utils.DetectionRecord
	FalsePositives []utils.DetectionRecord
	FalseNegatives []utils.DetectionRecord

	Metrics           Metrics
	OverlapPercentage float64

	// Set when the filters left the candidate and reference both empty
	NoResultsAfterFilter bool

	Notes []string
}

// Reconcile compares candidate against reference by match key.
// Duplicate keys on either side collapse to the record with the higher confidence.
func Reconcile(reference, candidate []utils.DetectionRecord, opts ReconcileOptions) ComparisonResult {
	key := opts.Key
	if key == nil {
		key = utils.DetectionRecord.Key
	}

	ref, refIndex := collapseByKey(reference, key)
	cand, candIndex := collapseByKey(candidate, key)

	var res ComparisonResult
	for _, c := range cand {
		if _, ok := refIndex[key(c)]; !ok {
			res.FalsePositives = append(res.FalsePositives, c)
			continue
		}
		if opts.GroundTruth != nil && !opts.GroundTruth.IsGenuine(c.EntityValue) {
			res.FalsePositives = append(res.FalsePositives, c)
			continue
		}
		res.TruePositives = append(res.TruePositives, c)
	}

	common := 0
	for _, r := range ref {
		if _, ok := candIndex[key(r)]; ok {
			common++
			continue
		}
		// A fabricated reference entry that nobody reported is a correct rejection
		if opts.GroundTruth != nil && !opts.GroundTruth.IsGenuine(r.EntityValue) {
			continue
		}
		res.FalseNegatives = append(res.FalseNegatives, r)
	}

	res.GroundTruth = opts.GroundTruth != nil
	res.OverlapPercentage = percent(common, len(ref)+len(cand)-common)
	res.finish()
	return res
}

// ReconcileGroundTruth compares a candidate set against the ground truth. With
// expected detections available the comparison is key based; against a flat
// identifier list every reported key counts as present, the value decides
// between true and false positive, and identifiers nobody reported are the
// false negatives.
func ReconcileGroundTruth(candidate []utils.DetectionRecord, gt *GroundTruth) ComparisonResult {
	if gt.Records() != nil {
		return Reconcile(gt.Records(), candidate, ReconcileOptions{GroundTruth: gt})
	}

	cand, _ := collapseByKey(candidate, utils.DetectionRecord.Key)

	res := ComparisonResult{GroundTruth: true}
	reported := make(map[string]struct{})
	for _, c := range cand {
		if !gt.IsGenuine(c.EntityValue) {
			res.FalsePositives = append(res.FalsePositives, c)
			continue
		}
		res.TruePositives = append(res.TruePositives, c)
		reported[gt.lookupKey(c.EntityValue)] = struct{}{}
	}
	for _, id := range gt.IDs() {
		if _, ok := reported[id]; ok {
			continue
		}
		res.FalseNegatives = append(res.FalseNegatives, utils.DetectionRecord{
			SourceMethod: GroundTruthName,
			EntityValue:  id,
		})
	}

	res.OverlapPercentage = percent(len(res.TruePositives), len(res.TruePositives)+len(res.FalsePositives)+len(res.FalseNegatives))
	res.finish()
	return res
}

func (r *ComparisonResult) finish() {
	sortRecords(r.TruePositives)
	sortRecords(r.FalsePositives)
	sortRecords(r.FalseNegatives)
	r.Metrics = Calculate(len(r.TruePositives), len(r.FalsePositives), len(r.FalseNegatives))
	r.Notes = append(r.Notes, r.Metrics.Notes()...)
}

// Buckets returns the drill-down records in TP, FP, FN order
func (r ComparisonResult) Buckets() []struct {
	Name    string
	Records []utils.DetectionRecord
} {
	return []struct {
		Name    string
		Records []utils.DetectionRecord
	}{
		{BucketTruePositive, r.TruePositives},
		{BucketFalsePositive, r.FalsePositives},
		{BucketFalseNegative, r.FalseNegatives},
	}
}

func collapseByKey(records []utils.DetectionRecord, key KeyFunc) ([]utils.DetectionRecord, map[utils.MatchKey]int) {
	index := make(map[utils.MatchKey]int, len(records))
	out := make([]utils.DetectionRecord, 0, len(records))
	for _, rec := range records {
		k := key(rec)
		if i, ok := index[k]; ok {
			if rec.Confidence.Higher(out[i].Confidence) {
				out[i] = rec
			}
			continue
		}
		index[k] = len(out)
		out = append(out, rec)
	}
	return out, index
}

func sortRecords(records []utils.DetectionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.FileIdentifier != b.FileIdentifier {
			return a.FileIdentifier < b.FileIdentifier
		}
		if a.EntityType != b.EntityType {
			return a.EntityType < b.EntityType
		}
		if a.SourceMethod != b.SourceMethod {
			return a.SourceMethod < b.SourceMethod
		}
		return a.EntityValue < b.EntityValue
	})
}

func percent(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return 100 * float64(n) / float64(d)
}

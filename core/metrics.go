package core

import "strconv"

// Ratio is a percentage that may be undefined
type Ratio struct {
	Percent float64
	Defined bool
}

func defined(p float64) Ratio {
	return Ratio{Percent: p, Defined: true}
}

// Undefined is the value of a ratio whose denominator is empty
var Undefined = Ratio{}

// Format renders the ratio with two decimals, or "N/A"
func (r Ratio) Format() string {
	if !r.Defined {
		return "N/A"
	}
	return strconv.FormatFloat(r.Percent, 'f', 2, 64)
}

func (r Ratio) String() string {
	if !r.Defined {
		return "N/A"
	}
	return r.Format() + "%"
}

// Metrics is the confusion-matrix summary of one comparison
type Metrics struct {
	TruePositives  int
	FalsePositives int
	FalseNegatives int
	Precision      Ratio
	Recall         Ratio
	F1             Ratio

	// Share of the candidate's detections that are false positives
	FalsePositiveRate Ratio
}

// Note on the recall edge case, surfaced alongside results
const NoteRecallUndefined = "recall undefined: reference contains no positives"

// Calculate derives precision, recall, F1 and the false-positive rate from the counts.
// Without true negatives the rate is taken over the candidate's detections.
//
// Precision is 100% when nothing was predicted: no claims, no false claims.
// Recall is undefined when the reference holds no positives, since neither 0%
// nor 100% would be truthful. F1 is undefined whenever either input is, and 0
// when both are 0.
func Calculate(tp, fp, fn int) Metrics {
	m := Metrics{TruePositives: tp, FalsePositives: fp, FalseNegatives: fn}

	if tp+fp == 0 {
		m.Precision = defined(100)
		m.FalsePositiveRate = defined(0)
	} else {
		m.Precision = defined(100 * float64(tp) / float64(tp+fp))
		m.FalsePositiveRate = defined(100 * float64(fp) / float64(tp+fp))
	}

	if tp+fn == 0 {
		m.Recall = Undefined
	} else {
		m.Recall = defined(100 * float64(tp) / float64(tp+fn))
	}

	switch {
	case !m.Precision.Defined || !m.Recall.Defined:
		m.F1 = Undefined
	case m.Precision.Percent+m.Recall.Percent == 0:
		m.F1 = defined(0)
	default:
		p, r := m.Precision.Percent, m.Recall.Percent
		m.F1 = defined(2 * p * r / (p + r))
	}
	return m
}

// Notes returns the edge-case notes that apply to the metrics
func (m Metrics) Notes() []string {
	var notes []string
	if !m.Recall.Defined {
		notes = append(notes, NoteRecallUndefined)
	}
	return notes
}

// Totals micro-averages a set of results: counts are summed and the metrics
// recomputed from the sums. Overlap is the mean of the scenario overlaps.
func Totals(results []ComparisonResult) (Metrics, float64) {
	var tp, fp, fn int
	var overlap float64
	for _, r := range results {
		tp += len(r.TruePositives)
		fp += len(r.FalsePositives)
		fn += len(r.FalseNegatives)
		overlap += r.OverlapPercentage
	}
	if len(results) > 0 {
		overlap /= float64(len(results))
	}
	return Calculate(tp, fp, fn), overlap
}

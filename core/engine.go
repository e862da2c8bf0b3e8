package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/SamuelRCrider/sitrecon/utils"
)

// Note attached to scenarios whose inputs were emptied by the filters
const NoteNoResultsAfterFilter = "no results after filter"

// Row errors listed individually in a warning before the rest are summarized
const maxRowWarnings = 5

// RunSummary is everything a run produced, ready for the emitters
type RunSummary struct {
	RunID      string
	ConfigHash string

	// One entry per enabled method, in configuration order
	Loads []LoadResult

	// One entry per computed scenario, in configuration order
	Results []ComparisonResult

	Warnings []Warning

	GroundTruthLoaded bool
}

// LoadedMethods returns the names of the methods whose export was read
func (s *RunSummary) LoadedMethods() []string {
	var names []string
	for _, l := range s.Loads {
		if l.Loaded() {
			names = append(names, l.Method)
		}
	}
	return names
}

func (s *RunSummary) warn(audit *AuditLogger, eventType string, w Warning) {
	s.Warnings = append(s.Warnings, w)
	audit.Warn(eventType, w.Method, w.Message, map[string]string{"category": string(w.Category)})
}

// Execute runs the pipeline: load every source, check the minimum method count,
// filter, and reconcile every scenario. Recoverable failures become warnings on
// the summary. The summary is returned alongside an InsufficientData error so
// that callers can still show what did load.
func Execute(ctx context.Context, cfg Config, audit *AuditLogger) (*RunSummary, error) {
	summary := &RunSummary{RunID: audit.RunID(), ConfigHash: cfg.Hash}

	criteria, err := cfg.Criteria()
	if err != nil {
		return nil, newReconError(CategoryConfigParse, "", cfg.Source, err)
	}
	entityTypes := NewEntityTypeTable(cfg.EntityTypes)

	var gt *GroundTruth
	if cfg.GroundTruth != nil {
		gt, err = LoadGroundTruth(cfg.BaseDir, *cfg.GroundTruth, entityTypes)
		switch {
		case errors.Is(err, CategorySchemaMismatch):
			return nil, err
		case err != nil:
			summary.warn(audit, EventMethodSkipped, Warning{
				Category: CategoryPartialLoadFailure,
				Method:   GroundTruthName,
				Message:  err.Error(),
			})
			gt = nil
		default:
			summary.GroundTruthLoaded = true
			audit.Info(EventMethodLoaded, GroundTruthName, "", map[string]string{
				"identifiers": strconv.Itoa(gt.Len()),
				"records":     strconv.Itoa(len(gt.Records())),
			})
		}
	}

	loads, err := LoadAll(ctx, cfg, entityTypes)
	if err != nil {
		return nil, err
	}
	summary.Loads = loads

	records := make(map[string][]utils.DetectionRecord, len(loads))
	for _, l := range loads {
		if !l.Loaded() {
			summary.warn(audit, EventMethodSkipped, Warning{
				Category: CategoryPartialLoadFailure,
				Method:   l.Method,
				Message:  l.Err.Error(),
			})
			continue
		}
		records[l.Method] = l.Records
		audit.Info(EventMethodLoaded, l.Method, "", map[string]string{
			"path":       l.Path,
			"records":    strconv.Itoa(len(l.Records)),
			"duplicates": strconv.Itoa(l.Duplicates),
			"skipped":    strconv.Itoa(len(l.Skipped)),
		})
		if len(l.Skipped) > 0 {
			summary.warn(audit, EventRowsSkipped, rowWarning(l))
			for _, rowErr := range l.Skipped {
				audit.Log(AuditEvent{
					EventType: EventRowsSkipped,
					Severity:  SeverityWarning,
					Method:    l.Method,
					Path:      rowErr.Path,
					Message:   rowErr.Error(),
					Detail:    true,
				})
			}
		}
	}

	if len(records) < cfg.MinMethods {
		return summary, newReconError(CategoryInsufficientData, "", "",
			fmt.Errorf("%d of %d enabled methods loaded, at least %d required", len(records), len(loads), cfg.MinMethods))
	}

	// Filtering happens once per source; scenarios share the filtered views
	filtered := make(map[string]FilterResult, len(records))
	for name, recs := range records {
		filtered[name] = Apply(recs, criteria, entityTypes)
	}
	var gtFiltered FilterResult
	if gt != nil {
		gtFiltered = Apply(gt.Records(), criteria.Scope(), entityTypes)
	}

	scenarios := cfg.ResolvedScenarios()
	results := make([]*ComparisonResult, len(scenarios))

	var g errgroup.Group
	for i, sc := range scenarios {
		cand, ok := filtered[sc.Candidate]
		if !ok {
			summary.warn(audit, EventMethodSkipped, skippedScenario(sc, sc.Candidate))
			continue
		}

		if sc.Reference == GroundTruthName {
			if gt == nil {
				summary.warn(audit, EventMethodSkipped, skippedScenario(sc, GroundTruthName))
				continue
			}
			g.Go(func() error {
				ref := gt
				if gt.Records() != nil {
					ref = gt.WithRecords(gtFiltered.Records)
				}
				res := ReconcileGroundTruth(cand.Records, ref)
				res.markEmpty(cand.NoResultsAfterFilter && (gt.Records() == nil || len(gtFiltered.Records) == 0))
				results[i] = res.named(sc)
				return nil
			})
			continue
		}

		ref, ok := filtered[sc.Reference]
		if !ok {
			summary.warn(audit, EventMethodSkipped, skippedScenario(sc, sc.Reference))
			continue
		}
		g.Go(func() error {
			res := Reconcile(ref.Records, cand.Records, ReconcileOptions{})
			res.markEmpty(ref.NoResultsAfterFilter && cand.NoResultsAfterFilter)
			results[i] = res.named(sc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, res := range results {
		if res == nil {
			continue
		}
		summary.Results = append(summary.Results, *res)
		audit.Info(EventScenarioComputed, "", res.Scenario, map[string]string{
			"reference":       res.Reference,
			"candidate":       res.Candidate,
			"true_positives":  strconv.Itoa(len(res.TruePositives)),
			"false_positives": strconv.Itoa(len(res.FalsePositives)),
			"false_negatives": strconv.Itoa(len(res.FalseNegatives)),
			"precision":       res.Metrics.Precision.Format(),
			"recall":          res.Metrics.Recall.Format(),
			"f1":              res.Metrics.F1.Format(),
			"fp_rate":         res.Metrics.FalsePositiveRate.Format(),
		})
	}
	return summary, nil
}

func (r ComparisonResult) named(sc ScenarioConfig) *ComparisonResult {
	r.Scenario = sc.Name
	r.Reference = sc.Reference
	r.Candidate = sc.Candidate
	return &r
}

func (r *ComparisonResult) markEmpty(empty bool) {
	if empty {
		r.NoResultsAfterFilter = true
		r.Notes = append(r.Notes, NoteNoResultsAfterFilter)
	}
}

func skippedScenario(sc ScenarioConfig, missing string) Warning {
	return Warning{
		Category: CategoryPartialLoadFailure,
		Method:   missing,
		Message:  fmt.Sprintf("scenario %q skipped: %s not loaded", sc.Name, missing),
	}
}

func rowWarning(l LoadResult) Warning {
	msg := fmt.Sprintf("%d malformed rows skipped in %s", len(l.Skipped), l.Path)
	for i, rowErr := range l.Skipped {
		if i == maxRowWarnings {
			msg += fmt.Sprintf("; and %d more", len(l.Skipped)-maxRowWarnings)
			break
		}
		msg += fmt.Sprintf("; line %d: %v", rowErr.Line, rowErr.Err)
	}
	return Warning{Category: CategoryPartialLoadFailure, Method: l.Method, Message: msg}
}

package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/SamuelRCrider/sitrecon/utils"
)

// Predicate decides whether a record stays in the filtered view
type Predicate func(rec utils.DetectionRecord) bool

// FilterCriteria holds the independently toggleable filters. A zero-valued
// field is an inactive filter.
type FilterCriteria struct {
	EntityTypes   []string
	Locations     []string
	From          time.Time
	To            time.Time
	MinConfidence *int
}

// FilterResult is a filtered view over a record set
type FilterResult struct {
	Records []utils.DetectionRecord

	// Set when active filters removed every record; this is an outcome, not a fault
	NoResultsAfterFilter bool
}

// Active reports whether any filter is enabled
func (c FilterCriteria) Active() bool {
	return len(c.Predicates(nil)) > 0
}

// Predicates returns one predicate per active filter. Entity types are resolved
// through the table when one is given.
func (c FilterCriteria) Predicates(entityTypes *EntityTypeTable) []Predicate {
	var preds []Predicate
	if len(c.EntityTypes) > 0 {
		preds = append(preds, EntityTypePredicate(c.EntityTypes, entityTypes))
	}
	if len(c.Locations) > 0 {
		preds = append(preds, LocationPredicate(c.Locations))
	}
	if !c.From.IsZero() || !c.To.IsZero() {
		preds = append(preds, DateRangePredicate(c.From, c.To))
	}
	if c.MinConfidence != nil {
		preds = append(preds, MinConfidencePredicate(*c.MinConfidence))
	}
	return preds
}

// Scope returns the criteria restricted to the filters that describe what is
// being measured (types and locations), dropping those that describe how a
// method reported it
func (c FilterCriteria) Scope() FilterCriteria {
	return FilterCriteria{EntityTypes: c.EntityTypes, Locations: c.Locations}
}

// Apply returns the records passing every active filter. The input is not modified.
func Apply(records []utils.DetectionRecord, criteria FilterCriteria, entityTypes *EntityTypeTable) FilterResult {
	preds := criteria.Predicates(entityTypes)
	res := FilterResult{Records: ApplyPredicates(records, preds...)}
	res.NoResultsAfterFilter = len(preds) > 0 && len(res.Records) == 0
	return res
}

// ApplyPredicates keeps the records for which every predicate holds
func ApplyPredicates(records []utils.DetectionRecord, preds ...Predicate) []utils.DetectionRecord {
	out := make([]utils.DetectionRecord, 0, len(records))
next:
	for _, rec := range records {
		for _, p := range preds {
			if !p(rec) {
				continue next
			}
		}
		out = append(out, rec)
	}
	return out
}

// EntityTypePredicate allows the listed types, compared case-insensitively after alias resolution
func EntityTypePredicate(allowed []string, entityTypes *EntityTypeTable) Predicate {
	set := make(map[string]struct{}, len(allowed))
	for _, t := range allowed {
		if entityTypes != nil {
			t = entityTypes.Canonical(t)
		}
		set[foldKey(t)] = struct{}{}
	}
	return func(rec utils.DetectionRecord) bool {
		_, ok := set[foldKey(rec.EntityType)]
		return ok
	}
}

// LocationPredicate allows locations matching any of the glob patterns,
// case-insensitively. A pattern without glob syntax must match exactly.
func LocationPredicate(patterns []string) Predicate {
	folded := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.TrimRight(foldKey(p), "/"); p != "" {
			folded = append(folded, p)
		}
	}
	return func(rec utils.DetectionRecord) bool {
		loc := strings.TrimRight(foldKey(rec.Location), "/")
		for _, p := range folded {
			if p == loc {
				return true
			}
			if ok, err := doublestar.Match(p, loc); err == nil && ok {
				return true
			}
		}
		return false
	}
}

// DateRangePredicate allows records stamped within [from, to]. A zero bound is open.
func DateRangePredicate(from, to time.Time) Predicate {
	return func(rec utils.DetectionRecord) bool {
		if !from.IsZero() && rec.Timestamp.Before(from) {
			return false
		}
		if !to.IsZero() && rec.Timestamp.After(to) {
			return false
		}
		return true
	}
}

// MinConfidencePredicate allows records at or above min. Records from methods
// that report no confidence cannot be judged and pass.
func MinConfidencePredicate(min int) Predicate {
	return func(rec utils.DetectionRecord) bool {
		return !rec.Confidence.Reported || rec.Confidence.Value >= min
	}
}

// ParseDateBound parses an ISO-8601 date or timestamp. A date-only upper bound
// covers the whole day.
func ParseDateBound(s string, upper bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD, YYYY-MM-DDTHH:MM:SS or RFC 3339", s)
	}
	if upper {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

package core

import (
	"fmt"
	"math"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/SamuelRCrider/sitrecon/utils"
)

// SchemaMapping declares which source column feeds each canonical field
type SchemaMapping struct {
	FileIdentifier string `json:"fileIdentifier" yaml:"fileIdentifier"`
	Location       string `json:"location,omitempty" yaml:"location,omitempty"`
	EntityType     string `json:"entityType" yaml:"entityType"`
	EntityValue    string `json:"entityValue,omitempty" yaml:"entityValue,omitempty"`

	// Nil means the method does not report confidence
	Confidence *string `json:"confidence" yaml:"confidence"`

	Timestamp       string `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	TimestampLayout string `json:"timestampLayout,omitempty" yaml:"timestampLayout,omitempty"`

	// Splits cells holding several type labels, e.g. "SSN; Credit Card Number"
	EntityTypeSeparator string `json:"entityTypeSeparator,omitempty" yaml:"entityTypeSeparator,omitempty"`
}

// RawRow is one source row keyed by column name
type RawRow map[string]string

// RowFunc translates one source row into canonical records
type RowFunc func(row RawRow) ([]utils.DetectionRecord, error)

// Purview exports confidence as a level rather than a number
var confidenceLevels = map[string]int{
	"high":   85,
	"medium": 75,
	"low":    65,
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 15:04",
	"2006-01-02",
}

// Mapper binds a method's schema mapping to the canonical record shape
type Mapper struct {
	method      string
	mapping     SchemaMapping
	entityTypes *EntityTypeTable
	fallback    time.Time
}

// NewMapper validates that the required canonical fields are mapped
func NewMapper(method string, mapping SchemaMapping, entityTypes *EntityTypeTable) (*Mapper, error) {
	if strings.TrimSpace(mapping.FileIdentifier) == "" {
		return nil, schemaMismatchf(method, "no source column configured for fileIdentifier")
	}
	if strings.TrimSpace(mapping.EntityType) == "" {
		return nil, schemaMismatchf(method, "no source column configured for entityType")
	}
	if mapping.Confidence != nil && strings.TrimSpace(*mapping.Confidence) == "" {
		mapping.Confidence = nil
	}
	if entityTypes == nil {
		entityTypes = NewEntityTypeTable(nil)
	}
	return &Mapper{method: method, mapping: mapping, entityTypes: entityTypes}, nil
}

// Method returns the source method the mapper belongs to
func (m *Mapper) Method() string {
	return m.method
}

// WithFallbackTime returns a copy of the mapper that stamps records with t when
// no timestamp column is mapped
func (m *Mapper) WithFallbackTime(t time.Time) *Mapper {
	c := *m
	c.fallback = t
	return &c
}

// Bind checks the configured columns against the actual header and returns the
// row translation function
func (m *Mapper) Bind(header []string) (RowFunc, error) {
	columns := make(map[string]string, len(header))
	for _, h := range header {
		columns[headerKey(h)] = h
	}

	resolve := func(field, column string) (string, error) {
		if column == "" {
			return "", nil
		}
		actual, ok := columns[headerKey(column)]
		if !ok {
			return "", schemaMismatchf(m.method, "column %q mapped to %s not found in header", column, field)
		}
		return actual, nil
	}

	var (
		cols struct {
			file, location, entityType, value, confidence, timestamp string
		}
		err error
	)
	if cols.file, err = resolve("fileIdentifier", m.mapping.FileIdentifier); err != nil {
		return nil, err
	}
	if cols.entityType, err = resolve("entityType", m.mapping.EntityType); err != nil {
		return nil, err
	}
	if cols.location, err = resolve("location", m.mapping.Location); err != nil {
		return nil, err
	}
	if cols.value, err = resolve("entityValue", m.mapping.EntityValue); err != nil {
		return nil, err
	}
	if m.mapping.Confidence != nil {
		if cols.confidence, err = resolve("confidence", *m.mapping.Confidence); err != nil {
			return nil, err
		}
	}
	if cols.timestamp, err = resolve("timestamp", m.mapping.Timestamp); err != nil {
		return nil, err
	}

	return func(row RawRow) ([]utils.DetectionRecord, error) {
		fileName := strings.TrimSpace(row[cols.file])
		if fileName == "" {
			return nil, fmt.Errorf("empty %s", cols.file)
		}
		location := strings.TrimSpace(row[cols.location])

		labels := m.splitTypes(row[cols.entityType])
		if len(labels) == 0 {
			return nil, fmt.Errorf("empty %s", cols.entityType)
		}

		confidence := utils.NotApplicable()
		if cols.confidence != "" {
			c, err := ParseConfidence(row[cols.confidence])
			if err != nil {
				return nil, err
			}
			confidence = c
		}

		ts := m.fallback
		if cols.timestamp != "" {
			t, err := m.parseTimestamp(row[cols.timestamp])
			if err != nil {
				return nil, err
			}
			ts = t
		}

		base := utils.DetectionRecord{
			SourceMethod:   m.method,
			FileIdentifier: FileIdentifier(fileName, location),
			FileName:       fileName,
			EntityValue:    strings.TrimSpace(row[cols.value]),
			Location:       location,
			Confidence:     confidence,
			Timestamp:      ts,
		}

		records := make([]utils.DetectionRecord, 0, len(labels))
		seen := make(map[string]struct{}, len(labels))
		for _, label := range labels {
			rec := base
			rec.EntityType = m.entityTypes.Canonical(label)
			rec.Category = string(m.entityTypes.Category(rec.EntityType))
			if _, dup := seen[rec.EntityType]; dup {
				continue
			}
			seen[rec.EntityType] = struct{}{}
			records = append(records, rec)
		}
		return records, nil
	}, nil
}

func (m *Mapper) splitTypes(cell string) []string {
	parts := []string{cell}
	if m.mapping.EntityTypeSeparator != "" {
		parts = strings.Split(cell, m.mapping.EntityTypeSeparator)
	}
	labels := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			labels = append(labels, p)
		}
	}
	return labels
}

func (m *Mapper) parseTimestamp(cell string) (time.Time, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return m.fallback, nil
	}
	layouts := timestampLayouts
	if m.mapping.TimestampLayout != "" {
		layouts = []string{m.mapping.TimestampLayout}
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, cell); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", cell)
}

// ParseConfidence accepts integers, percentages and confidence levels.
// An empty cell means the row carries no confidence.
func ParseConfidence(cell string) (utils.Confidence, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return utils.NotApplicable(), nil
	}
	if v, ok := confidenceLevels[strings.ToLower(cell)]; ok {
		return utils.ConfidenceOf(v), nil
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(cell, "%"), 64)
	if err != nil {
		return utils.Confidence{}, fmt.Errorf("invalid confidence %q", cell)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return utils.Confidence{}, fmt.Errorf("invalid confidence %q", cell)
	}
	if f < 0 || f > 100 {
		return utils.Confidence{}, fmt.Errorf("confidence %q out of range 0-100", cell)
	}
	return utils.ConfidenceOf(int(f + 0.5)), nil
}

// FileIdentifier builds the case-insensitive composite key of a file and the
// site or channel containing it
func FileIdentifier(fileName, location string) string {
	name := normalizePath(fileName)
	if strings.Contains(name, "/") {
		name = path.Base(name)
	}
	loc := normalizeLocation(location)
	if loc == "" {
		return name
	}
	return name + "@" + loc
}

func normalizePath(s string) string {
	s = strings.TrimSpace(s)
	if u, err := url.PathUnescape(s); err == nil {
		s = u
	}
	s = strings.ReplaceAll(s, "\\", "/")
	return foldKey(norm.NFC.String(s))
}

func normalizeLocation(s string) string {
	s = normalizePath(s)
	for _, scheme := range []string{"https://", "http://"} {
		s = strings.TrimPrefix(s, scheme)
	}
	return strings.TrimRight(s, "/")
}

func headerKey(h string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
}

// Casers are stateful, so each call gets its own
func foldKey(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

package core

import (
	"bufio"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/SamuelRCrider/sitrecon/utils"
)

// GroundTruthName is the reserved reference name of the ground truth in scenarios
const GroundTruthName = "groundTruth"

// GroundTruth is the authoritative set of real entity identifiers. It tells
// genuine identifiers apart from fabricated ones that are merely format-valid.
type GroundTruth struct {
	ids       map[string]struct{}
	idPattern *regexp.Regexp
	hashed    bool

	// Expected detections, present only when the source maps file and type columns
	records []utils.DetectionRecord
}

// NewGroundTruth builds a resolver over the given identifiers
func NewGroundTruth(ids []string, cfg GroundTruthConfig) (*GroundTruth, error) {
	g := &GroundTruth{
		ids:    make(map[string]struct{}, len(ids)),
		hashed: cfg.Hashed,
	}
	if cfg.IDPattern != "" {
		re, err := regexp.Compile(cfg.IDPattern)
		if err != nil {
			return nil, fmt.Errorf("invalid idPattern: %w", err)
		}
		g.idPattern = re
	}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if g.hashed {
			id = strings.ToLower(id)
		}
		g.ids[id] = struct{}{}
	}
	return g, nil
}

// DeriveID extracts the identifier from a matched value. With an idPattern the
// first match is used, or its first capture group when the pattern has one.
func (g *GroundTruth) DeriveID(value string) string {
	value = strings.TrimSpace(value)
	if g.idPattern == nil || value == "" {
		return value
	}
	m := g.idPattern.FindStringSubmatch(value)
	switch {
	case m == nil:
		return ""
	case len(m) > 1:
		return m[1]
	default:
		return m[0]
	}
}

// IsGenuine reports whether a value or identifier is in the reference set
func (g *GroundTruth) IsGenuine(value string) bool {
	id := g.lookupKey(value)
	if id == "" {
		return false
	}
	_, ok := g.ids[id]
	return ok
}

// lookupKey returns the form of value stored in the reference set. A value that
// already is a reference entry (a digest, for hashed references) is used as is.
func (g *GroundTruth) lookupKey(value string) string {
	raw := strings.TrimSpace(value)
	if g.hashed {
		raw = strings.ToLower(raw)
	}
	if _, ok := g.ids[raw]; ok {
		return raw
	}
	id := g.DeriveID(value)
	if id == "" || !g.hashed {
		return id
	}
	return Fingerprint(id)
}

// Len returns the number of distinct identifiers
func (g *GroundTruth) Len() int {
	return len(g.ids)
}

// IDs returns the identifiers in sorted order. For a hashed reference these are digests.
func (g *GroundTruth) IDs() []string {
	ids := make([]string, 0, len(g.ids))
	for id := range g.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Records returns the expected detections, or nil when the source is a flat ID list
func (g *GroundTruth) Records() []utils.DetectionRecord {
	return g.records
}

// WithRecords returns a view of the reference with its expected detections
// replaced, e.g. by a filtered subset. The identifier set is shared.
func (g *GroundTruth) WithRecords(records []utils.DetectionRecord) *GroundTruth {
	v := *g
	if records == nil {
		records = []utils.DetectionRecord{}
	}
	v.records = records
	return &v
}

// Hashed reports whether the reference holds digests instead of plain identifiers
func (g *GroundTruth) Hashed() bool {
	return g.hashed
}

// Fingerprint returns the lowercase SHA-256 hex digest used by hashed references
func Fingerprint(id string) string {
	hash := sha256.Sum256([]byte(strings.TrimSpace(id)))
	return hex.EncodeToString(hash[:])
}

// LoadGroundTruth reads the reference identifiers from a text, CSV, JSON or YAML file
func LoadGroundTruth(baseDir string, cfg GroundTruthConfig, entityTypes *EntityTypeTable) (*GroundTruth, error) {
	path := cfg.Path
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, newReconError(CategoryPartialLoadFailure, GroundTruthName, path, err)
	}
	defer f.Close()

	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}

	var (
		ids     []string
		records []utils.DetectionRecord
	)
	switch format {
	case "txt", "text", "":
		ids, err = readIDLines(f)
	case "csv":
		ids, records, err = readIDCSV(f, cfg, entityTypes)
	case "json", "yaml", "yml":
		ids, err = readIDDocument(f)
	default:
		err = fmt.Errorf("unsupported format %q", format)
	}
	if err != nil {
		return nil, withPath(newOrKeep(err, path), path)
	}
	if len(ids) == 0 {
		return nil, newReconError(CategoryPartialLoadFailure, GroundTruthName, path, errors.New("no identifiers found"))
	}

	g, err := NewGroundTruth(ids, cfg)
	if err != nil {
		return nil, newReconError(CategoryConfigParse, GroundTruthName, path, err)
	}
	if records != nil {
		g.records = Coalesce(records)
	}
	return g, nil
}

func newOrKeep(err error, path string) error {
	var rerr *ReconError
	if errors.As(err, &rerr) {
		return err
	}
	return newReconError(CategoryPartialLoadFailure, GroundTruthName, path, err)
}

func readIDLines(r io.Reader) ([]string, error) {
	var ids []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	return ids, sc.Err()
}

func readIDCSV(r io.Reader, cfg GroundTruthConfig, entityTypes *EntityTypeTable) ([]string, []utils.DetectionRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	if cfg.Delimiter != "" {
		cr.Comma = []rune(cfg.Delimiter)[0]
	}

	header, err := cr.Read()
	if err != nil {
		return nil, nil, err
	}

	idCol := 0
	if cfg.IDColumn != "" {
		idCol = -1
		for i, h := range header {
			if headerKey(h) == headerKey(cfg.IDColumn) {
				idCol = i
				break
			}
		}
		if idCol < 0 {
			return nil, nil, schemaMismatchf(GroundTruthName, "column %q mapped to id not found in header", cfg.IDColumn)
		}
	}

	var rowFn RowFunc
	if cfg.SchemaMapping != nil {
		mapper, err := NewMapper(GroundTruthName, *cfg.SchemaMapping, entityTypes)
		if err != nil {
			return nil, nil, err
		}
		if rowFn, err = mapper.Bind(header); err != nil {
			return nil, nil, err
		}
	}

	var (
		ids     []string
		records []utils.DetectionRecord
	)
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil || len(fields) != len(header) {
			continue
		}
		id := strings.TrimSpace(fields[idCol])
		if id == "" {
			continue
		}
		ids = append(ids, id)

		if rowFn == nil {
			continue
		}
		row := make(RawRow, len(header))
		for i, h := range header {
			row[h] = fields[i]
		}
		recs, err := rowFn(row)
		if err != nil {
			continue
		}
		for i := range recs {
			recs[i].EntityValue = id
		}
		records = append(records, recs...)
	}
	return ids, records, nil
}

// readIDDocument accepts a list of identifiers or a mapping with an "ids" list.
// JSON is a subset of YAML, so both go through the YAML decoder.
func readIDDocument(r io.Reader) ([]string, error) {
	var doc interface{}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, err
	}

	var list []interface{}
	switch v := doc.(type) {
	case []interface{}:
		list = v
	case map[string]interface{}:
		l, ok := v["ids"].([]interface{})
		if !ok {
			return nil, errors.New(`expected a list or a mapping with an "ids" list`)
		}
		list = l
	default:
		return nil, errors.New(`expected a list or a mapping with an "ids" list`)
	}

	ids := make([]string, 0, len(list))
	for _, item := range list {
		if item == nil {
			continue
		}
		ids = append(ids, fmt.Sprint(item))
	}
	return ids, nil
}

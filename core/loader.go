package core

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/SamuelRCrider/sitrecon/utils"
)

// Input formats
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// Upper bound on files read at the same time
const maxConcurrentLoads = 4

// LoadResult is the outcome of loading one method's export
type LoadResult struct {
	Method     string
	Path       string
	Records    []utils.DetectionRecord
	Skipped    []RowError
	Duplicates int

	// Set when the method could not be loaded at all
	Err error
}

// Loaded reports whether the method's export was read
func (r LoadResult) Loaded() bool {
	return r.Err == nil
}

// LoadAll loads every enabled method concurrently. Results follow configuration
// order. A method whose file is missing or unreadable is reported through its
// result's Err; a schema mismatch aborts the whole load.
func LoadAll(ctx context.Context, cfg Config, entityTypes *EntityTypeTable) ([]LoadResult, error) {
	methods := cfg.EnabledMethods()
	results := make([]LoadResult, len(methods))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLoads)
	for i, m := range methods {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := loadMethod(cfg.BaseDir, m, entityTypes)
			if errors.Is(err, CategorySchemaMismatch) {
				return err
			}
			res.Err = err
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func loadMethod(baseDir string, m MethodConfig, entityTypes *EntityTypeTable) (LoadResult, error) {
	res := LoadResult{Method: m.Name}

	mapper, err := NewMapper(m.Name, m.SchemaMapping, entityTypes)
	if err != nil {
		return res, err
	}

	path, err := ResolveInput(baseDir, m)
	if err != nil {
		return res, err
	}
	res.Path = path

	loaded, err := LoadReport(path, m.Format, m.Delimiter, mapper)
	if err != nil {
		return res, err
	}
	return loaded, nil
}

// ResolveInput returns the export file for a method: the explicit path, or the
// most recently modified file matching its pattern
func ResolveInput(baseDir string, m MethodConfig) (string, error) {
	if m.Path != "" {
		path := m.Path
		if !filepath.IsAbs(path) && baseDir != "" {
			path = filepath.Join(baseDir, path)
		}
		return path, nil
	}
	if m.Pattern == "" {
		return "", newReconError(CategoryPartialLoadFailure, m.Name, "", errors.New("neither path nor pattern configured"))
	}

	pattern := m.Pattern
	if !filepath.IsAbs(pattern) && baseDir != "" {
		pattern = filepath.Join(baseDir, pattern)
	}
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return "", newReconError(CategoryPartialLoadFailure, m.Name, "", fmt.Errorf("bad pattern %q: %w", m.Pattern, err))
	}

	type candidate struct {
		path    string
		modTime int64
	}
	var candidates []candidate
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil || info.IsDir() {
			continue
		}
		candidates = append(candidates, candidate{path: match, modTime: info.ModTime().UnixNano()})
	}
	if len(candidates) == 0 {
		return "", newReconError(CategoryPartialLoadFailure, m.Name, "", fmt.Errorf("no file matches %q", m.Pattern))
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].modTime != candidates[j].modTime {
			return candidates[i].modTime > candidates[j].modTime
		}
		return candidates[i].path > candidates[j].path
	})
	return candidates[0].path, nil
}

// LoadReport reads one export file and normalizes it with the mapper. Malformed
// rows are skipped and recorded; they never abort the file.
func LoadReport(path, format, delimiter string, mapper *Mapper) (LoadResult, error) {
	res := LoadResult{Method: mapper.Method(), Path: path}

	f, err := os.Open(path)
	if err != nil {
		return res, newReconError(CategoryPartialLoadFailure, mapper.Method(), path, err)
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil {
		mapper = mapper.WithFallbackTime(info.ModTime().UTC())
	}

	if format == "" {
		format = formatFromPath(path)
	}

	var records []utils.DetectionRecord
	switch format {
	case FormatCSV:
		records, res.Skipped, err = readCSV(f, delimiter, path, mapper)
	case FormatJSON:
		records, res.Skipped, err = readJSON(f, path, mapper)
	default:
		err = newReconError(CategoryPartialLoadFailure, mapper.Method(), path, fmt.Errorf("unsupported format %q", format))
	}
	if err != nil {
		return res, err
	}

	res.Records = Coalesce(records)
	res.Duplicates = len(records) - len(res.Records)
	return res, nil
}

func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	default:
		return FormatCSV
	}
}

func readCSV(r io.Reader, delimiter, path string, mapper *Mapper) ([]utils.DetectionRecord, []RowError, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	if delimiter != "" {
		cr.Comma = []rune(delimiter)[0]
	}

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("file is empty")
		}
		return nil, nil, newReconError(CategoryPartialLoadFailure, mapper.Method(), path, err)
	}
	rowFn, err := mapper.Bind(header)
	if err != nil {
		return nil, nil, withPath(err, path)
	}

	var (
		records []utils.DetectionRecord
		skipped []RowError
	)
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				skipped = append(skipped, RowError{Method: mapper.Method(), Path: path, Line: perr.Line, Err: perr.Err})
				continue
			}
			return nil, nil, newReconError(CategoryPartialLoadFailure, mapper.Method(), path, err)
		}
		line, _ := cr.FieldPos(0)
		if len(fields) != len(header) {
			skipped = append(skipped, RowError{
				Method: mapper.Method(), Path: path, Line: line,
				Err: fmt.Errorf("expected %d fields, got %d", len(header), len(fields)),
			})
			continue
		}

		row := make(RawRow, len(header))
		for i, h := range header {
			row[h] = fields[i]
		}
		recs, err := rowFn(row)
		if err != nil {
			skipped = append(skipped, RowError{Method: mapper.Method(), Path: path, Line: line, Err: err})
			continue
		}
		records = append(records, recs...)
	}
	return records, skipped, nil
}

func readJSON(r io.Reader, path string, mapper *Mapper) ([]utils.DetectionRecord, []RowError, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, nil, newReconError(CategoryPartialLoadFailure, mapper.Method(), path, err)
	}

	var items []interface{}
	switch v := doc.(type) {
	case []interface{}:
		items = v
	case map[string]interface{}:
		// Graph API style envelope
		value, ok := v["value"].([]interface{})
		if !ok {
			return nil, nil, newReconError(CategoryPartialLoadFailure, mapper.Method(), path, errors.New("expected an array of objects"))
		}
		items = value
	default:
		return nil, nil, newReconError(CategoryPartialLoadFailure, mapper.Method(), path, errors.New("expected an array of objects"))
	}

	if len(items) == 0 {
		return nil, nil, nil
	}

	headerSet := make(map[string]struct{})
	for _, item := range items {
		if obj, ok := item.(map[string]interface{}); ok {
			for k := range obj {
				headerSet[k] = struct{}{}
			}
		}
	}
	header := make([]string, 0, len(headerSet))
	for k := range headerSet {
		header = append(header, k)
	}
	sort.Strings(header)

	rowFn, err := mapper.Bind(header)
	if err != nil {
		return nil, nil, withPath(err, path)
	}

	var (
		records []utils.DetectionRecord
		skipped []RowError
	)
	for i, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			skipped = append(skipped, RowError{Method: mapper.Method(), Path: path, Line: i + 1, Err: errors.New("element is not an object")})
			continue
		}
		row := make(RawRow, len(obj))
		for k, v := range obj {
			row[k] = jsonCell(v)
		}
		recs, err := rowFn(row)
		if err != nil {
			skipped = append(skipped, RowError{Method: mapper.Method(), Path: path, Line: i + 1, Err: err})
			continue
		}
		records = append(records, recs...)
	}
	return records, skipped, nil
}

func jsonCell(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, jsonCell(e))
		}
		return strings.Join(parts, ";")
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

func withPath(err error, path string) error {
	var rerr *ReconError
	if errors.As(err, &rerr) && rerr.Path == "" {
		c := *rerr
		c.Path = path
		return &c
	}
	return err
}

// Coalesce collapses records sharing method and match key. The record with the
// higher confidence wins; on a tie the first one seen is kept.
func Coalesce(records []utils.DetectionRecord) []utils.DetectionRecord {
	type coalesceKey struct {
		method string
		key    utils.MatchKey
	}
	index := make(map[coalesceKey]int, len(records))
	out := make([]utils.DetectionRecord, 0, len(records))
	for _, rec := range records {
		k := coalesceKey{method: rec.SourceMethod, key: rec.Key()}
		if i, ok := index[k]; ok {
			if rec.Confidence.Higher(out[i].Confidence) {
				out[i] = rec
			}
			continue
		}
		index[k] = len(out)
		out = append(out, rec)
	}
	return out
}

package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"
)

// Prefix of environment variables that override configuration
const EnvPrefix = "SITRECON_"

// ConfigVersion is the configuration document version written by SaveConfig
const ConfigVersion = "1.0"

// MethodConfig declares one discovery method and how to read its export
type MethodConfig struct {
	// Name used in scenarios and reports
	Name string `json:"name" yaml:"name"`

	// Nil means enabled
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`

	// Explicit export file; takes precedence over Pattern
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Glob selecting the export file; the newest match wins
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`

	// "csv" or "json"; inferred from the file extension when empty
	Format    string `json:"format,omitempty" yaml:"format,omitempty"`
	Delimiter string `json:"delimiter,omitempty" yaml:"delimiter,omitempty"`

	SchemaMapping SchemaMapping `json:"schemaMapping" yaml:"schemaMapping"`

	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// IsEnabled reports whether the method takes part in the run
func (m MethodConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// GroundTruthConfig locates the authoritative identifier list
type GroundTruthConfig struct {
	Path      string `json:"path" yaml:"path"`
	Format    string `json:"format,omitempty" yaml:"format,omitempty"`
	Delimiter string `json:"delimiter,omitempty" yaml:"delimiter,omitempty"`

	// Column holding the identifier in a CSV source; the first column when empty
	IDColumn string `json:"idColumn,omitempty" yaml:"idColumn,omitempty"`

	// Regex deriving the identifier from a detected value
	IDPattern string `json:"idPattern,omitempty" yaml:"idPattern,omitempty"`

	// The source holds SHA-256 digests instead of plain identifiers
	Hashed bool `json:"hashed,omitempty" yaml:"hashed,omitempty"`

	// Maps file and type columns of a CSV manifest to expected detections
	SchemaMapping *SchemaMapping `json:"schemaMapping,omitempty" yaml:"schemaMapping,omitempty"`
}

// EntityTypeConfig adds a canonical entity type or extends the aliases of a built-in one
type EntityTypeConfig struct {
	Name     string   `json:"name" yaml:"name"`
	Category string   `json:"category,omitempty" yaml:"category,omitempty"`
	Aliases  []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

// FilterConfig is the serialized form of FilterCriteria
type FilterConfig struct {
	EntityTypes   []string `json:"entityTypes,omitempty" yaml:"entityTypes,omitempty"`
	Locations     []string `json:"locations,omitempty" yaml:"locations,omitempty"`
	DateFrom      string   `json:"dateFrom,omitempty" yaml:"dateFrom,omitempty"`
	DateTo        string   `json:"dateTo,omitempty" yaml:"dateTo,omitempty"`
	MinConfidence *int     `json:"minConfidence,omitempty" yaml:"minConfidence,omitempty"`
}

// ScenarioConfig names one comparison. Reference may be GroundTruthName.
type ScenarioConfig struct {
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	Reference string `json:"reference" yaml:"reference"`
	Candidate string `json:"candidate" yaml:"candidate"`
}

// OutputConfig controls the report artifacts
type OutputConfig struct {
	Directory string `json:"directory" yaml:"directory"`
	Prefix    string `json:"prefix" yaml:"prefix"`
	HTML      bool   `json:"html" yaml:"html"`
	Details   bool   `json:"details" yaml:"details"`
	Console   bool   `json:"console" yaml:"console"`
}

// AuditConfig controls the run's JSONL audit log
type AuditConfig struct {
	// Empty disables the audit log
	Path    string        `json:"path,omitempty" yaml:"path,omitempty"`
	Level   AuditLogLevel `json:"level" yaml:"level"`
	Console bool          `json:"console,omitempty" yaml:"console,omitempty"`
}

// Config is the complete, immutable description of a run
type Config struct {
	Version string `json:"version" yaml:"version"`

	// Relative method and ground truth paths resolve against BaseDir. Defaults to
	// the directory of the configuration file.
	BaseDir string `json:"baseDir,omitempty" yaml:"baseDir,omitempty"`

	// Fewer loaded methods than this aborts the run
	MinMethods int `json:"minMethods" yaml:"minMethods"`

	Methods     []MethodConfig     `json:"methods" yaml:"methods"`
	GroundTruth *GroundTruthConfig `json:"groundTruth,omitempty" yaml:"groundTruth,omitempty"`
	EntityTypes []EntityTypeConfig `json:"entityTypes,omitempty" yaml:"entityTypes,omitempty"`
	Filters     FilterConfig       `json:"filters" yaml:"filters"`
	Scenarios   []ScenarioConfig   `json:"scenarios,omitempty" yaml:"scenarios,omitempty"`
	Output      OutputConfig       `json:"output" yaml:"output"`
	Audit       AuditConfig        `json:"audit" yaml:"audit"`

	// SHA-256 of the source document, recorded in the audit log
	Hash string `json:"-" yaml:"-"`

	// Where the configuration came from
	Source string `json:"-" yaml:"-"`
}

// EnabledMethods returns the enabled methods in declaration order
func (c Config) EnabledMethods() []MethodConfig {
	var methods []MethodConfig
	for _, m := range c.Methods {
		if m.IsEnabled() {
			methods = append(methods, m)
		}
	}
	return methods
}

// Criteria converts the filter configuration. Dates have been validated on load.
func (c Config) Criteria() (FilterCriteria, error) {
	from, err := ParseDateBound(c.Filters.DateFrom, false)
	if err != nil {
		return FilterCriteria{}, err
	}
	to, err := ParseDateBound(c.Filters.DateTo, true)
	if err != nil {
		return FilterCriteria{}, err
	}
	return FilterCriteria{
		EntityTypes:   c.Filters.EntityTypes,
		Locations:     c.Filters.Locations,
		From:          from,
		To:            to,
		MinConfidence: c.Filters.MinConfidence,
	}, nil
}

// ResolvedScenarios returns the declared scenarios, or the defaults when none
// are declared: each enabled method against the ground truth, then every pair of
// enabled methods in declaration order. Unnamed scenarios get a generated name.
func (c Config) ResolvedScenarios() []ScenarioConfig {
	scenarios := c.Scenarios
	if len(scenarios) == 0 {
		methods := c.EnabledMethods()
		if c.GroundTruth != nil {
			for _, m := range methods {
				scenarios = append(scenarios, ScenarioConfig{Reference: GroundTruthName, Candidate: m.Name})
			}
		}
		for i := range methods {
			for j := i + 1; j < len(methods); j++ {
				scenarios = append(scenarios, ScenarioConfig{Reference: methods[i].Name, Candidate: methods[j].Name})
			}
		}
	}

	out := make([]ScenarioConfig, len(scenarios))
	for i, s := range scenarios {
		if s.Name == "" {
			s.Name = s.Candidate + " vs " + s.Reference
		}
		out[i] = s
	}
	return out
}

// defaultValues are the lowest configuration layer
func defaultValues() map[string]interface{} {
	return map[string]interface{}{
		"version":          ConfigVersion,
		"minMethods":       2,
		"output.directory": "output",
		"output.prefix":    "sitrecon_report",
		"output.details":   true,
		"output.console":   true,
		"audit.level":      string(AuditLogLevelStandard),
	}
}

// Environment variables recognised on top of the configuration file
var envKeys = map[string]string{
	"BASE_DIR":       "baseDir",
	"MIN_METHODS":    "minMethods",
	"OUTPUT_DIR":     "output.directory",
	"OUTPUT_PREFIX":  "output.prefix",
	"OUTPUT_HTML":    "output.html",
	"OUTPUT_DETAILS": "output.details",
	"AUDIT_LOG":      "audit.path",
	"AUDIT_LEVEL":    "audit.level",
	"DATE_FROM":      "filters.dateFrom",
	"DATE_TO":        "filters.dateTo",
	"MIN_CONFIDENCE": "filters.minConfidence",
}

// LoadConfig reads a JSON or YAML configuration file and layers defaults,
// SITRECON_* environment variables and the given overrides around it.
// Overrides use dotted keys, e.g. "output.html".
func LoadConfig(path string, overrides map[string]interface{}) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, newReconError(CategoryConfigNotFound, "", path, err)
		}
		return Config{}, newReconError(CategoryConfigParse, "", path, err)
	}

	parser, err := parserFor(path)
	if err != nil {
		return Config{}, newReconError(CategoryConfigParse, "", path, err)
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaultValues(), "."), nil); err != nil {
		return Config{}, newReconError(CategoryConfigParse, "", path, err)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return Config{}, newReconError(CategoryConfigParse, "", path, err)
	}

	cfg, err := finishConfig(k, overrides)
	if err != nil {
		return Config{}, newReconError(CategoryConfigParse, "", path, err)
	}
	if cfg.BaseDir == "" {
		cfg.BaseDir = filepath.Dir(path)
	}
	cfg.Hash = calculateConfigHash(data)
	cfg.Source = path
	return cfg, nil
}

// LoadDefaultConfig layers environment variables and overrides over DefaultConfig
func LoadDefaultConfig(overrides map[string]interface{}) (Config, error) {
	base := DefaultConfig()
	data, err := json.Marshal(base)
	if err != nil {
		return Config{}, newReconError(CategoryConfigParse, "", "", err)
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaultValues(), "."), nil); err != nil {
		return Config{}, newReconError(CategoryConfigParse, "", "", err)
	}
	if err := k.Load(rawJSON(data), kjson.Parser()); err != nil {
		return Config{}, newReconError(CategoryConfigParse, "", "", err)
	}

	cfg, err := finishConfig(k, overrides)
	if err != nil {
		return Config{}, newReconError(CategoryConfigParse, "", "", err)
	}
	cfg.Hash = calculateConfigHash(data)
	cfg.Source = "defaults"
	return cfg, nil
}

func finishConfig(k *koanf.Koanf, overrides map[string]interface{}) (Config, error) {
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: envTransform,
	}), nil); err != nil {
		return Config{}, err
	}
	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return Config{}, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := validateConfig(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// envTransform maps SITRECON_OUTPUT_DIR to output.directory and so on.
// Unknown variables, SITRECON_CONFIG included, are skipped.
func envTransform(key, value string) (string, any) {
	name, ok := envKeys[strings.TrimPrefix(key, EnvPrefix)]
	if !ok {
		return "", nil
	}
	return name, value
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return kjson.Parser(), nil
	case ".yaml", ".yml":
		return yamlParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported configuration format %q", filepath.Ext(path))
	}
}

// yamlParser is a koanf parser backed by yaml.v3
type yamlParser struct{}

func (yamlParser) Unmarshal(b []byte) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := yaml.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]interface{}{}
	}
	return out, nil
}

func (yamlParser) Marshal(m map[string]interface{}) ([]byte, error) {
	return yaml.Marshal(m)
}

// rawJSON serves an in-memory document to koanf
type rawJSON []byte

func (r rawJSON) ReadBytes() ([]byte, error) {
	return r, nil
}

func (r rawJSON) Read() (map[string]interface{}, error) {
	return nil, errors.New("rawJSON provider does not support Read()")
}

func validateConfig(cfg *Config) error {
	if cfg.MinMethods < 1 {
		return fmt.Errorf("minMethods must be at least 1, got %d", cfg.MinMethods)
	}
	if len(cfg.Methods) == 0 {
		return errors.New("no methods configured")
	}

	names := make(map[string]bool, len(cfg.Methods))
	for i, m := range cfg.Methods {
		if strings.TrimSpace(m.Name) == "" {
			return fmt.Errorf("method %d has no name", i+1)
		}
		if m.Name == GroundTruthName {
			return fmt.Errorf("method name %q is reserved", GroundTruthName)
		}
		if _, dup := names[m.Name]; dup {
			return fmt.Errorf("duplicate method name %q", m.Name)
		}
		names[m.Name] = m.IsEnabled()

		if m.Path == "" && m.Pattern == "" {
			return fmt.Errorf("method %q needs a path or a pattern", m.Name)
		}
		switch strings.ToLower(m.Format) {
		case "", FormatCSV, FormatJSON:
		default:
			return fmt.Errorf("method %q has unsupported format %q", m.Name, m.Format)
		}
		if len([]rune(m.Delimiter)) > 1 {
			return fmt.Errorf("method %q delimiter must be a single character", m.Name)
		}
		cfg.Methods[i].Format = strings.ToLower(m.Format)
	}

	if gt := cfg.GroundTruth; gt != nil {
		if gt.Path == "" {
			return errors.New("groundTruth has no path")
		}
		if _, err := NewGroundTruth(nil, *gt); err != nil {
			return fmt.Errorf("groundTruth: %w", err)
		}
	}

	for i, s := range cfg.Scenarios {
		if s.Reference == "" || s.Candidate == "" {
			return fmt.Errorf("scenario %d needs a reference and a candidate", i+1)
		}
		if s.Reference == GroundTruthName {
			if cfg.GroundTruth == nil {
				return fmt.Errorf("scenario %d references %s but none is configured", i+1, GroundTruthName)
			}
		} else if _, ok := names[s.Reference]; !ok {
			return fmt.Errorf("scenario %d references unknown method %q", i+1, s.Reference)
		}
		if _, ok := names[s.Candidate]; !ok {
			return fmt.Errorf("scenario %d has unknown candidate method %q", i+1, s.Candidate)
		}
	}

	if _, err := ParseDateBound(cfg.Filters.DateFrom, false); err != nil {
		return fmt.Errorf("filters.dateFrom: %w", err)
	}
	if _, err := ParseDateBound(cfg.Filters.DateTo, true); err != nil {
		return fmt.Errorf("filters.dateTo: %w", err)
	}
	if mc := cfg.Filters.MinConfidence; mc != nil && (*mc < 0 || *mc > 100) {
		return fmt.Errorf("filters.minConfidence must be within 0-100, got %d", *mc)
	}

	switch cfg.Audit.Level {
	case "":
		cfg.Audit.Level = AuditLogLevelStandard
	case AuditLogLevelMinimal, AuditLogLevelStandard, AuditLogLevelVerbose:
	default:
		return fmt.Errorf("unknown audit level %q", cfg.Audit.Level)
	}

	if cfg.Output.Prefix == "" {
		return errors.New("output.prefix must not be empty")
	}
	return nil
}

// SaveConfig writes the configuration as JSON or YAML depending on the extension
func SaveConfig(cfg Config, path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("failed to serialize configuration: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return newReconError(CategoryWriteFailure, "", path, err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return newReconError(CategoryWriteFailure, "", path, err)
	}
	return nil
}

// calculateConfigHash generates a hash of the configuration content
func calculateConfigHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

func boolPtr(b bool) *bool {
	return &b
}

func strPtr(s string) *string {
	return &s
}

// DefaultConfig describes the three discovery methods of a standard lab run:
// a pattern-based scan, an Exact Data Match export and a Content Explorer export
func DefaultConfig() Config {
	return Config{
		Version:    ConfigVersion,
		MinMethods: 2,
		Methods: []MethodConfig{
			{
				Name:        "PatternScan",
				Pattern:     "reports/*PatternScan*.csv",
				Description: "Regex and checksum based scan of file shares",
				SchemaMapping: SchemaMapping{
					FileIdentifier: "FileName",
					Location:       "SiteUrl",
					EntityType:     "SITType",
					EntityValue:    "MatchedValue",
					Confidence:     strPtr("Confidence"),
					Timestamp:      "DetectedDate",
				},
			},
			{
				Name:        "ExactDataMatch",
				Pattern:     "reports/*EDM*.csv",
				Description: "Exact Data Match lookups against the hashed employee table",
				SchemaMapping: SchemaMapping{
					FileIdentifier: "FileName",
					Location:       "SiteUrl",
					EntityType:     "SensitiveType",
					EntityValue:    "MatchedValue",
					Timestamp:      "DetectedDate",
				},
			},
			{
				Name:        "ContentExplorer",
				Pattern:     "reports/*ContentExplorer*.csv",
				Description: "Purview Content Explorer export",
				SchemaMapping: SchemaMapping{
					FileIdentifier:      "Subject/Title",
					Location:            "Location",
					EntityType:          "Sensitive Information Types",
					Confidence:          strPtr("Confidence"),
					Timestamp:           "Last Modified",
					EntityTypeSeparator: ";",
				},
			},
		},
		Output: OutputConfig{
			Directory: "output",
			Prefix:    "sitrecon_report",
			Details:   true,
			Console:   true,
		},
		Audit: AuditConfig{Level: AuditLogLevelStandard},
	}
}

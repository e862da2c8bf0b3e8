package core

// ConfigBuilder provides a fluent interface for creating run configurations
type ConfigBuilder struct {
	config Config
}

// NewConfigBuilder creates a builder seeded with the built-in output and audit defaults
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{
		config: Config{
			Version:    ConfigVersion,
			MinMethods: 2,
			Output: OutputConfig{
				Directory: "output",
				Prefix:    "sitrecon_report",
				Details:   true,
				Console:   true,
			},
			Audit: AuditConfig{Level: AuditLogLevelStandard},
		},
	}
}

// WithBaseDir sets the directory relative paths resolve against
func (b *ConfigBuilder) WithBaseDir(dir string) *ConfigBuilder {
	b.config.BaseDir = dir
	return b
}

// WithMinMethods sets the number of methods that must load for the run to proceed
func (b *ConfigBuilder) WithMinMethods(n int) *ConfigBuilder {
	b.config.MinMethods = n
	return b
}

// AddMethod adds a method reading an explicit file
func (b *ConfigBuilder) AddMethod(name, path string, mapping SchemaMapping) *ConfigBuilder {
	b.config.Methods = append(b.config.Methods, MethodConfig{
		Name:          name,
		Path:          path,
		SchemaMapping: mapping,
	})
	return b
}

// AddMethodPattern adds a method reading the newest file matching pattern
func (b *ConfigBuilder) AddMethodPattern(name, pattern string, mapping SchemaMapping) *ConfigBuilder {
	b.config.Methods = append(b.config.Methods, MethodConfig{
		Name:          name,
		Pattern:       pattern,
		SchemaMapping: mapping,
	})
	return b
}

// ConfigureLastMethod configures additional properties for the last added method
func (b *ConfigBuilder) ConfigureLastMethod() *MethodConfigurator {
	if len(b.config.Methods) == 0 {
		b.config.Methods = append(b.config.Methods, MethodConfig{})
	}

	return &MethodConfigurator{
		builder: b,
		method:  &b.config.Methods[len(b.config.Methods)-1],
	}
}

// WithGroundTruth sets the authoritative identifier list
func (b *ConfigBuilder) WithGroundTruth(gt GroundTruthConfig) *ConfigBuilder {
	b.config.GroundTruth = &gt
	return b
}

// AddEntityType registers a canonical entity type with its aliases
func (b *ConfigBuilder) AddEntityType(name, category string, aliases ...string) *ConfigBuilder {
	b.config.EntityTypes = append(b.config.EntityTypes, EntityTypeConfig{
		Name:     name,
		Category: category,
		Aliases:  aliases,
	})
	return b
}

// WithFilters sets the filter configuration
func (b *ConfigBuilder) WithFilters(filters FilterConfig) *ConfigBuilder {
	b.config.Filters = filters
	return b
}

// AddScenario declares a comparison; reference may be GroundTruthName
func (b *ConfigBuilder) AddScenario(name, reference, candidate string) *ConfigBuilder {
	b.config.Scenarios = append(b.config.Scenarios, ScenarioConfig{
		Name:      name,
		Reference: reference,
		Candidate: candidate,
	})
	return b
}

// WithOutput sets the output directory and file prefix
func (b *ConfigBuilder) WithOutput(dir, prefix string) *ConfigBuilder {
	b.config.Output.Directory = dir
	b.config.Output.Prefix = prefix
	return b
}

// WithHTML toggles the HTML report
func (b *ConfigBuilder) WithHTML(enabled bool) *ConfigBuilder {
	b.config.Output.HTML = enabled
	return b
}

// WithConsole toggles the console summary
func (b *ConfigBuilder) WithConsole(enabled bool) *ConfigBuilder {
	b.config.Output.Console = enabled
	return b
}

// WithAudit sets the audit log file and level
func (b *ConfigBuilder) WithAudit(path string, level AuditLogLevel) *ConfigBuilder {
	b.config.Audit.Path = path
	b.config.Audit.Level = level
	return b
}

// Build validates and returns the configuration
func (b *ConfigBuilder) Build() (Config, error) {
	cfg := b.config
	cfg.Methods = append([]MethodConfig(nil), b.config.Methods...)
	if err := validateConfig(&cfg); err != nil {
		return Config{}, newReconError(CategoryConfigParse, "", "", err)
	}
	cfg.Source = "builder"
	return cfg, nil
}

// MethodConfigurator provides methods to configure a method
type MethodConfigurator struct {
	builder *ConfigBuilder
	method  *MethodConfig
}

// WithFormat sets the export format
func (c *MethodConfigurator) WithFormat(format string) *MethodConfigurator {
	c.method.Format = format
	return c
}

// WithDelimiter sets the CSV delimiter
func (c *MethodConfigurator) WithDelimiter(delimiter string) *MethodConfigurator {
	c.method.Delimiter = delimiter
	return c
}

// WithDescription sets the description for the method
func (c *MethodConfigurator) WithDescription(description string) *MethodConfigurator {
	c.method.Description = description
	return c
}

// Disabled excludes the method from runs
func (c *MethodConfigurator) Disabled() *MethodConfigurator {
	c.method.Enabled = boolPtr(false)
	return c
}

// Done returns to the config builder
func (c *MethodConfigurator) Done() *ConfigBuilder {
	return c.builder
}

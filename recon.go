package sitrecon

import (
	"context"
	"io"
	"strconv"
	"time"

	"github.com/SamuelRCrider/sitrecon/core"
	"github.com/SamuelRCrider/sitrecon/report"
)

// DefaultConfigPath is where the configuration is looked up when none is given
const DefaultConfigPath = "config/sitrecon.json"

// Options controls a single reconciliation run
type Options struct {
	// Configuration file; ignored when UseDefaults is set
	ConfigPath string

	// Use the built-in configuration instead of a file
	UseDefaults bool

	// Dotted configuration keys applied last, e.g. "output.html"
	Overrides map[string]interface{}

	// Receives the console summary; nil disables it
	Stdout io.Writer

	// Clock used for report file names; defaults to time.Now
	Now func() time.Time
}

// Result describes a finished run
type Result struct {
	Config  core.Config
	Summary *core.RunSummary

	// Report files written, in order
	Written []string
}

// LoadConfig resolves the configuration for the given options
func LoadConfig(opts Options) (core.Config, error) {
	if opts.UseDefaults {
		return core.LoadDefaultConfig(opts.Overrides)
	}
	path := opts.ConfigPath
	if path == "" {
		path = DefaultConfigPath
	}
	return core.LoadConfig(path, opts.Overrides)
}

// Run loads the configuration, reconciles every scenario and writes the
// reports. The console summary is printed before any file is written, so it is
// available even when writing fails. No report is written when too few methods load.
func Run(ctx context.Context, opts Options) (*Result, error) {
	cfg, err := LoadConfig(opts)
	if err != nil {
		return nil, err
	}
	return RunWithConfig(ctx, cfg, opts)
}

// RunWithConfig runs the pipeline with an already loaded configuration
func RunWithConfig(ctx context.Context, cfg core.Config, opts Options) (*Result, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	audit, err := core.OpenAuditLogger(cfg.Audit)
	if err != nil {
		return nil, err
	}
	defer audit.Close()

	audit.Info(core.EventRunStarted, "", "", map[string]string{"source": cfg.Source})
	audit.Info(core.EventConfigLoaded, "", "", map[string]string{
		"hash":      cfg.Hash,
		"methods":   strconv.Itoa(len(cfg.EnabledMethods())),
		"scenarios": strconv.Itoa(len(cfg.ResolvedScenarios())),
	})

	res := &Result{Config: cfg}
	summary, err := core.Execute(ctx, cfg, audit)
	res.Summary = summary

	if summary != nil && cfg.Output.Console && opts.Stdout != nil {
		if cerr := report.Console(opts.Stdout, summary); cerr != nil && err == nil {
			err = core.WriteFailure("stdout", cerr)
		}
	}
	if err != nil {
		audit.Fail(err)
		return res, err
	}

	res.Written, err = report.Write(summary, cfg.Output, now())
	for _, path := range res.Written {
		audit.Info(core.EventReportWritten, "", "", map[string]string{"path": path})
	}
	if err != nil {
		audit.Fail(err)
		return res, err
	}
	return res, nil
}

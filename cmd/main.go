package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"github.com/SamuelRCrider/sitrecon"
	"github.com/SamuelRCrider/sitrecon/core"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fset := flag.NewFlagSet("sitrecon", flag.ContinueOnError)
	fset.SetOutput(stderr)

	configPath := fset.String("config", sitrecon.DefaultConfigPath, "Path to the JSON or YAML configuration (env SITRECON_CONFIG)")
	useDefaults := fset.Bool("defaults", false, "Use the built-in configuration instead of a file")
	html := fset.Bool("html", false, "Also write an HTML report")
	outputDir := fset.String("output-dir", "", "Directory for report files")
	prefix := fset.String("prefix", "", "Report file name prefix")
	envFile := fset.String("env-file", ".env", "Environment file loaded before configuration")
	auditLog := fset.String("audit-log", "", "Append a JSONL audit log to this file")
	initConfig := fset.String("init-config", "", "Write the built-in configuration to this path and exit")
	quiet := fset.Bool("quiet", false, "Do not print the console summary")

	if err := fset.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return core.ExitOK
		}
		return core.ExitConfigError
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(stderr, "Note: %s could not be loaded: %v\n", *envFile, err)
	}

	if *initConfig != "" {
		if err := core.SaveConfig(core.DefaultConfig(), *initConfig); err != nil {
			fmt.Fprintf(stderr, "Error writing configuration: %v\n", err)
			return core.ExitCode(err)
		}
		fmt.Fprintf(stdout, "Wrote default configuration to %s\n", *initConfig)
		return core.ExitOK
	}

	set := make(map[string]bool)
	fset.Visit(func(f *flag.Flag) { set[f.Name] = true })

	path := *configPath
	if !set["config"] {
		if env := os.Getenv(core.EnvPrefix + "CONFIG"); env != "" {
			path = env
		}
	}

	// Only flags given on the command line override the configuration
	overrides := make(map[string]interface{})
	if set["html"] {
		overrides["output.html"] = *html
	}
	if set["output-dir"] {
		overrides["output.directory"] = *outputDir
	}
	if set["prefix"] {
		overrides["output.prefix"] = *prefix
	}
	if set["audit-log"] {
		overrides["audit.path"] = *auditLog
	}
	if *quiet {
		overrides["output.console"] = false
	}

	res, err := sitrecon.Run(context.Background(), sitrecon.Options{
		ConfigPath:  path,
		UseDefaults: *useDefaults,
		Overrides:   overrides,
		Stdout:      stdout,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return core.ExitCode(err)
	}

	if !*quiet {
		for _, p := range res.Written {
			fmt.Fprintf(stdout, "Report written: %s\n", p)
		}
	}
	return core.ExitOK
}

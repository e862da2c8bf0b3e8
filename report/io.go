package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/SamuelRCrider/sitrecon/core"
)

// Layout of the timestamp embedded in report file names
const timestampLayout = "20060102_150405"

// Paths are the report files of one run
type Paths struct {
	Summary string
	Details string
	HTML    string
}

// FileNames returns <prefix>_<yyyyMMdd_HHmmss> based names inside dir
func FileNames(dir, prefix string, ts time.Time) Paths {
	base := filepath.Join(dir, prefix+"_"+ts.Format(timestampLayout))
	return Paths{
		Summary: base + ".csv",
		Details: base + "_details.csv",
		HTML:    base + ".html",
	}
}

func Save(path string, data []byte) error {
	if path == "" {
		return fmt.Errorf("output path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Write renders and saves every report artifact the output configuration asks
// for and returns the written paths. Any failure is a write failure.
func Write(summary *core.RunSummary, out core.OutputConfig, ts time.Time) ([]string, error) {
	paths := FileNames(out.Directory, out.Prefix, ts)

	type artifact struct {
		path   string
		render func() ([]byte, error)
	}
	artifacts := []artifact{{paths.Summary, func() ([]byte, error) { return SummaryCSV(summary.Results) }}}
	if out.Details {
		artifacts = append(artifacts, artifact{paths.Details, func() ([]byte, error) { return DetailsCSV(summary.Results) }})
	}
	if out.HTML {
		artifacts = append(artifacts, artifact{paths.HTML, func() ([]byte, error) { return HTML(summary, out.Prefix) }})
	}

	var written []string
	for _, a := range artifacts {
		data, err := a.render()
		if err != nil {
			return written, core.WriteFailure(a.path, err)
		}
		if err := Save(a.path, data); err != nil {
			return written, core.WriteFailure(a.path, err)
		}
		written = append(written, a.path)
	}
	return written, nil
}

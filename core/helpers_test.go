package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/SamuelRCrider/sitrecon/utils"
)

func record(method, file, entityType, value string) utils.DetectionRecord {
	return utils.DetectionRecord{
		SourceMethod:   method,
		FileIdentifier: FileIdentifier(file, "https://contoso.sharepoint.com/sites/hr"),
		FileName:       file,
		EntityType:     entityType,
		EntityValue:    value,
		Location:       "https://contoso.sharepoint.com/sites/hr",
		Confidence:     utils.NotApplicable(),
	}
}

func writeFile(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
	return path
}

func strRef(s string) *string {
	return &s
}

func intRef(i int) *int {
	return &i
}

var patternMapping = SchemaMapping{
	FileIdentifier: "FileName",
	Location:       "SiteUrl",
	EntityType:     "SITType",
	EntityValue:    "MatchedValue",
	Confidence:     strRef("Confidence"),
	Timestamp:      "DetectedDate",
}

var edmMapping = SchemaMapping{
	FileIdentifier: "FileName",
	Location:       "SiteUrl",
	EntityType:     "SensitiveType",
	EntityValue:    "MatchedValue",
}

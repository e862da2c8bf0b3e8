package core

import (
	"strings"
	"unicode/utf8"

	"github.com/SamuelRCrider/sitrecon/utils"
)

// Characters left visible at the end of a masked value
const maskKeep = 4

// MaskValue hides all but the last four characters of a detected value.
// Values of four characters or fewer are hidden entirely.
func MaskValue(value string) string {
	n := utf8.RuneCountInString(value)
	if n == 0 {
		return ""
	}
	if n <= maskKeep {
		return strings.Repeat("*", n)
	}
	runes := []rune(value)
	return strings.Repeat("*", n-maskKeep) + string(runes[n-maskKeep:])
}

// RedactRecords returns copies of the records with masked entity values
func RedactRecords(records []utils.DetectionRecord) []utils.DetectionRecord {
	out := make([]utils.DetectionRecord, len(records))
	for i, rec := range records {
		rec.EntityValue = MaskValue(rec.EntityValue)
		out[i] = rec
	}
	return out
}

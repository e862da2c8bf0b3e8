package utils

import (
	"strconv"
	"strings"
	"time"
)

// Confidence is a detection confidence score. A method that does not report
// confidence at all produces a Confidence with Reported set to false, which is
// not the same thing as a reported score of zero.
type Confidence struct {
	Value    int
	Reported bool
}

// NotApplicable returns the confidence of a method that reports none
func NotApplicable() Confidence {
	return Confidence{}
}

// ConfidenceOf returns a reported confidence score
func ConfidenceOf(v int) Confidence {
	return Confidence{Value: v, Reported: true}
}

// Higher reports whether c outranks other. Any reported score outranks "not applicable".
func (c Confidence) Higher(other Confidence) bool {
	if c.Reported != other.Reported {
		return c.Reported
	}
	return c.Value > other.Value
}

func (c Confidence) String() string {
	if !c.Reported {
		return "N/A"
	}
	return strconv.Itoa(c.Value)
}

// MatchKey identifies "the same detection" across methods
type MatchKey struct {
	FileIdentifier string
	EntityType     string
}

func (k MatchKey) String() string {
	return k.FileIdentifier + "|" + k.EntityType
}

// DetectionRecord is one detection normalized into the common schema, independent
// of the originating method's export format
type DetectionRecord struct {
	// Originating discovery method, as named in configuration
	SourceMethod string

	// Normalized, case-folded composite of file name and containing site or channel
	FileIdentifier string

	// File name as it appeared in the source export
	FileName string

	// Canonical sensitive information type label
	EntityType string

	// Compliance category of the entity type
	Category string

	// Matched value or opaque reference, empty when the method does not export it
	EntityValue string

	// Site, channel or library the file resides in
	Location string

	Confidence Confidence

	// Detection or report-generation time
	Timestamp time.Time
}

// Key returns the reconciliation key of the record. Entity types compare
// case-insensitively so open-set labels reconcile across methods.
func (r DetectionRecord) Key() MatchKey {
	return MatchKey{FileIdentifier: r.FileIdentifier, EntityType: strings.ToLower(r.EntityType)}
}

// Package util provides small helpers shared by the scanner, the inspector and the CLI.
package util

import (
	"fmt"
	"sort"
	"strings"

	"github.com/suyashkumar/dicom/pkg/tag"
)

// TagScope represents the DICOM hierarchy level an attribute belongs to.
type TagScope int

const (
	// ScopePatient indicates attributes shared by every image of a patient.
	ScopePatient TagScope = iota
	// ScopeStudy indicates attributes shared within a study.
	ScopeStudy
	// ScopeSeries indicates attributes shared within a series.
	ScopeSeries
	// ScopeImage indicates attributes that vary per image.
	ScopeImage
)

// String returns the string representation of a TagScope.
func (s TagScope) String() string {
	switch s {
	case ScopePatient:
		return "Patient"
	case ScopeStudy:
		return "Study"
	case ScopeSeries:
		return "Series"
	case ScopeImage:
		return "Image"
	default:
		return "Unknown"
	}
}

// TagInfo contains information about a DICOM tag, including its scope.
// Identifying is set for the nine attributes used to place a file in the
// patient/study/series/instance tree.
type TagInfo struct {
	Name        string
	Tag         tag.Tag
	Scope       TagScope
	Identifying bool
}

// tagRegistry maps lowercase tag names to their TagInfo.
var tagRegistry = map[string]TagInfo{
	// Patient level tags
	"patientid":        {Name: "PatientID", Tag: tag.PatientID, Scope: ScopePatient, Identifying: true},
	"patientname":      {Name: "PatientName", Tag: tag.PatientName, Scope: ScopePatient, Identifying: true},
	"patientbirthdate": {Name: "PatientBirthDate", Tag: tag.PatientBirthDate, Scope: ScopePatient},
	"patientsex":       {Name: "PatientSex", Tag: tag.PatientSex, Scope: ScopePatient},

	// Study level tags
	"studyinstanceuid":       {Name: "StudyInstanceUID", Tag: tag.StudyInstanceUID, Scope: ScopeStudy, Identifying: true},
	"studydate":              {Name: "StudyDate", Tag: tag.StudyDate, Scope: ScopeStudy, Identifying: true},
	"studytime":              {Name: "StudyTime", Tag: tag.StudyTime, Scope: ScopeStudy, Identifying: true},
	"studydescription":       {Name: "StudyDescription", Tag: tag.StudyDescription, Scope: ScopeStudy},
	"studyid":                {Name: "StudyID", Tag: tag.StudyID, Scope: ScopeStudy},
	"accessionnumber":        {Name: "AccessionNumber", Tag: tag.AccessionNumber, Scope: ScopeStudy},
	"institutionname":        {Name: "InstitutionName", Tag: tag.InstitutionName, Scope: ScopeStudy},
	"referringphysicianname": {Name: "ReferringPhysicianName", Tag: tag.ReferringPhysicianName, Scope: ScopeStudy},

	// Series level tags
	"seriesinstanceuid": {Name: "SeriesInstanceUID", Tag: tag.SeriesInstanceUID, Scope: ScopeSeries, Identifying: true},
	"seriesdescription": {Name: "SeriesDescription", Tag: tag.SeriesDescription, Scope: ScopeSeries, Identifying: true},
	"modality":          {Name: "Modality", Tag: tag.Modality, Scope: ScopeSeries, Identifying: true},
	"seriesnumber":      {Name: "SeriesNumber", Tag: tag.SeriesNumber, Scope: ScopeSeries},
	"bodypartexamined":  {Name: "BodyPartExamined", Tag: tag.BodyPartExamined, Scope: ScopeSeries},
	"protocolname":      {Name: "ProtocolName", Tag: tag.ProtocolName, Scope: ScopeSeries},
	"manufacturer":      {Name: "Manufacturer", Tag: tag.Manufacturer, Scope: ScopeSeries},

	// Image level tags
	"instancenumber": {Name: "InstanceNumber", Tag: tag.InstanceNumber, Scope: ScopeImage, Identifying: true},
	"sopinstanceuid": {Name: "SOPInstanceUID", Tag: tag.SOPInstanceUID, Scope: ScopeImage},
	"sopclassuid":    {Name: "SOPClassUID", Tag: tag.SOPClassUID, Scope: ScopeImage},
	"rows":           {Name: "Rows", Tag: tag.Rows, Scope: ScopeImage},
	"columns":        {Name: "Columns", Tag: tag.Columns, Scope: ScopeImage},
	"slicelocation":  {Name: "SliceLocation", Tag: tag.SliceLocation, Scope: ScopeImage},
	"windowcenter":   {Name: "WindowCenter", Tag: tag.WindowCenter, Scope: ScopeImage},
	"windowwidth":    {Name: "WindowWidth", Tag: tag.WindowWidth, Scope: ScopeImage},
}

// GetTagByName returns TagInfo for a given tag name.
// The lookup is case-insensitive. If the tag is not found, an error is returned
// with a suggestion for the closest matching tag name (using Levenshtein distance).
func GetTagByName(name string) (TagInfo, error) {
	normalizedName := strings.ToLower(strings.TrimSpace(name))

	if info, ok := tagRegistry[normalizedName]; ok {
		return info, nil
	}

	suggestion := findClosestTagName(normalizedName)
	if suggestion != "" {
		return TagInfo{}, fmt.Errorf("unknown tag %q, did you mean %q?", name, suggestion)
	}

	return TagInfo{}, fmt.Errorf("unknown tag %q", name)
}

// KnownTags returns every registered tag ordered by scope, then by name.
func KnownTags() []TagInfo {
	tags := make([]TagInfo, 0, len(tagRegistry))
	for _, info := range tagRegistry {
		tags = append(tags, info)
	}
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Scope != tags[j].Scope {
			return tags[i].Scope < tags[j].Scope
		}
		return tags[i].Name < tags[j].Name
	})
	return tags
}

// IdentifyingTags returns the nine attributes that place a file in the hierarchy.
func IdentifyingTags() []TagInfo {
	var tags []TagInfo
	for _, info := range KnownTags() {
		if info.Identifying {
			tags = append(tags, info)
		}
	}
	return tags
}

// findClosestTagName finds the closest matching tag name using Levenshtein distance.
// Returns empty string if no close match is found (distance > 5).
func findClosestTagName(input string) string {
	const maxDistance = 5
	bestDistance := maxDistance + 1
	var bestMatch string

	// Iterate in a fixed order so ties resolve the same way on every call.
	for _, info := range KnownTags() {
		distance := levenshteinDistance(input, strings.ToLower(info.Name))
		if distance < bestDistance {
			bestDistance = distance
			bestMatch = info.Name
		}
	}

	if bestDistance <= maxDistance {
		return bestMatch
	}
	return ""
}

// levenshteinDistance calculates the Levenshtein distance between two strings.
// This is the minimum number of single-character edits (insertions, deletions,
// or substitutions) required to change one string into the other.
func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	matrix := make([][]int, len(a)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(b)+1)
	}

	for i := 0; i <= len(a); i++ {
		matrix[i][0] = i
	}
	for j := 0; j <= len(b); j++ {
		matrix[0][j] = j
	}

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}

			matrix[i][j] = min(
				matrix[i-1][j]+1,      // deletion
				matrix[i][j-1]+1,      // insertion
				matrix[i-1][j-1]+cost, // substitution
			)
		}
	}

	return matrix[len(a)][len(b)]
}

package dicomtest

import (
	"fmt"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// EdgeCase is a category of unusual but valid attribute values.
type EdgeCase string

const (
	SpecialChars EdgeCase = "special-chars"
	LongNames    EdgeCase = "long-names"
	MissingTags  EdgeCase = "missing-tags"
	PartialDates EdgeCase = "partial-dates"
	VariedIDs    EdgeCase = "varied-ids"
)

// MaxLOLength is the maximum length of an LO or PN component group.
const MaxLOLength = 64

// EdgeCases returns every edge case.
func EdgeCases() []EdgeCase {
	return []EdgeCase{SpecialChars, LongNames, MissingTags, PartialDates, VariedIDs}
}

// ParseEdgeCases parses a comma-separated list such as "long-names,varied-ids".
func ParseEdgeCases(input string) ([]EdgeCase, error) {
	if input == "" {
		return nil, nil
	}
	valid := make(map[EdgeCase]bool)
	for _, ec := range EdgeCases() {
		valid[ec] = true
	}

	var out []EdgeCase
	for _, p := range strings.Split(input, ",") {
		ec := EdgeCase(strings.TrimSpace(p))
		if !valid[ec] {
			return nil, fmt.Errorf("unknown edge case %q, valid: %v", ec, EdgeCases())
		}
		out = append(out, ec)
	}
	return out, nil
}

// Apply returns a copy of opts with the edge case applied.
func (ec EdgeCase) Apply(opts Options) Options {
	switch ec {
	case SpecialChars:
		opts.PatientName = "Müller-Schmidt^Éléonore"
		opts.SeriesDescription = "T2 FLAIR (Gd+) – axial"
		opts.Extra = append(append([]*dicom.Element(nil), opts.Extra...),
			mustNewElement(tag.SpecificCharacterSet, []string{"ISO_IR 192"}))
	case LongNames:
		name := "ALEXANDROPOULOSWILLIAMSONBERG^MARGARETISABELLAVICTORIAJANE"
		opts.PatientName = name[:min(len(name), MaxLOLength)]
		opts.PatientID = strings.Repeat("ABCDEFGHIJKLMNOP", 4)
		opts.SeriesDescription = strings.Repeat("LONG DESCRIPTION ", 4)[:MaxLOLength]
	case MissingTags:
		opts.PatientName = ""
		opts.StudyDate = ""
		opts.StudyTime = ""
		opts.Modality = ""
		opts.SeriesDescription = ""
	case PartialDates:
		opts.StudyDate = "2023"
		opts.StudyTime = "14"
	case VariedIDs:
		opts.PatientID = "PT-2024-ABC 123"
	}
	return opts
}

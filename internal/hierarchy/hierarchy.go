// Package hierarchy organizes classified DICOM files into a subject, visit,
// series and sequence tree (patient, study, series and instance in DICOM terms).
package hierarchy

import (
	"sort"
	"time"

	"github.com/araddon/dateparse"

	"github.com/mrsinham/dicomscope/internal/dicom"
)

// Hierarchy is the root of the tree. Every level iterates in insertion order.
type Hierarchy struct {
	Subjects OrderedMap[string, *Subject] `json:"subjects"`
}

// Subject is a patient, keyed by patient ID.
type Subject struct {
	ID     string                     `json:"id"`
	Name   string                     `json:"name"`
	Visits OrderedMap[string, *Visit] `json:"visits"`
}

// Visit is a study, keyed by Study Instance UID within its subject.
type Visit struct {
	ID     string                      `json:"id"`
	Date   string                      `json:"date"`
	Series OrderedMap[string, *Series] `json:"series"`
}

// Series is keyed by Series Instance UID within its visit.
type Series struct {
	ID          string                        `json:"id"`
	Description string                        `json:"description"`
	Modality    string                        `json:"modality"`
	Sequences   OrderedMap[string, *Sequence] `json:"sequences"`
}

// Sequence is a single instance, keyed by its instance number within its series.
type Sequence struct {
	ID             string         `json:"id"`
	InstanceNumber int            `json:"instanceNumber"`
	Metadata       dicom.Metadata `json:"metadata"`
	// ImageID is empty when the image could not be registered.
	ImageID string `json:"imageId"`
}

// Stats counts the nodes of a hierarchy.
type Stats struct {
	Subjects  int `json:"subjects"`
	Visits    int `json:"visits"`
	Series    int `json:"series"`
	Sequences int `json:"sequences"`
}

// Stats walks the tree and counts every level.
func (h *Hierarchy) Stats() Stats {
	var s Stats
	for _, subject := range h.Subjects.All() {
		s.Subjects++
		for _, visit := range subject.Visits.All() {
			s.Visits++
			for _, series := range visit.Series.All() {
				s.Series++
				s.Sequences += series.Sequences.Len()
			}
		}
	}
	return s
}

// Find returns the series at the given path.
func (h *Hierarchy) Find(subjectID, visitID, seriesID string) (*Series, bool) {
	subject, ok := h.Subjects.Get(subjectID)
	if !ok {
		return nil, false
	}
	visit, ok := subject.Visits.Get(visitID)
	if !ok {
		return nil, false
	}
	return visit.Series.Get(seriesID)
}

// Stack returns the sequences that have an image, ordered by instance number.
// Sequences sharing an instance number keep their insertion order.
func (s *Series) Stack() []Sequence {
	out := make([]Sequence, 0, s.Sequences.Len())
	for _, seq := range s.Sequences.All() {
		if seq.ImageID != "" {
			out = append(out, *seq)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].InstanceNumber < out[j].InstanceNumber
	})
	return out
}

// ParsedDate interprets the visit date, which is normally YYYY-MM-DD but may
// carry whatever the source file held.
func (v *Visit) ParsedDate() (time.Time, error) {
	return dateparse.ParseIn(v.Date, time.UTC)
}

// DisplayDate renders the visit date as "02 Jan 2006", or the raw value when
// it cannot be parsed.
func (v *Visit) DisplayDate() string {
	t, err := v.ParsedDate()
	if err != nil {
		return v.Date
	}
	return t.Format("02 Jan 2006")
}

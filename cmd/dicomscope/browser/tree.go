package browser

import (
	"fmt"

	"github.com/mrsinham/dicomscope/internal/dicom"
	"github.com/mrsinham/dicomscope/internal/hierarchy"
	"github.com/mrsinham/dicomscope/internal/util"
)

type nodeKind int

const (
	kindSubject nodeKind = iota
	kindVisit
	kindSeries
	kindSequence
)

// row is one visible line of the tree. It copies what the detail panel
// needs so the hierarchy lock is not held while rendering.
type row struct {
	kind  nodeKind
	sel   hierarchy.Selection
	label string

	children int
	name     string
	date     string
	modality string
	sequence hierarchy.Sequence
}

func (r row) path() string {
	return r.sel.SubjectID + "\x00" + r.sel.VisitID + "\x00" + r.sel.SeriesID + "\x00" + r.sel.SequenceID
}

// flatten lists the visible rows of h in insertion order. Children of a node
// are listed only when its path is in expanded.
func flatten(h *hierarchy.Hierarchy, expanded map[string]bool) []row {
	var rows []row
	for _, subject := range h.Subjects.All() {
		r := row{
			kind:     kindSubject,
			sel:      hierarchy.Selection{SubjectID: subject.ID},
			label:    fmt.Sprintf("%s (%s)", util.FormatPersonName(subject.Name), subject.ID),
			children: subject.Visits.Len(),
			name:     subject.Name,
		}
		rows = append(rows, r)
		if !expanded[r.path()] {
			continue
		}

		for _, visit := range subject.Visits.All() {
			r := row{
				kind:     kindVisit,
				sel:      hierarchy.Selection{SubjectID: subject.ID, VisitID: visit.ID},
				label:    visit.DisplayDate(),
				children: visit.Series.Len(),
				date:     visit.Date,
			}
			rows = append(rows, r)
			if !expanded[r.path()] {
				continue
			}

			for _, series := range visit.Series.All() {
				r := row{
					kind:     kindSeries,
					sel:      hierarchy.Selection{SubjectID: subject.ID, VisitID: visit.ID, SeriesID: series.ID},
					label:    fmt.Sprintf("%s [%s]", series.Description, series.Modality),
					children: series.Sequences.Len(),
					name:     series.Description,
					modality: series.Modality,
				}
				rows = append(rows, r)
				if !expanded[r.path()] {
					continue
				}

				for _, seq := range series.Sequences.All() {
					rows = append(rows, row{
						kind: kindSequence,
						sel: hierarchy.Selection{
							SubjectID:  subject.ID,
							VisitID:    visit.ID,
							SeriesID:   series.ID,
							SequenceID: seq.ID,
						},
						label:    "Instance " + seq.ID,
						sequence: *seq,
					})
				}
			}
		}
	}
	return rows
}

func (r row) indent() int {
	return int(r.kind) * 2
}

func (r row) expandable() bool {
	return r.kind != kindSequence && r.children > 0
}

// details returns label/value pairs describing the row.
func (r row) details(stackSize int) [][2]string {
	switch r.kind {
	case kindSubject:
		return [][2]string{
			{"Patient", util.FormatPersonName(r.name)},
			{"Patient ID", r.sel.SubjectID},
			{"Visits", fmt.Sprint(r.children)},
		}
	case kindVisit:
		return [][2]string{
			{"Study date", r.date},
			{"Study UID", r.sel.VisitID},
			{"Series", fmt.Sprint(r.children)},
		}
	case kindSeries:
		return [][2]string{
			{"Description", r.name},
			{"Modality", fmt.Sprintf("%s (%s)", r.modality, dicom.Modality(r.modality).Description())},
			{"Series UID", r.sel.SeriesID},
			{"Sequences", fmt.Sprint(r.children)},
			{"Stack size", fmt.Sprint(stackSize)},
		}
	default:
		md := r.sequence.Metadata
		imageID := r.sequence.ImageID
		if imageID == "" {
			imageID = "(not registered)"
		}
		return [][2]string{
			{"Patient ID", md.PatientID},
			{"Patient name", md.PatientName},
			{"Study date", md.StudyDate},
			{"Study time", md.StudyTime},
			{"Modality", md.Modality},
			{"Series", md.SeriesDescription},
			{"Instance", fmt.Sprint(md.InstanceNumber)},
			{"Study UID", md.StudyInstanceUID},
			{"Series UID", md.SeriesInstanceUID},
			{"Image ID", imageID},
		}
	}
}

package hierarchy

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mrsinham/dicomscope/internal/dicom"
)

// ErrNotFound is returned when a subject, visit, series or sequence does not exist.
var ErrNotFound = errors.New("not found")

// Selection holds the four active cursors. An empty string means no selection
// at that level.
type Selection struct {
	SubjectID  string `json:"subjectId"`
	VisitID    string `json:"visitId"`
	SeriesID   string `json:"seriesId"`
	SequenceID string `json:"sequenceId"`
}

// IsZero reports whether no cursor is set.
func (s Selection) IsZero() bool {
	return s == Selection{}
}

// Builder accumulates metadata records into a Hierarchy. All methods are safe
// for concurrent use; AddMetadata calls are applied one at a time in call order.
type Builder struct {
	mu        sync.RWMutex
	tree      *Hierarchy
	selection Selection
}

// NewBuilder returns a Builder holding an empty hierarchy.
func NewBuilder() *Builder {
	return &Builder{tree: &Hierarchy{}}
}

// Reset replaces the hierarchy with an empty one and clears all cursors.
func (b *Builder) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tree = &Hierarchy{}
	b.selection = Selection{}
}

// AddMetadata files md under its subject, visit and series, creating them as
// needed. Names, dates, descriptions and modalities of existing subjects,
// visits and series are never updated. The sequence at md's instance number is
// always replaced.
func (b *Builder) AddMetadata(md dicom.Metadata, imageID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subject, ok := b.tree.Subjects.Get(md.PatientID)
	if !ok {
		subject = &Subject{ID: md.PatientID, Name: md.PatientName}
		b.tree.Subjects.Set(subject.ID, subject)
	}

	visit, ok := subject.Visits.Get(md.StudyInstanceUID)
	if !ok {
		visit = &Visit{ID: md.StudyInstanceUID, Date: md.StudyDate}
		subject.Visits.Set(visit.ID, visit)
	}

	series, ok := visit.Series.Get(md.SeriesInstanceUID)
	if !ok {
		series = &Series{
			ID:          md.SeriesInstanceUID,
			Description: md.SeriesDescription,
			Modality:    md.Modality,
		}
		visit.Series.Set(series.ID, series)
	}

	key := md.Key()
	series.Sequences.Set(key, &Sequence{
		ID:             key,
		InstanceNumber: md.InstanceNumber,
		Metadata:       md,
		ImageID:        imageID,
	})
}

// View calls fn with the current hierarchy under a read lock. fn must not
// retain or modify the hierarchy.
func (b *Builder) View(fn func(h *Hierarchy)) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	fn(b.tree)
}

// Stats counts the nodes of the current hierarchy.
func (b *Builder) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tree.Stats()
}

// SequencesOfSeries returns the image stack of a series: its sequences with a
// non-empty image ID, ordered by instance number.
func (b *Builder) SequencesOfSeries(subjectID, visitID, seriesID string) ([]Sequence, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	series, ok := b.tree.Find(subjectID, visitID, seriesID)
	if !ok {
		return nil, fmt.Errorf("series %s/%s/%s: %w", subjectID, visitID, seriesID, ErrNotFound)
	}
	return series.Stack(), nil
}

// Selection returns the active cursors.
func (b *Builder) Selection() Selection {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.selection
}

// Select replaces all four cursors. Every non-empty cursor must name a child
// of the cursor above it; on error the selection is left unchanged.
func (b *Builder) Select(sel Selection) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.validate(sel); err != nil {
		return err
	}
	b.selection = sel
	return nil
}

// SelectSubject sets the subject cursor and clears the cursors below it.
func (b *Builder) SelectSubject(id string) error {
	return b.selectLevel(func(s *Selection) {
		*s = Selection{SubjectID: id}
	})
}

// SelectVisit sets the visit cursor within the selected subject and clears
// the cursors below it.
func (b *Builder) SelectVisit(id string) error {
	return b.selectLevel(func(s *Selection) {
		s.VisitID, s.SeriesID, s.SequenceID = id, "", ""
	})
}

// SelectSeries sets the series cursor within the selected visit and clears
// the sequence cursor.
func (b *Builder) SelectSeries(id string) error {
	return b.selectLevel(func(s *Selection) {
		s.SeriesID, s.SequenceID = id, ""
	})
}

// SelectSequence sets the sequence cursor within the selected series.
func (b *Builder) SelectSequence(id string) error {
	return b.selectLevel(func(s *Selection) {
		s.SequenceID = id
	})
}

func (b *Builder) selectLevel(update func(*Selection)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	next := b.selection
	update(&next)
	if err := b.validate(next); err != nil {
		return err
	}
	b.selection = next
	return nil
}

func (b *Builder) validate(sel Selection) error {
	if sel.SubjectID == "" {
		if sel.VisitID != "" || sel.SeriesID != "" || sel.SequenceID != "" {
			return fmt.Errorf("visit selected without subject: %w", ErrNotFound)
		}
		return nil
	}
	subject, ok := b.tree.Subjects.Get(sel.SubjectID)
	if !ok {
		return fmt.Errorf("subject %q: %w", sel.SubjectID, ErrNotFound)
	}

	if sel.VisitID == "" {
		if sel.SeriesID != "" || sel.SequenceID != "" {
			return fmt.Errorf("series selected without visit: %w", ErrNotFound)
		}
		return nil
	}
	visit, ok := subject.Visits.Get(sel.VisitID)
	if !ok {
		return fmt.Errorf("visit %q: %w", sel.VisitID, ErrNotFound)
	}

	if sel.SeriesID == "" {
		if sel.SequenceID != "" {
			return fmt.Errorf("sequence selected without series: %w", ErrNotFound)
		}
		return nil
	}
	series, ok := visit.Series.Get(sel.SeriesID)
	if !ok {
		return fmt.Errorf("series %q: %w", sel.SeriesID, ErrNotFound)
	}

	if sel.SequenceID == "" {
		return nil
	}
	if _, ok := series.Sequences.Get(sel.SequenceID); !ok {
		return fmt.Errorf("sequence %q: %w", sel.SequenceID, ErrNotFound)
	}
	return nil
}

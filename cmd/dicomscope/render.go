package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mrsinham/dicomscope/internal/hierarchy"
	"github.com/mrsinham/dicomscope/internal/scan"
	"github.com/mrsinham/dicomscope/internal/util"
)

// printTree writes the hierarchy in insertion order. With stacks, each
// series lists its image stack ordered by instance number instead of its
// sequences in discovery order.
func printTree(w io.Writer, h *hierarchy.Hierarchy, stacks bool) {
	for _, subject := range h.Subjects.All() {
		fmt.Fprintf(w, "%s  %s\n", subject.ID, util.FormatPersonName(subject.Name))
		for _, visit := range subject.Visits.All() {
			fmt.Fprintf(w, "  %s  %s\n", visit.DisplayDate(), visit.ID)
			for _, series := range visit.Series.All() {
				fmt.Fprintf(w, "    [%s] %s  (%d sequences)\n", series.Modality, series.Description, series.Sequences.Len())
				if stacks {
					for i, seq := range series.Stack() {
						fmt.Fprintf(w, "      %3d. #%d  %s\n", i+1, seq.InstanceNumber, seq.ImageID)
					}
					continue
				}
				for _, seq := range series.Sequences.All() {
					imageID := seq.ImageID
					if imageID == "" {
						imageID = "-"
					}
					fmt.Fprintf(w, "      #%s  %s\n", seq.ID, imageID)
				}
			}
		}
	}
}

func printSummary(w io.Writer, s scan.Summary, stats hierarchy.Stats) {
	fmt.Fprintf(w, "\n✓ Scanned %d files in %.1fs\n", s.Files, s.Duration.Seconds())
	fmt.Fprintf(w, "  DICOM: %d, not DICOM: %d, unreadable: %d", s.DICOM, s.NotDICOM, s.Unreadable)
	if s.RegistrationFailures > 0 {
		fmt.Fprintf(w, ", registration failures: %d", s.RegistrationFailures)
	}
	fmt.Fprintln(w)
	if s.Skipped > 0 {
		fmt.Fprintf(w, "  Skipped %d files larger than %s\n", s.Skipped, util.FormatSize(s.MaxFileSize))
	}
	fmt.Fprintf(w, "  Subjects: %d, visits: %d, series: %d, sequences: %d\n",
		stats.Subjects, stats.Visits, stats.Series, stats.Sequences)
}

type scanReport struct {
	Summary  scan.Summary    `json:"summary"`
	Stats    hierarchy.Stats `json:"stats"`
	Subjects any             `json:"subjects"`
}

func printJSON(w io.Writer, h *hierarchy.Hierarchy, s scan.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(scanReport{
		Summary:  s,
		Stats:    h.Stats(),
		Subjects: h.Subjects,
	})
}

func printFields(w io.Writer, rows [][2]string) {
	width := 0
	for _, r := range rows {
		width = max(width, len(r[0]))
	}
	for _, r := range rows {
		fmt.Fprintf(w, "  %s%s  %s\n", r[0], strings.Repeat(" ", width-len(r[0])), r[1])
	}
}

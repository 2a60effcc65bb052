// Package dicom classifies raw byte blobs as DICOM Part 10 files and extracts
// the attributes used to place them in the subject/visit/series/sequence tree.
package dicom

import "bytes"

const (
	// PreambleLength is the size of the free-form preamble preceding the magic word.
	PreambleLength = 128
	// SniffLength is the number of leading bytes IsDICOM needs to decide.
	SniffLength = PreambleLength + len(MagicWord)
)

// MagicWord is the literal following the preamble of every Part 10 file.
const MagicWord = "DICM"

// Kind is the outcome of classifying a blob.
type Kind int

const (
	NotDICOM Kind = iota
	DICOM
)

func (k Kind) String() string {
	if k == DICOM {
		return "DICOM"
	}
	return "NotDICOM"
}

// Classification is the result of Classify. Metadata is only meaningful when
// Kind is DICOM.
type Classification struct {
	Kind     Kind
	Metadata Metadata
}

// IsDICOM reports whether data carries the DICM magic word at offset 128.
// Only the first SniffLength bytes are read; shorter inputs are not DICOM.
func IsDICOM(data []byte) bool {
	if len(data) < SniffLength {
		return false
	}
	return bytes.Equal(data[PreambleLength:SniffLength], []byte(MagicWord))
}

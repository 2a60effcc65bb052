// Package dicomtest builds DICOM Part 10 byte streams for tests.
package dicomtest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"testing"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// ExplicitVRLittleEndian is the transfer syntax of every built file.
const ExplicitVRLittleEndian = "1.2.840.10008.1.2.1"

// Options describes the file to build. Empty string fields are omitted from
// the data set.
type Options struct {
	PatientID         string
	PatientName       string
	StudyDate         string
	StudyTime         string
	StudyInstanceUID  string
	Modality          string
	SeriesDescription string
	SeriesInstanceUID string
	InstanceNumber    string
	SOPInstanceUID    string
	WindowCenter      string
	WindowWidth       string

	// Empty lists tags written with an empty value.
	Empty []tag.Tag

	// Private adds vendor private elements with explicit VRs.
	Private bool

	// Rows and Cols add a single 16-bit MONOCHROME2 frame when both are set.
	// Pixels defaults to a horizontal gradient.
	Rows, Cols int
	Pixels     []uint16

	// Extra elements appended to the data set.
	Extra []*dicom.Element
}

// Sample returns options for a complete MR instance.
func Sample() Options {
	return Options{
		PatientID:         "PID000123",
		PatientName:       "DOE^JANE",
		StudyDate:         "20230405",
		StudyTime:         "143000.500000",
		StudyInstanceUID:  "1.2.826.0.1.3680043.8.498.1",
		Modality:          "MR",
		SeriesDescription: "T1 AXIAL",
		SeriesInstanceUID: "1.2.826.0.1.3680043.8.498.1.1",
		InstanceNumber:    "1",
		SOPInstanceUID:    "1.2.826.0.1.3680043.8.498.1.1.1",
	}
}

// Build writes a Part 10 stream with a 128 byte zero preamble.
func Build(opts Options) ([]byte, error) {
	elements := []*dicom.Element{
		mustNewElement(tag.TransferSyntaxUID, []string{ExplicitVRLittleEndian}),
		mustNewElement(tag.MediaStorageSOPClassUID, []string{"1.2.840.10008.5.1.4.1.1.4"}),
		mustNewElement(tag.SOPClassUID, []string{"1.2.840.10008.5.1.4.1.1.4"}),
	}
	if opts.SOPInstanceUID != "" {
		elements = append(elements, mustNewElement(tag.MediaStorageSOPInstanceUID, []string{opts.SOPInstanceUID}))
	}

	fields := []struct {
		t     tag.Tag
		value string
	}{
		{tag.PatientID, opts.PatientID},
		{tag.PatientName, opts.PatientName},
		{tag.StudyDate, opts.StudyDate},
		{tag.StudyTime, opts.StudyTime},
		{tag.StudyInstanceUID, opts.StudyInstanceUID},
		{tag.Modality, opts.Modality},
		{tag.SeriesDescription, opts.SeriesDescription},
		{tag.SeriesInstanceUID, opts.SeriesInstanceUID},
		{tag.InstanceNumber, opts.InstanceNumber},
		{tag.SOPInstanceUID, opts.SOPInstanceUID},
		{tag.WindowCenter, opts.WindowCenter},
		{tag.WindowWidth, opts.WindowWidth},
	}
	for _, f := range fields {
		if f.value != "" {
			elements = append(elements, mustNewElement(f.t, []string{f.value}))
		}
	}
	for _, t := range opts.Empty {
		elements = append(elements, mustNewElement(t, []string{""}))
	}
	if opts.Private {
		elements = append(elements, privateElements()...)
	}
	if opts.Rows > 0 && opts.Cols > 0 {
		pixels, err := pixelElements(opts)
		if err != nil {
			return nil, err
		}
		elements = append(elements, pixels...)
	}
	elements = append(elements, opts.Extra...)

	sort.SliceStable(elements, func(i, j int) bool {
		a, b := elements[i].Tag, elements[j].Tag
		if a.Group != b.Group {
			return a.Group < b.Group
		}
		return a.Element < b.Element
	})

	var buf bytes.Buffer
	writeOpts := []dicom.WriteOption{}
	if opts.Private {
		writeOpts = append(writeOpts, dicom.SkipVRVerification())
	}
	if err := dicom.Write(&buf, dicom.Dataset{Elements: elements}, writeOpts...); err != nil {
		return nil, fmt.Errorf("write dataset: %w", err)
	}
	return buf.Bytes(), nil
}

// MustBuild is Build failing the test on error.
func MustBuild(tb testing.TB, opts Options) []byte {
	tb.Helper()
	data, err := Build(opts)
	if err != nil {
		tb.Fatalf("dicomtest.Build: %v", err)
	}
	return data
}

// Preamble returns a 128 byte zero preamble, the DICM magic word and rest.
func Preamble(rest []byte) []byte {
	out := make([]byte, 128, 132+len(rest))
	out = append(out, "DICM"...)
	return append(out, rest...)
}

// BreakElement returns a copy of data in which the value length of the
// element with tag t claims more bytes than the file holds, so parsing stops
// at that element. It fails the test when the element is not found.
func BreakElement(tb testing.TB, data []byte, t tag.Tag) []byte {
	tb.Helper()
	out := bytes.Clone(data)

	needle := make([]byte, 4)
	binary.LittleEndian.PutUint16(needle[0:2], t.Group)
	binary.LittleEndian.PutUint16(needle[2:4], t.Element)

	i := bytes.Index(out[132:], needle)
	if i < 0 || 132+i+12 > len(out) {
		tb.Fatalf("dicomtest.BreakElement: tag %v not found", t)
	}
	i += 132

	switch string(out[i+4 : i+6]) {
	case "OB", "OW", "OF", "SQ", "UC", "UN", "UR", "UT":
		// VR(2) + reserved(2) + VL(4)
		binary.LittleEndian.PutUint32(out[i+8:i+12], 0x7FFFFFF0)
	default:
		// VR(2) + VL(2)
		binary.LittleEndian.PutUint16(out[i+6:i+8], 0xFFFE)
	}
	return out
}

// UnknownTransferSyntax returns a copy of data whose Transfer Syntax UID is
// rewritten to an unregistered value of the same length, so the data set
// after the file meta group cannot be decoded.
func UnknownTransferSyntax(tb testing.TB, data []byte) []byte {
	tb.Helper()
	const unknown = "1.2.840.10008.1.2.9"
	i := bytes.Index(data, []byte(ExplicitVRLittleEndian))
	if i < 0 {
		tb.Fatalf("dicomtest.UnknownTransferSyntax: transfer syntax not found")
	}
	out := bytes.Clone(data)
	copy(out[i:], unknown)
	return out
}

func mustNewElement(t tag.Tag, value any) *dicom.Element {
	elem, err := dicom.NewElement(t, value)
	if err != nil {
		panic(fmt.Sprintf("failed to create element %v: %v", t, err))
	}
	return elem
}

// privateElements mimics the GE private creator and parameter blocks.
func privateElements() []*dicom.Element {
	return []*dicom.Element{
		mustNewPrivateElement(tag.Tag{Group: 0x0009, Element: 0x0010}, "LO", []string{"GEMS_IDEN_01"}),
		mustNewPrivateElement(tag.Tag{Group: 0x0043, Element: 0x0010}, "LO", []string{"GEMS_PARM_01"}),
		mustNewPrivateElement(tag.Tag{Group: 0x0043, Element: 0x1039}, "IS", []string{"1000", "8", "0", "0"}),
		mustNewPrivateElement(tag.Tag{Group: 0x0043, Element: 0x1080}, "OB", bytes.Repeat([]byte{0xAB}, 128)),
	}
}

func mustNewPrivateElement(t tag.Tag, rawVR string, data any) *dicom.Element {
	value, err := dicom.NewValue(data)
	if err != nil {
		panic(fmt.Sprintf("failed to create value for private element %v: %v", t, err))
	}
	return &dicom.Element{
		Tag:                    t,
		ValueRepresentation:    tag.GetVRKind(t, rawVR),
		RawValueRepresentation: rawVR,
		Value:                  value,
	}
}

func pixelElements(opts Options) ([]*dicom.Element, error) {
	n := opts.Rows * opts.Cols
	pixels := opts.Pixels
	if pixels == nil {
		pixels = make([]uint16, n)
		for i := range pixels {
			pixels[i] = uint16((i % opts.Cols) * 4095 / max(1, opts.Cols-1))
		}
	}
	if len(pixels) != n {
		return nil, fmt.Errorf("pixels: got %d values, want %d", len(pixels), n)
	}

	nativeFrame := frame.NewNativeFrame[uint16](16, opts.Rows, opts.Cols, n, 1)
	copy(nativeFrame.RawData, pixels)

	info := dicom.PixelDataInfo{
		Frames: []*frame.Frame{
			{
				Encapsulated: false,
				NativeData:   nativeFrame,
			},
		},
	}
	return []*dicom.Element{
		mustNewElement(tag.SamplesPerPixel, []int{1}),
		mustNewElement(tag.PhotometricInterpretation, []string{"MONOCHROME2"}),
		mustNewElement(tag.NumberOfFrames, []string{"1"}),
		mustNewElement(tag.Rows, []int{opts.Rows}),
		mustNewElement(tag.Columns, []int{opts.Cols}),
		mustNewElement(tag.BitsAllocated, []int{16}),
		mustNewElement(tag.BitsStored, []int{12}),
		mustNewElement(tag.HighBit, []int{11}),
		mustNewElement(tag.PixelRepresentation, []int{0}),
		mustNewElement(tag.PixelData, info),
	}, nil
}

package dicom

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/mrsinham/dicomscope/internal/dicom/dicomtest"
	"github.com/suyashkumar/dicom/pkg/tag"
)

var fixedNow = time.Date(2024, 2, 29, 8, 5, 9, 0, time.UTC)

func newTestExtractor() *Extractor {
	return NewExtractor(WithClock(func() time.Time { return fixedNow }))
}

func defaultsAt(now time.Time) Metadata {
	return Metadata{
		PatientID:         DefaultPatientID,
		PatientName:       DefaultPatientName,
		StudyDate:         now.Format("2006-01-02"),
		StudyTime:         now.Format("15:04:05"),
		Modality:          DefaultModality,
		SeriesDescription: DefaultSeriesDescription,
		InstanceNumber:    DefaultInstanceNumber,
		StudyInstanceUID:  FallbackStudyInstanceUID,
		SeriesInstanceUID: FallbackSeriesInstanceUID,
	}
}

func TestExtract_AllFields(t *testing.T) {
	data := dicomtest.MustBuild(t, dicomtest.Sample())

	got := newTestExtractor().Extract(data)
	want := Metadata{
		PatientID:         "PID000123",
		PatientName:       "DOE^JANE",
		StudyDate:         "2023-04-05",
		StudyTime:         "14:30:00",
		Modality:          "MR",
		SeriesDescription: "T1 AXIAL",
		InstanceNumber:    1,
		StudyInstanceUID:  "1.2.826.0.1.3680043.8.498.1",
		SeriesInstanceUID: "1.2.826.0.1.3680043.8.498.1.1",
	}
	if got != want {
		t.Errorf("Extract() = %+v, want %+v", got, want)
	}
}

func TestExtract_MissingTagsUseDefaults(t *testing.T) {
	data := dicomtest.MustBuild(t, dicomtest.Options{SOPInstanceUID: "1.2.3"})

	got := newTestExtractor().Extract(data)
	if want := defaultsAt(fixedNow); got != want {
		t.Errorf("Extract() = %+v, want %+v", got, want)
	}
}

func TestExtract_EmptyValuesUseDefaults(t *testing.T) {
	data := dicomtest.MustBuild(t, dicomtest.Options{
		Empty: []tag.Tag{
			tag.PatientID, tag.PatientName, tag.StudyDate, tag.StudyTime,
			tag.Modality, tag.SeriesDescription, tag.InstanceNumber,
			tag.StudyInstanceUID, tag.SeriesInstanceUID,
		},
	})

	got := newTestExtractor().Extract(data)
	if want := defaultsAt(fixedNow); got != want {
		t.Errorf("Extract() = %+v, want %+v", got, want)
	}
}

func TestExtract_Normalization(t *testing.T) {
	tests := []struct {
		name     string
		date     string
		time     string
		instance string
		wantDate string
		wantTime string
		wantInst int
	}{
		{"compact", "20230405", "143000", "3", "2023-04-05", "14:30:00", 3},
		{"already formatted date", "2023-04-05", "1430", "12", "2023-04-05", "14:30:00", 12},
		{"hour only", "20230405", "14", "7", "2023-04-05", "14:00:00", 7},
		{"fractional seconds", "20230405", "143000.500000", "1", "2023-04-05", "14:30:00", 1},
		{"unparseable instance", "20230405", "143000", "abc", "2023-04-05", "14:30:00", DefaultInstanceNumber},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := dicomtest.Sample()
			opts.StudyDate = tt.date
			opts.StudyTime = tt.time
			opts.InstanceNumber = tt.instance

			got := newTestExtractor().Extract(dicomtest.MustBuild(t, opts))
			if got.StudyDate != tt.wantDate {
				t.Errorf("StudyDate = %q, want %q", got.StudyDate, tt.wantDate)
			}
			if got.StudyTime != tt.wantTime {
				t.Errorf("StudyTime = %q, want %q", got.StudyTime, tt.wantTime)
			}
			if got.InstanceNumber != tt.wantInst {
				t.Errorf("InstanceNumber = %d, want %d", got.InstanceNumber, tt.wantInst)
			}
		})
	}
}

func TestExtract_UnparseableIsAllDefaults(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"magic only", dicomtest.Preamble(nil)},
		{"garbage after magic", dicomtest.Preamble([]byte("this is not a data set at all"))},
		{"truncated header", dicomtest.MustBuild(t, dicomtest.Sample())[:140]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newTestExtractor().Extract(tt.data)
			if want := defaultsAt(fixedNow); got != want {
				t.Errorf("Extract() = %+v, want %+v", got, want)
			}
		})
	}
}

func TestExtract_KeepsElementsBeforeUnreadableOne(t *testing.T) {
	data := dicomtest.MustBuild(t, dicomtest.Sample())
	data = dicomtest.BreakElement(t, data, tag.SeriesDescription)

	got := newTestExtractor().Extract(data)

	// (0008,xxxx) elements precede the broken one; group 0010 and 0020 follow it.
	if got.StudyDate != "2023-04-05" {
		t.Errorf("StudyDate = %q, want %q", got.StudyDate, "2023-04-05")
	}
	if got.Modality != "MR" {
		t.Errorf("Modality = %q, want %q", got.Modality, "MR")
	}
	if got.SeriesDescription != DefaultSeriesDescription {
		t.Errorf("SeriesDescription = %q, want %q", got.SeriesDescription, DefaultSeriesDescription)
	}
	if got.PatientID != DefaultPatientID {
		t.Errorf("PatientID = %q, want %q", got.PatientID, DefaultPatientID)
	}
	if got.SeriesInstanceUID != FallbackSeriesInstanceUID {
		t.Errorf("SeriesInstanceUID = %q, want %q", got.SeriesInstanceUID, FallbackSeriesInstanceUID)
	}
}

func TestExtract_UnknownTransferSyntax(t *testing.T) {
	opts := dicomtest.Sample()
	opts.Rows, opts.Cols = 4, 4
	data := dicomtest.UnknownTransferSyntax(t, dicomtest.MustBuild(t, opts))

	got := newTestExtractor().Extract(data)
	if want := defaultsAt(fixedNow); got != want {
		t.Errorf("Extract() = %+v, want %+v", got, want)
	}

	if _, err := parseTolerant(data); !errors.Is(err, ErrMalformed) {
		t.Errorf("parseTolerant() error = %v, want %v", err, ErrMalformed)
	}
}

func TestExtract_NeverEmpty(t *testing.T) {
	inputs := [][]byte{
		dicomtest.Preamble(nil),
		dicomtest.MustBuild(t, dicomtest.Options{}),
		dicomtest.MustBuild(t, dicomtest.Options{Empty: []tag.Tag{tag.PatientID}}),
		dicomtest.MustBuild(t, dicomtest.Sample()),
	}

	for i, data := range inputs {
		md := ExtractMetadata(data)
		for name, v := range map[string]string{
			"PatientID":         md.PatientID,
			"PatientName":       md.PatientName,
			"StudyDate":         md.StudyDate,
			"StudyTime":         md.StudyTime,
			"Modality":          md.Modality,
			"SeriesDescription": md.SeriesDescription,
			"StudyInstanceUID":  md.StudyInstanceUID,
			"SeriesInstanceUID": md.SeriesInstanceUID,
		} {
			if v == "" {
				t.Errorf("input %d: %s is empty", i, name)
			}
		}
	}
}

func TestClassify(t *testing.T) {
	e := newTestExtractor()

	if got := e.Classify(make([]byte, 50)); got.Kind != NotDICOM {
		t.Errorf("Classify(50 bytes).Kind = %v, want %v", got.Kind, NotDICOM)
	}
	if got := e.Classify(bytes.Repeat([]byte("plain text "), 20)); got.Kind != NotDICOM {
		t.Errorf("Classify(text).Kind = %v, want %v", got.Kind, NotDICOM)
	}

	got := e.Classify(dicomtest.MustBuild(t, dicomtest.Sample()))
	if got.Kind != DICOM {
		t.Fatalf("Classify(sample).Kind = %v, want %v", got.Kind, DICOM)
	}
	if got.Metadata.PatientID != "PID000123" {
		t.Errorf("Classify(sample).Metadata.PatientID = %q, want %q", got.Metadata.PatientID, "PID000123")
	}

	malformed := e.Classify(dicomtest.Preamble([]byte{0x01, 0x02}))
	if malformed.Kind != DICOM {
		t.Errorf("Classify(malformed).Kind = %v, want %v", malformed.Kind, DICOM)
	}
	if malformed.Metadata != defaultsAt(fixedNow) {
		t.Errorf("Classify(malformed).Metadata = %+v, want defaults", malformed.Metadata)
	}
}

func TestExtract_EdgeCases(t *testing.T) {
	tests := []struct {
		edgeCase dicomtest.EdgeCase
		check    func(t *testing.T, md Metadata)
	}{
		{dicomtest.SpecialChars, func(t *testing.T, md Metadata) {
			if md.PatientName != "Müller-Schmidt^Éléonore" {
				t.Errorf("PatientName = %q, want Müller-Schmidt^Éléonore", md.PatientName)
			}
		}},
		{dicomtest.LongNames, func(t *testing.T, md Metadata) {
			if len(md.PatientID) != dicomtest.MaxLOLength {
				t.Errorf("len(PatientID) = %d, want %d", len(md.PatientID), dicomtest.MaxLOLength)
			}
			if len(md.SeriesDescription) != dicomtest.MaxLOLength {
				t.Errorf("len(SeriesDescription) = %d, want %d", len(md.SeriesDescription), dicomtest.MaxLOLength)
			}
		}},
		{dicomtest.MissingTags, func(t *testing.T, md Metadata) {
			d := defaultsAt(fixedNow)
			if md.PatientName != d.PatientName || md.Modality != d.Modality || md.StudyDate != d.StudyDate ||
				md.SeriesDescription != d.SeriesDescription {
				t.Errorf("Extract() = %+v, want defaults for the removed fields", md)
			}
			if md.PatientID != "PID000123" {
				t.Errorf("PatientID = %q, want PID000123", md.PatientID)
			}
		}},
		{dicomtest.PartialDates, func(t *testing.T, md Metadata) {
			if md.StudyDate != "2023" || md.StudyTime != "14:00:00" {
				t.Errorf("StudyDate, StudyTime = %q, %q, want 2023, 14:00:00", md.StudyDate, md.StudyTime)
			}
		}},
		{dicomtest.VariedIDs, func(t *testing.T, md Metadata) {
			if md.PatientID != "PT-2024-ABC 123" {
				t.Errorf("PatientID = %q, want PT-2024-ABC 123", md.PatientID)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(string(tt.edgeCase), func(t *testing.T) {
			data := dicomtest.MustBuild(t, tt.edgeCase.Apply(dicomtest.Sample()))
			tt.check(t, newTestExtractor().Extract(data))
		})
	}
}

func TestParseEdgeCases(t *testing.T) {
	got, err := dicomtest.ParseEdgeCases("long-names, varied-ids")
	if err != nil {
		t.Fatalf("ParseEdgeCases returned error: %v", err)
	}
	if len(got) != 2 || got[0] != dicomtest.LongNames || got[1] != dicomtest.VariedIDs {
		t.Errorf("ParseEdgeCases() = %v, want [long-names varied-ids]", got)
	}
	if _, err := dicomtest.ParseEdgeCases("bogus"); err == nil {
		t.Error("ParseEdgeCases(bogus) error = nil, want error")
	}
}

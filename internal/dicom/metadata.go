package dicom

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/mrsinham/dicomscope/internal/util"
)

// Defaults substituted for absent, empty or unreadable attributes.
const (
	DefaultPatientID         = "Unknown"
	DefaultPatientName       = "Unknown Patient"
	DefaultModality          = "OT"
	DefaultSeriesDescription = "Unknown Series"
	DefaultInstanceNumber    = 1

	// FallbackStudyInstanceUID is shared by every file lacking a Study Instance UID,
	// so such files group into a single visit.
	FallbackStudyInstanceUID = "1.2.826.0.1.3680043.2.1143.1"
	// FallbackSeriesInstanceUID is shared by every file lacking a Series Instance UID.
	FallbackSeriesInstanceUID = "1.2.826.0.1.3680043.2.1143.2"
)

// Metadata holds the identifying attributes of one DICOM file. Every field is
// always populated.
type Metadata struct {
	PatientID         string `json:"patientId"`
	PatientName       string `json:"patientName"`
	StudyDate         string `json:"studyDate"`
	StudyTime         string `json:"studyTime"`
	Modality          string `json:"modality"`
	SeriesDescription string `json:"seriesDescription"`
	InstanceNumber    int    `json:"instanceNumber"`
	StudyInstanceUID  string `json:"studyInstanceUid"`
	SeriesInstanceUID string `json:"seriesInstanceUid"`
}

var (
	studyDatePattern  = regexp.MustCompile(`^\d{8}$`)
	studyTimePattern  = regexp.MustCompile(`^(\d+)(?:\.\d*)?$`)
	leadingIntPattern = regexp.MustCompile(`^\s*([+-]?\d+)`)
)

// normalizeDate rewrites YYYYMMDD as YYYY-MM-DD and leaves anything else as is.
func normalizeDate(raw string) string {
	if !studyDatePattern.MatchString(raw) {
		return raw
	}
	return raw[0:4] + "-" + raw[4:6] + "-" + raw[6:8]
}

// normalizeTime rewrites HHMMSS[.FFFFFF] as HH:MM:SS, padding missing minutes
// and seconds with zeros. Values that are not digits, or that carry fewer than
// two digits, are left as is.
func normalizeTime(raw string) string {
	m := studyTimePattern.FindStringSubmatch(raw)
	if m == nil {
		return raw
	}
	digits := m[1]
	switch {
	case len(digits) >= 6:
		return digits[0:2] + ":" + digits[2:4] + ":" + digits[4:6]
	case len(digits) >= 4:
		return digits[0:2] + ":" + digits[2:4] + ":00"
	case len(digits) >= 2:
		return digits[0:2] + ":00:00"
	default:
		return raw
	}
}

// parseInstanceNumber reads the leading base-10 integer of raw, so "3.0" and
// "12abc" give 3 and 12. Values without leading digits, or out of range, fall
// back to DefaultInstanceNumber.
func parseInstanceNumber(raw string) int {
	m := leadingIntPattern.FindStringSubmatch(raw)
	if m == nil {
		return DefaultInstanceNumber
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return DefaultInstanceNumber
	}
	return n
}

// firstString returns the first non-empty value of the element with tag t,
// trimmed of DICOM space and NUL padding. It returns "" when the element is
// absent or holds no string-like value.
func firstString(ds dicom.Dataset, t tag.Tag) string {
	elem, err := ds.FindElementByTag(t)
	if err != nil || elem == nil || elem.Value == nil {
		return ""
	}
	switch v := elem.Value.GetValue().(type) {
	case []string:
		for _, s := range v {
			if s = strings.Trim(s, " \x00"); s != "" {
				return s
			}
		}
	case []int:
		if len(v) > 0 {
			return strconv.Itoa(v[0])
		}
	case []float64:
		if len(v) > 0 {
			return strconv.FormatFloat(v[0], 'f', -1, 64)
		}
	}
	return ""
}

// identifying lists the attributes read into a Metadata record. Each Name
// matches a Metadata field.
var identifying = util.IdentifyingTags()

// metadataFromDataset builds a Metadata record from ds, substituting defaults.
// Study date and time defaults are derived from now.
func metadataFromDataset(ds dicom.Dataset, now time.Time) Metadata {
	raw := make(map[string]string, len(identifying))
	for _, info := range identifying {
		raw[info.Name] = firstString(ds, info.Tag)
	}
	get := func(name, def string) string {
		if v := raw[name]; v != "" {
			return v
		}
		return def
	}

	now = now.UTC()
	md := Metadata{
		PatientID:         get("PatientID", DefaultPatientID),
		PatientName:       get("PatientName", DefaultPatientName),
		StudyDate:         normalizeDate(get("StudyDate", now.Format(time.DateOnly))),
		StudyTime:         normalizeTime(get("StudyTime", now.Format(time.TimeOnly))),
		Modality:          get("Modality", DefaultModality),
		SeriesDescription: get("SeriesDescription", DefaultSeriesDescription),
		InstanceNumber:    DefaultInstanceNumber,
		StudyInstanceUID:  get("StudyInstanceUID", FallbackStudyInstanceUID),
		SeriesInstanceUID: get("SeriesInstanceUID", FallbackSeriesInstanceUID),
	}
	if v := raw["InstanceNumber"]; v != "" {
		md.InstanceNumber = parseInstanceNumber(v)
	}
	return md
}

// Key returns the identifier of this record's sequence within its series.
func (m Metadata) Key() string {
	return strconv.Itoa(m.InstanceNumber)
}

func (m Metadata) String() string {
	return fmt.Sprintf("%s/%s/%s/%d", m.PatientID, m.StudyInstanceUID, m.SeriesInstanceUID, m.InstanceNumber)
}

package dicom

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// ErrNotDICOM is returned by operations that require a DICOM blob.
var ErrNotDICOM = errors.New("not a DICOM file")

// maxInlineValueLength is the largest value rendered inline by Inspect.
// Longer values are summarized by their length.
const maxInlineValueLength = 100

var groupNames = map[uint16]string{
	0x0002: "File Meta Information",
	0x0008: "Identifying Information",
	0x0010: "Patient Information",
	0x0018: "Acquisition Information",
	0x0020: "Relationship Information",
	0x0028: "Image Presentation",
	0x0032: "Study Information",
	0x0040: "Procedure Information",
}

// InspectedElement is a display rendering of one data element.
type InspectedElement struct {
	Tag   tag.Tag `json:"-"`
	ID    string  `json:"tag"`
	Name  string  `json:"name"`
	VR    string  `json:"vr"`
	Value string  `json:"value"`
}

// Group collects the elements sharing a group number.
type Group struct {
	Number   uint16             `json:"-"`
	ID       string             `json:"group"`
	Name     string             `json:"name"`
	Elements []InspectedElement `json:"elements"`
}

// Inspection is the grouped element dump of one file.
type Inspection struct {
	Groups []Group `json:"groups"`
	// Incomplete is set when parsing stopped on an unreadable element.
	Incomplete bool `json:"incomplete,omitempty"`
}

// Find returns the element with tag t.
func (in Inspection) Find(t tag.Tag) (InspectedElement, bool) {
	for _, g := range in.Groups {
		if g.Number != t.Group {
			continue
		}
		for _, e := range g.Elements {
			if e.Tag == t {
				return e, true
			}
		}
	}
	return InspectedElement{}, false
}

// Inspect renders every element of a DICOM blob except pixel data, grouped by
// group number in ascending order. Elements keep their file order within a group.
func Inspect(data []byte) (Inspection, error) {
	if !IsDICOM(data) {
		return Inspection{}, ErrNotDICOM
	}
	ds, err := parseTolerant(data, dicom.SkipPixelData())
	if err != nil && len(ds.Elements) == 0 {
		return Inspection{}, fmt.Errorf("inspect: %w", err)
	}

	byGroup := make(map[uint16]*Group)
	for _, elem := range ds.Elements {
		if elem == nil || elem.Tag == tag.PixelData {
			continue
		}
		g, ok := byGroup[elem.Tag.Group]
		if !ok {
			g = &Group{
				Number: elem.Tag.Group,
				ID:     fmt.Sprintf("%04X", elem.Tag.Group),
				Name:   groupName(elem.Tag.Group),
			}
			byGroup[elem.Tag.Group] = g
		}
		g.Elements = append(g.Elements, inspectElement(elem))
	}

	out := Inspection{Incomplete: err != nil}
	for _, g := range byGroup {
		out.Groups = append(out.Groups, *g)
	}
	sort.Slice(out.Groups, func(i, j int) bool {
		return out.Groups[i].Number < out.Groups[j].Number
	})
	return out, nil
}

func groupName(group uint16) string {
	if name, ok := groupNames[group]; ok {
		return name
	}
	return fmt.Sprintf("Group %04X", group)
}

func inspectElement(elem *dicom.Element) InspectedElement {
	out := InspectedElement{
		Tag: elem.Tag,
		ID:  elem.Tag.String(),
		VR:  elem.RawValueRepresentation,
	}
	if info, err := tag.Find(elem.Tag); err == nil {
		out.Name = info.Name
	} else {
		out.Name = fmt.Sprintf("Unknown Tag %s", elem.Tag.String())
	}
	if out.VR == "" {
		out.VR = "Unknown"
	}
	out.Value = renderValue(elem)
	return out
}

func renderValue(elem *dicom.Element) string {
	if elem.Value == nil {
		return ""
	}
	switch v := elem.Value.GetValue().(type) {
	case []*dicom.SequenceItemValue:
		return fmt.Sprintf("[Sequence of %d items]", len(v))
	case []byte:
		if len(v) > maxInlineValueLength {
			return fmt.Sprintf("[Binary data, length: %d bytes]", len(v))
		}
		parts := make([]string, len(v))
		for i, b := range v {
			parts[i] = fmt.Sprintf("%02x", b)
		}
		return strings.Join(parts, " ")
	case []string:
		if elem.ValueLength > maxInlineValueLength {
			return fmt.Sprintf("[Binary data, length: %d bytes]", elem.ValueLength)
		}
		trimmed := make([]string, len(v))
		for i, s := range v {
			trimmed[i] = strings.Trim(s, " \x00")
		}
		return strings.Join(trimmed, ", ")
	case []int:
		parts := make([]string, len(v))
		for i, n := range v {
			parts[i] = strconv.Itoa(n)
		}
		return strings.Join(parts, ", ")
	case []float64:
		parts := make([]string, len(v))
		for i, f := range v {
			parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return strings.Join(parts, ", ")
	default:
		return elem.Value.String()
	}
}

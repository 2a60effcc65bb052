package util

import "strings"

// FormatPersonName renders a DICOM person name (PN) for display.
//
// PN values use '^' between components (family^given^middle^prefix^suffix)
// and '=' between the alphabetic, ideographic and phonetic groups. Only the
// alphabetic group is rendered: "DOE^JOHN^Q" becomes "DOE, JOHN Q".
// Values without components are returned trimmed and otherwise unchanged.
func FormatPersonName(pn string) string {
	alphabetic, _, _ := strings.Cut(strings.TrimSpace(pn), "=")
	parts := strings.Split(alphabetic, "^")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	family := parts[0]
	var rest []string
	for _, p := range parts[1:] {
		if p != "" {
			rest = append(rest, p)
		}
	}

	switch {
	case len(rest) == 0:
		return family
	case family == "":
		return strings.Join(rest, " ")
	default:
		return family + ", " + strings.Join(rest, " ")
	}
}

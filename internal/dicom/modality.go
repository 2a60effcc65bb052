package dicom

import "sort"

// Modality is a DICOM modality code such as "CT" or "MR".
type Modality string

const (
	CT Modality = "CT" // Computed Tomography
	MR Modality = "MR" // Magnetic Resonance
	CR Modality = "CR" // Computed Radiography
	DX Modality = "DX" // Digital Radiography
	MG Modality = "MG" // Mammography
	US Modality = "US" // Ultrasound
	PT Modality = "PT" // Positron Emission Tomography
	NM Modality = "NM" // Nuclear Medicine
	XA Modality = "XA" // X-Ray Angiography
	RF Modality = "RF" // Radio Fluoroscopy
	SC Modality = "SC" // Secondary Capture
	SR Modality = "SR" // Structured Report
	OT Modality = "OT" // Other
)

// WindowPreset represents a window/level preset.
type WindowPreset struct {
	Name   string
	Center float64
	Width  float64
}

type modalityInfo struct {
	description string
	// presets lists window presets, the default one first.
	presets []WindowPreset
}

var modalityTable = map[Modality]modalityInfo{
	CT: {
		description: "Computed Tomography",
		presets: []WindowPreset{
			{Name: "MEDIASTINUM", Center: 40, Width: 400},
			{Name: "BRAIN", Center: 40, Width: 80},
			{Name: "SUBDURAL", Center: 75, Width: 215},
			{Name: "BONE", Center: 400, Width: 2000},
			{Name: "LUNG", Center: -600, Width: 1500},
			{Name: "ABDOMEN", Center: 40, Width: 350},
			{Name: "LIVER", Center: 60, Width: 150},
		},
	},
	MR: {
		description: "Magnetic Resonance",
		presets: []WindowPreset{
			{Name: "DEFAULT", Center: 500, Width: 1000},
			{Name: "BRIGHT", Center: 300, Width: 600},
			{Name: "CONTRAST", Center: 600, Width: 1200},
		},
	},
	CR: {description: "Computed Radiography"},
	DX: {description: "Digital Radiography"},
	MG: {description: "Mammography"},
	US: {description: "Ultrasound"},
	PT: {description: "Positron Emission Tomography"},
	NM: {description: "Nuclear Medicine"},
	XA: {description: "X-Ray Angiography"},
	RF: {description: "Radio Fluoroscopy"},
	SC: {description: "Secondary Capture"},
	SR: {description: "Structured Report"},
	OT: {description: "Other"},
}

// KnownModalities returns every modality with a description, sorted by code.
func KnownModalities() []Modality {
	mods := make([]Modality, 0, len(modalityTable))
	for m := range modalityTable {
		mods = append(mods, m)
	}
	sort.Slice(mods, func(i, j int) bool { return mods[i] < mods[j] })
	return mods
}

// IsKnown reports whether m has a description.
func (m Modality) IsKnown() bool {
	_, ok := modalityTable[m]
	return ok
}

// Description returns the human readable name of m, or the code itself when unknown.
func (m Modality) Description() string {
	if info, ok := modalityTable[m]; ok {
		return info.description
	}
	return string(m)
}

// WindowPresets returns the window presets for m, the default one first.
func (m Modality) WindowPresets() []WindowPreset {
	return modalityTable[m].presets
}

// DefaultWindow returns the default window preset for m.
func (m Modality) DefaultWindow() (WindowPreset, bool) {
	presets := m.WindowPresets()
	if len(presets) == 0 {
		return WindowPreset{}, false
	}
	return presets[0], true
}

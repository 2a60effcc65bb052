package dicom

import "testing"

func TestModality_Description(t *testing.T) {
	tests := []struct {
		input Modality
		want  string
	}{
		{CT, "Computed Tomography"},
		{MR, "Magnetic Resonance"},
		{OT, "Other"},
		{Modality("XYZ"), "XYZ"},
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			if got := tt.input.Description(); got != tt.want {
				t.Errorf("Modality(%q).Description() = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestModality_DefaultWindow(t *testing.T) {
	ct, ok := CT.DefaultWindow()
	if !ok {
		t.Fatal("CT has no default window")
	}
	if ct.Center != 40 || ct.Width != 400 {
		t.Errorf("CT default window = %v/%v, want 40/400", ct.Center, ct.Width)
	}

	mr, ok := MR.DefaultWindow()
	if !ok || mr.Name != "DEFAULT" {
		t.Errorf("MR default window = %+v, want DEFAULT preset", mr)
	}

	if _, ok := OT.DefaultWindow(); ok {
		t.Error("OT should have no default window")
	}
}

func TestModality_CTPresets(t *testing.T) {
	want := map[string][2]float64{
		"BRAIN":       {40, 80},
		"SUBDURAL":    {75, 215},
		"BONE":        {400, 2000},
		"LUNG":        {-600, 1500},
		"MEDIASTINUM": {40, 400},
		"ABDOMEN":     {40, 350},
		"LIVER":       {60, 150},
	}
	presets := CT.WindowPresets()
	if len(presets) != len(want) {
		t.Fatalf("CT has %d presets, want %d", len(presets), len(want))
	}
	for _, p := range presets {
		w, ok := want[p.Name]
		if !ok {
			t.Errorf("unexpected CT preset %q", p.Name)
			continue
		}
		if p.Center != w[0] || p.Width != w[1] {
			t.Errorf("CT preset %s = %v/%v, want %v/%v", p.Name, p.Center, p.Width, w[0], w[1])
		}
	}
}

func TestKnownModalities(t *testing.T) {
	mods := KnownModalities()
	for i := 1; i < len(mods); i++ {
		if mods[i-1] >= mods[i] {
			t.Errorf("KnownModalities() not sorted: %q before %q", mods[i-1], mods[i])
		}
	}
	for _, m := range mods {
		if !m.IsKnown() {
			t.Errorf("%q listed but not known", m)
		}
	}
	if Modality("ZZ").IsKnown() {
		t.Error(`Modality("ZZ").IsKnown() = true`)
	}
}

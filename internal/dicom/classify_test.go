package dicom

import (
	"bytes"
	"testing"
)

func TestIsDICOM(t *testing.T) {
	withMagic := func(n int) []byte {
		b := make([]byte, n)
		copy(b[128:], "DICM")
		return b
	}

	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"exact sniff length", withMagic(132), true},
		{"longer file", withMagic(4096), true},
		{"preamble is ignored", append(bytes.Repeat([]byte{0xFF}, 128), "DICM"...), true},
		{"empty", nil, false},
		{"too short", make([]byte, 50), false},
		{"one byte short", withMagic(132)[:131], false},
		{"zeros", make([]byte, 132), false},
		{"lower case magic", append(make([]byte, 128), "dicm"...), false},
		{"magic at offset zero", append([]byte("DICM"), make([]byte, 128)...), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDICOM(tt.data); got != tt.want {
				t.Errorf("IsDICOM() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsDICOM_DoesNotMutate(t *testing.T) {
	data := append(make([]byte, 128), "DICM"...)
	before := bytes.Clone(data)
	IsDICOM(data)
	if !bytes.Equal(data, before) {
		t.Error("IsDICOM modified its input")
	}
}

func TestKind_String(t *testing.T) {
	if DICOM.String() != "DICOM" {
		t.Errorf("DICOM.String() = %q, want %q", DICOM.String(), "DICOM")
	}
	if NotDICOM.String() != "NotDICOM" {
		t.Errorf("NotDICOM.String() = %q, want %q", NotDICOM.String(), "NotDICOM")
	}
}

package physmem

import (
	"errors"
	"testing"
)

func TestImageWindow(t *testing.T) {
	img := NewImage()
	img.Set(0xFED10000+0x5004, 0x00020010)
	img.Set(0xFED10000+0x5E04, 0x6)

	w, err := img.Map(0xFED10000, 0x8000)
	if err != nil {
		t.Fatalf("Map() failed: %v", err)
	}
	defer w.Close()

	tests := []struct {
		name    string
		offset  uint32
		want    uint32
		wantErr bool
	}{
		{"mad dimm ch0", 0x5004, 0x00020010, false},
		{"bios data", 0x5E04, 0x6, false},
		{"unset reads zero", 0x5008, 0, false},
		{"misaligned", 0x5005, 0, true},
		{"last dword", 0x7FFC, 0, false},
		{"past end", 0x8000, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := w.Read32(tt.offset)
			if tt.wantErr {
				if !errors.Is(err, ErrOutOfRange) {
					t.Fatalf("expected ErrOutOfRange, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Read32() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Read32(%#x) = %#x, want %#x", tt.offset, got, tt.want)
			}
		})
	}

	if len(img.Maps) != 1 || img.Maps[0] != 0xFED10000 {
		t.Errorf("Maps = %#x, want [0xfed10000]", img.Maps)
	}
}

func TestImageMapInvalidSize(t *testing.T) {
	_, err := NewImage().Map(0x1000, 0)
	var me *MapError
	if !errors.As(err, &me) {
		t.Fatalf("expected MapError, got %v", err)
	}
}

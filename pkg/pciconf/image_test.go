package pciconf

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const lspciHostBridge = `00:00.0 Host bridge: Intel Corporation 2nd Generation Core Processor Family DRAM Controller (rev 09)
00: 86 80 00 01 06 00 90 20 09 00 00 06 00 00 00 00
10: 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00
40: 01 90 d1 fe 00 00 00 00 01 00 d1 fe 00 00 00 00
b0: 01 00 a0 df 01 00 80 df 01 00 80 df 01 00 a0 df

00:1f.3 SMBus: Intel Corporation 6 Series/C200 Series Chipset Family SMBus Controller (rev 05)
00: 86 80 22 1c 03 00 80 02 05 00 05 0c 00 00 00 00
`

func TestParseLspci(t *testing.T) {
	img, err := ParseLspci(strings.NewReader(lspciHostBridge))
	if err != nil {
		t.Fatalf("ParseLspci() failed: %v", err)
	}

	want := []Coordinate{BDF(0, 0, 0), BDF(0, 31, 3)}
	if diff := cmp.Diff(want, img.Functions()); diff != "" {
		t.Fatalf("unexpected functions (-want +got):\n%s", diff)
	}

	tests := []struct {
		name string
		c    Coordinate
		w    Width
		want uint32
	}{
		{"vendor and device", BDF(0, 0, 0), Width32, 0x01008086},
		{"device id word", BDF(0, 0, 0).At(DeviceIDOffset), Width16, 0x0100},
		{"revision byte", BDF(0, 0, 0).At(0x08), Width8, 0x09},
		{"mchbar low", BDF(0, 0, 0).At(0x48), Width32, 0xFED10001},
		{"tolud", BDF(0, 0, 0).At(0xBC), Width32, 0xDFA00001},
		{"unlisted row reads zero", BDF(0, 0, 0).At(0x80), Width32, 0},
		{"smbus device", BDF(0, 31, 3).At(DeviceIDOffset), Width16, 0x1C22},
		{"absent function", BDF(0, 2, 0), Width32, 0xFFFFFFFF},
		{"absent function word", BDF(0, 2, 0), Width16, 0xFFFF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := img.Read(tt.c, tt.w)
			if err != nil {
				t.Fatalf("Read() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Read(%s) = %#x, want %#x", tt.c, got, tt.want)
			}
		})
	}
}

func TestParseLspciErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"data without header", "00: 86 80 00 01\n"},
		{"only descriptions", "\tSubsystem: Intel Corporation\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseLspci(strings.NewReader(tt.input)); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestImageWrite(t *testing.T) {
	img := NewImage()
	c := BDF(0, 0, 0).At(0x48)

	if err := img.Write(c, Width32, 0xFED10001); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if err := img.Write(c.At(0x4C), Width16, 0x1234); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if err := img.Write(c, Width8, 0x1FF); err == nil {
		t.Error("expected oversized value to be rejected")
	}

	lo, _ := img.Read(c, Width32)
	hi, _ := img.Read(c.At(0x4C), Width32)
	if lo != 0xFED10001 || hi != 0x1234 {
		t.Errorf("got lo=%#x hi=%#x", lo, hi)
	}
}

func TestImageSetRejectsInvalidCoordinate(t *testing.T) {
	img := NewImage()

	tests := []struct {
		name string
		c    Coordinate
		w    Width
	}{
		{"dword past the end", BDF(0, 0, 0).At(0xFE), Width32},
		{"unaligned word", BDF(0, 0, 0).At(0x41), Width16},
		{"device out of range", BDF(0, 32, 0).At(0x00), Width32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := img.Set(tt.c, tt.w, 1); !errors.Is(err, ErrInvalidCoordinate) {
				t.Errorf("Set() error = %v, want ErrInvalidCoordinate", err)
			}
		})
	}
	if n := len(img.Functions()); n != 0 {
		t.Errorf("rejected writes created %d functions", n)
	}

	if err := img.Set(BDF(0, 0, 0).At(0xFC), Width32, 0xCAFEF00D); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if v, _ := img.Read(BDF(0, 0, 0).At(0xFC), Width32); v != 0xCAFEF00D {
		t.Errorf("Read() = %#x", v)
	}
}

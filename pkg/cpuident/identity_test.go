package cpuident

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shirou/gopsutil/v3/cpu"
)

func TestFromInfo(t *testing.T) {
	tests := []struct {
		name    string
		info    cpu.InfoStat
		want    Static
		wantErr bool
	}{
		{
			name: "sandy bridge from cpuinfo",
			info: cpu.InfoStat{VendorID: "GenuineIntel", Family: "6", Model: "42", ModelName: "Intel(R) Core(TM) i7-2600K CPU @ 3.40GHz"},
			want: Static{VendorID: "GenuineIntel", FamilyID: 6, ModelID: 0x2A, ModelName: "Intel(R) Core(TM) i7-2600K CPU @ 3.40GHz"},
		},
		{
			name: "hex model",
			info: cpu.InfoStat{VendorID: "GenuineIntel", Family: "6", Model: "0x3c"},
			want: Static{VendorID: "GenuineIntel", FamilyID: 6, ModelID: 0x3C},
		},
		{
			name: "amd",
			info: cpu.InfoStat{VendorID: "AuthenticAMD", Family: "23", Model: "113"},
			want: Static{VendorID: "AuthenticAMD", FamilyID: 23, ModelID: 113},
		},
		{
			name: "windows processor id",
			info: cpu.InfoStat{VendorID: "GenuineIntel", Family: "198", PhysicalID: "BFEBFBFF000206A7",
				ModelName: "Intel(R) Core(TM) i7-2600 CPU @ 3.40GHz"},
			want: Static{VendorID: "GenuineIntel", FamilyID: 6, ModelID: 0x2A, ModelName: "Intel(R) Core(TM) i7-2600 CPU @ 3.40GHz"},
		},
		{
			name: "windows broadwell",
			info: cpu.InfoStat{VendorID: "GenuineIntel", Family: "205", PhysicalID: "BFEBFBFF000306D4"},
			want: Static{VendorID: "GenuineIntel", FamilyID: 6, ModelID: 0x3D},
		},
		{
			name: "windows amd uses extended family",
			info: cpu.InfoStat{VendorID: "AuthenticAMD", Family: "107", PhysicalID: "178BFBFF00870F10"},
			want: Static{VendorID: "AuthenticAMD", FamilyID: 0x17, ModelID: 0x71},
		},
		{
			name:    "windows short processor id",
			info:    cpu.InfoStat{VendorID: "GenuineIntel", Family: "198", PhysicalID: "000206A7"},
			wantErr: true,
		},
		{
			name:    "missing family",
			info:    cpu.InfoStat{VendorID: "GenuineIntel", Model: "42"},
			wantErr: true,
		},
		{
			name:    "garbage model",
			info:    cpu.InfoStat{VendorID: "GenuineIntel", Family: "6", Model: "Core"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fromInfo(tt.info)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("unexpected identity (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeSignature(t *testing.T) {
	tests := []struct {
		sig           uint32
		family, model uint32
	}{
		{0x000206A7, 6, 0x2A}, // Sandy Bridge
		{0x000306A9, 6, 0x3A}, // Ivy Bridge
		{0x000306C3, 6, 0x3C}, // Haswell
		{0x00040671, 6, 0x47}, // Broadwell
		{0x00000F29, 0xF, 0x2},
		{0x00870F10, 0x17, 0x71},
		{0x00000673, 6, 0x7},
	}

	for _, tt := range tests {
		family, model := decodeSignature(tt.sig)
		if family != tt.family || model != tt.model {
			t.Errorf("decodeSignature(%#08x) = %#x/%#x, want %#x/%#x", tt.sig, family, model, tt.family, tt.model)
		}
	}
}

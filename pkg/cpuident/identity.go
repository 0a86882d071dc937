// Package cpuident reports the vendor, family and model of the running
// processor.
package cpuident

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
)

// Identity is the CPUID triple used to pick a register layout
type Identity interface {
	Vendor() string
	Family() uint32
	Model() uint32
}

// Static is a fixed identity, used for replayed machines and tests
type Static struct {
	VendorID  string `json:"vendor" yaml:"vendor"`
	FamilyID  uint32 `json:"family" yaml:"family"`
	ModelID   uint32 `json:"model" yaml:"model"`
	ModelName string `json:"model_name,omitempty" yaml:"model_name,omitempty"`
}

func (s Static) Vendor() string { return s.VendorID }
func (s Static) Family() uint32 { return s.FamilyID }
func (s Static) Model() uint32  { return s.ModelID }

func (s Static) String() string {
	return fmt.Sprintf("%s family %#x model %#x", s.VendorID, s.FamilyID, s.ModelID)
}

// Detect reads the identity of the first logical processor
func Detect() (Static, error) {
	infos, err := cpu.Info()
	if err != nil {
		return Static{}, fmt.Errorf("failed to get cpu info: %w", err)
	}
	if len(infos) == 0 {
		return Static{}, fmt.Errorf("failed to get cpu info: no processors reported")
	}
	return fromInfo(infos[0])
}

func fromInfo(info cpu.InfoStat) (Static, error) {
	id := Static{
		VendorID:  strings.TrimSpace(info.VendorID),
		ModelName: strings.TrimSpace(info.ModelName),
	}

	// Windows reports the SMBIOS processor family and no model, but carries
	// the CPUID signature in the WMI ProcessorId
	if strings.TrimSpace(info.Model) == "" && info.PhysicalID != "" {
		sig, err := processorSignature(info.PhysicalID)
		if err != nil {
			return Static{}, err
		}
		id.FamilyID, id.ModelID = decodeSignature(sig)
		return id, nil
	}

	family, err := parseID(info.Family)
	if err != nil {
		return Static{}, fmt.Errorf("failed to parse cpu family %q: %w", info.Family, err)
	}
	model, err := parseID(info.Model)
	if err != nil {
		return Static{}, fmt.Errorf("failed to parse cpu model %q: %w", info.Model, err)
	}
	id.FamilyID, id.ModelID = family, model
	return id, nil
}

// processorSignature extracts CPUID leaf 1 EAX from a ProcessorId, which is
// EDX followed by EAX as 16 hex digits
func processorSignature(processorID string) (uint32, error) {
	s := strings.TrimSpace(processorID)
	if len(s) != 16 {
		return 0, fmt.Errorf("failed to parse processor id %q: want 16 hex digits", processorID)
	}
	v, err := strconv.ParseUint(s[8:], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("failed to parse processor id %q: %w", processorID, err)
	}
	return uint32(v), nil
}

// decodeSignature applies the extended family and model rules of CPUID
func decodeSignature(sig uint32) (family, model uint32) {
	family = (sig >> 8) & 0xF
	model = (sig >> 4) & 0xF
	if family == 0xF {
		family += (sig >> 20) & 0xFF
	}
	if family == 0x6 || family >= 0xF {
		model |= ((sig >> 16) & 0xF) << 4
	}
	return family, model
}

// parseID accepts the decimal values of /proc/cpuinfo and 0x-prefixed hex
func parseID(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

package imc

import (
	"sort"

	"github.com/mscrnt/mchconfig/pkg/cpuident"
)

const (
	intelVendor = "GenuineIntel"
	intelFamily = 6
)

// clientModels maps family 6 model numbers to their generation. Server
// parts of the same generations (models 0x2D, 0x3E, 0x3F, 0x4F, 0x56)
// have a different uncore and are not listed.
var clientModels = map[uint32]Generation{
	0x2A: SandyBridge,
	0x3A: IvyBridge,
	0x3C: Haswell,
	0x45: Haswell,
	0x46: Haswell,
	0x3D: Broadwell,
	0x47: Broadwell,
}

// Resolver classifies a processor by its CPUID identity alone
type Resolver struct {
	identity cpuident.Identity
}

// NewResolver creates a resolver for identity
func NewResolver(identity cpuident.Identity) *Resolver {
	return &Resolver{identity: identity}
}

// Resolve returns the generation or Unsupported
func (r *Resolver) Resolve() Generation {
	if r.identity == nil {
		return Unsupported
	}
	if r.identity.Vendor() != intelVendor || r.identity.Family() != intelFamily {
		return Unsupported
	}
	if g, ok := clientModels[r.identity.Model()]; ok {
		return g
	}
	return Unsupported
}

// SupportedModel is one row of the resolution table
type SupportedModel struct {
	Family     uint32     `json:"family"`
	Model      uint32     `json:"model"`
	Generation Generation `json:"generation"`
}

// SupportedModels lists the resolution table ordered by generation then model
func SupportedModels() []SupportedModel {
	out := make([]SupportedModel, 0, len(clientModels))
	for model, g := range clientModels {
		out = append(out, SupportedModel{Family: intelFamily, Model: model, Generation: g})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Generation != out[j].Generation {
			return out[i].Generation < out[j].Generation
		}
		return out[i].Model < out[j].Model
	})
	return out
}

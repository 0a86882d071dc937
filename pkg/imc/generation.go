// Package imc decodes the integrated memory controller configuration of
// Sandy Bridge through Broadwell client processors from the host bridge
// registers.
package imc

import (
	"fmt"
	"strings"
)

// Generation identifies a processor generation with a known register layout
type Generation int

const (
	Unsupported Generation = iota
	SandyBridge
	IvyBridge
	Haswell
	Broadwell
)

var generationNames = map[Generation]string{
	Unsupported: "unsupported",
	SandyBridge: "sandybridge",
	IvyBridge:   "ivybridge",
	Haswell:     "haswell",
	Broadwell:   "broadwell",
}

// Generations lists every supported generation, oldest first
func Generations() []Generation {
	return []Generation{SandyBridge, IvyBridge, Haswell, Broadwell}
}

func (g Generation) String() string {
	if name, ok := generationNames[g]; ok {
		return name
	}
	return fmt.Sprintf("generation(%d)", int(g))
}

// Supported reports whether g has a register layout
func (g Generation) Supported() bool {
	return g >= SandyBridge && g <= Broadwell
}

// ParseGeneration accepts the names printed by String, case insensitively
func ParseGeneration(s string) (Generation, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for g, name := range generationNames {
		if name == s {
			return g, nil
		}
	}
	return Unsupported, fmt.Errorf("unknown generation %q", s)
}

func (g Generation) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

func (g *Generation) UnmarshalText(b []byte) error {
	parsed, err := ParseGeneration(string(b))
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

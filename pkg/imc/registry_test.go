package imc

import (
	"errors"
	"testing"
)

func TestRegistry(t *testing.T) {
	registry := NewRegistry()

	// Test registering a map
	if err := registry.Register(haswellMap()); err != nil {
		t.Fatalf("Failed to register map: %v", err)
	}

	// Test registering duplicate generation
	if err := registry.Register(haswellMap()); err == nil {
		t.Fatal("Expected error when registering duplicate generation")
	}

	// Test registering nil map
	if err := registry.Register(nil); err == nil {
		t.Fatal("Expected error when registering nil map")
	}

	// Test registering invalid map
	bad := sandyBridgeMap()
	bad.Registers[0].Fields = append(bad.Registers[0].Fields, field("OVERLAP", 8, 8, Raw))
	if err := registry.Register(bad); !errors.Is(err, ErrInvalidMap) {
		t.Fatalf("Expected ErrInvalidMap, got %v", err)
	}

	// Test registering a map for the unsupported generation
	unsupported := sandyBridgeMap()
	unsupported.Generation = Unsupported
	if err := registry.Register(unsupported); err == nil {
		t.Fatal("Expected error when registering map for unsupported generation")
	}

	// Test lookup
	got, err := registry.Lookup(Haswell)
	if err != nil {
		t.Fatalf("Failed to look up map: %v", err)
	}
	if got.Generation != Haswell {
		t.Errorf("Got wrong map: expected haswell, got %s", got.Generation)
	}

	if _, err := registry.Lookup(SandyBridge); err == nil {
		t.Fatal("Expected error for unregistered generation")
	}

	if n := len(registry.List()); n != 1 {
		t.Errorf("Expected 1 map, got %d", n)
	}
}

func TestDefaultRegistry(t *testing.T) {
	maps := DefaultRegistry().List()
	if len(maps) != len(Generations()) {
		t.Fatalf("Expected %d maps, got %d", len(Generations()), len(maps))
	}
	for i, g := range Generations() {
		if maps[i].Generation != g {
			t.Errorf("List()[%d] = %s, want %s", i, maps[i].Generation, g)
		}
	}
}

func TestRegistryHandsOutCopies(t *testing.T) {
	registry := NewRegistry()
	m := sandyBridgeMap()
	if err := registry.Register(m); err != nil {
		t.Fatalf("Failed to register map: %v", err)
	}

	// Changing the registered value afterwards must not reach the registry
	m.Registers[0].Name = "CHANGED"

	got, err := registry.Lookup(SandyBridge)
	if err != nil {
		t.Fatalf("Failed to look up map: %v", err)
	}
	got.KnownDeviceIDs[0] = 0xFFFF
	got.Registers[0].Fields[0].Offset = 31
	got.Channels = nil

	again, _ := registry.Lookup(SandyBridge)
	if again.Registers[0].Name != RegHostBridgeID {
		t.Errorf("register name = %q, want %q", again.Registers[0].Name, RegHostBridgeID)
	}
	if again.KnownDeviceIDs[0] != 0x0100 {
		t.Errorf("known device id = %#04x, want 0x0100", again.KnownDeviceIDs[0])
	}
	if again.Registers[0].Fields[0].Offset != 0 {
		t.Errorf("field offset = %d, want 0", again.Registers[0].Fields[0].Offset)
	}
	if len(again.Channels) != 2 {
		t.Errorf("channels = %d, want 2", len(again.Channels))
	}
	if err := again.Validate(); err != nil {
		t.Errorf("stored map no longer validates: %v", err)
	}
}

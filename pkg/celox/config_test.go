package celox

import "testing"

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Addr != ":8080" {
		t.Errorf("Addr = %q", config.Addr)
	}
	if !config.Multicore {
		t.Error("Multicore should default to true")
	}
	if config.MaxBodyBytes != 4<<20 {
		t.Errorf("MaxBodyBytes = %d", config.MaxBodyBytes)
	}
	if config.Logger == nil {
		t.Error("Logger should default to a silent logger, not nil")
	}
	if config.ProxyProtocol {
		t.Error("ProxyProtocol should default to off")
	}
}

func TestConfigValidate(t *testing.T) {
	config := Config{}
	if err := config.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if config.Addr != ":8080" {
		t.Errorf("Addr = %q after Validate", config.Addr)
	}
	if config.MaxBodyBytes <= 0 {
		t.Errorf("MaxBodyBytes = %d after Validate", config.MaxBodyBytes)
	}
	if config.Logger == nil {
		t.Error("Logger should be filled in by Validate")
	}
}

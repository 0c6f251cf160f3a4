package config

import "testing"

func TestValidateDefaultConfigPasses(t *testing.T) {
	if err := Validate(DefaultConfig()); err != nil {
		t.Fatalf("expected default config to be valid, got %v", err)
	}
}

func TestValidateRejectsMissingCatalogURI(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Catalog.URI = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for missing catalog.uri")
	}
}

func TestValidateRejectsBadLoggingLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "verbose"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for invalid logging.level")
	}
}

func TestValidateRejectsOutOfRangePort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.Port = 70000
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for out-of-range api.port")
	}
}

package config

import (
	"strings"
	"testing"
)

type envTestConfig struct {
	BatchSize int `env:"INKWELL_TEST_BATCH_SIZE" envDefault:"10"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.BatchSize != 10 {
		t.Fatalf("batch size = %d, want 10", cfg.BatchSize)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("INKWELL_TEST_BATCH_SIZE", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

package config

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/mfourny/offload/pkg/checksum"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config failed validation: %v", err)
	}
}

func TestValidateRejectsBadFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero concurrency", func(c *Config) { c.Transfer.MaxConcurrent = 0 }, "transfer.max_concurrent"},
		{"tiny block size", func(c *Config) { c.Transfer.BlockSize = 512 }, "transfer.block_size"},
		{"unknown checksum", func(c *Config) { c.Transfer.Checksum = "crc32" }, "transfer.checksum"},
		{"unknown output format", func(c *Config) { c.Output.Format = "yaml" }, "output.format"},
		{"unknown log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"unknown log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if verr.Field != tc.field {
				t.Errorf("expected field %q, got %q", tc.field, verr.Field)
			}
		})
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Transfer.MaxConcurrent = 5
	cfg.Transfer.Checksum = "sha1"
	cfg.Transfer.Cascade = true
	cfg.Output.Format = "json"

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := SaveToFile(cfg, path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if loaded.Transfer.MaxConcurrent != 5 {
		t.Errorf("expected max_concurrent 5, got %d", loaded.Transfer.MaxConcurrent)
	}
	if loaded.Transfer.Checksum != "sha1" {
		t.Errorf("expected checksum sha1, got %s", loaded.Transfer.Checksum)
	}
	if !loaded.Transfer.Cascade {
		t.Error("expected cascade to survive the round trip")
	}
	if loaded.Output.Format != "json" {
		t.Errorf("expected output format json, got %s", loaded.Output.Format)
	}
}

func TestSaveRejectsInvalidConfig(t *testing.T) {
	cfg := Default()
	cfg.Transfer.MaxConcurrent = 0

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := SaveToFile(cfg, path); err == nil {
		t.Fatal("expected SaveToFile to reject an invalid config")
	}
}

func TestAlgorithmFallsBackToDefault(t *testing.T) {
	cfg := Default()
	cfg.Transfer.Checksum = "sha1"
	if got := cfg.Algorithm(); got != checksum.SHA1 {
		t.Errorf("expected sha1, got %s", got)
	}

	cfg.Transfer.Checksum = "bogus"
	if got := cfg.Algorithm(); got != checksum.Default() {
		t.Errorf("expected default algorithm for unparsable value, got %s", got)
	}
}

package config

import (
	"fmt"

	"github.com/mfourny/offload/pkg/checksum"
)

// ValidationError describes an invalid configuration field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Config represents the application configuration
type Config struct {
	Transfer TransferConfig `yaml:"transfer"`
	Scan     ScanConfig     `yaml:"scan"`
	Output   OutputConfig   `yaml:"output"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// TransferConfig holds copy engine and orchestration settings
type TransferConfig struct {
	MaxConcurrent  int    `yaml:"max_concurrent"`  // In-flight copy bound
	Checksum       string `yaml:"checksum"`        // "xxh64", "md5", "sha1", or "size"
	Cascade        bool   `yaml:"cascade"`         // Fan out to secondaries from the primary copy
	BlockSize      int    `yaml:"block_size"`      // Streaming block size in bytes
	ForceStreaming bool   `yaml:"force_streaming"` // Skip the bulk fast path
}

// ScanConfig holds source traversal rules
type ScanConfig struct {
	// Extensions is the media allow-list; empty means every file
	Extensions []string `yaml:"extensions"`

	// DenyFilenames lists housekeeping files skipped regardless of
	// extension
	DenyFilenames []string `yaml:"deny_filenames"`
}

// OutputConfig holds output-related settings
type OutputConfig struct {
	Format   string `yaml:"format"`   // "human" or "json"
	Progress bool   `yaml:"progress"` // Show progress bars
	Quiet    bool   `yaml:"quiet"`    // Suppress non-error output
}

// LoggingConfig holds logging-related settings
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Format  string `yaml:"format"` // "json" or "text"
	Level   string `yaml:"level"`  // "debug", "info", "warn", "error"
	File    string `yaml:"file"`   // Log file path (empty = stderr)
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Transfer: TransferConfig{
			MaxConcurrent: 3,
			Checksum:      string(checksum.Default()),
			Cascade:       false,
			BlockSize:     1024 * 1024,
		},
		Scan: ScanConfig{
			Extensions: []string{
				".mov", ".mp4", ".mxf", ".avi", ".mts", ".m2ts",
				".braw", ".r3d", ".crm",
				".arw", ".cr2", ".cr3", ".nef", ".dng", ".raf", ".orf",
				".jpg", ".jpeg", ".heif", ".heic",
				".wav", ".aif", ".aiff", ".mp3",
				".xml", ".cube", ".lut",
			},
			DenyFilenames: []string{
				".DS_Store",
				"Thumbs.db",
				"desktop.ini",
				".dropbox",
			},
		},
		Output: OutputConfig{
			Format:   "human",
			Progress: true,
			Quiet:    false,
		},
		Logging: LoggingConfig{
			Enabled: true,
			Format:  "json",
			Level:   "info",
			File:    "",
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Transfer.MaxConcurrent < 1 {
		return &ValidationError{
			Field:   "transfer.max_concurrent",
			Message: "must be at least 1",
		}
	}

	if c.Transfer.BlockSize < 4096 {
		return &ValidationError{
			Field:   "transfer.block_size",
			Message: "must be at least 4096 bytes",
		}
	}

	if _, err := checksum.Parse(c.Transfer.Checksum); err != nil {
		return &ValidationError{
			Field:   "transfer.checksum",
			Message: err.Error(),
		}
	}

	validFormats := map[string]bool{"human": true, "json": true}
	if !validFormats[c.Output.Format] {
		return &ValidationError{
			Field:   "output.format",
			Message: "must be 'human' or 'json'",
		}
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return &ValidationError{
			Field:   "logging.format",
			Message: "must be 'json' or 'text'",
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return &ValidationError{
			Field:   "logging.level",
			Message: "must be 'debug', 'info', 'warn', or 'error'",
		}
	}

	return nil
}

// Algorithm returns the parsed checksum algorithm; call Validate first
func (c *Config) Algorithm() checksum.Algorithm {
	algo, err := checksum.Parse(c.Transfer.Checksum)
	if err != nil {
		return checksum.Default()
	}
	return algo
}

package logger

import (
	"path/filepath"
	"testing"

	"github.com/datalift/bulkvault/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected string // String representation of zapcore.Level
	}{
		{"debug", "debug"},
		{"info", "info"},
		{"", "info"}, // empty defaults to info
		{"warn", "warn"},
		{"error", "error"},
		{"unknown", "info"}, // unknown defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level := parseLevel(tt.input)
			if level.String() != tt.expected {
				t.Errorf("parseLevel(%q) = %v, expected %v", tt.input, level.String(), tt.expected)
			}
		})
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.LoggingConfig
	}{
		{
			name: "json format info level",
			cfg: &config.LoggingConfig{
				Level:  "info",
				Format: "json",
				Output: "stdout",
			},
		},
		{
			name: "text format debug level",
			cfg: &config.LoggingConfig{
				Level:  "debug",
				Format: "text",
				Output: "stdout",
			},
		},
		{
			name: "stderr output",
			cfg: &config.LoggingConfig{
				Level:  "warn",
				Format: "json",
				Output: "stderr",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.cfg)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if log == nil {
				t.Fatal("New() returned nil logger")
			}
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bulkvault.log")

	log, err := New(&config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: path,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	log.Infow("test entry", "entity", "Account")
}

func TestNewDefault(t *testing.T) {
	log := NewDefault()
	if log == nil {
		t.Fatal("NewDefault() returned nil")
	}
}

func TestContextHelpers(t *testing.T) {
	log := NewDefault()

	if l := log.WithSession("s-123"); l == nil {
		t.Error("WithSession returned nil")
	}
	if l := log.WithEntity("Account"); l == nil {
		t.Error("WithEntity returned nil")
	}
	if l := log.WithJob("750abc"); l == nil {
		t.Error("WithJob returned nil")
	}
	if l := log.WithFields(map[string]interface{}{"depth": 2}); l == nil {
		t.Error("WithFields returned nil")
	}
}

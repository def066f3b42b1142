package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	Reset()
	defer Reset()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Backend.BaseURL != "http://localhost:11434" {
		t.Errorf("backend.base_url = %q, want http://localhost:11434", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Model != "gpt-4o-mini" {
		t.Errorf("backend.model = %q, want gpt-4o-mini", cfg.Backend.Model)
	}
	if !cfg.Compression.Auto {
		t.Error("compression.auto = false, want true")
	}
	if cfg.Compression.Threshold != 0.7 {
		t.Errorf("compression.threshold = %v, want 0.7", cfg.Compression.Threshold)
	}
	if cfg.Compression.PreserveFraction != 0.3 {
		t.Errorf("compression.preserve_fraction = %v, want 0.3", cfg.Compression.PreserveFraction)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log.level = %q, want info", cfg.Log.Level)
	}
	if cfg.Log.Format != "console" {
		t.Errorf("log.format = %q, want console", cfg.Log.Format)
	}
}

func TestLoad_FromFile(t *testing.T) {
	Reset()
	defer Reset()

	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	content := `
backend:
  base_url: "https://api.example.com/v1"
  model: gpt-4o
log:
  level: debug
  format: json
`
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Backend.BaseURL != "https://api.example.com/v1" {
		t.Errorf("backend.base_url = %q, want https://api.example.com/v1", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Model != "gpt-4o" {
		t.Errorf("backend.model = %q, want gpt-4o", cfg.Backend.Model)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log.level = %q, want debug", cfg.Log.Level)
	}

	// Values absent from the file keep their defaults.
	if !cfg.Compression.Auto {
		t.Error("compression.auto should use default value true")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	Reset()
	defer Reset()

	t.Setenv("RELAY_BACKEND_MODEL", "llama3")
	t.Setenv("RELAY_LOG_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Backend.Model != "llama3" {
		t.Errorf("backend.model = %q, want llama3", cfg.Backend.Model)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("log.level = %q, want warn", cfg.Log.Level)
	}
}

func TestLoad_Priority(t *testing.T) {
	Reset()
	defer Reset()

	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	content := `
backend:
  model: gpt-4o
`
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	t.Setenv("RELAY_BACKEND_MODEL", "llama3")

	cfg, err := Load(configFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Backend.Model != "llama3" {
		t.Errorf("ENV should override file: backend.model = %q, want llama3", cfg.Backend.Model)
	}
}

func TestSetAndSave(t *testing.T) {
	Reset()
	defer Reset()

	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	_, err := Load(configFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if err := Set("backend.api_key", "sk-test-value"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if GetString("backend.api_key") != "sk-test-value" {
		t.Errorf("backend.api_key = %q, want sk-test-value", GetString("backend.api_key"))
	}

	// The key lands in the file with owner-only permissions.
	info, err := os.Stat(configFile)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
	}

	Reset()
	cfg, err := Load(configFile)
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if cfg.Backend.APIKey != "sk-test-value" {
		t.Errorf("Persisted backend.api_key = %q, want sk-test-value", cfg.Backend.APIKey)
	}
}

func TestGetConfig(t *testing.T) {
	Reset()
	defer Reset()

	if GetConfig() != nil {
		t.Error("GetConfig should return nil before Load")
	}

	_, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg := GetConfig()
	if cfg == nil {
		t.Fatal("GetConfig returned nil after Load")
	}
	if cfg.Backend.Model != "gpt-4o-mini" {
		t.Errorf("backend.model = %q, want gpt-4o-mini", cfg.Backend.Model)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	Reset()
	defer Reset()

	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	content := `
backend:
  model: [invalid
`
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err := Load(configFile)
	if err == nil {
		t.Error("Expected error for invalid YAML")
	}
}

func TestLoad_NonexistentFile(t *testing.T) {
	Reset()
	defer Reset()

	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("Load should not fail for nonexistent file: %v", err)
	}

	if cfg.Backend.Model != "gpt-4o-mini" {
		t.Errorf("backend.model = %q, want default gpt-4o-mini", cfg.Backend.Model)
	}
}

func TestSave_WithoutPath(t *testing.T) {
	Reset()
	defer Reset()

	_, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	err = Save()
	if err == nil {
		t.Error("Save should fail without config path")
	}
}

func TestBackendConfig_GetTimeout(t *testing.T) {
	tests := []struct {
		name     string
		timeout  string
		expected time.Duration
	}{
		{name: "empty uses default", timeout: "", expected: 5 * time.Minute},
		{name: "valid duration", timeout: "30s", expected: 30 * time.Second},
		{name: "invalid uses default", timeout: "not-a-duration", expected: 5 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := BackendConfig{Timeout: tt.timeout}
			if got := cfg.GetTimeout(); got != tt.expected {
				t.Errorf("GetTimeout() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestSessionConfig_ResolveSystemPrompt(t *testing.T) {
	t.Run("inline wins over file", func(t *testing.T) {
		cfg := SessionConfig{SystemPrompt: "inline", SystemPromptFile: "/nonexistent"}
		got, err := cfg.ResolveSystemPrompt()
		if err != nil {
			t.Fatalf("ResolveSystemPrompt() error: %v", err)
		}
		if got != "inline" {
			t.Errorf("ResolveSystemPrompt() = %q, want inline", got)
		}
	})

	t.Run("reads from file", func(t *testing.T) {
		promptFile := filepath.Join(t.TempDir(), "prompt.txt")
		if err := os.WriteFile(promptFile, []byte("  from file\n"), 0644); err != nil {
			t.Fatalf("Failed to write prompt file: %v", err)
		}
		cfg := SessionConfig{SystemPromptFile: promptFile}
		got, err := cfg.ResolveSystemPrompt()
		if err != nil {
			t.Fatalf("ResolveSystemPrompt() error: %v", err)
		}
		if got != "from file" {
			t.Errorf("ResolveSystemPrompt() = %q, want trimmed file content", got)
		}
	})

	t.Run("missing file errors", func(t *testing.T) {
		cfg := SessionConfig{SystemPromptFile: "/nonexistent/prompt.txt"}
		if _, err := cfg.ResolveSystemPrompt(); err == nil {
			t.Error("Expected error for missing prompt file")
		}
	})

	t.Run("both empty", func(t *testing.T) {
		cfg := SessionConfig{}
		got, err := cfg.ResolveSystemPrompt()
		if err != nil {
			t.Fatalf("ResolveSystemPrompt() error: %v", err)
		}
		if got != "" {
			t.Errorf("ResolveSystemPrompt() = %q, want empty", got)
		}
	})
}

package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if len(cfg.Backends) == 0 {
		t.Fatal("expected default backends")
	}
	if cfg.Backends[0].Name != "openrouter" {
		t.Errorf("expected openrouter as primary backend, got %s", cfg.Backends[0].Name)
	}
	if cfg.Backends[0].APIKey != "${OPENROUTER_API_KEY}" {
		t.Error("expected openrouter API key placeholder")
	}
	if cfg.Stages.Detection.MaxTokens == 0 {
		t.Error("expected detection max_tokens default")
	}
	if cfg.Pipeline.MaxParallel == 0 {
		t.Error("expected pipeline max_parallel default")
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		os.Setenv("TEST_API_KEY", "secret123")
		defer os.Unsetenv("TEST_API_KEY")

		result := ResolveEnvVars("${TEST_API_KEY}")
		if result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("literal-value")
		if result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestToRegistryConfig(t *testing.T) {
	os.Setenv("TEST_OPENROUTER_KEY", "or-key-123")
	defer os.Unsetenv("TEST_OPENROUTER_KEY")

	cfg := &Config{
		Backends: []BackendCfg{
			{Name: "primary", Type: "openrouter", Model: "model-a",
				APIKey: "${TEST_OPENROUTER_KEY}", TimeoutSeconds: 60, Enabled: true},
			{Name: "secondary", Type: "openai", Model: "model-b",
				APIKey: "direct-key", Enabled: true},
		},
	}

	rc := cfg.ToRegistryConfig()
	if len(rc.Backends) != 2 {
		t.Fatalf("expected 2 backends, got %d", len(rc.Backends))
	}
	if rc.Backends[0].Name != "primary" {
		t.Errorf("fallback order not preserved: got %s first", rc.Backends[0].Name)
	}
	if rc.Backends[0].Config.APIKey != "or-key-123" {
		t.Errorf("expected resolved key, got %s", rc.Backends[0].Config.APIKey)
	}
	if rc.Backends[1].Config.APIKey != "direct-key" {
		t.Errorf("expected literal key, got %s", rc.Backends[1].Config.APIKey)
	}
}

func TestEnabledBackends(t *testing.T) {
	cfg := &Config{
		Backends: []BackendCfg{
			{Name: "a", Enabled: true},
			{Name: "b", Enabled: false},
			{Name: "c", Enabled: true},
		},
	}
	enabled := cfg.EnabledBackends()
	if len(enabled) != 2 {
		t.Fatalf("expected 2 enabled backends, got %d", len(enabled))
	}
	if enabled[0].Name != "a" || enabled[1].Name != "c" {
		t.Errorf("unexpected order: %s, %s", enabled[0].Name, enabled[1].Name)
	}
}

func TestNewManager(t *testing.T) {
	t.Run("loads from config file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configFile := filepath.Join(tmpDir, "config.yaml")

		configContent := `
backends:
  - name: test
    type: openrouter
    model: test-model
    enabled: true
pipeline:
  max_parallel: 7
`
		if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
			t.Fatalf("failed to write config file: %v", err)
		}

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if len(cfg.Backends) != 1 || cfg.Backends[0].Model != "test-model" {
			t.Errorf("config file not applied: %+v", cfg.Backends)
		}
		if cfg.Pipeline.MaxParallel != 7 {
			t.Errorf("expected max_parallel 7, got %d", cfg.Pipeline.MaxParallel)
		}
	})

	t.Run("falls back to defaults without file", func(t *testing.T) {
		mgr, err := NewManager(filepath.Join(t.TempDir(), "missing.yaml"))
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		cfg := mgr.Get()
		if len(cfg.Backends) == 0 {
			t.Error("expected default backends")
		}
	})
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("failed to load written config: %v", err)
	}
	cfg := mgr.Get()
	if len(cfg.Backends) != 2 {
		t.Errorf("expected 2 default backends, got %d", len(cfg.Backends))
	}
}

func TestManager_OnChange_Multiple(t *testing.T) {
	mgr, err := NewManager(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})

	mgr.mu.RLock()
	if len(mgr.callbacks) != 3 {
		t.Errorf("expected 3 callbacks, got %d", len(mgr.callbacks))
	}
	mgr.mu.RUnlock()
}

func TestManager_WatchConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	configContent := `
pipeline:
  max_parallel: 2
`
	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	if got := mgr.Get().Pipeline.MaxParallel; got != 2 {
		t.Fatalf("initial max_parallel %d, want 2", got)
	}

	var callbackCount atomic.Int32
	mgr.OnChange(func(cfg *Config) {
		callbackCount.Add(1)
	})

	mgr.WatchConfig()

	// Give fsnotify time to set up the watcher
	time.Sleep(100 * time.Millisecond)

	newContent := `
pipeline:
  max_parallel: 9
`
	if err := os.WriteFile(configFile, []byte(newContent), 0644); err != nil {
		t.Fatalf("failed to write updated config file: %v", err)
	}

	// fsnotify delivery is async
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if callbackCount.Load() > 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if callbackCount.Load() == 0 {
		t.Fatal("callback was not invoked after config file change")
	}
	if got := mgr.Get().Pipeline.MaxParallel; got != 9 {
		t.Errorf("config not updated: max_parallel %d, want 9", got)
	}
}

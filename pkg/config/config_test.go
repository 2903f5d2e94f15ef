package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Download.PostWorkers != 4 {
		t.Errorf("Expected default post workers to be 4, got %d", config.Download.PostWorkers)
	}

	if config.Download.RetryAttempts != 3 {
		t.Errorf("Expected default retry attempts to be 3, got %d", config.Download.RetryAttempts)
	}

	if config.Download.RetryDelay != 5*time.Second {
		t.Errorf("Expected default retry delay to be 5s, got %v", config.Download.RetryDelay)
	}

	if config.Output.Directory != "./downloads" {
		t.Errorf("Expected default output directory to be ./downloads, got %s", config.Output.Directory)
	}

	if config.Filters.NameScope != ScopeTitle {
		t.Errorf("Expected default name scope to be title, got %s", config.Filters.NameScope)
	}

	if config.Filters.SkipScope != ScopePosts {
		t.Errorf("Expected default skip scope to be posts, got %s", config.Filters.SkipScope)
	}
}

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("KEMONO_DL_URL", "https://kemono.su/patreon/user/12345")
	os.Setenv("KEMONO_DL_OUTPUT_DIR", "/tmp/test-downloads")
	os.Setenv("KEMONO_DL_POST_WORKERS", "8")
	os.Setenv("KEMONO_DL_FILE_WORKERS", "2")
	os.Setenv("KEMONO_DL_COOKIE", "session=abc")
	os.Setenv("KEMONO_DL_LOG_LEVEL", "debug")

	defer func() {
		os.Unsetenv("KEMONO_DL_URL")
		os.Unsetenv("KEMONO_DL_OUTPUT_DIR")
		os.Unsetenv("KEMONO_DL_POST_WORKERS")
		os.Unsetenv("KEMONO_DL_FILE_WORKERS")
		os.Unsetenv("KEMONO_DL_COOKIE")
		os.Unsetenv("KEMONO_DL_LOG_LEVEL")
	}()

	config := DefaultConfig()
	err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("Failed to load from environment: %v", err)
	}

	if config.Source.URL != "https://kemono.su/patreon/user/12345" {
		t.Errorf("Expected source URL from env, got %s", config.Source.URL)
	}

	if config.Output.Directory != "/tmp/test-downloads" {
		t.Errorf("Expected output directory to be /tmp/test-downloads, got %s", config.Output.Directory)
	}

	if config.Download.PostWorkers != 8 {
		t.Errorf("Expected post workers to be 8, got %d", config.Download.PostWorkers)
	}

	if config.Download.FileWorkersPerPost != 2 {
		t.Errorf("Expected file workers to be 2, got %d", config.Download.FileWorkersPerPost)
	}

	if !config.Cookies.Enabled || config.Cookies.String != "session=abc" {
		t.Errorf("Expected cookie from env, got %+v", config.Cookies)
	}

	if config.Logging.Level != "debug" {
		t.Errorf("Expected log level to be debug, got %s", config.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := DefaultConfig()
		c.Source.URL = "https://kemono.su/patreon/user/12345"
		return c
	}

	tests := []struct {
		name      string
		mutate    func(*Config)
		wantError bool
	}{
		{
			name:      "valid config",
			mutate:    func(c *Config) {},
			wantError: false,
		},
		{
			name:      "missing URL",
			mutate:    func(c *Config) { c.Source.URL = "" },
			wantError: true,
		},
		{
			name:      "end page before start page",
			mutate:    func(c *Config) { c.Source.StartPage = 5; c.Source.EndPage = 2 },
			wantError: true,
		},
		{
			name:      "missing output directory",
			mutate:    func(c *Config) { c.Output.Directory = "" },
			wantError: true,
		},
		{
			name:      "zero post workers",
			mutate:    func(c *Config) { c.Download.PostWorkers = 0 },
			wantError: true,
		},
		{
			name:      "post workers above cap",
			mutate:    func(c *Config) { c.Download.PostWorkers = MaxPostWorkers + 1 },
			wantError: true,
		},
		{
			name:      "post workers at cap",
			mutate:    func(c *Config) { c.Download.PostWorkers = MaxPostWorkers },
			wantError: false,
		},
		{
			name:      "file workers above cap",
			mutate:    func(c *Config) { c.Download.FileWorkersPerPost = MaxFileWorkersPerPost + 1 },
			wantError: true,
		},
		{
			name:      "invalid name scope",
			mutate:    func(c *Config) { c.Filters.NameScope = "everywhere" },
			wantError: true,
		},
		{
			name:      "comments name scope",
			mutate:    func(c *Config) { c.Filters.NameScope = ScopeComments },
			wantError: false,
		},
		{
			name:      "invalid skip scope",
			mutate:    func(c *Config) { c.Filters.SkipScope = ScopeComments },
			wantError: true,
		},
		{
			name:      "invalid file type",
			mutate:    func(c *Config) { c.Filters.FileType = "document" },
			wantError: true,
		},
		{
			name:      "invalid manga style",
			mutate:    func(c *Config) { c.Manga.Enabled = true; c.Manga.Style = "fancy" },
			wantError: true,
		},
		{
			name:      "manga style ignored when disabled",
			mutate:    func(c *Config) { c.Manga.Enabled = false; c.Manga.Style = "fancy" },
			wantError: false,
		},
		{
			name:      "invalid log level",
			mutate:    func(c *Config) { c.Logging.Level = "loud" },
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid()
			tt.mutate(config)
			err := config.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
source:
  url: https://coomer.su/onlyfans/user/someone
  start_page: 2
download:
  post_workers: 10
  multipart: true
filters:
  names:
    - Tifa
    - (Cloud, Strife)
  name_scope: both
manga:
  enabled: true
  style: date
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	config := DefaultConfig()
	if err := config.LoadFromFile(path); err != nil {
		t.Fatalf("Failed to load config file: %v", err)
	}

	if config.Source.URL != "https://coomer.su/onlyfans/user/someone" {
		t.Errorf("Unexpected URL: %s", config.Source.URL)
	}
	if config.Source.StartPage != 2 {
		t.Errorf("Expected start page 2, got %d", config.Source.StartPage)
	}
	if config.Download.PostWorkers != 10 {
		t.Errorf("Expected 10 post workers, got %d", config.Download.PostWorkers)
	}
	if !config.Download.Multipart {
		t.Error("Expected multipart enabled")
	}
	if len(config.Filters.Names) != 2 || config.Filters.Names[1] != "(Cloud, Strife)" {
		t.Errorf("Unexpected filter names: %v", config.Filters.Names)
	}
	if config.Filters.NameScope != ScopeBoth {
		t.Errorf("Expected name scope both, got %s", config.Filters.NameScope)
	}
	if !config.Manga.Enabled || config.Manga.Style != StyleDateBased {
		t.Errorf("Unexpected manga config: %+v", config.Manga)
	}

	// Defaults survive for untouched fields
	if config.Download.RetryAttempts != 3 {
		t.Errorf("Expected retry attempts default to survive, got %d", config.Download.RetryAttempts)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	config := DefaultConfig()
	if err := config.LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected error for missing explicit config file")
	}
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	config := DefaultConfig()
	config.Source.URL = "https://kemono.su/fanbox/user/777"
	config.Filters.SkipWords = []string{"WIP", "sketch"}

	if err := config.Save(path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	reloaded := DefaultConfig()
	if err := reloaded.LoadFromFile(path); err != nil {
		t.Fatalf("Failed to reload config: %v", err)
	}

	if reloaded.Source.URL != config.Source.URL {
		t.Errorf("URL not preserved: %s", reloaded.Source.URL)
	}
	if len(reloaded.Filters.SkipWords) != 2 {
		t.Errorf("Skip words not preserved: %v", reloaded.Filters.SkipWords)
	}
}

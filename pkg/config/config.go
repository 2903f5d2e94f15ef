package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Hard limits and pacing constants shared across the downloader.
const (
	MaxPostWorkers         = 200
	RecommendedPostWorkers = 50
	MaxFileWorkersPerPost  = 10
	CommentScopeWorkerCap  = 3

	BatchWorkerThreshold = 30
	NumBatches           = 4
	BatchDelay           = 2500 * time.Millisecond

	PageSize  = 50
	PageDelay = 600 * time.Millisecond
)

// Filter and skip-word scopes.
const (
	ScopeFiles    = "files"
	ScopeTitle    = "title"
	ScopeBoth     = "both"
	ScopeComments = "comments"
	ScopePosts    = "posts"
)

// Manga filename styles.
const (
	StyleOriginalName  = "original"
	StylePostTitle     = "title"
	StyleDateBased     = "date"
	StyleTitleGlobal   = "title_global"
	StylePostID        = "post_id"
	StyleDatePostTitle = "date_title"
)

// File type filter modes.
const (
	FileTypeAll     = "all"
	FileTypeImage   = "image"
	FileTypeVideo   = "video"
	FileTypeArchive = "archive"
	FileTypeAudio   = "audio"
)

// Config holds all configuration options for a download session
type Config struct {
	// Source URL and page range
	Source SourceConfig `yaml:"source" json:"source"`

	// Output directory layout
	Output OutputConfig `yaml:"output" json:"output"`

	// Concurrency and transfer settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Character filters and skip words
	Filters FilterConfig `yaml:"filters" json:"filters"`

	// Manga/sequential reading mode
	Manga MangaConfig `yaml:"manga" json:"manga"`

	// Session cookies
	Cookies CookieConfig `yaml:"cookies" json:"cookies"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// SourceConfig identifies what to download
type SourceConfig struct {
	URL       string `yaml:"url" json:"url"`
	StartPage int    `yaml:"start_page" json:"start_page"`
	EndPage   int    `yaml:"end_page" json:"end_page"`
	UserAgent string `yaml:"user_agent" json:"user_agent"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	Directory        string `yaml:"directory" json:"directory"`
	FilterFolders    bool   `yaml:"filter_folders" json:"filter_folders"`
	PostSubfolders   bool   `yaml:"post_subfolders" json:"post_subfolders"`
	CustomFolderName string `yaml:"custom_folder_name" json:"custom_folder_name"`
}

// DownloadConfig holds concurrency and transfer configuration
type DownloadConfig struct {
	PostWorkers        int           `yaml:"post_workers" json:"post_workers"`
	FileWorkersPerPost int           `yaml:"file_workers_per_post" json:"file_workers_per_post"`
	Multipart          bool          `yaml:"multipart" json:"multipart"`
	MultipartParts     int           `yaml:"multipart_parts" json:"multipart_parts"`
	MultipartMinSize   int64         `yaml:"multipart_min_size" json:"multipart_min_size"`
	CompressImages     bool          `yaml:"compress_images" json:"compress_images"`
	RetryAttempts      int           `yaml:"retry_attempts" json:"retry_attempts"`
	RetryDelay         time.Duration `yaml:"retry_delay" json:"retry_delay"`
	RequestTimeout     time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// FilterConfig holds character filters and skip/remove word lists
type FilterConfig struct {
	// Names accepts plain names and grouped aliases in the form "(A, B, C)"
	Names       []string `yaml:"names" json:"names"`
	NameScope   string   `yaml:"name_scope" json:"name_scope"`
	SkipWords   []string `yaml:"skip_words" json:"skip_words"`
	SkipScope   string   `yaml:"skip_scope" json:"skip_scope"`
	RemoveWords []string `yaml:"remove_words" json:"remove_words"`
	FileType    string   `yaml:"file_type" json:"file_type"`
	SkipZip     bool     `yaml:"skip_zip" json:"skip_zip"`
	SkipRar     bool     `yaml:"skip_rar" json:"skip_rar"`
}

// MangaConfig holds sequential reading mode configuration
type MangaConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Style    string `yaml:"style" json:"style"`
	Prefix   string `yaml:"prefix" json:"prefix"`
}

// CookieConfig holds session cookie sources
type CookieConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	String  string `yaml:"string" json:"string"`
	File    string `yaml:"file" json:"file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			StartPage: 1,
			UserAgent: "Mozilla/5.0",
		},
		Output: OutputConfig{
			Directory:     "./downloads",
			FilterFolders: false,
		},
		Download: DownloadConfig{
			PostWorkers:        4,
			FileWorkersPerPost: 1,
			Multipart:          false,
			MultipartParts:     4,
			MultipartMinSize:   10 * 1024 * 1024,
			CompressImages:     false,
			RetryAttempts:      3,
			RetryDelay:         5 * time.Second,
			RequestTimeout:     60 * time.Second,
		},
		Filters: FilterConfig{
			NameScope: ScopeTitle,
			SkipScope: ScopePosts,
			FileType:  FileTypeAll,
		},
		Manga: MangaConfig{
			Style: StyleOriginalName,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if url := os.Getenv("KEMONO_DL_URL"); url != "" {
		c.Source.URL = url
	}
	if outputDir := os.Getenv("KEMONO_DL_OUTPUT_DIR"); outputDir != "" {
		c.Output.Directory = outputDir
	}
	if workers := os.Getenv("KEMONO_DL_POST_WORKERS"); workers != "" {
		var val int
		fmt.Sscanf(workers, "%d", &val)
		if val > 0 {
			c.Download.PostWorkers = val
		}
	}
	if threads := os.Getenv("KEMONO_DL_FILE_WORKERS"); threads != "" {
		var val int
		fmt.Sscanf(threads, "%d", &val)
		if val > 0 {
			c.Download.FileWorkersPerPost = val
		}
	}
	if cookie := os.Getenv("KEMONO_DL_COOKIE"); cookie != "" {
		c.Cookies.Enabled = true
		c.Cookies.String = cookie
	}
	if logLevel := os.Getenv("KEMONO_DL_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".kemono-dl.yaml",
		".kemono-dl.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "kemono-dl", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "kemono-dl", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".kemono-dl.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Source.URL == "" {
		errs = append(errs, errors.New("source URL is required"))
	}
	if c.Source.StartPage < 1 {
		errs = append(errs, errors.New("start page must be at least 1"))
	}
	if c.Source.EndPage != 0 && c.Source.EndPage < c.Source.StartPage {
		errs = append(errs, errors.New("end page cannot be before start page"))
	}

	if c.Output.Directory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}

	if c.Download.PostWorkers <= 0 {
		errs = append(errs, errors.New("post workers must be positive"))
	}
	if c.Download.PostWorkers > MaxPostWorkers {
		errs = append(errs, fmt.Errorf("post workers cannot exceed %d", MaxPostWorkers))
	}
	if c.Download.FileWorkersPerPost <= 0 {
		errs = append(errs, errors.New("file workers per post must be positive"))
	}
	if c.Download.FileWorkersPerPost > MaxFileWorkersPerPost {
		errs = append(errs, fmt.Errorf("file workers per post cannot exceed %d", MaxFileWorkersPerPost))
	}
	if c.Download.MultipartParts <= 0 {
		errs = append(errs, errors.New("multipart parts must be positive"))
	}
	if c.Download.RetryAttempts < 0 {
		errs = append(errs, errors.New("retry attempts cannot be negative"))
	}

	validNameScopes := map[string]bool{
		ScopeFiles: true, ScopeTitle: true, ScopeBoth: true, ScopeComments: true,
	}
	if !validNameScopes[strings.ToLower(c.Filters.NameScope)] {
		errs = append(errs, errors.New("invalid filter name scope"))
	}

	validSkipScopes := map[string]bool{
		ScopeFiles: true, ScopePosts: true, ScopeBoth: true,
	}
	if !validSkipScopes[strings.ToLower(c.Filters.SkipScope)] {
		errs = append(errs, errors.New("invalid skip word scope"))
	}

	validFileTypes := map[string]bool{
		FileTypeAll: true, FileTypeImage: true, FileTypeVideo: true,
		FileTypeArchive: true, FileTypeAudio: true,
	}
	if !validFileTypes[strings.ToLower(c.Filters.FileType)] {
		errs = append(errs, errors.New("invalid file type filter"))
	}

	validStyles := map[string]bool{
		StyleOriginalName: true, StylePostTitle: true, StyleDateBased: true,
		StyleTitleGlobal: true, StylePostID: true, StyleDatePostTitle: true,
	}
	if c.Manga.Enabled && !validStyles[strings.ToLower(c.Manga.Style)] {
		errs = append(errs, errors.New("invalid manga filename style"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if url, ok := flags["url"].(string); ok && url != "" {
		c.Source.URL = url
	}
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Output.Directory = outputDir
	}
	if workers, ok := flags["workers"].(int); ok && workers > 0 {
		c.Download.PostWorkers = workers
	}
	if threads, ok := flags["file-workers"].(int); ok && threads > 0 {
		c.Download.FileWorkersPerPost = threads
	}
	if cookie, ok := flags["cookie"].(string); ok && cookie != "" {
		c.Cookies.Enabled = true
		c.Cookies.String = cookie
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".kemono-dl.env"))

	// Start with defaults
	config := DefaultConfig()

	// Load from config file
	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Override with environment variables (includes values from .env)
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Override with command line flags
	config.MergeCommandLineFlags(flags)

	// Validate final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

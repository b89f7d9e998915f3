// Package config holds the tablesync settings shared by every command.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/openmined/tablesync/internal/blob"
	"github.com/openmined/tablesync/internal/deltalog"
	"github.com/openmined/tablesync/internal/utils"
)

var (
	home, _            = os.UserHomeDir()
	DefaultConfigPath  = filepath.Join(home, ".tablesync", "config.json")
	DefaultJournalPath = filepath.Join(home, ".tablesync", "journal.db")
	DefaultLogLevel    = "info"
)

const maxFetchConcurrency = 256

type S3Config struct {
	Region        string `json:"region,omitempty"`
	Endpoint      string `json:"endpoint,omitempty"`
	AccessKey     string `json:"access_key,omitempty"`
	SecretKey     string `json:"secret_key,omitempty"`
	UseAccelerate bool   `json:"use_accelerate,omitempty"`
}

type Config struct {
	TableURI           string   `json:"table_uri"`
	TableName          string   `json:"table_name,omitempty"`
	JournalPath        string   `json:"journal_path"`
	LogFile            string   `json:"log_file,omitempty"`
	LogLevel           string   `json:"log_level"`
	ActionCacheSize    int      `json:"action_cache_size"`
	FetchConcurrency   int      `json:"fetch_concurrency"`
	InCommitTimestamps bool     `json:"in_commit_timestamps,omitempty"`
	S3                 S3Config `json:"s3"`
	Path               string   `json:"-"`
}

// Validate normalises paths, applies defaults and rejects settings no
// command could run with.
func (c *Config) Validate() error {
	if c.TableURI == "" {
		return errors.New("table uri is required")
	}
	loc, err := blob.ParseLocation(c.TableURI)
	if err != nil {
		return fmt.Errorf("table uri: %w", err)
	}
	if loc.Scheme == "file" {
		c.TableURI = loc.LocalDir
	}

	if c.JournalPath == "" {
		c.JournalPath = DefaultJournalPath
	}
	if c.JournalPath, err = utils.ResolvePath(c.JournalPath); err != nil {
		return fmt.Errorf("journal path: %w", err)
	}

	if c.LogFile != "" {
		if c.LogFile, err = utils.ResolvePath(c.LogFile); err != nil {
			return fmt.Errorf("log file: %w", err)
		}
	}

	if c.Path != "" {
		if c.Path, err = utils.ResolvePath(c.Path); err != nil {
			return fmt.Errorf("config path: %w", err)
		}
	}

	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	c.LogLevel = strings.ToLower(level.String())

	if c.ActionCacheSize < 0 {
		return fmt.Errorf("action cache size must not be negative, got %d", c.ActionCacheSize)
	}
	if c.ActionCacheSize == 0 {
		c.ActionCacheSize = deltalog.DefaultActionCacheSize
	}

	if c.FetchConcurrency < 0 || c.FetchConcurrency > maxFetchConcurrency {
		return fmt.Errorf("fetch concurrency must be between 1 and %d, got %d", maxFetchConcurrency, c.FetchConcurrency)
	}
	if c.FetchConcurrency == 0 {
		c.FetchConcurrency = deltalog.DefaultFetchConcurrency
	}

	if (c.S3.AccessKey == "") != (c.S3.SecretKey == "") {
		return errors.New("s3 access key and secret key must be set together")
	}

	return nil
}

// Level is the parsed log level. Call after Validate.
func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// BlobConfig is the S3 part of the configuration in the form the blob package takes.
func (c *Config) BlobConfig() *blob.S3BlobConfig {
	return &blob.S3BlobConfig{
		Region:        c.S3.Region,
		Endpoint:      c.S3.Endpoint,
		AccessKey:     c.S3.AccessKey,
		SecretKey:     c.S3.SecretKey,
		UseAccelerate: c.S3.UseAccelerate,
	}
}

// LogOptions returns the deltalog options the configuration asks for.
func (c *Config) LogOptions() []deltalog.Option {
	opts := []deltalog.Option{
		deltalog.WithActionCacheSize(c.ActionCacheSize),
		deltalog.WithFetchConcurrency(c.FetchConcurrency),
	}
	if c.InCommitTimestamps {
		opts = append(opts, deltalog.WithInCommitTimestamps())
	}
	return opts
}

// LogValue keeps credentials out of logs.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("table_uri", c.TableURI),
		slog.String("journal_path", c.JournalPath),
		slog.String("log_level", c.LogLevel),
		slog.Int("action_cache_size", c.ActionCacheSize),
		slog.Int("fetch_concurrency", c.FetchConcurrency),
		slog.String("s3_endpoint", c.S3.Endpoint),
		slog.String("s3_access_key", utils.MaskSecret(c.S3.AccessKey)),
	)
}

func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Path = path
	return &cfg, nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the server looks for its configuration
const DefaultPath = "config/config.yaml"

// Config represents the application configuration
type Config struct {
	Server struct {
		Port int    `yaml:"port"`
		Host string `yaml:"host"`
	} `yaml:"server"`

	FFmpeg struct {
		FFmpegPath  string `yaml:"ffmpeg_path"`
		FFprobePath string `yaml:"ffprobe_path"`
		Threads     int    `yaml:"threads"`
		Preset      string `yaml:"preset"`
		CRF         int    `yaml:"crf"`
		CopyCodec   bool   `yaml:"copy_codec"`
	} `yaml:"ffmpeg"`

	Workers struct {
		Count int `yaml:"count"`
	} `yaml:"workers"`

	Storage struct {
		TempDir   string `yaml:"temp_dir"`
		OutputDir string `yaml:"output_dir"`
		Database  string `yaml:"database"`
	} `yaml:"storage"`

	Cleanup struct {
		IntervalMinutes int `yaml:"interval_minutes"`
		MaxAgeHours     int `yaml:"max_age_hours"`
	} `yaml:"cleanup"`

	GoogleDrive struct {
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
		FolderName      string `yaml:"folder_name"`
	} `yaml:"google_drive"`

	S3 struct {
		Bucket string `yaml:"bucket"`
		Prefix string `yaml:"prefix"`
	} `yaml:"s3"`

	Limits struct {
		MaxFileSizeMB int `yaml:"max_file_size_mb"`
	} `yaml:"limits"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // "console", "json" or "" for auto
	} `yaml:"logging"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Server.Host = "0.0.0.0"
	cfg.FFmpeg.Preset = "fast"
	cfg.FFmpeg.CRF = 23
	cfg.Workers.Count = 1
	cfg.Storage.TempDir = "temp"
	cfg.Storage.OutputDir = "outputs"
	cfg.Storage.Database = "data/jobs.db"
	cfg.Cleanup.IntervalMinutes = 30
	cfg.Cleanup.MaxAgeHours = 24
	cfg.GoogleDrive.CredentialsFile = "config/credentials.json"
	cfg.GoogleDrive.TokenFile = "config/token.json"
	cfg.GoogleDrive.FolderName = "Diarization Segments"
	cfg.S3.Prefix = "segments"
	cfg.Limits.MaxFileSizeMB = 500
	cfg.Logging.Level = "info"
	return cfg
}

// Load reads configuration from a YAML file on top of the defaults.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", filepath.Base(path), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks for values the server cannot run with
func (c *Config) Validate() error {
	var problems []string
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Workers.Count < 1 {
		problems = append(problems, "workers.count must be at least 1")
	}
	if c.Storage.TempDir == "" || c.Storage.OutputDir == "" {
		problems = append(problems, "storage.temp_dir and storage.output_dir are required")
	}
	// 0 would mean lossless x264, which the encoder options treat as unset
	if c.FFmpeg.CRF < 1 || c.FFmpeg.CRF > 63 {
		problems = append(problems, fmt.Sprintf("ffmpeg.crf %d out of range 1-63", c.FFmpeg.CRF))
	}
	if c.Limits.MaxFileSizeMB <= 0 {
		problems = append(problems, "limits.max_file_size_mb must be positive")
	}
	if c.Cleanup.IntervalMinutes <= 0 || c.Cleanup.MaxAgeHours <= 0 {
		problems = append(problems, "cleanup interval and max age must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

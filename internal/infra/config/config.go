package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/kvantos/patchbay/internal/domain"
)

type Config struct {
	Port string `mapstructure:"port" yaml:"port"`

	Patch PatchConfig `mapstructure:"patch" yaml:"patch"`
	Store StoreConfig `mapstructure:"store" yaml:"store"`
	Log   LogConfig   `mapstructure:"log" yaml:"log"`
}

type PatchConfig struct {
	ServerURL    string `mapstructure:"server_url" yaml:"server_url"`
	TargetFolder string `mapstructure:"target_folder" yaml:"target_folder"`
	FileListURL  string `mapstructure:"file_list_url" yaml:"file_list_url"`

	// DownloadSpeedLimit is in KiB/s; 0 means unlimited.
	DownloadSpeedLimit uint64 `mapstructure:"download_speed_limit" yaml:"download_speed_limit"`

	// MultithreadingThreshold is the file size in bytes above which
	// downloads are split into ranged segments.
	MultithreadingThreshold int64 `mapstructure:"multithreading_threshold" yaml:"multithreading_threshold"`

	// ProgressFileMaxAge is the age in seconds after which stale .progress
	// sidecar files are removed.
	ProgressFileMaxAge int64 `mapstructure:"progress_file_max_age" yaml:"progress_file_max_age"`
}

type StoreConfig struct {
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
}

type LogConfig struct {
	Debug bool `mapstructure:"debug" yaml:"debug"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("patch.server_url", "")
	v.SetDefault("patch.target_folder", "patcher")
	v.SetDefault("patch.file_list_url", "")
	v.SetDefault("patch.download_speed_limit", 0)
	v.SetDefault("patch.multithreading_threshold", 10*1024*1024)
	v.SetDefault("patch.progress_file_max_age", 86400)
	v.SetDefault("store.sqlite_path", "patchbay.db")
	v.SetDefault("log.debug", false)
}

// Load reads the daemon configuration. A missing file is not an error: the
// daemon boots with defaults so the shell can push a configuration over
// POST /config before the first update run.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.yaml"
	}

	v := viper.New()
	defaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("PATCHBAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save persists the configuration back to path as YAML.
func Save(path string, cfg *Config) error {
	if path == "" {
		path = "config.yaml"
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("port", cfg.Port)
	v.Set("patch.server_url", cfg.Patch.ServerURL)
	v.Set("patch.target_folder", cfg.Patch.TargetFolder)
	v.Set("patch.file_list_url", cfg.Patch.FileListURL)
	v.Set("patch.download_speed_limit", cfg.Patch.DownloadSpeedLimit)
	v.Set("patch.multithreading_threshold", cfg.Patch.MultithreadingThreshold)
	v.Set("patch.progress_file_max_age", cfg.Patch.ProgressFileMaxAge)
	v.Set("store.sqlite_path", cfg.Store.SQLitePath)
	v.Set("log.debug", cfg.Log.Debug)

	return v.WriteConfigAs(path)
}

// Wire converts the patch section to its external JSON shape.
func (c *Config) Wire() domain.AppConfig {
	return domain.AppConfig{
		ServerURL:          c.Patch.ServerURL,
		TargetFolder:       c.Patch.TargetFolder,
		FileListURL:        c.Patch.FileListURL,
		DownloadSpeedLimit: c.Patch.DownloadSpeedLimit,
	}
}

// ApplyWire folds a wire-shaped configuration into the patch section,
// leaving daemon-only settings untouched.
func (c *Config) ApplyWire(w domain.AppConfig) {
	c.Patch.ServerURL = w.ServerURL
	c.Patch.TargetFolder = w.TargetFolder
	c.Patch.FileListURL = w.FileListURL
	c.Patch.DownloadSpeedLimit = w.DownloadSpeedLimit
}

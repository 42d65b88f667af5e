/*
Package config manages TOML config for cityserve.
*/
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/bastiangx/cityserve/internal/utils"
	"github.com/charmbracelet/log"
)

const appDir = "cityserve"

// Config holds the entire config structure
type Config struct {
	Search  SearchConfig  `toml:"search"`
	Dataset DatasetConfig `toml:"dataset"`
	Server  ServerConfig  `toml:"server"`
	CLI     CliConfig     `toml:"cli"`
}

// SearchConfig tunes the query pipeline.
type SearchConfig struct {
	DebounceMs int `toml:"debounce_ms"`
	CacheSize  int `toml:"cache_size"`
	KeyLimit   int `toml:"key_limit"`
}

// DatasetConfig points at the city list.
type DatasetConfig struct {
	Path string `toml:"path"`
}

// ServerConfig has IPC server options.
type ServerConfig struct {
	MaxPrefix  int `toml:"max_prefix"`
	MaxResults int `toml:"max_results"`
}

// CliConfig holds cli interface options.
type CliConfig struct {
	MaxRows int `toml:"max_rows"`
}

// Debounce returns the debounce window as a duration.
func (s SearchConfig) Debounce() time.Duration {
	return time.Duration(s.DebounceMs) * time.Millisecond
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Search: SearchConfig{
			DebounceMs: 500,
			CacheSize:  256,
			KeyLimit:   10,
		},
		Dataset: DatasetConfig{
			Path: "data/cities.json",
		},
		Server: ServerConfig{
			MaxPrefix:  60,
			MaxResults: 0,
		},
		CLI: CliConfig{
			MaxRows: 20,
		},
	}
}

// normalize replaces out of range values with their defaults.
func (c *Config) normalize() {
	def := DefaultConfig()
	if c.Search.DebounceMs <= 0 {
		log.Warnf("Invalid debounce_ms %d, using %d", c.Search.DebounceMs, def.Search.DebounceMs)
		c.Search.DebounceMs = def.Search.DebounceMs
	}
	if c.Search.CacheSize < 0 {
		log.Warnf("Invalid cache_size %d, disabling the result cache", c.Search.CacheSize)
		c.Search.CacheSize = 0
	}
	if c.Search.KeyLimit <= 0 {
		c.Search.KeyLimit = def.Search.KeyLimit
	}
	if c.Dataset.Path == "" {
		c.Dataset.Path = def.Dataset.Path
	}
	if c.Server.MaxPrefix <= 0 {
		c.Server.MaxPrefix = def.Server.MaxPrefix
	}
	if c.Server.MaxResults < 0 {
		c.Server.MaxResults = 0
	}
	if c.CLI.MaxRows <= 0 {
		c.CLI.MaxRows = def.CLI.MaxRows
	}
}

// GetConfigDir returns the config directory with fallback priority:
// 1. ~/.config/cityserve
// 2. ~/Library/Application Support/cityserve (macOS)
// 3. Current executable dir
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Errorf("Failed to get home directory: %v", err)
		return utils.GetExecutableDir()
	}
	primaryPath := filepath.Join(homeDir, ".config", appDir)
	if result := utils.CheckDirStatus(primaryPath); result.Writable {
		return primaryPath, nil
	}
	macOSPath := filepath.Join(homeDir, "Library", "Application Support", appDir)
	if result := utils.CheckDirStatus(macOSPath); result.Writable {
		return macOSPath, nil
	}
	execDir, err := utils.GetExecutableDir()
	if err != nil {
		log.Errorf("Failed to get executable directory: %v", err)
		return "", err
	}
	return execDir, nil
}

// GetDefaultConfigPath returns the default path for config.toml
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}

// LoadConfigWithPriority loads config with priority:
// 1. Custom path from -config flag
// 2. Default path: [ConfigDir]/config.toml
// 3. Builtin defaults
func LoadConfigWithPriority(customConfigPath string) (*Config, string, error) {
	if customConfigPath != "" {
		if _, statErr := os.Stat(customConfigPath); statErr == nil {
			config, err := LoadConfig(customConfigPath)
			if err != nil {
				log.Warnf("Failed to load custom config from %s: %v. Trying default path...", customConfigPath, err)
			} else {
				log.Debugf("Loaded config from custom path: %s", customConfigPath)
				return config, customConfigPath, nil
			}
		} else {
			log.Warnf("Custom config file not found at %s: %v. Trying default path...", customConfigPath, statErr)
		}
	}

	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		log.Warnf("Failed to determine default config path: %v. Using built-in defaults...", err)
		return DefaultConfig(), "", nil
	}

	config, err := InitConfig(defaultPath)
	if err != nil {
		log.Warnf("Failed to load/create config at default path %s: %v. Using builtin defaults...", defaultPath, err)
		return DefaultConfig(), "", nil
	}
	log.Debugf("Loaded config from default path: %s", defaultPath)
	return config, defaultPath, nil
}

// InitConfig loads config from file or creates default if missing
func InitConfig(configPath string) (*Config, error) {
	configDir := filepath.Dir(configPath)

	if err := utils.EnsureDir(configDir); err != nil {
		log.Warnf("Failed to create config directory %s: %v. Using built-in defaults...", configDir, err)
		return DefaultConfig(), nil
	}

	if !utils.FileExists(configPath) {
		config := DefaultConfig()
		if err := SaveConfig(config, configPath); err != nil {
			log.Warnf("Failed to create default config file at %s: %v. Using built-in defaults...", configPath, err)
			return DefaultConfig(), nil
		}
		log.Debugf("Created default config file at: %s", configPath)
		return config, nil
	}

	return LoadConfig(configPath)
}

// LoadConfig loads from a TOML file. Keys missing from the file keep their
// defaults; a file that fails to decode is salvaged section by section.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if err := utils.LoadTOMLFile(configPath, config); err != nil {
		return tryPartialParse(configPath)
	}
	config.normalize()
	return config, nil
}

// tryPartialParse keeps every well-typed key of a file that did not decode
// cleanly into Config.
func tryPartialParse(configPath string) (*Config, error) {
	config := DefaultConfig()

	tempConfig, err := utils.ParseTOMLWithRecovery(configPath)
	if err != nil {
		log.Warnf("Could not parse any valid configuration from %s: %v. Using all defaults.", configPath, err)
		return config, nil
	}

	if section, ok := utils.ExtractSection(tempConfig, "search"); ok {
		extractSearchConfig(section, &config.Search)
	}
	if section, ok := utils.ExtractSection(tempConfig, "dataset"); ok {
		if val, ok := utils.ExtractString(section, "path"); ok {
			config.Dataset.Path = val
		}
	}
	if section, ok := utils.ExtractSection(tempConfig, "server"); ok {
		extractServerConfig(section, &config.Server)
	}
	if section, ok := utils.ExtractSection(tempConfig, "cli"); ok {
		if val, ok := utils.ExtractInt(section, "max_rows"); ok {
			config.CLI.MaxRows = val
		}
	}
	config.normalize()
	return config, nil
}

func extractSearchConfig(data map[string]any, search *SearchConfig) {
	if val, ok := utils.ExtractInt(data, "debounce_ms"); ok {
		search.DebounceMs = val
	}
	if val, ok := utils.ExtractInt(data, "cache_size"); ok {
		search.CacheSize = val
	}
	if val, ok := utils.ExtractInt(data, "key_limit"); ok {
		search.KeyLimit = val
	}
}

func extractServerConfig(data map[string]any, server *ServerConfig) {
	if val, ok := utils.ExtractInt(data, "max_prefix"); ok {
		server.MaxPrefix = val
	}
	if val, ok := utils.ExtractInt(data, "max_results"); ok {
		server.MaxResults = val
	}
}

// RebuildConfigFile force creates a new config.toml at default
func RebuildConfigFile() error {
	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		return err
	}
	if err := utils.EnsureDir(filepath.Dir(defaultPath)); err != nil {
		return err
	}
	return SaveConfig(DefaultConfig(), defaultPath)
}

// GetActiveConfigPath returns the absolute path of loaded config file
func GetActiveConfigPath(configPath string) string {
	if configPath == "" {
		return "builtin defaults"
	}
	return utils.GetAbsolutePath(configPath)
}

// SaveConfig saves into a TOML file
func SaveConfig(config *Config, configPath string) error {
	return utils.SaveTOMLFile(config, configPath)
}

// Update changes the search tuning and saves to file. Nil arguments keep
// their current value.
func (c *Config) Update(configPath string, debounceMs, cacheSize, maxResults *int) error {
	if debounceMs != nil {
		c.Search.DebounceMs = *debounceMs
	}
	if cacheSize != nil {
		c.Search.CacheSize = *cacheSize
	}
	if maxResults != nil {
		c.Server.MaxResults = *maxResults
	}
	c.normalize()
	return SaveConfig(c, configPath)
}

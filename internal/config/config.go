// Package config loads replaymock settings from ordered configuration
// sources, the environment and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/fakeyudi/replaymock/internal/logging"
	"github.com/fakeyudi/replaymock/internal/traffic"
)

// EnvPrefix prefixes environment overrides, e.g. REPLAYMOCK_GENERAL_LOG_LEVEL.
const EnvPrefix = "REPLAYMOCK"

// Config holds all configurable replaymock settings.
type Config struct {
	General     GeneralConfig     `mapstructure:"general"`
	CommandLine CommandLineConfig `mapstructure:"command_line"`
	FileEdits   FileEditsConfig   `mapstructure:"file_edits"`
	Replay      ReplayConfig      `mapstructure:"replay"`
}

// GeneralConfig controls the server itself.
type GeneralConfig struct {
	Multithreaded    bool   `mapstructure:"multithreaded"`
	ServerProtocol   string `mapstructure:"server_protocol"` // "classic" | "line"
	ServerAddress    string `mapstructure:"server_address"`
	RecordTimestamps bool   `mapstructure:"record_timestamps"`
	LogLevel         string `mapstructure:"log_level"`
	LogDir           string `mapstructure:"log_dir"` // empty logs to stderr
}

// CommandLineConfig controls command interception.
type CommandLineConfig struct {
	Intercepts   []string `mapstructure:"intercepts"`
	InterceptDir string   `mapstructure:"intercept_dir"`
	Asynchronous []string `mapstructure:"asynchronous"`
	Enquiry      []string `mapstructure:"enquiry"`
}

// FileEditsConfig controls side-effect detection.
type FileEditsConfig struct {
	Ignore []string `mapstructure:"ignore"`
}

// ReplayConfig controls which traffic is answered from a trace.
type ReplayConfig struct {
	// Exclude names traffic kinds that always go to their real destination.
	Exclude []string `mapstructure:"exclude"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		General: GeneralConfig{
			Multithreaded:  true,
			ServerProtocol: traffic.ProtocolClassic,
			LogLevel:       logging.LevelInfo,
		},
		CommandLine: CommandLineConfig{
			Intercepts:   []string{},
			Asynchronous: []string{},
			Enquiry:      []string{},
		},
		FileEdits: FileEditsConfig{Ignore: []string{}},
		Replay:    ReplayConfig{Exclude: []string{}},
	}
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("general.multithreaded", d.General.Multithreaded)
	v.SetDefault("general.server_protocol", d.General.ServerProtocol)
	v.SetDefault("general.server_address", d.General.ServerAddress)
	v.SetDefault("general.record_timestamps", d.General.RecordTimestamps)
	v.SetDefault("general.log_level", d.General.LogLevel)
	v.SetDefault("general.log_dir", d.General.LogDir)
	v.SetDefault("command_line.intercepts", d.CommandLine.Intercepts)
	v.SetDefault("command_line.intercept_dir", d.CommandLine.InterceptDir)
	v.SetDefault("command_line.asynchronous", d.CommandLine.Asynchronous)
	v.SetDefault("command_line.enquiry", d.CommandLine.Enquiry)
	v.SetDefault("file_edits.ignore", d.FileEdits.Ignore)
	v.SetDefault("replay.exclude", d.Replay.Exclude)
}

// DefaultSources returns the files read when no source is named: the user's
// global file, then the project file in the working directory.
func DefaultSources() []string {
	var sources []string
	if home, err := os.UserHomeDir(); err == nil {
		sources = append(sources, filepath.Join(home, ".config", "replaymock", "config.yaml"))
	}
	return append(sources, ".replaymock.yaml")
}

// Load reads sources in order, later ones overriding earlier ones, then
// applies REPLAYMOCK_* environment overrides. With no sources the
// DefaultSources are read and missing ones skipped; a named source that does
// not exist is an error.
func Load(sources []string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := len(sources) > 0
	if !explicit {
		sources = DefaultSources()
	}
	for _, path := range sources {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) && !explicit {
				continue
			}
			return nil, fmt.Errorf("reading config source: %w", err)
		}
		v.SetConfigFile(path)
		v.SetConfigType(sourceType(path))
		if err := v.MergeInConfig(); err != nil {
			return nil, &ParseError{Path: path, Err: err}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	return &cfg, nil
}

// sourceType picks the parser for a source from its extension. Anything
// unrecognized, such as an .rc file, is read as YAML.
func sourceType(path string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if slices.Contains([]string{"json", "toml", "yaml", "yml"}, ext) {
		return ext
	}
	return "yaml"
}

// ExcludedKinds resolves replay.exclude to traffic kinds.
func (c *Config) ExcludedKinds() ([]traffic.Kind, error) {
	kinds := make([]traffic.Kind, 0, len(c.Replay.Exclude))
	for _, name := range c.Replay.Exclude {
		k, err := traffic.ParseKind(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// ParseError is returned when a config source exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

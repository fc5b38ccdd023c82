// Package conf loads lanemix settings from YAML, environment variables and
// command line flags.
package conf

import (
	"embed"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/lanemix/internal/audiocore"
	"github.com/tphakala/lanemix/internal/errors"
)

//go:embed config.yaml
var configFiles embed.FS

// EnvPrefix prefixes every environment variable, e.g. LANEMIX_OUTPUT_CHUNK.
const EnvPrefix = "LANEMIX"

// LogSettings controls the structured logger.
type LogSettings struct {
	Level      string `yaml:"level" mapstructure:"level"`
	File       string `yaml:"file" mapstructure:"file"`             // empty logs to stdout
	MaxSize    int    `yaml:"maxsize" mapstructure:"maxsize"`       // megabytes before rotation
	MaxBackups int    `yaml:"maxbackups" mapstructure:"maxbackups"` // rotated files kept
	MaxAge     int    `yaml:"maxage" mapstructure:"maxage"`         // days rotated files are kept
}

// OutputSettings describes the master output used by the play command.
type OutputSettings struct {
	Name       string  `yaml:"name" mapstructure:"name"`
	Chunk      int     `yaml:"chunk" mapstructure:"chunk"`
	SampleRate int     `yaml:"samplerate" mapstructure:"samplerate"`
	Channels   int     `yaml:"channels" mapstructure:"channels"`
	Device     int     `yaml:"device" mapstructure:"device"` // -1 selects the default device
	Gain       float64 `yaml:"gain" mapstructure:"gain"`
}

// DuplexSettings describes the duplex stream.
type DuplexSettings struct {
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
	Chunk       int     `yaml:"chunk" mapstructure:"chunk"`
	SampleRate  int     `yaml:"samplerate" mapstructure:"samplerate"`
	InChannels  int     `yaml:"inchannels" mapstructure:"inchannels"`
	OutChannels int     `yaml:"outchannels" mapstructure:"outchannels"`
	InDevice    int     `yaml:"indevice" mapstructure:"indevice"`
	OutDevice   int     `yaml:"outdevice" mapstructure:"outdevice"`
	Gain        float64 `yaml:"gain" mapstructure:"gain"`
}

// EngineSettings tunes the engine lifecycle.
type EngineSettings struct {
	CloseDelay   time.Duration `yaml:"closedelay" mapstructure:"closedelay"`
	GracePeriod  time.Duration `yaml:"graceperiod" mapstructure:"graceperiod"`
	ReapInterval time.Duration `yaml:"reapinterval" mapstructure:"reapinterval"`
	PoolSize     int           `yaml:"poolsize" mapstructure:"poolsize"` // 0 uses physical cores
	Backend      string        `yaml:"backend" mapstructure:"backend"`   // malgo backend name, empty for platform default
}

// TelemetrySettings controls the status server and error reporting.
type TelemetrySettings struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	Listen    string `yaml:"listen" mapstructure:"listen"`
	SentryDSN string `yaml:"sentrydsn" mapstructure:"sentrydsn"`
	ReportAll bool   `yaml:"reportall" mapstructure:"reportall"`
}

// Settings is the complete configuration.
type Settings struct {
	Debug     bool              `yaml:"debug" mapstructure:"debug"`
	Verbose   bool              `yaml:"verbose" mapstructure:"verbose"`
	Log       LogSettings       `yaml:"log" mapstructure:"log"`
	Output    OutputSettings    `yaml:"output" mapstructure:"output"`
	Duplex    DuplexSettings    `yaml:"duplex" mapstructure:"duplex"`
	Engine    EngineSettings    `yaml:"engine" mapstructure:"engine"`
	Telemetry TelemetrySettings `yaml:"telemetry" mapstructure:"telemetry"`

	// ConfigFile is the file the settings were read from, if any.
	ConfigFile string `yaml:"-" mapstructure:"-"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads configPath, or the first config.yaml found in the default
// search paths when configPath is empty, overlays LANEMIX_* environment
// variables and validates the result. A missing default config is not an
// error; defaults apply.
func Load(configPath string) (*Settings, error) {
	v := viper.New()
	if err := initViper(v, configPath); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal").
			Build()
	}
	settings.ConfigFile = v.ConfigFileUsed()

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()
	return settings, nil
}

func initViper(v *viper.Viper, configPath string) error {
	v.SetConfigType("yaml")
	setDefaultConfig(v)
	bindEnv(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		paths, err := GetDefaultConfigPaths()
		if err != nil {
			return err
		}
		for _, p := range paths {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath == "" && errors.As(err, &notFound) {
			return nil
		}
		return errors.New(err).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Context("operation", "read_config").
			Context("path", configPath).
			Build()
	}
	return nil
}

// GetSettings returns the settings of the last successful Load.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// GetDefaultConfigPaths returns the directories searched for config.yaml.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("configuration").
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}
	return []string{
		".",
		filepath.Join(homeDir, ".config", "lanemix"),
		"/etc/lanemix",
	}, nil
}

// DefaultConfig returns the embedded default config.yaml.
func DefaultConfig() []byte {
	data, err := configFiles.ReadFile("config.yaml")
	if err != nil {
		panic(err) // embedded at build time
	}
	return data
}

// WriteDefaultConfig writes the embedded defaults to path. An existing file
// is left untouched and reported as a conflict.
func WriteDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.Newf("config file already exists").
			Component("configuration").
			Category(errors.CategoryConflict).
			Context("path", path).
			Build()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.New(err).
			Component("configuration").
			Category(errors.CategoryFileIO).
			Context("operation", "create_directory").
			Build()
	}
	if err := os.WriteFile(path, DefaultConfig(), 0o644); err != nil {
		return errors.New(err).
			Component("configuration").
			Category(errors.CategoryFileIO).
			Context("operation", "write_config").
			Context("path", path).
			Build()
	}
	return nil
}

// YAML returns the settings marshaled as YAML.
func (s *Settings) YAML() ([]byte, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, errors.New(err).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Context("operation", "marshal_yaml").
			Build()
	}
	return data, nil
}

func deviceIndex(idx int) *int {
	if idx < 0 {
		return nil
	}
	return &idx
}

// OutputParams converts the output section to stream parameters.
func (s *Settings) OutputParams() audiocore.StreamParameters {
	return audiocore.StreamParameters{
		Chunk:       s.Output.Chunk,
		SampleRate:  s.Output.SampleRate,
		OutChannels: s.Output.Channels,
		InChannels:  audiocore.DefaultInChannels,
		OutDevice:   deviceIndex(s.Output.Device),
	}
}

// DuplexParams converts the duplex section to stream parameters.
func (s *Settings) DuplexParams() audiocore.StreamParameters {
	return audiocore.StreamParameters{
		Chunk:       s.Duplex.Chunk,
		SampleRate:  s.Duplex.SampleRate,
		OutChannels: s.Duplex.OutChannels,
		InChannels:  s.Duplex.InChannels,
		OutDevice:   deviceIndex(s.Duplex.OutDevice),
		InDevice:    deviceIndex(s.Duplex.InDevice),
	}
}

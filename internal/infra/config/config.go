// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Playback      PlaybackConfig       `yaml:"playback"`
	Audio         AudioConfig          `yaml:"audio"`
	MediaControls []MediaControlConfig `yaml:"media_controls" default:"[{\"type\":\"keyboard\"}]" validate:"dive"`
	Log           LogConfig            `yaml:"log"`
}

// PlaybackConfig represents playback control configuration.
type PlaybackConfig struct {
	Volume             float64 `yaml:"volume" default:"1.0" validate:"gte=0,lte=16"`
	MaxLoops           uint32  `yaml:"max_loops" default:"2"`
	FadeTimeMs         uint32  `yaml:"fade_time_ms" default:"5000" validate:"lte=600000"`
	FadeTimePlaylistMs uint32  `yaml:"fade_time_playlist_ms" default:"2000" validate:"lte=600000"`
	JinglePauseMs      uint32  `yaml:"jingle_pause_ms" default:"1000" validate:"lte=600000"`
	FadePauseMs        uint32  `yaml:"fade_pause_ms" validate:"lte=600000"`
	FadeRawLogs        bool    `yaml:"fade_raw_logs"`
	PseudoSurround     bool    `yaml:"pseudo_surround"`
	Speed              float64 `yaml:"speed" default:"1.0" validate:"gt=0,lte=16"`
}

// AudioConfig represents audio output configuration.
type AudioConfig struct {
	Driver     string `yaml:"driver" default:"oto" validate:"oneof=oto beep wav null"`
	SampleRate uint32 `yaml:"sample_rate" default:"44100" validate:"gte=8000,lte=192000"`
	BufferMs   uint32 `yaml:"buffer_ms" default:"50" validate:"gte=5,lte=1000"`
	TickMs     uint32 `yaml:"tick_ms" default:"50" validate:"gte=1,lte=1000"`
	WavPath    string `yaml:"wav_path" default:"chipbox.wav"`
}

// MediaControlConfig represents a single media-control backend configuration.
type MediaControlConfig struct {
	Type     string         `yaml:"type" json:"type" validate:"required"`
	Settings map[string]any `yaml:"settings,omitempty" json:"settings,omitempty"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Output string `yaml:"output" default:"stderr"`
}

// Default returns the default configuration with environment overrides applied.
func Default() (*Config, error) {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	return cfg.finish()
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	// Defaults first so that explicit zero values in the file survive
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	return cfg.finish()
}

// LoadOrDefault loads path, falling back to Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default()
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default()
	}
	return Load(path)
}

func (c *Config) finish() (*Config, error) {
	// Override with environment variables
	if err := c.overrideFromEnv(); err != nil {
		return nil, err
	}

	// Validate configuration
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}
	return c, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() error {
	if v := os.Getenv("CHIPBOX_AUDIO_DRIVER"); v != "" {
		c.Audio.Driver = v
	}
	if v := os.Getenv("CHIPBOX_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("CHIPBOX_VOLUME"); v != "" {
		vol, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid CHIPBOX_VOLUME %q", v)
		}
		c.Playback.Volume = vol
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// MasterVolume returns the playback volume as 16.16 fixed point.
func (c *Config) MasterVolume() int32 {
	return int32(0x10000*c.Playback.Volume + 0.5)
}

// ChannelInvert returns the channel inversion bits. Pseudo surround inverts
// the right channel.
func (c *Config) ChannelInvert() uint8 {
	if c.Playback.PseudoSurround {
		return 0x02
	}
	return 0
}

// TickInterval returns the control loop tick interval.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Audio.TickMs) * time.Millisecond
}

// BufferFrames returns the audio buffer size in frames.
func (c *Config) BufferFrames() int {
	return int(uint64(c.Audio.SampleRate) * uint64(c.Audio.BufferMs) / 1000)
}

// IsMediaControlEnabled checks if a media-control backend type is configured.
func (c *Config) IsMediaControlEnabled(typ string) bool {
	for _, mc := range c.MediaControls {
		if mc.Type == typ {
			return true
		}
	}
	return false
}

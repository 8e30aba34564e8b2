// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ColonelBlimp/wklink/internal/bridge"
	"github.com/ColonelBlimp/wklink/internal/inject"
	"github.com/ColonelBlimp/wklink/internal/logger"
	"github.com/ColonelBlimp/wklink/internal/port"
	"github.com/ColonelBlimp/wklink/internal/telemetry"
	"github.com/ColonelBlimp/wklink/internal/winkeyer"
)

const (
	AppName       = "wklink"
	ConfigType    = "yaml"
	DefaultConfig = `# wklink Configuration

# Serial port
port: "auto"            # device path (/dev/ttyUSB0, COM3) or "auto" to pick one
baud: 1200              # WinKeyer link speed

# Keyer setup applied at connect
swap_paddles: false     # swap dit and dah paddles
mute_sidetone: true     # silence the keyer's own sidetone while connected
sidetone_restore: 4     # sidetone register value written back on disconnect

# Speed pot (must match the keyer's pot setup)
min_wpm: 10             # speed at the pot's minimum
range_wpm: 20           # span above min_wpm

# Timing (milliseconds)
read_timeout_ms: 50         # single read bound; stop requests are seen this fast
join_timeout_ms: 500        # wait for the reader to stop on disconnect
handshake_timeout_ms: 1000  # wait for the host open response
open_settle_ms: 500         # after opening the port
reset_settle_ms: 1000       # after clearing a stale host session
mode_settle_ms: 100         # after writing the mode register

# Key injection
injector: "keyboard"    # keyboard (left/right Ctrl) or log (dry run)

# Telemetry
telemetry_buffer: 256   # queued events before new ones are dropped
mqtt_broker: ""         # e.g. tcp://localhost:1883; empty disables MQTT
mqtt_topic: "wklink"    # events go to <mqtt_topic>/<kind>
mqtt_client_id: "wklink"

# Output
log_format: "console"   # console or json
debug: false            # Enable debug output
`
)

// Settings holds all application configuration
type Settings struct {
	// Serial port
	Port string `mapstructure:"port"`
	Baud int    `mapstructure:"baud"`

	// Keyer setup
	SwapPaddles     bool `mapstructure:"swap_paddles"`
	MuteSidetone    bool `mapstructure:"mute_sidetone"`
	SidetoneRestore int  `mapstructure:"sidetone_restore"`

	// Speed pot
	MinWPM   int `mapstructure:"min_wpm"`
	RangeWPM int `mapstructure:"range_wpm"`

	// Timing
	ReadTimeoutMS      int `mapstructure:"read_timeout_ms"`
	JoinTimeoutMS      int `mapstructure:"join_timeout_ms"`
	HandshakeTimeoutMS int `mapstructure:"handshake_timeout_ms"`
	OpenSettleMS       int `mapstructure:"open_settle_ms"`
	ResetSettleMS      int `mapstructure:"reset_settle_ms"`
	ModeSettleMS       int `mapstructure:"mode_settle_ms"`

	// Key injection
	Injector string `mapstructure:"injector"`

	// Telemetry
	TelemetryBuffer int    `mapstructure:"telemetry_buffer"`
	MQTTBroker      string `mapstructure:"mqtt_broker"`
	MQTTTopic       string `mapstructure:"mqtt_topic"`
	MQTTClientID    string `mapstructure:"mqtt_client_id"`

	// Output
	LogFormat string `mapstructure:"log_format"`
	Debug     bool   `mapstructure:"debug"`
}

// Init initializes Viper with defaults and config file.
// Config file search order: current directory, then ~/.config/wklink/
func Init() error {
	// Set defaults
	viper.SetDefault("port", port.Auto)
	viper.SetDefault("baud", winkeyer.BaudRate)
	viper.SetDefault("swap_paddles", false)
	viper.SetDefault("mute_sidetone", true)
	viper.SetDefault("sidetone_restore", int(winkeyer.SidetoneDefault))
	viper.SetDefault("min_wpm", 10)
	viper.SetDefault("range_wpm", 20)
	viper.SetDefault("read_timeout_ms", 50)
	viper.SetDefault("join_timeout_ms", 500)
	viper.SetDefault("handshake_timeout_ms", 1000)
	viper.SetDefault("open_settle_ms", 500)
	viper.SetDefault("reset_settle_ms", 1000)
	viper.SetDefault("mode_settle_ms", 100)
	viper.SetDefault("injector", inject.NameKeyboard)
	viper.SetDefault("telemetry_buffer", telemetry.DefaultBuffer)
	viper.SetDefault("mqtt_broker", "")
	viper.SetDefault("mqtt_topic", AppName)
	viper.SetDefault("mqtt_client_id", AppName)
	viper.SetDefault("log_format", logger.FormatConsole)
	viper.SetDefault("debug", false)

	// Support both config.yaml and .config.yaml
	viper.SetConfigType(ConfigType)

	// Priority order: current directory first, then XDG config
	viper.AddConfigPath(".")

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	viper.AddConfigPath(filepath.Join(configDir, AppName))

	// Try .config.yaml first (hidden file), then config.yaml
	viper.SetConfigName(".config")
	if err = viper.ReadInConfig(); err != nil {
		viper.SetConfigName("config")
		err = viper.ReadInConfig()
	}

	// Read config file - if not found, create default in XDG config dir
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			xdgConfigPath := filepath.Join(configDir, AppName)
			if err = ensureConfigExists(xdgConfigPath); err != nil {
				return err
			}
			if err = viper.ReadInConfig(); err != nil {
				return fmt.Errorf("read config: %w", err)
			}
		} else {
			return fmt.Errorf("read config: %w", err)
		}
	}

	return nil
}

func ensureConfigExists(configPath string) error {
	configFile := filepath.Join(configPath, "config.yaml")

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if err = os.MkdirAll(configPath, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
		if err = os.WriteFile(configFile, []byte(DefaultConfig), 0644); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
	}
	return nil
}

// Get returns the current settings
func Get() (*Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &s, nil
}

// Validate checks that all settings are within acceptable ranges
func (s *Settings) Validate() error {
	var errs []error

	if strings.TrimSpace(s.Port) == "" {
		errs = append(errs, errors.New("port must be a device path or \"auto\""))
	}
	if s.Baud <= 0 {
		errs = append(errs, fmt.Errorf("baud must be positive, got %d", s.Baud))
	}
	if s.SidetoneRestore < 0 || s.SidetoneRestore > 255 {
		errs = append(errs, fmt.Errorf("sidetone_restore must be between 0 and 255, got %d", s.SidetoneRestore))
	}

	// Speed pot
	if s.MinWPM < 5 || s.MinWPM > 99 {
		errs = append(errs, fmt.Errorf("min_wpm must be between 5 and 99, got %d", s.MinWPM))
	}
	if s.RangeWPM < 0 || s.RangeWPM > 94 {
		errs = append(errs, fmt.Errorf("range_wpm must be between 0 and 94, got %d", s.RangeWPM))
	}

	// Timing
	if s.ReadTimeoutMS < 1 || s.ReadTimeoutMS > 1000 {
		errs = append(errs, fmt.Errorf("read_timeout_ms must be between 1 and 1000, got %d", s.ReadTimeoutMS))
	}
	if s.JoinTimeoutMS < s.ReadTimeoutMS {
		errs = append(errs, fmt.Errorf("join_timeout_ms (%d) must be at least read_timeout_ms (%d)", s.JoinTimeoutMS, s.ReadTimeoutMS))
	}
	if s.HandshakeTimeoutMS < 1 {
		errs = append(errs, fmt.Errorf("handshake_timeout_ms must be positive, got %d", s.HandshakeTimeoutMS))
	}
	for key, v := range map[string]int{
		"open_settle_ms":  s.OpenSettleMS,
		"reset_settle_ms": s.ResetSettleMS,
		"mode_settle_ms":  s.ModeSettleMS,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %d", key, v))
		}
	}

	// Key injection
	switch strings.ToLower(s.Injector) {
	case inject.NameKeyboard, inject.NameLog:
	default:
		errs = append(errs, fmt.Errorf("injector must be one of keyboard, log, got %q", s.Injector))
	}

	// Telemetry
	if s.TelemetryBuffer < 1 {
		errs = append(errs, fmt.Errorf("telemetry_buffer must be positive, got %d", s.TelemetryBuffer))
	}
	if s.MQTTBroker != "" && strings.TrimSpace(s.MQTTTopic) == "" {
		errs = append(errs, errors.New("mqtt_topic is required when mqtt_broker is set"))
	}

	// Output
	switch s.LogFormat {
	case logger.FormatConsole, logger.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log_format must be one of console, json, got %q", s.LogFormat))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Bridge converts the settings into a connect configuration.
func (s *Settings) Bridge() bridge.Config {
	cfg := bridge.DefaultConfig()
	cfg.Speed = winkeyer.SpeedRange{MinWPM: s.MinWPM, RangeWPM: s.RangeWPM}
	cfg.JoinTimeout = ms(s.JoinTimeoutMS)

	cfg.Port.SwapPaddles = s.SwapPaddles
	cfg.Port.MuteSidetone = s.MuteSidetone
	cfg.Port.SidetoneRestore = byte(s.SidetoneRestore)
	cfg.Port.BaudRate = s.Baud
	cfg.Port.ReadTimeout = ms(s.ReadTimeoutMS)
	cfg.Port.HandshakeTimeout = ms(s.HandshakeTimeoutMS)
	cfg.Port.OpenSettle = ms(s.OpenSettleMS)
	cfg.Port.ResetSettle = ms(s.ResetSettleMS)
	cfg.Port.ModeSettle = ms(s.ModeSettleMS)
	return cfg
}

// MQTT converts the settings into a broker configuration.
func (s *Settings) MQTT() telemetry.MQTTConfig {
	return telemetry.MQTTConfig{
		Broker:   s.MQTTBroker,
		Topic:    s.MQTTTopic,
		ClientID: s.MQTTClientID,
	}
}

// LogLevel returns the level implied by the debug flag.
func (s *Settings) LogLevel() logger.Level {
	if s.Debug {
		return logger.DebugLevel
	}
	return logger.InfoLevel
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

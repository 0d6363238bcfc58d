// Package config loads the device description from YAML.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Channel kinds.
const (
	KindRelay         = "relay"
	KindRelayButton   = "relay_button"
	KindSensorNO      = "sensor_no"
	KindRollerShutter = "roller_shutter"
	KindThermometer   = "thermometer"
	KindPressure      = "pressure"
	KindWeight        = "weight"
	KindWind          = "wind"
	KindRain          = "rain"
	KindTempHumidity  = "temp_humidity"
	KindDistance      = "distance"
	KindDimmer        = "dimmer"
	KindRGB           = "rgb"
	KindDimmerRGB     = "dimmer_rgb"
)

// Sensor drivers.
const (
	DriverNone = "none"
	DriverW1   = "w1"
	DriverFile = "file"
)

// Dimmer drivers.
const (
	DriverMemory = "memory"
	DriverLEDs   = "leds"
)

// Defaults applied by Load.
const (
	DefaultPort            = 2015
	DefaultActivityTimeout = 30
	DefaultIterate         = 10 * time.Millisecond
	DefaultTimer           = 10 * time.Millisecond
	DefaultStatus          = time.Second
	DefaultHeartbeat       = 15 * time.Minute
	DefaultHTTPAddr        = ":80"
	DefaultStoragePath     = "/var/lib/supla-device/state.yaml"
	DefaultChip            = "gpiochip0"
	MaxChannels            = 32
)

// Config is the top-level device configuration.
type Config struct {
	Device   DeviceConfig    `yaml:"device"`
	Server   ServerConfig    `yaml:"server"`
	Loop     LoopConfig      `yaml:"loop"`
	HTTP     HTTPConfig      `yaml:"http"`
	Storage  StorageConfig   `yaml:"storage"`
	GPIO     GPIOConfig      `yaml:"gpio"`
	Channels []ChannelConfig `yaml:"channels"`
}

// DeviceConfig identifies the device.
type DeviceConfig struct {
	Name    string `yaml:"name"`
	GUID    string `yaml:"guid"` // 32 hex digits
	SoftVer string `yaml:"soft_ver"`
}

// ServerConfig describes the server and the credentials used to register.
type ServerConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	LocationID       int    `yaml:"location_id"`
	LocationPassword string `yaml:"location_password"`
	ActivityTimeout  int    `yaml:"activity_timeout"`
	Username         string `yaml:"username"` // broker credentials
	Password         string `yaml:"password"`
}

// LoopConfig sets the scheduler periods.
type LoopConfig struct {
	Iterate time.Duration `yaml:"iterate"`
	Timer   time.Duration `yaml:"timer"`
	Status  time.Duration `yaml:"status"`
	// Heartbeat is the period of the retained STATUS event. Negative
	// disables it.
	Heartbeat time.Duration `yaml:"heartbeat"`
}

// HTTPConfig configures the status server. An empty address disables it.
type HTTPConfig struct {
	Addr     string `yaml:"addr"`
	Disabled bool   `yaml:"disabled"`
}

// StorageConfig locates the persisted state file.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// GPIOConfig selects the GPIO chip.
type GPIOConfig struct {
	Chip string `yaml:"chip"`
}

// ChannelConfig describes one channel. Which fields apply depends on Kind.
type ChannelConfig struct {
	Kind       string        `yaml:"kind"`
	Pins       []int         `yaml:"pins"`
	Buttons    []int         `yaml:"buttons"`
	ActiveLow  bool          `yaml:"active_low"`
	Bistable   bool          `yaml:"bistable"`
	PullUp     bool          `yaml:"pull_up"`
	ButtonType string        `yaml:"button_type"` // monostable or bistable
	Restore    bool          `yaml:"restore"`
	Duration   time.Duration `yaml:"duration"`
	Sensor     SensorConfig  `yaml:"sensor"`
	LEDs       LEDConfig     `yaml:"leds"`
	Dimmer     string        `yaml:"dimmer_driver"`
}

// SensorConfig selects the driver of a measuring channel.
type SensorConfig struct {
	Model        string  `yaml:"model"` // dht11, dht22 or am2302 for temp_humidity
	Driver       string  `yaml:"driver"`
	Device       string  `yaml:"device"` // 1-wire slave id
	Path         string  `yaml:"path"`
	HumidityPath string  `yaml:"humidity_path"`
	Scale        float64 `yaml:"scale"`
	W1Root       string  `yaml:"w1_root"`
}

// LEDConfig names kernel LED class devices.
type LEDConfig struct {
	Root  string `yaml:"root"`
	White string `yaml:"white"`
	Red   string `yaml:"red"`
	Green string `yaml:"green"`
	Blue  string `yaml:"blue"`
}

// LoadDotEnv loads environment variables from path. Missing files are
// ignored.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Load reads a YAML file and returns a Config with defaults applied.
// Environment variables referenced as ${VAR} or $VAR in the YAML are expanded
// before parsing, so the location password can live in a .env file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: load: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.ActivityTimeout == 0 {
		c.Server.ActivityTimeout = DefaultActivityTimeout
	}
	if c.Loop.Iterate == 0 {
		c.Loop.Iterate = DefaultIterate
	}
	if c.Loop.Timer == 0 {
		c.Loop.Timer = DefaultTimer
	}
	if c.Loop.Status == 0 {
		c.Loop.Status = DefaultStatus
	}
	if c.Loop.Heartbeat == 0 {
		c.Loop.Heartbeat = DefaultHeartbeat
	}
	if c.HTTP.Addr == "" && !c.HTTP.Disabled {
		c.HTTP.Addr = DefaultHTTPAddr
	}
	if c.Storage.Path == "" {
		c.Storage.Path = DefaultStoragePath
	}
	if c.GPIO.Chip == "" {
		c.GPIO.Chip = DefaultChip
	}
	for i := range c.Channels {
		ch := &c.Channels[i]
		if ch.Sensor.Driver == "" {
			ch.Sensor.Driver = DriverNone
		}
		if ch.Dimmer == "" {
			ch.Dimmer = DriverMemory
		}
	}
}

// GUID decodes the device GUID.
func (c Config) GUID() ([16]byte, error) {
	var g [16]byte
	b, err := hex.DecodeString(c.Device.GUID)
	if err != nil {
		return g, fmt.Errorf("config: guid: %w", err)
	}
	if len(b) != len(g) {
		return g, fmt.Errorf("config: guid: want %d bytes, got %d", len(g), len(b))
	}
	copy(g[:], b)
	return g, nil
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	g, err := c.GUID()
	if err != nil {
		return err
	}
	if g == ([16]byte{}) {
		return errors.New("config: guid must not be zero")
	}
	if c.Server.Host == "" {
		return errors.New("config: server host is required")
	}
	if c.Server.LocationID <= 0 {
		return errors.New("config: server location_id is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server port %d out of range", c.Server.Port)
	}
	if c.Loop.Iterate < 0 || c.Loop.Timer < 0 || c.Loop.Status < 0 {
		return errors.New("config: loop periods must be positive")
	}
	if len(c.Channels) > MaxChannels {
		return fmt.Errorf("config: %d channels exceed the limit of %d", len(c.Channels), MaxChannels)
	}
	for i, ch := range c.Channels {
		if err := ch.validate(); err != nil {
			return fmt.Errorf("config: channel %d: %w", i, err)
		}
	}
	return nil
}

func (ch ChannelConfig) validate() error {
	switch ch.Kind {
	case KindRelay:
		if len(ch.Pins) < 1 || len(ch.Pins) > 2 {
			return fmt.Errorf("%s needs 1 or 2 pins, got %d", ch.Kind, len(ch.Pins))
		}
		if ch.Bistable && len(ch.Pins) != 2 {
			return errors.New("bistable relay needs an output and a feedback pin")
		}
	case KindRelayButton:
		if len(ch.Pins) != 2 {
			return fmt.Errorf("%s needs relay and button pins, got %d", ch.Kind, len(ch.Pins))
		}
		switch ch.ButtonType {
		case "", "monostable", "bistable":
		default:
			return fmt.Errorf("unknown button_type %q", ch.ButtonType)
		}
	case KindSensorNO:
		if len(ch.Pins) != 1 {
			return fmt.Errorf("%s needs 1 pin, got %d", ch.Kind, len(ch.Pins))
		}
	case KindRollerShutter:
		if len(ch.Pins) != 2 {
			return fmt.Errorf("%s needs down and up pins, got %d", ch.Kind, len(ch.Pins))
		}
		if len(ch.Buttons) != 0 && len(ch.Buttons) != 2 {
			return fmt.Errorf("%s needs 0 or 2 buttons, got %d", ch.Kind, len(ch.Buttons))
		}
	case KindThermometer, KindPressure, KindWeight, KindWind, KindRain, KindDistance:
		return ch.Sensor.validate(false)
	case KindTempHumidity:
		switch ch.Sensor.Model {
		case "dht11", "dht22", "am2302":
		default:
			return fmt.Errorf("unknown temp_humidity model %q", ch.Sensor.Model)
		}
		return ch.Sensor.validate(true)
	case KindDimmer, KindRGB, KindDimmerRGB:
		switch ch.Dimmer {
		case DriverMemory:
		case DriverLEDs:
			if ch.LEDs.White == "" && ch.LEDs.Red == "" && ch.LEDs.Green == "" && ch.LEDs.Blue == "" {
				return errors.New("leds driver needs at least one led")
			}
		default:
			return fmt.Errorf("unknown dimmer_driver %q", ch.Dimmer)
		}
	case "":
		return errors.New("kind is required")
	default:
		return fmt.Errorf("unknown kind %q", ch.Kind)
	}
	return nil
}

func (s SensorConfig) validate(pair bool) error {
	switch s.Driver {
	case DriverNone:
	case DriverW1:
		if pair {
			return errors.New("w1 driver reads temperature only")
		}
		if s.Device == "" {
			return errors.New("w1 driver needs a device id")
		}
	case DriverFile:
		if s.Path == "" {
			return errors.New("file driver needs a path")
		}
		if pair && s.HumidityPath == "" {
			return errors.New("file driver needs a humidity_path")
		}
	default:
		return fmt.Errorf("unknown sensor driver %q", s.Driver)
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
device:
  name: Garage
  guid: 00112233445566778899aabbccddeeff
  soft_ver: "2.0"

server:
  host: svr1.supla.org
  port: 1883
  location_id: 42
  location_password: secret
  activity_timeout: 45

loop:
  iterate: 20ms
  timer: 10ms

http:
  addr: ":8080"

storage:
  path: /tmp/state.yaml

channels:
  - kind: relay
    pins: [17]
    active_low: true
  - kind: relay_button
    pins: [27, 22]
    button_type: bistable
    restore: true
    duration: 1500ms
  - kind: roller_shutter
    pins: [5, 6]
    buttons: [13, 19]
  - kind: thermometer
    sensor:
      driver: w1
      device: 28-0316a2794aff
  - kind: temp_humidity
    sensor:
      model: dht22
      driver: file
      path: /sys/bus/iio/devices/iio:device0/in_temp_input
      humidity_path: /sys/bus/iio/devices/iio:device0/in_humidityrelative_input
      scale: 0.001
  - kind: dimmer_rgb
    dimmer_driver: leds
    leds:
      white: pwm-white
      red: pwm-red
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "device.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "Garage", cfg.Device.Name)
	assert.Equal(t, "svr1.supla.org", cfg.Server.Host)
	assert.Equal(t, 1883, cfg.Server.Port)
	assert.Equal(t, 42, cfg.Server.LocationID)
	assert.Equal(t, 45, cfg.Server.ActivityTimeout)
	assert.Equal(t, 20*time.Millisecond, cfg.Loop.Iterate)
	assert.Equal(t, time.Second, cfg.Loop.Status)
	assert.Equal(t, DefaultHeartbeat, cfg.Loop.Heartbeat)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "/tmp/state.yaml", cfg.Storage.Path)
	assert.Equal(t, DefaultChip, cfg.GPIO.Chip)

	require.Len(t, cfg.Channels, 6)
	assert.Equal(t, KindRelay, cfg.Channels[0].Kind)
	assert.True(t, cfg.Channels[0].ActiveLow)
	assert.Equal(t, []int{27, 22}, cfg.Channels[1].Pins)
	assert.Equal(t, 1500*time.Millisecond, cfg.Channels[1].Duration)
	assert.True(t, cfg.Channels[1].Restore)
	assert.Equal(t, []int{13, 19}, cfg.Channels[2].Buttons)
	assert.Equal(t, "28-0316a2794aff", cfg.Channels[3].Sensor.Device)
	assert.Equal(t, 0.001, cfg.Channels[4].Sensor.Scale)
	assert.Equal(t, "pwm-red", cfg.Channels[5].LEDs.Red)

	guid, err := cfg.GUID()
	require.NoError(t, err)
	assert.Equal(t, byte(0x00), guid[0])
	assert.Equal(t, byte(0xff), guid[15])
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
device:
  guid: 0102030405060708090a0b0c0d0e0f10
server:
  host: localhost
  location_id: 1
channels:
  - kind: pressure
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, DefaultActivityTimeout, cfg.Server.ActivityTimeout)
	assert.Equal(t, DefaultIterate, cfg.Loop.Iterate)
	assert.Equal(t, DefaultTimer, cfg.Loop.Timer)
	assert.Equal(t, DefaultHTTPAddr, cfg.HTTP.Addr)
	assert.Equal(t, DefaultStoragePath, cfg.Storage.Path)
	assert.Equal(t, DriverNone, cfg.Channels[0].Sensor.Driver)
	assert.Equal(t, DriverMemory, cfg.Channels[0].Dimmer)
}

func TestLoadHTTPDisabled(t *testing.T) {
	cfg, err := Load(writeConfig(t, "http:\n  disabled: true\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.HTTP.Addr)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/no/such/file.yaml")
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "channels: [unclosed"))
	assert.Error(t, err)
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("SUPLA_TEST_LOCATION_PASSWORD", "from-env")

	cfg, err := Load(writeConfig(t, `
server:
  location_password: ${SUPLA_TEST_LOCATION_PASSWORD}
`))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Server.LocationPassword)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SUPLA_TEST_DOTENV=loaded\n"), 0o600))
	t.Setenv("SUPLA_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("SUPLA_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("SUPLA_TEST_DOTENV"))
}

func TestLoadDotEnv_MissingFileIgnored(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))
}

func validConfig() Config {
	cfg := Config{
		Device: DeviceConfig{GUID: "0102030405060708090a0b0c0d0e0f10"},
		Server: ServerConfig{Host: "localhost", LocationID: 1},
	}
	cfg.applyDefaults()
	return cfg
}

func TestValidate_Identity(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"bad hex", func(c *Config) { c.Device.GUID = "zz" }, "guid"},
		{"short guid", func(c *Config) { c.Device.GUID = "0102" }, "want 16 bytes"},
		{"zero guid", func(c *Config) { c.Device.GUID = "00000000000000000000000000000000" }, "must not be zero"},
		{"no host", func(c *Config) { c.Server.Host = "" }, "host is required"},
		{"no location", func(c *Config) { c.Server.LocationID = 0 }, "location_id is required"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "out of range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidate_Channels(t *testing.T) {
	tests := []struct {
		name   string
		ch     ChannelConfig
		errMsg string
	}{
		{"no kind", ChannelConfig{}, "kind is required"},
		{"unknown kind", ChannelConfig{Kind: "toaster"}, "unknown kind"},
		{"relay without pins", ChannelConfig{Kind: KindRelay}, "needs 1 or 2 pins"},
		{"bistable one pin", ChannelConfig{Kind: KindRelay, Pins: []int{1}, Bistable: true}, "feedback pin"},
		{"button relay one pin", ChannelConfig{Kind: KindRelayButton, Pins: []int{1}}, "relay and button pins"},
		{"bad button type", ChannelConfig{Kind: KindRelayButton, Pins: []int{1, 2}, ButtonType: "toggle"}, "button_type"},
		{"sensor two pins", ChannelConfig{Kind: KindSensorNO, Pins: []int{1, 2}}, "needs 1 pin"},
		{"shutter one pin", ChannelConfig{Kind: KindRollerShutter, Pins: []int{1}}, "down and up pins"},
		{"shutter one button", ChannelConfig{Kind: KindRollerShutter, Pins: []int{1, 2}, Buttons: []int{3}}, "0 or 2 buttons"},
		{"w1 without device", ChannelConfig{Kind: KindThermometer, Sensor: SensorConfig{Driver: DriverW1}}, "device id"},
		{"file without path", ChannelConfig{Kind: KindDistance, Sensor: SensorConfig{Driver: DriverFile}}, "needs a path"},
		{"unknown sensor driver", ChannelConfig{Kind: KindWind, Sensor: SensorConfig{Driver: "i2c"}}, "unknown sensor driver"},
		{"bad model", ChannelConfig{Kind: KindTempHumidity, Sensor: SensorConfig{Model: "bme280", Driver: DriverNone}}, "model"},
		{"w1 pair", ChannelConfig{Kind: KindTempHumidity, Sensor: SensorConfig{Model: "dht11", Driver: DriverW1, Device: "x"}}, "temperature only"},
		{"pair without humidity path", ChannelConfig{Kind: KindTempHumidity, Sensor: SensorConfig{Model: "dht11", Driver: DriverFile, Path: "t"}}, "humidity_path"},
		{"leds without names", ChannelConfig{Kind: KindDimmer, Dimmer: DriverLEDs}, "at least one led"},
		{"unknown dimmer driver", ChannelConfig{Kind: KindRGB, Dimmer: "dmx"}, "unknown dimmer_driver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Channels = []ChannelConfig{tt.ch}
			cfg.applyDefaults()
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "channel 0")
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidate_ChannelLimit(t *testing.T) {
	cfg := validConfig()
	for i := 0; i <= MaxChannels; i++ {
		cfg.Channels = append(cfg.Channels, ChannelConfig{Kind: KindSensorNO, Pins: []int{i}})
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceed the limit")
}

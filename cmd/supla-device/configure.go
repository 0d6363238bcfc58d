package main

import (
	"fmt"

	"github.com/sweeney/supla-device/internal/channel"
	"github.com/sweeney/supla-device/internal/config"
	"github.com/sweeney/supla-device/internal/device"
	"github.com/sweeney/supla-device/internal/dimmer"
	"github.com/sweeney/supla-device/internal/gpio"
	"github.com/sweeney/supla-device/internal/sensor"
)

var singleTypes = map[string]channel.Type{
	config.KindThermometer: channel.TypeThermometerDS18B20,
	config.KindPressure:    channel.TypePressureSensor,
	config.KindWeight:      channel.TypeWeightSensor,
	config.KindWind:        channel.TypeWindSensor,
	config.KindRain:        channel.TypeRainSensor,
}

var pairTypes = map[string]channel.Type{
	"dht11":  channel.TypeDHT11,
	"dht22":  channel.TypeDHT22,
	"am2302": channel.TypeAM2302,
}

var dimmerTypes = map[string]channel.Type{
	config.KindDimmer:    channel.TypeDimmer,
	config.KindRGB:       channel.TypeRGBLEDController,
	config.KindDimmerRGB: channel.TypeDimmerAndRGBLED,
}

// configure adds the configured channels to dev in order, so channel
// numbers follow the configuration file.
func configure(dev *device.Device, cfg config.Config) error {
	for i, ch := range cfg.Channels {
		if err := addChannel(dev, ch); err != nil {
			return fmt.Errorf("channel %d (%s): %w", i, ch.Kind, err)
		}
	}
	return nil
}

func pin(pins []int, i int) int {
	if i < len(pins) {
		return pins[i]
	}
	return gpio.NoPin
}

func addChannel(dev *device.Device, ch config.ChannelConfig) error {
	var err error
	switch ch.Kind {
	case config.KindRelay:
		_, err = dev.AddRelay(pin(ch.Pins, 0), pin(ch.Pins, 1), ch.ActiveLow, ch.Bistable, channel.FuncRelayDefault)

	case config.KindRelayButton:
		bt := channel.ButtonMonostable
		if ch.ButtonType == "bistable" {
			bt = channel.ButtonBistable
		}
		flag := channel.FlagNone
		if ch.Restore {
			flag = channel.FlagRestore
		}
		_, err = dev.AddRelayButton(pin(ch.Pins, 0), pin(ch.Pins, 1), bt, flag, ch.ActiveLow, ch.Duration, channel.FuncRelayDefault)

	case config.KindSensorNO:
		_, err = dev.AddSensorNO(pin(ch.Pins, 0), ch.PullUp)

	case config.KindRollerShutter:
		var n int
		n, err = dev.AddRollerShutterRelays(pin(ch.Pins, 0), pin(ch.Pins, 1), ch.ActiveLow)
		if err == nil && len(ch.Buttons) == 2 {
			err = dev.SetRollerShutterButtons(n, ch.Buttons[0], ch.Buttons[1])
		}

	case config.KindThermometer, config.KindPressure, config.KindWeight, config.KindWind, config.KindRain:
		_, err = dev.AddThermometer(singleTypes[ch.Kind], singleReader(ch.Sensor))

	case config.KindDistance:
		_, err = dev.AddDistanceSensor(singleReader(ch.Sensor))

	case config.KindTempHumidity:
		_, err = dev.AddTempHumidity(pairTypes[ch.Sensor.Model], pairReader(ch.Sensor))

	case config.KindDimmer, config.KindRGB, config.KindDimmerRGB:
		_, err = dev.AddRGBW(dimmerTypes[ch.Kind], dimmerDriver(ch))

	default:
		err = fmt.Errorf("unknown kind %q", ch.Kind)
	}
	return err
}

func singleReader(s config.SensorConfig) sensor.Reader {
	switch s.Driver {
	case config.DriverW1:
		return sensor.NewW1Thermometer(s.W1Root, s.Device)
	case config.DriverFile:
		return &sensor.FileReader{Path: s.Path, Scale: s.Scale}
	}
	return nil
}

func pairReader(s config.SensorConfig) sensor.PairReader {
	if s.Driver == config.DriverFile {
		return &sensor.FilePairReader{TempPath: s.Path, HumidityPath: s.HumidityPath, Scale: s.Scale}
	}
	return nil
}

func dimmerDriver(ch config.ChannelConfig) dimmer.Driver {
	if ch.Dimmer == config.DriverLEDs {
		return &dimmer.LEDDriver{
			Root:  ch.LEDs.Root,
			White: ch.LEDs.White,
			Red:   ch.LEDs.Red,
			Green: ch.LEDs.Green,
			Blue:  ch.LEDs.Blue,
		}
	}
	return dimmer.NewMemDriver()
}

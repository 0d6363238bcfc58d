package dimmer

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LEDRoot is where the kernel exposes LED class devices.
const LEDRoot = "/sys/class/leds"

// LEDDriver drives kernel LED class devices. Brightness maps onto White;
// Red, Green and Blue are scaled by ColorBrightness. Empty names are
// skipped.
type LEDDriver struct {
	Root  string
	White string
	Red   string
	Green string
	Blue  string

	last RGBW
	set  bool
}

func (l *LEDDriver) path(name, attr string) string {
	root := l.Root
	if root == "" {
		root = LEDRoot
	}
	return filepath.Join(root, name, attr)
}

func (l *LEDDriver) maxBrightness(name string) (int, error) {
	data, err := os.ReadFile(l.path(name, "max_brightness"))
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// write sets LED name to level (0..255) times percent (0..100).
func (l *LEDDriver) write(name string, level, percent uint8) error {
	if name == "" {
		return nil
	}
	top, err := l.maxBrightness(name)
	if err != nil {
		return fmt.Errorf("dimmer: led %s: %w", name, err)
	}
	if percent > 100 {
		percent = 100
	}
	v := top * int(level) * int(percent) / (255 * 100)
	if err := os.WriteFile(l.path(name, "brightness"), []byte(strconv.Itoa(v)), 0o644); err != nil {
		return fmt.Errorf("dimmer: led %s: %w", name, err)
	}
	return nil
}

// SetRGBW writes all configured LEDs.
func (l *LEDDriver) SetRGBW(_ int, c RGBW) error {
	if err := l.write(l.White, 255, c.Brightness); err != nil {
		return err
	}
	if err := l.write(l.Red, c.Red, c.ColorBrightness); err != nil {
		return err
	}
	if err := l.write(l.Green, c.Green, c.ColorBrightness); err != nil {
		return err
	}
	if err := l.write(l.Blue, c.Blue, c.ColorBrightness); err != nil {
		return err
	}
	l.last = c
	l.set = true
	return nil
}

// RGBW reports the last state written. Before the first write it reports
// the white LED's brightness and the default color.
func (l *LEDDriver) RGBW(_ int) (RGBW, error) {
	if l.set {
		return l.last, nil
	}
	c := Default
	if l.White == "" {
		return c, nil
	}
	top, err := l.maxBrightness(l.White)
	if err != nil || top == 0 {
		return c, err
	}
	data, err := os.ReadFile(l.path(l.White, "brightness"))
	if err != nil {
		return c, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return c, err
	}
	c.Brightness = uint8(v * 100 / top)
	return c, nil
}

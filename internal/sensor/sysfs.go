package sensor

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// W1Root is where the kernel exposes 1-Wire slaves.
const W1Root = "/sys/bus/w1/devices"

// ErrCRC is returned when a 1-Wire read fails its checksum.
var ErrCRC = errors.New("sensor: 1-wire crc mismatch")

// W1Thermometer reads a DS18B20 through the w1_therm kernel driver.
type W1Thermometer struct {
	// Path is the slave's w1_slave file.
	Path string
}

// NewW1Thermometer returns a reader for the slave with the given id, such
// as "28-0316a2794aff", under root.
func NewW1Thermometer(root, id string) *W1Thermometer {
	if root == "" {
		root = W1Root
	}
	return &W1Thermometer{Path: filepath.Join(root, id, "w1_slave")}
}

// Read returns the temperature in degrees Celsius.
func (w *W1Thermometer) Read(_ int, _ float64) (float64, error) {
	data, err := os.ReadFile(w.Path)
	if err != nil {
		return 0, fmt.Errorf("sensor: read %s: %w", w.Path, err)
	}
	return parseW1(data)
}

// parseW1 decodes the two-line w1_slave format:
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
func parseW1(data []byte) (float64, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	if !sc.Scan() {
		return 0, errors.New("sensor: empty w1_slave")
	}
	if !strings.HasSuffix(strings.TrimSpace(sc.Text()), "YES") {
		return 0, ErrCRC
	}
	if !sc.Scan() {
		return 0, errors.New("sensor: truncated w1_slave")
	}
	line := sc.Text()
	i := strings.LastIndex(line, "t=")
	if i < 0 {
		return 0, fmt.Errorf("sensor: no temperature in %q", line)
	}
	milli, err := strconv.Atoi(strings.TrimSpace(line[i+2:]))
	if err != nil {
		return 0, fmt.Errorf("sensor: parse temperature: %w", err)
	}
	return float64(milli) / 1000, nil
}

// W1Devices lists the DS18B20 slave ids under root.
func W1Devices(root string) ([]string, error) {
	if root == "" {
		root = W1Root
	}
	matches, err := filepath.Glob(filepath.Join(root, "28-*"))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, filepath.Base(m))
	}
	return ids, nil
}

// FileReader reads a number from a sysfs attribute such as an IIO
// in_pressure_input or hwmon temp1_input, multiplied by Scale.
type FileReader struct {
	Path  string
	Scale float64
}

// Read returns the scaled value.
func (f *FileReader) Read(_ int, _ float64) (float64, error) {
	return readScaled(f.Path, f.Scale)
}

func readScaled(path string, scale float64) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("sensor: read %s: %w", path, err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("sensor: parse %s: %w", path, err)
	}
	if scale == 0 {
		scale = 1
	}
	return v * scale, nil
}

// FilePairReader reads temperature and humidity from two sysfs attributes,
// as exposed by the IIO dht11 driver (in_temp_input, in_humidityrelative_input
// in thousandths).
type FilePairReader struct {
	TempPath     string
	HumidityPath string
	Scale        float64
}

// ReadPair returns both scaled values.
func (f *FilePairReader) ReadPair(_ int, _, _ float64) (float64, float64, error) {
	t, err := readScaled(f.TempPath, f.Scale)
	if err != nil {
		return 0, 0, err
	}
	h, err := readScaled(f.HumidityPath, f.Scale)
	if err != nil {
		return 0, 0, err
	}
	return t, h, nil
}

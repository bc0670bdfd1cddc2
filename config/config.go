// Package config loads peripheral settings from YAML.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	gatt "github.com/XC-/gatt-peripheral"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config is the content of a peripheral configuration file.
//
//	name: upy-temp
//	appearance: 768
//	services: ["181a"]
//	interval: 250ms
//	admission_cap: unbounded
type Config struct {
	Name          string        `yaml:"name"`
	Appearance    uint16        `yaml:"appearance"`
	Services      []string      `yaml:"services"`
	ServiceData   HexBytes      `yaml:"service_data"`
	Payload       HexBytes      `yaml:"payload"`
	Interval      time.Duration `yaml:"interval"`
	AutoAdvertise *bool         `yaml:"auto_advertise"`
	AdmissionCap  *Cap          `yaml:"admission_cap"`
	QueueDepth    int           `yaml:"queue_depth"`
	LogLevel      string        `yaml:"log_level"`
}

// HexBytes is a byte string written in hex, e.g. "1a18 0102".
// Spaces and colons are ignored.
type HexBytes []byte

func (b *HexBytes) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	s = strings.NewReplacer(" ", "", ":", "").Replace(s)
	d, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*b = d
	return nil
}

// Cap is an admission cap: a number of connections, or "unbounded".
type Cap int

func (c *Cap) UnmarshalYAML(value *yaml.Node) error {
	if value.Value == "unbounded" {
		*c = Cap(gatt.Unbounded)
		return nil
	}
	var n int
	if err := value.Decode(&n); err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("line %d: admission cap must be >= 0 or unbounded, got %d", value.Line, n)
	}
	*c = Cap(n)
	return nil
}

// Parse parses a configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(c.Payload) > gatt.MaxAdvertisingPayload {
		return nil, fmt.Errorf("payload: %w", gatt.ErrPayloadTooLarge)
	}
	if c.Interval < 0 {
		return nil, fmt.Errorf("interval must not be negative, got %s", c.Interval)
	}
	return &c, nil
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Options returns the peripheral options the configuration sets.
// Fields left out of the file produce no option.
func (c *Config) Options() ([]gatt.Option, error) {
	var opts []gatt.Option
	if c.Name != "" {
		opts = append(opts, gatt.Name(c.Name))
	}
	if c.Appearance != 0 {
		opts = append(opts, gatt.Appearance(c.Appearance))
	}
	if len(c.Services) > 0 {
		uu := make([]gatt.UUID, 0, len(c.Services))
		for _, s := range c.Services {
			u, err := gatt.ParseUUID(s)
			if err != nil {
				return nil, fmt.Errorf("service %q: %w", s, err)
			}
			uu = append(uu, u)
		}
		opts = append(opts, gatt.AdvertisedServices(uu...))
	}
	if c.ServiceData != nil {
		opts = append(opts, gatt.ServiceData(c.ServiceData))
	}
	if c.Payload != nil {
		opts = append(opts, gatt.AdvertisingPayload(c.Payload))
	}
	if c.Interval > 0 {
		opts = append(opts, gatt.AdvertisingInterval(c.Interval))
	}
	if c.AutoAdvertise != nil {
		opts = append(opts, gatt.AutoAdvertise(*c.AutoAdvertise))
	}
	if c.AdmissionCap != nil {
		opts = append(opts, gatt.AdmissionCap(int(*c.AdmissionCap)))
	}
	if c.QueueDepth > 0 {
		opts = append(opts, gatt.QueueDepth(c.QueueDepth))
	}
	return opts, nil
}

// Level returns the configured log level, Info if none is set.
func (c *Config) Level() (logrus.Level, error) {
	if c.LogLevel == "" {
		return logrus.InfoLevel, nil
	}
	return logrus.ParseLevel(c.LogLevel)
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"labmon/internal/spec"
)

const SupportedSchema = "v1"

// Source modes.
const (
	ModePoll   = "poll"
	ModeStream = "stream"
)

// LoadMonitorSpec parses a monitor YAML, validates schema_version, fills
// defaults and returns it plus an absolute path to the driver config
// (empty when none is set).
func LoadMonitorSpec(path string) (spec.File, string, error) {
	var cfg spec.File
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, "", err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, "", err
	}
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = SupportedSchema
	}
	if cfg.SchemaVersion != SupportedSchema {
		return cfg, "", fmt.Errorf("monitor schema_version %q not supported (want %q)", cfg.SchemaVersion, SupportedSchema)
	}
	ApplyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, "", err
	}

	confPath := cfg.Source.Config
	if confPath != "" && !filepath.IsAbs(confPath) {
		confPath = filepath.Join(filepath.Dir(path), confPath)
	}
	if cfg.Output.Prefix != "" && !filepath.IsAbs(cfg.Output.Prefix) {
		cfg.Output.Prefix = filepath.Join(filepath.Dir(path), cfg.Output.Prefix)
	}
	if ds := cfg.Source.Thermistor.Datasheet; ds != "" && !filepath.IsAbs(ds) {
		cfg.Source.Thermistor.Datasheet = filepath.Join(filepath.Dir(path), ds)
	}
	return cfg, confPath, nil
}

func ApplyDefaults(c *spec.File) {
	if c.Output.NameLayout == "" {
		c.Output.NameLayout = "datetime"
	}
	if c.Output.BackupLimit == 0 {
		c.Output.BackupLimit = 10_000
	}
	if c.Rotation.At == "" && c.Rotation.Every == 0 {
		c.Rotation.At = "00:00"
	}
	if c.Sampling.Interval == 0 {
		c.Sampling.Interval = 120 * time.Second
	}
	if len(c.Sampling.ErrorValues) == 0 && len(c.Headers) > 0 {
		c.Sampling.ErrorValues = make([]float64, len(c.Headers))
		for i := range c.Sampling.ErrorValues {
			c.Sampling.ErrorValues[i] = -1
		}
	}
	if c.Source.Mode == "" {
		c.Source.Mode = ModePoll
	}
	if c.Source.Convert == "" {
		c.Source.Convert = "raw"
	}
	if c.Stream.QueueCapacity == 0 {
		c.Stream.QueueCapacity = 1024
	}
	if c.Stream.OnQueueFull == "" {
		c.Stream.OnQueueFull = "block"
	}
	if c.Stream.PacketsPerRequest == 0 {
		c.Stream.PacketsPerRequest = 1
	}
	if c.Stream.SamplesPerPacket == 0 {
		c.Stream.SamplesPerPacket = 25
	}
	if c.Stream.Channels == 0 {
		c.Stream.Channels = 1
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}

func Validate(c spec.File) error {
	if len(c.Headers) == 0 {
		return fmt.Errorf("headers: at least one field is required")
	}
	for i, h := range c.Headers {
		if strings.TrimSpace(h) == "" {
			return fmt.Errorf("headers[%d]: empty name", i)
		}
	}
	if c.Output.Prefix == "" {
		return fmt.Errorf("output.prefix is required")
	}
	if c.Rotation.At != "" && c.Rotation.Every != 0 {
		return fmt.Errorf("rotation: set either at or every, not both")
	}
	if c.Rotation.Every < 0 {
		return fmt.Errorf("rotation.every must be positive")
	}
	if c.Sampling.Interval < 0 {
		return fmt.Errorf("sampling.interval must be positive")
	}
	if len(c.Sampling.ErrorValues) != len(c.Headers) {
		return fmt.Errorf("sampling.error_values has %d values for %d headers", len(c.Sampling.ErrorValues), len(c.Headers))
	}
	if c.Source.Kind == "" {
		return fmt.Errorf("source.kind is required")
	}
	switch c.Source.Mode {
	case ModePoll, ModeStream:
	default:
		return fmt.Errorf("source.mode %q must be %s or %s", c.Source.Mode, ModePoll, ModeStream)
	}
	switch c.Stream.OnQueueFull {
	case "block", "drop":
	default:
		return fmt.Errorf("stream.on_queue_full %q must be block or drop", c.Stream.OnQueueFull)
	}
	if c.Stream.QueueCapacity < 0 {
		return fmt.Errorf("stream.queue_capacity must be >= 0")
	}
	return nil
}

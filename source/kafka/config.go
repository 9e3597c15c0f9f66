package kafka

import (
	"fmt"

	"github.com/knadh/koanf/v2"
)

type Config struct {
	Brokers   []string `koanf:"brokers"`
	Topics    []string `koanf:"topics"`
	GroupID   string   `koanf:"group_id"`
	StartFrom string   `koanf:"start_from"` // oldest|newest (default newest)
	Version   string   `koanf:"version"`
	TLSEn     bool     `koanf:"tls_enabled"`
	SASLUser  string   `koanf:"sasl_user"`
	SASLPass  string   `koanf:"sasl_pass"`
}

// FromKoanf unmarshals the driver section and applies defaults.
func FromKoanf(k *koanf.Koanf) (Config, error) {
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	if len(cfg.Brokers) == 0 || len(cfg.Topics) == 0 {
		return cfg, fmt.Errorf("kafka source: brokers and topics are required")
	}
	return cfg, nil
}

func applyDefaults(c *Config) {
	if c.StartFrom == "" {
		c.StartFrom = "newest"
	}
	if c.GroupID == "" {
		c.GroupID = "labmon"
	}
	if c.Version == "" {
		c.Version = "2.8.0"
	}
}

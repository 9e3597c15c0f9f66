package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// SourceEnvPrefix marks env vars overriding driver config keys;
// LABMON_SOURCE__TIMEOUT or LABMON_SOURCE__TLS__ENABLED ("__" nests).
const SourceEnvPrefix = "LABMON_SOURCE__"

// LoadSourceConfig merges the driver YAML (if present) with env vars and
// returns the tree for the driver's Configure.
func LoadSourceConfig(path string) (*koanf.Koanf, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	// schema version check (only when YAML is present)
	sv := k.String("schema_version")
	if sv != "" && sv != SupportedSchema {
		return nil, fmt.Errorf("source schema_version %q not supported (want %s)", sv, SupportedSchema)
	}

	if err := k.Load(env.Provider(SourceEnvPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}
	return k, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, SourceEnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// FileName is the config file looked up inside the state directory.
const FileName = "config.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AGENTLINE_"

const maxConfigFileSize = 1024 * 1024

// Load reads <stateDir>/config.yaml when present, then applies environment
// overrides, then fills defaults. Precedence (highest first): env, file, defaults.
//
// Environment variables map on the first underscore after the prefix:
//
//	AGENTLINE_BREAKER_RESET_TIMEOUT -> breaker.reset_timeout
//	AGENTLINE_LOG_LEVEL             -> log.level
func Load(stateDir string) (*Config, error) {
	return LoadFile(filepath.Join(stateDir, FileName))
}

// LoadFile is Load with an explicit file path. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	content, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}
	if content != nil {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}
	return io.ReadAll(f)
}

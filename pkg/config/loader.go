package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix marks environment variables read by Load.
	EnvPrefix = "CODENAV_"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

// topLevelKeys are root keys that contain an underscore.
var topLevelKeys = map[string]bool{
	"lexicon_path": true,
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when path is empty), then CODENAV_* environment variables.
//
// Environment variables map to keys by splitting on the first underscore
// after the prefix; a double underscore marks further nesting:
//
//	CODENAV_SERVER_ADDR                     -> server.addr
//	CODENAV_CHAT_DEFAULT_PROVIDER           -> chat.default_provider
//	CODENAV_CHAT__PROVIDERS__OPENAI__MODEL  -> chat.providers.openai.model
//	CODENAV_LEXICON_PATH                    -> lexicon_path
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// envKey maps an environment variable name to a config key.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))

	if strings.Contains(key, "__") {
		return strings.ReplaceAll(key, "__", ".")
	}
	if topLevelKeys[key] {
		return key
	}

	section, field, ok := strings.Cut(key, "_")
	if !ok {
		return key
	}
	return section + "." + field
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"modelconv/internal/common/fsutil"
)

// Config holds runtime parameters for the CLI and the daemon.
// Precedence: defaults < config file < MODELCONV_* environment.
type Config struct {
	Addr         string   `json:"addr" yaml:"addr" toml:"addr" env:"MODELCONV_ADDR"`
	ConverterBin string   `json:"converter_bin" yaml:"converter_bin" toml:"converter_bin" env:"MODELCONV_CONVERTER_BIN"`
	InspectorBin string   `json:"inspector_bin" yaml:"inspector_bin" toml:"inspector_bin" env:"MODELCONV_INSPECTOR_BIN"`
	DockerImage  string   `json:"docker_image" yaml:"docker_image" toml:"docker_image" env:"MODELCONV_DOCKER_IMAGE"`
	Workspace    string   `json:"workspace" yaml:"workspace" toml:"workspace" env:"MODELCONV_WORKSPACE"`
	ModelRepo    string   `json:"model_repo" yaml:"model_repo" toml:"model_repo" env:"MODELCONV_MODEL_REPO"`
	TimeoutSec   int      `json:"timeout_sec" yaml:"timeout_sec" toml:"timeout_sec" env:"MODELCONV_TIMEOUT_SEC"`
	ReportCSV    string   `json:"report_csv" yaml:"report_csv" toml:"report_csv" env:"MODELCONV_REPORT_CSV"`
	LogLevel     string   `json:"log_level" yaml:"log_level" toml:"log_level" env:"MODELCONV_LOG_LEVEL"`
	CORSEnabled  bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled" env:"MODELCONV_CORS_ENABLED"`
	CORSOrigins  []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins" env:"MODELCONV_CORS_ORIGINS"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Addr:         ":8080",
		ConverterBin: "optimum-cli",
		InspectorBin: "polygraphy",
		ModelRepo:    "./model_repository",
		TimeoutSec:   600,
		LogLevel:     "info",
	}
}

// Load builds the effective config: defaults, then the file at path (if
// non-empty; format chosen by extension: .yaml/.yml, .json, .toml), then
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("env overrides: %w", err)
	}
	for _, p := range []*string{&cfg.ModelRepo, &cfg.Workspace} {
		expanded, err := fsutil.ExpandHome(*p)
		if err != nil {
			return cfg, err
		}
		*p = expanded
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yaml.Unmarshal(b, cfg)
	case ".json":
		return json.Unmarshal(b, cfg)
	case ".toml":
		return toml.Unmarshal(b, cfg)
	default:
		return fmt.Errorf("unsupported config extension: %s", ext)
	}
}

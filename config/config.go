// Package config loads the service configuration from a YAML or JSON file
// with environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/taskalloc/core/allocation"
	"github.com/kilianp07/taskalloc/core/metrics"
	"github.com/kilianp07/taskalloc/core/runlog"
	"github.com/kilianp07/taskalloc/infra/mqtt"
	"github.com/kilianp07/taskalloc/simulator"
)

// EnvPrefix prefixes environment overrides. Nesting uses "__", so
// TA_ALLOCATION__SEED sets allocation.seed.
const EnvPrefix = "TA_"

type Config struct {
	Allocation allocation.Params `json:"allocation"`
	Metrics    metrics.Config    `json:"metrics"`
	MQTT       mqtt.Config       `json:"mqtt"`
	RunLog     runlog.Config     `json:"run_log"`
	Telemetry  TelemetryConfig   `json:"telemetry"`
	Simulation simulator.Config  `json:"simulation"`
	Sentry     SentryConfig      `json:"sentry"`
}

// Default returns a configuration usable without a file.
func Default() *Config {
	cfg := &Config{Allocation: allocation.DefaultParams(), Simulation: simulator.DefaultConfig()}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills unset transport, storage and monitoring settings.
// Allocation and simulation parameters are seeded before decoding instead,
// so an explicit zero in the file is kept.
func (c *Config) SetDefaults() {
	c.MQTT.SetDefaults()
	c.RunLog.SetDefaults()
	c.Telemetry.SetDefaults()
	c.Sentry.SetDefaults()
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Allocation.Validate(); err != nil {
		return err
	}
	if err := c.MQTT.Validate(); err != nil {
		return err
	}
	if err := c.RunLog.Validate(); err != nil {
		return err
	}
	if err := c.Telemetry.Validate(); err != nil {
		return err
	}
	if err := c.Simulation.Validate(); err != nil {
		return err
	}
	if err := c.Sentry.Validate(); err != nil {
		return err
	}
	return nil
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	cfg := Config{Allocation: allocation.DefaultParams(), Simulation: simulator.DefaultConfig()}
	// Decoding a list over a seeded slice overwrites element by element
	// without truncating it.
	if k.Exists("allocation.load_steps") {
		cfg.Allocation.LoadSteps = nil
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

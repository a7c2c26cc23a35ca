package config

import (
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

type yamlFile struct {
	Probes   *int     `yaml:"probes"`
	Timeout  string   `yaml:"timeout"`
	Workers  *int     `yaml:"workers"`
	LogLevel string   `yaml:"log_level"`
	Targets  []Target `yaml:"targets"`
}

func (p LatcheckParser) parseYAML(r io.Reader) (*Config, error) {
	var raw yamlFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	cfg := &Config{Global: DefaultGlobalOptions(), Targets: raw.Targets}
	if raw.Probes != nil {
		cfg.Global.ProbeCount = *raw.Probes
	}
	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout: %w", err)
		}
		cfg.Global.Timeout = d
	}
	if raw.Workers != nil {
		cfg.Global.Workers = *raw.Workers
	}
	if raw.LogLevel != "" {
		cfg.Global.LogLevel = raw.LogLevel
	}
	return cfg, nil
}

package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const directivePrefix = "latcheck:"

// LatcheckParser implements the Parser interface.
type LatcheckParser struct{}

// DefaultGlobalOptions returns baseline settings used before config overrides.
func DefaultGlobalOptions() GlobalOptions {
	return GlobalOptions{
		ProbeCount: DefaultProbeCount,
		Timeout:    DefaultTimeout,
		Workers:    0,
		LogLevel:   "info",
		UIDisable:  false,
	}
}

// LoadConfig parses a targets file with CLI overrides applied. Files ending
// in .yaml or .yml are read as YAML, everything else as the line format.
func (p LatcheckParser) LoadConfig(path string, overrides CLIOverrides) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var cfg *Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		cfg, err = p.parseYAML(file)
	default:
		cfg, err = p.parseLines(file)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	applyCLIOverrides(&cfg.Global, overrides)
	if err := ValidateTargets(cfg.Targets); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := ValidateProbeCount(cfg.Global.ProbeCount); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (p LatcheckParser) parseLines(r io.Reader) (*Config, error) {
	cfg := &Config{Global: DefaultGlobalOptions()}
	seen := make(map[string]int)

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if isDirective(line) {
			pairs, err := p.ParseDirective(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			if err := applyDirective(&cfg.Global, pairs); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}

		target, err := p.ParseTargetLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if first, ok := seen[target.ID]; ok {
			return nil, fmt.Errorf("line %d: %w: duplicate target id %q (first on line %d)", lineNo, ErrInvalidArgument, target.ID, first)
		}
		seen[target.ID] = lineNo
		cfg.Targets = append(cfg.Targets, target)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isDirective(line string) bool {
	trimmed := strings.TrimSpace(strings.TrimPrefix(line, "#"))
	return strings.HasPrefix(trimmed, directivePrefix)
}

// ParseDirective extracts key=value pairs from a "# latcheck:" line.
func (p LatcheckParser) ParseDirective(line string) (map[string]string, error) {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "#") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
	}
	if !strings.HasPrefix(trimmed, directivePrefix) {
		return nil, fmt.Errorf("directive line must start with '# latcheck:' or 'latcheck:': %q", line)
	}
	payload := strings.TrimSpace(strings.TrimPrefix(trimmed, directivePrefix))
	if payload == "" {
		return map[string]string{}, nil
	}

	pairs := make(map[string]string)
	for _, token := range strings.Fields(payload) {
		kv := strings.SplitN(token, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid directive token: %q", token)
		}
		pairs[kv[0]] = kv[1]
	}
	return pairs, nil
}

// ParseTargetLine parses "<id> <address>". The address is the last field so
// IDs may contain spaces.
func (p LatcheckParser) ParseTargetLine(line string) (Target, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Target{}, fmt.Errorf("invalid target line: %q", line)
	}
	return Target{
		ID:      strings.Join(fields[:len(fields)-1], " "),
		Address: fields[len(fields)-1],
	}, nil
}

func applyDirective(global *GlobalOptions, pairs map[string]string) error {
	for key, val := range pairs {
		switch key {
		case "probes":
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("invalid probes: %w", err)
			}
			global.ProbeCount = n
		case "timeout":
			d, err := time.ParseDuration(val)
			if err != nil {
				return fmt.Errorf("invalid timeout: %w", err)
			}
			global.Timeout = d
		case "workers":
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("invalid workers: %w", err)
			}
			global.Workers = n
		case "log.level":
			global.LogLevel = val
		case "ui.disable":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return fmt.Errorf("invalid ui.disable: %w", err)
			}
			global.UIDisable = b
		default:
			// Ignore unknown keys for forward compatibility.
		}
	}
	return nil
}

func applyCLIOverrides(global *GlobalOptions, overrides CLIOverrides) {
	if overrides.ProbeCount != nil {
		global.ProbeCount = *overrides.ProbeCount
	}
	if overrides.Timeout != nil {
		global.Timeout = *overrides.Timeout
	}
	if overrides.Workers != nil {
		global.Workers = *overrides.Workers
	}
	if overrides.LogLevel != nil {
		global.LogLevel = *overrides.LogLevel
	}
	if overrides.LogFile != nil {
		global.LogFile = *overrides.LogFile
	}
	if overrides.UIDisable != nil {
		global.UIDisable = *overrides.UIDisable
	}
	if overrides.JSON != nil {
		global.JSON = *overrides.JSON
	}
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	MinProbeCount     = 4
	MaxProbeCount     = 50
	DefaultProbeCount = 8
	DefaultTimeout    = 2 * time.Second
)

// ErrInvalidArgument marks configuration rejected before a run starts.
var ErrInvalidArgument = errors.New("invalid argument")

// Target is a single endpoint to probe. ID is unique within a run.
type Target struct {
	ID      string `yaml:"id"`
	Address string `yaml:"address"`
}

// RunConfig is the immutable input of one run.
type RunConfig struct {
	ProbeCount int
	Targets    []Target
}

// Validate checks the probe count bounds and target identity.
func (c RunConfig) Validate() error {
	if err := ValidateProbeCount(c.ProbeCount); err != nil {
		return err
	}
	return ValidateTargets(c.Targets)
}

// ValidateProbeCount rejects counts outside [MinProbeCount, MaxProbeCount].
func ValidateProbeCount(n int) error {
	if n < MinProbeCount || n > MaxProbeCount {
		return fmt.Errorf("%w: probe count %d outside %d..%d", ErrInvalidArgument, n, MinProbeCount, MaxProbeCount)
	}
	return nil
}

// ValidateTargets rejects empty lists, blank fields, duplicate IDs and
// addresses that would be read as command-line options by an external ping.
func ValidateTargets(targets []Target) error {
	if len(targets) == 0 {
		return fmt.Errorf("%w: no targets", ErrInvalidArgument)
	}
	seen := make(map[string]struct{}, len(targets))
	for i, tgt := range targets {
		if tgt.ID == "" || tgt.Address == "" {
			return fmt.Errorf("%w: target %d needs both id and address", ErrInvalidArgument, i+1)
		}
		if strings.HasPrefix(tgt.Address, "-") {
			return fmt.Errorf("%w: target %q address %q must not start with '-'", ErrInvalidArgument, tgt.ID, tgt.Address)
		}
		if _, ok := seen[tgt.ID]; ok {
			return fmt.Errorf("%w: duplicate target id %q", ErrInvalidArgument, tgt.ID)
		}
		seen[tgt.ID] = struct{}{}
	}
	return nil
}

// GlobalOptions holds global settings parsed from config and CLI overrides.
type GlobalOptions struct {
	ProbeCount int
	Timeout    time.Duration
	// Workers overrides the pool size; 0 means derive it from the CPU count.
	Workers   int
	LogLevel  string
	LogFile   string
	UIDisable bool
	JSON      bool
}

// Config is the parsed targets file with global settings.
type Config struct {
	Targets []Target
	Global  GlobalOptions
}

// CLIOverrides holds optional CLI values that override config file values.
type CLIOverrides struct {
	ProbeCount *int
	Timeout    *time.Duration
	Workers    *int
	LogLevel   *string
	LogFile    *string
	UIDisable  *bool
	JSON       *bool
}

// Parser defines config parsing behavior.
type Parser interface {
	LoadConfig(path string, overrides CLIOverrides) (*Config, error)
	ParseDirective(line string) (map[string]string, error)
	ParseTargetLine(line string) (Target, error)
}

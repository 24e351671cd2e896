package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateLimits(); err != nil {
		return err
	}
	if err := c.validateIncremental(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateTargets()
}

func (c *Config) validatePaths() error {
	if c.Src == "" {
		return errors.New("src is required (a glob such as \"bundles/**/*.bundle\")")
	}
	if c.Dest == "" {
		return errors.New("dest is required")
	}
	return nil
}

func (c *Config) validateLimits() error {
	if c.Workers < 0 {
		return errors.New("workers must be >= 0 (0 uses every CPU)")
	}
	if c.MaxCorruptFiles < 0 {
		return errors.New("max_corrupt_files must be >= 0 (0 never stops early)")
	}
	return nil
}

func (c *Config) validateIncremental() error {
	switch c.Incremental.Backend {
	case BackendJSON, BackendSQLite:
		return nil
	default:
		return fmt.Errorf("incremental.backend must be %q or %q, got %q", BackendJSON, BackendSQLite, c.Incremental.Backend)
	}
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateTargets() error {
	if len(c.Targets) == 0 {
		return errors.New("at least one [[targets]] entry is required")
	}
	if _, err := c.Rules(); err != nil {
		return err
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize(base string) error {
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
		base = wd
	}
	c.baseDir = base

	if err := c.normalizePaths(base); err != nil {
		return err
	}
	if err := c.normalizeIncremental(base); err != nil {
		return err
	}
	if err := c.normalizeLogging(base); err != nil {
		return err
	}
	c.normalizeTargets()
	return nil
}

func (c *Config) normalizePaths(base string) error {
	var err error
	c.Src = strings.TrimSpace(c.Src)
	if c.Src, err = expandPath(c.Src, base); err != nil {
		return fmt.Errorf("src: %w", err)
	}
	c.Dest = strings.TrimSpace(c.Dest)
	if c.Dest, err = expandPath(c.Dest, base); err != nil {
		return fmt.Errorf("dest: %w", err)
	}

	excludes := make([]string, 0, len(c.Exclude))
	for i, pattern := range c.Exclude {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		// Name-only patterns match file names anywhere and stay as written.
		if strings.ContainsAny(pattern, `/\`) {
			if pattern, err = expandPath(pattern, base); err != nil {
				return fmt.Errorf("exclude[%d]: %w", i, err)
			}
		}
		excludes = append(excludes, pattern)
	}
	c.Exclude = excludes
	return nil
}

func (c *Config) normalizeIncremental(base string) error {
	c.Incremental.Backend = strings.ToLower(strings.TrimSpace(c.Incremental.Backend))
	if c.Incremental.Backend == "" {
		c.Incremental.Backend = BackendJSON
	}
	c.Incremental.Path = strings.TrimSpace(c.Incremental.Path)
	if c.Incremental.Path == "" {
		if c.Incremental.Backend == BackendSQLite {
			c.Incremental.Path = defaultIncrementalDB
		} else {
			c.Incremental.Path = defaultIncrementalJSON
		}
	}
	var err error
	if c.Incremental.Path, err = expandPath(c.Incremental.Path, base); err != nil {
		return fmt.Errorf("incremental.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging(base string) error {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if format == "" {
		format = defaultLogFormat
	}
	c.Logging.Format = format

	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level

	var err error
	if c.Logging.Dir, err = expandPath(strings.TrimSpace(c.Logging.Dir), base); err != nil {
		return fmt.Errorf("logging.dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTargets() {
	for i := range c.Targets {
		target := &c.Targets[i]
		target.Type = strings.ToLower(strings.TrimSpace(target.Type))
		if strings.TrimSpace(target.Template) == "" {
			target.Template = defaultTemplate
		}
		target.Dest = strings.TrimSpace(target.Dest)
	}
}

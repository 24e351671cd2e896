package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/SegaraRai/uabxautomate/internal/rules"
)

//go:embed sample_config.toml
var sampleConfig string

// ErrNotFound is returned when no configuration file exists at the resolved
// path.
var ErrNotFound = errors.New("config file not found")

// Incremental configures the state used to skip unchanged outputs.
type Incremental struct {
	Enabled bool   `toml:"enabled"`
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	Dir    string `toml:"dir"`
}

// LogFile returns the log file path, or "" when file logging is off.
func (l Logging) LogFile() string {
	if strings.TrimSpace(l.Dir) == "" {
		return ""
	}
	return filepath.Join(l.Dir, defaultLogFileName)
}

// Target is one extraction rule as written in the config file.
type Target struct {
	Type     string `toml:"type"`
	Template string `toml:"template"`
	Match    string `toml:"match"`
	Dest     string `toml:"dest"`
}

// Config encapsulates all configuration values for uabxautomate.
//
// Sections:
//   - top level: input pattern, excludes, destination root, concurrency
//   - Incremental: skip state backend and location
//   - Logging: log format, level, and optional log directory
//   - Targets: ordered extraction rules
type Config struct {
	Src             string      `toml:"src"`
	Exclude         []string    `toml:"exclude"`
	Dest            string      `toml:"dest"`
	Workers         int         `toml:"workers"`
	MaxCorruptFiles int         `toml:"max_corrupt_files"`
	Incremental     Incremental `toml:"incremental"`
	Logging         Logging     `toml:"logging"`
	Targets         []Target    `toml:"targets"`

	// baseDir is where relative paths were resolved from.
	baseDir string
}

// LoadOption adjusts how Load resolves the file.
type LoadOption func(*loadOptions)

type loadOptions struct {
	configRelative bool
}

// WithConfigRelativePaths resolves relative paths in the file against the
// directory containing it instead of the working directory. The process
// working directory is not changed.
func WithConfigRelativePaths() LoadOption {
	return func(o *loadOptions) {
		o.configRelative = true
	}
}

// Load locates, parses, and validates a configuration file. An empty path
// means ./uabxautomate.toml. It returns the config and the resolved file path.
func Load(path string, opts ...LoadOption) (*Config, string, error) {
	var options loadOptions
	for _, opt := range opts {
		opt(&options)
	}

	resolvedPath, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", err
	}

	data, err := os.ReadFile(resolvedPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, resolvedPath, fmt.Errorf("%w: %s (create one with 'uabxautomate config init')", ErrNotFound, resolvedPath)
		}
		return nil, resolvedPath, fmt.Errorf("open config: %w", err)
	}

	base := ""
	if options.configRelative {
		base = filepath.Dir(resolvedPath)
	}
	cfg, err := Parse(data, base)
	if err != nil {
		return nil, resolvedPath, err
	}
	return cfg, resolvedPath, nil
}

// Parse decodes, normalizes and validates TOML data. Relative paths resolve
// against baseDir, or the working directory when baseDir is empty. Unknown
// keys are rejected so typos in target fields surface early.
func Parse(data []byte, baseDir string) (*Config, error) {
	cfg := Default()
	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.normalize(baseDir); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func resolveConfigPath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		path = defaultConfigFileName
	}
	return expandPath(path, "")
}

// BaseDir returns the directory relative paths were resolved against.
func (c *Config) BaseDir() string {
	return c.baseDir
}

// WorkerCount returns the configured worker count, defaulting to the number of
// CPUs.
func (c *Config) WorkerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

// RuleSpecs returns the targets in declaration order.
func (c *Config) RuleSpecs() []rules.Spec {
	specs := make([]rules.Spec, 0, len(c.Targets))
	for _, target := range c.Targets {
		specs = append(specs, rules.Spec{
			Type:     target.Type,
			Template: target.Template,
			Match:    target.Match,
			Dest:     target.Dest,
		})
	}
	return specs
}

// Rules compiles the targets.
func (c *Config) Rules() ([]rules.Rule, error) {
	return rules.Compile(c.RuleSpecs())
}

// expandPath expands "~", makes pathValue absolute against base (or the
// working directory when base is empty), and cleans it.
func expandPath(pathValue, base string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	if base != "" && !filepath.IsAbs(pathValue) {
		pathValue = filepath.Join(base, pathValue)
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue, "")
}

// CreateSample writes a sample configuration file to the specified location.
// It refuses to overwrite an existing file.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("config already exists at %s", path)
		}
		return fmt.Errorf("write sample config: %w", err)
	}
	if _, err := file.WriteString(sampleConfig); err != nil {
		_ = file.Close()
		return fmt.Errorf("write sample config: %w", err)
	}
	return file.Close()
}

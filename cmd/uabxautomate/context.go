package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/SegaraRai/uabxautomate/internal/config"
	"github.com/SegaraRai/uabxautomate/internal/incremental"
	"github.com/SegaraRai/uabxautomate/internal/logging"
)

type commandContext struct {
	configFlag *string
	chdirFlag  *bool
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string, chdirFlag, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		chdirFlag:  chdirFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		var opts []config.LoadOption
		if c.chdirFlag != nil && *c.chdirFlag {
			opts = append(opts, config.WithConfigRelativePaths())
		}
		cfg, resolved, err := config.Load(path, opts...)
		c.configPath = resolved
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// JSONMode reports whether --json was given.
func (c *commandContext) JSONMode() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// newCLILogger builds the logger configured in [logging], tagged with
// component.
func (c *commandContext) newCLILogger(cfg *config.Config, component string) (*slog.Logger, error) {
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logging.NewComponentLogger(logger, component), nil
}

// openStore opens the configured incremental store. readOnly stores never
// create files or take the writer lock.
func openStore(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger, readOnly bool) (incremental.Store, error) {
	store, err := incremental.Open(cmd.Context(), incremental.Options{
		Backend:  cfg.Incremental.Backend,
		Path:     cfg.Incremental.Path,
		ReadOnly: readOnly,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open incremental state: %w", err)
	}
	return store, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

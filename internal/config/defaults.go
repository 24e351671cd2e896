package config

import "github.com/SegaraRai/uabxautomate/internal/rules"

const (
	defaultConfigFileName  = "uabxautomate.toml"
	defaultTemplate        = rules.DefaultTemplate
	defaultIncrementalJSON = ".uabxautomate/state.json"
	defaultIncrementalDB   = ".uabxautomate/state.db"
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
	defaultLogFileName     = "uabxautomate.log"

	// BackendJSON and BackendSQLite name the incremental state backends.
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Default returns a Config populated with repository defaults. Src, Dest and
// Targets have no defaults.
func Default() Config {
	return Config{
		Incremental: Incremental{
			Backend: BackendJSON,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

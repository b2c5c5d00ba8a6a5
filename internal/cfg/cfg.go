package cfg

import (
	"errors"
	"flag"
	"fmt"
)

// Config adds service-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	LLMProvider           string
	LLMAPIKey             string
	LLMModel              string
	LLMBaseURL            string
	DatabaseURL           string
	HistoryCapacity       int
	TelemetryDir          string
	NormalizeThreatLevels bool
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.LLMProvider, "llm-provider", "qwen", "LLM provider to use (qwen or claude)")
	fs.StringVar(&c.LLMAPIKey, "llm-api-key", "", "API key for the configured LLM provider")
	fs.StringVar(&c.LLMModel, "llm-model", "Qwen/Qwen3-8B", "model identifier passed to the LLM provider")
	fs.StringVar(&c.LLMBaseURL, "llm-base-url", "", "override base URL for OpenAI-compatible providers (empty = provider default)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.IntVar(&c.HistoryCapacity, "history-capacity", 100, "maximum analysis records retained in history (1..100000)")
	fs.StringVar(&c.TelemetryDir, "telemetry-dir", "logs", "directory for session telemetry JSONL files")
	fs.BoolVar(&c.NormalizeThreatLevels, "normalize-threat-levels", false, "recompute model threat levels from risk score thresholds")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	switch c.LLMProvider {
	case "qwen", "claude":
	default:
		errs = append(errs, fmt.Errorf("invalid LLM_PROVIDER %q (must be qwen or claude)", c.LLMProvider))
	}

	// An API key is required for LLM access
	if c.LLMAPIKey == "" {
		errs = append(errs, errors.New("LLM_API_KEY is required"))
	}

	// A model identifier is required for LLM access
	if c.LLMModel == "" {
		errs = append(errs, errors.New("LLM_MODEL is required"))
	}

	if c.HistoryCapacity <= 0 || c.HistoryCapacity > 100000 {
		errs = append(errs, fmt.Errorf("invalid HISTORY_CAPACITY %d (must be 1..100000)", c.HistoryCapacity))
	}

	if c.TelemetryDir == "" {
		errs = append(errs, errors.New("TELEMETRY_DIR is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

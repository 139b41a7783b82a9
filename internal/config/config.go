// Package config loads the runtime configuration this service needs: the
// handful of environment knobs governing budget and cache sizing plus the
// model registry backing the invoker, validated fail-fast at startup with
// hand-rolled validation methods returning wrapped errors.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/nhaka-archive/resurrection/pkg/invoker"
)

var (
	ErrMissingField = errors.New("config: missing required field")
	ErrInvalidValue = errors.New("config: invalid value")
)

// ValidationError reports which field of which component failed
// validation: a small wrapped struct rather than a generic error-code enum.
type ValidationError struct {
	Component string
	Field     string
	Err       error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s.%s: %v", e.Component, e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ModelRegistry is the YAML-loaded list of models the invoker may call,
// keyed by model id, each carrying its own pricing.
type ModelRegistry struct {
	Models map[string]invoker.ModelPricing `yaml:"models"`
}

func loadModelRegistry(path string) (*ModelRegistry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading model registry %s: %w", path, err)
	}
	var reg ModelRegistry
	if err := yaml.Unmarshal(raw, &reg); err != nil {
		return nil, fmt.Errorf("config: parsing model registry %s: %w", path, err)
	}
	if len(reg.Models) == 0 {
		return nil, &ValidationError{Component: "ModelRegistry", Field: "models", Err: ErrMissingField}
	}
	return &reg, nil
}

// Config is the fully-resolved runtime configuration.
type Config struct {
	APIKey           string
	DailyBudgetCap   float64
	CacheSize        int
	ReferenceDataPath string
	ScannerModel      string
	LinguistModel     string
	HistorianModel    string
	ValidatorModel    string
	RepairModel       string
	ModelPricing      map[string]invoker.ModelPricing
}

// Load reads the budget, cache and model env vars plus the model registry
// and reference-data paths, and validates the result. An absent
// RESURRECTION_API_KEY is not an error — it is the signal that forces
// fallback-only operation. DAILY_BUDGET_CAP and CACHE_SIZE are required;
// each per-role model env var (SCANNER_MODEL, ...) falls back to its
// "<role>-default" model id when unset.
func Load(modelRegistryPath, referenceDataPath string) (*Config, error) {
	cap, err := parseFloatEnv("DAILY_BUDGET_CAP")
	if err != nil {
		return nil, err
	}
	size, err := parseIntEnv("CACHE_SIZE")
	if err != nil {
		return nil, err
	}

	registry, err := loadModelRegistry(modelRegistryPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		APIKey:            os.Getenv("RESURRECTION_API_KEY"),
		DailyBudgetCap:    cap,
		CacheSize:         size,
		ReferenceDataPath: referenceDataPath,
		ScannerModel:      envOr("SCANNER_MODEL", "scanner-default"),
		LinguistModel:     envOr("LINGUIST_MODEL", "linguist-default"),
		HistorianModel:    envOr("HISTORIAN_MODEL", "historian-default"),
		ValidatorModel:    envOr("VALIDATOR_MODEL", "validator-default"),
		RepairModel:       envOr("REPAIR_MODEL", "repair-default"),
		ModelPricing:      registry.Models,
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DailyBudgetCap <= 0 {
		return &ValidationError{Component: "Config", Field: "DailyBudgetCap", Err: ErrInvalidValue}
	}
	if c.CacheSize <= 0 {
		return &ValidationError{Component: "Config", Field: "CacheSize", Err: ErrInvalidValue}
	}
	if c.ReferenceDataPath == "" {
		return &ValidationError{Component: "Config", Field: "ReferenceDataPath", Err: ErrMissingField}
	}
	return nil
}

// HasModelBackend reports whether an API key is configured. Its absence
// means every model call fails over to the deterministic fallback.
func (c *Config) HasModelBackend() bool { return c.APIKey != "" }

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseFloatEnv(key string) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, &ValidationError{Component: "Config", Field: key, Err: ErrMissingField}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &ValidationError{Component: "Config", Field: key, Err: fmt.Errorf("%w: %v", ErrInvalidValue, err)}
	}
	return v, nil
}

func parseIntEnv(key string) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, &ValidationError{Component: "Config", Field: key, Err: ErrMissingField}
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ValidationError{Component: "Config", Field: key, Err: fmt.Errorf("%w: %v", ErrInvalidValue, err)}
	}
	return v, nil
}

// Package config loads the optimizer and server settings from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"fpl-squad-mcp/internal/captaincy"
	"fpl-squad-mcp/internal/constraints"
	"fpl-squad-mcp/internal/model"
)

type Config struct {
	Rules     RulesConfig     `yaml:"rules"`
	Captaincy CaptaincyConfig `yaml:"captaincy"`
	Solver    SolverConfig    `yaml:"solver"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	DataRoot  string          `yaml:"data_root"`
}

// RulesConfig is the default roster rule set. Budget is a decimal string
// such as "100.0"; category keys are GK, DEF, MID, FWD.
type RulesConfig struct {
	RosterSize  int                           `yaml:"roster_size"`
	Categories  map[string]constraints.Bounds `yaml:"categories"`
	MaxPerGroup int                           `yaml:"max_per_group"`
	Budget      string                        `yaml:"budget"`
}

type CaptaincyConfig struct {
	Weights         captaincy.Weights `yaml:"weights"`
	Bonuses         captaincy.Bonuses `yaml:"bonuses"`
	ConfidenceScale float64           `yaml:"confidence_scale"`
	Alternates      int               `yaml:"alternates"`
}

type SolverConfig struct {
	MaxNodes int    `yaml:"max_nodes"`
	Timeout  string `yaml:"timeout"`
	Workers  int    `yaml:"workers"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	Path        string `yaml:"path"`
	RequireAuth bool   `yaml:"require_auth"`
	AuthHeader  string `yaml:"auth_header"`
	APIKey      string `yaml:"-"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() *Config {
	return &Config{
		Rules: RulesConfig{
			RosterSize: 15,
			Categories: map[string]constraints.Bounds{
				"GK":  {Min: 2, Max: 2},
				"DEF": {Min: 5, Max: 5},
				"MID": {Min: 5, Max: 5},
				"FWD": {Min: 3, Max: 3},
			},
			MaxPerGroup: 3,
			Budget:      "100.0",
		},
		Captaincy: CaptaincyConfig{
			Weights:         captaincy.DefaultWeights(),
			Bonuses:         captaincy.DefaultBonuses(),
			ConfidenceScale: captaincy.DefaultConfidenceScale,
			Alternates:      captaincy.DefaultAlternates,
		},
		Solver: SolverConfig{
			MaxNodes: 0,
			Timeout:  "30s",
			Workers:  4,
		},
		Server: ServerConfig{
			Addr:        ":8080",
			Path:        "/mcp",
			RequireAuth: true,
			AuthHeader:  "X-API-Key",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		DataRoot: "data",
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) applyEnvOverrides() {
	c.DataRoot = getEnv("FPLOPT_DATA_ROOT", c.DataRoot)
	c.Solver.Timeout = getEnv("FPLOPT_SOLVER_TIMEOUT", c.Solver.Timeout)
	c.Logging.Level = getEnv("FPLOPT_LOG_LEVEL", c.Logging.Level)
	c.Server.Addr = getEnv("FPLOPT_ADDR", c.Server.Addr)
	if v, err := strconv.Atoi(os.Getenv("FPLOPT_SOLVER_WORKERS")); err == nil {
		c.Solver.Workers = v
	}
	if key := strings.TrimSpace(os.Getenv("FPL_MCP_API_KEY")); key != "" {
		c.Server.APIKey = key
	}
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// Validate checks that the rule set, timeout and worker count are usable.
func (c *Config) Validate() error {
	m, err := c.Rules.Model()
	if err != nil {
		return err
	}
	if err := m.Check(); err != nil {
		return fmt.Errorf("rules: %w", err)
	}
	if _, err := time.ParseDuration(c.Solver.Timeout); err != nil {
		return fmt.Errorf("solver.timeout: %w", err)
	}
	if c.Solver.Workers <= 0 {
		return fmt.Errorf("solver.workers must be positive, got %d", c.Solver.Workers)
	}
	if c.Solver.MaxNodes < 0 {
		return fmt.Errorf("solver.max_nodes must not be negative, got %d", c.Solver.MaxNodes)
	}
	return nil
}

// Model converts the configured rules into a constraints.Model.
func (r RulesConfig) Model() (constraints.Model, error) {
	budget, err := model.ParseMoney(r.Budget)
	if err != nil {
		return constraints.Model{}, fmt.Errorf("rules.budget: %w", err)
	}
	bounds := make(map[model.Category]constraints.Bounds, len(r.Categories))
	for k, b := range r.Categories {
		cat, err := model.ParseCategory(k)
		if err != nil {
			return constraints.Model{}, fmt.Errorf("rules.categories: %w", err)
		}
		bounds[cat] = b
	}
	return constraints.Model{
		RosterSize:     r.RosterSize,
		CategoryBounds: bounds,
		MaxPerGroup:    r.MaxPerGroup,
		BudgetCeiling:  budget,
	}, nil
}

// SolveTimeout returns the per-solve deadline; invalid values fall back to 30s.
func (s SolverConfig) SolveTimeout() time.Duration {
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// Options converts the section for captaincy.Select. An explicit zero for
// alternates or an all-zero bonus table is kept as written.
func (c CaptaincyConfig) Options() captaincy.Options {
	bonuses, alternates := c.Bonuses, c.Alternates
	return captaincy.Options{
		Weights:         c.Weights,
		Bonuses:         &bonuses,
		ConfidenceScale: c.ConfidenceScale,
		Alternates:      &alternates,
	}
}

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/manifold/pkg/adapters/process"
	"github.com/aretw0/manifold/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Defaults applied by Load when the document leaves them out.
const (
	DefaultDrainTimeout = 2 * time.Second
	DefaultKillTimeout  = 5 * time.Second
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
)

// Config is the whole pipeline document.
type Config struct {
	Input   Input   `mapstructure:"input"`
	Outputs []Stage `mapstructure:"outputs"`
	Pipes   []Stage `mapstructure:"pipes"`

	process.Config `mapstructure:",squash"`

	Shutdown Shutdown `mapstructure:"shutdown"`
	Log      Log      `mapstructure:"log"`
	Metrics  Metrics  `mapstructure:"metrics"`
	MCP      MCP      `mapstructure:"mcp"`
	Events   Events   `mapstructure:"events"`
}

// Input selects the master: the enclosing program's stdin, or a command to spawn.
type Input struct {
	Stdin bool     `mapstructure:"-"`
	Bin   string   `mapstructure:"bin"`
	Args  []string `mapstructure:"args"`
}

// Stage is one spawned program and the stages fed by its output.
type Stage struct {
	Name      string   `mapstructure:"name"`
	Bin       string   `mapstructure:"bin"`
	Args      []string `mapstructure:"args"`
	KeepAlive *bool    `mapstructure:"keep_alive"`
	Pipe      *Stage   `mapstructure:"pipe"`
	Pipes     []Stage  `mapstructure:"pipes"`
}

// Shutdown tunes the termination cascade.
type Shutdown struct {
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
	KillTimeout  time.Duration `mapstructure:"kill_timeout"`
}

// Log configures the application logger.
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Metrics configures the introspection/metrics HTTP endpoint. Empty Addr disables it.
type Metrics struct {
	Addr string `mapstructure:"addr"`
}

// MCP configures the Model Context Protocol endpoint. Empty Addr disables it.
type MCP struct {
	Addr string `mapstructure:"addr"`
}

// Events configures where lifecycle events are published.
type Events struct {
	Redis *Redis `mapstructure:"redis"`
}

// Redis is the connection for the lifecycle event stream.
type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"max_len"`
}

// KeepsAlive reports whether the stage is respawned after an unintentional exit.
func (s Stage) KeepsAlive() bool {
	return s.KeepAlive == nil || *s.KeepAlive
}

// Label is the stage name, or its command line when unnamed.
func (s Stage) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return strings.TrimSpace(s.Bin + " " + strings.Join(s.Args, " "))
}

// Next returns the stages fed by this one: Pipe first, then Pipes.
func (s Stage) Next() []Stage {
	var next []Stage
	if s.Pipe != nil {
		next = append(next, *s.Pipe)
	}
	return append(next, s.Pipes...)
}

// Stages returns the stages attached to the master: Outputs, then Pipes.
func (c *Config) Stages() []Stage {
	stages := make([]Stage, 0, len(c.Outputs)+len(c.Pipes))
	stages = append(stages, c.Outputs...)
	return append(stages, c.Pipes...)
}

// Load reads a configuration file (YAML or JSON), applies defaults and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline config: %w", err)
	}

	var raw map[string]any
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	} else {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	}

	cfg, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode turns a generic document into a Config with defaults applied.
func Decode(raw map[string]any) (*Config, error) {
	cfg := &Config{
		Input: Input{Stdin: true},
		Shutdown: Shutdown{
			DrainTimeout: DefaultDrainTimeout,
			KillTimeout:  DefaultKillTimeout,
		},
		Log: Log{Level: DefaultLogLevel, Format: DefaultLogFormat},
	}
	if raw == nil {
		return cfg, nil
	}

	if in, ok := raw["input"]; ok {
		input, err := normalizeInput(in)
		if err != nil {
			return nil, err
		}
		raw["input"] = input
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	return cfg, nil
}

// normalizeInput accepts the "stdin" sentinel (or null) in place of an input object.
func normalizeInput(in any) (map[string]any, error) {
	switch v := in.(type) {
	case nil:
		return map[string]any{}, nil
	case string:
		if v == domain.InputStdin {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("input %q: %w", v, domain.ErrNoInput)
	case map[string]any:
		if bin, _ := v["bin"].(string); strings.TrimSpace(bin) == "" {
			return nil, fmt.Errorf("input has no bin: %w", domain.ErrNoInput)
		}
		return v, nil
	}
	return nil, fmt.Errorf("input must be %q or an object with bin: %w", domain.InputStdin, domain.ErrNoInput)
}

// Validate checks the document for setup errors.
func (c *Config) Validate() error {
	var errs []error
	c.Input.Stdin = c.Input.Bin == ""
	for i, s := range c.Outputs {
		errs = append(errs, s.validate(fmt.Sprintf("outputs[%d]", i))...)
	}
	for i, s := range c.Pipes {
		errs = append(errs, s.validate(fmt.Sprintf("pipes[%d]", i))...)
	}
	if c.Shutdown.DrainTimeout < 0 || c.Shutdown.KillTimeout < 0 {
		errs = append(errs, errors.New("shutdown timeouts must not be negative"))
	}
	if c.Events.Redis != nil && c.Events.Redis.Addr == "" {
		errs = append(errs, errors.New("events.redis: addr is required"))
	}
	return errors.Join(errs...)
}

func (s Stage) validate(path string) []error {
	var errs []error
	if strings.TrimSpace(s.Bin) == "" {
		errs = append(errs, fmt.Errorf("%s: stage has no bin", path))
	}
	if s.Pipe != nil {
		errs = append(errs, s.Pipe.validate(path+".pipe")...)
	}
	for i, p := range s.Pipes {
		errs = append(errs, p.validate(fmt.Sprintf("%s.pipes[%d]", path, i))...)
	}
	return errs
}

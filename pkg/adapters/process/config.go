package process

import (
	"fmt"
	"sort"
)

// Config is the spawn environment shared by every stage of a pipeline.
type Config struct {
	Dir         string            `yaml:"dir" json:"dir" mapstructure:"dir"`
	Environment map[string]string `yaml:"env" json:"env" mapstructure:"env"`
}

// Environ renders Environment as sorted KEY=VALUE pairs.
func (c Config) Environ() []string {
	keys := make([]string, 0, len(c.Environment))
	for k := range c.Environment {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, c.Environment[k]))
	}
	return env
}

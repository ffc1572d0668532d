package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/device"
	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/engine"
	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/timeline"
)

//go:embed schema.cue
var schemaSource string

// Config is a decoded conductor configuration.
type Config struct {
	Devices   map[string]device.Config `json:"devices"`
	Mappings  timeline.Mappings        `json:"mappings"`
	Conductor Conductor                `json:"conductor"`
}

// Conductor holds engine tuning. Durations are in ms.
type Conductor struct {
	ProactiveResolve   bool    `json:"proactiveResolve"`
	EstimateMultiplier float64 `json:"estimateMultiplier"`
	TickInterval       int64   `json:"tickInterval"`
	LifecycleTimeout   int64   `json:"lifecycleTimeout"`
	RemoveTimeout      int64   `json:"removeTimeout"`
}

// Options translates c into engine options.
func (c Conductor) Options() []engine.Option {
	return []engine.Option{
		engine.WithProactiveResolve(c.ProactiveResolve),
		engine.WithEstimateMultiplier(c.EstimateMultiplier),
		engine.WithTickInterval(c.TickInterval),
		engine.WithLifecycleTimeout(time.Duration(c.LifecycleTimeout) * time.Millisecond),
		engine.WithRemoveTimeout(time.Duration(c.RemoveTimeout) * time.Millisecond),
	}
}

// DeviceIDs returns the ids of enabled devices, sorted.
func (c *Config) DeviceIDs() []string {
	ids := make([]string, 0, len(c.Devices))
	for id, d := range c.Devices {
		if !d.Disable {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// DeviceTypes maps each enabled device id to its type.
func (c *Config) DeviceTypes() map[string]timeline.DeviceType {
	out := make(map[string]timeline.DeviceType, len(c.Devices))
	for _, id := range c.DeviceIDs() {
		out[id] = c.Devices[id].Type
	}
	return out
}

// Load reads and decodes a CUE configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Errors{{Code: ErrCodeRead, Path: path, Message: err.Error()}}
	}
	return Parse(data, path)
}

// Parse decodes CUE source against the embedded schema. Unknown fields and
// values that are not concrete are rejected; unset conductor options take
// their defaults.
func Parse(data []byte, filename string) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile embedded schema: %w", err)
	}

	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fromCUE(err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fromCUE(err)
	}

	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return nil, fromCUE(err)
	}
	if cfg.Devices == nil {
		cfg.Devices = make(map[string]device.Config)
	}
	if cfg.Mappings == nil {
		cfg.Mappings = make(timeline.Mappings)
	}
	return &cfg, nil
}

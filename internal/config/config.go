// Package config loads engine configuration.
//
// Precedence, lowest first: built-in defaults, a CUE or JSON file checked
// against the embedded schema, then LOOPMERGE_* environment variables.
// Command-line flags are applied by the CLI on top of the result.
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/caarlos0/env/v11"

	"github.com/roach88/loopmerge/internal/engine"
	"github.com/roach88/loopmerge/internal/ir"
	"github.com/roach88/loopmerge/internal/source"
)

//go:embed schema.cue
var schemaCUE string

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LOOPMERGE_"

// Config is the full configuration surface of a run.
type Config struct {
	Source   string `json:"source,omitempty" env:"SOURCE"`
	Database string `json:"database,omitempty" env:"DATABASE"`

	Filters Filters `json:"filters" envPrefix:"FILTER_"`

	MaxEvents        int  `json:"max_events" env:"MAX_EVENTS"`
	MaxTrackerEvents int  `json:"max_tracker_events" env:"MAX_TRACKER_EVENTS"`
	MaxGameEvents    int  `json:"max_game_events" env:"MAX_GAME_EVENTS"`
	IncludeStats     bool `json:"include_stats" env:"INCLUDE_STATS"`

	// TrackerLoopRatio converts tracker loops to game loops. It differs
	// between game versions.
	TrackerLoopRatio float64 `json:"tracker_loop_ratio" env:"TRACKER_LOOP_RATIO"`

	Scale Scale `json:"scale" envPrefix:"SCALE_"`

	MetricsFile string `json:"metrics_file,omitempty" env:"METRICS_FILE"`
}

// Filters mirrors engine.Filters in file form. UnitTag is the packed tag.
type Filters struct {
	UserID     *int64  `json:"user_id,omitempty" env:"USER_ID"`
	UnitTag    *uint64 `json:"unit_tag,omitempty" env:"UNIT_TAG"`
	UnitName   string  `json:"unit_name,omitempty" env:"UNIT_NAME"`
	MinLoop    *int64  `json:"min_loop,omitempty" env:"MIN_LOOP"`
	MaxLoop    *int64  `json:"max_loop,omitempty" env:"MAX_LOOP"`
	EventClass string  `json:"event_class,omitempty" env:"EVENT_CLASS"`
}

// Scale mirrors ir.Scale.
type Scale struct {
	InitUnits      float64 `json:"init_units" env:"INIT_UNITS"`
	PositionUnits  float64 `json:"position_units" env:"POSITION_UNITS"`
	CameraUnits    float64 `json:"camera_units" env:"CAMERA_UNITS"`
	TargetUnits    float64 `json:"target_units" env:"TARGET_UNITS"`
	DeathLoopsPerZ float64 `json:"death_loops_per_z" env:"DEATH_LOOPS_PER_Z"`
	FlipY          bool    `json:"flip_y" env:"FLIP_Y"`
}

// Default returns the built-in configuration.
func Default() Config {
	s := ir.DefaultScale()
	return Config{
		Filters:          Filters{EventClass: string(ir.EventClassAll)},
		TrackerLoopRatio: engine.DefaultTrackerLoopRatio,
		Scale: Scale{
			InitUnits:      s.InitUnits,
			PositionUnits:  s.PositionUnits,
			CameraUnits:    s.CameraUnits,
			TargetUnits:    s.TargetUnits,
			DeathLoopsPerZ: s.DeathLoopsPerZ,
			FlipY:          s.FlipY,
		},
	}
}

// Load builds a configuration from defaults, the file at path (skipped
// when path is empty) and the process environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if cfg, err = Parse(data, path); err != nil {
			return Config{}, err
		}
	}

	if err := ApplyEnv(&cfg, nil); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse checks a CUE or JSON document against the schema and overlays it
// on the defaults. filename is used in error messages only.
func Parse(data []byte, filename string) (Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	doc := ctx.CompileBytes(data, cue.Filename(filename))
	if err := doc.Err(); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", filename, err)
	}

	v := def.Unify(doc)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", filename, err)
	}

	raw, err := v.MarshalJSON()
	if err != nil {
		return Config{}, fmt.Errorf("export config %s: %w", filename, err)
	}

	cfg := Default()
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", filename, err)
	}
	return cfg, nil
}

// ApplyEnv overlays LOOPMERGE_* variables on cfg. A nil environ reads the
// process environment.
func ApplyEnv(cfg *Config, environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks constraints the schema cannot express, and re-checks
// the ones it can so environment overrides are covered too.
func (c Config) Validate() error {
	if _, err := ir.ParseEventClass(c.Filters.EventClass); err != nil {
		return fmt.Errorf("filters.event_class: %w", err)
	}
	if c.Filters.MinLoop != nil && *c.Filters.MinLoop < 0 {
		return fmt.Errorf("filters.min_loop must be non-negative, got %d", *c.Filters.MinLoop)
	}
	if c.Filters.MaxLoop != nil && *c.Filters.MaxLoop < 0 {
		return fmt.Errorf("filters.max_loop must be non-negative, got %d", *c.Filters.MaxLoop)
	}
	if c.Filters.MinLoop != nil && c.Filters.MaxLoop != nil && *c.Filters.MinLoop > *c.Filters.MaxLoop {
		return fmt.Errorf("filters.min_loop %d exceeds max_loop %d", *c.Filters.MinLoop, *c.Filters.MaxLoop)
	}
	if c.Filters.UnitTag != nil && !ir.UnpackUnitTag(*c.Filters.UnitTag).Valid() {
		return fmt.Errorf("filters.unit_tag %d is not a packed tag", *c.Filters.UnitTag)
	}
	for name, v := range map[string]int{
		"max_events":         c.MaxEvents,
		"max_tracker_events": c.MaxTrackerEvents,
		"max_game_events":    c.MaxGameEvents,
	} {
		if v < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", name, v)
		}
	}
	if c.TrackerLoopRatio <= 0 {
		return fmt.Errorf("tracker_loop_ratio must be positive, got %v", c.TrackerLoopRatio)
	}
	if err := c.IRScale().Validate(); err != nil {
		return err
	}
	return nil
}

// IRScale converts the scale section.
func (c Config) IRScale() ir.Scale {
	return ir.Scale{
		InitUnits:      c.Scale.InitUnits,
		PositionUnits:  c.Scale.PositionUnits,
		CameraUnits:    c.Scale.CameraUnits,
		TargetUnits:    c.Scale.TargetUnits,
		DeathLoopsPerZ: c.Scale.DeathLoopsPerZ,
		FlipY:          c.Scale.FlipY,
	}
}

// EngineFilters converts the filters section.
func (c Config) EngineFilters() (engine.Filters, error) {
	class, err := ir.ParseEventClass(c.Filters.EventClass)
	if err != nil {
		return engine.Filters{}, err
	}
	f := engine.Filters{
		UnitName: c.Filters.UnitName,
		MinLoop:  c.Filters.MinLoop,
		MaxLoop:  c.Filters.MaxLoop,
		Class:    class,
	}
	if c.Filters.UserID != nil {
		u := ir.UserID(*c.Filters.UserID)
		f.UserID = &u
	}
	if c.Filters.UnitTag != nil {
		tag := ir.UnpackUnitTag(*c.Filters.UnitTag)
		f.UnitTag = &tag
	}
	return f, nil
}

// EngineOptions returns the engine options this configuration implies.
// Metrics are wired by the caller.
func (c Config) EngineOptions() ([]engine.Option, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	filters, err := c.EngineFilters()
	if err != nil {
		return nil, err
	}
	return []engine.Option{
		engine.WithFilters(filters),
		engine.WithScale(c.IRScale()),
		engine.WithTrackerLoopRatio(c.TrackerLoopRatio),
		engine.WithIncludeStats(c.IncludeStats),
		engine.WithMaxEvents(c.MaxEvents, c.MaxTrackerEvents, c.MaxGameEvents),
	}, nil
}

// SourceOptions returns the decode options this configuration implies: the
// excluded stream is skipped. Event caps stay with the engine's budget.
func (c Config) SourceOptions() source.Options {
	class, _ := ir.ParseEventClass(c.Filters.EventClass)
	return source.Options{Class: class}
}

// JSON renders the configuration for storage with a run.
func (c Config) JSON() (json.RawMessage, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

package ir

import "fmt"

// Source-to-world ratios. Each stream encodes coordinates at a different,
// empirically fitted resolution, so each gets its own divisor.
const (
	// DefaultInitUnits divides UnitInit/UnitBorn/UnitDied coordinates.
	DefaultInitUnits = 6.0

	// DefaultPositionUnits divides UnitPosition samples (4x finer than init).
	DefaultPositionUnits = 24.0

	// DefaultCameraUnits divides CameraUpdate targets.
	DefaultCameraUnits = 1500.0

	// DefaultTargetUnits divides command target points.
	DefaultTargetUnits = 4096.0

	// DefaultDeathLoopsPerZ stacks death markers along z by loop.
	DefaultDeathLoopsPerZ = 100.0
)

// Scale converts source coordinates to world coordinates.
// The zero value is invalid; start from DefaultScale.
type Scale struct {
	InitUnits      float64 `json:"init_units"`
	PositionUnits  float64 `json:"position_units"`
	CameraUnits    float64 `json:"camera_units"`
	TargetUnits    float64 `json:"target_units"`
	DeathLoopsPerZ float64 `json:"death_loops_per_z"`
	FlipY          bool    `json:"flip_y"`
}

// DefaultScale returns the ratios used by the structured-log viewer.
func DefaultScale() Scale {
	return Scale{
		InitUnits:      DefaultInitUnits,
		PositionUnits:  DefaultPositionUnits,
		CameraUnits:    DefaultCameraUnits,
		TargetUnits:    DefaultTargetUnits,
		DeathLoopsPerZ: DefaultDeathLoopsPerZ,
		FlipY:          true,
	}
}

// Validate rejects zero or negative divisors.
func (s Scale) Validate() error {
	ratios := []struct {
		name string
		v    float64
	}{
		{"init_units", s.InitUnits},
		{"position_units", s.PositionUnits},
		{"camera_units", s.CameraUnits},
		{"target_units", s.TargetUnits},
		{"death_loops_per_z", s.DeathLoopsPerZ},
	}
	for _, r := range ratios {
		if r.v <= 0 {
			return fmt.Errorf("scale %s must be positive, got %v", r.name, r.v)
		}
	}
	return nil
}

func (s Scale) convert(x, y, z, div float64) Vec3 {
	v := Vec3{X: x / div, Y: y / div, Z: z / div}
	if s.FlipY && v.Y != 0 {
		v.Y = -v.Y
	}
	return v
}

// Unit converts UnitInit/UnitBorn/UnitDied coordinates.
func (s Scale) Unit(x, y float64) Vec3 {
	return s.convert(x, y, 0, s.InitUnits)
}

// Position converts a UnitPosition sample.
func (s Scale) Position(x, y float64) Vec3 {
	return s.convert(x, y, 0, s.PositionUnits)
}

// Camera converts a camera target.
func (s Scale) Camera(v Vec3) Vec3 {
	return s.convert(v.X, v.Y, 0, s.CameraUnits)
}

// Target converts a command target point, height included.
func (s Scale) Target(v Vec3) Vec3 {
	return s.convert(v.X, v.Y, v.Z, s.TargetUnits)
}

// DeathZ lifts a death marker by the loop it happened at.
func (s Scale) DeathZ(loop int64) float64 {
	return float64(loop) / s.DeathLoopsPerZ
}

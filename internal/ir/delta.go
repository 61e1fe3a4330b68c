package ir

// DeltaKind names a semantic change emitted toward a rendering sink.
type DeltaKind string

const (
	DeltaUnitAppeared   DeltaKind = "unit_appeared"
	DeltaUnitConfirmed  DeltaKind = "unit_confirmed"
	DeltaUnitRemoved    DeltaKind = "unit_removed"
	DeltaDeathMarker    DeltaKind = "death_marker"
	DeltaUnitMoved      DeltaKind = "unit_moved"
	DeltaStatPoint      DeltaKind = "stat_point"
	DeltaCameraMoved    DeltaKind = "camera_moved"
	DeltaUnitSelected   DeltaKind = "unit_selected"
	DeltaUnitDeselected DeltaKind = "unit_deselected"
	DeltaTargetArrow    DeltaKind = "target_arrow"
)

// DeltaKinds lists every kind in declaration order.
var DeltaKinds = []DeltaKind{
	DeltaUnitAppeared,
	DeltaUnitConfirmed,
	DeltaUnitRemoved,
	DeltaDeathMarker,
	DeltaUnitMoved,
	DeltaStatPoint,
	DeltaCameraMoved,
	DeltaUnitSelected,
	DeltaUnitDeselected,
	DeltaTargetArrow,
}

// Delta is one projected change.
//
// Path is a hierarchical entity path such as "Unit/1310720/Born".
// Loop is the adjusted (game-loop scale) timestamp; Seq is the logical
// emission order within a run and is strictly increasing.
type Delta struct {
	Seq      int64     `json:"seq"`
	Loop     int64     `json:"loop"`
	Kind     DeltaKind `json:"kind"`
	Path     string    `json:"path"`
	Tag      *UnitTag  `json:"tag,omitempty"`
	Player   *int64    `json:"player,omitempty"`
	Position Vec3      `json:"position"`
	Origin   *Vec3     `json:"origin,omitempty"`
	Color    Color     `json:"color,omitempty"`
	Radius   float64   `json:"radius,omitempty"`
	Label    string    `json:"label,omitempty"`
	Value    *float64  `json:"value,omitempty"`
}

// Canonical converts the delta to the map form MarshalCanonical accepts.
// Optional fields are omitted when unset, mirroring the JSON tags.
func (d Delta) Canonical() map[string]any {
	m := map[string]any{
		"seq":      d.Seq,
		"loop":     d.Loop,
		"kind":     string(d.Kind),
		"path":     d.Path,
		"position": vecMap(d.Position),
	}
	if d.Tag != nil {
		m["tag"] = map[string]any{
			"index":   int64(d.Tag.Index),
			"recycle": int64(d.Tag.Recycle),
		}
	}
	if d.Player != nil {
		m["player"] = *d.Player
	}
	if d.Origin != nil {
		m["origin"] = vecMap(*d.Origin)
	}
	if d.Color != 0 {
		m["color"] = int64(d.Color)
	}
	if d.Radius != 0 {
		m["radius"] = d.Radius
	}
	if d.Label != "" {
		m["label"] = d.Label
	}
	if d.Value != nil {
		m["value"] = *d.Value
	}
	return m
}

func vecMap(v Vec3) map[string]any {
	return map[string]any{"x": v.X, "y": v.Y, "z": v.Z}
}

package state

import (
	"log/slog"
	"slices"

	"github.com/roach88/loopmerge/internal/ir"
)

// SelectedRadiusScale multiplies a unit's radius while it is selected.
// A power of two, so select followed by deselect restores the radius exactly.
const SelectedRadiusScale = 2.0

// UnitRecord is one live unit.
type UnitRecord struct {
	Tag            ir.UnitTag
	Name           string
	Owner          *ir.PlayerID
	Pos            ir.Vec3
	Target         *ir.Vec3
	Radius         float64
	Color          ir.Color
	Selected       bool
	Confirmed      bool // a Born event has been applied
	CreatedLoop    int64
	LastUpdated    int64
	CreatorAbility string
}

// HasOwner reports whether the unit belongs to a player.
func (u UnitRecord) HasOwner() bool {
	return u.Owner != nil
}

// UnitSpec carries what an Init or Born event knows about a unit.
type UnitSpec struct {
	Tag            ir.UnitTag
	Name           string
	Owner          *ir.PlayerID
	Pos            ir.Vec3
	Radius         float64
	Color          ir.Color
	CreatorAbility string
}

// Registry is the table of live units keyed by tag.
type Registry struct {
	units map[ir.UnitTag]*UnitRecord
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{units: make(map[ir.UnitTag]*UnitRecord)}
}

// InitOrRegister inserts a new record for spec.Tag.
//
// Re-initializing a known tag is anomalous but not fatal: the existing
// record keeps its identity and only its position and loop are refreshed.
// Returns the resulting record and whether it was newly created.
func (r *Registry) InitOrRegister(spec UnitSpec, loop int64) (UnitRecord, bool) {
	if u, ok := r.units[spec.Tag]; ok {
		slog.Warn("unit re-initialized",
			"tag", spec.Tag.String(),
			"name", u.Name,
			"loop", loop,
		)
		u.Pos = spec.Pos
		u.LastUpdated = loop
		return *u, false
	}

	u := &UnitRecord{
		Tag:         spec.Tag,
		Name:        spec.Name,
		Owner:       spec.Owner,
		Pos:         spec.Pos,
		Radius:      spec.Radius,
		Color:       spec.Color,
		CreatedLoop: loop,
		LastUpdated: loop,
	}
	r.units[spec.Tag] = u
	return *u, true
}

// Born confirms a unit.
//
// If the tag is already registered (typically by Init) the record is
// augmented: creator ability, size hint and owner are filled in, identity
// and creation loop are kept. Unknown tags get a minimal record instead of
// an error, since some unit kinds are born without a prior Init.
func (r *Registry) Born(spec UnitSpec, loop int64) (UnitRecord, bool) {
	u, ok := r.units[spec.Tag]
	if !ok {
		u = &UnitRecord{
			Tag:         spec.Tag,
			Name:        spec.Name,
			Owner:       spec.Owner,
			Pos:         spec.Pos,
			CreatedLoop: loop,
		}
		r.units[spec.Tag] = u
	}

	if u.Owner == nil {
		u.Owner = spec.Owner
	}
	if spec.Name != "" {
		u.Name = spec.Name
	}
	u.CreatorAbility = spec.CreatorAbility
	u.Color = spec.Color
	u.Radius = spec.Radius
	if u.Selected {
		u.Radius *= SelectedRadiusScale
	}
	u.Confirmed = true
	u.LastUpdated = loop
	return *u, !ok
}

// PositionUpdate moves a unit and returns its previous position.
// Unknown tags return ErrUnitNotRegistered and change nothing.
func (r *Registry) PositionUpdate(tag ir.UnitTag, pos ir.Vec3, loop int64) (ir.Vec3, error) {
	u, ok := r.units[tag]
	if !ok {
		return ir.Vec3{}, notRegistered("position", tag)
	}
	old := u.Pos
	u.Pos = pos
	u.LastUpdated = loop
	return old, nil
}

// Died removes and returns the record for tag.
// The second result is false when the tag was not registered; that is
// benign (larva-like units die without ever being tracked individually).
//
// Died does not touch control groups. Use Replay.Died to keep groups clean.
func (r *Registry) Died(tag ir.UnitTag) (UnitRecord, bool) {
	u, ok := r.units[tag]
	if !ok {
		return UnitRecord{}, false
	}
	delete(r.units, tag)
	return *u, true
}

// SetSelected toggles the selection flag.
//
// The radius is scaled only on an actual transition, so repeated calls with
// the same value do not compound. Returns whether the flag changed.
func (r *Registry) SetSelected(tag ir.UnitTag, selected bool) (bool, error) {
	u, ok := r.units[tag]
	if !ok {
		return false, notRegistered("select", tag)
	}
	if u.Selected == selected {
		return false, nil
	}
	u.Selected = selected
	if selected {
		u.Radius *= SelectedRadiusScale
	} else {
		u.Radius /= SelectedRadiusScale
	}
	return true, nil
}

// SetTarget records the unit's current movement or attack target.
func (r *Registry) SetTarget(tag ir.UnitTag, target ir.Vec3, loop int64) error {
	u, ok := r.units[tag]
	if !ok {
		return notRegistered("target", tag)
	}
	t := target
	u.Target = &t
	u.LastUpdated = loop
	return nil
}

// Get returns a copy of the record for tag.
func (r *Registry) Get(tag ir.UnitTag) (UnitRecord, bool) {
	u, ok := r.units[tag]
	if !ok {
		return UnitRecord{}, false
	}
	return *u, true
}

// Len returns the number of live units.
func (r *Registry) Len() int {
	return len(r.units)
}

// Tags returns every live tag in (index, recycle) order.
func (r *Registry) Tags() []ir.UnitTag {
	tags := make([]ir.UnitTag, 0, len(r.units))
	for tag := range r.units {
		tags = append(tags, tag)
	}
	slices.SortFunc(tags, ir.UnitTag.Compare)
	return tags
}

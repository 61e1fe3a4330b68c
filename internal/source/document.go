package source

import (
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/loopmerge/internal/ir"
)

// Document is the on-disk form of both streams. The streams stay raw
// until Streams is called so an excluded stream is never decoded.
type Document struct {
	Tracker yaml.Node `yaml:"tracker"`
	Game    yaml.Node `yaml:"game"`
}

// Streams decodes the document's events.
func (d *Document) Streams(opts Options) (ir.Streams, error) {
	var out ir.Streams

	if opts.Class.Includes(ir.StreamTracker) {
		items, err := sequence(&d.Tracker, "tracker")
		if err != nil {
			return ir.Streams{}, err
		}
		out.Tracker = make([]ir.TrackerEvent, 0, len(items))
		for i, item := range items {
			ev, err := decodeTracker(item)
			if err != nil {
				return ir.Streams{}, fmt.Errorf("tracker[%d] (line %d): %w", i, item.Line, err)
			}
			out.Tracker = append(out.Tracker, ev)
		}
	}

	if opts.Class.Includes(ir.StreamGame) {
		items, err := sequence(&d.Game, "game")
		if err != nil {
			return ir.Streams{}, err
		}
		out.Game = make([]ir.GameEvent, 0, len(items))
		for i, item := range items {
			ev, err := decodeGame(item)
			if err != nil {
				return ir.Streams{}, fmt.Errorf("game[%d] (line %d): %w", i, item.Line, err)
			}
			out.Game = append(out.Game, ev)
		}
	}

	return out, nil
}

// sequence returns the items of a stream node. A missing or null stream is
// empty.
func sequence(n *yaml.Node, name string) ([]*yaml.Node, error) {
	switch {
	case n.Kind == 0:
		return nil, nil
	case n.Kind == yaml.ScalarNode && n.Tag == "!!null":
		return nil, nil
	case n.Kind != yaml.SequenceNode:
		return nil, fmt.Errorf("%s (line %d): must be a sequence", name, n.Line)
	}
	return n.Content, nil
}

// eventFields splits an event mapping into its header fields and its
// single payload.
type eventFields struct {
	delta   uint32
	user    *int64
	kind    string
	payload *yaml.Node
}

func splitEvent(n *yaml.Node, header map[string]bool, kinds map[string]bool) (eventFields, error) {
	var ev eventFields
	if n.Kind != yaml.MappingNode {
		return ev, fmt.Errorf("event must be a mapping")
	}

	var payloads []string
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i].Value, n.Content[i+1]
		switch {
		case key == "delta":
			if err := val.Decode(&ev.delta); err != nil {
				return ev, fmt.Errorf("delta: %w", err)
			}
		case key == "user" && header["user"]:
			var u int64
			if err := val.Decode(&u); err != nil {
				return ev, fmt.Errorf("user: %w", err)
			}
			ev.user = &u
		case kinds[key]:
			payloads = append(payloads, key)
			ev.kind = key
			ev.payload = val
		default:
			return ev, fmt.Errorf("unknown field %q", key)
		}
	}

	switch len(payloads) {
	case 0:
		return ev, fmt.Errorf("missing payload: want one of %s", strings.Join(sortedKeys(kinds), ", "))
	case 1:
		return ev, nil
	default:
		return ev, fmt.Errorf("multiple payloads: %s", strings.Join(payloads, ", "))
	}
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var (
	trackerKinds = map[string]bool{
		"unit_init":      true,
		"unit_born":      true,
		"unit_died":      true,
		"unit_positions": true,
		"player_stats":   true,
		"player_setup":   true,
		"unknown":        true,
	}
	gameKinds = map[string]bool{
		"camera_update":           true,
		"cmd":                     true,
		"cmd_update_target_point": true,
		"cmd_update_target_unit":  true,
		"selection_delta":         true,
		"control_group_update":    true,
		"unknown":                 true,
	}
	gameHeader = map[string]bool{"user": true}
)

func decodeTracker(n *yaml.Node) (ir.TrackerEvent, error) {
	ev, err := splitEvent(n, nil, trackerKinds)
	if err != nil {
		return ir.TrackerEvent{}, err
	}

	var payload ir.TrackerPayload
	switch ev.kind {
	case "unit_init":
		var doc unitInitDoc
		err = decodeStrict(ev.payload, &doc)
		payload = ir.UnitInit{
			Tag:   ir.UnitTag(doc.Tag),
			Name:  doc.Name,
			Owner: playerID(doc.Owner),
			X:     doc.X,
			Y:     doc.Y,
		}
	case "unit_born":
		var doc unitBornDoc
		err = decodeStrict(ev.payload, &doc)
		payload = ir.UnitBorn{
			Tag:            ir.UnitTag(doc.Tag),
			Name:           doc.Name,
			Owner:          playerID(doc.Owner),
			X:              doc.X,
			Y:              doc.Y,
			CreatorAbility: doc.CreatorAbility,
			CreatorTag:     doc.CreatorTag.ptr(),
		}
	case "unit_died":
		var doc unitDiedDoc
		err = decodeStrict(ev.payload, &doc)
		payload = ir.UnitDied{
			Tag:          ir.UnitTag(doc.Tag),
			X:            doc.X,
			Y:            doc.Y,
			KillerTag:    doc.KillerTag.ptr(),
			KillerPlayer: playerID(doc.KillerPlayer),
		}
	case "unit_positions":
		var doc unitPositionsDoc
		err = decodeStrict(ev.payload, &doc)
		items := make([]ir.UnitPosition, len(doc.Items))
		for i, it := range doc.Items {
			items[i] = ir.UnitPosition{Tag: ir.UnitTag(it.Tag), X: it.X, Y: it.Y}
		}
		payload = ir.UnitPositions{Items: items}
	case "player_stats":
		var doc playerStatsDoc
		err = decodeStrict(ev.payload, &doc)
		payload = ir.PlayerStats{PlayerID: ir.PlayerID(doc.Player), Stats: doc.Stats}
	case "player_setup":
		var doc playerSetupDoc
		err = decodeStrict(ev.payload, &doc)
		payload = ir.PlayerSetup{
			PlayerID: ir.PlayerID(doc.Player),
			UserID:   ir.UserID(doc.User),
			Type:     doc.Type,
		}
	case "unknown":
		var kind string
		err = decodeStrict(ev.payload, &kind)
		payload = ir.UnknownTracker{Kind: kind}
	}
	if err != nil {
		return ir.TrackerEvent{}, fmt.Errorf("%s: %w", ev.kind, err)
	}
	return ir.TrackerEvent{Delta: ev.delta, Payload: payload}, nil
}

func decodeGame(n *yaml.Node) (ir.GameEvent, error) {
	ev, err := splitEvent(n, gameHeader, gameKinds)
	if err != nil {
		return ir.GameEvent{}, err
	}
	if ev.user == nil {
		return ir.GameEvent{}, fmt.Errorf("user is required for game events")
	}

	var payload ir.GamePayload
	switch ev.kind {
	case "camera_update":
		var doc cameraUpdateDoc
		err = decodeStrict(ev.payload, &doc)
		payload = ir.CameraUpdate{Target: doc.Target}
	case "cmd":
		var doc cmdDoc
		err = decodeStrict(ev.payload, &doc)
		payload = ir.Cmd{
			Ability:     doc.Ability,
			TargetPoint: doc.TargetPoint,
			TargetUnit:  doc.TargetUnit.ptr(),
		}
	case "cmd_update_target_point":
		var doc cmdUpdateTargetPointDoc
		err = decodeStrict(ev.payload, &doc)
		payload = ir.CmdUpdateTargetPoint{Target: doc.Target}
	case "cmd_update_target_unit":
		var doc cmdUpdateTargetUnitDoc
		err = decodeStrict(ev.payload, &doc)
		payload = ir.CmdUpdateTargetUnit{Target: doc.Target.value()}
	case "selection_delta":
		var doc selectionDeltaDoc
		err = decodeStrict(ev.payload, &doc)
		tags := make([]ir.UnitTag, len(doc.Tags))
		for i, t := range doc.Tags {
			tags[i] = ir.UnitTag(t)
		}
		payload = ir.SelectionDelta{Tags: tags}
	case "control_group_update":
		var doc controlGroupUpdateDoc
		if err = decodeStrict(ev.payload, &doc); err == nil {
			op, ok := ir.ParseControlGroupOp(doc.Op)
			if !ok {
				err = fmt.Errorf("unknown op %q", doc.Op)
			}
			payload = ir.ControlGroupUpdate{GroupIndex: doc.Group, Op: op}
		}
	case "unknown":
		var kind string
		err = decodeStrict(ev.payload, &kind)
		payload = ir.UnknownGame{Kind: kind}
	}
	if err != nil {
		return ir.GameEvent{}, fmt.Errorf("%s: %w", ev.kind, err)
	}
	return ir.GameEvent{Delta: ev.delta, UserID: ir.UserID(*ev.user), Payload: payload}, nil
}

var unmarshalerType = reflect.TypeOf((*yaml.Unmarshaler)(nil)).Elem()

// decodeStrict decodes a payload node into out. yaml.Node.Decode ignores
// KnownFields, so the node is first checked against out's yaml tags:
// unknown keys are rejected and fields tagged doc:"required" must be
// present and non-null.
func decodeStrict(n *yaml.Node, out any) error {
	if err := checkFields(n, reflect.TypeOf(out)); err != nil {
		return err
	}
	return n.Decode(out)
}

// checkFields walks n alongside t. Types with their own UnmarshalYAML
// check themselves. Shape mismatches are left for Decode to report.
func checkFields(n *yaml.Node, t reflect.Type) error {
	if n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if reflect.PointerTo(t).Implements(unmarshalerType) {
		return nil
	}

	switch {
	case t.Kind() == reflect.Struct && n.Kind == yaml.MappingNode:
		fields := docFields(t)
		present := make(map[string]bool, len(fields))
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i], n.Content[i+1]
			j := slices.IndexFunc(fields, func(f docField) bool { return f.name == key.Value })
			if j < 0 {
				return fmt.Errorf("line %d: unknown field %q", key.Line, key.Value)
			}
			if val.ShortTag() != "!!null" {
				present[key.Value] = true
			}
			if err := checkFields(val, fields[j].typ); err != nil {
				return fmt.Errorf("%s: %w", key.Value, err)
			}
		}
		for _, f := range fields {
			if f.required && !present[f.name] {
				return fmt.Errorf("line %d: missing required field %q", n.Line, f.name)
			}
		}
	case t.Kind() == reflect.Slice && n.Kind == yaml.SequenceNode:
		for i, item := range n.Content {
			if err := checkFields(item, t.Elem()); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
	}
	return nil
}

type docField struct {
	name     string
	typ      reflect.Type
	required bool
}

// docFields lists the yaml keys of a struct in declaration order.
func docFields(t reflect.Type) []docField {
	fields := make([]docField, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		fields = append(fields, docField{
			name:     name,
			typ:      f.Type,
			required: f.Tag.Get("doc") == "required",
		})
	}
	return fields
}

func playerID(p *int64) *ir.PlayerID {
	if p == nil {
		return nil
	}
	id := ir.PlayerID(*p)
	return &id
}

// tagDoc accepts {index, recycle} or a packed integer.
type tagDoc ir.UnitTag

func (t *tagDoc) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		packed, err := strconv.ParseUint(n.Value, 10, 64)
		if err != nil {
			return fmt.Errorf("line %d: tag %q is not a packed integer", n.Line, n.Value)
		}
		if packed > ir.MaxPackedTag {
			return fmt.Errorf("line %d: packed tag %d exceeds %d", n.Line, packed, ir.MaxPackedTag)
		}
		*t = tagDoc(ir.UnpackUnitTag(packed))
		return nil
	case yaml.MappingNode:
		var doc struct {
			Index   uint32 `yaml:"index" doc:"required"`
			Recycle uint32 `yaml:"recycle"`
		}
		if err := decodeStrict(n, &doc); err != nil {
			return err
		}
		tag := ir.NewUnitTag(doc.Index, doc.Recycle)
		if !tag.Valid() {
			return fmt.Errorf("line %d: tag recycle %d exceeds %d", n.Line, tag.Recycle, ir.MaxRecycle)
		}
		*t = tagDoc(tag)
		return nil
	default:
		return fmt.Errorf("line %d: tag must be an integer or {index, recycle}", n.Line)
	}
}

func (t *tagDoc) ptr() *ir.UnitTag {
	if t == nil {
		return nil
	}
	tag := ir.UnitTag(*t)
	return &tag
}

type unitInitDoc struct {
	Tag   tagDoc  `yaml:"tag" doc:"required"`
	Name  string  `yaml:"name"`
	Owner *int64  `yaml:"owner"`
	X     float64 `yaml:"x"`
	Y     float64 `yaml:"y"`
}

type unitBornDoc struct {
	Tag            tagDoc  `yaml:"tag" doc:"required"`
	Name           string  `yaml:"name"`
	Owner          *int64  `yaml:"owner"`
	X              float64 `yaml:"x"`
	Y              float64 `yaml:"y"`
	CreatorAbility string  `yaml:"creator_ability"`
	CreatorTag     *tagDoc `yaml:"creator_tag"`
}

type unitDiedDoc struct {
	Tag          tagDoc  `yaml:"tag" doc:"required"`
	X            float64 `yaml:"x"`
	Y            float64 `yaml:"y"`
	KillerTag    *tagDoc `yaml:"killer_tag"`
	KillerPlayer *int64  `yaml:"killer_player"`
}

type unitPositionsDoc struct {
	Items []struct {
		Tag tagDoc  `yaml:"tag" doc:"required"`
		X   float64 `yaml:"x"`
		Y   float64 `yaml:"y"`
	} `yaml:"items"`
}

type playerStatsDoc struct {
	Player int64    `yaml:"player" doc:"required"`
	Stats  statsDoc `yaml:"stats"`
}

// statsDoc is a name to value mapping decoded in document order.
type statsDoc []ir.Stat

func (s *statsDoc) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: stats must be a mapping", n.Line)
	}
	out := make([]ir.Stat, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		var v float64
		if err := n.Content[i+1].Decode(&v); err != nil {
			return fmt.Errorf("stat %q: %w", n.Content[i].Value, err)
		}
		out = append(out, ir.Stat{Name: n.Content[i].Value, Value: v})
	}
	*s = out
	return nil
}

type playerSetupDoc struct {
	Player int64  `yaml:"player" doc:"required"`
	User   int64  `yaml:"user"`
	Type   string `yaml:"type"`
}

type cameraUpdateDoc struct {
	Target *ir.Vec3 `yaml:"target"`
}

type targetUnitDoc struct {
	Tag           tagDoc  `yaml:"tag" doc:"required"`
	Owner         *int64  `yaml:"owner"`
	SnapshotPoint ir.Vec3 `yaml:"snapshot_point"`
}

func (t *targetUnitDoc) ptr() *ir.TargetUnit {
	if t == nil {
		return nil
	}
	v := t.value()
	return &v
}

func (t targetUnitDoc) value() ir.TargetUnit {
	return ir.TargetUnit{
		Tag:           ir.UnitTag(t.Tag),
		Owner:         playerID(t.Owner),
		SnapshotPoint: t.SnapshotPoint,
	}
}

type cmdDoc struct {
	Ability     string         `yaml:"ability"`
	TargetPoint *ir.Vec3       `yaml:"target_point"`
	TargetUnit  *targetUnitDoc `yaml:"target_unit"`
}

type cmdUpdateTargetPointDoc struct {
	Target ir.Vec3 `yaml:"target"`
}

type cmdUpdateTargetUnitDoc struct {
	Target targetUnitDoc `yaml:"target"`
}

type selectionDeltaDoc struct {
	Tags []tagDoc `yaml:"tags"`
}

type controlGroupUpdateDoc struct {
	Group int    `yaml:"group" doc:"required"`
	Op    string `yaml:"op" doc:"required"`
}

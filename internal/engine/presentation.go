package engine

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/loopmerge/internal/ir"
)

// Presentation hints. Radii are in world units.
const (
	DefaultUnitRadius = 0.75
	CameraRadius      = 0.5
	TargetArrowRadius = 0.1
	DeathMarkerRadius = 0.3

	creatorSeparator = ">"
	neutralColor     = ir.ColorWhite
)

type unitStyle struct {
	radius float64
	color  ir.Color
}

// unitStyles maps well-known unit names to a size and color. Anything else
// uses DefaultUnitRadius and the owner's color.
var unitStyles = map[string]unitStyle{
	"VespeneGeyser":                 {DefaultUnitRadius, ir.ColorLightGreen},
	"SpacePlatformGeyser":           {DefaultUnitRadius, ir.ColorGreen},
	"LabMineralField":               {0.4, ir.ColorLightBlue},
	"LabMineralField750":            {0.6, ir.ColorLightBlue},
	"MineralField":                  {0.8, ir.ColorLightBlue},
	"MineralField450":               {1.0, ir.ColorLightBlue},
	"MineralField750":               {1.2, ir.ColorLightBlue},
	"RichMineralField":              {DefaultUnitRadius, ir.ColorGold},
	"RichMineralField750":           {DefaultUnitRadius, ir.ColorOrange},
	"DestructibleDebris6x6":         {3.0, ir.ColorGray},
	"UnbuildablePlatesDestructible": {1.0, ir.ColorLightGray},
	"Overlord":                      {DefaultUnitRadius, ir.ColorYellow},
	"SCV":                           {0.5, ir.ColorLightGray},
	"Drone":                         {0.5, ir.ColorLightGray},
	"Probe":                         {0.5, ir.ColorLightGray},
	"Hatchery":                      {2.0, ir.ColorPink},
	"CommandCenter":                 {2.0, ir.ColorPink},
	"Nexus":                         {2.0, ir.ColorPink},
	"Broodling":                     {0.1, ir.ColorLightGray},
}

// UnitStyle returns the size and color hint for a unit.
func UnitStyle(name string, owner *ir.PlayerID) (float64, ir.Color) {
	if s, ok := unitStyles[name]; ok {
		return s.radius, s.color
	}
	if owner == nil {
		return DefaultUnitRadius, neutralColor
	}
	return DefaultUnitRadius, UserColor(int64(*owner))
}

// UserColor is the fixed color of a player or user slot.
func UserColor(id int64) ir.Color {
	switch id {
	case 0:
		return ir.ColorLightGreen
	case 1:
		return ir.ColorLightBlue
	case 2:
		return ir.ColorLightGray
	default:
		return ir.ColorWhite
	}
}

// CreatorLabel joins the creating ability and the unit name as
// "Ability>Unit". The plain name is returned when the ability is empty or
// equal to the name.
func CreatorLabel(ability, name string) string {
	if ability == "" || ability == name {
		return name
	}
	return ability + creatorSeparator + name
}

// StatPath builds the entity path for one player statistic:
// "minerals_collection_rate" for player 2 becomes "MineralsCollectionRate/2".
func StatPath(caser cases.Caser, name string, player ir.PlayerID) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var b strings.Builder
	for _, w := range words {
		b.WriteString(caser.String(w))
	}
	b.WriteByte('/')
	b.WriteString(strconv.FormatInt(int64(player), 10))
	return b.String()
}

func newStatCaser() cases.Caser {
	return cases.Title(language.Und, cases.NoLower)
}

// Entity paths.

func unitPath(tag ir.UnitTag, phase string) string {
	return "Unit/" + tag.String() + "/" + phase
}

func deathPath(tag ir.UnitTag, loop int64) string {
	return "Death/" + tag.String() + "/" + strconv.FormatInt(loop, 10)
}

func cameraPath(user ir.UserID) string {
	return "Camera/" + strconv.FormatInt(int64(user), 10)
}

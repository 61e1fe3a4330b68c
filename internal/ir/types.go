package ir

import (
	"fmt"
	"strings"
)

// PlayerID is the tracker-stream player slot (1-based; 0 is neutral).
type PlayerID int64

// UserID identifies the user a game-stream event belongs to.
type UserID int64

// Vec3 is a position in either source map units or rescaled world units.
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Stream names one of the two input streams.
type Stream int

const (
	// StreamTracker carries object lifecycle and economy events.
	StreamTracker Stream = iota
	// StreamGame carries player input, camera and selection events.
	StreamGame
)

// String returns "tracker" or "game".
func (s Stream) String() string {
	switch s {
	case StreamTracker:
		return "tracker"
	case StreamGame:
		return "game"
	default:
		return fmt.Sprintf("stream(%d)", int(s))
	}
}

// Priority is the merge tie-break: tracker sorts before game at equal loop.
func (s Stream) Priority() int64 {
	return int64(s)
}

// EventClass restricts a run to one stream.
type EventClass string

const (
	EventClassAll     EventClass = "all"
	EventClassTracker EventClass = "tracker"
	EventClassGame    EventClass = "game"
)

// ParseEventClass accepts "", "all", "tracker" or "game" (case-insensitive).
func ParseEventClass(s string) (EventClass, error) {
	switch EventClass(strings.ToLower(strings.TrimSpace(s))) {
	case "", EventClassAll:
		return EventClassAll, nil
	case EventClassTracker:
		return EventClassTracker, nil
	case EventClassGame:
		return EventClassGame, nil
	default:
		return "", fmt.Errorf("invalid event class %q: must be one of all, tracker, game", s)
	}
}

// Includes reports whether events from s survive the class restriction.
func (c EventClass) Includes(s Stream) bool {
	switch c {
	case EventClassTracker:
		return s == StreamTracker
	case EventClassGame:
		return s == StreamGame
	default:
		return true
	}
}

// Color is a packed 0xRRGGBBAA value.
type Color uint32

// Hex renders the color as "#rrggbbaa".
func (c Color) Hex() string {
	return fmt.Sprintf("#%08x", uint32(c))
}

// Palette used for presentation hints.
const (
	ColorOrange     Color = 0xeb7907ff
	ColorGold       Color = 0xea9e36ff
	ColorRed        Color = 0xf81053ff
	ColorBlue       Color = 0x30b5f7ff
	ColorGreen      Color = 0x0aeb9fff
	ColorLightBlue  Color = 0x72c5ddff
	ColorGray       Color = 0xb2c5c5ff
	ColorPink       Color = 0xeaa483ff
	ColorLightGray  Color = 0xf4f5f8ff
	ColorDarkRed    Color = 0xae2044ff
	ColorWhite      Color = 0xfaf8fbff
	ColorYellow     Color = 0xf7d454ff
	ColorLightGreen Color = 0x6ec29cff
)

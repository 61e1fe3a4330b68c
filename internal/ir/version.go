package ir

// Version constants for the delta format and engine.
const (
	// DeltaVersion is bumped whenever Delta.Canonical changes shape.
	// Stored run digests are only comparable within one DeltaVersion.
	DeltaVersion = "1"

	// EngineVersion is the loopmerge engine version.
	EngineVersion = "0.1.0"
)

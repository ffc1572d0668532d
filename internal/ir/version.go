package ir

// Version constants.
const (
	// EngineVersion is the conductor engine version reported by the CLI.
	EngineVersion = "0.1.0"
)

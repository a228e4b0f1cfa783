package command

import "RoundLedger/internal/engine"

// Initialize bootstraps the program: the caller becomes admin.
type Initialize struct {
	Base
	Params engine.ConfigParams
}

func (*Initialize) Name() string { return "initialize" }

// UpdateConfig replaces the mutable configuration fields.
type UpdateConfig struct {
	Base
	Params engine.ConfigParams
}

func (*UpdateConfig) Name() string { return "update_config" }

// EmergencyPause halts all mutating operations except unpause.
type EmergencyPause struct {
	Base
}

func (*EmergencyPause) Name() string { return "emergency_pause" }

// EmergencyUnpause resumes normal operation.
type EmergencyUnpause struct {
	Base
}

func (*EmergencyUnpause) Name() string { return "emergency_unpause" }

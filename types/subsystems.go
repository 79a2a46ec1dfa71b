package types

// SubSystem tags every log record with the component it came from.
type SubSystem string

const (
	System      SubSystem = "system"
	Server      SubSystem = "server"
	Config      SubSystem = "config"
	Fingerprint SubSystem = "fingerprint"
	Registry    SubSystem = "registry"
	Epochs      SubSystem = "epochs"
	Settlement  SubSystem = "settlement"
	Ledger      SubSystem = "ledger"
	Anchor      SubSystem = "anchor"
)

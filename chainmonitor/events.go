package chainmonitor

// Event names triggered on the injected EventBus.
const (
	EventStarted               = "Monitor.Started"
	EventStopped                = "Monitor.Stopped"
	EventErrorCantStart         = "Monitor.Error.CantStart"
	EventProcessingBlock        = "Monitor.ProcessingBlock"
	EventNewContract            = "Monitor.NewContract"
	EventAlreadyVerified        = "Monitor.AlreadyVerified"
	EventErrorProcessingBlock   = "Monitor.Error.ProcessingBlock"
	EventErrorProcessingBytecode = "Monitor.Error.ProcessingBytecode"
	EventErrorGettingBytecode   = "Monitor.Error.GettingBytecode"
	EventErrorVerifyError       = "Monitor.Error.VerifyError"
)

// Upward signal names the MonitorSupervisor re-emits unchanged.
const (
	SignalContractVerifiedSuccessfully = "contract-verified-successfully"
	SignalContractAlreadyVerified      = "contract-already-verified"
)

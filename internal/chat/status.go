package chat

// Status is the session-wide stream state. Exactly one value exists per
// session at a time.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusConnecting  Status = "connecting"
	StatusThinking    Status = "thinking"
	StatusCallingTool Status = "calling_tool"
	StatusStreaming   Status = "streaming"
	StatusCancelling  Status = "cancelling"
	StatusError       Status = "error"
)

// Active reports whether a stream request is outstanding and still
// cancellable.
func (s Status) Active() bool {
	switch s {
	case StatusConnecting, StatusThinking, StatusCallingTool, StatusStreaming:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

package chat

import (
	"errors"
	"fmt"
)

// InvalidStateError reports an operation that is illegal for the current
// session status. It is returned synchronously to the caller and never
// surfaced as chat content.
type InvalidStateError struct {
	Op     string
	Status Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("chat: %s not allowed while %s", e.Op, e.Status)
}

// IsInvalidState reports whether err is an InvalidStateError.
func IsInvalidState(err error) bool {
	var ise *InvalidStateError
	return errors.As(err, &ise)
}

// ErrMessageNotFound is returned by operations addressing a message id that
// is not in the store.
var ErrMessageNotFound = errors.New("chat: message not found")

// ProtocolError reports a malformed event from the transport. It finalizes
// the turn as errored but never crashes the session.
type ProtocolError struct {
	Detail string
}

func (e *ProtocolError) Error() string {
	return "chat: protocol error: " + e.Detail
}

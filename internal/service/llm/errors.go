package llm

import (
	"errors"
	"fmt"
)

// Op values identify the stage at which a completion call failed.
const (
	OpRequest = "request"
	OpStatus  = "status"
	OpDecode  = "decode"
	OpShape   = "shape"
)

// ErrNoChoices is wrapped when the response carries no usable choices[0].message.content.
var ErrNoChoices = errors.New("response has no choices[0].message.content")

// CallError reports a failed call to the completion endpoint: transport
// errors, non-2xx statuses and responses that do not match the expected shape.
type CallError struct {
	Op         string
	StatusCode int
	// Body is the raw response text, empty when no response was received.
	Body string
	Err  error
}

func (e *CallError) Error() string {
	switch e.Op {
	case OpStatus:
		if e.Err != nil {
			return fmt.Sprintf("completion endpoint returned HTTP %d: %v", e.StatusCode, e.Err)
		}
		return fmt.Sprintf("completion endpoint returned HTTP %d", e.StatusCode)
	case OpDecode:
		return fmt.Sprintf("malformed completion response: %v", e.Err)
	case OpShape:
		return fmt.Sprintf("unexpected completion response: %v", e.Err)
	default:
		return fmt.Sprintf("completion request failed: %v", e.Err)
	}
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// AsCallError extracts a *CallError from err's chain.
func AsCallError(err error) (*CallError, bool) {
	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr, true
	}
	return nil, false
}

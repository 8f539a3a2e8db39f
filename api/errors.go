package api

import "fmt"

// ContractError reports a source or sink breaking the streaming contract:
// data returned for an undeclared basis, field or zone, a non-increasing
// step index, or a sink driven without prior configuration. Contract errors
// are fatal and abort the pass immediately.
type ContractError struct {
	Reason string
}

func (e *ContractError) Error() string {
	return "contract violation: " + e.Reason
}

// Contractf builds a ContractError from a format string.
func Contractf(format string, args ...any) error {
	return &ContractError{Reason: fmt.Sprintf(format, args...)}
}

// FetchError wraps a failed on-demand fetch of topology or field data. The
// driver never retries a failed fetch; it finalizes the sink and propagates.
type FetchError struct {
	What string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.What, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SerializationError wraps a sink's failure to encode a record. The output
// resource is still finalized before propagation.
type SerializationError struct {
	Sink string
	Err  error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("%s sink: serializing record: %v", e.Sink, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// Package errs defines the error taxonomy shared by the execution engine,
// hot spare pool, network allocator, and platform adapters.
package errs

import "errors"

// Sentinel errors checked with errors.Is. Each carries a fixed message;
// callers that need the underlying cause wrap it with fmt.Errorf("...: %w").
var (
	// ErrDuplicateID is returned when a task id is added to the engine twice.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrCyclicDependency is returned when the task graph contains a cycle.
	ErrCyclicDependency = errors.New("circular dependencies detected")

	// ErrUnknownPrerequisite is returned when a task names a prerequisite
	// that was never added.
	ErrUnknownPrerequisite = errors.New("no tasks can be executed - dependency issue")

	// ErrPoolExhausted is returned by the network allocator when all 254
	// lab ordinals are in use, and by the hot spare pool when Acquire finds
	// no matching ready spare.
	ErrPoolExhausted = errors.New("pool exhausted")

	// ErrProvisioningFailed is returned when a hot spare transitions to
	// failed during cloning.
	ErrProvisioningFailed = errors.New("provisioning failed")
)

// PlatformError wraps any failure from a platform adapter call, carrying
// the adapter operation name and the underlying message verbatim.
type PlatformError struct {
	Op  string
	Err error
}

func (e *PlatformError) Error() string {
	return "platform error during " + e.Op + ": " + e.Err.Error()
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}

// NewPlatformError constructs a PlatformError for the given operation.
func NewPlatformError(op string, err error) *PlatformError {
	return &PlatformError{Op: op, Err: err}
}

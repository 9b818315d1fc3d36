package audio

import "fmt"

// EngineFailure discriminates capture graph setup failures.
type EngineFailure string

const (
	FailureFormatCreation    EngineFailure = "format_creation_failed"
	FailureConverterCreation EngineFailure = "converter_creation_failed"
	FailureBufferAllocation  EngineFailure = "buffer_allocation_failed"
)

// EngineError is a capture graph setup failure. Session start aborts on it;
// warm-up swallows it after logging.
type EngineError struct {
	Reason EngineFailure
	Err    error
}

func (e *EngineError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("audio engine: %s", e.Reason)
	}
	return fmt.Sprintf("audio engine: %s: %v", e.Reason, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

package flasher

import "fmt"

// PageError reports a page that could not be programmed after all retry
// attempts. It wraps the last failure.
type PageError struct {
	Address  uint32
	Attempts int
	Err      error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page 0x%08X failed after %d attempts: %v", e.Address, e.Attempts, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

package qwen

import "fmt"

// TransportError describes one failed delivery attempt (SDK or direct HTTP).
// The dispatcher recovers from it by escalating to the next tier.
type TransportError struct {
	Transport string // "sdk" or "http"
	Model     string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s call to %s failed: %v", e.Transport, e.Model, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ExhaustedError reports that every dispatch tier failed. It carries the last
// attempt's failure.
type ExhaustedError struct {
	Last error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all completion attempts failed: %v", e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

package cafemap

import (
	"fmt"
	"sync"
)

// ParseError marks an unrecognized timestamp or address format. The pipeline
// degrades rather than halting.
type ParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ProviderError marks a geocoding or OCR provider failure. Transient errors
// are retried once before falling through to the next provider.
type ProviderError struct {
	Provider  string
	Transient bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// OrphanCorrectionError marks a confirmed row whose post id matches no
// review record. Surfaced to the operator; the merge run continues.
type OrphanCorrectionError struct {
	PostID string
}

func (e *OrphanCorrectionError) Error() string {
	return fmt.Sprintf("orphan correction: unknown post id %q", e.PostID)
}

// ConfigError marks missing required configuration for a stage. Fatal only
// when every fallback path for the stage is affected.
type ConfigError struct {
	Stage  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config for %s: %s", e.Stage, e.Reason)
}

// ErrorSummary accumulates non-fatal failures across a run. Safe for
// concurrent use by the worker pool.
type ErrorSummary struct {
	mu   sync.Mutex
	errs []error
}

// Add records a failure. Nil errors are ignored.
func (s *ErrorSummary) Add(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
}

// Errors returns a copy of the accumulated failures.
func (s *ErrorSummary) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

// Len returns the number of accumulated failures.
func (s *ErrorSummary) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errs)
}

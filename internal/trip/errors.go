package trip

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStale marks a resolution superseded by a newer generation.
	// It is dropped internally and never returned by ComputeTrip.
	ErrStale = errors.New("stale request")

	// ErrSuperseded is returned to a superseded caller when the newest
	// generation ended with its own caller's cancellation.
	ErrSuperseded = errors.New("superseded by a newer request")

	ErrRouteUnavailable = errors.New("route unavailable")
	ErrVehicleNotFound  = errors.New("vehicle not found")
)

// InputError is a validation failure attributed to a single request field.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InputErrors collects every field failure found in a request.
type InputErrors []*InputError

func (e InputErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, ie := range e {
		msgs = append(msgs, ie.Error())
	}
	return strings.Join(msgs, "; ")
}

// As lets errors.As reach the first field error.
func (e InputErrors) As(target any) bool {
	t, ok := target.(**InputError)
	if !ok || len(e) == 0 {
		return false
	}
	*t = e[0]
	return true
}

// ProviderError wraps a transport or upstream failure of an external provider.
type ProviderError struct {
	Provider  string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError wraps err unless it already carries a domain meaning.
func NewProviderError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	var ce *ComputationError
	switch {
	case errors.As(err, &pe), errors.As(err, &ce),
		errors.Is(err, ErrRouteUnavailable), errors.Is(err, ErrVehicleNotFound):
		return err
	}
	retryable := true
	var t interface{ Temporary() bool }
	if errors.As(err, &t) {
		retryable = t.Temporary()
	}
	return &ProviderError{Provider: provider, Err: err, Retryable: retryable}
}

// ComputationError reports degenerate inputs that make the model undefined.
type ComputationError struct {
	Reason string
}

func (e *ComputationError) Error() string {
	return "computation error: " + e.Reason
}

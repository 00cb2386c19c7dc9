package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrTransport is returned when the model service cannot be reached or
	// answers with a non-success status.
	ErrTransport = errors.New("oracle transport error")

	// ErrTimeout is returned when a model call exceeds its deadline.
	ErrTimeout = errors.New("oracle timeout")

	// ErrMalformedResponse is returned when a model answer cannot be parsed
	// into the structure the caller asked for.
	ErrMalformedResponse = errors.New("oracle malformed response")
)

// wrapCallError tags err with ErrTimeout or ErrTransport while keeping the
// original cause reachable through errors.Is/As.
func wrapCallError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrTransport) || errors.Is(err, ErrMalformedResponse) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

// outcome names the error kind for metrics labels.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "transport"
	}
}

package browser

import (
	"context"
	"errors"
	"fmt"
)

type ErrorKind string

const (
	Timeout          ErrorKind = "Timeout"
	NavigationFailed ErrorKind = "NavigationFailed"
	RenderFailed     ErrorKind = "RenderFailed"
)

// CaptureError reports a failed browser call. Calls are never retried.
type CaptureError struct {
	Kind ErrorKind
	URL  string
	Err  error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// captureErr classifies err. Anything caused by the deadline is a Timeout
// whatever step it happened in.
func captureErr(ctx context.Context, kind ErrorKind, url string, err error) *CaptureError {
	if isTimeout(ctx, err) {
		kind = Timeout
	}
	return &CaptureError{Kind: kind, URL: url, Err: err}
}

// IsKind reports whether err is a CaptureError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ce *CaptureError
	return errors.As(err, &ce) && ce.Kind == kind
}

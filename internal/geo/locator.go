package geo

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrPermissionDenied = errors.New("location permission denied")
	ErrUnavailable      = errors.New("location unavailable")
	ErrTimeout          = errors.New("location request timed out")
)

// Fix is a located point with its reported accuracy radius.
type Fix struct {
	Point
	AccuracyMeters float64 `json:"accuracy_meters"`
}

// Locator obtains the caller's current position.
type Locator interface {
	CurrentLocation(ctx context.Context) (Fix, error)
}

// Reported is a Locator over a position the browser already resolved and sent
// with the request. Failure carries the browser's geolocation error, if any.
type Reported struct {
	Fix     *Fix
	Failure string
}

// CurrentLocation returns the reported fix.
func (r Reported) CurrentLocation(ctx context.Context) (Fix, error) {
	if err := ctx.Err(); err != nil {
		return Fix{}, err
	}
	if r.Failure != "" {
		return Fix{}, ParseFailure(r.Failure)
	}
	if r.Fix == nil {
		return Fix{}, ErrUnavailable
	}
	return *r.Fix, nil
}

// ParseFailure maps browser geolocation error names/codes (1,2,3) to adapter errors.
func ParseFailure(s string) error {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "1", "PERMISSION_DENIED":
		return ErrPermissionDenied
	case "3", "TIMEOUT":
		return ErrTimeout
	default:
		return ErrUnavailable
	}
}

// Locate calls l with a bounded wait. Exceeding timeout yields ErrTimeout
// even if the locator ignores its context.
func Locate(ctx context.Context, l Locator, timeout time.Duration) (Fix, error) {
	if l == nil {
		return Fix{}, ErrUnavailable
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		fix Fix
		err error
	}
	done := make(chan result, 1)
	go func() {
		fix, err := l.CurrentLocation(ctx)
		done <- result{fix, err}
	}()

	select {
	case res := <-done:
		if errors.Is(res.err, context.DeadlineExceeded) {
			return Fix{}, ErrTimeout
		}
		return res.fix, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Fix{}, ErrTimeout
		}
		return Fix{}, ctx.Err()
	}
}

// Package render renders map images through a backend that may not be reentrant.
//
// A Source checks whether a query can produce anything (resolution range, coverage) and hands the
// actual drawing to a Gate, which serializes backend calls with an optional Locker and runs them
// on a bounded pool of workers while the caller waits for the result.
package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-spatial/geom"

	"github.com/pdok/tegel/srs"
)

var (
	// ErrOutOfRange signals that the query's resolution is outside the source's resolution range.
	// Not a failure: the caller should produce a blank image.
	ErrOutOfRange = errors.New("query outside resolution range")
	// ErrNoCoverage signals that the query does not intersect the source's coverage.
	// Not a failure: the caller should produce a blank image.
	ErrNoCoverage = errors.New("query outside coverage")
	// ErrGateClosed is returned for tasks submitted to a closed Gate.
	ErrGateClosed = errors.New("render gate closed")
)

// IsBlank reports whether err signals an empty result instead of a failure.
func IsBlank(err error) bool {
	return errors.Is(err, ErrOutOfRange) || errors.Is(err, ErrNoCoverage)
}

// RenderError is a failure of the backend or of preparing its call.
// Its message is the message of the original fault.
type RenderError struct {
	Message string
	Cause   error
}

func (e *RenderError) Error() string {
	return e.Message
}

func (e *RenderError) Unwrap() error {
	return e.Cause
}

// asRenderError wraps err in a RenderError, unless it already is one.
func asRenderError(err error) error {
	if err == nil {
		return nil
	}
	var renderErr *RenderError
	if errors.As(err, &renderErr) {
		return err
	}
	return &RenderError{Message: err.Error(), Cause: err}
}

// Query is a request for one map image.
type Query struct {
	Extent geom.Extent
	Width  uint
	Height uint
	SRS    *srs.SRS
	// Format is the image format, e.g. png or jpeg
	Format string
}

func (q Query) String() string {
	return fmt.Sprintf("%v:%s:%dx%d", q.Extent, q.SRS, q.Width, q.Height)
}

// Result is a rendered image. It is not modified after it is returned.
type Result struct {
	Data        []byte
	Size        int
	Format      string
	Opacity     float64
	Transparent bool
	// Timestamp is the time of rendering, for cache validation by whoever serves the result
	Timestamp time.Time
}

// Backend draws map images. Implementations that are not safe for concurrent use
// must be combined with a Locker in the Gate.
type Backend interface {
	Name() string
	// Available returns an error when the backend cannot render on this system.
	Available() error
	// Render draws q using the fully resolved mapfile.
	Render(ctx context.Context, mapfile string, q Query) ([]byte, error)
}

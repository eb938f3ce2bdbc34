// Package render executes a single preview render: segment the
// document, reuse cached fragments, convert the rest, and assemble the
// output in block order.
package render

import (
	"context"
	"errors"
	"fmt"
)

// Converter turns one block of raw document text into a rendered
// fragment. Implementations must be stateless and safe for concurrent
// use from multiple workers; the actual markup grammar belongs to the
// host format, not to this package.
type Converter interface {
	Convert(ctx context.Context, src string) (string, error)
}

// ConverterFunc adapts a function to the Converter interface.
type ConverterFunc func(ctx context.Context, src string) (string, error)

// Convert calls f.
func (f ConverterFunc) Convert(ctx context.Context, src string) (string, error) {
	return f(ctx, src)
}

// ErrTimeout reports that a converter call exceeded its deadline.
var ErrTimeout = errors.New("converter timed out")

// ConvertError reports a conversion failure for a specific block.
//
// The block index and byte offset locate the failure; the whole render
// fails rather than returning partial output.
type ConvertError struct {
	// Block is the zero-based index of the failing block.
	Block int

	// Offset is the byte offset of the failing block in the document.
	Offset int

	// Err is the underlying converter error.
	Err error
}

func (e *ConvertError) Error() string {
	return fmt.Sprintf("convert block %d (offset %d): %v", e.Block, e.Offset, e.Err)
}

func (e *ConvertError) Unwrap() error {
	return e.Err
}

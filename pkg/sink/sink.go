// Package sink persists normalized estate records. Every sink upserts
// by content hash: re-running the pipeline against an unchanged
// upstream must not grow the store.
package sink

import (
	"context"
	"fmt"

	"github.com/mvolek/estates-harvest/pkg/normalize"
)

// Sink is the narrow interface all outputs implement. The coordinator
// guarantees Close runs on every exit path, including cancellation.
type Sink interface {
	Open(ctx context.Context) error
	Upsert(ctx context.Context, rec normalize.Record) error
	Close() error
}

// WriteError wraps a per-record persistence failure. The coordinator
// counts these separately from fetch failures and keeps going.
type WriteError struct {
	Hash string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("sink write for %s: %v", e.Hash, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

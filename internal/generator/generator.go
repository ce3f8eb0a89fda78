// Package generator defines the code-generation capability the update
// pipeline consumes: given the specification files and a target's current
// files, produce a complete replacement file set for that target.
//
// The pipeline treats any error or empty result as "no output for this
// target" and moves on; a generator failure never fails a whole run.
package generator

import (
	"context"
	"errors"
)

// ErrNoOutput indicates the model produced nothing usable for a target.
var ErrNoOutput = errors.New("generator produced no usable output")

// Generator produces a new complete file set for one target.
//
// The call is not cancellable mid-flight: once invoked it runs to
// completion. Implementations should honor ctx for connection setup but the
// pipeline will await the result either way.
type Generator interface {
	Generate(ctx context.Context, targetID string, specFiles, currentFiles map[string]string) (map[string]string, error)
}

// Func adapts a plain function to the Generator interface. Used heavily in
// tests.
type Func func(ctx context.Context, targetID string, specFiles, currentFiles map[string]string) (map[string]string, error)

// Generate implements Generator.
func (f Func) Generate(ctx context.Context, targetID string, specFiles, currentFiles map[string]string) (map[string]string, error) {
	return f(ctx, targetID, specFiles, currentFiles)
}

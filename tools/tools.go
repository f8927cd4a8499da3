// Package tools holds optional capabilities the assistant can call during a turn.
package tools

import "context"

// Tool is an optional capability. Available is fixed at startup by a probe;
// a tool that is not available is never run.
type Tool interface {
	Name() string
	Available() bool
	Run(ctx context.Context, query string) (string, error)
}

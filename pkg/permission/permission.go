// Package permission carries per-request capability sets and answers
// synchronous authorization questions against them.
package permission

import (
	"context"
	"strings"
)

const (
	// DestuffingWrite grants every mutating destuffing action.
	DestuffingWrite = "cfs.destuffing.write"
	// DestuffingRead grants read access to the execution view.
	DestuffingRead = "cfs.destuffing.read"
	// Wildcard grants everything.
	Wildcard = "*"
)

// Set is an immutable set of granted capabilities
type Set map[string]struct{}

// Parse builds a Set from a comma separated header value
func Parse(raw string) Set {
	set := Set{}
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			set[strings.ToLower(p)] = struct{}{}
		}
	}
	return set
}

// Has reports whether the capability is granted
func (s Set) Has(capability string) bool {
	if _, ok := s[Wildcard]; ok {
		return true
	}
	_, ok := s[strings.ToLower(capability)]
	return ok
}

// List returns the granted capabilities in no particular order
func (s Set) List() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	return out
}

type contextKey struct{}

// WithSet returns a context carrying the permission set
func WithSet(ctx context.Context, set Set) context.Context {
	return context.WithValue(ctx, contextKey{}, set)
}

// FromContext returns the permission set on ctx, or an empty set
func FromContext(ctx context.Context) Set {
	if set, ok := ctx.Value(contextKey{}).(Set); ok {
		return set
	}
	return Set{}
}

// Checker answers whether the caller on a context may perform writes
type Checker struct {
	// Required is the capability needed for writes. Defaults to DestuffingWrite.
	Required string
}

// NewChecker creates a checker for the destuffing write capability
func NewChecker() *Checker {
	return &Checker{Required: DestuffingWrite}
}

// CanWrite reports whether the caller holds the write capability
func (c *Checker) CanWrite(ctx context.Context) bool {
	required := c.Required
	if required == "" {
		required = DestuffingWrite
	}
	return FromContext(ctx).Has(required)
}

package verlog

import (
	"context"
)

// metaKey is an unexported context key type.
type metaKey struct{}
type skipKey struct{}

// meta carries version metadata that applies to every column of a save.
type meta struct {
	actor   string
	comment string
}

// WithActor attaches a default actor for versions recorded under ctx. A per-column
// actor set on the row takes precedence.
func WithActor(ctx context.Context, v string) context.Context {
	m := extractMeta(ctx)
	m.actor = v
	return context.WithValue(ctx, metaKey{}, m)
}

// WithComment attaches a default comment for versions recorded under ctx. A
// per-column comment set on the row takes precedence.
func WithComment(ctx context.Context, v string) context.Context {
	m := extractMeta(ctx)
	m.comment = v
	return context.WithValue(ctx, metaKey{}, m)
}

// WithSkip marks the context so saves under it record no versions.
func WithSkip(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipKey{}, true)
}

// extractMeta extracts metadata from context.
func extractMeta(ctx context.Context) meta {
	if v := ctx.Value(metaKey{}); v != nil {
		if m, ok := v.(meta); ok {
			return m
		}
	}
	return meta{}
}

// extractSkip extracts skip flag from context.
func extractSkip(ctx context.Context) bool {
	if v, ok := ctx.Value(skipKey{}).(bool); ok {
		return v
	}
	return false
}

package notify

import "context"

type ctxKey struct{}

// NewContext makes one Center available to everything below ctx. Nested
// consumers all see the same instance, never a clone.
func NewContext(ctx context.Context, c *Center) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext returns the Center installed by NewContext. Calling it outside
// an installed scope is a programming error and panics immediately instead
// of returning an empty default.
func FromContext(ctx context.Context) *Center {
	c, ok := ctx.Value(ctxKey{}).(*Center)
	if !ok {
		panic("notify: FromContext called outside a NewContext scope")
	}
	return c
}

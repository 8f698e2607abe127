package store

import "context"

type (
	reqIDKey struct{}
	uowKey   struct{}
)

// WithRequestID attaches a request id to the context
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, reqIDKey{}, id)
}

// RequestID retrieves a request id from context if present
func RequestID(ctx context.Context) (string, bool) {
	v := ctx.Value(reqIDKey{})
	if v == nil {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// withUnit attaches a unit-of-work slot to the context.
// The slot is a pointer so acquisition after the fact is visible
// to whoever releases it
func withUnit(ctx context.Context, u *Unit) context.Context {
	return context.WithValue(ctx, uowKey{}, u)
}

// unitFrom retrieves the unit-of-work slot if one was bound
func unitFrom(ctx context.Context) (*Unit, bool) {
	u, ok := ctx.Value(uowKey{}).(*Unit)
	return u, ok && u != nil
}

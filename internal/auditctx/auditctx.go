// Package auditctx carries the caller of a request through context so the
// audit trail can record it without widening service signatures.
package auditctx

import "context"

type Actor struct {
	UserID    string
	Email     string
	IPAddress string
	UserAgent string
	RequestID string
}

type key struct{}

func WithActor(ctx context.Context, actor Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key{}, actor)
}

func FromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(key{}).(Actor)
	return actor, ok
}

// Annotate returns a copy of meta with the request id added. meta itself is
// never modified; a value already stored under request_id wins.
func (a Actor) Annotate(meta map[string]any) map[string]any {
	if a.RequestID == "" {
		return meta
	}
	out := make(map[string]any, len(meta)+1)
	out["request_id"] = a.RequestID
	for k, v := range meta {
		out[k] = v
	}
	return out
}

package model

import "context"

// RequestContext carries the identity and tracing information for the
// lifetime of one inbound request. The bearer token is forwarded to the
// backend verbatim; the BFF never verifies it. It is immutable after
// construction and safe for concurrent reads.
type RequestContext struct {
	// Token is the raw bearer token from the inbound Authorization header,
	// without the "Bearer " prefix. Empty when the caller is anonymous.
	Token string

	// SubjectID and Email are decoded (not verified) from the token's
	// claims and are used only for log enrichment.
	SubjectID string
	Email     string

	CorrelationID string
	Locale        string
}

// Authenticated reports whether the inbound request carried a bearer token.
func (rc *RequestContext) Authenticated() bool {
	return rc.Token != ""
}

type contextKey struct{}

// WithRequestContext attaches a RequestContext to the given context.
func WithRequestContext(ctx context.Context, rctx *RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rctx)
}

// RequestContextFrom extracts the RequestContext from the context, or returns
// nil if not present.
func RequestContextFrom(ctx context.Context) *RequestContext {
	rctx, _ := ctx.Value(contextKey{}).(*RequestContext)
	return rctx
}

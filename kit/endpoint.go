package kit

import "context"

// Endpoint is a transport-agnostic operation. HTTP handlers and MCP tools
// both end up calling one.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware decorates an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares so that the first one is the outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// RequireUser rejects calls whose context carries no user ID.
func RequireUser(errUnauthenticated error) Middleware {
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			if GetUserID(ctx) == "" {
				return nil, errUnauthenticated
			}
			return next(ctx, req)
		}
	}
}

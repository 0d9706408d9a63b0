// Package middleware provides an onion-model handler chain around call
// dispatch. The stub server wraps its method dispatch with it, and clients
// can decorate a Caller the same way (see WrapCaller).
package middleware

import (
	"context"

	"github.com/meng-cz/vulsim-rpc/client"
	"github.com/meng-cz/vulsim-rpc/message"
)

// HandlerFunc processes one call and produces its response document.
type HandlerFunc func(ctx context.Context, call *message.Call) message.Response

// Middleware wraps a handler with additional behavior.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain combines middlewares into one. Chain(A, B, C)(h) == A(B(C(h))):
// A sees the call first and the response last.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

type wrappedCaller struct {
	handler HandlerFunc
}

func (w *wrappedCaller) Call(name string, args []message.Arg) message.Response {
	return w.handler(context.Background(), &message.Call{Name: name, Args: args})
}

// WrapCaller decorates a control client with middlewares. The result still
// honors the non-throwing contract: middlewares produce code:-1 responses,
// never errors.
func WrapCaller(c client.Caller, middlewares ...Middleware) client.Caller {
	inner := func(_ context.Context, call *message.Call) message.Response {
		return c.Call(call.Name, call.Args)
	}
	return &wrappedCaller{handler: Chain(middlewares...)(inner)}
}

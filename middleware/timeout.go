package middleware

import (
	"context"
	"time"

	"github.com/meng-cz/vulsim-rpc/message"
)

// Timeout bounds a handler's execution. A handler that overruns keeps
// executing on its goroutine, but the caller gets a code:-1 response
// immediately; there is no cooperative cancellation below this layer.
func Timeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) message.Response {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			done := make(chan message.Response, 1)
			go func() {
				done <- next(ctx, call)
			}()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				return message.Errorf(-1, "request timed out")
			}
		}
	}
}

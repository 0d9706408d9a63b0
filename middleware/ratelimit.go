package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/meng-cz/vulsim-rpc/message"
)

// RateLimit rejects calls beyond a token-bucket budget with a code:-1
// response. Useful in front of the stub server, or around a Caller when a
// misbehaving UI component spams the control channel.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) message.Response {
			if !limiter.Allow() {
				return message.Errorf(-1, "rate limit exceeded")
			}
			return next(ctx, call)
		}
	}
}

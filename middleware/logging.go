package middleware

import (
	"context"
	"time"

	"github.com/meng-cz/vulsim-rpc/logging"
	"github.com/meng-cz/vulsim-rpc/message"
)

// Logging records every call's method, duration, and result code.
func Logging() Middleware {
	log := logging.Component("calls")
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) message.Response {
			start := time.Now()
			resp := next(ctx, call)
			evt := log.Debug()
			if resp.Code() != 0 {
				evt = log.Warn().Str("msg", resp.Msg())
			}
			evt.Str("method", call.Name).
				Dur("duration", time.Since(start)).
				Int("code", resp.Code()).
				Msg("call")
			return resp
		}
	}
}

package server

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/kmaximk/itmo-os-networkfs/internal/fine"
)

// NewLoggingMiddleware returns a new logging middleware. Requests are logged
// at debug level; requests that fail with anything other than ENOENT are
// logged at warn level.
func NewLoggingMiddleware(l log.Logger) Middleware {
	if l == nil {
		l = log.NewNopLogger()
	}
	return &loggingMiddlware{l: l}
}

type loggingMiddlware struct {
	l log.Logger
}

func (lm *loggingMiddlware) HandleRequest(ctx context.Context, hdr *fine.RequestHeader, req fine.Request, invoker Invoker) (fine.Response, error) {
	start := time.Now()
	level.Debug(lm.l).Log("msg", "starting request", "op", hdr.Op, "id", hdr.RequestID, "node", hdr.Node)
	resp, err := invoker(ctx, hdr, req)

	logger := level.Debug(lm.l)
	if code := errorForResponse(err); code != 0 && code != fine.ErrorNotExist {
		logger = level.Warn(lm.l)
	}
	logger.Log("msg", "finished request", "op", hdr.Op, "id", hdr.RequestID, "duration", time.Since(start), "err", err)
	return resp, err
}

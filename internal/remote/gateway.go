// Package remote talks to a networkfs backend.
//
// Every operation is a single HTTP GET of the form
//
//	{base}/{token}/fs/{op}?k1=v1&k2=v2
//
// answered with a little-endian int64 status followed by a fixed-size binary
// payload. Names and file content are passed through Escape before they are
// put on the wire.
package remote

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// DefaultOptions holds defaults for a Gateway.
var DefaultOptions = Options{
	BaseURL: "http://nerc.itmo.ru/teaching/os/networkfs/v1",
	Timeout: 10 * time.Second,
}

// Options configures a Gateway.
type Options struct {
	BaseURL string        // Backend URL up to, but not including, the token.
	Token   string        // Filesystem token. Selects the remote filesystem.
	Timeout time.Duration // Timeout for a single call. 0 disables it.

	// RateLimit caps the number of calls per second. 0 disables limiting.
	RateLimit float64
	// RateBurst is the number of calls that may exceed RateLimit at once.
	// Defaults to 1 when RateLimit is set.
	RateBurst int

	// Client overrides the HTTP client used for calls.
	Client *http.Client
}

// Param is a single query parameter of a call. Values are sent verbatim, so
// names and content must already be escaped.
type Param struct {
	Key, Value string
}

// Gateway issues calls against a backend.
type Gateway struct {
	log      log.Logger
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	metrics  *gatewayMetrics
}

// NewGateway creates a new Gateway. Metrics are registered against reg if it
// is non-nil.
func NewGateway(l log.Logger, reg prometheus.Registerer, o Options) (*Gateway, error) {
	if l == nil {
		l = log.NewNopLogger()
	}
	if o.Token == "" {
		return nil, fmt.Errorf("token must be set")
	}
	if strings.ContainsAny(o.Token, "/?#") {
		return nil, fmt.Errorf("token %q contains reserved characters", o.Token)
	}

	base, err := url.Parse(o.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("cannot parse base url %q: %w", o.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported base url scheme %q", base.Scheme)
	}

	client := o.Client
	if client == nil {
		client = &http.Client{Timeout: o.Timeout}
	}

	var limiter *rate.Limiter
	if o.RateLimit > 0 {
		burst := o.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(o.RateLimit), burst)
	}

	return &Gateway{
		log:      l,
		endpoint: strings.TrimSuffix(base.String(), "/") + "/" + o.Token + "/fs/",
		client:   client,
		limiter:  limiter,
		metrics:  newGatewayMetrics(reg),
	}, nil
}

// Call invokes op on the backend. resp is zero-filled before the call and
// receives the payload that follows the status; a payload shorter than resp
// leaves the remaining bytes zero. A payload longer than resp is an error.
//
// Call blocks until the backend replies, the call times out, or ctx is
// canceled. Calls are never retried.
func (g *Gateway) Call(ctx context.Context, op string, resp []byte, params ...Param) (err error) {
	for i := range resp {
		resp[i] = 0
	}

	start := time.Now()
	defer func() {
		g.metrics.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		g.metrics.calls.WithLabelValues(op, callResult(err)).Inc()
		if err != nil {
			level.Debug(g.log).Log("msg", "remote call failed", "op", op, "err", err)
		}
	}()

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("waiting to call %s: %w", op, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.callURL(op, params), nil)
	if err != nil {
		return fmt.Errorf("building %s request: %w", op, err)
	}
	res, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", op, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("calling %s: unexpected HTTP status %s", op, res.Status)
	}

	// One byte past the limit is enough to detect an oversized payload.
	body, err := io.ReadAll(io.LimitReader(res.Body, int64(8+len(resp)+1)))
	if err != nil {
		return fmt.Errorf("reading %s response: %w", op, err)
	}
	if len(body) < 8 {
		return fmt.Errorf("reading %s response: got %d bytes, missing status", op, len(body))
	}

	if status := Status(binary.LittleEndian.Uint64(body[:8])); status != StatusOK {
		return &StatusError{Op: op, Status: status}
	}

	payload := body[8:]
	if len(payload) > len(resp) {
		return fmt.Errorf("reading %s response: payload exceeds %d bytes", op, len(resp))
	}
	copy(resp, payload)
	return nil
}

func (g *Gateway) callURL(op string, params []Param) string {
	var sb strings.Builder
	sb.WriteString(g.endpoint)
	sb.WriteString(op)
	for i, p := range params {
		if i == 0 {
			sb.WriteByte('?')
		} else {
			sb.WriteByte('&')
		}
		sb.WriteString(p.Key)
		sb.WriteByte('=')
		sb.WriteString(p.Value)
	}
	return sb.String()
}

func callResult(err error) string {
	if err == nil {
		return "ok"
	}
	if status, ok := StatusOf(err); ok {
		return status.String()
	}
	return "transport_error"
}

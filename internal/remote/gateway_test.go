package remote

import (
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// fakeBackend answers every call with a canned status and payload and
// records the last request.
type fakeBackend struct {
	status  Status
	payload []byte
	delay   time.Duration

	mut       sync.Mutex
	lastToken string
	lastOp    string
	lastQuery string
}

func (f *fakeBackend) handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/v1/{token}/fs/{op}", func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		f.mut.Lock()
		f.lastToken, f.lastOp, f.lastQuery = vars["token"], vars["op"], r.URL.RawQuery
		f.mut.Unlock()

		if f.delay > 0 {
			select {
			case <-time.After(f.delay):
			case <-r.Context().Done():
				return
			}
		}

		var status [8]byte
		binary.LittleEndian.PutUint64(status[:], uint64(f.status))
		_, _ = w.Write(status[:])
		_, _ = w.Write(f.payload)
	})
	return r
}

func newTestGateway(t *testing.T, f *fakeBackend, reg prometheus.Registerer) *Gateway {
	t.Helper()

	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	gw, err := NewGateway(nil, reg, Options{BaseURL: srv.URL + "/v1", Token: "tok", Timeout: time.Second})
	require.NoError(t, err)
	return gw
}

func TestGateway_Call(t *testing.T) {
	f := &fakeBackend{payload: EncodeInode(42)}
	gw := newTestGateway(t, f, nil)

	resp := make([]byte, InodeSize)
	err := gw.Call(context.Background(), "create", resp,
		Param{"parent", "1000"},
		Param{"name", EscapeString("a b")},
		Param{"type", "file"},
	)
	require.NoError(t, err)
	require.Equal(t, uint64(42), binary.LittleEndian.Uint64(resp))

	f.mut.Lock()
	defer f.mut.Unlock()
	require.Equal(t, "tok", f.lastToken)
	require.Equal(t, "create", f.lastOp)
	// Escaped values must reach the backend verbatim, not double-escaped.
	require.Equal(t, "parent=1000&name=%61%20%62&type=file", f.lastQuery)
}

func TestGateway_Call_ShortResponseZeroFills(t *testing.T) {
	f := &fakeBackend{payload: []byte{0xaa, 0xbb}}
	gw := newTestGateway(t, f, nil)

	resp := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	require.NoError(t, gw.Call(context.Background(), "read", resp))
	require.Equal(t, []byte{0xaa, 0xbb, 0, 0, 0, 0, 0, 0}, resp)
}

func TestGateway_Call_OversizedResponse(t *testing.T) {
	f := &fakeBackend{payload: make([]byte, 9)}
	gw := newTestGateway(t, f, nil)

	err := gw.Call(context.Background(), "read", make([]byte, 8))
	require.Error(t, err)
}

func TestGateway_Call_StatusError(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := &fakeBackend{status: StatusNotEmpty}
	gw := newTestGateway(t, f, reg)

	err := gw.Call(context.Background(), "rmdir", nil, Param{"parent", "1000"}, Param{"name", "%61"})
	require.Error(t, err)

	status, ok := StatusOf(err)
	require.True(t, ok)
	require.Equal(t, StatusNotEmpty, status)

	require.Equal(t, 1.0, testutil.ToFloat64(gw.metrics.calls.WithLabelValues("rmdir", "ENOTEMPTY")))
}

func TestGateway_Call_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	gw, err := NewGateway(nil, nil, Options{BaseURL: url, Token: "tok"})
	require.NoError(t, err)

	resp := []byte{9, 9, 9}
	err = gw.Call(context.Background(), "list", resp)
	require.Error(t, err)
	_, isStatus := StatusOf(err)
	require.False(t, isStatus)
	require.Equal(t, []byte{0, 0, 0}, resp, "response buffer is cleared even on failure")
}

func TestGateway_Call_HTTPError(t *testing.T) {
	f := &fakeBackend{}
	gw := newTestGateway(t, f, nil)
	gw.endpoint = gw.endpoint[:len(gw.endpoint)-len("fs/")] + "missing/"

	err := gw.Call(context.Background(), "list", nil)
	require.Error(t, err)
}

func TestGateway_Call_Deadline(t *testing.T) {
	f := &fakeBackend{delay: 5 * time.Second}
	gw := newTestGateway(t, f, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := gw.Call(ctx, "list", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGateway_RateLimit(t *testing.T) {
	f := &fakeBackend{}
	srv := httptest.NewServer(f.handler())
	defer srv.Close()

	gw, err := NewGateway(nil, nil, Options{BaseURL: srv.URL + "/v1", Token: "tok", RateLimit: 0.001})
	require.NoError(t, err)

	// The first call uses the burst; the second cannot be admitted before
	// the context expires.
	require.NoError(t, gw.Call(context.Background(), "unlink", nil))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, gw.Call(ctx, "unlink", nil))
}

func TestNewGateway_Validation(t *testing.T) {
	_, err := NewGateway(nil, nil, Options{BaseURL: "http://localhost"})
	require.Error(t, err, "missing token")

	_, err = NewGateway(nil, nil, Options{BaseURL: "http://localhost", Token: "a/b"})
	require.Error(t, err, "token with slash")

	_, err = NewGateway(nil, nil, Options{BaseURL: "ftp://localhost", Token: "a"})
	require.Error(t, err, "bad scheme")
}

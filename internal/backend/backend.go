// Package backend implements an in-memory networkfs backend. It speaks the
// same HTTP protocol as the production service and is used for local
// development and tests.
package backend

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	"github.com/hashicorp/go-multierror"
	"github.com/kmaximk/itmo-os-networkfs/internal/remote"
	"github.com/mitchellh/go-homedir"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	uuid "github.com/satori/go.uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultOptions holds defaults for Backend.
var DefaultOptions = Options{
	PathPrefix:    "/teaching/os/networkfs/v1",
	MaxDirEntries: remote.MaxEntries,
}

// Options configures a Backend.
type Options struct {
	// PathPrefix is the URL path the protocol is served under.
	PathPrefix string

	// SnapshotPath, when set, is loaded by New and written by Close.
	SnapshotPath string

	// MaxDirEntries limits the number of entries per directory.
	MaxDirEntries int

	// RequireIssuedTokens rejects tokens that were not issued through the
	// token endpoint. Otherwise a filesystem is created on first use.
	RequireIssuedTokens bool
}

// Backend is an in-memory networkfs backend.
type Backend struct {
	log log.Logger
	o   Options

	mut         sync.Mutex
	filesystems map[string]*filesystem

	requests *prometheus.CounterVec
}

// New creates a new Backend. If o.SnapshotPath names an existing snapshot,
// its filesystems are restored.
func New(l log.Logger, reg prometheus.Registerer, o Options) (*Backend, error) {
	if l == nil {
		l = log.NewNopLogger()
	}
	if o.MaxDirEntries <= 0 {
		o.MaxDirEntries = DefaultOptions.MaxDirEntries
	}
	if o.SnapshotPath != "" {
		path, err := homedir.Expand(o.SnapshotPath)
		if err != nil {
			return nil, fmt.Errorf("invalid snapshot path: %w", err)
		}
		o.SnapshotPath = path
	}

	b := &Backend{
		log:         l,
		o:           o,
		filesystems: make(map[string]*filesystem),

		requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "networkfs_backend_requests_total",
			Help: "Total number of protocol requests served, by op and status.",
		}, []string{"op", "status"}),
	}

	if o.SnapshotPath != "" {
		if err := b.load(); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Handler returns the HTTP handler serving the protocol.
func (b *Backend) Handler() http.Handler {
	r := mux.NewRouter()
	sub := r.PathPrefix(b.o.PathPrefix).Subrouter()
	sub.HandleFunc("/token", b.issueToken).Methods(http.MethodPost)
	sub.HandleFunc("/{token}/fs/{op}", b.serveOp).Methods(http.MethodGet)
	return r
}

// IssueToken creates an empty filesystem and returns its token.
func (b *Backend) IssueToken() string {
	token := uuid.NewV4().String()

	b.mut.Lock()
	defer b.mut.Unlock()
	b.filesystems[token] = newFilesystem()

	level.Info(b.log).Log("msg", "issued token", "token", token)
	return token
}

func (b *Backend) issueToken(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, b.IssueToken())
}

func (b *Backend) lookupFS(token string) (*filesystem, bool) {
	fs, ok := b.filesystems[token]
	if !ok && !b.o.RequireIssuedTokens {
		fs = newFilesystem()
		b.filesystems[token] = fs
		ok = true
	}
	return fs, ok
}

// errBadRequest is returned for malformed parameters. It is answered with an
// HTTP error instead of a protocol status.
var errBadRequest = errors.New("bad request")

func (b *Backend) serveOp(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	op := vars["op"]

	params, err := parseQuery(r.URL.RawQuery)
	if err != nil {
		b.requests.WithLabelValues(op, "bad_request").Inc()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	b.mut.Lock()
	fs, ok := b.lookupFS(vars["token"])
	var (
		status  remote.Status
		payload []byte
	)
	if ok {
		status, payload, err = fs.call(b.o, op, params)
	}
	b.mut.Unlock()

	switch {
	case !ok:
		b.requests.WithLabelValues(op, "unknown_token").Inc()
		http.Error(w, "unknown token", http.StatusNotFound)
		return
	case errors.Is(err, errBadRequest):
		b.requests.WithLabelValues(op, "bad_request").Inc()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		b.requests.WithLabelValues(op, "error").Inc()
		level.Error(b.log).Log("msg", "request failed", "op", op, "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	b.requests.WithLabelValues(op, status.String()).Inc()
	level.Debug(b.log).Log("msg", "served request", "op", op, "status", status)

	var hdr [8]byte
	binary.LittleEndian.PutUint64(hdr[:], uint64(status))
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(hdr[:])
	if status == remote.StatusOK {
		_, _ = w.Write(payload)
	}
}

// queryParams holds decoded call parameters.
type queryParams map[string]string

// parseQuery splits a raw query. The name and content parameters must be
// fully %XX escaped.
func parseQuery(raw string) (queryParams, error) {
	params := make(queryParams)
	if raw == "" {
		return params, nil
	}
	for _, pair := range strings.Split(raw, "&") {
		key, value, _ := strings.Cut(pair, "=")
		if key == "name" || key == "content" {
			decoded, err := remote.Unescape(value)
			if err != nil {
				return nil, fmt.Errorf("parameter %s: %w", key, err)
			}
			value = string(decoded)
		}
		params[key] = value
	}
	return params, nil
}

func (p queryParams) id(key string) (uint64, error) {
	v, ok := p[key]
	if !ok {
		return 0, fmt.Errorf("missing parameter %s: %w", key, errBadRequest)
	}
	id, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parameter %s: %v: %w", key, err, errBadRequest)
	}
	return id, nil
}

func (p queryParams) str(key string) (string, error) {
	v, ok := p[key]
	if !ok {
		return "", fmt.Errorf("missing parameter %s: %w", key, errBadRequest)
	}
	return v, nil
}

// Close writes a snapshot if one is configured.
func (b *Backend) Close() error {
	if b.o.SnapshotPath == "" {
		return nil
	}
	return b.save()
}

func (b *Backend) load() error {
	bb, err := os.ReadFile(b.o.SnapshotPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}

	var filesystems map[string]*filesystem
	if err := msgpack.Unmarshal(bb, &filesystems); err != nil {
		return fmt.Errorf("decoding snapshot %s: %w", b.o.SnapshotPath, err)
	}

	b.mut.Lock()
	defer b.mut.Unlock()
	for token, fs := range filesystems {
		if fs.Nodes == nil {
			continue
		}
		b.filesystems[token] = fs
	}
	level.Info(b.log).Log("msg", "loaded snapshot", "path", b.o.SnapshotPath, "filesystems", len(b.filesystems))
	return nil
}

func (b *Backend) save() (err error) {
	b.mut.Lock()
	bb, err := msgpack.Marshal(b.filesystems)
	b.mut.Unlock()
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	dir := filepath.Dir(b.o.SnapshotPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("creating snapshot: %w", err)
	}
	defer func() {
		if err != nil {
			if rmErr := os.Remove(tmp.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				err = multierror.Append(err, rmErr)
			}
		}
	}()

	if _, err := tmp.Write(bb); err != nil {
		var result error = fmt.Errorf("writing snapshot: %w", err)
		if closeErr := tmp.Close(); closeErr != nil {
			result = multierror.Append(result, closeErr)
		}
		return result
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.o.SnapshotPath); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}

	level.Info(b.log).Log("msg", "saved snapshot", "path", b.o.SnapshotPath)
	return nil
}

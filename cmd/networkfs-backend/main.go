// Command networkfs-backend serves the networkfs HTTP protocol from memory.
// It is meant for local development and testing of networkfs mounts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "net/http/pprof" // anonymous import to get the pprof handler registered

	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	"github.com/kmaximk/itmo-os-networkfs/internal/backend"
	"github.com/kmaximk/itmo-os-networkfs/internal/cmdutil"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	var (
		o          = backend.DefaultOptions
		ll         cmdutil.LogLevel
		listenAddr string
	)

	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.Var(&ll, "log.level", "Level to display logs at")
	fs.StringVar(&listenAddr, "server.http-listen-addr", "127.0.0.1:8080", "Address to serve the protocol, metrics and pprof on")
	fs.StringVar(&o.SnapshotPath, "storage.snapshot-path", "", "File to load filesystems from on start and save them to on exit")
	fs.IntVar(&o.MaxDirEntries, "storage.max-dir-entries", o.MaxDirEntries, "Maximum number of entries in a directory")
	fs.BoolVar(&o.RequireIssuedTokens, "storage.require-issued-tokens", false, "Reject tokens that were not issued by POST <prefix>/token")

	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error parsing flags: %s\n", err.Error())
		os.Exit(1)
	}

	l := cmdutil.NewLogger(ll, "networkfs-backend")

	b, err := backend.New(l, prometheus.DefaultRegisterer, o)
	if err != nil {
		level.Error(l).Log("msg", "failed to create backend", "err", err)
		os.Exit(1)
	}

	var group run.Group

	// HTTP server worker
	{
		lis, err := net.Listen("tcp", listenAddr)
		if err != nil {
			level.Error(l).Log("msg", "failed to create listener for HTTP server", "err", err)
			os.Exit(1)
		}

		r := mux.NewRouter()
		r.Handle("/metrics", promhttp.Handler())
		r.PathPrefix("/debug/pprof").Handler(http.DefaultServeMux)
		r.PathPrefix(o.PathPrefix).Handler(b.Handler())
		srv := http.Server{Handler: r}

		group.Add(func() error {
			level.Info(l).Log("msg", "serving networkfs protocol", "addr", lis.Addr(), "prefix", o.PathPrefix)
			err := srv.Serve(lis)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		}, func(_ error) {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				_ = srv.Close()
			}
		})
	}

	// Signal worker
	{
		ctx, cancel := context.WithCancel(context.Background())

		group.Add(func() error {
			ch := make(chan os.Signal, 2)
			signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(ch)

			select {
			case <-ch:
				level.Info(l).Log("msg", "received shutdown signal")
			case <-ctx.Done():
			}
			return nil
		}, func(_ error) {
			cancel()
		})
	}

	runErr := group.Run()
	if err := b.Close(); err != nil {
		level.Error(l).Log("msg", "failed to save snapshot", "err", err)
	}
	if runErr != nil {
		level.Error(l).Log("msg", "error running networkfs-backend", "err", runErr)
		os.Exit(1)
	}
}

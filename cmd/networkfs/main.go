//go:build linux

// Command networkfs mounts a networkfs filesystem. Files and directories live
// on a remote backend selected by a token.
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

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	"github.com/kmaximk/itmo-os-networkfs/internal/cmdutil"
	"github.com/kmaximk/itmo-os-networkfs/internal/fine/fuse"
	"github.com/kmaximk/itmo-os-networkfs/internal/fine/server"
	"github.com/kmaximk/itmo-os-networkfs/internal/networkfs"
	"github.com/kmaximk/itmo-os-networkfs/internal/remote"
	"github.com/mitchellh/go-homedir"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type options struct {
	remote remote.Options
	server server.Options

	allowOther bool
	listenAddr string
}

func main() {
	var (
		o = options{
			remote:     remote.DefaultOptions,
			server:     server.DefaultOptions,
			listenAddr: "127.0.0.1:8081",
		}
		ll cmdutil.LogLevel
	)

	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: %s [flags] <token> <mountpoint>\n", os.Args[0])
		fs.PrintDefaults()
	}
	fs.Var(&ll, "log.level", "Level to display logs at")
	fs.StringVar(&o.remote.BaseURL, "remote.url", o.remote.BaseURL, "Base URL of the networkfs backend, without the token")
	fs.DurationVar(&o.remote.Timeout, "remote.timeout", o.remote.Timeout, "Timeout for a single backend call")
	fs.Float64Var(&o.remote.RateLimit, "remote.rate-limit", o.remote.RateLimit, "Maximum backend calls per second. 0 disables limiting")
	fs.IntVar(&o.server.ConcurrencyLimit, "fs.concurrency", o.server.ConcurrencyLimit, "Maximum number of filesystem requests handled at once")
	fs.DurationVar(&o.server.RequestTimeout, "fs.request-timeout", o.server.RequestTimeout, "Timeout for handling a single filesystem request")
	fs.BoolVar(&o.allowOther, "fs.allow-other", false, "Allow other users to access the mount")
	fs.StringVar(&o.listenAddr, "server.http-listen-addr", o.listenAddr, "Address to expose metrics and pprof on. Empty disables the server")

	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error parsing flags: %s\n", err.Error())
		os.Exit(1)
	}
	if fs.NArg() != 2 {
		fs.Usage()
		os.Exit(1)
	}
	o.remote.Token = fs.Arg(0)

	l := cmdutil.NewLogger(ll, "networkfs")

	mountPath, err := homedir.Expand(fs.Arg(1))
	if err != nil {
		level.Error(l).Log("msg", "invalid mountpoint", "err", err)
		os.Exit(1)
	}

	if err := runMount(l, o, mountPath); err != nil {
		level.Error(l).Log("msg", "error running networkfs", "err", err)
		os.Exit(1)
	}
}

func runMount(l log.Logger, o options, mountPath string) error {
	reg := prometheus.DefaultRegisterer

	gw, err := remote.NewGateway(log.With(l, "component", "remote"), reg, o.remote)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	client := remote.NewClient(log.With(l, "component", "remote"), reg, gw)
	handler := networkfs.New(log.With(l, "component", "networkfs"), reg, client, networkfs.Options{
		UID: uint32(os.Getuid()),
		GID: uint32(os.Getgid()),
	})

	var group run.Group

	// Information server worker
	if o.listenAddr != "" {
		lis, err := net.Listen("tcp", o.listenAddr)
		if err != nil {
			return fmt.Errorf("creating listener for HTTP server: %w", err)
		}

		r := mux.NewRouter()
		r.Handle("/metrics", promhttp.Handler())
		r.PathPrefix("/debug/pprof").Handler(http.DefaultServeMux)
		srv := http.Server{Handler: r}

		group.Add(func() error {
			level.Debug(l).Log("msg", "listening for http traffic", "addr", lis.Addr())
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

	// FUSE worker
	{
		if err := os.MkdirAll(mountPath, 0755); err != nil {
			return fmt.Errorf("creating mount path: %w", err)
		}

		mountOpts := []fuse.MountOption{fuse.FSName("networkfs"), fuse.Subtype("networkfs")}
		if o.allowOther {
			mountOpts = append(mountOpts, fuse.AllowOther())
		}
		transport, err := fuse.Mount(l, mountPath, mountOpts...)
		if err != nil {
			return err
		}

		middleware := []server.Middleware{server.NewMetricsMiddleware(reg)}
		if os.Getenv("NETWORKFS_LOG_REQUESTS") != "" {
			middleware = append(middleware, server.NewLoggingMiddleware(l))
		}

		so := o.server
		so.Transport = transport
		so.Handler = handler
		so.Middleware = middleware
		srv, err := server.New(l, so)
		if err != nil {
			_ = transport.Close()
			return fmt.Errorf("creating filesystem server: %w", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		group.Add(func() error {
			level.Info(l).Log("msg", "serving filesystem", "dir", mountPath, "remote", o.remote.BaseURL)
			return srv.Serve(ctx)
		}, func(_ error) {
			cancel()
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

	return group.Run()
}

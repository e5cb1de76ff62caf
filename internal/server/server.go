// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package server wires the Type Registry, Tag Store, module session
// registry and Command Dispatcher together behind a TCP accept loop, and
// runs the background status-tag refresh ticker alongside it. The
// goroutine fan-out (accept loop, HTTP introspection server, status
// ticker) is coordinated with golang.org/x/sync/errgroup, replacing
// hand-rolled sync.WaitGroup bookkeeping — the same role errgroup plays
// for worker fan-out across the pack.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opendax/daxd/internal/config"
	"github.com/opendax/daxd/internal/httpapi"
	"github.com/opendax/daxd/internal/modsession"
	"github.com/opendax/daxd/internal/notify"
	"github.com/opendax/daxd/internal/tagstore"
	"github.com/opendax/daxd/internal/types"
	"github.com/opendax/daxd/internal/wire"
	"github.com/opendax/daxd/pkg/daxlog"
	"github.com/opendax/daxd/pkg/runtimeEnv"
)

// Server holds the long-lived, wired-together components of one daxd
// process.
type Server struct {
	Registry   *types.Registry
	Store      *tagstore.Store
	Sessions   *modsession.Registry
	Dispatcher *wire.Dispatcher

	listener net.Listener
	httpSrv  *http.Server
	started  time.Time
}

// New constructs a Server from cfg, creating the registry, tag store and
// module session table and opening the module-protocol listener. It does
// not start accepting connections; call Run for that.
func New(cfg config.ProgramConfig) (*Server, error) {
	registry := types.New()
	var store *tagstore.Store
	var err error
	if cfg.TagArraySize > 0 {
		store, err = tagstore.NewWithCapacity(registry, cfg.TagArraySize, 0)
	} else {
		store, err = tagstore.New(registry)
	}
	if err != nil {
		return nil, err
	}
	sessions := modsession.New()

	notify.Connect(cfg.NatsAddress)

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, err
	}

	dispatcher := &wire.Dispatcher{
		Store:     store,
		Sessions:  sessions,
		RateLimit: 2000, // frames/sec per session
		RateBurst: 200,
	}

	var httpSrv *http.Server
	if cfg.HTTPAddr != "" {
		httpSrv = &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: httpapi.NewRouter(store, registry),
		}
	}

	return &Server{
		Registry:   registry,
		Store:      store,
		Sessions:   sessions,
		Dispatcher: dispatcher,
		listener:   ln,
		httpSrv:    httpSrv,
		started:    time.Now(),
	}, nil
}

// Addr returns the bound module-protocol listener address, mainly for
// tests that bind to ":0".
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Run accepts module connections and serves the HTTP introspection
// surface until ctx is cancelled, then closes both and waits for
// in-flight work to finish.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.acceptLoop(ctx)
	})

	g.Go(func() error {
		s.statusLoop(ctx)
		return nil
	})

	if interval := runtimeEnv.WatchdogInterval(); interval > 0 {
		g.Go(func() error {
			runtimeEnv.Watchdog(ctx, interval)
			return nil
		})
	}

	if s.httpSrv != nil {
		g.Go(func() error {
			if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		_ = s.listener.Close()
		if s.httpSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.httpSrv.Shutdown(shutdownCtx)
		}
		notify.Close()
		return nil
	})

	return g.Wait()
}

// acceptLoop accepts module connections and services each on its own
// goroutine: one frame per read, dispatched synchronously (§5: the core
// is logically single-threaded, so concurrent connections still observe
// totally-ordered writes per tag via the store's own locking, not via
// serializing connections themselves).
func (s *Server) acceptLoop(ctx context.Context) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				daxlog.Warnf("server: accept: %v", err)
				continue
			}
		}
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()
	for {
		f, err := wire.DecodeFrame(conn)
		if err != nil {
			return
		}
		for _, reply := range s.Dispatcher.Handle(f) {
			if err := wire.WriteFrame(conn, reply); err != nil {
				daxlog.Warnf("server: write reply to session %d: %v", f.SessionID, err)
				return
			}
		}
	}
}

// statusLoop refreshes the system status tag every second until ctx is
// cancelled — the one recurring domain job (SPEC_FULL.md "Supplemented
// Features"), grounded on the teacher's periodic retention/stats loop
// shape.
func (s *Server) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			uptime := uint32(time.Since(s.started).Seconds())
			s.Store.RefreshStatus(uptime, uint32(s.Sessions.Count()))
		}
	}
}

// Package server exposes the assembler and VM over Connect RPC (Connect,
// gRPC and gRPC-Web on one port) and as an LSP server for .vm files.
//
// Messages are google.protobuf.Struct values, so any Connect client can
// call the services with plain JSON.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"
	"google.golang.org/protobuf/types/known/structpb"
)

var log = commonlog.GetLogger("vainilla.server")

// Procedure paths served by Server.
const (
	EvalAssembleProcedure   = "/vainilla.v1.EvalService/Assemble"
	EvalRunProcedure        = "/vainilla.v1.EvalService/Run"
	SessionOpenProcedure    = "/vainilla.v1.SessionService/Open"
	SessionStepProcedure    = "/vainilla.v1.SessionService/Step"
	SessionInspectProcedure = "/vainilla.v1.SessionService/Inspect"
	SessionCloseProcedure   = "/vainilla.v1.SessionService/Close"
)

// Server serves the evaluation and session services.
type Server struct {
	eval     *EvalService
	session  *SessionService
	sessions *SessionStore
	mux      *http.ServeMux
	httpSrv  *http.Server

	stopSweeper func()
}

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	runTimeout    time.Duration
	maxSteps      uint64
	sessionTTL    time.Duration
	sweepInterval time.Duration
}

// WithRunTimeout bounds how long a single Run or Step call may execute.
// Zero disables the deadline.
func WithRunTimeout(d time.Duration) ServerOption {
	return func(c *serverConfig) { c.runTimeout = d }
}

// WithMaxSteps bounds how many instructions a single call may execute.
// Zero means no limit beyond the run timeout.
func WithMaxSteps(n uint64) ServerOption {
	return func(c *serverConfig) { c.maxSteps = n }
}

// WithSessionTTL sets how long an idle session survives and how often
// idle sessions are swept. A zero ttl keeps sessions until they are
// closed; a zero interval sweeps once per ttl.
func WithSessionTTL(ttl, interval time.Duration) ServerOption {
	return func(c *serverConfig) {
		c.sessionTTL = ttl
		c.sweepInterval = interval
	}
}

// New creates a Server.
func New(opts ...ServerOption) *Server {
	cfg := &serverConfig{
		runTimeout:    5 * time.Second,
		maxSteps:      10_000_000,
		sessionTTL:    30 * time.Minute,
		sweepInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	sessions := NewSessionStore()
	s := &Server{
		eval:     NewEvalService(cfg.runTimeout, cfg.maxSteps),
		session:  NewSessionService(sessions, cfg.runTimeout, cfg.maxSteps),
		sessions: sessions,
		mux:      http.NewServeMux(),
	}

	s.handle(EvalAssembleProcedure, s.eval.Assemble)
	s.handle(EvalRunProcedure, s.eval.Run)
	s.handle(SessionOpenProcedure, s.session.Open)
	s.handle(SessionStepProcedure, s.session.Step)
	s.handle(SessionInspectProcedure, s.session.Inspect)
	s.handle(SessionCloseProcedure, s.session.Close)

	s.stopSweeper = sessions.StartSweeper(cfg.sweepInterval, cfg.sessionTTL)

	return s
}

type unaryFunc func(context.Context, *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error)

func (s *Server) handle(procedure string, fn unaryFunc) {
	s.mux.Handle(procedure, connect.NewUnaryHandler[structpb.Struct, structpb.Struct](procedure, fn))
}

// Handler returns the HTTP handler serving every procedure.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Sessions returns the server's session store.
func (s *Server) Sessions() *SessionStore {
	return s.sessions
}

// ListenAndServe starts the HTTP server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *Server) ListenAndServe(addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	fmt.Printf("Vainilla server listening on %s\n", addr)
	fmt.Printf("  Connect (HTTP/JSON): http://%s%s\n", addr, EvalRunProcedure)
	fmt.Printf("  gRPC (binary):       grpc://%s\n", addr)
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts down the server and every open session.
func (s *Server) Stop() {
	if s.stopSweeper != nil {
		s.stopSweeper()
		s.stopSweeper = nil
	}
	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			log.Errorf("shutdown: %s", err)
		}
	}
	s.sessions.DestroyAll()
}

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/tliron/kutil/util"

	"github.com/chazu/vainilla/server"
)

// serveCommand handles `vainilla serve`.
func (c *cli) serveCommand(args []string) error {
	fs := c.newFlagSet("serve", "[options]")
	addr := fs.String("addr", c.manifest.Server.Addr, "Listen address")
	timeout := fs.Duration("timeout", 5*time.Second, "Wall-clock limit for Run and Step requests (0 disables)")
	maxSteps := fs.Uint64("max-steps", 10_000_000, "Instruction limit per request (0 disables)")
	ttl := fs.Duration("session-ttl", 30*time.Minute, "Idle time before a debug session is dropped (0 keeps sessions)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return errors.New("serve takes no arguments")
	}
	srv, err := newServer(*timeout, *ttl, *maxSteps)
	if err != nil {
		return err
	}
	util.OnExit(srv.Stop)
	util.ExitOnSignals()
	return srv.ListenAndServe(*addr)
}

// newServer validates the serve limits and builds the server.
func newServer(timeout, ttl time.Duration, maxSteps uint64) (*server.Server, error) {
	if timeout < 0 {
		return nil, fmt.Errorf("serve: -timeout must not be negative, got %s", timeout)
	}
	if ttl < 0 {
		return nil, fmt.Errorf("serve: -session-ttl must not be negative, got %s", ttl)
	}
	return server.New(
		server.WithRunTimeout(timeout),
		server.WithMaxSteps(maxSteps),
		server.WithSessionTTL(ttl, ttl/6),
	), nil
}

// lspCommand handles `vainilla lsp`: serve the language server on stdio.
func (c *cli) lspCommand(args []string) error {
	fs := c.newFlagSet("lsp", "")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return server.NewLSP().Run()
}

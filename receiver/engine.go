// Package receiver implements the receiving half of a transfer: the
// per-connection state machine, resume negotiation, and sink selection
// (plain file append vs. streaming archive extraction), per spec §4.1,
// §4.4, and §4.6.
package receiver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/toolza/gobyte/certs"
	"github.com/toolza/gobyte/internal/framing"
	"github.com/toolza/gobyte/plan"
	"github.com/toolza/gobyte/progress"
	"github.com/toolza/gobyte/transport"
)

// Engine accepts incoming sessions and runs the receiver state machine on
// each, per spec §4.5's receive-side mirror.
type Engine struct {
	Opts   plan.Options
	Bus    *progress.Bus
	Logger zerolog.Logger

	locks *pathLocks
}

// NewEngine constructs an Engine. opts.SaveDir defaults to the user's
// downloads directory when empty, per spec §3.
func NewEngine(opts plan.Options, bus *progress.Bus, logger zerolog.Logger) *Engine {
	if opts.SaveDir == "" {
		opts.SaveDir = defaultSaveDir()
	}
	return &Engine{Opts: opts, Bus: bus, Logger: logger, locks: newPathLocks()}
}

func defaultSaveDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Downloads")
}

// Serve listens on opts.Port over opts.Transport until ctx is cancelled,
// running one handleSession per accepted connection concurrently.
func (e *Engine) Serve(ctx context.Context) error {
	if err := os.MkdirAll(e.Opts.SaveDir, 0755); err != nil {
		return err
	}

	tr, err := transport.New(e.Opts.Transport, transport.Options{CertDir: certs.DefaultDir()})
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", e.Opts.Port)
	ln, err := tr.Listen(ctx, addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	e.Logger.Info().Str("addr", ln.Addr().String()).Str("transport", string(e.Opts.Transport)).Msg("listening")

	for {
		sess, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if sess.Unreliable() {
			sess.Close()
			continue
		}

		go func() {
			conn := framing.New(sess)
			defer conn.Close()

			if err := handleSession(ctx, conn, e.Opts, e.Bus, e.locks, e.Logger); err != nil {
				e.Logger.Warn().Str("remote", sess.RemoteAddr().String()).Err(err).Msg("session ended with error")
			}
		}()
	}
}

package receiver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/toolza/gobyte/internal/framing"
	"github.com/toolza/gobyte/plan"
	"github.com/toolza/gobyte/progress"
	"github.com/toolza/gobyte/wire"

	"github.com/rs/zerolog"
)

// pipeSession adapts a net.Conn (from net.Pipe) to transport.Session for
// in-process protocol tests, matching the teacher's preference for driving
// real I/O over a real (if local) connection rather than mocking it.
type pipeSession struct {
	net.Conn
}

func (pipeSession) Unreliable() bool { return false }

func newSessionPair() (client *framing.Conn, server *framing.Conn) {
	a, b := net.Pipe()
	return framing.New(pipeSession{a}), framing.New(pipeSession{b})
}

func runHandshake(t *testing.T, client *framing.Conn, entry wire.ManifestEntry) {
	t.Helper()
	require.NoError(t, client.Send(wire.Hello{ProtocolVersion: wire.ProtocolVersion}))
	require.NoError(t, client.Send(wire.Manifest{Entries: []wire.ManifestEntry{entry}}))
}

func TestReceiveFileRejectsOutOfSequenceOffset(t *testing.T) {
	saveDir := t.TempDir()
	entry := wire.ManifestEntry{Path: "out.bin", Size: 8}

	client, server := newSessionPair()
	done := make(chan error, 1)
	go func() {
		done <- handleSession(context.Background(), server, plan.Options{SaveDir: saveDir}, progress.NewBus(), newPathLocks(), zerolog.Nop())
	}()

	runHandshake(t, client, entry)
	require.NoError(t, client.Send(wire.FileBegin{EntryIndex: 0, StartOffset: 0}))

	// Skips ahead of the expected offset 0.
	require.NoError(t, client.Send(wire.Chunk{EntryIndex: 0, Offset: 4, Payload: []byte{1, 2, 3, 4}}))

	msg, err := client.Receive()
	require.NoError(t, err)
	errMsg, ok := msg.(wire.Error)
	require.True(t, ok)
	require.Equal(t, wire.ErrCodeIllegalState, errMsg.Code)

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrOffsetViolation)
	case <-time.After(2 * time.Second):
		t.Fatal("handleSession did not return")
	}
}

func TestReceiveFileRejectsOverrunChunk(t *testing.T) {
	saveDir := t.TempDir()
	entry := wire.ManifestEntry{Path: "out.bin", Size: 4}

	client, server := newSessionPair()
	done := make(chan error, 1)
	go func() {
		done <- handleSession(context.Background(), server, plan.Options{SaveDir: saveDir}, progress.NewBus(), newPathLocks(), zerolog.Nop())
	}()

	runHandshake(t, client, entry)
	require.NoError(t, client.Send(wire.FileBegin{EntryIndex: 0, StartOffset: 0}))

	// Offset is correct (0) but the payload overruns size_expected (4).
	require.NoError(t, client.Send(wire.Chunk{EntryIndex: 0, Offset: 0, Payload: []byte{1, 2, 3, 4, 5}}))

	msg, err := client.Receive()
	require.NoError(t, err)
	errMsg, ok := msg.(wire.Error)
	require.True(t, ok)
	require.Equal(t, wire.ErrCodeIllegalState, errMsg.Code)

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrOffsetViolation)
	case <-time.After(2 * time.Second):
		t.Fatal("handleSession did not return")
	}
}

func TestReceiveFileRefusesStreamingResumeButSessionContinues(t *testing.T) {
	saveDir := t.TempDir()
	entry := wire.ManifestEntry{Path: "archive.tar.lz4", Size: 100}

	client, server := newSessionPair()
	done := make(chan error, 1)
	go func() {
		done <- handleSession(context.Background(), server, plan.Options{SaveDir: saveDir, Extract: true}, progress.NewBus(), newPathLocks(), zerolog.Nop())
	}()

	runHandshake(t, client, entry)
	// A streaming archive is never partially materialized on disk, so a
	// resumed FILE_BEGIN for one must be refused without killing the
	// session.
	require.NoError(t, client.Send(wire.FileBegin{EntryIndex: 0, StartOffset: 5}))

	msg, err := client.Receive()
	require.NoError(t, err)
	errMsg, ok := msg.(wire.Error)
	require.True(t, ok)
	require.Equal(t, wire.ErrCodeIO, errMsg.Code)

	require.NoError(t, client.Send(wire.SessionEnd{}))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("handleSession did not return")
	}
}

func TestHandleSessionRespectsCancellation(t *testing.T) {
	saveDir := t.TempDir()
	entry := wire.ManifestEntry{Path: "out.bin", Size: 8}

	client, server := newSessionPair()
	// Cancelled up front so the dispatch loop's checkpoint fires on its
	// first iteration, deterministically, rather than racing a cancel()
	// call against the goroutine blocking on the next read.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		done <- handleSession(ctx, server, plan.Options{SaveDir: saveDir}, progress.NewBus(), newPathLocks(), zerolog.Nop())
	}()

	runHandshake(t, client, entry)

	msg, err := client.Receive()
	require.NoError(t, err)
	errMsg, ok := msg.(wire.Error)
	require.True(t, ok)
	require.Equal(t, wire.ErrCodeCancelled, errMsg.Code)

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("handleSession did not return")
	}
}

func TestResumeQueryPathTraversalReportsDedicatedCode(t *testing.T) {
	saveDir := t.TempDir()
	entry := wire.ManifestEntry{Path: "../escape.bin", Size: 10}

	client, server := newSessionPair()
	done := make(chan error, 1)
	go func() {
		done <- handleSession(context.Background(), server, plan.Options{SaveDir: saveDir}, progress.NewBus(), newPathLocks(), zerolog.Nop())
	}()

	runHandshake(t, client, entry)
	require.NoError(t, client.Send(wire.ResumeQuery{EntryIndex: 0}))

	msg, err := client.Receive()
	require.NoError(t, err)
	errMsg, ok := msg.(wire.Error)
	require.True(t, ok)
	require.Equal(t, wire.ErrCodePathTraversal, errMsg.Code)

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("handleSession did not return")
	}
}

func TestReceiveFileRejectsShortFileEnd(t *testing.T) {
	saveDir := t.TempDir()
	entry := wire.ManifestEntry{Path: "out.bin", Size: 8}

	client, server := newSessionPair()
	done := make(chan error, 1)
	go func() {
		done <- handleSession(context.Background(), server, plan.Options{SaveDir: saveDir}, progress.NewBus(), newPathLocks(), zerolog.Nop())
	}()

	runHandshake(t, client, entry)
	require.NoError(t, client.Send(wire.FileBegin{EntryIndex: 0, StartOffset: 0}))
	require.NoError(t, client.Send(wire.Chunk{EntryIndex: 0, Offset: 0, Payload: []byte{1, 2, 3, 4}}))
	// FILE_END arrives after only 4 of the promised 8 bytes.
	require.NoError(t, client.Send(wire.FileEnd{EntryIndex: 0}))

	msg, err := client.Receive()
	require.NoError(t, err)
	errMsg, ok := msg.(wire.Error)
	require.True(t, ok)
	require.Equal(t, wire.ErrCodeSizeMismatch, errMsg.Code)

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrSizeMismatch)
	case <-time.After(2 * time.Second):
		t.Fatal("handleSession did not return")
	}
}

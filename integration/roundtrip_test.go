// Package integration exercises the sender and receiver engines together
// over a real TCP loopback connection, the same send-then-receive shape as
// the teacher's TestSendReceive, generalized to the new wire protocol.
package integration

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolza/gobyte/plan"
	"github.com/toolza/gobyte/progress"
	"github.com/toolza/gobyte/receiver"
	"github.com/toolza/gobyte/sender"
	"github.com/toolza/gobyte/transport"
)

func TestSendReceiveRoundTrip(t *testing.T) {
	srcDir := t.TempDir()
	saveDir := t.TempDir()

	content := []byte("test content over the wire")
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "hello.txt"), content, 0644))

	opts := plan.DefaultOptions()
	opts.Port = freePort(t)
	opts.SaveDir = saveDir

	bus := progress.NewBus()
	logger := zerolog.Nop()

	recv := receiver.NewEngine(opts, bus, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveErr := make(chan error, 1)
	go func() { serveErr <- recv.Serve(ctx) }()
	time.Sleep(50 * time.Millisecond) // let the listener bind

	send := sender.NewEngine(opts, bus, logger)
	results, err := send.Send(ctx, []string{"127.0.0.1"}, []string{srcDir})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)

	time.Sleep(100 * time.Millisecond) // let FILE_END settle on the receiver side

	// Sending a directory keeps its name as the first path component.
	got, err := os.ReadFile(filepath.Join(saveDir, filepath.Base(srcDir), "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestSendReceiveRoundTripCompressed(t *testing.T) {
	srcDir := t.TempDir()
	saveDir := t.TempDir()

	content := make([]byte, 256*1024)
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "big.bin"), content, 0644))

	opts := plan.DefaultOptions()
	opts.Port = freePort(t)
	opts.SaveDir = saveDir
	opts.Compress = true

	bus := progress.NewBus()
	logger := zerolog.Nop()

	recv := receiver.NewEngine(opts, bus, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go recv.Serve(ctx)
	time.Sleep(50 * time.Millisecond)

	send := sender.NewEngine(opts, bus, logger)
	results, err := send.Send(ctx, []string{"127.0.0.1"}, []string{srcDir})
	require.NoError(t, err)
	assert.NoError(t, results[0].Err)

	time.Sleep(100 * time.Millisecond)

	got, err := os.ReadFile(filepath.Join(saveDir, filepath.Base(srcDir), "big.bin"))
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func freePort(t *testing.T) uint16 {
	t.Helper()

	tr, err := transport.New(transport.TCP, transport.Options{})
	require.NoError(t, err)

	ln, err := tr.Listen(context.Background(), ":0")
	require.NoError(t, err)
	defer ln.Close()

	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)

	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return uint16(port)
}

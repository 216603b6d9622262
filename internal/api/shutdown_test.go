package api

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingPusher holds every push until release is closed.
type blockingPusher struct {
	started chan struct{}
	release chan struct{}
}

func (p *blockingPusher) Push(context.Context, string, string) error {
	close(p.started)
	<-p.release
	return nil
}

func serveInBackground(t *testing.T, srv *Server) (string, context.CancelFunc, <-chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	t.Cleanup(cancel)
	return "http://" + ln.Addr().String(), cancel, done
}

func TestServe_ShutdownWaitsForInFlightRequest(t *testing.T) {
	pusher := &blockingPusher{started: make(chan struct{}), release: make(chan struct{})}
	f := newFixture(t, pusher)
	base, cancel, done := serveInBackground(t, f.server)

	type result struct {
		status int
		err    error
	}
	respCh := make(chan result, 1)
	go func() {
		resp, err := http.Post(base+"/api/line/push", "application/json", strings.NewReader(`{"to":"U1","message":"hi"}`))
		if err != nil {
			respCh <- result{err: err}
			return
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		respCh <- result{status: resp.StatusCode}
	}()

	select {
	case <-pusher.started:
	case <-time.After(2 * time.Second):
		t.Fatal("push never reached the handler")
	}

	cancel()
	select {
	case err := <-done:
		t.Fatalf("Serve returned while a request was in flight: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	close(pusher.release)

	res := <-respCh
	require.NoError(t, res.err)
	assert.Equal(t, http.StatusOK, res.status)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after the request finished")
	}
}

func TestServe_ShutdownEndsEventStreams(t *testing.T) {
	f := newFixture(t, &fakePusher{})
	base, cancel, done := serveInBackground(t, f.server)

	resp, err := http.Get(base + "/api/line/events")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	start := time.Now()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Less(t, time.Since(start), shutdownTimeout, "open stream should not hold shutdown to its timeout")
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("Serve did not return")
	}

	// The stream ends instead of hanging.
	_, err = io.ReadAll(resp.Body)
	assert.NoError(t, err)
}

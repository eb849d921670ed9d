package app

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAppStartAndShutdown(t *testing.T) {
	cfg, err := LoadConfig("", map[string]any{
		"server.address": "127.0.0.1:0",
		"download.dir":   t.TempDir(),
	}, environ())
	require.NoError(t, err)

	application, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Start(ctx) }()

	require.Eventually(t, application.Ready, 5*time.Second, 10*time.Millisecond)
	base := "http://" + application.Addr()

	resp, err := http.Get(base + "/readyz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), "servicecall_tokens 0"), "metrics:\n%s", body)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("app did not stop")
	}
	require.False(t, application.Ready())
}

func TestAppStartFailsOnBusyAddress(t *testing.T) {
	cfg, err := LoadConfig("", map[string]any{"server.address": "127.0.0.1:0"}, environ())
	require.NoError(t, err)

	first, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- first.Start(ctx) }()
	require.Eventually(t, first.Ready, 5*time.Second, 10*time.Millisecond)

	busy := *cfg
	busy.Server.Address = first.Addr()
	second, err := New(&busy)
	require.NoError(t, err)
	require.ErrorContains(t, second.Start(context.Background()), "server startup failed")

	cancel()
	<-done
}

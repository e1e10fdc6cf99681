package plugin

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/harun/browsy/pkg/browsy"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeBrowsy answers health checks and issues one token per new session
type fakeBrowsy struct {
	requests atomic.Int64
	issued   atomic.Int64
}

func (f *fakeBrowsy) start(t *testing.T) int {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		if r.URL.Path == "/health" {
			fmt.Fprint(w, `{"status":"ok"}`)
			return
		}
		session := r.Header.Get(browsy.SessionHeader)
		if session == "" {
			session = fmt.Sprintf("token-%d-abcdefgh", f.issued.Add(1))
		}
		w.Header().Set(browsy.SessionHeader, session)
		fmt.Fprintf(w, "ok %s", r.URL.Path)
	}))
	t.Cleanup(srv.Close)
	return srv.Listener.Addr().(*net.TCPAddr).Port
}

func newTestContext(t *testing.T, port int, mutate func(*browsy.Config)) *browsy.BrowsyContext {
	t.Helper()
	cfg := browsy.DefaultConfig()
	cfg.Port = port
	if mutate != nil {
		mutate(&cfg)
	}
	logger := zerolog.Nop()
	bc, err := browsy.New(cfg, browsy.Options{Logger: &logger})
	require.NoError(t, err)
	t.Cleanup(func() { bc.Close(context.Background()) })
	return bc
}

func unusedPort(t *testing.T) int {
	t.Helper()
	port, err := browsy.FindAvailablePort()
	require.NoError(t, err)
	return port
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/launchplan/internal/config"
	"github.com/fyrsmithlabs/launchplan/internal/llm"
	"github.com/fyrsmithlabs/launchplan/internal/logging"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.LLM.Provider = config.ProviderNoop
	cfg.Device.Path = filepath.Join(t.TempDir(), "device.db")
	cfg.Auth.JWTSecret = config.Secret("test-secret")
	return cfg
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Version:    dev")
}

func TestNewApp_WiresInMemoryStack(t *testing.T) {
	cfg := testConfig(t)

	a, err := newApp(context.Background(), cfg, appOptions{logger: logging.Nop()})
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.pool, "no dsn means memory hosted stores")
	assert.NotNil(t, a.natsServer)
	require.NotNil(t, a.nc)
	assert.True(t, a.nc.IsConnected())

	srv, err := a.httpServer()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"nats":"ok"`)

	// The noop provider fails the overview, which fails the generation.
	body := strings.NewReader(`{"idea":"AI tutoring app"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/plans/generate", body)
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestNewApp_WithoutNATS(t *testing.T) {
	cfg := testConfig(t)
	cfg.NATS.Enabled = false

	a, err := newApp(context.Background(), cfg, appOptions{logger: logging.Nop(), llmClient: llm.Noop{}})
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.nc)
	assert.Nil(t, a.natsServer)
}

func TestNewApp_InvalidDevicePath(t *testing.T) {
	cfg := testConfig(t)
	cfg.Device.Path = ""

	_, err := newApp(context.Background(), cfg, appOptions{logger: logging.Nop()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device store")
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestRunServer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	cfg := testConfig(t)
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = freePort(t)
	cfg.Logging.Level = "error"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- runServer(ctx, cfg)
	}()

	url := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	var health struct {
		Status string `json:"status"`
	}
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK && json.NewDecoder(resp.Body).Decode(&health) == nil
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, "ok", health.Status)

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shutdown in time")
	}
}

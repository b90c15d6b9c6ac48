package cmd

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/fixit/internal/daemon"
)

func TestPidFile_Path(t *testing.T) {
	dir := testEnv(t)

	pf := pidFile()
	expected := filepath.Join(dir, "fixit-serve.pid")
	assert.Equal(t, expected, pf.Path)
}

func TestServeLogPath(t *testing.T) {
	dir := testEnv(t)

	logPath := serveLogPath()
	expected := filepath.Join(dir, "fixit-serve.log")
	assert.Equal(t, expected, logPath)
}

func TestServeStatusRun_NotRunning(t *testing.T) {
	testEnv(t)

	// No PID file exists, so status should show "not running" without error.
	err := serveStatusRun()
	assert.NoError(t, err)
	assert.Contains(t, stdout(), "not running")
}

func TestServeStopRun_NotRunning(t *testing.T) {
	testEnv(t)

	// No PID file exists, so stop should return an error.
	err := serveStopRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not running")
}

func TestServeStartRun_AlreadyRunning(t *testing.T) {
	dir := testEnv(t)

	// Write a PID file for the current process (which is alive).
	pf := daemon.NewPIDFile(filepath.Join(dir, "fixit-serve.pid"))
	require.NoError(t, pf.Write())
	t.Cleanup(func() { _ = os.Remove(pf.Path) })

	err := serveStartRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestServeStartRun_RequiresSecret(t *testing.T) {
	testEnv(t)

	err := serveStartRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")

	_, statErr := os.Stat(pidFile().Path)
	assert.True(t, os.IsNotExist(statErr), "no PID file for a server that never started")
}

func TestNewAPIHandler_RequiresSecret(t *testing.T) {
	testEnv(t)

	_, err := newAPIHandler(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func TestNewAPIHandler_ServesAPI(t *testing.T) {
	testEnv(t)
	resetCommandFlags(t)
	viper.Set("auth.jwt_secret", "test-secret")

	alice := addUser(t, "alice", "user")
	actAs(alice)
	addIssue(t, "Login broken", "Users cannot log in")

	handler, err := newAPIHandler(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/api/v1/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/v1/users/" + alice.ID + "/issues")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Mint a token the way 'fixit token' does and use it.
	ui.Out.(interface{ Reset() }).Reset()
	require.NoError(t, tokenRun(context.Background(), alice.ID))
	token := strings.TrimSpace(stdout())

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/users/"+alice.ID+"/issues", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var issues []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&issues))
	require.Len(t, issues, 1)
	assert.Equal(t, "Login broken", issues[0]["title"])
}

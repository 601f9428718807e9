package e2e_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/biogames-go/internal/cli"
	"github.com/mcoot/biogames-go/internal/dependencies/clock"
	"github.com/mcoot/biogames-go/internal/dependencies/random"
	"github.com/mcoot/biogames-go/internal/model"
	"github.com/mcoot/biogames-go/internal/proxy"
	"github.com/mcoot/biogames-go/internal/server"
	"github.com/mcoot/biogames-go/internal/testutil/fakeapi"
)

// stack is a scoring backend behind a running proxy server
type stack struct {
	api     *fakeapi.Server
	url     string
	workDir string
}

func startStack(t *testing.T) *stack {
	t.Helper()

	api := fakeapi.New(random.New())
	backend := httptest.NewServer(api)
	t.Cleanup(backend.Close)

	buildDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(buildDir, "index.html"), []byte("<html><body>BioGames</body></html>"), 0o644))

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	cfg := proxy.DefaultConfig()
	cfg.BackendURL = backend.URL
	cfg.BuildDir = buildDir
	handler, err := proxy.NewRouter(cfg, clock.New(), logger)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srvCfg := server.DefaultConfig()
	srvCfg.ShutdownTimeout = 5 * time.Second
	srv := server.New(handler, srvCfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	serverURL := "http://" + ln.Addr().String()
	waitForServer(t, serverURL+"/healthz")

	return &stack{api: api, url: serverURL, workDir: t.TempDir()}
}

func waitForServer(t *testing.T, url string) {
	t.Helper()

	client := &http.Client{Timeout: 100 * time.Millisecond}
	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}

	t.Fatal("server did not become ready in time")
}

// run executes the CLI against the proxy's API prefix
func (s *stack) run(t *testing.T, stdin string, args ...string) string {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := cli.NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))

	full := append([]string{
		"--server", s.url + proxy.APIPrefix,
		"--session-file", filepath.Join(s.workDir, "session"),
		"--storage", "file",
		"--data-dir", filepath.Join(s.workDir, "data"),
		"--dwell", "1ms",
		"--output", "json",
	}, args...)
	require.NoError(t, cli.Run(cmd, full), "stderr: %s", stderr.String())
	return stdout.String()
}

func TestStudyThroughProxy(t *testing.T) {
	s := startStack(t)

	// Register and pick a username
	out := s.run(t, "", "register", "carol@mednet.ucla.edu")
	var identity model.Identity
	require.NoError(t, json.NewDecoder(strings.NewReader(out)).Decode(&identity))
	assert.Equal(t, model.PhasePretest, identity.Phase)

	s.run(t, "", "pretest", "--username", "carol")

	// Sit the pre-test through the proxy
	s.run(t, strings.Repeat("1\n", 50), "play")

	// Sign in again
	out = s.run(t, "", "login", string(identity.UserID))
	var login struct {
		Phase    model.Phase            `json:"phase"`
		Progress model.ProgressCounters `json:"progress"`
	}
	require.NoError(t, json.NewDecoder(strings.NewReader(out)).Decode(&login))
	assert.Equal(t, model.PhaseTraining, login.Phase)
	assert.Equal(t, 1, login.Progress.Pretest)

	// Train once
	s.run(t, strings.Repeat("2\n", 20), "play")

	out = s.run(t, "", "status")
	var status struct {
		NextPhase model.Phase `json:"next_phase"`
	}
	require.NoError(t, json.NewDecoder(strings.NewReader(out)).Decode(&status))
	assert.Equal(t, model.PhaseTraining, status.NextPhase)

	// Every API call went through the prefix-stripping proxy
	for _, r := range s.api.Requests() {
		assert.False(t, strings.HasPrefix(r.Path, proxy.APIPrefix), "prefix leaked: %s", r.Path)
	}
	assert.Equal(t, 2, s.api.Count(fakeapi.RouteCreateGame))
}

func TestAppRoutesServeIndex(t *testing.T) {
	s := startStack(t)

	for _, path := range []string{"/", "/menu", "/pretest/game/3", "/games/3/results"} {
		resp, err := http.Get(s.url + path)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Contains(t, string(body), "BioGames", path)
	}
}

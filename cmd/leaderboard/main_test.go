package main

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leaderboardkit/api/httpapi"
	"leaderboardkit/core"
	"leaderboardkit/engine"
	"leaderboardkit/topn"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func newTestAPI(t *testing.T) string {
	t.Helper()
	svc := topn.New(topn.WithDispatchMode(engine.DispatchSync), topn.WithMaxEntries(2))
	srv := httptest.NewServer(httpapi.NewMux(svc, nil, httpapi.Options{PathPrefix: "/api"}))
	t.Cleanup(func() {
		srv.Close()
		_ = svc.Close()
	})
	return srv.URL + "/api"
}

func TestSubmit(t *testing.T) {
	server := newTestAPI(t)

	out, err := execute(t, "submit", "--server", server, "--identity", "a@x.com", "--score", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "committed: 10  a@x.com")
	assert.Contains(t, out, "Top 2 Scores\n10  a@x.com")

	_, err = execute(t, "submit", "--server", server, "--identity", "b@x.com", "--score", "5")
	require.NoError(t, err)

	out, err = execute(t, "submit", "--server", server, "--identity", "c@x.com", "--score", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "did not qualify: 3  c@x.com")
}

func TestSubmitInvalidInput(t *testing.T) {
	server := newTestAPI(t)

	_, err := execute(t, "submit", "--server", server, "--identity", "a@x.com", "--score", "0")
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = execute(t, "submit", "--server", server, "--identity", "a@x.com")
	assert.ErrorContains(t, err, `required flag(s) "score" not set`)
}

func TestSubmitServerDown(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()

	_, err := execute(t, "submit", "--server", url, "--identity", "a@x.com", "--score", "4")
	assert.ErrorIs(t, err, core.ErrTransactionFailed)
}

func TestValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("leaderboard:\n  max_entries: 7\n"), 0o600))

	out, err := execute(t, "validate", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Config is valid!")
	assert.Contains(t, out, "Leaders (top 7)")

	require.NoError(t, os.WriteFile(path, []byte("leaderboard:\n  max_entries: 0\n"), 0o600))
	_, err = execute(t, "validate", "-c", path)
	assert.ErrorContains(t, err, "max_entries must be positive")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "leaderboard dev")
}

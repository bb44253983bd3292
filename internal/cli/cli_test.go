package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Makepad-fr/tada/internal/apperr"
	"github.com/Makepad-fr/tada/internal/auth"
	"github.com/Makepad-fr/tada/internal/model"
)

type result struct {
	code   int
	stdout string
	stderr string
}

// setup writes a config pointing the json backend into a temp dir and
// isolates HOME so auth commands never touch real credentials.
func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv(auth.EnvToken, "")
	t.Setenv(EnvConfig, "")

	cfg := filepath.Join(dir, "config.yaml")
	body := "app:\n  theme: mono\n  log_level: error\nstore:\n  backend: json\n  json:\n    path: " +
		filepath.Join(dir, "todos.json") + "\n"
	require.NoError(t, os.WriteFile(cfg, []byte(body), 0o644))
	return cfg
}

func run(t *testing.T, cfg string, stdin string, args ...string) result {
	t.Helper()
	var out, errb bytes.Buffer
	full := append([]string{"--config", cfg}, args...)
	code := Run(context.Background(), full, strings.NewReader(stdin), &out, &errb)
	return result{code: code, stdout: out.String(), stderr: errb.String()}
}

func listJSON(t *testing.T, cfg string) []model.Todo {
	t.Helper()
	r := run(t, cfg, "", "ls", "--json")
	require.Equal(t, ExitOK, r.code, r.stderr)
	var todos []model.Todo
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &todos))
	return todos
}

func TestAddAndList(t *testing.T) {
	cfg := setup(t)

	r := run(t, cfg, "", "add", "Buy", "milk")
	require.Equal(t, ExitOK, r.code, r.stderr)
	assert.Equal(t, "ok added\n", r.stdout)

	run(t, cfg, "", "add", "Walk the dog")

	todos := listJSON(t, cfg)
	require.Len(t, todos, 2)
	assert.Equal(t, "Buy milk", todos[0].Text)
	assert.Equal(t, "Walk the dog", todos[1].Text)
	assert.False(t, todos[0].Done)

	r = run(t, cfg, "", "ls")
	require.Equal(t, ExitOK, r.code)
	assert.Contains(t, r.stdout, " 1. "+model.NotDoneIcon+" Buy milk")
	assert.Contains(t, r.stdout, " 2. "+model.NotDoneIcon+" Walk the dog")
	assert.Contains(t, r.stdout, "Total 2")
	assert.Contains(t, r.stdout, "0/2")
}

func TestAddBlankIsUsageError(t *testing.T) {
	cfg := setup(t)

	r := run(t, cfg, "", "add", "   ")
	assert.Equal(t, ExitUsage, r.code)
	assert.Contains(t, r.stderr, apperr.ErrEmptyText.Error())

	r = run(t, cfg, "", "add")
	assert.Equal(t, ExitUsage, r.code)
	assert.Empty(t, listJSON(t, cfg))
}

func TestDoneTogglesByIndexAndPrefix(t *testing.T) {
	cfg := setup(t)
	run(t, cfg, "", "add", "first")
	run(t, cfg, "", "add", "second")

	r := run(t, cfg, "", "done", "2")
	require.Equal(t, ExitOK, r.code, r.stderr)
	assert.Equal(t, "ok toggled\n", r.stdout)

	todos := listJSON(t, cfg)
	assert.False(t, todos[0].Done)
	assert.True(t, todos[1].Done)

	r = run(t, cfg, "", "done", todos[1].ID[:8])
	require.Equal(t, ExitOK, r.code, r.stderr)
	assert.False(t, listJSON(t, cfg)[1].Done)
}

func TestBadRefsAreUsageErrors(t *testing.T) {
	cfg := setup(t)
	run(t, cfg, "", "add", "only")

	for _, args := range [][]string{
		{"done", "5"},
		{"done", "0"},
		{"rm", "nope-not-an-id"},
		{"done"},
		{"rm", "1", "2"},
	} {
		r := run(t, cfg, "", args...)
		assert.Equal(t, ExitUsage, r.code, strings.Join(args, " "))
	}

	r := run(t, cfg, "", "done", "5")
	assert.Contains(t, r.stderr, "index out of range: have 1, got 5")
	assert.Contains(t, r.stderr, "todo ls")
	assert.Len(t, listJSON(t, cfg), 1)
}

func TestRemoveAndClear(t *testing.T) {
	cfg := setup(t)
	run(t, cfg, "", "add", "a")
	run(t, cfg, "", "add", "b")
	run(t, cfg, "", "add", "c")

	r := run(t, cfg, "", "rm", "1")
	require.Equal(t, ExitOK, r.code, r.stderr)
	assert.Equal(t, "ok removed\n", r.stdout)

	run(t, cfg, "", "done", "1")
	r = run(t, cfg, "", "clear")
	require.Equal(t, ExitOK, r.code, r.stderr)
	assert.Equal(t, "ok cleared 1\n", r.stdout)

	todos := listJSON(t, cfg)
	require.Len(t, todos, 1)
	assert.Equal(t, "c", todos[0].Text)

	r = run(t, cfg, "", "clear")
	assert.Equal(t, "ok cleared 0\n", r.stdout)
}

func TestGroupedList(t *testing.T) {
	cfg := setup(t)
	run(t, cfg, "", "add", "open task")
	run(t, cfg, "", "add", "closed task")
	run(t, cfg, "", "done", "2")

	r := run(t, cfg, "", "ls", "--group")
	require.Equal(t, ExitOK, r.code)
	pending := strings.Index(r.stdout, "Pending")
	done := strings.Index(r.stdout, "Done")
	require.True(t, pending >= 0 && done > pending, r.stdout)
	assert.Contains(t, r.stdout[done:], " 2. "+model.DoneIcon+" closed task")
}

func TestUnknownCommandAndFlags(t *testing.T) {
	cfg := setup(t)

	assert.Equal(t, ExitUsage, run(t, cfg, "", "frobnicate").code)
	assert.Equal(t, ExitUsage, run(t, cfg, "", "ls", "--nope").code)
	assert.Equal(t, ExitUsage, run(t, cfg, "", "--backend", "floppy", "ls").code)
}

func TestBackendOverride(t *testing.T) {
	cfg := setup(t)
	run(t, cfg, "", "add", "on disk")

	r := run(t, cfg, "", "--backend", "memory", "ls", "--json")
	require.Equal(t, ExitOK, r.code, r.stderr)
	assert.Equal(t, "[]\n", r.stdout)
}

func TestMissingExplicitConfigFails(t *testing.T) {
	setup(t)
	r := run(t, filepath.Join(t.TempDir(), "missing.yaml"), "", "ls")
	assert.Equal(t, ExitError, r.code)
	assert.Contains(t, r.stderr, "failed to read config file")
}

func TestAuthLifecycle(t *testing.T) {
	cfg := setup(t)

	r := run(t, cfg, "", "auth", "status")
	require.Equal(t, ExitOK, r.code)
	assert.Contains(t, r.stdout, "not logged in")

	r = run(t, cfg, "", "auth", "whoami")
	assert.Equal(t, ExitUsage, r.code)

	r = run(t, cfg, "Bearer opaque-token\n", "auth", "login")
	require.Equal(t, ExitOK, r.code, r.stderr)
	assert.Contains(t, r.stdout, "ok logged in")

	r = run(t, cfg, "", "auth", "status")
	assert.Contains(t, r.stdout, "source: file")
	assert.Contains(t, r.stdout, "expires: (unknown)")

	r = run(t, cfg, "", "auth", "whoami")
	require.Equal(t, ExitOK, r.code)
	assert.Contains(t, r.stdout, "Opaque token")

	r = run(t, cfg, "", "auth", "logout")
	require.Equal(t, ExitOK, r.code)
	assert.Contains(t, r.stdout, "ok logged out")
	v, err := auth.DefaultVault()
	require.NoError(t, err)
	c, err := v.Load()
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestLogoutWithEnvToken(t *testing.T) {
	cfg := setup(t)
	t.Setenv(auth.EnvToken, "from-env")

	r := run(t, cfg, "", "auth", "logout")
	require.Equal(t, ExitOK, r.code)
	assert.Contains(t, r.stdout, "nothing to delete")
}

func TestResolveRef(t *testing.T) {
	todos := []model.Todo{
		{ID: "abc123", Text: "one"},
		{ID: "abd456", Text: "two"},
		{ID: "xyz789", Text: "three"},
	}

	got, err := resolveRef(todos, "2")
	require.NoError(t, err)
	assert.Equal(t, "two", got.Text)

	got, err = resolveRef(todos, "xyz789")
	require.NoError(t, err)
	assert.Equal(t, "three", got.Text)

	got, err = resolveRef(todos, "abc")
	require.NoError(t, err)
	assert.Equal(t, "one", got.Text)

	_, err = resolveRef(todos, "ab")
	assert.ErrorIs(t, err, apperr.ErrAmbiguousRef)

	_, err = resolveRef(todos, "4")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = resolveRef(todos, "zzz")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = resolveRef(todos, " ")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

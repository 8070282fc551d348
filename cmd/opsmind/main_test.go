package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func findFlag[T cli.Flag](flags []cli.Flag, name string) T {
	var zero T
	for _, flag := range flags {
		if f, ok := flag.(T); ok {
			for _, n := range flag.Names() {
				if n == name {
					return f
				}
			}
		}
	}
	return zero
}

func findCommand(app *cli.App, name string) *cli.Command {
	for _, cmd := range app.Commands {
		if cmd.Name == name {
			return cmd
		}
	}
	return nil
}

func TestGlobalFlags(t *testing.T) {
	app := newApp(&bytes.Buffer{}, &bytes.Buffer{})

	t.Run("log-level defaults to info", func(t *testing.T) {
		f := findFlag[*cli.StringFlag](app.Flags, "log-level")
		require.NotNil(t, f)
		assert.Equal(t, "info", f.Value)
		assert.Contains(t, f.Aliases, "l")
	})

	t.Run("config reads OPSMIND_CONFIG", func(t *testing.T) {
		f := findFlag[*cli.StringFlag](app.Flags, "config")
		require.NotNil(t, f)
		assert.Equal(t, []string{"OPSMIND_CONFIG"}, f.EnvVars)
	})

	t.Run("api-key reads OPSMIND_API_KEY", func(t *testing.T) {
		f := findFlag[*cli.StringFlag](app.Flags, "api-key")
		require.NotNil(t, f)
		assert.Equal(t, []string{"OPSMIND_API_KEY"}, f.EnvVars)
		assert.Empty(t, f.Value)
	})

	t.Run("invalid log level is rejected", func(t *testing.T) {
		err := app.Run([]string{"opsmind", "--log-level", "loud", "count"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})
}

func TestCommandFlags(t *testing.T) {
	app := newApp(&bytes.Buffer{}, &bytes.Buffer{})

	for _, name := range []string{"serve", "ingest", "ask", "jobs", "count", "purge"} {
		assert.NotNil(t, findCommand(app, name), name)
	}

	ask := findCommand(app, "ask")
	user := findFlag[*cli.StringFlag](ask.Flags, "user")
	require.NotNil(t, user)
	assert.Equal(t, "default", user.Value)

	serve := findCommand(app, "serve")
	assert.NotNil(t, findFlag[*cli.BoolFlag](serve.Flags, "gops"))
	assert.NotNil(t, findFlag[*cli.BoolFlag](serve.Flags, "watch"))
	addr := findFlag[*cli.StringFlag](serve.Flags, "addr")
	require.NotNil(t, addr)
	assert.Empty(t, addr.Value)
}

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "opsmind.yaml")
	content := fmt.Sprintf(`ai:
  provider: mock
storage:
  backend: badger
  path: %s
ingestion:
  embed_interval: 0s
server:
  upload_dir: %s
watcher:
  dir: %s
  settle: 50ms
`, filepath.Join(dir, "data"), filepath.Join(dir, "uploads"), filepath.Join(dir, "inbox"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := newApp(&stdout, &stderr)
	err := app.Run(append([]string{"opsmind", "--log-level", "error"}, args...))
	return stdout.String(), err
}

func TestIngestCountAsk(t *testing.T) {
	cfgPath := writeConfig(t)
	doc := filepath.Join(t.TempDir(), "handbook.txt")
	require.NoError(t, os.WriteFile(doc, []byte("Sick leave: 10 days per year for every employee."), 0o644))

	out, err := run(t, "--config", cfgPath, "ingest", doc)
	require.NoError(t, err)
	assert.Contains(t, out, "1 chunks")

	out, err = run(t, "--config", cfgPath, "count")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)

	out, err = run(t, "--config", cfgPath, "ask", "How many sick days do I get?")
	require.NoError(t, err)
	assert.Contains(t, out, "This is a mock answer.")
	assert.Contains(t, out, "Sources:")
	assert.Contains(t, out, "handbook.txt")

	out, err = run(t, "--config", cfgPath, "purge", "--all")
	require.NoError(t, err)
	assert.Equal(t, "deleted 1 chunks\n", out)
}

func TestIngestQueue(t *testing.T) {
	cfgPath := writeConfig(t)
	doc := filepath.Join(t.TempDir(), "notes.md")
	require.NoError(t, os.WriteFile(doc, []byte("# Notes\n\nRemote work is allowed on Fridays."), 0o644))

	out, err := run(t, "--config", cfgPath, "ingest", "--queue", doc)
	require.NoError(t, err)
	assert.Contains(t, out, "queued as")

	out, err = run(t, "--config", cfgPath, "jobs", "--state", "waiting")
	require.NoError(t, err)
	assert.Contains(t, out, "notes.md")
	assert.Contains(t, out, "0/3")
}

func TestCommandErrors(t *testing.T) {
	cfgPath := writeConfig(t)

	_, err := run(t, "--config", cfgPath, "ask")
	assert.ErrorContains(t, err, "question is required")

	_, err = run(t, "--config", cfgPath, "ingest")
	assert.ErrorContains(t, err, "at least one file")

	_, err = run(t, "--config", cfgPath, "purge")
	assert.ErrorContains(t, err, "--source or --all")

	_, err = run(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "count")
	assert.ErrorContains(t, err, "reading config")
}

func runServe(t *testing.T, ctx context.Context, args ...string) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		app := newApp(&bytes.Buffer{}, &bytes.Buffer{})
		done <- app.RunContext(ctx, append([]string{"opsmind", "--log-level", "error"}, args...))
	}()
	return done
}

func waitServe(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not return")
		return nil
	}
}

func TestServeStopsWhenCancelled(t *testing.T) {
	cfgPath := writeConfig(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := runServe(t, ctx, "--config", cfgPath, "serve", "--addr", "127.0.0.1:0", "--watch")
	time.Sleep(200 * time.Millisecond)
	cancel()

	assert.NoError(t, waitServe(t, done))
}

func TestServeReturnsListenError(t *testing.T) {
	cfgPath := writeConfig(t)

	// The queue worker and watcher must stop once the listener fails.
	done := runServe(t, context.Background(), "--config", cfgPath, "serve", "--addr", "127.0.0.1:99999", "--watch")

	err := waitServe(t, done)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "99999")
}

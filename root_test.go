package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshcp/sshcp/internal/config"
)

// Global flag reset pattern: newRootCmd() binds flags with StringVar and
// BoolVar, which reset the globals to their defaults. Tests that need
// particular flag values pass them through SetArgs and Execute.

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))

	return len(p), nil
}

// testCLIContext resolves content (may be empty) as a config file and
// wraps it the way the root pre-run would.
func testCLIContext(t *testing.T, content string) *CLIContext {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	if content != "" {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}

	resolved, err := config.Resolve(config.EnvOverrides{ConfigPath: path}, config.CLIOverrides{})
	require.NoError(t, err)

	return &CLIContext{Cfg: resolved, Logger: testLogger(t), Flags: CLIFlags{Quiet: true}}
}

// runCLI executes the root command against the config file at path with
// output suppressed.
func runCLI(t *testing.T, path string, args ...string) error {
	t.Helper()

	t.Setenv(config.EnvHost, "")
	t.Setenv(config.EnvConfig, "")

	cmd := newRootCmd()
	cmd.SetArgs(append([]string{"--config", path, "--quiet"}, args...))

	return cmd.Execute()
}

func TestBuildLogger_Levels(t *testing.T) {
	tests := []struct {
		name  string
		level string
		flags CLIFlags
		want  slog.Level
	}{
		{"default info", "info", CLIFlags{}, slog.LevelInfo},
		{"config debug", "debug", CLIFlags{}, slog.LevelDebug},
		{"config warn", "warn", CLIFlags{}, slog.LevelWarn},
		{"config error", "error", CLIFlags{}, slog.LevelError},
		{"verbose beats config", "error", CLIFlags{Verbose: true}, slog.LevelDebug},
		{"quiet beats verbose", "info", CLIFlags{Verbose: true, Quiet: true}, slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := buildLogger(&bytes.Buffer{}, config.LoggingConfig{LogLevel: tt.level, LogFormat: "text"}, tt.flags)

			ctx := context.Background()
			assert.True(t, logger.Enabled(ctx, tt.want))

			if tt.want > slog.LevelDebug {
				assert.False(t, logger.Enabled(ctx, tt.want-1))
			}
		})
	}
}

func TestBuildLogger_Formats(t *testing.T) {
	var buf bytes.Buffer

	logger := buildLogger(&buf, config.LoggingConfig{LogLevel: "info", LogFormat: "json"}, CLIFlags{})
	logger.Info("hello", slog.String("path", "a.txt"))
	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"path":"a.txt"`)

	buf.Reset()

	logger = buildLogger(&buf, config.LoggingConfig{LogLevel: "info", LogFormat: "auto"}, CLIFlags{})
	logger.Info("hello", slog.String("path", "a.txt"))
	assert.Contains(t, buf.String(), "msg=hello", "auto falls back to text off a terminal")
	assert.Contains(t, buf.String(), "path=a.txt")
}

func TestIsTerminal_NonFile(t *testing.T) {
	assert.False(t, isTerminal(&bytes.Buffer{}))
}

func TestRootCmd_RegistersCommands(t *testing.T) {
	cmd := newRootCmd()

	for _, name := range []string{"watch", "push", "pull", "sync", "host", "bookmark", "conflicts"} {
		found, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, found.Name())
	}
}

func TestRootCmd_InvalidConfigFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[watch]\npoll_interval = \"never\"\n"), 0o600))

	err := runCLI(t, path, "host", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}

func TestRootCmd_CommandsNeedHost(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	err := runCLI(t, path, "push", "a", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no remote host configured")
}

func TestMustCLIContext_Panics(t *testing.T) {
	assert.Panics(t, func() { mustCLIContext(context.Background()) })

	cc := &CLIContext{}
	assert.Same(t, cc, mustCLIContext(withCLIContext(context.Background(), cc)))
}

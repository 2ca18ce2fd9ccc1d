package main

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/poiesic/ragline/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func testApp() *cli.App {
	app := newApp()
	app.Writer = io.Discard
	app.ErrWriter = io.Discard
	return app
}

func TestNewApp_Commands(t *testing.T) {
	app := newApp()
	for _, name := range []string{"serve", "upload", "ingest", "search", "ask", "recover", "reembed"} {
		assert.NotNil(t, app.Command(name), name)
	}
}

func TestRequiredFlags(t *testing.T) {
	t.Run("upload needs an owner", func(t *testing.T) {
		err := testApp().Run([]string{"ragline", "upload", "notes.txt"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "owner")
	})

	t.Run("search needs an owner", func(t *testing.T) {
		err := testApp().Run([]string{"ragline", "search", "vacation"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "owner")
	})
}

func TestArgumentValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"upload without file", []string{"upload", "--owner", "alice"}, "file argument is required"},
		{"ingest without id", []string{"ingest"}, "invalid document id"},
		{"ingest with bad id", []string{"ingest", "abc"}, "invalid document id"},
		{"search without query", []string{"search", "--owner", "alice"}, "query argument is required"},
		{"ask without question", []string{"ask"}, "question argument is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := testApp().Run(append([]string{"ragline"}, tt.args...))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReembedCommandValidation(t *testing.T) {
	tests := []struct {
		flag string
		want string
	}{
		{"--batch-size=0", "batch-size must be greater than 0"},
		{"--report-interval=0", "report-interval must be greater than 0"},
		{"--max-retries=0", "max-retries must be greater than 0"},
	}
	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			err := testApp().Run([]string{"ragline", "reembed", tt.flag})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseID(t *testing.T) {
	id, err := parseID("42")
	require.NoError(t, err)
	assert.Equal(t, core.ID(42), id)

	for _, raw := range []string{"", "0", "-1", "x"} {
		_, err := parseID(raw)
		assert.Error(t, err, raw)
	}
}

func TestOneLine(t *testing.T) {
	assert.Equal(t, "a b c", oneLine("a\n  b\tc", 10))
	assert.Equal(t, "abc...", oneLine("abcdef", 3))
}

func TestSetupLogger(t *testing.T) {
	t.Run("valid log levels", func(t *testing.T) {
		testCases := []struct {
			input    string
			expected slog.Level
		}{
			{"debug", slog.LevelDebug},
			{"info", slog.LevelInfo},
			{"warn", slog.LevelWarn},
			{"error", slog.LevelError},
		}

		for _, tc := range testCases {
			t.Run(tc.input, func(t *testing.T) {
				app := &cli.App{
					Name: "test",
					Flags: []cli.Flag{
						&cli.StringFlag{
							Name:  "log-level",
							Value: tc.input,
						},
					},
					Before: setupLogger,
					Action: func(c *cli.Context) error {
						assert.True(t, slog.Default().Enabled(c.Context, tc.expected))
						assert.False(t, slog.Default().Enabled(c.Context, tc.expected-1))
						return nil
					},
				}

				err := app.Run([]string{"test", "--log-level", tc.input})
				require.NoError(t, err)
			})
		}
	})

	t.Run("case insensitive log levels", func(t *testing.T) {
		for _, tc := range []string{"DEBUG", "Info", "WaRn", "ERROR"} {
			t.Run(tc, func(t *testing.T) {
				require.NoError(t, installLogger(tc))
			})
		}
	})

	t.Run("invalid log level returns error", func(t *testing.T) {
		err := testApp().Run([]string{"ragline", "--log-level", "invalid", "recover"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("log-level flag has alias -l", func(t *testing.T) {
		app := testApp()
		app.Commands = nil
		app.Action = func(c *cli.Context) error {
			assert.Equal(t, "debug", c.String("log-level"))
			return nil
		}
		require.NoError(t, app.Run([]string{"ragline", "-l", "debug"}))
	})
}

func TestMain(m *testing.M) {
	code := m.Run()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	os.Exit(code)
}

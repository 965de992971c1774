package config

import (
	"encoding/hex"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLogLevel(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected slog.Level
	}{
		{"debug lower", "debug", slog.LevelDebug},
		{"debug upper", "DEBUG", slog.LevelDebug},
		{"info lower", "info", slog.LevelInfo},
		{"info upper", "INFO", slog.LevelInfo},
		{"warn lower", "warn", slog.LevelWarn},
		{"warn upper", "WARN", slog.LevelWarn},
		{"warning lower", "warning", slog.LevelWarn},
		{"warning upper", "WARNING", slog.LevelWarn},
		{"error lower", "error", slog.LevelError},
		{"error upper", "ERROR", slog.LevelError},
		{"invalid", "invalid", slog.LevelInfo},
		{"empty", "", slog.LevelInfo},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			level := getLogLevel(tc.input)
			assert.Equal(t, tc.expected, level)
		})
	}
}

func TestGenerateRandomToken(t *testing.T) {
	cases := []struct {
		name   string
		bytes  int
		length int
	}{
		{"zero length", 0, 0},
		{"one byte", 1, 2},
		{"eight bytes", 8, 16},
		{"sixteen bytes", 16, 32},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			token := generateRandomToken(c.bytes)
			assert.Equal(t, c.length, len(token))
			_, err := hex.DecodeString(token)
			assert.NoError(t, err, "token should be valid hex")
		})
	}

	t.Run("generates different tokens", func(t *testing.T) {
		t1 := generateRandomToken(16)
		t2 := generateRandomToken(16)
		assert.NotEqual(t, t1, t2)
	})
}

func TestParseCfg_TableDriven(t *testing.T) {
	knownEnv := []string{"ADDR", "LOG_LEVEL", "TOKEN", "CONFIG_FILE"}

	type expectations struct {
		addr     string
		logLevel slog.Level
		token    string
		autoGen  bool
	}

	cases := []struct {
		name   string
		setEnv map[string]string
		args   []string
		exp    expectations
	}{
		{
			name:   "defaults without flags or env",
			setEnv: nil,
			args:   []string{"test"},
			exp: expectations{
				addr:     ":9757",
				logLevel: slog.LevelInfo,
				token:    "non-empty",
				autoGen:  true,
			},
		},
		{
			name:   "env token only",
			setEnv: map[string]string{"TOKEN": "env-token"},
			args:   []string{"test"},
			exp: expectations{
				addr:     ":9757",
				logLevel: slog.LevelInfo,
				token:    "env-token",
				autoGen:  false,
			},
		},
		{
			name:   "env addr and level",
			setEnv: map[string]string{"ADDR": ":9090", "LOG_LEVEL": "DEBUG", "TOKEN": "env-token"},
			args:   []string{"test"},
			exp: expectations{
				addr:     ":9090",
				logLevel: slog.LevelDebug,
				token:    "env-token",
				autoGen:  false,
			},
		},
		{
			name:   "flags override defaults",
			setEnv: nil,
			args:   []string{"test", "-addr=:8081", "-log_level=WARN", "-token=flag-token"},
			exp: expectations{
				addr:     ":8081",
				logLevel: slog.LevelWarn,
				token:    "flag-token",
				autoGen:  false,
			},
		},
		{
			name:   "flags override env (priority)",
			setEnv: map[string]string{"ADDR": ":9090", "LOG_LEVEL": "DEBUG", "TOKEN": "env-token"},
			args:   []string{"test", "-addr=:8081", "-log_level=ERROR", "-token=flag-token"},
			exp: expectations{
				addr:     ":8081",
				logLevel: slog.LevelError,
				token:    "flag-token",
				autoGen:  false,
			},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			resetFlags := func() { flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError) }
			clearEnv := func() {
				for _, k := range knownEnv {
					os.Unsetenv(k)
				}
			}

			defer func(oldArgs []string) { os.Args = oldArgs }(os.Args)
			resetFlags()
			clearEnv()

			for k, v := range c.setEnv {
				os.Setenv(k, v)
			}
			defer clearEnv()

			os.Args = c.args

			cfg := ParseCfg()

			assert.Equal(t, c.exp.addr, cfg.Addr, "addr")
			assert.Equal(t, c.exp.logLevel, cfg.LogLevel, "log level")

			if c.exp.token == "non-empty" {
				assert.NotEmpty(t, cfg.Token)
				assert.Equal(t, 32, len(cfg.Token))
				_, err := hex.DecodeString(cfg.Token)
				assert.NoError(t, err)
			} else {
				assert.Equal(t, c.exp.token, cfg.Token)
			}

			assert.Equal(t, c.exp.autoGen, cfg.TokenAutoGenerated, "token auto-generation flag")
		})
	}

	t.Run("auto-generated tokens differ across parses", func(t *testing.T) {
		defer func(oldArgs []string) { os.Args = oldArgs }(os.Args)
		for _, k := range knownEnv {
			os.Unsetenv(k)
		}

		flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)
		os.Args = []string{"test"}
		cfg1 := ParseCfg()

		flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)
		os.Args = []string{"test"}
		cfg2 := ParseCfg()

		require.NotEmpty(t, cfg1.Token)
		require.NotEmpty(t, cfg2.Token)
		assert.True(t, cfg1.TokenAutoGenerated)
		assert.True(t, cfg2.TokenAutoGenerated)
		assert.NotEqual(t, cfg1.Token, cfg2.Token)
	})
}

func TestParseCfgConfigFile(t *testing.T) {
	for _, k := range []string{"ADDR", "LOG_LEVEL", "TOKEN", "CONFIG_FILE"} {
		os.Unsetenv(k)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "console.yaml")
	data := `
addr: ":7700"
log_level: debug
token: file-token
console:
  name_template: "mc_%s"
  teardown_policy: lazy
  grace_period: 45s
  replay_limit: 50
history:
  backend: memory
  memory_limit: 200
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	defer func(oldArgs []string) { os.Args = oldArgs }(os.Args)
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	os.Args = []string{"test", "-config=" + path}

	cfg := ParseCfg()

	assert.Equal(t, ":7700", cfg.Addr)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "file-token", cfg.Token)
	assert.False(t, cfg.TokenAutoGenerated)
	assert.Equal(t, "mc_%s", cfg.Console.NameTemplate)
	assert.Equal(t, "lazy", cfg.Console.TeardownPolicy)
	assert.Equal(t, 45*time.Second, cfg.Console.GracePeriod.Std())
	assert.Equal(t, 50, cfg.Console.ReplayLimit)
	assert.Equal(t, "memory", cfg.History.Backend)
	assert.Equal(t, 200, cfg.History.MemoryLimit)

	// File values untouched by env or flags keep their defaults.
	assert.Equal(t, "/minecraft/stdin", cfg.Console.InputPath)
	assert.Equal(t, 100, cfg.Console.TailLines)
	assert.NoError(t, cfg.Console.SessionOptionsValid())
}

func TestSessionOptionsValid(t *testing.T) {
	c := ConsoleConfig{TeardownPolicy: "sideways"}
	assert.Error(t, c.SessionOptionsValid())
}

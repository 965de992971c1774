// Package config assembles the service configuration from flags,
// environment variables and an optional YAML file. Flags win over
// environment, environment wins over the file, the file wins over
// built-in defaults.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for flag and file values.
const (
	DefaultAddr          = ":9757"
	DefaultHistoryDBPath = "/var/lib/console/history.db"

	tokenBytes = 16
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "2m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ConsoleConfig tunes session streaming behavior. File-only; no flag
// or env overrides.
type ConsoleConfig struct {
	// NameTemplate maps a server ID to its container name. Must
	// contain one %s verb.
	NameTemplate string `yaml:"name_template"`

	// InputPath is the in-container file the game process reads
	// commands from.
	InputPath string `yaml:"input_path"`

	// TeardownPolicy is "eager" or "lazy".
	TeardownPolicy string   `yaml:"teardown_policy"`
	GracePeriod    Duration `yaml:"grace_period"`
	DrainTimeout   Duration `yaml:"drain_timeout"`

	ReplayLimit   int `yaml:"replay_limit"`
	TailLines     int `yaml:"tail_lines"`
	ObserverQueue int `yaml:"observer_queue"`
	PersistQueue  int `yaml:"persist_queue"`

	ResolveTimeout Duration `yaml:"resolve_timeout"`
	StatsInterval  Duration `yaml:"stats_interval"`
}

// HistoryConfig selects the history store backend.
type HistoryConfig struct {
	// Backend is "sqlite" or "memory".
	Backend string `yaml:"backend"`
	DBPath  string `yaml:"db_path"`

	// MemoryLimit bounds per-server lines for the memory backend.
	MemoryLimit int `yaml:"memory_limit"`
}

// Config is the full service configuration.
type Config struct {
	Addr     string        `yaml:"addr"`
	LogLevel slog.Level    `yaml:"-"`
	Console  ConsoleConfig `yaml:"console"`
	History  HistoryConfig `yaml:"history"`

	// Token authenticates HTTP and WebSocket clients. Auto-generated
	// when neither flag, env nor file supplies one.
	Token              string `yaml:"token"`
	TokenAutoGenerated bool   `yaml:"-"`

	// LogLevelName is the file-side spelling of LogLevel.
	LogLevelName string `yaml:"log_level"`
}

func defaults() Config {
	return Config{
		Addr: DefaultAddr,
		Console: ConsoleConfig{
			NameTemplate:   "minecraft_server_%s",
			InputPath:      "/minecraft/stdin",
			TeardownPolicy: "eager",
			GracePeriod:    Duration(30 * time.Second),
			DrainTimeout:   Duration(5 * time.Second),
			ReplayLimit:    100,
			TailLines:      100,
			ObserverQueue:  256,
			PersistQueue:   1024,
			ResolveTimeout: Duration(5 * time.Second),
			StatsInterval:  Duration(2 * time.Second),
		},
		History: HistoryConfig{
			Backend:     "sqlite",
			DBPath:      DefaultHistoryDBPath,
			MemoryLimit: 1000,
		},
	}
}

// ParseCfg builds the configuration from command-line flags and the
// environment. A -config flag (or CONFIG_FILE env) loads a YAML file
// first; explicit flags then override it.
func ParseCfg() *Config {
	addrFlag := flag.String("addr", "", "listen address")
	logLevelFlag := flag.String("log_level", "", "log level: DEBUG, INFO, WARN, ERROR")
	tokenFlag := flag.String("token", "", "access token; generated when empty")
	configFlag := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg := defaults()

	path := *configFlag
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if err := loadFile(&cfg, path); err != nil {
			slog.Warn("config file not loaded", slog.String("path", path), slog.String("error", err.Error()))
		}
	}

	addr := firstNonEmpty(*addrFlag, os.Getenv("ADDR"))
	if addr != "" {
		cfg.Addr = addr
	}

	levelName := firstNonEmpty(*logLevelFlag, os.Getenv("LOG_LEVEL"), cfg.LogLevelName)
	cfg.LogLevel = getLogLevel(levelName)

	cfg.Token = firstNonEmpty(*tokenFlag, os.Getenv("TOKEN"), cfg.Token)
	if cfg.Token == "" {
		cfg.Token = generateRandomToken(tokenBytes)
		cfg.TokenAutoGenerated = true
	}

	return &cfg
}

// SessionOptionsValid reports whether the teardown policy names a
// known mode.
func (c *ConsoleConfig) SessionOptionsValid() error {
	switch c.TeardownPolicy {
	case "eager", "lazy", "":
		return nil
	default:
		return fmt.Errorf("unknown teardown policy %q", c.TeardownPolicy)
	}
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func getLogLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func generateRandomToken(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("generate token: %v", err))
	}
	return hex.EncodeToString(b)
}

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/nicebartender/npcbridge/bridge"
	"github.com/nicebartender/npcbridge/gemini"
)

const (
	minTimeout = 10 * time.Second
	maxTimeout = 15 * time.Second
)

type Config struct {
	ListenAddr    string        `yaml:"addr"`
	APIKey        string        `yaml:"api_key"`
	APIKeyParam   string        `yaml:"api_key_param"`
	Backend       string        `yaml:"backend"`
	Model         string        `yaml:"model"`
	BaseURL       string        `yaml:"base_url"`
	Timeout       time.Duration `yaml:"timeout"`
	HistoryTurns  int           `yaml:"history"`
	Characters    []string      `yaml:"characters"`
	IgnoreSenders []string      `yaml:"ignore_senders"`
	Subscriptions []string      `yaml:"subscribe"`
	DBPath        string        `yaml:"db"`
	LogLevel      string        `yaml:"log_level"`
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:    ":8080",
		Backend:       "rest",
		Model:         gemini.DefaultModel,
		BaseURL:       gemini.DefaultBaseURL,
		Timeout:       gemini.DefaultTimeout,
		HistoryTurns:  bridge.DefaultHistoryTurns,
		IgnoreSenders: append([]string(nil), bridge.DefaultIgnoreSenders...),
		Subscriptions: []string{"PlayerMessage"},
		LogLevel:      "info",
	}
}

// flagValues holds the parsed command line; only flags the user set are
// applied over the file and environment.
type flagValues struct {
	configPath    string
	addr          string
	apiKeyParam   string
	backend       string
	model         string
	baseURL       string
	timeout       time.Duration
	history       int
	characters    []string
	ignoreSenders []string
	subscriptions []string
	dbPath        string
	logLevel      string
}

func bindFlags(fs *pflag.FlagSet) *flagValues {
	d := DefaultConfig()
	fv := &flagValues{}
	fs.StringVarP(&fv.configPath, "config", "c", "", "path to a YAML config file")
	fs.StringVar(&fv.addr, "addr", d.ListenAddr, "listen address")
	fs.StringVar(&fv.apiKeyParam, "api-key-param", "", "SSM parameter holding the Gemini API key")
	fs.StringVar(&fv.backend, "backend", d.Backend, "completion backend: rest or sdk")
	fs.StringVar(&fv.model, "model", d.Model, "Gemini model name")
	fs.StringVar(&fv.baseURL, "base-url", d.BaseURL, "Gemini API base URL (rest backend)")
	fs.DurationVar(&fv.timeout, "timeout", d.Timeout, "completion deadline, clamped to 10s-15s")
	fs.IntVar(&fv.history, "history", d.HistoryTurns, "prior turns included in each prompt")
	fs.StringSliceVar(&fv.characters, "character", nil, "only answer these character names (repeatable)")
	fs.StringSliceVar(&fv.ignoreSenders, "ignore-sender", d.IgnoreSenders, "senders whose events are dropped")
	fs.StringSliceVar(&fv.subscriptions, "subscribe", d.Subscriptions, "events requested from each game client")
	fs.StringVar(&fv.dbPath, "db", "", "SQLite exchange log path (empty disables it)")
	fs.StringVar(&fv.logLevel, "log-level", d.LogLevel, "debug, info, warn or error")
	return fv
}

// loadConfig layers defaults, the optional file, the environment and the
// explicitly set flags, in that order.
func loadConfig(fs *pflag.FlagSet, fv *flagValues, getenv func(string) string) (Config, error) {
	cfg := DefaultConfig()

	path := fv.configPath
	if path == "" {
		path = getenv("BRIDGE_CONFIG")
	}
	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return cfg, err
		}
	}
	if err := applyEnv(&cfg, getenv); err != nil {
		return cfg, err
	}
	applyFlags(&cfg, fs, fv)

	if err := cfg.normalize(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	if port := getenv("PORT"); port != "" {
		cfg.ListenAddr = ":" + port
	}
	setString(&cfg.ListenAddr, getenv("BRIDGE_ADDR"))
	setString(&cfg.APIKey, getenv("GEMINI_API_KEY"))
	setString(&cfg.APIKeyParam, getenv("GEMINI_API_KEY_PARAM"))
	setString(&cfg.Backend, getenv("BRIDGE_BACKEND"))
	setString(&cfg.Model, getenv("GEMINI_MODEL"))
	setString(&cfg.BaseURL, getenv("GEMINI_BASE_URL"))
	setString(&cfg.DBPath, getenv("BRIDGE_DB"))
	setString(&cfg.LogLevel, getenv("BRIDGE_LOG_LEVEL"))
	setList(&cfg.Characters, getenv("BRIDGE_CHARACTERS"))
	setList(&cfg.IgnoreSenders, getenv("BRIDGE_IGNORE_SENDERS"))
	setList(&cfg.Subscriptions, getenv("BRIDGE_SUBSCRIBE"))

	if v := getenv("BRIDGE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: BRIDGE_TIMEOUT: %w", err)
		}
		cfg.Timeout = d
	}
	if v := getenv("BRIDGE_HISTORY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: BRIDGE_HISTORY: %w", err)
		}
		cfg.HistoryTurns = n
	}
	return nil
}

func applyFlags(cfg *Config, fs *pflag.FlagSet, fv *flagValues) {
	if fs.Changed("addr") {
		cfg.ListenAddr = fv.addr
	}
	if fs.Changed("api-key-param") {
		cfg.APIKeyParam = fv.apiKeyParam
	}
	if fs.Changed("backend") {
		cfg.Backend = fv.backend
	}
	if fs.Changed("model") {
		cfg.Model = fv.model
	}
	if fs.Changed("base-url") {
		cfg.BaseURL = fv.baseURL
	}
	if fs.Changed("timeout") {
		cfg.Timeout = fv.timeout
	}
	if fs.Changed("history") {
		cfg.HistoryTurns = fv.history
	}
	if fs.Changed("character") {
		cfg.Characters = fv.characters
	}
	if fs.Changed("ignore-sender") {
		cfg.IgnoreSenders = fv.ignoreSenders
	}
	if fs.Changed("subscribe") {
		cfg.Subscriptions = fv.subscriptions
	}
	if fs.Changed("db") {
		cfg.DBPath = fv.dbPath
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = fv.logLevel
	}
}

func (c *Config) normalize() error {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if c.Backend != "rest" && c.Backend != "sdk" {
		return fmt.Errorf("config: unknown backend %q (want rest or sdk)", c.Backend)
	}
	if c.HistoryTurns < 0 {
		return errors.New("config: history must not be negative")
	}
	if _, err := c.slogLevel(); err != nil {
		return err
	}
	if c.Timeout < minTimeout {
		c.Timeout = minTimeout
	}
	if c.Timeout > maxTimeout {
		c.Timeout = maxTimeout
	}
	if strings.TrimSpace(c.APIKey) == "" && strings.TrimSpace(c.APIKeyParam) == "" {
		return errors.New("config: GEMINI_API_KEY or an api key parameter is required")
	}
	if len(c.Subscriptions) == 0 {
		c.Subscriptions = []string{"PlayerMessage"}
	}
	return nil
}

func (c Config) slogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, v string) {
	if strings.TrimSpace(v) == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

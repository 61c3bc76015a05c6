// Package config loads minigraph server settings from an optional YAML
// file and MINIGRAPH_* environment variables, in that order of precedence
// (environment wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v2"

	"github.com/dshills/minigraph/graph"
)

const (
	defaultHTTPAddr        = ":8080"
	defaultShutdownTimeout = 10 * time.Second
	defaultRequestTimeout  = 60 * time.Second
	defaultLogLevel        = "info"
	defaultLogFormat       = "text"
	defaultStoreDriver     = "memory"
	defaultServiceName     = "minigraph"
	defaultHTTPToolTimeout = 10 * time.Second
)

// Config is the complete server configuration.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Log     LogConfig     `yaml:"log"`
	Engine  EngineConfig  `yaml:"engine"`
	Store   StoreConfig   `yaml:"store"`
	Tracing TracingConfig `yaml:"tracing"`
	LLM     LLMConfig     `yaml:"llm"`
	Tools   ToolsConfig   `yaml:"tools"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr            string   `yaml:"addr"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	RequestTimeout  Duration `yaml:"request_timeout"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text (tint) or json
}

// EngineConfig maps onto graph engine options.
type EngineConfig struct {
	MaxSteps    int      `yaml:"max_steps"`
	ToolTimeout Duration `yaml:"tool_timeout"`
	MissingNode string   `yaml:"missing_node"` // complete or fail
}

// StoreConfig selects the step journal. Driver "memory" keeps it in
// process; "sqlite" and "mysql" need a DSN.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// TracingConfig enables the OpenTelemetry event emitter.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// LLMConfig enables the model-backed suggestion tool. The API key is read
// from the environment variable named by APIKeyEnv, never from the file.
type LLMConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// Enabled reports whether a provider is configured.
func (c LLMConfig) Enabled() bool { return c.Provider != "" }

// APIKey returns the provider key from the environment.
func (c LLMConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// ToolsConfig enables optional tools.
type ToolsConfig struct {
	HTTP HTTPToolConfig `yaml:"http"`
}

// HTTPToolConfig controls the http_request tool. It is off by default:
// when on, any API client can make the server issue requests.
type HTTPToolConfig struct {
	Enabled bool     `yaml:"enabled"`
	Timeout Duration `yaml:"timeout"`
	// AllowedHosts, when non-empty, is the only set of hosts requests and
	// redirects may reach.
	AllowedHosts []string `yaml:"allowed_hosts"`
}

// Duration is a time.Duration read from YAML as a Go duration string
// ("1.5s", "2m") or as integer seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case int:
		*d = Duration(time.Duration(v) * time.Second)
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration %v", raw)
	}
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:            defaultHTTPAddr,
			ShutdownTimeout: Duration(defaultShutdownTimeout),
			RequestTimeout:  Duration(defaultRequestTimeout),
		},
		Log:     LogConfig{Level: defaultLogLevel, Format: defaultLogFormat},
		Engine:  EngineConfig{MaxSteps: graph.DefaultMaxSteps, MissingNode: graph.MissingNodeComplete.String()},
		Store:   StoreConfig{Driver: defaultStoreDriver},
		Tracing: TracingConfig{ServiceName: defaultServiceName},
		Tools:   ToolsConfig{HTTP: HTTPToolConfig{Timeout: Duration(defaultHTTPToolTimeout)}},
	}
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	env := envReader{lookup: lookup}

	env.str("MINIGRAPH_HTTP_ADDR", &cfg.HTTP.Addr)
	env.duration("MINIGRAPH_SHUTDOWN_TIMEOUT", &cfg.HTTP.ShutdownTimeout)
	env.duration("MINIGRAPH_REQUEST_TIMEOUT", &cfg.HTTP.RequestTimeout)
	env.str("MINIGRAPH_LOG_LEVEL", &cfg.Log.Level)
	env.str("MINIGRAPH_LOG_FORMAT", &cfg.Log.Format)
	env.integer("MINIGRAPH_MAX_STEPS", &cfg.Engine.MaxSteps)
	env.duration("MINIGRAPH_TOOL_TIMEOUT", &cfg.Engine.ToolTimeout)
	env.str("MINIGRAPH_MISSING_NODE", &cfg.Engine.MissingNode)
	env.str("MINIGRAPH_STORE_DRIVER", &cfg.Store.Driver)
	env.str("MINIGRAPH_STORE_DSN", &cfg.Store.DSN)
	env.boolean("MINIGRAPH_TRACING_ENABLED", &cfg.Tracing.Enabled)
	env.str("MINIGRAPH_LLM_PROVIDER", &cfg.LLM.Provider)
	env.str("MINIGRAPH_LLM_MODEL", &cfg.LLM.Model)
	env.str("MINIGRAPH_LLM_API_KEY_ENV", &cfg.LLM.APIKeyEnv)
	env.boolean("MINIGRAPH_HTTP_TOOL_ENABLED", &cfg.Tools.HTTP.Enabled)
	env.duration("MINIGRAPH_HTTP_TOOL_TIMEOUT", &cfg.Tools.HTTP.Timeout)
	env.list("MINIGRAPH_HTTP_TOOL_ALLOWED_HOSTS", &cfg.Tools.HTTP.AllowedHosts)

	return errors.Join(env.errs...)
}

// envReader collects parse errors so every bad variable is reported at once.
type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *envReader) get(key string) (string, bool) {
	v, ok := r.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := r.get(key); ok {
		*dst = v
	}
}

func (r *envReader) integer(key string, dst *int) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be an integer: %w", key, err))
		return
	}
	*dst = n
}

func (r *envReader) boolean(key string, dst *bool) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be a boolean: %w", key, err))
		return
	}
	*dst = b
}

// list splits a comma-separated value, dropping empty items.
func (r *envReader) list(key string, dst *[]string) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	var items []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	*dst = items
}

// duration accepts Go duration strings or plain integer seconds.
func (r *envReader) duration(key string, dst *Duration) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	if secs, err := strconv.Atoi(v); err == nil {
		*dst = Duration(time.Duration(secs) * time.Second)
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be a duration: %w", key, err))
		return
	}
	*dst = Duration(d)
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error

	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.HTTP.ShutdownTimeout < 0 || c.HTTP.RequestTimeout < 0 {
		errs = append(errs, errors.New("http timeouts must not be negative"))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q must be debug, info, warn or error", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	if c.Engine.MaxSteps <= 0 {
		errs = append(errs, fmt.Errorf("engine.max_steps must be positive, got %d", c.Engine.MaxSteps))
	}
	if c.Engine.ToolTimeout < 0 {
		errs = append(errs, errors.New("engine.tool_timeout must not be negative"))
	}
	if _, err := graph.ParseMissingNodePolicy(c.Engine.MissingNode); err != nil {
		errs = append(errs, fmt.Errorf("engine.missing_node: %w", err))
	}
	switch c.Store.Driver {
	case "", "memory":
	case "sqlite", "mysql":
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for driver %q", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q must be memory, sqlite or mysql", c.Store.Driver))
	}
	if c.Tools.HTTP.Enabled && c.Tools.HTTP.Timeout <= 0 {
		errs = append(errs, errors.New("tools.http.timeout must be positive when the http tool is enabled"))
	}
	if c.LLM.Enabled() && c.LLM.APIKeyEnv == "" {
		errs = append(errs, errors.New("llm.api_key_env is required when llm.provider is set"))
	}

	return errors.Join(errs...)
}

// EngineOptions translates the engine settings into graph options.
func (c Config) EngineOptions() ([]graph.Option, error) {
	policy, err := graph.ParseMissingNodePolicy(c.Engine.MissingNode)
	if err != nil {
		return nil, err
	}
	return []graph.Option{
		graph.WithMaxSteps(c.Engine.MaxSteps),
		graph.WithToolTimeout(c.Engine.ToolTimeout.Std()),
		graph.WithMissingNodePolicy(policy),
	}, nil
}

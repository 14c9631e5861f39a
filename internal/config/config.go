package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all graphchat configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Neo4j   Neo4jConfig   `yaml:"neo4j"`
	History HistoryConfig `yaml:"history"`
	LLM     LLMConfig     `yaml:"llm"`
	Chat    ChatConfig    `yaml:"chat"`
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP/websocket front-end.
type ServerConfig struct {
	Addr         string        `yaml:"addr" validate:"required"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// Neo4jConfig holds the knowledge graph connection. The same database backs
// the history store when History.Backend is "neo4j".
type Neo4jConfig struct {
	URI      string `yaml:"uri" validate:"required"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// HistoryConfig selects the history store backend.
type HistoryConfig struct {
	Backend    string `yaml:"backend" validate:"oneof=neo4j sqlite"`
	SQLitePath string `yaml:"sqlite_path" validate:"required_if=Backend sqlite"`
}

// LLMConfig configures the model gateway.
type LLMConfig struct {
	Provider string        `yaml:"provider" validate:"oneof=ollama openai anthropic"`
	Model    string        `yaml:"model" validate:"required"`
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`

	// Circuit breaker around the provider.
	BreakerMaxFailures uint32        `yaml:"breaker_max_failures"`
	BreakerCooldown    time.Duration `yaml:"breaker_cooldown"`
}

// ChatConfig tunes the recommendation loop and sessions.
type ChatConfig struct {
	TopLimit         int           `yaml:"top_limit" validate:"gte=1,lte=20"`
	ActionTimeout    time.Duration `yaml:"action_timeout" validate:"gt=0"`
	MaxRounds        int           `yaml:"max_rounds" validate:"gte=0"`
	MemoryLimit      int           `yaml:"memory_limit" validate:"gte=1"`
	RecordSelections bool          `yaml:"record_selections"`
	ResultLimit      int           `yaml:"result_limit" validate:"gte=1"`
}

// AuthConfig holds front-end login credentials. Users maps username to password.
type AuthConfig struct {
	Realm string            `yaml:"realm"`
	Users map[string]string `yaml:"users"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// DefaultConfig returns the built-in defaults. Secrets are left empty.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Neo4j: Neo4jConfig{
			URI:      "bolt://localhost:7687",
			Username: "neo4j",
			Database: "neo4j",
		},
		History: HistoryConfig{
			Backend:    "neo4j",
			SQLitePath: "graphchat.db",
		},
		LLM: LLMConfig{
			Provider:           "ollama",
			Model:              "llama3.1",
			BaseURL:            "http://localhost:11434",
			Timeout:            2 * time.Minute,
			BreakerMaxFailures: 5,
			BreakerCooldown:    30 * time.Second,
		},
		Chat: ChatConfig{
			TopLimit:      3,
			ActionTimeout: 5 * time.Minute,
			MemoryLimit:   50,
			ResultLimit:   10,
		},
		Auth: AuthConfig{
			Realm: "graphchat",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from path (if non-empty), applies environment
// overrides and validates the result. A missing file at path is an error;
// pass "" to run on defaults and environment only.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes the config as YAML.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.LLM.Provider != "ollama" && c.LLM.APIKey == "" {
		return fmt.Errorf("invalid config: llm.api_key is required for provider %s", c.LLM.Provider)
	}
	return nil
}

// applyEnvOverrides lets the environment override file values.
func applyEnvOverrides(cfg *Config) error {
	setString(&cfg.Server.Addr, "GRAPHCHAT_ADDR")

	setString(&cfg.Neo4j.URI, "NEO4J_URI")
	setString(&cfg.Neo4j.Username, "NEO4J_USER")
	setString(&cfg.Neo4j.Password, "NEO4J_PASSWORD")
	setString(&cfg.Neo4j.Database, "NEO4J_DATABASE")

	setString(&cfg.History.Backend, "GRAPHCHAT_HISTORY_BACKEND")
	setString(&cfg.History.SQLitePath, "GRAPHCHAT_SQLITE_PATH")

	setString(&cfg.LLM.Provider, "GRAPHCHAT_LLM_PROVIDER")
	setString(&cfg.LLM.Model, "GRAPHCHAT_LLM_MODEL")
	setString(&cfg.LLM.BaseURL, "GRAPHCHAT_LLM_BASE_URL")
	switch cfg.LLM.Provider {
	case "openai":
		setString(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	case "anthropic":
		setString(&cfg.LLM.APIKey, "ANTHROPIC_API_KEY")
	}
	setString(&cfg.LLM.APIKey, "GRAPHCHAT_LLM_API_KEY")

	if err := setDuration(&cfg.Chat.ActionTimeout, "GRAPHCHAT_ACTION_TIMEOUT"); err != nil {
		return err
	}
	if v := os.Getenv("GRAPHCHAT_RECORD_SELECTIONS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing GRAPHCHAT_RECORD_SELECTIONS: %w", err)
		}
		cfg.Chat.RecordSelections = b
	}

	// GRAPHCHAT_USERS is a comma-separated list of user:password pairs.
	if v := os.Getenv("GRAPHCHAT_USERS"); v != "" {
		users := make(map[string]string)
		for _, pair := range strings.Split(v, ",") {
			name, pass, ok := strings.Cut(strings.TrimSpace(pair), ":")
			if !ok || name == "" {
				return fmt.Errorf("parsing GRAPHCHAT_USERS: malformed entry %q", pair)
			}
			users[name] = pass
		}
		cfg.Auth.Users = users
	}

	setString(&cfg.Logging.Level, "GRAPHCHAT_LOG_LEVEL")
	setString(&cfg.Logging.Format, "GRAPHCHAT_LOG_FORMAT")
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", key, err)
	}
	*dst = d
	return nil
}

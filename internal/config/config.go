// Package config loads the immutable runtime configuration from environment
// variables. It is built once in cmd/chatbot and injected everywhere else;
// nothing re-reads the environment per request.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// envPrefix scopes every variable; "__" nests keys, so
// CHATBOT_SERVER__PORT becomes server.port.
const envPrefix = "CHATBOT_"

// DefaultSystemPrompt is the assistant persona sent with every
// conversational completion.
const DefaultSystemPrompt = "Tu es l'assistant de la galerie Atelier Marbre, spécialiste du marbre, " +
	"du granit et de la pierre naturelle. Réponds brièvement et poliment en français. " +
	"Pour passer commande, invite le client à écrire : " +
	"commande: nom=..., tel=..., produit=..., quantite=..."

// Chat modes: plain text relay or structured intent classification.
const (
	ModeReply  = "reply"
	ModeIntent = "intent"
)

type Config struct {
	Primary  Primary        `koanf:"primary"`
	Server   ServerConfig   `koanf:"server" validate:"required"`
	Database DatabaseConfig `koanf:"database" validate:"required"`
	LLM      LLMConfig      `koanf:"llm" validate:"required"`
	Chat     ChatConfig     `koanf:"chat"`
	// Pointer so an absent section can be replaced with defaults.
	Observability *ObservabilityConfig `koanf:"observability"`
}

type Primary struct {
	Env string `koanf:"env"`
}

type ServerConfig struct {
	Port         string   `koanf:"port"`
	ReadTimeout  int      `koanf:"read_timeout"`
	WriteTimeout int      `koanf:"write_timeout"`
	// Ordered allow-list; the first entry doubles as the default origin
	// echoed to unrecognized callers.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins" validate:"required,min=1"`
}

type DatabaseConfig struct {
	// Connection string of the hosted store, carrying the service
	// credential. Never exposed to callers.
	URL string `koanf:"url" validate:"required"`
}

type LLMConfig struct {
	BaseURL        string  `koanf:"base_url" validate:"required,url"`
	APIKey         string  `koanf:"api_key" validate:"required"`
	Model          string  `koanf:"model"`
	FallbackModel  string  `koanf:"fallback_model"`
	Temperature    float64 `koanf:"temperature"`
	MaxTokens      int     `koanf:"max_tokens"`
	TimeoutSeconds int     `koanf:"timeout_seconds"`
}

// Timeout is the total bound covering the primary call and the one fallback.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type ChatConfig struct {
	// Mode selects the relay behavior: "reply" returns free text,
	// "intent" returns a structured search/smalltalk classification.
	Mode         string `koanf:"mode" validate:"omitempty,oneof=reply intent"`
	SystemPrompt string `koanf:"system_prompt"`
}

// LoadConfig reads CHATBOT_* variables, applies defaults and validates the
// result. A missing required credential is a startup error, not a crash at
// first request.
func LoadConfig() (*Config, error) {
	k := koanf.New(".")
	err := k.Load(env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, envPrefix)), "__", ".")
		// Comma-separated values become slices (the CORS allow-list).
		if strings.Contains(value, ",") {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			return key, parts
		}
		return key, value
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyDefaults()

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if err := cfg.Observability.Validate(); err != nil {
		return nil, fmt.Errorf("validate observability config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Primary.Env == "" {
		c.Primary.Env = "production"
	}
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.FallbackModel == "" {
		c.LLM.FallbackModel = "gpt-3.5-turbo"
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.7
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 400
	}
	if c.LLM.TimeoutSeconds == 0 {
		c.LLM.TimeoutSeconds = 15
	}
	if c.Chat.Mode == "" {
		c.Chat.Mode = ModeReply
	}
	if c.Chat.SystemPrompt == "" {
		c.Chat.SystemPrompt = DefaultSystemPrompt
	}
	if c.Observability == nil {
		c.Observability = DefaultObservabilityConfig()
	}
	c.Observability.ServiceName = "chatbot"
	c.Observability.Environment = c.Primary.Env
}

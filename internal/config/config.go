// Package config loads runtime settings from the environment, optionally
// seeded by a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	ProviderGemini  = "gemini"
	ProviderOpenAI  = "openai"
	ProviderOffline = "offline"

	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendDynamoDB = "dynamodb"

	ModerationBlocklist = "blocklist"
	ModerationOpenAI    = "openai"

	TracingOff    = "off"
	TracingStdout = "stdout"
	TracingOTLP   = "otlp"
)

type Config struct {
	Port             int
	LogMode          string
	StaticDir        string
	CORSAllowOrigins []string

	ModelProvider string
	GeminiAPIKey  string
	GeminiModel   string
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	ModelTimeout  time.Duration
	MaxInflight   int

	SessionBackend    string
	SessionTTL        time.Duration
	SessionMaxEntries int
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	RedisKeyPrefix    string
	StateTable        string

	Moderation       string
	BlocklistExtra   []string
	TutorSubject     string
	MaxMessageLength int
	ParamPrefix      string

	Tracing string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 3000)
	v.SetDefault("log_mode", "development")
	v.SetDefault("static_dir", "public")
	v.SetDefault("cors_allow_origins", "*")

	v.SetDefault("model_provider", ProviderGemini)
	v.SetDefault("gemini_api_key", "")
	v.SetDefault("gemini_model", "gemini-1.5-flash")
	v.SetDefault("openai_api_key", "")
	v.SetDefault("openai_model", "gpt-4o-mini")
	v.SetDefault("openai_base_url", "https://api.openai.com/v1")
	v.SetDefault("model_timeout", "30s")
	v.SetDefault("max_inflight_generations", 16)

	v.SetDefault("session_backend", BackendMemory)
	v.SetDefault("session_ttl", "0s")
	v.SetDefault("session_max_entries", 0)
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_key_prefix", "tutor:session:")
	v.SetDefault("state_table", "")

	v.SetDefault("moderation", ModerationBlocklist)
	v.SetDefault("blocklist_extra", "")
	v.SetDefault("tutor_subject", "")
	v.SetDefault("max_message_length", 2000)
	v.SetDefault("param_prefix", "")

	v.SetDefault("tracing", TracingOff)
}

// Load reads settings with precedence environment > envFile > defaults. A
// missing envFile is not an error.
func Load(envFile string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if envFile != "" {
		values, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			layer := make(map[string]any, len(values))
			for k, val := range values {
				layer[strings.ToLower(k)] = val
			}
			if err := v.MergeConfigMap(layer); err != nil {
				return Config{}, fmt.Errorf("config: merge %s: %w", envFile, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("config: read %s: %w", envFile, err)
		}
	}

	cfg := Config{
		Port:             v.GetInt("port"),
		LogMode:          strings.ToLower(strings.TrimSpace(v.GetString("log_mode"))),
		StaticDir:        v.GetString("static_dir"),
		CORSAllowOrigins: splitList(v.GetString("cors_allow_origins")),

		ModelProvider: strings.ToLower(strings.TrimSpace(v.GetString("model_provider"))),
		GeminiAPIKey:  strings.TrimSpace(v.GetString("gemini_api_key")),
		GeminiModel:   strings.TrimSpace(v.GetString("gemini_model")),
		OpenAIAPIKey:  strings.TrimSpace(v.GetString("openai_api_key")),
		OpenAIModel:   strings.TrimSpace(v.GetString("openai_model")),
		OpenAIBaseURL: strings.TrimSpace(v.GetString("openai_base_url")),
		ModelTimeout:  v.GetDuration("model_timeout"),
		MaxInflight:   v.GetInt("max_inflight_generations"),

		SessionBackend:    strings.ToLower(strings.TrimSpace(v.GetString("session_backend"))),
		SessionTTL:        v.GetDuration("session_ttl"),
		SessionMaxEntries: v.GetInt("session_max_entries"),
		RedisAddr:         strings.TrimSpace(v.GetString("redis_addr")),
		RedisPassword:     v.GetString("redis_password"),
		RedisDB:           v.GetInt("redis_db"),
		RedisKeyPrefix:    v.GetString("redis_key_prefix"),
		StateTable:        strings.TrimSpace(v.GetString("state_table")),

		Moderation:       strings.ToLower(strings.TrimSpace(v.GetString("moderation"))),
		BlocklistExtra:   splitList(v.GetString("blocklist_extra")),
		TutorSubject:     strings.TrimSpace(v.GetString("tutor_subject")),
		MaxMessageLength: v.GetInt("max_message_length"),
		ParamPrefix:      strings.TrimRight(strings.TrimSpace(v.GetString("param_prefix")), "/"),

		Tracing: strings.ToLower(strings.TrimSpace(v.GetString("tracing"))),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}
	if !oneOf(c.ModelProvider, ProviderGemini, ProviderOpenAI, ProviderOffline) {
		errs = append(errs, fmt.Errorf("MODEL_PROVIDER %q is not one of gemini, openai, offline", c.ModelProvider))
	}
	if !oneOf(c.SessionBackend, BackendMemory, BackendRedis, BackendDynamoDB) {
		errs = append(errs, fmt.Errorf("SESSION_BACKEND %q is not one of memory, redis, dynamodb", c.SessionBackend))
	}
	if c.SessionBackend == BackendDynamoDB && c.StateTable == "" {
		errs = append(errs, errors.New("STATE_TABLE is required for the dynamodb session backend"))
	}
	if c.SessionBackend == BackendRedis && c.RedisAddr == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required for the redis session backend"))
	}
	if !oneOf(c.Moderation, ModerationBlocklist, ModerationOpenAI) {
		errs = append(errs, fmt.Errorf("MODERATION %q is not one of blocklist, openai", c.Moderation))
	}
	if !oneOf(c.Tracing, TracingOff, TracingStdout, TracingOTLP) {
		errs = append(errs, fmt.Errorf("TRACING %q is not one of off, stdout, otlp", c.Tracing))
	}
	// A bare number parses as nanoseconds, so anything under a second is
	// almost certainly a missing unit.
	if c.ModelTimeout < time.Second {
		errs = append(errs, fmt.Errorf("MODEL_TIMEOUT %s is under one second; give a unit, e.g. \"30s\"", c.ModelTimeout))
	}
	if c.SessionTTL > 0 && c.SessionTTL < time.Second {
		errs = append(errs, fmt.Errorf("SESSION_TTL %s is under one second; give a unit, e.g. \"24h\"", c.SessionTTL))
	}
	if c.MaxInflight <= 0 {
		errs = append(errs, errors.New("MAX_INFLIGHT_GENERATIONS must be positive"))
	}
	if c.MaxMessageLength <= 0 {
		errs = append(errs, errors.New("MAX_MESSAGE_LENGTH must be positive"))
	}
	if c.SessionTTL < 0 || c.SessionMaxEntries < 0 {
		errs = append(errs, errors.New("SESSION_TTL and SESSION_MAX_ENTRIES must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// GeminiParam and OpenAIParam name the SSM parameters consulted when the
// matching API key is not set directly.
func (c Config) GeminiParam() string { return paramName(c.ParamPrefix, "gemini-api-key") }
func (c Config) OpenAIParam() string { return paramName(c.ParamPrefix, "open-ai-token") }

// NeedsParamStore reports whether any API key has to come from SSM.
func (c Config) NeedsParamStore() bool {
	if c.ParamPrefix == "" {
		return false
	}
	needOpenAI := c.ModelProvider == ProviderOpenAI || c.Moderation == ModerationOpenAI
	return (c.ModelProvider == ProviderGemini && c.GeminiAPIKey == "") || (needOpenAI && c.OpenAIAPIKey == "")
}

func paramName(prefix, name string) string {
	if prefix == "" {
		return ""
	}
	return prefix + "/" + name
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/yagpt/gateway/internal/domain/chat/models"
)

const EnvPrefix = "GATEWAY"

var (
	ErrMissingPrivateKey = errors.New("yandex.private_key or yandex.private_key_file must be set")
	ErrMissingBucket     = errors.New("storage.bucket must be set when rag is enabled")
)

// Config holds all configuration for the gateway
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Yandex    YandexConfig    `mapstructure:"yandex"`
	Validator ValidatorConfig `mapstructure:"validator"`
	History   HistoryConfig   `mapstructure:"history"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RAG       RAGConfig       `mapstructure:"rag"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// YandexConfig holds service account credentials and Foundation Models endpoints
type YandexConfig struct {
	ServiceAccountID  string        `mapstructure:"service_account_id" validate:"required"`
	KeyID             string        `mapstructure:"key_id" validate:"required"`
	PrivateKey        string        `mapstructure:"private_key"`
	PrivateKeyFile    string        `mapstructure:"private_key_file"`
	FolderID          string        `mapstructure:"folder_id" validate:"required"`
	TokenURL          string        `mapstructure:"token_url" validate:"required,url"`
	CompletionURL     string        `mapstructure:"completion_url" validate:"required,url"`
	EmbeddingsURL     string        `mapstructure:"embeddings_url" validate:"required,url"`
	Model             string        `mapstructure:"model" validate:"required"`
	Temperature       float64       `mapstructure:"temperature" validate:"gte=0,lte=1"`
	MaxTokens         int           `mapstructure:"max_tokens" validate:"gt=0"`
	TokenTimeout      time.Duration `mapstructure:"token_timeout" validate:"gt=0"`
	CompletionTimeout time.Duration `mapstructure:"completion_timeout" validate:"gt=0"`
	EmbeddingTimeout  time.Duration `mapstructure:"embedding_timeout" validate:"gt=0"`
}

type ValidatorConfig struct {
	AffirmativeToken string   `mapstructure:"affirmative_token" validate:"required"`
	NegativeToken    string   `mapstructure:"negative_token" validate:"required"`
	DisallowedTopics []string `mapstructure:"disallowed_topics"`
	RefusalMessage   string   `mapstructure:"refusal_message" validate:"required"`
}

// HistoryConfig selects the history backend. MaxTurns of zero keeps every turn.
type HistoryConfig struct {
	Backend  string `mapstructure:"backend" validate:"oneof=memory redis"`
	MaxTurns int    `mapstructure:"max_turns" validate:"gte=0"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

type RAGConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	TopK         int    `mapstructure:"top_k" validate:"gt=0"`
	Fallback     bool   `mapstructure:"fallback"`
	Validate     bool   `mapstructure:"validate"`
	ChunkSize    int    `mapstructure:"chunk_size" validate:"gt=0"`
	ChunkOverlap int    `mapstructure:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
	CachePath    string `mapstructure:"cache_path"`
}

// StorageConfig locates the document corpus in S3-compatible object storage
type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

// Load reads configuration from an optional file and GATEWAY_* environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("gateway")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct constraints and the cross-field rules the tags can't express
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Yandex.PrivateKey == "" && c.Yandex.PrivateKeyFile == "" {
		return ErrMissingPrivateKey
	}

	if c.RAG.Enabled && c.Storage.Bucket == "" {
		return ErrMissingBucket
	}

	return nil
}

// Credentials resolves the service account credentials, reading the key file when needed
func (c *Config) Credentials() (models.Credentials, error) {
	key := c.Yandex.PrivateKey
	if key == "" {
		data, err := os.ReadFile(c.Yandex.PrivateKeyFile)
		if err != nil {
			return models.Credentials{}, fmt.Errorf("failed to read private key file: %w", err)
		}
		key = string(data)
	}

	return models.Credentials{
		ServiceAccountID: c.Yandex.ServiceAccountID,
		KeyID:            c.Yandex.KeyID,
		PrivateKey:       key,
		FolderID:         c.Yandex.FolderID,
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("yandex.service_account_id", "")
	v.SetDefault("yandex.key_id", "")
	v.SetDefault("yandex.private_key", "")
	v.SetDefault("yandex.private_key_file", "")
	v.SetDefault("yandex.folder_id", "")
	v.SetDefault("yandex.token_url", "https://iam.api.cloud.yandex.net/iam/v1/tokens")
	v.SetDefault("yandex.completion_url", "https://llm.api.cloud.yandex.net/foundationModels/v1/completion")
	v.SetDefault("yandex.embeddings_url", "https://llm.api.cloud.yandex.net/v1")
	v.SetDefault("yandex.model", "yandexgpt-lite")
	v.SetDefault("yandex.temperature", 0.6)
	v.SetDefault("yandex.max_tokens", 2000)
	v.SetDefault("yandex.token_timeout", 10*time.Second)
	v.SetDefault("yandex.completion_timeout", 30*time.Second)
	v.SetDefault("yandex.embedding_timeout", 30*time.Second)

	v.SetDefault("validator.affirmative_token", "YES")
	v.SetDefault("validator.negative_token", "NO")
	v.SetDefault("validator.disallowed_topics", models.DefaultDisallowedTopics)
	v.SetDefault("validator.refusal_message", "Your question was removed because it may violate the rules of using this bot.")

	v.SetDefault("history.backend", "memory")
	v.SetDefault("history.max_turns", 0)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("rag.enabled", false)
	v.SetDefault("rag.top_k", 3)
	v.SetDefault("rag.fallback", false)
	v.SetDefault("rag.validate", false)
	v.SetDefault("rag.chunk_size", 1000)
	v.SetDefault("rag.chunk_overlap", 100)
	v.SetDefault("rag.cache_path", "./data/index")

	v.SetDefault("storage.endpoint", "https://storage.yandexcloud.net")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.prefix", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

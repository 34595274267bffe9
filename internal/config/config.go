// Package config provides application configuration with multi-source
// priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.quarry/config.yaml, or ./config.yaml)
//  3. Default values
//
// The retrieval options recognized here — chunk size and overlap,
// embedding dimension, top-K, context budget — are passed explicitly
// into each component's constructor; no component reads globals.
//
// Security: the PostgreSQL password is masked in MarshalJSON/String and
// never logged. Validation is fail-fast with sentinel errors usable
// via errors.Is.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidChunkSize indicates chunk_size is not positive.
	ErrInvalidChunkSize = errors.New("invalid chunk size")

	// ErrInvalidChunkOverlap indicates chunk_overlap is negative or
	// not smaller than chunk_size.
	ErrInvalidChunkOverlap = errors.New("invalid chunk overlap")

	// ErrInvalidEmbeddingDim indicates embedding_dim is out of range.
	ErrInvalidEmbeddingDim = errors.New("invalid embedding dimension")

	// ErrInvalidTopK indicates top_k is out of range.
	ErrInvalidTopK = errors.New("invalid top_k")

	// ErrInvalidContextBudget indicates context_max_chars is not positive.
	ErrInvalidContextBudget = errors.New("invalid context budget")

	// ErrInvalidParallelism indicates embed_parallelism is not positive.
	ErrInvalidParallelism = errors.New("invalid embed parallelism")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is empty.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")
)

// DefaultEmbedderModel is the default Gemini embedding model.
// It outputs 3072 dimensions by default but supports truncation via
// OutputDimensionality; the chunks schema uses 768.
const DefaultEmbedderModel = "gemini-embedding-001"

// MaxEmbeddingDim bounds embedding_dim; pgvector rejects wider vectors
// for indexed columns and nothing in the supported models exceeds it.
const MaxEmbeddingDim = 4096

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON.
type Config struct {
	// Retrieval configuration
	ChunkSize       int `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap    int `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	EmbeddingDim    int `mapstructure:"embedding_dim" json:"embedding_dim"`
	TopK            int `mapstructure:"top_k" json:"top_k"`
	ContextMaxChars int `mapstructure:"context_max_chars" json:"context_max_chars"`

	// Embedder configuration
	EmbedderModel      string  `mapstructure:"embedder_model" json:"embedder_model"`
	EmbedParallelism   int     `mapstructure:"embed_parallelism" json:"embed_parallelism"`
	EmbedMaxInputChars int     `mapstructure:"embed_max_input_chars" json:"embed_max_input_chars"`
	EmbedRPS           float64 `mapstructure:"embed_rps" json:"embed_rps"`

	// Storage configuration
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > defaults.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".quarry")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL, when set, wins over the individual postgres_* keys.
	if err := cfg.applyDatabaseURL(os.Getenv("DATABASE_URL")); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	// Retrieval defaults
	viper.SetDefault("chunk_size", 1000)
	viper.SetDefault("chunk_overlap", 200)
	viper.SetDefault("embedding_dim", 768)
	viper.SetDefault("top_k", 5)
	viper.SetDefault("context_max_chars", 6000)

	// Embedder defaults
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("embed_parallelism", 4)
	viper.SetDefault("embed_max_input_chars", 8192)
	viper.SetDefault("embed_rps", 10.0)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "quarry")
	viper.SetDefault("postgres_password", "quarry_dev_password")
	viper.SetDefault("postgres_db_name", "quarry")
	viper.SetDefault("postgres_ssl_mode", "disable")
}

// bindEnvVariables binds environment overrides explicitly.
// GEMINI_API_KEY is read directly by the genai client, not via viper.
func bindEnvVariables() {
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("chunk_size", "QUARRY_CHUNK_SIZE")
	mustBind("chunk_overlap", "QUARRY_CHUNK_OVERLAP")
	mustBind("embedding_dim", "QUARRY_EMBEDDING_DIM")
	mustBind("top_k", "QUARRY_TOP_K")
	mustBind("context_max_chars", "QUARRY_CONTEXT_MAX_CHARS")
	mustBind("embedder_model", "QUARRY_EMBEDDER_MODEL")
	mustBind("postgres_host", "QUARRY_POSTGRES_HOST")
	mustBind("postgres_port", "QUARRY_POSTGRES_PORT")
	mustBind("postgres_user", "QUARRY_POSTGRES_USER")
	mustBind("postgres_password", "QUARRY_POSTGRES_PASSWORD")
	mustBind("postgres_db_name", "QUARRY_POSTGRES_DB_NAME")
	mustBind("postgres_ssl_mode", "QUARRY_POSTGRES_SSL_MODE")
}

// Validate checks all configuration values, fail-fast.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: must be positive, got %d", ErrInvalidChunkSize, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: must be in [0, %d), got %d", ErrInvalidChunkOverlap, c.ChunkSize, c.ChunkOverlap)
	}
	if c.EmbeddingDim <= 0 || c.EmbeddingDim > MaxEmbeddingDim {
		return fmt.Errorf("%w: must be in (0, %d], got %d", ErrInvalidEmbeddingDim, MaxEmbeddingDim, c.EmbeddingDim)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("%w: must be positive, got %d", ErrInvalidTopK, c.TopK)
	}
	if c.ContextMaxChars <= 0 {
		return fmt.Errorf("%w: must be positive, got %d", ErrInvalidContextBudget, c.ContextMaxChars)
	}
	if c.EmbedParallelism <= 0 {
		return fmt.Errorf("%w: must be positive, got %d", ErrInvalidParallelism, c.EmbedParallelism)
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be in [1, 65535], got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name is empty", ErrInvalidPostgresDBName)
	}
	return nil
}

// ConnString returns the PostgreSQL connection URL.
func (c *Config) ConnString() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:   c.PostgresHost + ":" + strconv.Itoa(c.PostgresPort),
		Path:   "/" + c.PostgresDBName,
	}
	q := url.Values{}
	if c.PostgresSSLMode != "" {
		q.Set("sslmode", c.PostgresSSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// applyDatabaseURL overrides the postgres_* fields from a
// postgres:// URL when one is provided.
func (c *Config) applyDatabaseURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	if h := u.Hostname(); h != "" {
		c.PostgresHost = h
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid port %q", p)
		}
		c.PostgresPort = port
	}
	if u.User != nil {
		c.PostgresUser = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			c.PostgresPassword = pw
		}
	}
	if db := filepath.Base(u.Path); db != "." && db != "/" && db != "" {
		c.PostgresDBName = db
	}
	if mode := u.Query().Get("sslmode"); mode != "" {
		c.PostgresSSLMode = mode
	}
	return nil
}

// maskedValue replaces secrets in serialized output. Full-width blocks
// avoid accidental substring matches against real secret content.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Short secrets are fully
// masked; longer ones keep the first and last two characters for debug
// utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive-field masking.
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

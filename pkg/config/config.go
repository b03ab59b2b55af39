package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	ElevenLabs ElevenLabsConfig `mapstructure:"elevenlabs"`
	Grammar    GrammarConfig    `mapstructure:"grammar"`
	Files      FilesConfig      `mapstructure:"files"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Whitelist  WhitelistConfig  `mapstructure:"whitelist"`
	LogLevel   string           `mapstructure:"log_level"`
}

type TelegramConfig struct {
	Token          string `mapstructure:"token"`
	PollingTimeout int    `mapstructure:"polling_timeout"`
}

type ElevenLabsConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type GrammarConfig struct {
	Provider    string       `mapstructure:"provider"`
	OpenAI      OpenAIConfig `mapstructure:"openai"`
	Gemini      GeminiConfig `mapstructure:"gemini"`
	MaxTokens   int          `mapstructure:"max_tokens"`
	Temperature float64      `mapstructure:"temperature"`
}

type OpenAIConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type FilesConfig struct {
	UploadDir   string `mapstructure:"upload_dir"`
	MaxFileSize int64  `mapstructure:"max_file_size"`
	MaxAgeHours int    `mapstructure:"max_age_hours"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	UseInMemory bool   `mapstructure:"use_in_memory"`
}

type WhitelistConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	UserIDs []int64 `mapstructure:"user_ids"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	// Remove leading slash from path to get database name
	dbName := strings.TrimPrefix(u.Path, "/")

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   dbName,
		SSLMode:  "disable",
	}, nil
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("telegram.polling_timeout", 60)
	v.SetDefault("elevenlabs.model", "scribe_v1")
	v.SetDefault("grammar.provider", "openai")
	v.SetDefault("grammar.openai.model", "gpt-4o-mini")
	v.SetDefault("grammar.gemini.model", "gemini-2.5-pro")
	v.SetDefault("grammar.max_tokens", 4096)
	v.SetDefault("grammar.temperature", 0.1)
	v.SetDefault("files.upload_dir", "uploads")
	v.SetDefault("files.max_file_size", 25*1024*1024)
	v.SetDefault("files.max_age_hours", 24)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", time.Second)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.use_in_memory", true)
	v.SetDefault("whitelist.enabled", false)
	v.SetDefault("log_level", "info")

	// Enable environment variable support
	v.AutomaticEnv()

	// Read the config file; everything can also come from the environment,
	// so a missing file is not an error
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %v", err)
		}
		config.Database = dbConfig
		config.Database.UseInMemory = false
	}

	// Get other environment variables
	if token := v.GetString("TELEGRAM_BOT_TOKEN"); token != "" {
		config.Telegram.Token = token
	}

	if apiKey := v.GetString("ELEVENLABS_API_KEY"); apiKey != "" {
		config.ElevenLabs.APIKey = apiKey
	}

	if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		config.Grammar.OpenAI.APIKey = apiKey
	}

	if apiKey := v.GetString("GEMINI_API_KEY"); apiKey != "" {
		config.Grammar.Gemini.APIKey = apiKey
	}

	if provider := v.GetString("GRAMMAR_PROVIDER"); provider != "" {
		config.Grammar.Provider = strings.ToLower(provider)
	}

	if maxSize := v.GetInt64("MAX_FILE_SIZE"); maxSize > 0 {
		config.Files.MaxFileSize = maxSize
	}

	if level := v.GetString("LOG_LEVEL"); level != "" {
		config.LogLevel = strings.ToLower(level)
	}

	return &config, nil
}

// Validate reports the first missing required setting.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required (TELEGRAM_BOT_TOKEN)")
	}
	if c.ElevenLabs.APIKey == "" {
		return fmt.Errorf("elevenlabs api key is required (ELEVENLABS_API_KEY)")
	}
	switch c.Grammar.Provider {
	case "openai":
		if c.Grammar.OpenAI.APIKey == "" {
			return fmt.Errorf("openai api key is required (OPENAI_API_KEY)")
		}
	case "gemini":
		if c.Grammar.Gemini.APIKey == "" {
			return fmt.Errorf("gemini api key is required (GEMINI_API_KEY)")
		}
	default:
		return fmt.Errorf("unknown grammar provider %q (want openai or gemini)", c.Grammar.Provider)
	}
	return nil
}

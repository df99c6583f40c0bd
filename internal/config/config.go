package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"evernote-syncd/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Evernote  EvernoteConfig
	Notes     NotesConfig
	State     StateConfig
	API       APIConfig
	Sync      SyncConfig
	WebSocket WebSocketConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host string `validate:"required"`
	Port string `validate:"required"`
}

type EvernoteConfig struct {
	BaseURL        string `validate:"required,url"`
	Username       string `validate:"required"`
	Password       string
	ConsumerKey    string `validate:"required"`
	ConsumerSecret string `validate:"required"`
	Notebook       string `validate:"required"`
}

type NotesConfig struct {
	Dir   string `validate:"required"`
	Watch bool
}

type StateConfig struct {
	Backend  string `validate:"oneof=file couch"`
	Path     string
	CouchURL string
	CouchDB  string
}

type APIConfig struct {
	PasswordHash  string `validate:"required"`
	JWTSecret     string `validate:"required,min=16"`
	JWTExpiration time.Duration
}

type SyncConfig struct {
	Interval time.Duration
}

type WebSocketConfig struct {
	MaxClients int
	WriteWait  time.Duration
	PongWait   time.Duration
	PingPeriod time.Duration
}

type LoggingConfig struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// Credentials returns the remote store credentials this configuration
// carries, already shaped for the sync engine.
func (c *Config) Credentials() domain.Credentials {
	return domain.Credentials{
		Username:       c.Evernote.Username,
		Password:       c.Evernote.Password,
		ConsumerKey:    c.Evernote.ConsumerKey,
		ConsumerSecret: c.Evernote.ConsumerSecret,
	}
}

// Load reads configuration from the environment (and a .env file when
// present) and validates it. Placeholder application keys are rejected
// here, before the daemon ever touches the network.
func Load() (*Config, error) {
	godotenv.Load()

	jwtExp, err := time.ParseDuration(getEnv("API_JWT_EXPIRATION", "12h"))
	if err != nil {
		return nil, fmt.Errorf("invalid API_JWT_EXPIRATION: %w", err)
	}

	syncInterval, err := time.ParseDuration(getEnv("SYNC_INTERVAL", "10m"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_INTERVAL: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("HOST", "127.0.0.1"),
			Port: getEnv("PORT", "8420"),
		},
		Evernote: EvernoteConfig{
			BaseURL:        getEnv("EVERNOTE_BASE_URL", "https://sandbox.evernote.com"),
			Username:       getEnv("EVERNOTE_USERNAME", ""),
			Password:       getEnv("EVERNOTE_PASSWORD", ""),
			ConsumerKey:    getEnv("EVERNOTE_CONSUMER_KEY", ""),
			ConsumerSecret: getEnv("EVERNOTE_CONSUMER_SECRET", ""),
			Notebook:       getEnv("EVERNOTE_NOTEBOOK", "Tomboy"),
		},
		Notes: NotesConfig{
			Dir:   getEnv("NOTES_DIR", defaultNotesDir()),
			Watch: getEnvAsBool("NOTES_WATCH", true),
		},
		State: StateConfig{
			Backend:  getEnv("STATE_BACKEND", "file"),
			Path:     getEnv("STATE_PATH", defaultStatePath()),
			CouchURL: getEnv("STATE_COUCH_URL", ""),
			CouchDB:  getEnv("STATE_COUCH_DB", "evernote-syncd"),
		},
		API: APIConfig{
			PasswordHash:  getEnv("API_PASSWORD_HASH", ""),
			JWTSecret:     getEnv("API_JWT_SECRET", ""),
			JWTExpiration: jwtExp,
		},
		Sync: SyncConfig{
			Interval: syncInterval,
		},
		WebSocket: WebSocketConfig{
			MaxClients: getEnvAsInt("WS_MAX_CLIENTS", 5),
			WriteWait:  10 * time.Second,
			PongWait:   60 * time.Second,
			PingPeriod: 54 * time.Second,
		},
		Logging: LoggingConfig{
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 10),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 3),
		},
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Credentials().Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.State.Backend == "couch" && cfg.State.CouchURL == "" {
		return nil, fmt.Errorf("invalid configuration: STATE_COUCH_URL is required for the couch backend")
	}
	return cfg, nil
}

func defaultNotesDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "notes"
	}
	return home + "/.local/share/tomboy"
}

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "syncstate.json"
	}
	return home + "/.local/share/evernote-syncd/state.json"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

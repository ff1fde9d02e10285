package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the process configuration of the server and admin tools.
type Config struct {
	Addr       string `env:"ANNIHILATION_ADDR" envDefault:":8080"`
	DataDir    string `env:"ANNIHILATION_DATA_DIR" envDefault:"./data"`
	ConfigDir  string `env:"ANNIHILATION_CONFIG_DIR" envDefault:"./configs"`
	LevelID    string `env:"ANNIHILATION_LEVEL_ID"`
	LevelName  string `env:"ANNIHILATION_LEVEL_NAME" envDefault:"Annihilation"`
	Seed       uint64 `env:"ANNIHILATION_SEED" envDefault:"1337"`
	Systems    int    `env:"ANNIHILATION_SYSTEMS" envDefault:"3"`
	Journal    bool   `env:"ANNIHILATION_JOURNAL" envDefault:"true"`

	Store    StoreConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Limits   LimitConfig
	Logging  LoggingConfig
	CORS     CORSConfig
	Shutdown time.Duration `env:"ANNIHILATION_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type StoreConfig struct {
	// Driver is sqlite or postgres; an empty DSN for sqlite means
	// <DataDir>/annihilation.sqlite.
	Driver string `env:"STORE_DRIVER" envDefault:"sqlite"`
	DSN    string `env:"STORE_DSN"`
}

type RedisConfig struct {
	Enabled bool   `env:"REDIS_ENABLED" envDefault:"false"`
	URL     string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	Prefix  string `env:"REDIS_PREFIX" envDefault:"annihilation"`
}

type AuthConfig struct {
	// An empty secret disables auth: HELLO may name its player id.
	JWTSecret string        `env:"JWT_SECRET"`
	TokenTTL  time.Duration `env:"JWT_TTL" envDefault:"24h"`
}

type LimitConfig struct {
	ActionsPerSecond int `env:"RATE_ACTIONS_PER_SECOND" envDefault:"20"`
	ActionBurst      int `env:"RATE_ACTION_BURST" envDefault:"40"`
	MaxSessions      int `env:"MAX_SESSIONS" envDefault:"256"`
}

type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

type CORSConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
}

// Load reads the optional dotenv files (the first that exists wins per key)
// and then the environment.
func Load(dotenvFiles ...string) (Config, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("STORE_DRIVER must be sqlite or postgres, got %q", c.Store.Driver)
	}
	if c.Store.Driver == "postgres" && c.Store.DSN == "" {
		return fmt.Errorf("STORE_DSN is required for postgres")
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if c.Limits.ActionsPerSecond <= 0 {
		return fmt.Errorf("RATE_ACTIONS_PER_SECOND must be > 0")
	}
	return nil
}

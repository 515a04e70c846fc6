package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DBDriver   string `env:"DB_DRIVER" envDefault:"postgres"`
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"postgres"`
	DBPassword string `env:"DB_PASSWORD" envDefault:"postgres"`
	DBName     string `env:"DB_NAME" envDefault:"guessgame"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"guessgame.db"`

	JWTSecret      string   `env:"JWT_SECRET" envDefault:"super-secret-key-change-me"`
	ServerPort     string   `env:"SERVER_PORT" envDefault:"8080"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	PublicBaseURL  string   `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
	ItemsFile      string   `env:"ITEMS_FILE" envDefault:"data/items.json"`

	TimeUnit          time.Duration `env:"GAME_TIME_UNIT" envDefault:"1s"`
	SweepInterval     time.Duration `env:"SWEEP_INTERVAL" envDefault:"10m"`
	IdleGrace         time.Duration `env:"IDLE_GRACE" envDefault:"30m"`
	FinishedRetention time.Duration `env:"FINISHED_RETENTION" envDefault:"24h"`

	RateLimitRPS   int           `env:"RATE_LIMIT_RPS" envDefault:"10"`
	RateLimitBurst int           `env:"RATE_LIMIT_BURST" envDefault:"20"`
	WSActionLimit  int           `env:"WS_ACTION_LIMIT" envDefault:"20"`
	WSActionWindow time.Duration `env:"WS_ACTION_WINDOW" envDefault:"10s"`
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse reads the configuration from the process environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DBDriver != DriverPostgres && cfg.DBDriver != DriverSQLite {
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	return &cfg, nil
}

// PostgresDSN builds the connection string for the postgres driver.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName,
	)
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.DBDriver)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, time.Second, cfg.TimeUnit)
	assert.Equal(t, 10*time.Minute, cfg.SweepInterval)
	assert.Equal(t, 30*time.Minute, cfg.IdleGrace)
	assert.Equal(t, 24*time.Hour, cfg.FinishedRetention)
	assert.Equal(t, 20, cfg.WSActionLimit)
}

func TestParse_Overrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", ":memory:")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("GAME_TIME_UNIT", "250ms")
	t.Setenv("WS_ACTION_LIMIT", "5")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.DBDriver)
	assert.Equal(t, ":memory:", cfg.SQLitePath)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 250*time.Millisecond, cfg.TimeUnit)
	assert.Equal(t, 5, cfg.WSActionLimit)
}

func TestParse_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "mysql")

	_, err := Parse()
	assert.Error(t, err)
}

func TestParse_RejectsBadDuration(t *testing.T) {
	t.Setenv("IDLE_GRACE", "soon")

	_, err := Parse()
	assert.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	cfg := &Config{DBHost: "db", DBPort: "5433", DBUser: "u", DBPassword: "p", DBName: "n"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=n sslmode=disable", cfg.PostgresDSN())
}

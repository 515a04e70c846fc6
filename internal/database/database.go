package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ZAPHODh/ws-guess-server/internal/config"
	"github.com/ZAPHODh/ws-guess-server/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	_ "modernc.org/sqlite"
)

func gormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger: logger.New(log.New(os.Stderr, "db: ", log.LstdFlags), logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}
}

// Connect opens the database selected by cfg.DBDriver.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch cfg.DBDriver {
	case config.DriverSQLite:
		db, err = OpenSQLite(cfg.SQLitePath)
	default:
		db, err = gorm.Open(postgres.Open(cfg.PostgresDSN()), gormConfig())
	}
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.DBDriver, err)
	}

	log.Printf("database connected (%s)", cfg.DBDriver)
	return db, nil
}

// OpenSQLite opens a sqlite database through the pure Go modernc driver.
// ":memory:" databases are pinned to one connection so every query sees the
// same data.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: path}, gormConfig())
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Account{},
		&models.Item{},
		&models.Session{},
		&models.Participant{},
		&models.Round{},
		&models.Guess{},
		&models.ChatMessage{},
		&models.Reaction{},
	)
	if err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	log.Println("database migrated")
	return nil
}

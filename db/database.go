package db

import (
	"database/sql"
	"fmt"

	"ZenMix/config"
	"ZenMix/logger"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

// ConnectSQL establishes a plain database/sql connection. The GORM
// connection covers the current schema; this one exists for the legacy
// `mixes` table, which predates the GORM models and is only ever read.
func ConnectSQL(cfg *config.Config) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	sqlDB, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err = sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Successfully connected to the database.")
	return sqlDB, nil
}

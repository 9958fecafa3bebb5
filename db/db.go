package db

import (
	"database/sql"
	"fmt"
	"go-auth-api/config"
	"go-auth-api/logger"
	"net/url"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Connect opens the pool described by config.AppConfig.Database and pings it.
// Driver is "postgres" (lib/pq) or "pgx" (pgx stdlib).
func Connect() (*sql.DB, error) {
	cfg := config.AppConfig.Database

	logger.Log.WithFields(logrus.Fields{
		"driver":     cfg.Driver,
		"connection": redactURL(cfg.URL),
	}).Info("Attempting to connect to the database")

	db, err := sql.Open(cfg.Driver, cfg.URL)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to open database connection")
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err = db.Ping(); err != nil {
		db.Close()
		logger.Log.WithError(err).Error("Failed to ping database")
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Log.Info("Database connection established successfully")
	return db, nil
}

// redactURL hides the password of a URL-style DSN. Key/value DSNs are not
// logged at all.
func redactURL(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return "[redacted]"
	}
	return u.Redacted()
}

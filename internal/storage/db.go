// Package storage owns the database connection and the per-model
// repositories. Everything durable in the engine (events, profiles,
// quarantine episodes, tenant state) goes through here.
package storage

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tg-sentinel/internal/config"
	"tg-sentinel/internal/logger"
)

// DB is the shared connection, set once by Initialize.
var DB *gorm.DB

// Initialize opens the MySQL connection and tunes the pool. With the
// database disabled DB stays nil; InitRepositories treats that as fatal since
// forensic records cannot be best-effort.
func Initialize(cfg *config.Config) error {
	if !cfg.Database.Enabled {
		logger.Warningf("database support is disabled")
		return nil
	}

	db := cfg.Database
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
		db.Username, db.Password, db.Host, db.Port, db.DBName, db.Charset)

	logger.Infof("connecting to database %s:%d/%s", db.Host, db.Port, db.DBName)
	conn, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return fmt.Errorf("opening database connection: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return fmt.Errorf("accessing sql connection pool: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	DB = conn
	return nil
}

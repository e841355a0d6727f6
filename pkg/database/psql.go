package database

import (
	"fmt"
	"time"

	"replay_worker/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewPGConnection create a new postgreSQL connection through gorm
func NewPGConnection(d Connection, log *logger.LogInfo) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	for i := 1; i <= retryCount(d.RetryCount); i++ {
		db, err = gorm.Open(postgres.Open(d.ConnectStr), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err == nil {
			err = ping(db)
		}
		if err == nil {
			return db, nil
		}
		log.Warn(
			"Failed to connect to postgreSQL database, retrying...",
			zap.Int("attempt", i),
			zap.Error(err),
		)
		time.Sleep(d.RetryInterval * time.Second)
	}

	return nil, fmt.Errorf("postgres connect after %d attempts: %w", retryCount(d.RetryCount), err)
}

func ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

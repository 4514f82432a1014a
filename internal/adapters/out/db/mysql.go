package db

import (
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	apperrors "github.com/EthanQC/warpong/pkg/errors"
)

// OpenMySQL 打开 MySQL 连接池
func OpenMySQL(dsn string) (*gorm.DB, error) {
	database, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, apperrors.Storage("db.open", err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		return nil, apperrors.Storage("db.open", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return database, nil
}

package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/lumiohq/syncstack/config"
	"github.com/lumiohq/syncstack/interfaces"
	"github.com/lumiohq/syncstack/internal/models"
)

type Repositories struct {
	IntegrationRepository interfaces.IntegrationRepository
	SyncStateRepository   interfaces.SyncStateRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		IntegrationRepository: NewIntegrationRepository(db),
		SyncStateRepository:   NewSyncStateRepository(db),
	}
}

func MigrateDB(dbConfig *config.DatabaseConfig, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	sqlDB.SetMaxOpenConns(5)

	err = db.AutoMigrate(
		&models.Integration{},
		&models.IntegrationSyncState{},
	)

	sqlDB.Close()

	sqlDB, _ = db.DB()
	sqlDB.SetMaxIdleConns(dbConfig.MaxIdleConn)
	sqlDB.SetMaxOpenConns(dbConfig.MaxConn)
	sqlDB.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Minute)

	return err
}

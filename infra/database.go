// Package infra wires the external world: database, rails, event bus.
package infra

import (
	"errors"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nilepay/payfac/pkg/config"
	infrarepo "github.com/nilepay/payfac/infra/repository"
)

// NewDBConnection opens the Postgres connection with pool settings tuned for
// the settlement fan-out.
func NewDBConnection(cnf config.DB, appEnv string) (*gorm.DB, error) {
	databaseUrl := cnf.Url
	if databaseUrl == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	var logMode logger.LogLevel
	if appEnv == "development" {
		logMode = logger.Info
	} else {
		logMode = logger.Silent
	}

	connection, err := gorm.Open(postgres.Open(databaseUrl), &gorm.Config{
		Logger:                 logger.Default.LogMode(logMode),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := connection.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(25)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)

	return connection, nil
}

// AutoMigrate creates or updates the schema for every persisted model.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&infrarepo.SubMerchant{},
		&infrarepo.Transaction{},
		&infrarepo.Refund{},
		&infrarepo.Dispute{},
		&infrarepo.Reserve{},
		&infrarepo.Settlement{},
		&infrarepo.SettlementItem{},
		&infrarepo.Payout{},
		&infrarepo.PayoutBatch{},
	)
}

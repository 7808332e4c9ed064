// Package postgres wires the repo layer's *gorm.DB connection and the set
// of tables this core owns.
package postgres

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	types "github.com/moveset-labs/clipcore/internal/domain"
	"github.com/moveset-labs/clipcore/internal/platform/logger"
)

type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

func New(log *logger.Logger, dsn string) (*Service, error) {
	serviceLog := log.With("service", "PostgresService")

	serviceLog.Info("connecting to postgres")
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		return nil, fmt.Errorf("enable uuid-ossp extension: %w", err)
	}
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto;`).Error; err != nil {
		return nil, fmt.Errorf("enable pgcrypto extension: %w", err)
	}

	return &Service{db: db, log: serviceLog}, nil
}

func (s *Service) DB() *gorm.DB { return s.db }

// AutoMigrateAll brings the exercises and jobs tables up to date with their
// struct definitions. Called once at process startup.
func (s *Service) AutoMigrateAll() error {
	s.log.Info("auto migrating postgres tables")
	if err := s.db.AutoMigrate(&types.Exercise{}, &types.Job{}); err != nil {
		s.log.Error("auto migration failed", "error", err)
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

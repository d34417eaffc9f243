package store

import (
	"context"

	"gorm.io/gorm"
)

type Store interface {
	NewTransactionContext(ctx context.Context) (context.Context, error)
	Job() Job
	InitialMigration() error
	Close() error
}

type DataStore struct {
	job Job
	db  *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		job: NewJobStore(db),
		db:  db,
	}
}

func (s *DataStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return newTransactionContext(ctx, s.db)
}

func (s *DataStore) Job() Job {
	return s.job
}

func (s *DataStore) InitialMigration() error {
	return s.job.InitialMigration()
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

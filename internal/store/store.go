package store

import (
	"context"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type Store interface {
	NewTransactionContext(ctx context.Context) (context.Context, error)
	Job() Job
	Result() Result
	InitialMigration(ctx context.Context) error
	Close() error
}

type DataStore struct {
	db     *gorm.DB
	job    Job
	result Result
	log    logrus.FieldLogger
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		db:     db,
		job:    NewJobStore(db),
		result: NewResultStore(db),
		log:    logrus.WithField("component", "store"),
	}
}

func (s *DataStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return newTransactionContext(ctx, s.db, s.log)
}

func (s *DataStore) Job() Job {
	return s.job
}

func (s *DataStore) Result() Result {
	return s.result
}

func (s *DataStore) InitialMigration(ctx context.Context) error {
	return WithTransaction(ctx, s.db, s.log, func(ctx context.Context) error {
		if err := s.Job().InitialMigration(ctx); err != nil {
			return err
		}
		return s.Result().InitialMigration(ctx)
	})
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

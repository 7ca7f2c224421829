package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/onronder/ContentLabTech-sub011/internal/store/model"
)

// Result persists the latest analysis result per project and type.
type Result interface {
	InitialMigration(ctx context.Context) error
	// Upsert replaces the stored result unless it is newer than r.
	Upsert(ctx context.Context, r model.AnalysisResult) error
	Get(ctx context.Context, projectID, analysisType string) (*model.AnalysisResult, error)
	List(ctx context.Context, filter *ResultQueryFilter) (model.AnalysisResultList, error)
}

type ResultStore struct {
	db *gorm.DB
}

var _ Result = (*ResultStore)(nil)

func NewResultStore(db *gorm.DB) Result {
	return &ResultStore{db: db}
}

func (s *ResultStore) InitialMigration(ctx context.Context) error {
	return s.getDB(ctx).AutoMigrate(&model.AnalysisResult{})
}

func (s *ResultStore) Upsert(ctx context.Context, r model.AnalysisResult) error {
	result := s.getDB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_id"}, {Name: "analysis_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"job_id", "data", "updated_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "analysis_results.updated_at <= excluded.updated_at"},
		}},
	}).Create(&r)
	if result.Error != nil {
		return fmt.Errorf("saving %s result of project %s: %w", r.AnalysisType, r.ProjectID, result.Error)
	}
	return nil
}

func (s *ResultStore) Get(ctx context.Context, projectID, analysisType string) (*model.AnalysisResult, error) {
	var r model.AnalysisResult
	result := s.getDB(ctx).First(&r, "project_id = ? AND analysis_type = ?", projectID, analysisType)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying result: %w", result.Error)
	}
	return &r, nil
}

func (s *ResultStore) List(ctx context.Context, filter *ResultQueryFilter) (model.AnalysisResultList, error) {
	var results model.AnalysisResultList
	tx := s.getDB(ctx).Model(&results).Order("project_id").Order("analysis_type")
	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}
	if err := tx.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *ResultStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db.WithContext(ctx)
}

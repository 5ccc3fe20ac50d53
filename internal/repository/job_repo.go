package repository

import (
	"context"

	"github.com/timmy/producer-tools/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// JobRepository persists finished conversion jobs for history listings.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
//
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Upsert creates or replaces a conversion record keyed by job ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - rec: record to create or update.
//
// Returns:
//   - error: non-nil if the upsert fails.
func (r *JobRepository) Upsert(ctx context.Context, rec *domain.ConversionRecord) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(rec).Error
}

// GetByID retrieves a record by job ID.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.ConversionRecord, error) {
	var rec domain.ConversionRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns records newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
//
// Returns:
//   - []domain.ConversionRecord: records ordered by created_at desc.
//   - error: non-nil if the query fails.
func (r *JobRepository) List(ctx context.Context, limit, offset int) ([]domain.ConversionRecord, error) {
	var records []domain.ConversionRecord
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id").
		Limit(limit).
		Offset(offset).
		Find(&records).Error
	return records, err
}

// CountByState returns the number of records per terminal state.
func (r *JobRepository) CountByState(ctx context.Context) (map[domain.JobState]int64, error) {
	var rows []struct {
		State domain.JobState
		Count int64
	}
	err := r.db.WithContext(ctx).
		Model(&domain.ConversionRecord{}).
		Select("state, COUNT(*) AS count").
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[domain.JobState]int64, len(rows))
	for _, row := range rows {
		out[row.State] = row.Count
	}
	return out, nil
}

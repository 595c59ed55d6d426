package importbatch

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var batchColumns = []string{
	"id", "source_name", "status",
	"total_records", "processed_records", "created_records", "updated_records", "skipped_records", "failed_records",
	"started_at", "completed_at", "created_at", "updated_at",
}

// Counters are per-record outcome increments applied to a running batch.
type Counters struct {
	Processed int
	Created   int
	Updated   int
	Skipped   int
	Failed    int
}

// Repository handles import batch persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new import batch repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Create inserts a new running batch. Missing id and timestamps are
// assigned.
func (r *Repository) Create(ctx context.Context, batch *models.ImportBatch) error {
	ctx, span := tracing.StartSpan(ctx, "importbatch.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}
	if batch.Status == "" {
		batch.Status = models.ImportBatchStatusRunning
	}
	if batch.StartedAt.IsZero() {
		batch.StartedAt = now
	}
	batch.CreatedAt = now
	batch.UpdatedAt = now

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("import_batches")
	sb.Cols(batchColumns...)
	sb.Values(
		batch.ID, batch.SourceName, batch.Status,
		batch.TotalRecords, batch.ProcessedRecords, batch.CreatedRecords, batch.UpdatedRecords, batch.SkippedRecords, batch.FailedRecords,
		batch.StartedAt, batch.CompletedAt, batch.CreatedAt, batch.UpdatedAt,
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": batch.ID, "source_name": batch.SourceName}).Error("Failed to create import batch")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create import batch")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": batch.ID, "source_name": batch.SourceName}).Info("Created import batch")
	return nil
}

// Get retrieves an import batch by ID.
func (r *Repository) Get(ctx context.Context, id string) (*models.ImportBatch, error) {
	ctx, span := tracing.StartSpan(ctx, "importbatch.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(batchColumns...)
	sb.From("import_batches")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var batch models.ImportBatch
	if err := r.db.GetContext(ctx, &batch, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "import batch %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get import batch")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get import batch")
	}
	return &batch, nil
}

// List retrieves import batches, newest first.
func (r *Repository) List(ctx context.Context, page, pageSize int) (*models.ImportBatchListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "importbatch.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, "SELECT COUNT(*) FROM import_batches"); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count import batches")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count import batches")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(batchColumns...)
	sb.From("import_batches")
	sb.OrderBy("started_at DESC", "id ASC")
	sb.Limit(pageSize).Offset(offset)

	query, args := sb.Build()
	var batches []models.ImportBatch
	if err := r.db.SelectContext(ctx, &batches, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list import batches")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list import batches")
	}

	return &models.ImportBatchListResponse{
		Items:      batches,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// Recent returns the most recently started batches for the stats endpoint.
func (r *Repository) Recent(ctx context.Context, limit int) ([]models.ImportBatch, error) {
	ctx, span := tracing.StartSpan(ctx, "importbatch.Repository.Recent")
	defer span.End()

	if limit < 1 || limit > 50 {
		limit = 5
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(batchColumns...)
	sb.From("import_batches")
	sb.OrderBy("started_at DESC", "id ASC")
	sb.Limit(limit)

	query, args := sb.Build()
	var batches []models.ImportBatch
	if err := r.db.SelectContext(ctx, &batches, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to load recent import batches")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to load import batches")
	}
	return batches, nil
}

// IncrementCounters applies per-record outcome counts to a running batch.
func (r *Repository) IncrementCounters(ctx context.Context, id string, c Counters) error {
	ctx, span := tracing.StartSpan(ctx, "importbatch.Repository.IncrementCounters")
	defer span.End()

	query := `
		UPDATE import_batches SET
			processed_records = processed_records + $2,
			created_records = created_records + $3,
			updated_records = updated_records + $4,
			skipped_records = skipped_records + $5,
			failed_records = failed_records + $6,
			updated_at = $7
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, c.Processed, c.Created, c.Updated, c.Skipped, c.Failed, time.Now().UTC())
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to increment import batch counters")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update import batch")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "import batch %s not found", id)
	}
	return nil
}

// Complete finishes a batch with the given terminal status.
func (r *Repository) Complete(ctx context.Context, id, status string) error {
	ctx, span := tracing.StartSpan(ctx, "importbatch.Repository.Complete")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("import_batches")
	sb.Set(
		sb.Assign("status", status),
		sb.Assign("completed_at", now),
		sb.Assign("updated_at", now),
	)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "status": status}).Error("Failed to complete import batch")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to complete import batch")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "import batch %s not found", id)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id, "status": status}).Info("Completed import batch")
	return nil
}

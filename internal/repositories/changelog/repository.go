// Package changelog persists the append-only member change history. Records
// are only ever inserted; history questions are answered by replay.
package changelog

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

var changeColumns = []string{
	"id", "member_id", "field", "old_value", "new_value",
	"source", "actor", "reason", "group_id", "created_at",
}

// Repository handles change record persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new changelog repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Append inserts change records in order. Missing ids and timestamps are
// assigned. A nil or empty slice is a no-op.
func (r *Repository) Append(ctx context.Context, records []models.ChangeRecord) error {
	ctx, span := tracing.StartSpan(ctx, "changelog.Repository.Append")
	defer span.End()

	if len(records) == 0 {
		return nil
	}

	now := time.Now().UTC()
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = uuid.New().String()
		}
		if records[i].CreatedAt.IsZero() {
			records[i].CreatedAt = now
		}
	}

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	const batchSize = 500
	for i := 0; i < len(records); i += batchSize {
		end := i + batchSize
		if end > len(records) {
			end = len(records)
		}

		sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
		sb.InsertInto("member_change_history")
		sb.Cols(changeColumns...)
		for _, rec := range records[i:end] {
			sb.Values(rec.ID, rec.MemberID, rec.Field, rec.OldValue, rec.NewValue, rec.Source, rec.Actor, rec.Reason, rec.GroupID, rec.CreatedAt)
		}
		query, args := sb.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(records)}).Error("Failed to append change records")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to append change records")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"count": len(records)}).Debug("Appended change records")
	return nil
}

// ListForMember retrieves a member's change history, newest first. A field
// filter narrows to one column's history.
func (r *Repository) ListForMember(ctx context.Context, memberID string, field *string, page, pageSize int) (*models.ChangeRecordListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "changelog.Repository.ListForMember")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From("member_change_history")
	countWhere := []string{countSb.Equal("member_id", memberID)}
	if field != nil {
		countWhere = append(countWhere, countSb.Equal("field", *field))
	}
	countSb.Where(countWhere...)

	countQuery, countArgs := countSb.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"member_id": memberID}).Error("Failed to count change records")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count change records")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(changeColumns...)
	sb.From("member_change_history")
	where := []string{sb.Equal("member_id", memberID)}
	if field != nil {
		where = append(where, sb.Equal("field", *field))
	}
	sb.Where(where...)
	sb.OrderBy("created_at DESC", "id DESC")
	sb.Limit(pageSize).Offset(offset)

	query, args := sb.Build()
	var records []models.ChangeRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"member_id": memberID}).Error("Failed to list change records")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list change records")
	}

	return &models.ChangeRecordListResponse{
		Items:      records,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// FieldHistory returns every change to one field in replay order, oldest
// first.
func (r *Repository) FieldHistory(ctx context.Context, memberID, field string) ([]models.ChangeRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "changelog.Repository.FieldHistory")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(changeColumns...)
	sb.From("member_change_history")
	sb.Where(
		sb.Equal("member_id", memberID),
		sb.Equal("field", field),
	)
	sb.OrderBy("created_at ASC", "id ASC")

	query, args := sb.Build()
	var records []models.ChangeRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"member_id": memberID, "field": field}).Error("Failed to load field history")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to load field history")
	}
	return records, nil
}

// CountSince counts changes recorded at or after the given time.
func (r *Repository) CountSince(ctx context.Context, since time.Time) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "changelog.Repository.CountSince")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From("member_change_history")
	sb.Where(sb.GreaterEqualThan("created_at", since))

	query, args := sb.Build()
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count recent changes")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count changes")
	}
	return count, nil
}

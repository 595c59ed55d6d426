// Package duplicategroup persists detector output: groups of members
// believed to be the same person, plus each member's pairwise evidence.
package duplicategroup

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

var groupColumns = []string{
	"id", "status", "score", "primary_member_id", "detection_run_id",
	"resolved_at", "resolved_by", "created_at", "updated_at",
}

var groupMemberColumns = []string{
	"group_id", "member_id", "similarity", "matched_fields", "is_primary", "created_at",
}

// Repository handles duplicate group persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new duplicate group repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// DB returns the underlying database for transaction scoping.
func (r *Repository) DB() database.DB {
	return r.db
}

// Create inserts a group and its member rows in one transaction. Missing
// ids and timestamps are assigned.
func (r *Repository) Create(ctx context.Context, group *models.DuplicateGroup) error {
	ctx, span := tracing.StartSpan(ctx, "duplicategroup.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.Status == "" {
		group.Status = models.DuplicateGroupStatusOpen
	}
	group.CreatedAt = now
	group.UpdatedAt = now

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("duplicate_groups")
	sb.Cols(groupColumns...)
	sb.Values(group.ID, group.Status, group.Score, group.PrimaryMemberID, group.DetectionRunID, group.ResolvedAt, group.ResolvedBy, group.CreatedAt, group.UpdatedAt)

	query, args := sb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": group.ID}).Error("Failed to insert duplicate group")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create duplicate group")
	}

	if len(group.Members) > 0 {
		mb := sqlbuilder.PostgreSQL.NewInsertBuilder()
		mb.InsertInto("duplicate_group_members")
		mb.Cols(groupMemberColumns...)
		for i := range group.Members {
			m := &group.Members[i]
			m.GroupID = group.ID
			if m.CreatedAt.IsZero() {
				m.CreatedAt = now
			}
			mb.Values(m.GroupID, m.MemberID, m.Similarity, m.MatchedFields, m.IsPrimary, m.CreatedAt)
		}
		query, args := mb.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": group.ID, "member_count": len(group.Members)}).Error("Failed to insert duplicate group members")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create duplicate group")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": group.ID, "member_count": len(group.Members), "score": group.Score}).Info("Created duplicate group")
	return nil
}

// Get retrieves a duplicate group with its members.
func (r *Repository) Get(ctx context.Context, id string) (*models.DuplicateGroup, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicategroup.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(groupColumns...)
	sb.From("duplicate_groups")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var group models.DuplicateGroup
	if err := r.db.GetContext(ctx, &group, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "duplicate group %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get duplicate group")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get duplicate group")
	}

	if err := r.loadMembers(ctx, []*models.DuplicateGroup{&group}); err != nil {
		return nil, err
	}
	return &group, nil
}

// List retrieves duplicate groups with an optional status filter, newest
// first, members included.
func (r *Repository) List(ctx context.Context, status *string, page, pageSize int) (*models.DuplicateGroupListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicategroup.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From("duplicate_groups")
	countWhere := []string{"1 = 1"}
	if status != nil {
		countWhere = []string{countSb.Equal("status", *status)}
	}
	countSb.Where(countWhere...)

	countQuery, countArgs := countSb.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count duplicate groups")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count duplicate groups")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(groupColumns...)
	sb.From("duplicate_groups")
	where := []string{"1 = 1"}
	if status != nil {
		where = []string{sb.Equal("status", *status)}
	}
	sb.Where(where...)
	sb.OrderBy("score DESC", "created_at DESC", "id ASC")
	sb.Limit(pageSize).Offset(offset)

	query, args := sb.Build()
	var groups []models.DuplicateGroup
	if err := r.db.SelectContext(ctx, &groups, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list duplicate groups")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list duplicate groups")
	}

	refs := make([]*models.DuplicateGroup, len(groups))
	for i := range groups {
		refs[i] = &groups[i]
	}
	if err := r.loadMembers(ctx, refs); err != nil {
		return nil, err
	}

	return &models.DuplicateGroupListResponse{
		Items:      groups,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// ListUnresolved returns every group still awaiting a decision, members
// included. Detection runs diff their findings against this set.
func (r *Repository) ListUnresolved(ctx context.Context) ([]models.DuplicateGroup, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicategroup.Repository.ListUnresolved")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(groupColumns...)
	sb.From("duplicate_groups")
	sb.Where(sb.In("status", models.DuplicateGroupStatusOpen, models.DuplicateGroupStatusReview))
	sb.OrderBy("created_at ASC", "id ASC")

	query, args := sb.Build()
	var groups []models.DuplicateGroup
	if err := r.db.SelectContext(ctx, &groups, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list unresolved duplicate groups")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list duplicate groups")
	}

	refs := make([]*models.DuplicateGroup, len(groups))
	for i := range groups {
		refs[i] = &groups[i]
	}
	if err := r.loadMembers(ctx, refs); err != nil {
		return nil, err
	}
	return groups, nil
}

// MarkReview parks an open group for manual review. The group stays
// unresolved, so resolved_at is left empty.
func (r *Repository) MarkReview(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "duplicategroup.Repository.MarkReview")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("duplicate_groups")
	sb.Set(
		sb.Assign("status", models.DuplicateGroupStatusReview),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("status", models.DuplicateGroupStatusOpen),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to mark duplicate group for review")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark duplicate group for review")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusConflict, "duplicate group %s is not open", id)
	}
	return nil
}

// Resolve transitions an unresolved group to merged or dismissed.
func (r *Repository) Resolve(ctx context.Context, id, status string, resolvedBy *string) error {
	ctx, span := tracing.StartSpan(ctx, "duplicategroup.Repository.Resolve")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("duplicate_groups")
	sb.Set(
		sb.Assign("status", status),
		sb.Assign("resolved_at", now),
		sb.Assign("resolved_by", resolvedBy),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.In("status", models.DuplicateGroupStatusOpen, models.DuplicateGroupStatusReview),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "status": status}).Error("Failed to resolve duplicate group")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve duplicate group")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusConflict, "duplicate group %s is not open for resolution", id)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id, "status": status}).Info("Resolved duplicate group")
	return nil
}

// CountByStatus returns group counts keyed by status.
func (r *Repository) CountByStatus(ctx context.Context) (map[string]int, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicategroup.Repository.CountByStatus")
	defer span.End()

	query := `SELECT status, COUNT(*) AS count FROM duplicate_groups GROUP BY status`

	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count duplicate groups by status")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count duplicate groups")
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// loadMembers attaches member rows to the given groups with one query.
func (r *Repository) loadMembers(ctx context.Context, groups []*models.DuplicateGroup) error {
	if len(groups) == 0 {
		return nil
	}

	ids := make([]string, len(groups))
	byID := make(map[string]*models.DuplicateGroup, len(groups))
	for i, g := range groups {
		ids[i] = g.ID
		byID[g.ID] = g
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(groupMemberColumns...)
	sb.From("duplicate_group_members")
	sb.Where(sb.In("group_id", sqlbuilder.Flatten(ids)...))
	sb.OrderBy("group_id ASC", "is_primary DESC", "similarity DESC", "member_id ASC")

	query, args := sb.Build()
	var members []models.DuplicateGroupMember
	if err := r.db.SelectContext(ctx, &members, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"group_ids": ids}).Error("Failed to load duplicate group members")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to load duplicate group members")
	}

	for _, m := range members {
		if g, ok := byID[m.GroupID]; ok {
			g.Members = append(g.Members, m)
		}
	}
	return nil
}

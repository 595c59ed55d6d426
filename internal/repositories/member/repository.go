package member

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// memberColumns lists every persisted column in struct order. The insert and
// update statements are generated from it so the three stay in sync.
var memberColumns = []string{
	"id", "import_batch_id", "source_name", "source_record_id", "data_vintage",
	"full_name", "first_name", "middle_name", "last_name", "nickname", "honorific", "name_suffix",
	"batch_year", "batch_semester", "batch_sub_number", "batch_label", "batch_decade", "chapter_name",
	"email", "email_domain", "email_sector", "mobile_number", "landline_number",
	"home_address", "home_city", "home_region", "office_address", "office_city", "office_region",
	"job_title", "company", "declared_profession", "specializations", "inference",
	"open_to_referrals", "status", "is_duplicate", "duplicate_of_id",
	"completeness_score", "confidence_score", "fingerprint", "previous_fingerprint", "raw_data",
	"last_verified_at", "verified_by", "created_at", "updated_at", "deleted_at",
}

var insertMemberQuery = "INSERT INTO members (" + strings.Join(memberColumns, ", ") +
	") VALUES (:" + strings.Join(memberColumns, ", :") + ")"

var updateMemberQuery = func() string {
	sets := make([]string, 0, len(memberColumns))
	for _, col := range memberColumns {
		if col == "id" || col == "created_at" {
			continue
		}
		sets = append(sets, col+" = :"+col)
	}
	return "UPDATE members SET " + strings.Join(sets, ", ") + " WHERE id = :id"
}()

// ListFilter narrows a member listing. Nil fields are ignored.
type ListFilter struct {
	Status            *string
	BatchYear         *int
	Chapter           *string
	Category          *string
	City              *string
	IncludeDuplicates bool
	IncludeDeleted    bool
	Page              int
	PageSize          int
}

// Repository handles member persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new member repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// DB returns the underlying database for transaction scoping.
func (r *Repository) DB() database.DB {
	return r.db
}

// Create inserts a new member. Missing id and timestamps are assigned.
func (r *Repository) Create(ctx context.Context, m *models.Member) error {
	ctx, span := tracing.StartSpan(ctx, "member.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	if _, err := r.db.NamedExecContext(ctx, insertMemberQuery, m); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": m.ID, "full_name": m.FullName}).Error("Failed to create member")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create member")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": m.ID}).Info("Created member")
	return nil
}

// Update writes every mutable column of the member row.
func (r *Repository) Update(ctx context.Context, m *models.Member) error {
	ctx, span := tracing.StartSpan(ctx, "member.Repository.Update")
	defer span.End()

	m.UpdatedAt = time.Now().UTC()

	result, err := r.db.NamedExecContext(ctx, updateMemberQuery, m)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": m.ID}).Error("Failed to update member")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update member")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "member %s not found", m.ID)
	}
	return nil
}

// Get retrieves a member by ID, including soft-deleted rows so lifecycle
// endpoints can act on them.
func (r *Repository) Get(ctx context.Context, id string) (*models.Member, error) {
	ctx, span := tracing.StartSpan(ctx, "member.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(memberColumns...)
	sb.From("members")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var m models.Member
	if err := r.db.GetContext(ctx, &m, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "member %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get member")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get member")
	}
	return &m, nil
}

// GetByIDs retrieves members by ids. Missing ids are silently absent.
func (r *Repository) GetByIDs(ctx context.Context, ids []string) ([]models.Member, error) {
	ctx, span := tracing.StartSpan(ctx, "member.Repository.GetByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(memberColumns...)
	sb.From("members")
	sb.Where(
		sb.In("id", sqlbuilder.Flatten(ids)...),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var members []models.Member
	if err := r.db.SelectContext(ctx, &members, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"ids": ids}).Error("Failed to get members by ids")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get members")
	}
	return members, nil
}

// GetByEmail finds the most recently updated live member with this exact
// normalized email. Returns nil when none exists.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.Member, error) {
	ctx, span := tracing.StartSpan(ctx, "member.Repository.GetByEmail")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(memberColumns...)
	sb.From("members")
	sb.Where(
		sb.Equal("email", email),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("updated_at DESC")
	sb.Limit(1)

	query, args := sb.Build()
	var m models.Member
	if err := r.db.GetContext(ctx, &m, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"email": email}).Error("Failed to get member by email")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get member")
	}
	return &m, nil
}

// GetBySourceRecord finds the member previously ingested from this source
// row. Returns nil when the source row has never been seen.
func (r *Repository) GetBySourceRecord(ctx context.Context, sourceName, sourceRecordID string) (*models.Member, error) {
	ctx, span := tracing.StartSpan(ctx, "member.Repository.GetBySourceRecord")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(memberColumns...)
	sb.From("members")
	sb.Where(
		sb.Equal("source_name", sourceName),
		sb.Equal("source_record_id", sourceRecordID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("updated_at DESC")
	sb.Limit(1)

	query, args := sb.Build()
	var m models.Member
	if err := r.db.GetContext(ctx, &m, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"source_name": sourceName, "source_record_id": sourceRecordID}).Error("Failed to get member by source record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get member")
	}
	return &m, nil
}

// FindByLastName lists live non-duplicate members sharing this normalized
// last name. The processor uses it as the candidate pool when matching an
// imported record against existing identities.
func (r *Repository) FindByLastName(ctx context.Context, lastName string) ([]models.Member, error) {
	ctx, span := tracing.StartSpan(ctx, "member.Repository.FindByLastName")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(memberColumns...)
	sb.From("members")
	sb.Where(
		sb.Equal("last_name", lastName),
		sb.Equal("is_duplicate", false),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var members []models.Member
	if err := r.db.SelectContext(ctx, &members, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"last_name": lastName}).Error("Failed to find members by last name")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find members")
	}
	return members, nil
}

// List retrieves members with filtering and pagination.
func (r *Repository) List(ctx context.Context, filter ListFilter) (*models.MemberListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "member.Repository.List")
	defer span.End()

	page := filter.Page
	pageSize := filter.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From("members")
	countSb.Where(filterConditions(countSb, filter)...)

	countQuery, countArgs := countSb.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count members")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count members")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(memberColumns...)
	sb.From("members")
	sb.Where(filterConditions(sb, filter)...)
	sb.OrderBy("full_name ASC", "id ASC")
	sb.Limit(pageSize).Offset(offset)

	query, args := sb.Build()
	var members []models.Member
	if err := r.db.SelectContext(ctx, &members, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list members")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list members")
	}

	return &models.MemberListResponse{
		Items:      members,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// filterConditions translates a ListFilter into builder conditions. The
// builder argument matters: conditions bind their args to it.
func filterConditions(sb *sqlbuilder.SelectBuilder, filter ListFilter) []string {
	var where []string
	if !filter.IncludeDeleted {
		where = append(where, sb.IsNull("deleted_at"))
	}
	if !filter.IncludeDuplicates {
		where = append(where, sb.Equal("is_duplicate", false))
	}
	if filter.Status != nil {
		where = append(where, sb.Equal("status", *filter.Status))
	}
	if filter.BatchYear != nil {
		where = append(where, sb.Equal("batch_year", *filter.BatchYear))
	}
	if filter.Chapter != nil {
		where = append(where, sb.Equal("chapter_name", *filter.Chapter))
	}
	if filter.City != nil {
		where = append(where, sb.Or(
			sb.Equal("home_city", *filter.City),
			sb.Equal("office_city", *filter.City),
		))
	}
	if filter.Category != nil {
		where = append(where, sb.Or(
			sb.Equal("declared_profession", *filter.Category),
			sb.Equal("inference -> 'profession' ->> 'value'", *filter.Category),
		))
	}
	if len(where) == 0 {
		where = append(where, "1 = 1")
	}
	return where
}

// ListSearchable returns every member eligible for duplicate detection and
// ranking: active, not flagged as a duplicate, not deleted.
func (r *Repository) ListSearchable(ctx context.Context) ([]*models.Member, error) {
	ctx, span := tracing.StartSpan(ctx, "member.Repository.ListSearchable")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(memberColumns...)
	sb.From("members")
	sb.Where(
		sb.Equal("status", models.MemberStatusActive),
		sb.Equal("is_duplicate", false),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("created_at ASC", "id ASC")

	query, args := sb.Build()
	var members []*models.Member
	if err := r.db.SelectContext(ctx, &members, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list searchable members")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list members")
	}
	return members, nil
}

// MarkDuplicate flags a member as a duplicate of the primary.
func (r *Repository) MarkDuplicate(ctx context.Context, id, primaryID string) error {
	ctx, span := tracing.StartSpan(ctx, "member.Repository.MarkDuplicate")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("members")
	sb.Set(
		sb.Assign("is_duplicate", true),
		sb.Assign("duplicate_of_id", primaryID),
		sb.Assign("updated_at", now),
	)
	sb.Where(sb.Equal("id", id), sb.IsNull("deleted_at"))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "primary_id": primaryID}).Error("Failed to mark member as duplicate")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark duplicate")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "member %s not found", id)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id, "primary_id": primaryID}).Info("Marked member as duplicate")
	return nil
}

// RepointDuplicates redirects every member pointing at oldPrimaryID to
// newPrimaryID. Keeps duplicate references flat when a former primary
// itself loses a later merge.
func (r *Repository) RepointDuplicates(ctx context.Context, oldPrimaryID, newPrimaryID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "member.Repository.RepointDuplicates")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("members")
	sb.Set(
		sb.Assign("duplicate_of_id", newPrimaryID),
		sb.Assign("updated_at", now),
	)
	sb.Where(sb.Equal("duplicate_of_id", oldPrimaryID))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"old_primary_id": oldPrimaryID, "new_primary_id": newPrimaryID}).Error("Failed to repoint duplicates")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to repoint duplicates")
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		r.logger.WithContext(ctx).WithFields(map[string]any{"old_primary_id": oldPrimaryID, "new_primary_id": newPrimaryID, "count": rows}).Info("Repointed duplicate references")
	}
	return rows, nil
}

// Deactivate soft deletes a member and marks it inactive.
func (r *Repository) Deactivate(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "member.Repository.Deactivate")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("members")
	sb.Set(
		sb.Assign("status", models.MemberStatusInactive),
		sb.Assign("deleted_at", now),
		sb.Assign("updated_at", now),
	)
	sb.Where(sb.Equal("id", id), sb.IsNull("deleted_at"))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to deactivate member")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to deactivate member")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "member %s not found", id)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Deactivated member")
	return nil
}

// Restore reactivates a soft-deleted member.
func (r *Repository) Restore(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "member.Repository.Restore")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("members")
	sb.Set(
		sb.Assign("status", models.MemberStatusActive),
		sb.Assign("deleted_at", nil),
		sb.Assign("updated_at", now),
	)
	sb.Where(sb.Equal("id", id), sb.IsNotNull("deleted_at"))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to restore member")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to restore member")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "member %s is not deactivated", id)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Restored member")
	return nil
}

// RecordVerification stamps a member as human-verified and stores the new
// confidence score.
func (r *Repository) RecordVerification(ctx context.Context, id, verifiedBy string, confidence float64) error {
	ctx, span := tracing.StartSpan(ctx, "member.Repository.RecordVerification")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("members")
	sb.Set(
		sb.Assign("last_verified_at", now),
		sb.Assign("verified_by", verifiedBy),
		sb.Assign("confidence_score", confidence),
		sb.Assign("updated_at", now),
	)
	sb.Where(sb.Equal("id", id), sb.IsNull("deleted_at"))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to record verification")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to record verification")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "member %s not found", id)
	}
	return nil
}

// Stats computes the aggregate member counters in one pass.
func (r *Repository) Stats(ctx context.Context) (*models.MemberStats, error) {
	ctx, span := tracing.StartSpan(ctx, "member.Repository.Stats")
	defer span.End()

	query := `
		SELECT
			COUNT(*) AS total_members,
			COUNT(*) FILTER (WHERE status = 'active' AND is_duplicate = false) AS active_members,
			COUNT(*) FILTER (WHERE status = 'inactive') AS inactive_members,
			COUNT(*) FILTER (WHERE is_duplicate = true) AS flagged_duplicates,
			COUNT(*) FILTER (WHERE email IS NOT NULL) AS with_email,
			COUNT(*) FILTER (WHERE mobile_number IS NOT NULL) AS with_mobile,
			COUNT(*) FILTER (WHERE email IS NOT NULL OR mobile_number IS NOT NULL) AS contactable,
			COALESCE(AVG(confidence_score), 0) AS average_confidence,
			COALESCE(AVG(completeness_score), 0) AS average_completeness
		FROM members
		WHERE deleted_at IS NULL
	`

	var stats models.MemberStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to compute member stats")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to compute member stats")
	}
	return &stats, nil
}

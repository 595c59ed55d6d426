// Package directory implements the member write path for the HTTP API.
// It runs the same build-infer-persist pipeline the import consumer
// runs, with the change source set to the acting user instead of an
// import batch.
package directory

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/repositories/changelog"
	"github.com/Ramsey-B/fern/internal/repositories/member"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/inference"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/records"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Service handles member writes coming from the API. The emitter and
// projection are optional; pass nil to skip them.
type Service struct {
	logger     ectologger.Logger
	builder    *records.Builder
	engine     *inference.Engine
	members    *member.Repository
	changeLog  *changelog.Repository
	emitter    *events.Emitter
	projection *graph.Projection
}

// NewService creates a new directory service
func NewService(logger ectologger.Logger, builder *records.Builder, engine *inference.Engine, members *member.Repository, changeLog *changelog.Repository, emitter *events.Emitter, projection *graph.Projection) *Service {
	return &Service{
		logger:     logger,
		builder:    builder,
		engine:     engine,
		members:    members,
		changeLog:  changeLog,
		emitter:    emitter,
		projection: projection,
	}
}

// Create builds a member from raw fields and persists it. Malformed
// input that cannot yield a usable name is a 400; individual field
// issues degrade and are returned alongside the member.
func (s *Service) Create(ctx context.Context, req models.CreateMemberRequest, actor *string) (*models.Member, []records.FieldIssue, error) {
	ctx, span := tracing.StartSpan(ctx, "directory.Service.Create")
	defer span.End()

	raw := &models.RawMemberRecord{
		SourceName:     req.SourceName,
		SourceRecordID: req.SourceRecordID,
		ImportBatchID:  req.ImportBatchID,
		Fields:         req.Fields,
	}

	result, err := s.builder.Build(ctx, raw)
	if err != nil {
		if models.IsMalformedInput(err) {
			return nil, nil, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		s.logger.WithContext(ctx).WithError(err).Error("Failed to build member")
		return nil, nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to build member")
	}

	m := result.Member
	changes := result.Changes
	for i := range changes {
		changes[i].Source = models.ChangeSourceAPI
		changes[i].Actor = actor
	}

	if inferred := s.engine.Infer(ctx, m); inferred != nil {
		change, err := s.builder.ApplyInference(m, inferred)
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("Failed to record inference change")
		} else if change != nil {
			changes = append(changes, *change)
			records.Finalize(m)
		}
	}

	if err := s.members.Create(ctx, m); err != nil {
		return nil, result.Issues, err
	}
	s.appendHistory(ctx, m.ID, changes)
	s.syncGraph(ctx, m)

	if s.emitter != nil {
		if err := s.emitter.EmitMemberCreated(ctx, m); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("Member created event not published")
		}
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"member_id": m.ID,
		"full_name": m.FullName,
	}).Info("Created member")
	return m, result.Issues, nil
}

// Update re-normalizes the provided raw fields onto an existing member.
// A no-op update writes nothing and appends no history.
func (s *Service) Update(ctx context.Context, id string, req models.UpdateMemberRequest, actor *string) (*models.Member, []records.FieldIssue, error) {
	ctx, span := tracing.StartSpan(ctx, "directory.Service.Update")
	defer span.End()

	m, err := s.members.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if m.DeletedAt != nil {
		return nil, nil, httperror.NewHTTPErrorf(http.StatusConflict, "member %s is deactivated", id)
	}

	changes, issues, err := s.builder.Update(ctx, m, req.Fields, models.ChangeSourceAPI, actor)
	if err != nil {
		if models.IsMalformedInput(err) {
			return nil, issues, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"member_id": id}).Error("Failed to apply member update")
		return nil, issues, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update member")
	}

	if inferred := s.engine.Infer(ctx, m); inferred != nil {
		change, err := s.builder.ApplyInference(m, inferred)
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("Failed to record inference change")
		} else if change != nil {
			changes = append(changes, *change)
			records.Finalize(m)
		}
	}

	if len(changes) == 0 {
		return m, issues, nil
	}

	if err := s.members.Update(ctx, m); err != nil {
		return nil, issues, err
	}
	s.appendHistory(ctx, m.ID, changes)
	s.syncGraph(ctx, m)

	if s.emitter != nil {
		fields := make([]string, 0, len(changes))
		for _, c := range changes {
			fields = append(fields, c.Field)
		}
		if err := s.emitter.EmitMemberUpdated(ctx, m, fields); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("Member updated event not published")
		}
	}
	return m, issues, nil
}

// Verify stamps a member as human-verified, lifts its confidence score
// and appends a verification record naming the checked fields.
func (s *Service) Verify(ctx context.Context, id string, req models.VerifyMemberRequest, actor string) (*models.Member, error) {
	ctx, span := tracing.StartSpan(ctx, "directory.Service.Verify")
	defer span.End()

	m, err := s.members.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.DeletedAt != nil {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict, "member %s is deactivated", id)
	}

	confidence := records.VerifiedConfidence(m)
	if err := s.members.RecordVerification(ctx, id, actor, confidence); err != nil {
		return nil, err
	}

	verified := any("record")
	if len(req.Fields) > 0 {
		verified = req.Fields
	}
	change, err := models.NewChange(id, "verification", models.ChangeSourceVerification, nil, verified)
	if err == nil {
		change.Actor = &actor
		if req.Notes != "" {
			notes := req.Notes
			change.Reason = &notes
		}
		s.appendHistory(ctx, id, []models.ChangeRecord{change})
	}

	m, err = s.members.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.syncGraph(ctx, m)

	if s.emitter != nil {
		if err := s.emitter.EmitMemberUpdated(ctx, m, []string{"last_verified_at", "confidence_score"}); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("Member verified event not published")
		}
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"member_id":   id,
		"verified_by": actor,
	}).Info("Verified member")
	return m, nil
}

// Deactivate soft deletes a member. The row survives for history and
// restore; the graph projection marks the node instead of removing it.
func (s *Service) Deactivate(ctx context.Context, id string, actor *string, reason string) error {
	ctx, span := tracing.StartSpan(ctx, "directory.Service.Deactivate")
	defer span.End()

	if err := s.members.Deactivate(ctx, id); err != nil {
		return err
	}

	change, err := models.NewChange(id, "status", models.ChangeSourceAPI, models.MemberStatusActive, models.MemberStatusInactive)
	if err == nil {
		change.Actor = actor
		if reason != "" {
			r := reason
			change.Reason = &r
		}
		s.appendHistory(ctx, id, []models.ChangeRecord{change})
	}

	if s.projection != nil {
		_ = s.projection.RemoveMember(ctx, id)
	}
	if s.emitter != nil {
		if err := s.emitter.EmitMemberDeactivated(ctx, id, actor, reason); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("Member deactivated event not published")
		}
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{"member_id": id}).Info("Deactivated member")
	return nil
}

// Restore reactivates a soft-deleted member.
func (s *Service) Restore(ctx context.Context, id string, actor *string) (*models.Member, error) {
	ctx, span := tracing.StartSpan(ctx, "directory.Service.Restore")
	defer span.End()

	if err := s.members.Restore(ctx, id); err != nil {
		return nil, err
	}
	m, err := s.members.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	change, err := models.NewChange(id, "status", models.ChangeSourceAPI, models.MemberStatusInactive, models.MemberStatusActive)
	if err == nil {
		change.Actor = actor
		s.appendHistory(ctx, id, []models.ChangeRecord{change})
	}

	s.syncGraph(ctx, m)
	if s.emitter != nil {
		if err := s.emitter.EmitMemberUpdated(ctx, m, []string{"status"}); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("Member restored event not published")
		}
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{"member_id": id}).Info("Restored member")
	return m, nil
}

// appendHistory writes change records behind a committed member write.
// Failures are logged, not returned; history stays behind until the
// next change.
func (s *Service) appendHistory(ctx context.Context, memberID string, changes []models.ChangeRecord) {
	if len(changes) == 0 {
		return
	}
	if err := s.changeLog.Append(ctx, changes); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"member_id": memberID}).Warn("Failed to record member history")
	}
}

// syncGraph pushes the member to the projection. Best-effort; the
// projection can be rebuilt.
func (s *Service) syncGraph(ctx context.Context, m *models.Member) {
	if s.projection == nil {
		return
	}
	_ = s.projection.SyncMember(ctx, m)
}

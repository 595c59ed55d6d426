package merging

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/repositories/changelog"
	"github.com/Ramsey-B/fern/internal/repositories/duplicategroup"
	"github.com/Ramsey-B/fern/internal/repositories/member"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Service wires merge resolution to storage and the downstream fan-out.
// The emitter and projection are optional; pass nil to skip them.
type Service struct {
	logger     ectologger.Logger
	resolver   *Resolver
	members    *member.Repository
	groups     *duplicategroup.Repository
	changeLog  *changelog.Repository
	emitter    *events.Emitter
	projection *graph.Projection
}

// NewService creates a new merge service
func NewService(logger ectologger.Logger, members *member.Repository, groups *duplicategroup.Repository, changeLog *changelog.Repository, emitter *events.Emitter, projection *graph.Projection) *Service {
	return &Service{
		logger:     logger,
		resolver:   NewResolver(logger),
		members:    members,
		groups:     groups,
		changeLog:  changeLog,
		emitter:    emitter,
		projection: projection,
	}
}

// Merge loads a group, applies the requested strategy and persists the
// result. Merging an already-merged group is a no-op and returns the
// empty result.
func (s *Service) Merge(ctx context.Context, groupID string, req models.MergeGroupRequest, actor *string) (*models.MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Service.Merge")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"group_id": groupID,
		"strategy": req.Strategy,
	})

	group, err := s.groups.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(group.Members))
	for _, gm := range group.Members {
		ids = append(ids, gm.MemberID)
	}
	rows, err := s.members.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(rows) != len(ids) {
		log.WithFields(map[string]any{"expected": len(ids), "loaded": len(rows)}).Warn("Group references members missing from storage")
	}
	members := make([]*models.Member, len(rows))
	for i := range rows {
		members[i] = &rows[i]
	}

	prior := group.Status
	outcome, err := s.resolver.Resolve(ctx, group, members, req, actor)
	if err != nil {
		if models.IsInvariantViolation(err) {
			return nil, httperror.NewHTTPError(http.StatusConflict, err.Error())
		}
		log.WithError(err).Error("Failed to resolve duplicate group")
		return nil, err
	}
	if group.Status == prior {
		return &outcome.Result, nil
	}

	if err := s.persist(ctx, outcome, actor); err != nil {
		return nil, err
	}

	metrics.RecordMerge(req.Strategy)
	s.fanOut(ctx, outcome, log)
	return &outcome.Result, nil
}

// persist writes the outcome in dependency order. There is no wrapping
// transaction: each repository call commits on its own, and the group
// transition comes last so a partial failure leaves the group open for
// a retry. Re-running a half-applied merge is safe because flagging a
// member twice changes nothing.
func (s *Service) persist(ctx context.Context, outcome *Outcome, actor *string) error {
	group := outcome.Group

	if outcome.Primary != nil {
		if err := s.members.Update(ctx, outcome.Primary); err != nil {
			return err
		}
	}
	for _, dup := range outcome.Duplicates {
		if err := s.members.MarkDuplicate(ctx, dup.ID, group.PrimaryMemberID); err != nil {
			return err
		}
		// Anyone pointing at the absorbed record now points at the new
		// primary, keeping duplicate pointers one hop deep.
		if _, err := s.members.RepointDuplicates(ctx, dup.ID, group.PrimaryMemberID); err != nil {
			return err
		}
	}

	switch group.Status {
	case models.DuplicateGroupStatusReview:
		if err := s.groups.MarkReview(ctx, group.ID); err != nil {
			return err
		}
	default:
		if err := s.groups.Resolve(ctx, group.ID, group.Status, actor); err != nil {
			return err
		}
	}

	if len(outcome.Changes) > 0 {
		if err := s.changeLog.Append(ctx, outcome.Changes); err != nil {
			// The member rows are already committed; history stays behind
			// until the next change.
			s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"group_id": group.ID}).Warn("Failed to record merge history")
		}
	}
	return nil
}

// fanOut pushes a completed merge to the graph projection and the event
// stream. Both are best-effort: the projection can be rebuilt and event
// consumers resync from storage.
func (s *Service) fanOut(ctx context.Context, outcome *Outcome, log ectologger.Logger) {
	if outcome.Primary == nil {
		return
	}
	if s.projection != nil {
		_ = s.projection.SyncMember(ctx, outcome.Primary)
		for _, dup := range outcome.Duplicates {
			_ = s.projection.LinkDuplicate(ctx, dup.ID, outcome.Primary.ID, outcome.Group.ID)
		}
	}
	if s.emitter != nil {
		if err := s.emitter.EmitMemberMerged(ctx, &outcome.Result, outcome.Primary); err != nil {
			log.WithError(err).Warn("Member merged event not published")
		}
	}
}

package matching

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/internal/repositories/duplicategroup"
	"github.com/Ramsey-B/fern/internal/repositories/member"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Service runs detection passes over the directory and persists what the
// detector finds. Groups already open for review are left untouched, so
// re-running detection never resets an operator's queue.
type Service struct {
	logger   ectologger.Logger
	detector *Detector
	members  *member.Repository
	groups   *duplicategroup.Repository
	emitter  *events.Emitter
}

// NewService creates a new detection service. The emitter may be nil when
// event emission is disabled.
func NewService(
	logger ectologger.Logger,
	detector *Detector,
	members *member.Repository,
	groups *duplicategroup.Repository,
	emitter *events.Emitter,
) *Service {
	return &Service{
		logger:   logger,
		detector: detector,
		members:  members,
		groups:   groups,
		emitter:  emitter,
	}
}

// RunDetection scans every searchable member for duplicates and records
// newly found groups. A group whose membership matches an unresolved group
// counts as unchanged; everything else becomes a fresh open group tagged
// with this run's id.
func (s *Service) RunDetection(ctx context.Context) (*models.DetectionRunResult, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Service.RunDetection")
	defer span.End()

	runID := uuid.New().String()
	startedAt := time.Now().UTC()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id": runID,
	})

	pool, err := s.members.ListSearchable(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to load members for detection")
		metrics.RecordDetectionRun("failed", 0, time.Since(startedAt).Seconds())
		return nil, err
	}

	report, err := s.detector.Detect(ctx, pool)
	if err != nil {
		log.WithError(err).Error("Detection run failed")
		metrics.RecordDetectionRun("failed", 0, time.Since(startedAt).Seconds())
		return nil, err
	}

	existing, err := s.groups.ListUnresolved(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to load unresolved groups")
		return nil, err
	}
	known := make(map[string]struct{}, len(existing))
	for i := range existing {
		known[groupSignature(memberIDs(&existing[i]))] = struct{}{}
	}

	result := &models.DetectionRunResult{
		RunID:          runID,
		MembersScanned: report.MembersScanned,
		PairsCompared:  report.PairsCompared,
		GroupsFound:    len(report.Groups),
		Truncated:      report.Truncated,
		StartedAt:      startedAt,
	}

	for i := range report.Groups {
		found := &report.Groups[i]
		if _, ok := known[groupSignature(found.MemberIDs)]; ok {
			result.GroupsUnchanged++
			continue
		}

		group := &models.DuplicateGroup{
			Status:          models.DuplicateGroupStatusOpen,
			Score:           found.Score,
			PrimaryMemberID: found.PrimaryID,
			DetectionRunID:  &runID,
			Members:         groupMembers(found),
		}
		if err := s.groups.Create(ctx, group); err != nil {
			log.WithError(err).WithFields(map[string]any{
				"primary_member_id": found.PrimaryID,
			}).Error("Failed to persist duplicate group")
			metrics.RecordDetectionRun("failed", result.GroupsFound, time.Since(startedAt).Seconds())
			return nil, err
		}
		result.GroupsCreated++
	}

	result.CompletedAt = time.Now().UTC()

	status := "completed"
	if result.Truncated {
		status = "truncated"
	}
	metrics.RecordDetectionRun(status, result.GroupsFound, result.CompletedAt.Sub(startedAt).Seconds())

	log.WithFields(map[string]any{
		"members_scanned": result.MembersScanned,
		"pairs_compared":  result.PairsCompared,
		"groups_found":    result.GroupsFound,
		"groups_created":  result.GroupsCreated,
		"truncated":       result.Truncated,
	}).Info("Detection run completed")

	if s.emitter != nil {
		if err := s.emitter.EmitDuplicatesDetected(ctx, result); err != nil {
			// The run already persisted; a missed event is not worth failing it.
			log.WithError(err).Warn("Failed to emit detection event")
		}
	}

	return result, nil
}

// groupMembers converts a detected group into persistable membership rows.
// Each member carries the strongest pair score it took part in and the
// union of the fields that matched across its pairs.
func groupMembers(found *Group) []models.DuplicateGroupMember {
	similarity := make(map[string]float64, len(found.MemberIDs))
	matched := make(map[string]map[string]struct{}, len(found.MemberIDs))

	for _, pair := range found.Pairs {
		for _, id := range []string{pair.MemberAID, pair.MemberBID} {
			if pair.Score > similarity[id] {
				similarity[id] = pair.Score
			}
			set, ok := matched[id]
			if !ok {
				set = make(map[string]struct{})
				matched[id] = set
			}
			for _, field := range pair.MatchedFields {
				set[field] = struct{}{}
			}
		}
	}

	rows := make([]models.DuplicateGroupMember, 0, len(found.MemberIDs))
	for _, id := range found.MemberIDs {
		fields := make([]string, 0, len(matched[id]))
		for field := range matched[id] {
			fields = append(fields, field)
		}
		sort.Strings(fields)

		rows = append(rows, models.DuplicateGroupMember{
			MemberID:      id,
			Similarity:    similarity[id],
			MatchedFields: database.JSONB[[]string]{Data: fields},
			IsPrimary:     id == found.PrimaryID,
		})
	}
	return rows
}

// groupSignature builds a stable identity for a set of members so a rerun
// recognizes groups it has already surfaced.
func groupSignature(ids []string) string {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)
	return strings.Join(sorted, "|")
}

func memberIDs(group *models.DuplicateGroup) []string {
	ids := make([]string, 0, len(group.Members))
	for _, m := range group.Members {
		ids = append(ids, m.MemberID)
	}
	return ids
}

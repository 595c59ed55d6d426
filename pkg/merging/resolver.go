// Package merging resolves duplicate groups into golden records. Merges
// are non-destructive: duplicate members stay in storage, flagged and
// pointed at the surviving primary, and every field the merge touches
// gets its own change record so the operation can be audited or unwound
// by hand.
package merging

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/records"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Resolver applies merge strategies to duplicate groups.
type Resolver struct {
	logger ectologger.Logger
}

// NewResolver creates a new merge resolver
func NewResolver(logger ectologger.Logger) *Resolver {
	return &Resolver{logger: logger}
}

// Outcome is everything a merge changed, ready for persistence.
type Outcome struct {
	Group *models.DuplicateGroup
	// Primary is the updated golden record; nil when the strategy does not
	// touch members.
	Primary *models.Member
	// Duplicates are the members flagged as duplicates of the primary.
	Duplicates []*models.Member
	Changes    []models.ChangeRecord
	Result     models.MergeResult
}

// Resolve applies the requested strategy to a group. The members slice
// must contain every member of the group, the primary included.
// Resolving an already-merged group is a no-op.
func (r *Resolver) Resolve(ctx context.Context, group *models.DuplicateGroup, members []*models.Member, req models.MergeGroupRequest, actor *string) (*Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Resolver.Resolve")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"group_id": group.ID,
		"strategy": req.Strategy,
	})

	outcome := &Outcome{
		Group: group,
		Result: models.MergeResult{
			GroupID:         group.ID,
			Strategy:        req.Strategy,
			PrimaryMemberID: group.PrimaryMemberID,
		},
	}

	switch group.Status {
	case models.DuplicateGroupStatusMerged:
		log.Debug("Group already merged, nothing to do")
		return outcome, nil
	case models.DuplicateGroupStatusDismissed:
		return nil, &models.InvariantViolationError{Reason: fmt.Sprintf("group %s was dismissed and cannot be merged", group.ID)}
	}

	now := time.Now().UTC()

	switch req.Strategy {
	case models.MergeStrategyManualReview:
		group.Status = models.DuplicateGroupStatusReview
		return outcome, nil

	case models.MergeStrategyKeepBoth:
		// The group was a false positive; every record stays independent.
		group.Status = models.DuplicateGroupStatusDismissed
		group.ResolvedAt = &now
		group.ResolvedBy = actor
		return outcome, nil

	case models.MergeStrategyKeepNewest:
		if err := r.merge(group, members, req, actor, outcome); err != nil {
			return nil, err
		}
		group.Status = models.DuplicateGroupStatusMerged
		group.ResolvedAt = &now
		group.ResolvedBy = actor

		log.WithFields(map[string]any{
			"merged_members": len(outcome.Result.MergedMemberIDs),
			"fields_changed": len(outcome.Result.FieldsChanged),
		}).Info("Merged duplicate group")
		return outcome, nil

	default:
		return nil, fmt.Errorf("unknown merge strategy %q", req.Strategy)
	}
}

// merge builds the golden record on the primary and flags the rest.
func (r *Resolver) merge(group *models.DuplicateGroup, members []*models.Member, req models.MergeGroupRequest, actor *string, outcome *Outcome) error {
	primary, duplicates, err := splitPrimary(group, members)
	if err != nil {
		return err
	}
	outcome.Primary = primary
	outcome.Duplicates = duplicates

	byID := make(map[string]*models.Member, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}

	for _, field := range mergeFields {
		values := collectValues(field, primary, duplicates)

		var resolved any
		var fromID string
		if overrideID, ok := req.FieldOverrides[field.name]; ok {
			source, found := byID[overrideID]
			if !found {
				return &models.InvariantViolationError{Reason: fmt.Sprintf("field override for %q names member %s outside the group", field.name, overrideID)}
			}
			resolved, fromID = field.get(source), overrideID
		} else {
			resolved, fromID = resolveValue(field, values)
		}

		if resolved == nil {
			continue
		}
		current := field.get(primary)
		if equalValue(current, resolved) {
			continue
		}

		field.set(primary, resolved)

		change, err := models.NewChange(primary.ID, field.name, models.ChangeSourceMerge, current, resolved)
		if err != nil {
			return err
		}
		change.Actor = actor
		change.GroupID = &group.ID
		if fromID != "" && fromID != primary.ID {
			reason := "taken from member " + fromID
			change.Reason = &reason
		}
		outcome.Changes = append(outcome.Changes, change)
		outcome.Result.FieldsChanged = append(outcome.Result.FieldsChanged, field.name)
	}

	// Filled-in name parts change the display name too.
	if full := joinNameParts(primary); full != "" && full != primary.FullName {
		change, err := models.NewChange(primary.ID, "full_name", models.ChangeSourceMerge, primary.FullName, full)
		if err != nil {
			return err
		}
		change.Actor = actor
		change.GroupID = &group.ID
		primary.FullName = full
		outcome.Changes = append(outcome.Changes, change)
		outcome.Result.FieldsChanged = append(outcome.Result.FieldsChanged, "full_name")
	}

	// Raw payloads from merged records survive on the primary's history;
	// the duplicates themselves keep their own raw data untouched.
	records.Finalize(primary)

	for _, dup := range duplicates {
		if dup.IsDuplicate && dup.DuplicateOfID != nil && *dup.DuplicateOfID == primary.ID {
			continue
		}
		var old any
		if dup.DuplicateOfID != nil {
			old = *dup.DuplicateOfID
		}
		dup.IsDuplicate = true
		dup.DuplicateOfID = &primary.ID

		change, err := models.NewChange(dup.ID, "duplicate_of", models.ChangeSourceMerge, old, primary.ID)
		if err != nil {
			return err
		}
		change.Actor = actor
		change.GroupID = &group.ID
		outcome.Changes = append(outcome.Changes, change)
		outcome.Result.MergedMemberIDs = append(outcome.Result.MergedMemberIDs, dup.ID)
	}

	outcome.Result.ChangeCount = len(outcome.Changes)
	return nil
}

// splitPrimary finds the group's primary in the member slice and checks
// the merge invariants: the primary must belong to the group and must
// not itself be a duplicate, so duplicate chains cannot form.
func splitPrimary(group *models.DuplicateGroup, members []*models.Member) (*models.Member, []*models.Member, error) {
	var primary *models.Member
	duplicates := make([]*models.Member, 0, len(members)-1)
	for _, m := range members {
		if m.ID == group.PrimaryMemberID {
			primary = m
		} else {
			duplicates = append(duplicates, m)
		}
	}
	sort.Slice(duplicates, func(i, j int) bool { return duplicates[i].ID < duplicates[j].ID })

	if primary == nil {
		return nil, nil, &models.InvariantViolationError{
			MemberID: group.PrimaryMemberID,
			Reason:   fmt.Sprintf("primary member is not part of group %s", group.ID),
		}
	}
	if primary.IsDuplicate || primary.DuplicateOfID != nil {
		return nil, nil, &models.InvariantViolationError{
			MemberID: primary.ID,
			Reason:   "primary member is itself flagged as a duplicate",
		}
	}
	if primary.DeletedAt != nil {
		return nil, nil, &models.InvariantViolationError{
			MemberID: primary.ID,
			Reason:   "primary member is deleted",
		}
	}
	return primary, duplicates, nil
}

// collectValues gathers the non-empty values for one field across the
// whole group, primary first.
func collectValues(field mergeField, primary *models.Member, duplicates []*models.Member) []fieldValue {
	var values []fieldValue
	if v := field.get(primary); v != nil {
		values = append(values, fieldValue{Value: v, MemberID: primary.ID, CollectedAt: collectedAt(primary), IsPrimary: true})
	}
	for _, dup := range duplicates {
		if v := field.get(dup); v != nil {
			values = append(values, fieldValue{Value: v, MemberID: dup.ID, CollectedAt: collectedAt(dup)})
		}
	}
	return values
}

// collectedAt estimates when a member's data was last current. The data
// vintage beats the row timestamp: a 1995 roster imported yesterday still
// loses keep_newest to a 2019 one. Verification re-attests the data.
func collectedAt(m *models.Member) time.Time {
	t := m.UpdatedAt
	if m.DataVintage != nil {
		t = *m.DataVintage
	}
	if m.LastVerifiedAt != nil && m.LastVerifiedAt.After(t) {
		t = *m.LastVerifiedAt
	}
	return t
}

// joinNameParts rebuilds the display name from the merged name parts.
func joinNameParts(m *models.Member) string {
	var parts []string
	for _, p := range []*string{m.FirstName, m.MiddleName, m.LastName} {
		if p != nil && *p != "" {
			parts = append(parts, *p)
		}
	}
	return strings.Join(parts, " ")
}

func equalValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	as, aok := a.([]string)
	bs, bok := b.([]string)
	if aok || bok {
		if !aok || !bok || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if as[i] != bs[i] {
				return false
			}
		}
		return true
	}
	return a == b
}

// Package events handles event emission for member lifecycle changes
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter publishes member lifecycle events to the events topic
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitMemberCreated emits a member created event
func (e *Emitter) EmitMemberCreated(ctx context.Context, member *models.Member) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitMemberCreated")
	defer span.End()

	data, err := json.Marshal(member)
	if err != nil {
		return err
	}

	event := &kafka.MemberEvent{
		EventType: string(EventTypeMemberCreated),
		MemberID:  member.ID,
		Data:      data,
	}

	if err := e.producer.PublishMemberEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit member.created event")
		return err
	}

	return nil
}

// EmitMemberUpdated emits a member updated event
func (e *Emitter) EmitMemberUpdated(ctx context.Context, member *models.Member, changedFields []string) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitMemberUpdated")
	defer span.End()

	data, err := json.Marshal(member)
	if err != nil {
		return err
	}

	event := &kafka.MemberEvent{
		EventType:     string(EventTypeMemberUpdated),
		MemberID:      member.ID,
		Data:          data,
		ChangedFields: changedFields,
	}

	if err := e.producer.PublishMemberEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit member.updated event")
		return err
	}

	return nil
}

// EmitMemberMerged emits a member merged event carrying the merge outcome.
// The event is keyed by the surviving member so consumers collapse their
// duplicates the same way the directory did.
func (e *Emitter) EmitMemberMerged(ctx context.Context, result *models.MergeResult, primary *models.Member) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitMemberMerged")
	defer span.End()

	details := MergeDetails{
		SchemaVersion: SchemaVersion,
		GroupID:       result.GroupID,
		Strategy:      result.Strategy,
		MergedMembers: result.MergedMemberIDs,
		FieldsChanged: result.FieldsChanged,
		ChangeCount:   result.ChangeCount,
	}
	data, err := json.Marshal(map[string]any{
		"merge":  details,
		"member": primary,
	})
	if err != nil {
		return err
	}

	event := &kafka.MemberEvent{
		EventType:     string(EventTypeMemberMerged),
		MemberID:      result.PrimaryMemberID,
		Data:          data,
		SourceMembers: result.MergedMemberIDs,
		ChangedFields: result.FieldsChanged,
	}

	if err := e.producer.PublishMemberEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit member.merged event")
		return err
	}

	return nil
}

// EmitMemberDeactivated emits a member deactivated event
func (e *Emitter) EmitMemberDeactivated(ctx context.Context, memberID string, actor *string, reason string) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitMemberDeactivated")
	defer span.End()

	data, err := json.Marshal(DeactivationDetails{
		SchemaVersion: SchemaVersion,
		Reason:        reason,
	})
	if err != nil {
		return err
	}

	event := &kafka.MemberEvent{
		EventType: string(EventTypeMemberDeactivated),
		MemberID:  memberID,
		Data:      data,
	}
	if actor != nil {
		event.Actor = *actor
	}

	if err := e.producer.PublishMemberEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit member.deactivated event")
		return err
	}

	return nil
}

// EmitDuplicatesDetected emits a summary event after a detection run
func (e *Emitter) EmitDuplicatesDetected(ctx context.Context, result *models.DetectionRunResult) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitDuplicatesDetected")
	defer span.End()

	event := &kafka.DetectionEvent{
		EventType:      string(EventTypeDuplicatesDetected),
		RunID:          result.RunID,
		MembersScanned: result.MembersScanned,
		PairsCompared:  result.PairsCompared,
		GroupsFound:    result.GroupsFound,
		GroupsCreated:  result.GroupsCreated,
		Truncated:      result.Truncated,
	}

	if err := e.producer.PublishDetectionEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit duplicates.detected event")
		return err
	}

	return nil
}

// Package processor handles incoming import messages and drives the
// resolution pipeline: resolve the record's fields, match them against
// existing identities, build or update the member, and fan the result out
// to the change log, the event stream and the graph projection.
package processor

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/repositories/changelog"
	"github.com/Ramsey-B/fern/internal/repositories/importbatch"
	"github.com/Ramsey-B/fern/internal/repositories/member"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/extractor"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/inference"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/records"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Per-record outcomes, used as batch counter keys and metric labels.
const (
	outcomeCreated = "created"
	outcomeUpdated = "updated"
	outcomeSkipped = "skipped"
	outcomeFailed  = "failed"
)

// Processor handles message processing for the import pipeline
type Processor struct {
	logger     ectologger.Logger
	builder    *records.Builder
	normalizer *normalizers.Normalizer
	engine     *inference.Engine
	extractor  *extractor.Extractor
	scorer     *matching.Scorer

	members   *member.Repository
	changeLog *changelog.Repository
	batches   *importbatch.Repository

	detection  *matching.Service
	emitter    *events.Emitter
	projection *graph.Projection

	nameMatchThreshold float64
}

// NewProcessor creates a new message processor for the import pipeline.
// The emitter and projection may be nil when events or the graph are
// disabled.
func NewProcessor(
	logger ectologger.Logger,
	builder *records.Builder,
	normalizer *normalizers.Normalizer,
	engine *inference.Engine,
	members *member.Repository,
	changeLog *changelog.Repository,
	batches *importbatch.Repository,
	detection *matching.Service,
	emitter *events.Emitter,
	projection *graph.Projection,
	nameMatchThreshold float64,
) *Processor {
	return &Processor{
		logger:             logger,
		builder:            builder,
		normalizer:         normalizer,
		engine:             engine,
		extractor:          extractor.New(),
		scorer:             matching.NewScorer(),
		members:            members,
		changeLog:          changeLog,
		batches:            batches,
		detection:          detection,
		emitter:            emitter,
		projection:         projection,
		nameMatchThreshold: nameMatchThreshold,
	}
}

// ProcessMessage handles an incoming Kafka message
func (p *Processor) ProcessMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.ProcessMessage")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"key":    msg.Key,
		"topic":  msg.Topic,
		"offset": msg.Offset,
	})

	if msg.IsBatchCompleted() {
		return p.handleBatchCompleted(ctx, msg)
	}

	// Parse the import message if not already parsed
	if msg.Import == nil {
		if err := msg.ParseImportMessage(); err != nil {
			log.WithError(err).Error("Failed to parse import message")
			return err
		}
	}

	return p.processImport(ctx, msg, log)
}

// processImport runs one imported record through the pipeline. Malformed
// records are counted as failed and skipped; infrastructure errors are
// returned so the message is retried.
func (p *Processor) processImport(ctx context.Context, msg *kafka.IncomingMessage, log ectologger.Logger) error {
	ctx, span := tracing.StartSpan(ctx, "processor.processImport")
	defer span.End()

	start := time.Now()
	sourceName := msg.GetSourceName()
	batchID := msg.GetBatchID()

	log = log.WithFields(map[string]any{
		"source_name":      sourceName,
		"source_record_id": msg.GetSourceRecordID(),
		"batch_id":         batchID,
	})
	log.Debug("Processing member import")

	fields, err := p.recordFields(msg.Import)
	if err != nil {
		log.WithError(err).Warn("Skipping record with unresolvable payload")
		p.recordOutcome(ctx, batchID, sourceName, outcomeFailed, start)
		return nil
	}

	raw := &models.RawMemberRecord{
		SourceName:     sourceName,
		SourceRecordID: msg.GetSourceRecordID(),
		Fields:         fields,
	}
	if batchID != "" {
		raw.ImportBatchID = &batchID
	}

	existing, err := p.resolveExisting(ctx, raw)
	if err != nil {
		log.WithError(err).Error("Failed to resolve record identity")
		return err
	}

	if existing != nil {
		return p.updateMember(ctx, existing, raw, batchID, start, log)
	}
	return p.createMember(ctx, raw, batchID, start, log)
}

// recordFields flattens the record's fields, resolving nested payloads
// through the extractor's field mappings first.
func (p *Processor) recordFields(imp *kafka.ImportMessage) (map[string]any, error) {
	if !imp.HasNestedPayload() {
		if len(imp.Fields) == 0 {
			return nil, &models.MalformedInputError{Field: "fields", Reason: "empty"}
		}
		return imp.Fields, nil
	}

	fields := make(map[string]any, len(imp.FieldMappings))
	for target, path := range imp.FieldMappings {
		value, err := p.extractor.Extract(imp.Payload, path)
		if err != nil || value == nil {
			continue
		}
		fields[target] = value
	}
	if len(fields) == 0 {
		return nil, &models.MalformedInputError{Field: "payload", Reason: "no mapped fields resolved"}
	}
	return fields, nil
}

// resolveExisting finds the member an imported record refers to, if any.
// The source identity wins, then the normalized primary email, then the
// closest normalized-name match above the configured threshold. Matches
// that land on an absorbed duplicate follow the pointer to its primary.
func (p *Processor) resolveExisting(ctx context.Context, raw *models.RawMemberRecord) (*models.Member, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.resolveExisting")
	defer span.End()

	if raw.SourceName != "" && raw.SourceRecordID != "" {
		m, err := p.members.GetBySourceRecord(ctx, raw.SourceName, raw.SourceRecordID)
		if err != nil {
			return nil, err
		}
		if m != nil {
			return p.followDuplicate(ctx, m)
		}
	}

	fields := p.extractor.Canonicalize(raw.Fields)

	if rawEmail, ok := fields[extractor.FieldEmail]; ok {
		if parsed, err := p.normalizer.Email(extractor.ToString(rawEmail)); err == nil {
			m, err := p.members.GetByEmail(ctx, parsed.Address)
			if err != nil {
				return nil, err
			}
			if m != nil {
				return p.followDuplicate(ctx, m)
			}
		}
	}

	rawName, ok := fields[extractor.FieldName]
	if !ok {
		return nil, nil
	}
	parsed, err := p.normalizer.Name(extractor.ToString(rawName))
	if err != nil || parsed.Last == "" {
		return nil, nil
	}

	candidates, err := p.members.FindByLastName(ctx, parsed.Last)
	if err != nil {
		return nil, err
	}

	var best *models.Member
	bestScore := 0.0
	for i := range candidates {
		score := p.scorer.NameSimilarity(parsed.Full, candidates[i].FullName)
		if score > bestScore {
			bestScore = score
			best = &candidates[i]
		}
	}
	if best == nil || bestScore < p.nameMatchThreshold {
		return nil, nil
	}
	return p.followDuplicate(ctx, best)
}

// followDuplicate resolves a match that points at an absorbed record to
// its surviving primary. Merge keeps the pointers flat, so one hop is
// enough.
func (p *Processor) followDuplicate(ctx context.Context, m *models.Member) (*models.Member, error) {
	if !m.IsDuplicate || m.DuplicateOfID == nil {
		return m, nil
	}
	return p.members.Get(ctx, *m.DuplicateOfID)
}

// createMember builds a new member from the record and persists it.
func (p *Processor) createMember(ctx context.Context, raw *models.RawMemberRecord, batchID string, start time.Time, log ectologger.Logger) error {
	ctx, span := tracing.StartSpan(ctx, "processor.createMember")
	defer span.End()

	result, err := p.builder.Build(ctx, raw)
	if err != nil {
		if models.IsMalformedInput(err) {
			log.WithError(err).Warn("Skipping malformed record")
			p.recordOutcome(ctx, batchID, raw.SourceName, outcomeFailed, start)
			return nil
		}
		log.WithError(err).Error("Failed to build member")
		return err
	}

	m := result.Member
	p.applyInference(ctx, m, &result.Changes, log)

	if err := p.members.Create(ctx, m); err != nil {
		return err
	}
	if err := p.changeLog.Append(ctx, result.Changes); err != nil {
		// The member row is already committed; history catches up on the
		// next change.
		log.WithError(err).Warn("Failed to append change records")
	}

	p.syncGraph(ctx, m)
	if p.emitter != nil {
		if err := p.emitter.EmitMemberCreated(ctx, m); err != nil {
			log.WithError(err).Warn("Member created event not published")
		}
	}

	p.recordOutcome(ctx, batchID, raw.SourceName, outcomeCreated, start)
	log.WithFields(map[string]any{
		"member_id": m.ID,
		"full_name": m.FullName,
	}).Info("Created member from import")
	return nil
}

// updateMember re-applies the record's fields onto the matched member.
// A record that changes nothing is counted as skipped and never touches
// the row.
func (p *Processor) updateMember(ctx context.Context, existing *models.Member, raw *models.RawMemberRecord, batchID string, start time.Time, log ectologger.Logger) error {
	ctx, span := tracing.StartSpan(ctx, "processor.updateMember")
	defer span.End()

	log = log.WithFields(map[string]any{"member_id": existing.ID})

	changes, issues, err := p.builder.Update(ctx, existing, raw.Fields, models.ChangeSourceImport, nil)
	if err != nil {
		if models.IsMalformedInput(err) {
			log.WithError(err).Warn("Skipping malformed record")
			p.recordOutcome(ctx, batchID, raw.SourceName, outcomeFailed, start)
			return nil
		}
		log.WithError(err).Error("Failed to apply record update")
		return err
	}
	if len(issues) > 0 {
		log.WithFields(map[string]any{"issues": len(issues)}).Warn("Record updated with normalization issues")
	}

	p.applyInference(ctx, existing, &changes, log)

	if len(changes) == 0 {
		log.Debug("Record unchanged, skipping")
		p.recordOutcome(ctx, batchID, raw.SourceName, outcomeSkipped, start)
		return nil
	}

	if existing.SourceName == nil && raw.SourceName != "" {
		existing.SourceName = &raw.SourceName
	}
	if existing.SourceRecordID == nil && raw.SourceRecordID != "" {
		existing.SourceRecordID = &raw.SourceRecordID
	}
	if raw.ImportBatchID != nil {
		existing.ImportBatchID = raw.ImportBatchID
	}
	// A newer roster re-attests the data; an older one never rolls the
	// vintage back.
	if vintage := p.normalizer.Vintage(raw.SourceName); vintage != nil {
		if existing.DataVintage == nil || vintage.After(*existing.DataVintage) {
			existing.DataVintage = vintage
		}
	}

	if err := p.members.Update(ctx, existing); err != nil {
		return err
	}
	if err := p.changeLog.Append(ctx, changes); err != nil {
		log.WithError(err).Warn("Failed to append change records")
	}

	p.syncGraph(ctx, existing)
	if p.emitter != nil {
		if err := p.emitter.EmitMemberUpdated(ctx, existing, changedFields(changes)); err != nil {
			log.WithError(err).Warn("Member updated event not published")
		}
	}

	p.recordOutcome(ctx, batchID, raw.SourceName, outcomeUpdated, start)
	log.WithFields(map[string]any{
		"changed_fields": len(changes),
	}).Info("Updated member from import")
	return nil
}

// applyInference runs the inference engine over the member and records the
// conclusion when it differs from the stored one. Inference failures never
// block the import.
func (p *Processor) applyInference(ctx context.Context, m *models.Member, changes *[]models.ChangeRecord, log ectologger.Logger) {
	inferred := p.engine.Infer(ctx, m)
	change, err := p.builder.ApplyInference(m, inferred)
	if err != nil {
		log.WithError(err).Warn("Failed to record inference change")
		return
	}
	if change != nil {
		*changes = append(*changes, *change)
		records.Finalize(m)
	}
}

// syncGraph mirrors the member into the graph projection when one is
// configured. The projection is best-effort and can be rebuilt.
func (p *Processor) syncGraph(ctx context.Context, m *models.Member) {
	if p.projection == nil {
		return
	}
	_ = p.projection.SyncMember(ctx, m)
}

// recordOutcome applies one record's outcome to the batch counters and
// import metrics.
func (p *Processor) recordOutcome(ctx context.Context, batchID, sourceName, outcome string, start time.Time) {
	metrics.RecordImport(sourceName, outcome, time.Since(start).Seconds())

	if batchID == "" {
		return
	}
	c := importbatch.Counters{Processed: 1}
	switch outcome {
	case outcomeCreated:
		c.Created = 1
	case outcomeUpdated:
		c.Updated = 1
	case outcomeSkipped:
		c.Skipped = 1
	case outcomeFailed:
		c.Failed = 1
	}
	if err := p.batches.IncrementCounters(ctx, batchID, c); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"batch_id": batchID}).Warn("Failed to update batch counters")
	}
}

func changedFields(changes []models.ChangeRecord) []string {
	fields := make([]string, 0, len(changes))
	for i := range changes {
		fields = append(fields, changes[i].Field)
	}
	return fields
}

// Package records builds and updates member records from raw import
// fields. The builder owns the write path invariants: every field change
// produces its own change record, malformed values degrade to empty fields
// instead of failing the record, and re-running the pipeline on unchanged
// input is a no-op.
package records

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/extractor"
	"github.com/Ramsey-B/fern/pkg/fingerprint"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// FieldIssue is one raw value the normalizer rejected. Issues are
// reported, never fatal; the original value stays in the record's raw
// data.
type FieldIssue struct {
	Field  string `json:"field"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

// BuildResult is a freshly built member with its initial change records
// and any normalization issues.
type BuildResult struct {
	Member  *models.Member
	Changes []models.ChangeRecord
	Issues  []FieldIssue
}

// Builder assembles normalized members from raw records.
type Builder struct {
	logger     ectologger.Logger
	normalizer *normalizers.Normalizer
	extractor  *extractor.Extractor
}

// NewBuilder creates a new record builder
func NewBuilder(logger ectologger.Logger, normalizer *normalizers.Normalizer) *Builder {
	return &Builder{
		logger:     logger,
		normalizer: normalizer,
		extractor:  extractor.New(),
	}
}

// Build constructs a new member from a raw record. The name is the only
// required field; everything else degrades to an issue when malformed.
func (b *Builder) Build(ctx context.Context, raw *models.RawMemberRecord) (*BuildResult, error) {
	ctx, span := tracing.StartSpan(ctx, "records.Builder.Build")
	defer span.End()

	log := b.logger.WithContext(ctx).WithFields(map[string]any{
		"source_name":      raw.SourceName,
		"source_record_id": raw.SourceRecordID,
	})

	fields := b.extractor.Canonicalize(raw.Fields)
	b.mergeStructuredText(fields, raw.Fields)

	nameValue, ok := fields[extractor.FieldName]
	if !ok {
		return nil, &models.MalformedInputError{Field: extractor.FieldName, Reason: "missing"}
	}

	member := &models.Member{
		ID:     uuid.New().String(),
		Status: models.MemberStatusActive,
	}
	if raw.SourceName != "" {
		member.SourceName = &raw.SourceName
		member.DataVintage = b.normalizer.Vintage(raw.SourceName)
	}
	if raw.SourceRecordID != "" {
		member.SourceRecordID = &raw.SourceRecordID
	}
	member.ImportBatchID = raw.ImportBatchID

	issues := b.applyFields(member, fields, nameValue)
	if member.FullName == "" {
		return nil, &models.MalformedInputError{Field: extractor.FieldName, Value: extractor.ToString(nameValue), Reason: "unusable name"}
	}

	if rawData, err := json.Marshal(raw.Fields); err == nil {
		member.RawData = rawData
	}
	Finalize(member)

	changes, err := b.initialChanges(member)
	if err != nil {
		return nil, err
	}

	if len(issues) > 0 {
		log.WithFields(map[string]any{"issues": len(issues)}).Warn("Record built with normalization issues")
	}

	return &BuildResult{Member: member, Changes: changes, Issues: issues}, nil
}

// Update re-normalizes the provided raw fields onto an existing member.
// Each field that actually changes produces one change record; a no-op
// update produces none.
func (b *Builder) Update(ctx context.Context, member *models.Member, rawFields map[string]any, source string, actor *string) ([]models.ChangeRecord, []FieldIssue, error) {
	ctx, span := tracing.StartSpan(ctx, "records.Builder.Update")
	defer span.End()

	log := b.logger.WithContext(ctx).WithFields(map[string]any{
		"member_id": member.ID,
		"source":    source,
	})

	before := snapshotFields(member)

	fields := b.extractor.Canonicalize(rawFields)
	var nameValue any
	if v, ok := fields[extractor.FieldName]; ok {
		nameValue = v
	}
	issues := b.applyFields(member, fields, nameValue)
	Finalize(member)

	after := snapshotFields(member)

	var changes []models.ChangeRecord
	for _, field := range fieldOrder {
		oldValue, newValue := before[field], after[field]
		if jsonEqual(oldValue, newValue) {
			continue
		}
		change, err := models.NewChange(member.ID, field, source, oldValue, newValue)
		if err != nil {
			return nil, issues, err
		}
		change.Actor = actor
		changes = append(changes, change)
	}

	log.WithFields(map[string]any{"changed_fields": len(changes)}).Debug("Applied member update")
	return changes, issues, nil
}

// ApplyInference stores a new inference result on the member. Declared
// and verified fields are untouched; inference has its own column, so it
// can never overwrite a human answer. Returns the change record when the
// result differs from the stored one.
func (b *Builder) ApplyInference(member *models.Member, result *models.InferenceResult) (*models.ChangeRecord, error) {
	old := member.Inference.GetValue()
	if inferenceEqual(old, result) {
		return nil, nil
	}

	member.Inference.Data = result

	change, err := models.NewChange(member.ID, "inference", models.ChangeSourceInference, old, result)
	if err != nil {
		return nil, err
	}
	return &change, nil
}

// Finalize recomputes the derived fields: completeness, confidence, and
// the content fingerprint.
func Finalize(member *models.Member) {
	member.CompletenessScore = Completeness(member)
	member.ConfidenceScore = Confidence(member)

	next := fingerprint.Member(member)
	if member.Fingerprint != "" && member.Fingerprint != next {
		member.PreviousFingerprint = member.Fingerprint
	}
	member.Fingerprint = next
}

// mergeStructuredText rescues records whose source packed everything into
// one labeled text column. Parsed values never overwrite real columns.
func (b *Builder) mergeStructuredText(fields map[string]any, raw map[string]any) {
	if _, ok := fields[extractor.FieldName]; ok {
		return
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		text, ok := raw[key].(string)
		if !ok || !strings.Contains(strings.ToUpper(text), "NAME") {
			continue
		}
		parsed := b.extractor.ParseStructuredText(text)
		if len(parsed) == 0 {
			continue
		}
		for field, value := range parsed {
			if _, exists := fields[field]; !exists {
				fields[field] = value
			}
		}
		return
	}
}

// applyFields normalizes each canonical field onto the member.
func (b *Builder) applyFields(member *models.Member, fields map[string]any, nameValue any) []FieldIssue {
	var issues []FieldIssue
	record := func(field string, value any, err error) {
		issues = append(issues, FieldIssue{
			Field:  field,
			Value:  extractor.ToString(value),
			Reason: issueReason(err),
		})
	}

	if nameValue != nil {
		parsed, err := b.normalizer.Name(extractor.ToString(nameValue))
		if err != nil {
			record(extractor.FieldName, nameValue, err)
		} else {
			member.FullName = parsed.Full
			member.FirstName = optional(parsed.First)
			member.MiddleName = optional(parsed.Middle)
			member.LastName = optional(parsed.Last)
			member.Honorific = optional(parsed.Honorific)
			member.NameSuffix = optional(parsed.Suffix)
		}
	}

	if value, ok := fields[extractor.FieldNickname]; ok {
		nickname := strings.TrimSpace(extractor.ToString(value))
		member.Nickname = optional(nickname)
	}

	if value, ok := fields[extractor.FieldBatch]; ok {
		parsed, err := b.normalizer.Batch(extractor.ToString(value))
		if err != nil {
			record(extractor.FieldBatch, value, err)
		} else {
			member.BatchYear = &parsed.Year
			member.BatchSemester = optional(parsed.Semester)
			member.BatchSubNumber = parsed.SubNumber
			member.BatchLabel = &parsed.Label
			member.BatchDecade = &parsed.Decade
		}
	}

	if value, ok := fields[extractor.FieldChapter]; ok {
		chapter := b.normalizer.Chapter(extractor.ToString(value))
		member.ChapterName = optional(chapter)
	}

	if value, ok := fields[extractor.FieldEmail]; ok {
		parsed, err := b.normalizer.Email(extractor.ToString(value))
		if err != nil {
			record(extractor.FieldEmail, value, err)
		} else {
			member.Email = &parsed.Address
			member.EmailDomain = &parsed.Domain
			member.EmailSector = &parsed.Sector
		}
	}

	b.applyPhones(member, fields, record)
	b.applyLocations(member, fields, record)
	b.applyProfession(member, fields)

	if value, ok := fields[extractor.FieldOpenToReferrals]; ok {
		if flag, ok := parseBool(value); ok {
			member.OpenToReferrals = &flag
		}
	}

	return issues
}

// applyPhones routes every phone value to the mobile or landline slot by
// its parsed type. Free text with several numbers is split first.
func (b *Builder) applyPhones(member *models.Member, fields map[string]any, record func(string, any, error)) {
	for _, field := range []string{extractor.FieldMobile, extractor.FieldPhone} {
		value, ok := fields[field]
		if !ok {
			continue
		}
		text := extractor.ToString(value)

		candidates := []string{text}
		if extracted := b.extractor.ExtractPhones(text); len(extracted) > 1 {
			candidates = extracted
		}

		matched := false
		for _, candidate := range candidates {
			parsed, err := b.normalizer.Phone(candidate)
			if err != nil {
				continue
			}
			matched = true
			switch parsed.Type {
			case normalizers.PhoneTypeMobile:
				if member.MobileNumber == nil {
					member.MobileNumber = &parsed.E164
				}
			case normalizers.PhoneTypeLandline:
				if member.LandlineNumber == nil {
					member.LandlineNumber = &parsed.E164
				}
			}
		}
		if !matched {
			record(field, value, &models.MalformedInputError{Field: field, Value: text, Reason: "no parseable number"})
		}
	}
}

func (b *Builder) applyLocations(member *models.Member, fields map[string]any, record func(string, any, error)) {
	if value, ok := fields[extractor.FieldHomeAddress]; ok {
		address := strings.TrimSpace(extractor.ToString(value))
		member.HomeAddress = optional(address)
	}
	if value, ok := fields[extractor.FieldOfficeAddress]; ok {
		address := strings.TrimSpace(extractor.ToString(value))
		member.OfficeAddress = optional(address)
	}

	// An explicit city column wins; otherwise the city comes out of the
	// address when it names one we know.
	if value, ok := fields[extractor.FieldHomeCity]; ok {
		if loc := b.normalizer.Location(extractor.ToString(value)); loc != nil {
			member.HomeCity = &loc.City
			member.HomeRegion = optional(loc.Region)
		}
	} else if member.HomeAddress != nil {
		if loc := b.normalizer.Location(*member.HomeAddress); loc != nil && loc.Known {
			member.HomeCity = &loc.City
			member.HomeRegion = optional(loc.Region)
		}
	}

	if value, ok := fields[extractor.FieldOfficeCity]; ok {
		if loc := b.normalizer.Location(extractor.ToString(value)); loc != nil {
			member.OfficeCity = &loc.City
			member.OfficeRegion = optional(loc.Region)
		}
	} else if member.OfficeAddress != nil {
		if loc := b.normalizer.Location(*member.OfficeAddress); loc != nil && loc.Known {
			member.OfficeCity = &loc.City
			member.OfficeRegion = optional(loc.Region)
		}
	}
}

// applyProfession fills the declared category when the profession text
// names one, and keeps the raw text as the job title so inference still
// has the full signal.
func (b *Builder) applyProfession(member *models.Member, fields map[string]any) {
	if value, ok := fields[extractor.FieldJobTitle]; ok {
		title := strings.TrimSpace(extractor.ToString(value))
		member.JobTitle = optional(title)
	}
	if value, ok := fields[extractor.FieldCompany]; ok {
		company := strings.TrimSpace(extractor.ToString(value))
		member.Company = optional(company)
	}

	if value, ok := fields[extractor.FieldProfession]; ok {
		text := strings.TrimSpace(extractor.ToString(value))
		if text == "" {
			return
		}
		vocabulary := b.normalizer.Vocabulary()

		if category, found := vocabulary.CategoryByName(text); found {
			member.DeclaredProfession = &category.Name
		} else if matches := vocabulary.MatchCategories(text); len(matches) > 0 && matches[0].HighConfidence {
			member.DeclaredProfession = &matches[0].Category
		}

		if member.DeclaredProfession != nil {
			if specs := vocabulary.MatchSpecializations(*member.DeclaredProfession, text); len(specs) > 0 {
				member.Specializations.Data = specs
			}
		}

		// The raw profession text often carries the real job title.
		if member.JobTitle == nil {
			member.JobTitle = &text
		}
	}
}

// initialChanges writes one creation change record per populated field.
func (b *Builder) initialChanges(member *models.Member) ([]models.ChangeRecord, error) {
	snapshot := snapshotFields(member)

	var changes []models.ChangeRecord
	for _, field := range fieldOrder {
		value := snapshot[field]
		if value == nil {
			continue
		}
		change, err := models.NewChange(member.ID, field, models.ChangeSourceImport, nil, value)
		if err != nil {
			return nil, err
		}
		changes = append(changes, change)
	}
	return changes, nil
}

func issueReason(err error) string {
	var malformed *models.MalformedInputError
	if errors.As(err, &malformed) {
		return malformed.Reason
	}
	return err.Error()
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func parseBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "yes", "y", "true", "1", "oo":
			return true, true
		case "no", "n", "false", "0", "hindi":
			return false, true
		}
	case float64:
		return v != 0, true
	}
	return false, false
}

package records

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/vocab"
)

func newTestBuilder() *Builder {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewBuilder(logger, normalizers.New(vocab.Default(), normalizers.DefaultConfig()))
}

func sheetRecord() *models.RawMemberRecord {
	return &models.RawMemberRecord{
		SourceName:     "directory-2024",
		SourceRecordID: "row-12",
		Fields: map[string]any{
			"NAME":           "Atty. Juan Dela Cruz Jr.",
			"NICKNAME":       "Johnny",
			"BATCH":          "95-S",
			"CHAPTER":        "Manila Chapter",
			"EMAIL":          "Juan.DelaCruz@GMAIL.com",
			"MOBILE":         "0917-123-4567",
			"HOME ADDRESS":   "123 Mabini St, Pasay City",
			"OFFICE ADDRESS": "5F Cruz Law Office, Ayala Avenue, Makati City, 1226",
			"PROFESSION":     "Lawyer",
		},
	}
}

func TestBuild(t *testing.T) {
	b := newTestBuilder()

	result, err := b.Build(context.Background(), sheetRecord())
	require.NoError(t, err)

	m := result.Member
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, models.MemberStatusActive, m.Status)

	assert.Equal(t, "Juan Dela Cruz", m.FullName)
	require.NotNil(t, m.FirstName)
	assert.Equal(t, "Juan", *m.FirstName)
	require.NotNil(t, m.LastName)
	assert.Equal(t, "Dela Cruz", *m.LastName)
	require.NotNil(t, m.Honorific)
	assert.Equal(t, "atty", *m.Honorific)
	require.NotNil(t, m.NameSuffix)
	assert.Equal(t, "jr", *m.NameSuffix)
	require.NotNil(t, m.Nickname)
	assert.Equal(t, "Johnny", *m.Nickname)

	require.NotNil(t, m.BatchYear)
	assert.Equal(t, 1995, *m.BatchYear)
	require.NotNil(t, m.BatchLabel)
	assert.Equal(t, "1995-S", *m.BatchLabel)
	require.NotNil(t, m.ChapterName)
	assert.Equal(t, "Manila", *m.ChapterName)

	require.NotNil(t, m.Email)
	assert.Equal(t, "juan.delacruz@gmail.com", *m.Email)
	require.NotNil(t, m.EmailSector)
	assert.Equal(t, "personal", *m.EmailSector)
	require.NotNil(t, m.MobileNumber)
	assert.Equal(t, "+639171234567", *m.MobileNumber)

	require.NotNil(t, m.HomeCity)
	assert.Equal(t, "Pasay", *m.HomeCity)
	require.NotNil(t, m.OfficeCity)
	assert.Equal(t, "Makati", *m.OfficeCity)

	require.NotNil(t, m.DeclaredProfession)
	assert.Equal(t, "Legal", *m.DeclaredProfession)

	assert.NotEmpty(t, m.Fingerprint)
	assert.NotEmpty(t, m.RawData)
	assert.Greater(t, m.CompletenessScore, 0.5)
	assert.Greater(t, m.ConfidenceScore, 0.5)
	assert.LessOrEqual(t, m.ConfidenceScore, 1.0)

	require.NotNil(t, m.DataVintage)
	assert.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), *m.DataVintage)

	assert.Empty(t, result.Issues)
	assert.NotEmpty(t, result.Changes)
	for _, change := range result.Changes {
		assert.Equal(t, m.ID, change.MemberID)
		assert.Equal(t, models.ChangeSourceImport, change.Source)
		assert.Nil(t, change.OldValue)
		assert.NotNil(t, change.NewValue)
	}
}

func TestBuild_MalformedFieldsDegrade(t *testing.T) {
	b := newTestBuilder()

	result, err := b.Build(context.Background(), &models.RawMemberRecord{
		SourceName: "directory-2024",
		Fields: map[string]any{
			"NAME":   "Maria Santos",
			"BATCH":  "unknown batch",
			"EMAIL":  "not-an-email",
			"MOBILE": "n/a",
		},
	})
	require.NoError(t, err, "malformed fields must not fail the record")

	m := result.Member
	assert.Equal(t, "Maria Santos", m.FullName)
	assert.Nil(t, m.BatchYear)
	assert.Nil(t, m.BatchLabel)
	assert.Nil(t, m.Email)
	assert.Nil(t, m.MobileNumber)

	require.Len(t, result.Issues, 3)
	fields := []string{result.Issues[0].Field, result.Issues[1].Field, result.Issues[2].Field}
	assert.Contains(t, fields, "batch")
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "mobile")
}

func TestBuild_MissingNameFails(t *testing.T) {
	b := newTestBuilder()

	_, err := b.Build(context.Background(), &models.RawMemberRecord{
		Fields: map[string]any{"EMAIL": "juan@example.com"},
	})

	require.Error(t, err)
	assert.True(t, models.IsMalformedInput(err))
}

func TestBuild_StructuredTextBlob(t *testing.T) {
	b := newTestBuilder()

	result, err := b.Build(context.Background(), &models.RawMemberRecord{
		SourceName: "scanned-forms",
		Fields: map[string]any{
			"notes": "NAME: Jose Rizal\nEMAIL: jose@example.com\nBATCH: 88-A\nPROFESSION: Doctor",
		},
	})
	require.NoError(t, err)

	m := result.Member
	assert.Equal(t, "Jose Rizal", m.FullName)
	require.NotNil(t, m.Email)
	assert.Equal(t, "jose@example.com", *m.Email)
	require.NotNil(t, m.BatchYear)
	assert.Equal(t, 1988, *m.BatchYear)
	require.NotNil(t, m.DeclaredProfession)
	assert.Equal(t, "Medical", *m.DeclaredProfession)
}

func TestBuild_MixedPhoneField(t *testing.T) {
	b := newTestBuilder()

	result, err := b.Build(context.Background(), &models.RawMemberRecord{
		Fields: map[string]any{
			"NAME":  "Juan Cruz",
			"PHONE": "0917-123-4567 / (02) 8123-4567",
		},
	})
	require.NoError(t, err)

	m := result.Member
	require.NotNil(t, m.MobileNumber)
	assert.Equal(t, "+639171234567", *m.MobileNumber)
	require.NotNil(t, m.LandlineNumber)
	assert.Equal(t, "+63281234567", *m.LandlineNumber)
}

func TestUpdate_ChangedFieldProducesRecord(t *testing.T) {
	b := newTestBuilder()

	result, err := b.Build(context.Background(), sheetRecord())
	require.NoError(t, err)
	m := result.Member
	fingerprintBefore := m.Fingerprint

	actor := "admin@fern"
	changes, issues, err := b.Update(context.Background(), m, map[string]any{
		"EMAIL": "juan.cruz@petron.com",
	}, models.ChangeSourceAPI, &actor)
	require.NoError(t, err)
	assert.Empty(t, issues)

	require.Len(t, changes, 1)
	assert.Equal(t, "email", changes[0].Field)
	assert.JSONEq(t, `"juan.delacruz@gmail.com"`, string(changes[0].OldValue))
	assert.JSONEq(t, `"juan.cruz@petron.com"`, string(changes[0].NewValue))
	require.NotNil(t, changes[0].Actor)
	assert.Equal(t, actor, *changes[0].Actor)

	require.NotNil(t, m.Email)
	assert.Equal(t, "juan.cruz@petron.com", *m.Email)
	require.NotNil(t, m.EmailSector)
	assert.Equal(t, "corporate", *m.EmailSector)

	assert.NotEqual(t, fingerprintBefore, m.Fingerprint)
	assert.Equal(t, fingerprintBefore, m.PreviousFingerprint)
}

func TestUpdate_SameInputIsNoop(t *testing.T) {
	b := newTestBuilder()

	record := sheetRecord()
	result, err := b.Build(context.Background(), record)
	require.NoError(t, err)
	m := result.Member
	fingerprintBefore := m.Fingerprint

	changes, issues, err := b.Update(context.Background(), m, record.Fields, models.ChangeSourceImport, nil)
	require.NoError(t, err)

	assert.Empty(t, changes, "re-running the pipeline on unchanged input must be a no-op")
	assert.Empty(t, issues)
	assert.Equal(t, fingerprintBefore, m.Fingerprint)
	assert.Empty(t, m.PreviousFingerprint)
}

func TestApplyInference(t *testing.T) {
	b := newTestBuilder()

	result, err := b.Build(context.Background(), sheetRecord())
	require.NoError(t, err)
	m := result.Member

	inference := &models.InferenceResult{
		Profession: &models.InferredAttribute{
			Value:      "Legal",
			Confidence: 0.9,
			Source:     "job_title",
		},
	}

	change, err := b.ApplyInference(m, inference)
	require.NoError(t, err)
	require.NotNil(t, change)
	assert.Equal(t, "inference", change.Field)
	assert.Equal(t, models.ChangeSourceInference, change.Source)

	// Same conclusion again, different timestamp: no-op.
	again := &models.InferenceResult{
		Profession: &models.InferredAttribute{
			Value:      "Legal",
			Confidence: 0.9,
			Source:     "job_title",
		},
	}
	change, err = b.ApplyInference(m, again)
	require.NoError(t, err)
	assert.Nil(t, change)
}

func TestCompletenessAndConfidence(t *testing.T) {
	bare := &models.Member{FullName: "Juan Cruz"}
	assert.Equal(t, 0.0, Completeness(bare))
	assert.Equal(t, 0.0, Confidence(bare))

	b := newTestBuilder()
	result, err := b.Build(context.Background(), sheetRecord())
	require.NoError(t, err)
	full := result.Member

	assert.Greater(t, Completeness(full), Completeness(bare))
	assert.Greater(t, Confidence(full), Confidence(bare))
	assert.LessOrEqual(t, Completeness(full), 1.0)
	assert.LessOrEqual(t, Confidence(full), 1.0)
}

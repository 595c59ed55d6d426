package integration

import (
	"context"
	"sort"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/inference"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/query"
	"github.com/Ramsey-B/fern/pkg/ranking"
	"github.com/Ramsey-B/fern/pkg/records"
	"github.com/Ramsey-B/fern/pkg/vocab"
)

// pipeline bundles the in-memory resolution stack the way the server wires
// it, minus storage and transport.
type pipeline struct {
	builder  *records.Builder
	engine   *inference.Engine
	parser   *query.Parser
	ranker   *ranking.Ranker
	detector *matching.Detector
	resolver *merging.Resolver
}

func newPipeline() *pipeline {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	vocabulary := vocab.Default()
	normalizer := normalizers.New(vocabulary, normalizers.DefaultConfig())

	return &pipeline{
		builder:  records.NewBuilder(logger, normalizer),
		engine:   inference.NewEngine(logger, vocabulary, inference.DefaultConfig()),
		parser:   query.NewParser(logger, normalizer),
		ranker:   ranking.NewRanker(logger, vocabulary, ranking.DefaultConfig()),
		detector: matching.NewDetector(logger, matching.DefaultConfig()),
		resolver: merging.NewResolver(logger),
	}
}

// ingest runs one raw record through build plus inference, the same chain
// the import processor applies to every incoming message.
func (p *pipeline) ingest(t *testing.T, raw *models.RawMemberRecord) *models.Member {
	t.Helper()

	result, err := p.builder.Build(context.Background(), raw)
	require.NoError(t, err)

	m := result.Member
	inferred := p.engine.Infer(context.Background(), m)
	change, err := p.builder.ApplyInference(m, inferred)
	require.NoError(t, err)
	if change != nil {
		records.Finalize(m)
	}
	return m
}

// sheetRow is one raw roster row keyed by the headers member sheets
// actually use.
func sheetRow(name string, fields map[string]any) *models.RawMemberRecord {
	merged := map[string]any{"NAME": name}
	for k, v := range fields {
		merged[k] = v
	}
	return &models.RawMemberRecord{
		SourceName:     "roster-2024",
		SourceRecordID: uuid.New().String(),
		Fields:         merged,
	}
}

// storedGroup converts one detector group into the form the detection
// service persists: open, scored, with per-member evidence rows.
func storedGroup(found matching.Group) *models.DuplicateGroup {
	group := &models.DuplicateGroup{
		ID:              uuid.New().String(),
		Status:          models.DuplicateGroupStatusOpen,
		Score:           found.Score,
		PrimaryMemberID: found.PrimaryID,
	}

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

	for _, id := range found.MemberIDs {
		fields := make([]string, 0, len(matched[id]))
		for field := range matched[id] {
			fields = append(fields, field)
		}
		sort.Strings(fields)

		group.Members = append(group.Members, models.DuplicateGroupMember{
			GroupID:       group.ID,
			MemberID:      id,
			Similarity:    similarity[id],
			MatchedFields: database.JSONB[[]string]{Data: fields},
			IsPrimary:     id == found.PrimaryID,
		})
	}
	return group
}

func memberByID(members []*models.Member, id string) *models.Member {
	for _, m := range members {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func str(s string) *string { return &s }

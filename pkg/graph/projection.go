package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Node labels in the directory projection.
const (
	LabelMember          = "Member"
	LabelChapter         = "Chapter"
	LabelCompany         = "Company"
	LabelServiceCategory = "ServiceCategory"
)

// Relationship types in the directory projection.
const (
	RelMemberOf    = "MEMBER_OF"
	RelWorksAt     = "WORKS_AT"
	RelInCategory  = "IN_CATEGORY"
	RelDuplicateOf = "DUPLICATE_OF"
)

// Projection keeps the graph in step with the relational directory. Member
// nodes link to the Chapter, Company and ServiceCategory they belong to;
// merges add DUPLICATE_OF edges between member nodes.
type Projection struct {
	client *Client
	logger ectologger.Logger
}

// NewProjection creates a new projection service
func NewProjection(client *Client, logger ectologger.Logger) *Projection {
	return &Projection{
		client: client,
		logger: logger,
	}
}

// SyncMember upserts the member node and rebuilds its affiliation edges.
// SET m = $props replaces all node properties, so fields cleared in the
// directory disappear from the graph on the next sync.
func (s *Projection) SyncMember(ctx context.Context, member *models.Member) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projection.SyncMember")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"member_id": member.ID,
	})

	props := memberProps(member)
	profession, declared := member.ProfessionCategory()

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, fmt.Sprintf(`
			MERGE (m:%s {id: $id})
			SET m = $props
		`, LabelMember), map[string]any{
			"id":    member.ID,
			"props": props,
		})
		if err != nil {
			return nil, err
		}

		// Edges are rebuilt from scratch so stale affiliations drop out.
		_, err = tx.Run(ctx, fmt.Sprintf(`
			MATCH (m:%s {id: $id})-[r:%s|%s|%s]->()
			DELETE r
		`, LabelMember, RelMemberOf, RelWorksAt, RelInCategory), map[string]any{
			"id": member.ID,
		})
		if err != nil {
			return nil, err
		}

		if member.ChapterName != nil && *member.ChapterName != "" {
			_, err = tx.Run(ctx, fmt.Sprintf(`
				MATCH (m:%s {id: $id})
				MERGE (c:%s {name: $name})
				MERGE (m)-[:%s]->(c)
			`, LabelMember, LabelChapter, RelMemberOf), map[string]any{
				"id":   member.ID,
				"name": *member.ChapterName,
			})
			if err != nil {
				return nil, err
			}
		}

		if member.Company != nil && *member.Company != "" {
			_, err = tx.Run(ctx, fmt.Sprintf(`
				MATCH (m:%s {id: $id})
				MERGE (co:%s {name: $name})
				MERGE (m)-[:%s]->(co)
			`, LabelMember, LabelCompany, RelWorksAt), map[string]any{
				"id":   member.ID,
				"name": *member.Company,
			})
			if err != nil {
				return nil, err
			}
		}

		if profession != "" {
			_, err = tx.Run(ctx, fmt.Sprintf(`
				MATCH (m:%s {id: $id})
				MERGE (sc:%s {name: $name})
				MERGE (m)-[r:%s]->(sc)
				SET r.declared = $declared
			`, LabelMember, LabelServiceCategory, RelInCategory), map[string]any{
				"id":       member.ID,
				"name":     profession,
				"declared": declared,
			})
			if err != nil {
				return nil, err
			}
		}

		return nil, nil
	})

	if err != nil {
		log.WithError(err).Error("Failed to sync member to graph")
		return fmt.Errorf("failed to sync member to graph: %w", err)
	}

	log.Debug("Synced member to graph")
	return nil
}

// BatchSyncMembers upserts many member nodes and their edges in a single
// transaction. Used by the projection rebuild endpoint.
func (s *Projection) BatchSyncMembers(ctx context.Context, members []*models.Member) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projection.BatchSyncMembers")
	defer span.End()

	if len(members) == 0 {
		return nil
	}

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_size": len(members),
	})

	batch := make([]map[string]any, len(members))
	ids := make([]string, len(members))
	var chapterRows, companyRows, categoryRows []map[string]any

	for i, member := range members {
		batch[i] = memberProps(member)
		ids[i] = member.ID

		if member.ChapterName != nil && *member.ChapterName != "" {
			chapterRows = append(chapterRows, map[string]any{"id": member.ID, "name": *member.ChapterName})
		}
		if member.Company != nil && *member.Company != "" {
			companyRows = append(companyRows, map[string]any{"id": member.ID, "name": *member.Company})
		}
		if profession, declared := member.ProfessionCategory(); profession != "" {
			categoryRows = append(categoryRows, map[string]any{"id": member.ID, "name": profession, "declared": declared})
		}
	}

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		// UNWIND for efficient batch upsert
		_, err := tx.Run(ctx, fmt.Sprintf(`
			UNWIND $batch AS props
			MERGE (m:%s {id: props.id})
			SET m = props
		`, LabelMember), map[string]any{"batch": batch})
		if err != nil {
			return nil, err
		}

		_, err = tx.Run(ctx, fmt.Sprintf(`
			UNWIND $ids AS id
			MATCH (m:%s {id: id})-[r:%s|%s|%s]->()
			DELETE r
		`, LabelMember, RelMemberOf, RelWorksAt, RelInCategory), map[string]any{"ids": ids})
		if err != nil {
			return nil, err
		}

		if len(chapterRows) > 0 {
			_, err = tx.Run(ctx, fmt.Sprintf(`
				UNWIND $rows AS row
				MATCH (m:%s {id: row.id})
				MERGE (c:%s {name: row.name})
				MERGE (m)-[:%s]->(c)
			`, LabelMember, LabelChapter, RelMemberOf), map[string]any{"rows": chapterRows})
			if err != nil {
				return nil, err
			}
		}

		if len(companyRows) > 0 {
			_, err = tx.Run(ctx, fmt.Sprintf(`
				UNWIND $rows AS row
				MATCH (m:%s {id: row.id})
				MERGE (co:%s {name: row.name})
				MERGE (m)-[:%s]->(co)
			`, LabelMember, LabelCompany, RelWorksAt), map[string]any{"rows": companyRows})
			if err != nil {
				return nil, err
			}
		}

		if len(categoryRows) > 0 {
			_, err = tx.Run(ctx, fmt.Sprintf(`
				UNWIND $rows AS row
				MATCH (m:%s {id: row.id})
				MERGE (sc:%s {name: row.name})
				MERGE (m)-[r:%s]->(sc)
				SET r.declared = row.declared
			`, LabelMember, LabelServiceCategory, RelInCategory), map[string]any{"rows": categoryRows})
			if err != nil {
				return nil, err
			}
		}

		return nil, nil
	})

	if err != nil {
		log.WithError(err).Error("Failed to batch sync members to graph")
		return fmt.Errorf("failed to batch sync members: %w", err)
	}

	log.Debug("Batch synced members to graph")
	return nil
}

// LinkDuplicate records a resolved merge as a DUPLICATE_OF edge from the
// absorbed member to the surviving one.
func (s *Projection) LinkDuplicate(ctx context.Context, duplicateID, primaryID, groupID string) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projection.LinkDuplicate")
	defer span.End()

	cypher := fmt.Sprintf(`
		MATCH (dup:%s {id: $duplicate_id})
		MATCH (primary:%s {id: $primary_id})
		MERGE (dup)-[r:%s]->(primary)
		SET dup.is_duplicate = true,
		    r.group_id = $group_id,
		    r.merged_at = datetime()
	`, LabelMember, LabelMember, RelDuplicateOf)

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"duplicate_id": duplicateID,
			"primary_id":   primaryID,
			"group_id":     groupID,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})

	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"duplicate_id": duplicateID,
			"primary_id":   primaryID,
		}).Error("Failed to link duplicate in graph")
		return fmt.Errorf("failed to link duplicate in graph: %w", err)
	}

	return nil
}

// RemoveMember soft-deletes the member node so network queries skip it.
// A later SyncMember clears the marker because SET m replaces all
// properties.
func (s *Projection) RemoveMember(ctx context.Context, memberID string) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projection.RemoveMember")
	defer span.End()

	cypher := fmt.Sprintf(`
		MATCH (m:%s {id: $id})
		SET m.deleted_at = datetime()
		RETURN m
	`, LabelMember)

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"id": memberID,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})

	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to remove member from graph")
		return fmt.Errorf("failed to remove member from graph: %w", err)
	}

	return nil
}

// memberProps flattens the node properties the projection carries. Only
// scalar search and display fields go to the graph; raw payloads stay in
// the relational store.
func memberProps(member *models.Member) map[string]any {
	props := map[string]any{
		"id":                 member.ID,
		"full_name":          member.FullName,
		"status":             member.Status,
		"is_duplicate":       member.IsDuplicate,
		"completeness_score": member.CompletenessScore,
		"confidence_score":   member.ConfidenceScore,
		"created_at":         member.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		"updated_at":         member.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}

	if member.FirstName != nil {
		props["first_name"] = *member.FirstName
	}
	if member.LastName != nil {
		props["last_name"] = *member.LastName
	}
	if member.BatchYear != nil {
		props["batch_year"] = *member.BatchYear
	}
	if member.BatchLabel != nil {
		props["batch_label"] = *member.BatchLabel
	}
	if member.ChapterName != nil {
		props["chapter_name"] = *member.ChapterName
	}
	if member.HomeCity != nil {
		props["home_city"] = *member.HomeCity
	}
	if member.OfficeCity != nil {
		props["office_city"] = *member.OfficeCity
	}
	if member.JobTitle != nil {
		props["job_title"] = *member.JobTitle
	}
	if member.Company != nil {
		props["company"] = *member.Company
	}
	if profession, declared := member.ProfessionCategory(); profession != "" {
		props["profession"] = profession
		props["profession_declared"] = declared
	}
	if member.OpenToReferrals != nil {
		props["open_to_referrals"] = *member.OpenToReferrals
	}

	return props
}

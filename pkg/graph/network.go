package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// NetworkService answers read-only questions about the directory graph
type NetworkService struct {
	client *Client
	logger ectologger.Logger
}

// NewNetworkService creates a new network service
func NewNetworkService(client *Client, logger ectologger.Logger) *NetworkService {
	return &NetworkService{
		client: client,
		logger: logger,
	}
}

// QueryResult represents the result of a graph query
type QueryResult struct {
	Nodes         []NodeResult `json:"nodes,omitempty"`
	Relationships []RelResult  `json:"relationships,omitempty"`
	Rows          []any        `json:"rows,omitempty"`
}

// NodeResult represents a node from query results
type NodeResult struct {
	ID         string         `json:"id"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
}

// RelResult represents a relationship from query results
type RelResult struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	StartNode  string         `json:"start_node"`
	EndNode    string         `json:"end_node"`
	Properties map[string]any `json:"properties"`
}

// ExecuteQuery runs a read-only Cypher query
func (s *NetworkService) ExecuteQuery(ctx context.Context, cypher string, params map[string]any) (*QueryResult, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.NetworkService.ExecuteQuery")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"query_len": len(cypher),
	})

	result, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}

		qr := &QueryResult{
			Nodes:         make([]NodeResult, 0),
			Relationships: make([]RelResult, 0),
			Rows:          make([]any, 0),
		}

		seenNodes := make(map[string]bool)
		seenRels := make(map[string]bool)

		for result.Next(ctx) {
			record := result.Record()
			row := make(map[string]any)

			for _, key := range record.Keys {
				val, _ := record.Get(key)
				row[key] = extractValue(val, qr, seenNodes, seenRels)
			}

			qr.Rows = append(qr.Rows, row)
		}

		return qr, nil
	})

	if err != nil {
		log.WithError(err).Error("Failed to execute graph query")
		return nil, fmt.Errorf("failed to execute graph query: %w", err)
	}

	return result.(*QueryResult), nil
}

// MemberNetwork finds everything connected to a member within N hops. Paths
// are returned so the caller gets the connecting edges as well as the
// neighbor nodes. Deactivated members are skipped.
func (s *NetworkService) MemberNetwork(ctx context.Context, memberID string, hops int) (*QueryResult, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.NetworkService.MemberNetwork")
	defer span.End()

	if hops <= 0 {
		hops = 2
	}

	cypher := fmt.Sprintf(`
		MATCH (start:%s {id: $id})
		MATCH p = (start)-[*1..%d]-(neighbor)
		WHERE neighbor.deleted_at IS NULL
		RETURN DISTINCT p
	`, LabelMember, hops)

	return s.ExecuteQuery(ctx, cypher, map[string]any{
		"id": memberID,
	})
}

// ConnectionPath finds the shortest path between two members, through
// shared chapters, companies and service categories
func (s *NetworkService) ConnectionPath(ctx context.Context, fromID, toID string, maxHops int) (*QueryResult, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.NetworkService.ConnectionPath")
	defer span.End()

	if maxHops <= 0 {
		maxHops = 6
	}

	cypher := fmt.Sprintf(`
		MATCH (start:%s {id: $from_id})
		MATCH (end:%s {id: $to_id})
		MATCH p = shortestPath((start)-[*..%d]-(end))
		WHERE ALL(n IN nodes(p) WHERE n.deleted_at IS NULL)
		RETURN p
	`, LabelMember, LabelMember, maxHops)

	return s.ExecuteQuery(ctx, cypher, map[string]any{
		"from_id": fromID,
		"to_id":   toID,
	})
}

// extractValue converts neo4j types to standard Go types. Nodes and
// relationships are keyed by element ID so edges always reference entries
// in the node list, whatever properties the node carries.
func extractValue(val any, qr *QueryResult, seenNodes, seenRels map[string]bool) any {
	if val == nil {
		return nil
	}

	switch v := val.(type) {
	case neo4j.Node:
		id := v.ElementId
		if !seenNodes[id] {
			seenNodes[id] = true
			qr.Nodes = append(qr.Nodes, NodeResult{
				ID:         id,
				Labels:     v.Labels,
				Properties: v.Props,
			})
		}
		return id

	case neo4j.Relationship:
		id := v.ElementId
		if !seenRels[id] {
			seenRels[id] = true
			qr.Relationships = append(qr.Relationships, RelResult{
				ID:         id,
				Type:       v.Type,
				StartNode:  v.StartElementId,
				EndNode:    v.EndElementId,
				Properties: v.Props,
			})
		}
		return id

	case neo4j.Path:
		// Extract nodes and relationships from path
		for _, node := range v.Nodes {
			extractValue(node, qr, seenNodes, seenRels)
		}
		for _, rel := range v.Relationships {
			extractValue(rel, qr, seenNodes, seenRels)
		}
		return map[string]any{
			"node_count": len(v.Nodes),
			"rel_count":  len(v.Relationships),
		}

	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = extractValue(item, qr, seenNodes, seenRels)
		}
		return result

	default:
		return v
	}
}

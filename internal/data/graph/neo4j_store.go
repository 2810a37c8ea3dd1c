package graph

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/gridware/assetgraph/internal/domain"
	apperrors "github.com/gridware/assetgraph/internal/pkg/errors"
	"github.com/gridware/assetgraph/internal/platform/logger"
	"github.com/gridware/assetgraph/internal/platform/neo4jdb"
)

// Store is the Neo4j implementation of the graph primitives. Nodes carry
// label AssetNode plus an id/name/type; scope roots carry label ScopeRoot;
// external references carry label ExternalRef keyed by external_id.
type Store struct {
	client *neo4jdb.Client
	log    *logger.Logger

	schemaOnce sync.Once
}

func NewStore(client *neo4jdb.Client, log *logger.Logger) (*Store, error) {
	if client == nil || client.Driver == nil {
		return nil, fmt.Errorf("graph: neo4j client required")
	}
	if log == nil {
		return nil, fmt.Errorf("graph: logger required")
	}
	return &Store{client: client, log: log.With("store", "Neo4jGraph")}, nil
}

// Relation types cannot be parameterized in Cypher, so they are validated
// and interpolated.
var relationPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

func relationType(relation string) (string, error) {
	if !relationPattern.MatchString(relation) {
		return "", fmt.Errorf("relation %q is not a valid relationship type: %w", relation, apperrors.ErrInvalidArgument)
	}
	return relation, nil
}

func (s *Store) ensureSchema(ctx context.Context, session neo4j.SessionWithContext) {
	s.schemaOnce.Do(func() {
		stmts := []string{
			`CREATE CONSTRAINT asset_node_id_unique IF NOT EXISTS FOR (n:AssetNode) REQUIRE n.id IS UNIQUE`,
			`CREATE CONSTRAINT scope_root_name_unique IF NOT EXISTS FOR (r:ScopeRoot) REQUIRE r.name IS UNIQUE`,
		}
		for _, q := range stmts {
			if res, err := session.Run(ctx, q, nil); err != nil {
				s.log.Warn("neo4j schema init failed (continuing)", "error", err)
			} else {
				_, _ = res.Consume(ctx)
			}
		}
	})
}

func (s *Store) EnsureScope(ctx context.Context, name string) (domain.Scope, error) {
	if name == "" {
		return domain.Scope{}, fmt.Errorf("empty scope name: %w", apperrors.ErrInvalidArgument)
	}
	session := s.client.WriteSession(ctx)
	defer session.Close(ctx)
	s.ensureSchema(ctx, session)

	rootID := uuid.New()
	record, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MERGE (r:ScopeRoot {name: $name})
ON CREATE SET r.id = $id, r.created_at = $now
RETURN r.id AS id
`, map[string]any{
			"name": name,
			"id":   rootID.String(),
			"now":  time.Now().UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		return rec.Values[0], nil
	})
	if err != nil {
		return domain.Scope{}, fmt.Errorf("ensure scope %q: %w", name, err)
	}

	id, err := uuid.Parse(record.(string))
	if err != nil {
		return domain.Scope{}, fmt.Errorf("scope %q has malformed id: %w", name, err)
	}
	return domain.Scope{
		Name: name,
		Root: domain.NodeRef{ID: id, Name: name, Type: "ScopeRoot"},
	}, nil
}

func (s *Store) CreateNode(ctx context.Context, name, nodeType string) (domain.NodeRef, error) {
	session := s.client.WriteSession(ctx)
	defer session.Close(ctx)
	s.ensureSchema(ctx, session)

	ref := domain.NodeRef{ID: uuid.New(), Name: name, Type: nodeType}
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
CREATE (n:AssetNode {id: $id, name: $name, type: $type, created_at: $now})
`, map[string]any{
			"id":   ref.ID.String(),
			"name": name,
			"type": nodeType,
			"now":  time.Now().UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	if err != nil {
		return domain.NodeRef{}, fmt.Errorf("create node %q (%s): %w", name, nodeType, err)
	}
	return ref, nil
}

func (s *Store) Attach(ctx context.Context, scope domain.Scope, parent, child domain.NodeRef, relation string) (*domain.PendingWrite, error) {
	rel, err := relationType(relation)
	if err != nil {
		return nil, err
	}
	session := s.client.WriteSession(ctx)
	defer session.Close(ctx)

	w := domain.NewPendingWrite(uuid.New().String())
	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, fmt.Sprintf(`
MATCH (p {id: $parent_id})
MATCH (c:AssetNode {id: $child_id})
MERGE (p)-[e:%s]->(c)
SET e.write_id = $write_id, e.scope = $scope
`, rel), map[string]any{
			"parent_id": parent.ID.String(),
			"child_id":  child.ID.String(),
			"write_id":  w.ID,
			"scope":     scope.Name,
		})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	w.Complete(err)
	if err != nil {
		return nil, fmt.Errorf("attach %q under %q by %s: %w", child.Name, parent.Name, rel, err)
	}
	return w, nil
}

func (s *Store) ResolveChildren(ctx context.Context, parent domain.NodeRef, relation string) ([]domain.NodeRef, error) {
	rel, err := relationType(relation)
	if err != nil {
		return nil, err
	}
	session := s.client.ReadSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, fmt.Sprintf(`
MATCH (p {id: $parent_id})
OPTIONAL MATCH (p)-[:%s]->(c:AssetNode)
RETURN p.id AS parent_id, c.id AS id, c.name AS name, c.type AS type
`, rel), map[string]any{"parent_id": parent.ID.String()})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, fmt.Errorf("parent %q (%s): %w", parent.Name, parent.ID, apperrors.ErrNotFound)
		}
		children := make([]domain.NodeRef, 0, len(records))
		for _, rec := range records {
			idVal, _ := rec.Get("id")
			if idVal == nil {
				continue // parent exists but has no children by this relation
			}
			nameVal, _ := rec.Get("name")
			typeVal, _ := rec.Get("type")
			id, perr := uuid.Parse(idVal.(string))
			if perr != nil {
				continue
			}
			children = append(children, domain.NodeRef{
				ID:   id,
				Name: asString(nameVal),
				Type: asString(typeVal),
			})
		}
		return children, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]domain.NodeRef), nil
}

func (s *Store) AttachExternalReference(ctx context.Context, scope domain.Scope, parent domain.NodeRef, externalID, name string) (*domain.PendingWrite, error) {
	session := s.client.WriteSession(ctx)
	defer session.Close(ctx)

	w := domain.NewPendingWrite(uuid.New().String())
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (p {id: $parent_id})
MERGE (i:ExternalRef {external_id: $external_id})
ON CREATE SET i.id = $id, i.name = $name
MERGE (p)-[e:HAS_ITEM]->(i)
SET e.write_id = $write_id, e.scope = $scope
`, map[string]any{
			"parent_id":   parent.ID.String(),
			"external_id": externalID,
			"id":          uuid.New().String(),
			"name":        name,
			"write_id":    w.ID,
			"scope":       scope.Name,
		})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	w.Complete(err)
	if err != nil {
		return nil, fmt.Errorf("attach item %q under %q: %w", externalID, parent.Name, err)
	}
	return w, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

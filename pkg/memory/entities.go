package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gladys-ai/gladys/pkg/models"
)

// Context expansion caps: total entities returned and relationships
// followed per entity. Both bound the BFS so a dense graph cannot blow up
// a prompt.
const (
	maxContextEntities     = 20
	relationshipsPerEntity = 10
)

const entityColumns = `id, entity_type, name, attributes, mention_count, first_seen, last_seen`

const relationshipColumns = `id, subject_id, predicate, object_id, confidence, evidence_count, created_at, updated_at`

// UpsertEntity inserts an entity or, when (entity_type, name) already
// exists, bumps its mention count, refreshes last_seen, and merges new
// attributes over the stored ones. Returns the entity's canonical ID.
func (s *Store) UpsertEntity(ctx context.Context, e models.Entity) (uuid.UUID, error) {
	if e.EntityType == "" || e.Name == "" {
		return uuid.Nil, fmt.Errorf("storage: %w: entity requires type and name", ErrInvalidInput)
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Attributes == nil {
		e.Attributes = map[string]any{}
	}

	var id uuid.UUID
	err := s.pool.QueryRow(ctx,
		`INSERT INTO entities (id, entity_type, name, attributes)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (entity_type, name) DO UPDATE SET
			attributes = entities.attributes || EXCLUDED.attributes,
			mention_count = entities.mention_count + 1,
			last_seen = NOW()
		 RETURNING id`,
		e.ID, e.EntityType, e.Name, e.Attributes).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("storage: upsert entity: %w", err)
	}
	return id, nil
}

// GetEntity retrieves one entity by ID.
func (s *Store) GetEntity(ctx context.Context, id uuid.UUID) (models.Entity, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = $1`, id)
	e, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Entity{}, fmt.Errorf("storage: entity %s: %w", id, ErrNotFound)
		}
		return models.Entity{}, fmt.Errorf("storage: get entity: %w", err)
	}
	return e, nil
}

// FindEntity looks an entity up by its natural key.
func (s *Store) FindEntity(ctx context.Context, entityType, name string) (models.Entity, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE entity_type = $1 AND name = $2`,
		entityType, name)
	e, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Entity{}, fmt.Errorf("storage: entity %s/%s: %w", entityType, name, ErrNotFound)
		}
		return models.Entity{}, fmt.Errorf("storage: find entity: %w", err)
	}
	return e, nil
}

// UpsertRelationship inserts a subject→predicate→object edge or, when it
// already exists, bumps its evidence count and takes the new confidence.
// Returns the relationship's canonical ID.
func (s *Store) UpsertRelationship(ctx context.Context, r models.Relationship) (uuid.UUID, error) {
	if r.SubjectID == uuid.Nil || r.ObjectID == uuid.Nil || r.Predicate == "" {
		return uuid.Nil, fmt.Errorf("storage: %w: relationship requires subject, predicate, and object", ErrInvalidInput)
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Confidence == 0 {
		r.Confidence = 0.5
	}

	var id uuid.UUID
	err := s.pool.QueryRow(ctx,
		`INSERT INTO relationships (id, subject_id, predicate, object_id, confidence)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (subject_id, predicate, object_id) DO UPDATE SET
			confidence = EXCLUDED.confidence,
			evidence_count = relationships.evidence_count + 1,
			updated_at = NOW()
		 RETURNING id`,
		r.ID, r.SubjectID, r.Predicate, r.ObjectID, r.Confidence).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("storage: upsert relationship: %w", err)
	}
	return id, nil
}

// ExpandContext walks the entity graph outward from the seed entities,
// breadth-first, up to maxHops hops (capped by configuration, default 2).
// The walk stops at maxContextEntities entities and follows at most
// relationshipsPerEntity edges per entity, highest evidence first.
func (s *Store) ExpandContext(ctx context.Context, entityIDs []uuid.UUID, maxHops int) (models.EntityContext, error) {
	if maxHops <= 0 || maxHops > s.cfg.ContextMaxHops {
		maxHops = s.cfg.ContextMaxHops
	}

	result := models.EntityContext{}
	visited := make(map[uuid.UUID]bool)
	seenRels := make(map[uuid.UUID]bool)
	frontier := entityIDs

	for hop := 0; hop <= maxHops && len(frontier) > 0 && len(result.Entities) < maxContextEntities; hop++ {
		var next []uuid.UUID

		for _, id := range frontier {
			if visited[id] || len(result.Entities) >= maxContextEntities {
				continue
			}

			entity, err := s.GetEntity(ctx, id)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return models.EntityContext{}, err
			}
			visited[id] = true
			result.Entities = append(result.Entities, entity)

			if hop == maxHops {
				continue
			}

			rels, err := s.entityRelationships(ctx, id)
			if err != nil {
				return models.EntityContext{}, err
			}
			for _, rel := range rels {
				if !seenRels[rel.ID] {
					seenRels[rel.ID] = true
					result.Relationships = append(result.Relationships, rel)
				}
				neighbor := rel.ObjectID
				if neighbor == id {
					neighbor = rel.SubjectID
				}
				if !visited[neighbor] {
					next = append(next, neighbor)
				}
			}
		}

		frontier = next
	}

	return result, nil
}

// entityRelationships returns the strongest edges touching an entity in
// either direction.
func (s *Store) entityRelationships(ctx context.Context, id uuid.UUID) ([]models.Relationship, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+relationshipColumns+` FROM relationships
		 WHERE subject_id = $1 OR object_id = $1
		 ORDER BY evidence_count DESC, confidence DESC
		 LIMIT $2`,
		id, relationshipsPerEntity)
	if err != nil {
		return nil, fmt.Errorf("storage: entity relationships: %w", err)
	}
	defer rows.Close()

	var rels []models.Relationship
	for rows.Next() {
		var r models.Relationship
		if err := rows.Scan(
			&r.ID, &r.SubjectID, &r.Predicate, &r.ObjectID,
			&r.Confidence, &r.EvidenceCount, &r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan relationship: %w", err)
		}
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

func scanEntity(row pgx.Row) (models.Entity, error) {
	var e models.Entity
	err := row.Scan(
		&e.ID, &e.EntityType, &e.Name, &e.Attributes,
		&e.MentionCount, &e.FirstSeen, &e.LastSeen,
	)
	return e, err
}

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/plasmakit/ionmix/internal/domain"
)

type ProvenanceStore struct {
	db *pgxpool.Pool
}

func NewProvenanceStore(db *pgxpool.Pool) *ProvenanceStore {
	return &ProvenanceStore{db: db}
}

// SaveEdges persists a run's derivation edges in one batch. Edges are
// append-only; a run's graph is never rewritten after the solve finishes.
func (s *ProvenanceStore) SaveEdges(ctx context.Context, runID uuid.UUID, edges []domain.DerivationEdge) error {
	if len(edges) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range edges {
		batch.Queue(
			`INSERT INTO derivation_edges (run_id, entity, activity, input)
			 VALUES ($1, $2, $3, $4)`,
			runID, e.Entity, e.Activity, e.Input,
		)
	}
	br := s.db.SendBatch(ctx, batch)
	defer br.Close()
	for range edges {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// SaveDocument persists the exported PROV document for a run. A re-export of
// the same run replaces the previous document.
func (s *ProvenanceStore) SaveDocument(ctx context.Context, runID uuid.UUID, doc []byte) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO provenance_documents (run_id, document)
		 VALUES ($1, $2)
		 ON CONFLICT (run_id) DO UPDATE SET document = EXCLUDED.document`,
		runID, doc,
	)
	return err
}

func (s *ProvenanceStore) GetDocument(ctx context.Context, runID uuid.UUID) ([]byte, error) {
	var doc []byte
	err := s.db.QueryRow(ctx,
		`SELECT document FROM provenance_documents WHERE run_id = $1`,
		runID,
	).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

func (s *ProvenanceStore) GetByRun(ctx context.Context, runID uuid.UUID) ([]domain.DerivationEdge, error) {
	rows, err := s.db.Query(ctx,
		`SELECT entity, activity, input
		 FROM derivation_edges
		 WHERE run_id = $1
		 ORDER BY entity, input`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []domain.DerivationEdge
	for rows.Next() {
		var e domain.DerivationEdge
		if err := rows.Scan(&e.Entity, &e.Activity, &e.Input); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func (s *ProvenanceStore) DeleteByRun(ctx context.Context, runID uuid.UUID) (int64, error) {
	if _, err := s.db.Exec(ctx,
		`DELETE FROM provenance_documents WHERE run_id = $1`,
		runID,
	); err != nil {
		return 0, err
	}
	tag, err := s.db.Exec(ctx,
		`DELETE FROM derivation_edges WHERE run_id = $1`,
		runID,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

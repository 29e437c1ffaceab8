package store

import (
	"context"
	"database/sql"
	"errors"
)

var ErrNotFound = errors.New("document not found")

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// Save inserts the document or, on re-ingestion of the same id, resets its
// status while keeping the row (and its chunk count) in place.
func (r *PostgresRepo) Save(ctx context.Context, doc *Document) error {
	query := `INSERT INTO documents (id, namespace, source_type, status, checksum)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			namespace = EXCLUDED.namespace,
			source_type = EXCLUDED.source_type,
			status = EXCLUDED.status,
			checksum = EXCLUDED.checksum,
			updated_at = NOW()`
	_, err := r.db.ExecContext(ctx, query, doc.ID, doc.Namespace, doc.SourceType, doc.Status, doc.Checksum)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Document, error) {
	doc := &Document{}
	query := `SELECT id, namespace, source_type, status, chunk_count, checksum, created_at, updated_at
		FROM documents WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&doc.ID, &doc.Namespace, &doc.SourceType, &doc.Status, &doc.ChunkCount, &doc.Checksum,
		&doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE documents SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, status, id)
	return err
}

func (r *PostgresRepo) UpdateChunkCount(ctx context.Context, id string, count int) error {
	query := `UPDATE documents SET chunk_count = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, count, id)
	return err
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM documents WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *PostgresRepo) RecordChunkFailure(ctx context.Context, docID string, chunkIndex int, reason string) error {
	query := `INSERT INTO chunk_failures (document_id, chunk_index, reason)
		VALUES ($1, $2, $3)
		ON CONFLICT (document_id, chunk_index) DO UPDATE SET reason = EXCLUDED.reason, created_at = NOW()`
	_, err := r.db.ExecContext(ctx, query, docID, chunkIndex, reason)
	return err
}

func (r *PostgresRepo) ClearChunkFailures(ctx context.Context, docID string) error {
	query := `DELETE FROM chunk_failures WHERE document_id = $1`
	_, err := r.db.ExecContext(ctx, query, docID)
	return err
}

func (r *PostgresRepo) ChunkFailures(ctx context.Context, docID string) ([]ChunkFailure, error) {
	query := `SELECT document_id, chunk_index, reason, created_at FROM chunk_failures
		WHERE document_id = $1 ORDER BY chunk_index`
	rows, err := r.db.QueryContext(ctx, query, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var failures []ChunkFailure
	for rows.Next() {
		var f ChunkFailure
		if err := rows.Scan(&f.DocumentID, &f.ChunkIndex, &f.Reason, &f.CreatedAt); err != nil {
			return nil, err
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

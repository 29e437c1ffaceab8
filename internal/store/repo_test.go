package store_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"semdex/internal/store"
)

func TestPostgresRepo_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := store.NewPostgresRepo(db)

	t.Run("Insert Or Reset", func(t *testing.T) {
		doc := &store.Document{
			ID:         "doc-1",
			Namespace:  "docs",
			SourceType: "pdf",
			Status:     store.StatusPending,
			Checksum:   "abc123",
		}

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents")).
			WithArgs(doc.ID, doc.Namespace, doc.SourceType, doc.Status, doc.Checksum).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Save(context.Background(), doc)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresRepo_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := store.NewPostgresRepo(db)

	t.Run("Found", func(t *testing.T) {
		now := time.Now()
		rows := sqlmock.NewRows([]string{"id", "namespace", "source_type", "status", "chunk_count", "checksum", "created_at", "updated_at"}).
			AddRow("doc-1", "docs", "pdf", store.StatusIndexed, 3, "abc123", now, now)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, namespace, source_type, status, chunk_count, checksum, created_at, updated_at")).
			WithArgs("doc-1").
			WillReturnRows(rows)

		doc, err := repo.Get(context.Background(), "doc-1")
		assert.NoError(t, err)
		assert.Equal(t, store.StatusIndexed, doc.Status)
		assert.Equal(t, 3, doc.ChunkCount)
	})

	t.Run("Not Found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, namespace, source_type, status, chunk_count, checksum, created_at, updated_at")).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := repo.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestPostgresRepo_UpdateStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := store.NewPostgresRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET status = $1, updated_at = NOW() WHERE id = $2")).
		WithArgs(store.StatusEmbedding, "doc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.UpdateStatus(context.Background(), "doc-1", store.StatusEmbedding)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_ChunkFailures(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := store.NewPostgresRepo(db)

	t.Run("Record And List", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO chunk_failures")).
			WithArgs("doc-1", 4, "embedding failed").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.RecordChunkFailure(context.Background(), "doc-1", 4, "embedding failed"))

		rows := sqlmock.NewRows([]string{"document_id", "chunk_index", "reason", "created_at"}).
			AddRow("doc-1", 4, "embedding failed", time.Now())
		mock.ExpectQuery(regexp.QuoteMeta("SELECT document_id, chunk_index, reason, created_at FROM chunk_failures")).
			WithArgs("doc-1").
			WillReturnRows(rows)

		failures, err := repo.ChunkFailures(context.Background(), "doc-1")
		assert.NoError(t, err)
		assert.Len(t, failures, 1)
		assert.Equal(t, 4, failures[0].ChunkIndex)
	})

	t.Run("Clear", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM chunk_failures WHERE document_id = $1")).
			WithArgs("doc-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.ClearChunkFailures(context.Background(), "doc-1"))
	})
}

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/markdave123-py/Studyhall/internal/core"
	"github.com/markdave123-py/Studyhall/internal/models"
)

// errNotProcessing is returned when a chunk commit races with another
// status change.
var errNotProcessing = errors.New("document is no longer processing")

// Implementing the db interface for Document

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	if doc.Status == "" {
		doc.Status = models.StatusPending
	}
	const q = `
		INSERT INTO documents
			(id, user_id, class_id, file_name, storage_path, content_type, file_size, status, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING created_at, updated_at
	`
	return c.db.QueryRowContext(ctx, q,
		doc.ID, doc.UserID, doc.ClassID, doc.FileName, doc.StoragePath, doc.ContentType, doc.FileSize, doc.Status,
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)
}

const documentColumns = `id, user_id, class_id, file_name, storage_path, content_type, file_size, status, failure_reason, chunk_count, created_at, updated_at`

func scanDocument(row interface{ Scan(...any) error }, d *models.Document) error {
	return row.Scan(
		&d.ID, &d.UserID, &d.ClassID, &d.FileName, &d.StoragePath, &d.ContentType, &d.FileSize,
		&d.Status, &d.FailureReason, &d.ChunkCount, &d.CreatedAt, &d.UpdatedAt,
	)
}

// GetDocumentByID returns nil, nil when no document has the id.
func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`

	var d models.Document
	err := scanDocument(c.db.QueryRowContext(ctx, q, id), &d)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *DatabaseClient) ListDocumentsByClass(ctx context.Context, userID, classID string) ([]models.Document, error) {
	q := `SELECT ` + documentColumns + `
		FROM documents
		WHERE user_id = $1 AND ($2 = '' OR class_id = $2)
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, userID, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		var d models.Document
		if err := scanDocument(rows, &d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ClaimDocument is the ingestion gate: the conditional update succeeds for
// exactly one concurrent caller.
func (c *DatabaseClient) ClaimDocument(ctx context.Context, id string) (bool, error) {
	const q = `
		UPDATE documents
		SET status = 'processing', failure_reason = '', updated_at = now()
		WHERE id = $1 AND status <> 'processing'
	`
	res, err := c.db.ExecContext(ctx, q, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkDocumentFailed records reason and drops any chunks, so a failed
// document never exposes stale or partial chunks.
func (c *DatabaseClient) MarkDocumentFailed(ctx context.Context, id string, reason models.FailureReason) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, id); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	const q = `
		UPDATE documents
		SET status = 'failed', failure_reason = $2, chunk_count = 0, updated_at = now()
		WHERE id = $1
	`
	res, err := tx.ExecContext(ctx, q, id, string(reason))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return tx.Commit()
}

func (c *DatabaseClient) DeleteDocument(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrDocumentNotFound
	}
	return nil
}

// Implementing the db interface for Document Chunks

// CommitDocumentChunks swaps the document's chunk set and completes it in a
// single transaction.
func (c *DatabaseClient) CommitDocumentChunks(ctx context.Context, documentID string, chunks []models.DocumentChunk) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var status models.DocumentStatus
	if err := tx.QueryRowContext(ctx, `SELECT status FROM documents WHERE id = $1 FOR UPDATE`, documentID).Scan(&status); err != nil {
		return fmt.Errorf("lock document: %w", err)
	}
	if status != models.StatusProcessing {
		return fmt.Errorf("%w: status is %s", errNotProcessing, status)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete previous chunks: %w", err)
	}

	const q = `
		INSERT INTO document_chunks
			(id, document_id, class_id, user_id, content, chunk_index, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		if ch.ID == "" {
			ch.ID = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx,
			ch.ID, documentID, ch.ClassID, ch.UserID, ch.Content, ch.ChunkIndex, pgvector.NewVector(ch.Embedding),
		); err != nil {
			return fmt.Errorf("insert chunk %d: %w", ch.ChunkIndex, err)
		}
	}

	const done = `
		UPDATE documents
		SET status = 'completed', failure_reason = '', chunk_count = $2, updated_at = now()
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, done, documentID, len(chunks)); err != nil {
		return fmt.Errorf("complete document: %w", err)
	}
	return tx.Commit()
}

func (c *DatabaseClient) GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	const q = `
		SELECT id, document_id, class_id, user_id, content, chunk_index, embedding, created_at
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY chunk_index ASC
	`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DocumentChunk
	for rows.Next() {
		var (
			ch  models.DocumentChunk
			emb pgvector.Vector
		)
		if err := rows.Scan(
			&ch.ID, &ch.DocumentID, &ch.ClassID, &ch.UserID, &ch.Content, &ch.ChunkIndex, &emb, &ch.CreatedAt,
		); err != nil {
			return nil, err
		}
		ch.Embedding = emb.Slice()
		out = append(out, ch)
	}
	return out, rows.Err()
}

// SearchChunks finds the chunks closest to q.Vector by cosine distance,
// optionally scoped to a class and/or user.
func (c *DatabaseClient) SearchChunks(ctx context.Context, q core.ChunkQuery) ([]models.DocumentChunk, error) {
	query, args := buildSearchQuery(q)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DocumentChunk
	for rows.Next() {
		var ch models.DocumentChunk
		if err := rows.Scan(
			&ch.ID, &ch.DocumentID, &ch.ClassID, &ch.UserID, &ch.Content, &ch.ChunkIndex, &ch.CreatedAt, &ch.Similarity,
		); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func buildSearchQuery(q core.ChunkQuery) (string, []any) {
	args := []any{pgvector.NewVector(q.Vector)}
	var where []string
	if q.ClassID != "" {
		args = append(args, q.ClassID)
		where = append(where, fmt.Sprintf("class_id = $%d", len(args)))
	}
	if q.UserID != "" {
		args = append(args, q.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	args = append(args, q.Limit)

	var sb strings.Builder
	sb.WriteString(`SELECT id, document_id, class_id, user_id, content, chunk_index, created_at, 1 - (embedding <=> $1) AS similarity
		FROM document_chunks`)
	if len(where) > 0 {
		sb.WriteString("\n\t\tWHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	fmt.Fprintf(&sb, "\n\t\tORDER BY embedding <=> $1\n\t\tLIMIT $%d", len(args))
	return sb.String(), args
}

package document

import (
	"context"
	"database/sql"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const documentColumns = `id, domain_id, storage_ref, status, progress, page_count, char_count,
	error_message, started_at, completed_at, created_at, updated_at`

func (r *PostgresRepo) Create(ctx context.Context, doc *Document) error {
	query := `INSERT INTO documents (domain_id, storage_ref, status) VALUES ($1, $2, $3) RETURNING id, created_at, updated_at`
	return r.db.QueryRowContext(ctx, query, doc.DomainID, doc.StorageRef, doc.Status).
		Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Document, error) {
	doc := &Document{}
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&doc.ID, &doc.DomainID, &doc.StorageRef, &doc.Status, &doc.Progress,
		&doc.PageCount, &doc.CharCount, &doc.Error,
		&doc.StartedAt, &doc.CompletedAt, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *PostgresRepo) ListByDomain(ctx context.Context, domainID string) ([]Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE domain_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, domainID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(
			&doc.ID, &doc.DomainID, &doc.StorageRef, &doc.Status, &doc.Progress,
			&doc.PageCount, &doc.CharCount, &doc.Error,
			&doc.StartedAt, &doc.CompletedAt, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM documents WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *PostgresRepo) CountByStatus(ctx context.Context) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM documents GROUP BY status`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// Pipeline transition methods (ingest.DocumentUpdater).

func (r *PostgresRepo) StartRun(ctx context.Context, id string) error {
	query := `UPDATE documents SET error_message = '', started_at = NOW(), completed_at = NULL, updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *PostgresRepo) SetExtracted(ctx context.Context, id string, pages, chars int) error {
	query := `UPDATE documents SET page_count = $1, char_count = $2, updated_at = NOW() WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, pages, chars, id)
	return err
}

func (r *PostgresRepo) UpdateProgress(ctx context.Context, id, status string, percent int) error {
	query := `UPDATE documents SET status = $1, progress = $2, updated_at = NOW() WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, status, percent, id)
	return err
}

func (r *PostgresRepo) MarkCompleted(ctx context.Context, id string) error {
	query := `UPDATE documents SET status = $1, progress = 100, completed_at = NOW(), updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, StatusCompleted, id)
	return err
}

func (r *PostgresRepo) MarkFailed(ctx context.Context, id, message string) error {
	query := `UPDATE documents SET status = $1, error_message = $2, completed_at = NOW(), updated_at = NOW() WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, StatusFailed, message, id)
	return err
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"overseer/internal/tool/models"
	"overseer/pkg/platform/sentinel"
)

// pq error classes for constraint violations.
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// PostgresStore persists the tool registry in PostgreSQL. The tools table is
// the referent of the foreign keys on data_accesses and
// data_access_policies.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Add(ctx context.Context, tool models.Tool) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO tools (name) VALUES ($1)`, tool.Name)
	if isPQError(err, pqUniqueViolation) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert tool: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]models.Tool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM tools ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	defer rows.Close()

	var tools []models.Tool
	for rows.Next() {
		var tool models.Tool
		if err := rows.Scan(&tool.Name); err != nil {
			return nil, fmt.Errorf("scan tool: %w", err)
		}
		tools = append(tools, tool)
	}
	return tools, rows.Err()
}

func (s *PostgresStore) Exists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM tools WHERE name = $1)`, name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check tool: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tools WHERE name = $1`, name)
	if isPQError(err, pqForeignKeyViolation) {
		return sentinel.ErrReferenced
	}
	if err != nil {
		return fmt.Errorf("delete tool: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete tool: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func isPQError(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}

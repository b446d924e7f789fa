package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"overseer/internal/policy/models"
	id "overseer/pkg/domain"
	"overseer/pkg/platform/sentinel"
)

// PostgresStore persists policies in the data_access_policies table.
// Wildcards are NULL columns; the match predicate itself runs in Go (see
// the consent package), so queries here only narrow by owner.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const policyColumns = `id, owner_rid, tool, access_kind, user_rid, validity_period_start_date, validity_period_end_date`

func (s *PostgresStore) Add(ctx context.Context, policy *models.Policy) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO data_access_policies (`+policyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.UUID(policy.ID), policy.Owner.String(),
		nullString(policy.Tool), nullKind(policy.AccessKind), nullSubject(policy.User),
		nullDate(policy.ValidityStart), nullDate(policy.ValidityEnd))
	if isForeignKeyViolation(err) {
		// The tool column references tools(name); the service validates
		// first, so this only fires on a racing tool deletion.
		return sentinel.ErrReferenced
	}
	if err != nil {
		return fmt.Errorf("insert policy: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, owner id.SubjectID, policyID id.PolicyID) (*models.Policy, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+policyColumns+`
		FROM data_access_policies
		WHERE id = $1 AND owner_rid = $2
	`, uuid.UUID(policyID), owner.String())
	policy, err := scanPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get policy: %w", err)
	}
	return policy, nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, owner id.SubjectID) ([]*models.Policy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+policyColumns+`
		FROM data_access_policies
		WHERE owner_rid = $1
		ORDER BY id
	`, owner.String())
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	return collectPolicies(rows)
}

func (s *PostgresStore) ListByOwners(ctx context.Context, owners []id.SubjectID) ([]*models.Policy, error) {
	ownerStrings := make([]string, len(owners))
	for i, owner := range owners {
		ownerStrings[i] = owner.String()
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+policyColumns+`
		FROM data_access_policies
		WHERE owner_rid = ANY($1)
	`, pq.Array(ownerStrings))
	if err != nil {
		return nil, fmt.Errorf("list candidate policies: %w", err)
	}
	return collectPolicies(rows)
}

func (s *PostgresStore) Update(ctx context.Context, policy *models.Policy) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE data_access_policies
		SET tool = $3, access_kind = $4, user_rid = $5,
		    validity_period_start_date = $6, validity_period_end_date = $7
		WHERE id = $1 AND owner_rid = $2
	`, uuid.UUID(policy.ID), policy.Owner.String(),
		nullString(policy.Tool), nullKind(policy.AccessKind), nullSubject(policy.User),
		nullDate(policy.ValidityStart), nullDate(policy.ValidityEnd))
	if err != nil {
		return fmt.Errorf("update policy: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update policy: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, owner id.SubjectID, policyID id.PolicyID) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM data_access_policies
		WHERE id = $1 AND owner_rid = $2
	`, uuid.UUID(policyID), owner.String())
	if err != nil {
		return fmt.Errorf("delete policy: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete policy: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func collectPolicies(rows *sql.Rows) ([]*models.Policy, error) {
	defer rows.Close()
	var policies []*models.Policy
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		policies = append(policies, policy)
	}
	return policies, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row scanner) (*models.Policy, error) {
	var (
		policyID   uuid.UUID
		owner      string
		tool       sql.NullString
		accessKind sql.NullString
		user       sql.NullString
		start      sql.NullTime
		end        sql.NullTime
	)
	if err := row.Scan(&policyID, &owner, &tool, &accessKind, &user, &start, &end); err != nil {
		return nil, err
	}

	policy := &models.Policy{
		ID:    id.PolicyID(policyID),
		Owner: id.SubjectID(owner),
	}
	if tool.Valid {
		policy.Tool = &tool.String
	}
	if accessKind.Valid {
		kind := id.AccessKind(accessKind.String)
		policy.AccessKind = &kind
	}
	if user.Valid {
		subject := id.SubjectID(user.String)
		policy.User = &subject
	}
	if start.Valid {
		date := id.DateOf(start.Time)
		policy.ValidityStart = &date
	}
	if end.Valid {
		date := id.DateOf(end.Time)
		policy.ValidityEnd = &date
	}
	return policy, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullKind(k *id.AccessKind) sql.NullString {
	if k == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: k.String(), Valid: true}
}

func nullSubject(s *id.SubjectID) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: s.String(), Valid: true}
}

func nullDate(d *id.Date) sql.NullTime {
	if d == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: d.Time().UTC(), Valid: true}
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

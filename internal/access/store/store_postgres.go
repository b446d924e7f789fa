package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"overseer/internal/access/models"
	id "overseer/pkg/domain"
	txcontext "overseer/pkg/platform/tx"
)

// PostgresStore persists recorded accesses across three relations
// (data_accesses, data_owners, data_types) and writes a matching outbox
// entry in the same transaction. The outbox worker publishes entries to
// Kafka; the relational rows stay the queryable log.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// outboxPayload is the JSON body published to Kafka for a recorded access.
type outboxPayload struct {
	ID            string   `json:"ID"`
	User          string   `json:"User"`
	Tool          string   `json:"Tool"`
	AccessKind    string   `json:"AccessKind"`
	Timestamp     string   `json:"Timestamp"`
	Justification string   `json:"Justification,omitempty"`
	DataTypes     []string `json:"DataTypes,omitempty"`
	Owners        []string `json:"Owners"`
}

// Record inserts the access, its owner and data-type rows, and the outbox
// entry. Callers run it inside a transaction (pkg/platform/tx); a partial
// access must never become visible.
func (s *PostgresStore) Record(ctx context.Context, access *models.DataAccess) error {
	exec := s.execer(ctx)

	_, err := exec.ExecContext(ctx, `
		INSERT INTO data_accesses (id, user_rid, tool, access_kind, timestamp, justification)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.UUID(access.ID), access.User.String(), access.Tool,
		access.Kind.String(), access.Timestamp, access.Justification)
	if err != nil {
		return fmt.Errorf("insert access: %w", err)
	}

	for _, owner := range access.Owners {
		if _, err := exec.ExecContext(ctx, `
			INSERT INTO data_owners (access_id, owner_rid) VALUES ($1, $2)
		`, uuid.UUID(access.ID), owner.String()); err != nil {
			return fmt.Errorf("insert access owner: %w", err)
		}
	}

	for _, dataType := range access.DataTypes {
		if _, err := exec.ExecContext(ctx, `
			INSERT INTO data_types (access_id, type) VALUES ($1, $2)
		`, uuid.UUID(access.ID), dataType); err != nil {
			return fmt.Errorf("insert access data type: %w", err)
		}
	}

	return s.appendOutbox(ctx, exec, access)
}

func (s *PostgresStore) appendOutbox(ctx context.Context, exec dbExecutor, access *models.DataAccess) error {
	owners := make([]string, len(access.Owners))
	for i, owner := range access.Owners {
		owners[i] = owner.String()
	}
	payload := outboxPayload{
		ID:            access.ID.String(),
		User:          access.User.String(),
		Tool:          access.Tool,
		AccessKind:    access.Kind.String(),
		Timestamp:     access.Timestamp.Format(time.RFC3339Nano),
		Justification: access.Justification,
		DataTypes:     access.DataTypes,
		Owners:        owners,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal access payload: %w", err)
	}

	_, err = exec.ExecContext(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New(), "data_access", access.ID.String(), "access.recorded", payloadBytes, time.Now())
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// ListFilter narrows an owner's view of the log. Zero dates mean unbounded;
// a zero Limit means no cap.
type ListFilter struct {
	DateStart id.Date
	DateEnd   id.Date
	Limit     int
	Offset    int
}

// ListByOwner returns the accesses an owner is involved in, newest first.
// Only the requesting owner appears in each returned record: co-owners of
// the same access are somebody else's data.
func (s *PostgresStore) ListByOwner(ctx context.Context, owner id.SubjectID, filter ListFilter) ([]*models.DataAccess, error) {
	query := `
		SELECT a.id, a.user_rid, a.tool, a.access_kind, a.timestamp, a.justification
		FROM data_accesses a
		JOIN data_owners o ON o.access_id = a.id
		WHERE o.owner_rid = $1
	`
	args := []any{owner.String()}
	if !filter.DateStart.IsZero() {
		args = append(args, filter.DateStart.Time())
		query += fmt.Sprintf(" AND a.timestamp >= $%d", len(args))
	}
	if !filter.DateEnd.IsZero() {
		// End date is inclusive: cover the whole calendar day.
		args = append(args, filter.DateEnd.Time().AddDate(0, 0, 1))
		query += fmt.Sprintf(" AND a.timestamp < $%d", len(args))
	}
	query += " ORDER BY a.timestamp DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list accesses: %w", err)
	}
	defer rows.Close()

	var accesses []*models.DataAccess
	for rows.Next() {
		var (
			accessID uuid.UUID
			access   models.DataAccess
			user     string
			kind     string
		)
		if err := rows.Scan(&accessID, &user, &access.Tool, &kind, &access.Timestamp, &access.Justification); err != nil {
			return nil, fmt.Errorf("scan access: %w", err)
		}
		access.ID = id.AccessID(accessID)
		access.User = id.SubjectID(user)
		access.Kind = id.AccessKind(kind)
		access.Owners = []id.SubjectID{owner}
		accesses = append(accesses, &access)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accesses: %w", err)
	}

	if err := s.attachDataTypes(ctx, accesses); err != nil {
		return nil, err
	}
	return accesses, nil
}

func (s *PostgresStore) attachDataTypes(ctx context.Context, accesses []*models.DataAccess) error {
	if len(accesses) == 0 {
		return nil
	}
	byID := make(map[id.AccessID]*models.DataAccess, len(accesses))
	ids := make([]uuid.UUID, len(accesses))
	for i, access := range accesses {
		byID[access.ID] = access
		ids[i] = uuid.UUID(access.ID)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT access_id, type FROM data_types WHERE access_id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("list access data types: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			accessID uuid.UUID
			dataType string
		)
		if err := rows.Scan(&accessID, &dataType); err != nil {
			return fmt.Errorf("scan access data type: %w", err)
		}
		if access, ok := byID[id.AccessID(accessID)]; ok {
			access.DataTypes = append(access.DataTypes, dataType)
		}
	}
	return rows.Err()
}

// FieldCounts groups an owner's log by the distinct values of each
// countable field.
type FieldCounts struct {
	Users map[string]int
	Tools map[string]int
	Kinds map[string]int
}

// CountsByOwner aggregates how often each user, tool, and access kind
// appears in the owner's log.
func (s *PostgresStore) CountsByOwner(ctx context.Context, owner id.SubjectID) (*FieldCounts, error) {
	counts := &FieldCounts{
		Users: make(map[string]int),
		Tools: make(map[string]int),
		Kinds: make(map[string]int),
	}
	for _, group := range []struct {
		column string
		into   map[string]int
	}{
		{"user_rid", counts.Users},
		{"tool", counts.Tools},
		{"access_kind", counts.Kinds},
	} {
		rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
			SELECT a.%s, COUNT(*)
			FROM data_accesses a
			JOIN data_owners o ON o.access_id = a.id
			WHERE o.owner_rid = $1
			GROUP BY a.%s
		`, group.column, group.column), owner.String())
		if err != nil {
			return nil, fmt.Errorf("count accesses by %s: %w", group.column, err)
		}
		if err := collectCounts(rows, group.into); err != nil {
			return nil, fmt.Errorf("count accesses by %s: %w", group.column, err)
		}
	}
	return counts, nil
}

func collectCounts(rows *sql.Rows, into map[string]int) error {
	defer rows.Close()
	for rows.Next() {
		var (
			value string
			n     int
		)
		if err := rows.Scan(&value, &n); err != nil {
			return err
		}
		into[value] = n
	}
	return rows.Err()
}

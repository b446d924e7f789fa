// Package storage holds the relational schema. Applied idempotently at
// startup and by the integration test containers.
package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema is the full DDL. Statements are ordered by dependency; every
// statement is idempotent so repeated application is safe.
const Schema = `
CREATE TABLE IF NOT EXISTS tools (
	name VARCHAR(20) PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS data_accesses (
	id UUID PRIMARY KEY,
	user_rid VARCHAR(100) NOT NULL,
	tool VARCHAR(20) NOT NULL REFERENCES tools (name),
	access_kind VARCHAR(20) NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	justification TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_data_accesses_timestamp
	ON data_accesses (timestamp DESC);

CREATE TABLE IF NOT EXISTS data_owners (
	access_id UUID NOT NULL REFERENCES data_accesses (id) ON DELETE CASCADE,
	owner_rid VARCHAR(100) NOT NULL,
	PRIMARY KEY (access_id, owner_rid)
);

CREATE INDEX IF NOT EXISTS idx_data_owners_owner
	ON data_owners (owner_rid);

CREATE TABLE IF NOT EXISTS data_types (
	access_id UUID NOT NULL REFERENCES data_accesses (id) ON DELETE CASCADE,
	type VARCHAR(100) NOT NULL,
	PRIMARY KEY (access_id, type)
);

CREATE TABLE IF NOT EXISTS data_access_policies (
	id UUID PRIMARY KEY,
	owner_rid VARCHAR(100) NOT NULL,
	tool VARCHAR(20) REFERENCES tools (name),
	access_kind VARCHAR(20),
	user_rid VARCHAR(100),
	validity_period_start_date DATE,
	validity_period_end_date DATE
);

CREATE INDEX IF NOT EXISTS idx_data_access_policies_owner
	ON data_access_policies (owner_rid);

CREATE TABLE IF NOT EXISTS outbox (
	id UUID PRIMARY KEY,
	aggregate_type VARCHAR(50) NOT NULL,
	aggregate_id VARCHAR(100) NOT NULL,
	event_type VARCHAR(100) NOT NULL,
	payload JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	published_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_outbox_unpublished
	ON outbox (created_at) WHERE published_at IS NULL;
`

// defaultTools seeds the registry with the tools of the first deployment.
var defaultTools = []string{"jira", "git", "slack", "confluence", "skype", "microsoft-teams"}

// Ensure applies the schema and seeds the default tools.
func Ensure(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	for _, tool := range defaultTools {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO tools (name) VALUES ($1) ON CONFLICT (name) DO NOTHING
		`, tool); err != nil {
			return fmt.Errorf("seed tool %q: %w", tool, err)
		}
	}
	return nil
}

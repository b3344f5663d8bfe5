package postgres

import (
	"context"
	"fmt"
)

// schema creates the tenants table. Custom domains are stored lower-cased and
// NULL when unset so the partial unique index binds each domain to one tenant.
const schema = `
	CREATE TABLE IF NOT EXISTS tenants (
		id UUID PRIMARY KEY,
		subdomain VARCHAR(63) NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		owner_user_id VARCHAR(255) NOT NULL,
		custom_domain VARCHAR(253),
		custom_domain_verified BOOLEAN NOT NULL DEFAULT FALSE,
		custom_domain_verification_code TEXT,
		custom_domain_issued_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT tenants_subdomain_key UNIQUE (subdomain)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_tenants_custom_domain
		ON tenants (custom_domain) WHERE custom_domain IS NOT NULL;

	CREATE INDEX IF NOT EXISTS idx_tenants_owner_user_id ON tenants (owner_user_id);
`

// Migrate applies the database schema. It is safe to run on every start.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/narvanalabs/storefront/internal/models"
	"github.com/narvanalabs/storefront/internal/store"
)

// TenantStore implements store.TenantStore using PostgreSQL.
type TenantStore struct {
	db     *sql.DB
	logger *slog.Logger
}

const tenantColumns = `
	id, subdomain, name, owner_user_id,
	COALESCE(custom_domain, ''), custom_domain_verified,
	COALESCE(custom_domain_verification_code, ''), custom_domain_issued_at,
	created_at, updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner) (*models.Tenant, error) {
	t := &models.Tenant{}
	var issuedAt sql.NullTime
	err := row.Scan(
		&t.ID,
		&t.Subdomain,
		&t.Name,
		&t.OwnerUserID,
		&t.CustomDomain,
		&t.CustomDomainVerified,
		&t.CustomDomainVerificationCode,
		&issuedAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if issuedAt.Valid {
		issued := issuedAt.Time
		t.CustomDomainIssuedAt = &issued
	}
	return t, nil
}

// nullString stores empty strings as NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Create creates a new tenant.
func (s *TenantStore) Create(ctx context.Context, tenant *models.Tenant) error {
	if tenant.ID == "" {
		tenant.ID = uuid.New().String()
	}
	tenant.Subdomain = models.NormalizeKey(tenant.Subdomain)
	tenant.CustomDomain = models.NormalizeKey(tenant.CustomDomain)

	query := `
		INSERT INTO tenants (id, subdomain, name, owner_user_id, custom_domain,
			custom_domain_verified, custom_domain_verification_code, custom_domain_issued_at,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx, query,
		tenant.ID,
		tenant.Subdomain,
		tenant.Name,
		tenant.OwnerUserID,
		nullString(tenant.CustomDomain),
		tenant.CustomDomainVerified,
		nullString(tenant.CustomDomainVerificationCode),
		nullTime(tenant.CustomDomainIssuedAt),
		now,
		now,
	).Scan(&tenant.CreatedAt, &tenant.UpdatedAt)
	if err != nil {
		return mapPostgresError(fmt.Errorf("inserting tenant: %w", err))
	}
	return nil
}

func (s *TenantStore) getOne(ctx context.Context, q queryable, where string, arg any) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE ` + where
	t, err := scanTenant(q.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapPostgresError(err)
	}
	return t, nil
}

// GetBySubdomain retrieves a tenant by subdomain.
func (s *TenantStore) GetBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error) {
	t, err := s.getOne(ctx, s.db, "subdomain = $1", models.NormalizeKey(subdomain))
	if err != nil {
		return nil, fmt.Errorf("getting tenant by subdomain: %w", err)
	}
	return t, nil
}

// GetByID retrieves a tenant by ID.
func (s *TenantStore) GetByID(ctx context.Context, id string) (*models.Tenant, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	t, err := s.getOne(ctx, s.db, "id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("getting tenant by id: %w", err)
	}
	return t, nil
}

// GetByCustomDomain retrieves the tenant holding a custom domain claim.
func (s *TenantStore) GetByCustomDomain(ctx context.Context, domain string) (*models.Tenant, error) {
	domain = models.NormalizeKey(domain)
	if domain == "" {
		return nil, nil
	}
	t, err := s.getOne(ctx, s.db, "custom_domain = $1", domain)
	if err != nil {
		return nil, fmt.Errorf("getting tenant by custom domain: %w", err)
	}
	return t, nil
}

func (s *TenantStore) list(ctx context.Context, where string, args ...any) ([]*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants ` + where + ` ORDER BY subdomain`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tenants: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tenants: %w", err)
	}
	return tenants, nil
}

// List retrieves all tenants.
func (s *TenantStore) List(ctx context.Context) ([]*models.Tenant, error) {
	return s.list(ctx, "")
}

// ListByOwner retrieves all tenants owned by a user.
func (s *TenantStore) ListByOwner(ctx context.Context, ownerUserID string) ([]*models.Tenant, error) {
	return s.list(ctx, "WHERE owner_user_id = $1", ownerUserID)
}

// Update applies a partial update inside a transaction holding the row lock.
func (s *TenantStore) Update(ctx context.Context, subdomain string, patch models.TenantPatch) (*models.Tenant, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Error("failed to rollback transaction", "error", rbErr)
		}
	}()

	existing, err := s.getOne(ctx, tx, "subdomain = $1 FOR UPDATE", models.NormalizeKey(subdomain))
	if err != nil {
		return nil, fmt.Errorf("locking tenant: %w", err)
	}
	if existing == nil {
		return nil, nil
	}
	if !patch.Satisfied(existing) {
		return nil, store.ErrPreconditionFailed
	}

	patch.Apply(existing)
	existing.CustomDomain = models.NormalizeKey(existing.CustomDomain)
	existing.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE tenants SET
			name = $2,
			custom_domain = $3,
			custom_domain_verified = $4,
			custom_domain_verification_code = $5,
			custom_domain_issued_at = $6,
			updated_at = $7
		WHERE id = $1`

	_, err = tx.ExecContext(ctx, query,
		existing.ID,
		existing.Name,
		nullString(existing.CustomDomain),
		existing.CustomDomainVerified,
		nullString(existing.CustomDomainVerificationCode),
		nullTime(existing.CustomDomainIssuedAt),
		existing.UpdatedAt,
	)
	if err != nil {
		return nil, mapPostgresError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return existing, nil
}

// Delete removes a tenant by subdomain.
func (s *TenantStore) Delete(ctx context.Context, subdomain string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tenants WHERE subdomain = $1`, models.NormalizeKey(subdomain))
	if err != nil {
		return fmt.Errorf("deleting tenant: %w", mapPostgresError(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

var _ store.TenantStore = (*TenantStore)(nil)

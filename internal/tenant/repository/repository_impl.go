package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/washbay/internal/tenant/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, tenant domain.Tenant) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO tenants (id, name, slug, is_active, billing_email, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tenant.ID,
		tenant.Name,
		tenant.Slug,
		tenant.IsActive,
		tenant.BillingEmail,
		tenant.CreatedAt,
		tenant.UpdatedAt,
	).Error
}

func (r *repository) FindBySlug(ctx context.Context, slug string) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := r.db.WithContext(ctx).Where("slug = ?", slug).Take(&tenant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&tenant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (r *repository) SlugsWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	var slugs []string
	err := r.db.WithContext(ctx).Raw(
		`SELECT slug FROM tenants WHERE slug = ? OR slug LIKE ?`,
		prefix,
		prefix+"-%",
	).Scan(&slugs).Error
	return slugs, err
}

func (r *repository) SetActive(ctx context.Context, id snowflake.ID, active bool) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE tenants SET is_active = ?, updated_at = ? WHERE id = ?`,
		active,
		time.Now().UTC(),
		id,
	)
	return res.RowsAffected > 0, res.Error
}

func (r *repository) AddMember(ctx context.Context, member domain.Member) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO tenant_users (tenant_id, user_id, role, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		member.TenantID,
		member.UserID,
		member.Role,
		member.IsActive,
		member.CreatedAt,
		member.UpdatedAt,
	).Error
}

func (r *repository) FindMember(ctx context.Context, tenantID snowflake.ID, userID string) (*domain.Member, error) {
	var member domain.Member
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ?", tenantID, userID).
		Take(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *repository) ListMembers(ctx context.Context, tenantID snowflake.ID) ([]domain.Member, error) {
	var members []domain.Member
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC").
		Find(&members).Error
	return members, err
}

// UpdateMemberRole never touches the owner row.
func (r *repository) UpdateMemberRole(ctx context.Context, tenantID snowflake.ID, userID string, role domain.Role) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE tenant_users SET role = ?, updated_at = ?
		 WHERE tenant_id = ? AND user_id = ? AND role <> ?`,
		role,
		time.Now().UTC(),
		tenantID,
		userID,
		domain.RoleOwner,
	)
	return res.RowsAffected > 0, res.Error
}

// DeleteMember never touches the owner row.
func (r *repository) DeleteMember(ctx context.Context, tenantID snowflake.ID, userID string) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`DELETE FROM tenant_users WHERE tenant_id = ? AND user_id = ? AND role <> ?`,
		tenantID,
		userID,
		domain.RoleOwner,
	)
	return res.RowsAffected > 0, res.Error
}

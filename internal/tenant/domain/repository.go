package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, tenant Tenant) error
	FindBySlug(ctx context.Context, slug string) (*Tenant, error)
	FindByID(ctx context.Context, id snowflake.ID) (*Tenant, error)
	SlugsWithPrefix(ctx context.Context, prefix string) ([]string, error)
	SetActive(ctx context.Context, id snowflake.ID, active bool) (bool, error)
	AddMember(ctx context.Context, member Member) error
	FindMember(ctx context.Context, tenantID snowflake.ID, userID string) (*Member, error)
	ListMembers(ctx context.Context, tenantID snowflake.ID) ([]Member, error)
	UpdateMemberRole(ctx context.Context, tenantID snowflake.ID, userID string, role Role) (bool, error)
	DeleteMember(ctx context.Context, tenantID snowflake.ID, userID string) (bool, error)
}

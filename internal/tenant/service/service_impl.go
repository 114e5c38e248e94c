package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/washbay/internal/clock"
	"github.com/smallbiznis/washbay/internal/tenant/domain"
	"github.com/smallbiznis/washbay/pkg/db"
	"github.com/smallbiznis/washbay/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Hosts that must never resolve to a tenant.
var reservedSlugs = map[string]struct{}{
	"www":   {},
	"admin": {},
	"api":   {},
	"app":   {},
	"login": {},
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Repo  domain.Repository
	GenID *snowflake.Node
	Clock clock.Clock
	Log   *zap.Logger
}

type service struct {
	db    *gorm.DB
	repo  domain.Repository
	genID *snowflake.Node
	clock clock.Clock
	log   *zap.Logger
}

func NewService(p Params) domain.Service {
	return &service{
		db:    p.DB,
		repo:  p.Repo,
		genID: p.GenID,
		clock: p.Clock,
		log:   p.Log.Named("tenant.service"),
	}
}

func (s *service) Load(ctx context.Context, tenantSlug string) (tenantctx.TenantContext, *domain.Tenant, error) {
	tenantSlug = strings.ToLower(strings.TrimSpace(tenantSlug))
	if tenantSlug == "" {
		return tenantctx.TenantContext{}, nil, domain.ErrTenantNotSpecified
	}

	tenant, err := s.repo.FindBySlug(ctx, tenantSlug)
	if err != nil {
		return tenantctx.TenantContext{}, nil, err
	}
	if tenant == nil || !tenant.IsActive {
		return tenantctx.TenantContext{}, nil, domain.ErrTenantNotFound
	}
	return tenantctx.TenantContext{TenantID: tenant.ID, Slug: tenant.Slug}, tenant, nil
}

func (s *service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Tenant, error) {
	tenant, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, domain.ErrTenantNotFound
	}
	return tenant, nil
}

func (s *service) Create(ctx context.Context, req domain.CreateTenantRequest) (*domain.Tenant, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	ownerID := strings.TrimSpace(req.OwnerUserID)
	if ownerID == "" {
		return nil, domain.ErrInvalidUser
	}

	base := slug.Make(name)
	if base == "" || !slug.IsSlug(base) {
		return nil, domain.ErrInvalidName
	}
	if len(base) > 50 {
		base = strings.Trim(base[:50], "-")
	}

	taken, err := s.repo.SlugsWithPrefix(ctx, base)
	if err != nil {
		return nil, err
	}
	tenantSlug := nextFreeSlug(base, taken)

	now := s.clock.Now()
	tenant := domain.Tenant{
		ID:        s.genID.Generate(),
		Name:      name,
		Slug:      tenantSlug,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if email := strings.TrimSpace(req.BillingEmail); email != "" {
		tenant.BillingEmail = &email
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, tenant); err != nil {
			return err
		}
		return repo.AddMember(ctx, domain.Member{
			TenantID:  tenant.ID,
			UserID:    ownerID,
			Role:      domain.RoleOwner,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		})
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrSlugUnavailable
		}
		return nil, fmt.Errorf("create tenant: %w", err)
	}

	s.log.Info("tenant created", zap.String("tenant", tenant.Slug), zap.String("tenant_id", tenant.ID.String()))
	return &tenant, nil
}

// nextFreeSlug appends -2, -3, ... until the slug is neither taken nor reserved.
func nextFreeSlug(base string, taken []string) string {
	used := make(map[string]struct{}, len(taken))
	for _, t := range taken {
		used[t] = struct{}{}
	}
	free := func(candidate string) bool {
		if _, ok := used[candidate]; ok {
			return false
		}
		_, reserved := reservedSlugs[candidate]
		return !reserved
	}
	if free(base) {
		return base
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		if free(candidate) {
			return candidate
		}
	}
}

func (s *service) SetActive(ctx context.Context, id snowflake.ID, active bool) error {
	ok, err := s.repo.SetActive(ctx, id, active)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrTenantNotFound
	}
	return nil
}

func (s *service) GetMembership(ctx context.Context, tenantID snowflake.ID, userID string) (*domain.Member, error) {
	userID = strings.TrimSpace(userID)
	if tenantID == 0 || userID == "" {
		return nil, domain.ErrNotAMember
	}
	member, err := s.repo.FindMember(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if member == nil || !member.IsActive {
		return nil, domain.ErrNotAMember
	}
	return member, nil
}

func (s *service) AddMember(ctx context.Context, tenantID snowflake.ID, userID string, role domain.Role) (*domain.Member, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidUser
	}
	if _, ok := domain.ParseRole(string(role)); !ok {
		return nil, domain.ErrInvalidRole
	}
	if role == domain.RoleOwner {
		return nil, domain.ErrOwnerImmutable
	}

	now := s.clock.Now()
	member := domain.Member{
		TenantID:  tenantID,
		UserID:    userID,
		Role:      role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.AddMember(ctx, member); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrMemberExists
		}
		return nil, err
	}
	return &member, nil
}

func (s *service) ListMembers(ctx context.Context, tenantID snowflake.ID) ([]domain.Member, error) {
	return s.repo.ListMembers(ctx, tenantID)
}

func (s *service) UpdateMemberRole(ctx context.Context, tenantID snowflake.ID, userID string, role domain.Role) error {
	parsed, ok := domain.ParseRole(string(role))
	if !ok {
		return domain.ErrInvalidRole
	}
	if parsed == domain.RoleOwner {
		return domain.ErrOwnerImmutable
	}
	if err := s.guardNonOwner(ctx, tenantID, userID); err != nil {
		return err
	}
	updated, err := s.repo.UpdateMemberRole(ctx, tenantID, strings.TrimSpace(userID), parsed)
	if err != nil {
		return err
	}
	if !updated {
		return domain.ErrNotAMember
	}
	return nil
}

func (s *service) RemoveMember(ctx context.Context, tenantID snowflake.ID, userID string) error {
	if err := s.guardNonOwner(ctx, tenantID, userID); err != nil {
		return err
	}
	deleted, err := s.repo.DeleteMember(ctx, tenantID, strings.TrimSpace(userID))
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrNotAMember
	}
	return nil
}

func (s *service) guardNonOwner(ctx context.Context, tenantID snowflake.ID, userID string) error {
	member, err := s.repo.FindMember(ctx, tenantID, strings.TrimSpace(userID))
	if err != nil {
		return err
	}
	if member == nil {
		return domain.ErrNotAMember
	}
	if member.Role == domain.RoleOwner {
		return domain.ErrOwnerImmutable
	}
	return nil
}

package identity

import (
	"context"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	Roles() Roles
	Companies() Companies
	Subscriptions() Subscriptions
}

// Roles reads the authorization tiers users are bound to at creation.
type Roles interface {
	repository.Repository[*Role]
	FindByID(ctx context.Context, id string) (*Role, error)
	FindByType(ctx context.Context, roleType string) (*Role, error)
}

// Companies manages the tenant records invitations and subscriptions hang off.
type Companies interface {
	repository.Repository[*Company]
	FindByID(ctx context.Context, id uuid.UUID) (*Company, error)
	AttachSubscriptionTx(ctx context.Context, tx bun.IDB, companyID, subscriptionID uuid.UUID) error
}

// Subscriptions manages the billing plans attached to companies.
type Subscriptions interface {
	repository.Repository[*Subscription]
	CreateBetaTx(ctx context.Context, tx bun.IDB) (*Subscription, error)
}

type roles struct {
	repository.Repository[*Role]
	db *bun.DB
}

var _ Roles = (*roles)(nil)

// NewRolesRepository returns the Bun-backed Roles repository.
func NewRolesRepository(db *bun.DB) Roles {
	repo := repository.NewRepository[*Role](db, repository.ModelHandlers[*Role]{
		NewRecord: func() *Role { return &Role{} },
		GetID: func(r *Role) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *Role, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
	})

	return &roles{
		Repository: repo,
		db:         db,
	}
}

func (a *roles) FindByID(ctx context.Context, id string) (*Role, error) {
	uid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id})
	}

	record := &Role{}
	err = a.db.NewSelect().Model(record).
		Where("?TableAlias.id = ?", uid).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}

	return record, nil
}

func (a *roles) FindByType(ctx context.Context, roleType string) (*Role, error) {
	record := &Role{}
	err := a.db.NewSelect().Model(record).
		Where("?TableAlias.type = ?", roleType).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"type": roleType})
		}
		return nil, err
	}

	return record, nil
}

type companies struct {
	repository.Repository[*Company]
	db *bun.DB
}

var _ Companies = (*companies)(nil)

// NewCompaniesRepository returns the Bun-backed Companies repository.
func NewCompaniesRepository(db *bun.DB) Companies {
	repo := repository.NewRepository[*Company](db, repository.ModelHandlers[*Company]{
		NewRecord: func() *Company { return &Company{} },
		GetID: func(c *Company) uuid.UUID {
			if c == nil {
				return uuid.Nil
			}
			return c.ID
		},
		SetID: func(c *Company, id uuid.UUID) {
			if c != nil {
				c.ID = id
			}
		},
	})

	return &companies{
		Repository: repo,
		db:         db,
	}
}

func (a *companies) FindByID(ctx context.Context, id uuid.UUID) (*Company, error) {
	record := &Company{}
	err := a.db.NewSelect().Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}

	return record, nil
}

func (a *companies) AttachSubscriptionTx(ctx context.Context, tx bun.IDB, companyID, subscriptionID uuid.UUID) error {
	_, err := tx.NewRaw(`
		UPDATE "companies" AS "cmp"
		SET
			"subscription_id" = ?,
			"updated_at" = CURRENT_TIMESTAMP
		WHERE
			("cmp".id = ?);
	`, subscriptionID, companyID).Exec(ctx)

	return err
}

type subscriptions struct {
	repository.Repository[*Subscription]
	db *bun.DB
}

var _ Subscriptions = (*subscriptions)(nil)

// NewSubscriptionsRepository returns the Bun-backed Subscriptions repository.
func NewSubscriptionsRepository(db *bun.DB) Subscriptions {
	repo := repository.NewRepository[*Subscription](db, repository.ModelHandlers[*Subscription]{
		NewRecord: func() *Subscription { return &Subscription{} },
		GetID: func(s *Subscription) uuid.UUID {
			if s == nil {
				return uuid.Nil
			}
			return s.ID
		},
		SetID: func(s *Subscription, id uuid.UUID) {
			if s != nil {
				s.ID = id
			}
		},
	})

	return &subscriptions{
		Repository: repo,
		db:         db,
	}
}

func (a *subscriptions) CreateBetaTx(ctx context.Context, tx bun.IDB) (*Subscription, error) {
	record := &Subscription{
		ID:     uuid.New(),
		Type:   SubscriptionBeta,
		Active: true,
	}
	return a.Repository.CreateTx(ctx, tx, record)
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/bugloop/identity"
	"github.com/uptrace/bun"
)

type mngr struct {
	db            *bun.DB
	users         identity.Users
	roles         identity.Roles
	companies     identity.Companies
	subscriptions identity.Subscriptions
}

func NewRepositoryManager(db *bun.DB) identity.RepositoryManager {
	return &mngr{
		db:            db,
		users:         identity.NewUsersRepository(db),
		roles:         identity.NewRolesRepository(db),
		companies:     identity.NewCompaniesRepository(db),
		subscriptions: identity.NewSubscriptionsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.roles == nil {
		return errors.New("repository roles should be initialized")
	}

	if m.companies == nil {
		return errors.New("repository companies should be initialized")
	}

	if m.subscriptions == nil {
		return errors.New("repository subscriptions should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() identity.Users {
	return m.users
}

func (m mngr) Roles() identity.Roles {
	return m.roles
}

func (m mngr) Companies() identity.Companies {
	return m.companies
}

func (m mngr) Subscriptions() identity.Subscriptions {
	return m.subscriptions
}

package identity

import (
	"context"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// One-time secrets are consumed with conditional updates keyed on the secret
// itself. Either the whole row mutates and the secret clears, or nothing
// happens; two racing consumers cannot both win.
var (
	consumeResetTokenSQL = `UPDATE "users" AS "usr"
SET
	"password_hash" = ?,
	"reset_password_token" = NULL,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."reset_password_token" = ?
) RETURNING *;`

	consumeConfirmationTokenSQL = `UPDATE "users" AS "usr"
SET
	"confirmed" = TRUE,
	"confirmation_token" = NULL,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."confirmation_token" = ?
) RETURNING *;`

	consumeInvitationCodeSQL = `UPDATE "users" AS "usr"
SET
	"password_hash" = ?,
	"blocked" = FALSE,
	"invitation_code" = NULL,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."invitation_code" = ?
) RETURNING *;`
)

// UserStore is the identity-store surface the workflows depend on. The Bun
// repository implements it; tests substitute stubs.
type UserStore interface {
	FindByEmail(ctx context.Context, provider, email string) (*User, error)
	FindByUsername(ctx context.Context, provider, username string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	FindByResetToken(ctx context.Context, token string) (*User, error)
	FindByConfirmationToken(ctx context.Context, token string) (*User, error)
	FindByInvitationCode(ctx context.Context, code string) (*User, error)

	CreateUser(ctx context.Context, record *User) (*User, error)
	CreateUserTx(ctx context.Context, tx bun.IDB, record *User) (*User, error)
	UpdateUser(ctx context.Context, record *User) (*User, error)
	UpdateUserTx(ctx context.Context, tx bun.IDB, record *User) (*User, error)

	SetResetToken(ctx context.Context, id uuid.UUID, token string) error
	SetConfirmationToken(ctx context.Context, id uuid.UUID, token string) error

	ConsumeResetToken(ctx context.Context, token, passwordHash string) (*User, error)
	ConsumeConfirmationToken(ctx context.Context, token string) (*User, error)
	ConsumeInvitationCode(ctx context.Context, code, passwordHash string) (*User, error)
}

// Users is the full repository contract, combining the workflow surface with
// the generic repository operations embedding applications use directly.
type Users interface {
	repository.Repository[*User]
	UserStore
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

// NewUsersRepository returns the Bun-backed Users repository.
func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) FindByEmail(ctx context.Context, provider, email string) (*User, error) {
	return a.findOne(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		q = q.Where("?TableAlias.email = ?", strings.ToLower(email))
		if provider != "" {
			q = q.Where("?TableAlias.provider = ?", provider)
		}
		return q
	})
}

func (a *users) FindByUsername(ctx context.Context, provider, username string) (*User, error) {
	return a.findOne(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		q = q.Where("?TableAlias.username = ?", username)
		if provider != "" {
			q = q.Where("?TableAlias.provider = ?", provider)
		}
		return q
	})
}

func (a *users) FindByID(ctx context.Context, id string) (*User, error) {
	uid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id})
	}

	return a.findOne(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.id = ?", uid)
	})
}

func (a *users) FindByResetToken(ctx context.Context, token string) (*User, error) {
	return a.findOneBySecret(ctx, "reset_password_token", token)
}

func (a *users) FindByConfirmationToken(ctx context.Context, token string) (*User, error) {
	return a.findOneBySecret(ctx, "confirmation_token", token)
}

func (a *users) FindByInvitationCode(ctx context.Context, code string) (*User, error) {
	return a.findOneBySecret(ctx, "invitation_code", code)
}

func (a *users) CreateUser(ctx context.Context, record *User) (*User, error) {
	return a.CreateUserTx(ctx, a.db, record)
}

func (a *users) CreateUserTx(ctx context.Context, tx bun.IDB, record *User) (*User, error) {
	prepareUserDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record)
}

func (a *users) UpdateUser(ctx context.Context, record *User) (*User, error) {
	return a.UpdateUserTx(ctx, a.db, record)
}

func (a *users) UpdateUserTx(ctx context.Context, tx bun.IDB, record *User) (*User, error) {
	return a.Repository.UpdateTx(ctx, tx, record, repository.UpdateByID(record.ID.String()))
}

// Token writes go through sparse records: skipping zero values keeps the
// update from nulling every column the record leaves unset.
func (a *users) SetResetToken(ctx context.Context, id uuid.UUID, token string) error {
	record := &User{ID: id, ResetPasswordToken: token}
	_, err := a.Repository.UpdateTx(ctx, a.db, record,
		repository.UpdateByID(id.String()),
		repository.UpdateSkipZeroValues(),
	)
	return err
}

func (a *users) SetConfirmationToken(ctx context.Context, id uuid.UUID, token string) error {
	record := &User{ID: id, ConfirmationToken: token}
	_, err := a.Repository.UpdateTx(ctx, a.db, record,
		repository.UpdateByID(id.String()),
		repository.UpdateSkipZeroValues(),
	)
	return err
}

func (a *users) ConsumeResetToken(ctx context.Context, token, passwordHash string) (*User, error) {
	return a.consume(ctx, consumeResetTokenSQL, passwordHash, token)
}

func (a *users) ConsumeConfirmationToken(ctx context.Context, token string) (*User, error) {
	return a.consume(ctx, consumeConfirmationTokenSQL, token)
}

func (a *users) ConsumeInvitationCode(ctx context.Context, code, passwordHash string) (*User, error) {
	return a.consume(ctx, consumeInvitationCodeSQL, passwordHash, code)
}

func (a *users) consume(ctx context.Context, sql string, args ...any) (*User, error) {
	res, err := a.Repository.RawTx(ctx, a.db, sql, args...)
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound()
	}

	return res[0], nil
}

func (a *users) findOne(ctx context.Context, apply func(*bun.SelectQuery) *bun.SelectQuery) (*User, error) {
	record := &User{}
	q := a.db.NewSelect().Model(record)

	err := apply(q).Limit(1).Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}

	return record, nil
}

func (a *users) findOneBySecret(ctx context.Context, column, value string) (*User, error) {
	if strings.TrimSpace(value) == "" {
		return nil, repository.NewRecordNotFound()
	}

	return a.findOne(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias."+column+" = ?", value)
	})
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.Provider == "" {
		record.Provider = ProviderLocal
	}

	record.Email = strings.ToLower(record.Email)

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

// IsRecordNotFound re-exports the repository's not-found check so workflow
// callers need not import the repository package.
func IsRecordNotFound(err error) bool {
	return repository.IsRecordNotFound(err)
}

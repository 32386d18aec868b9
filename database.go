package identity

import (
	"context"
	"database/sql"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// OpenDB opens a SQLite-backed bun handle. Embedding applications that run
// on another engine construct their own *bun.DB and hand it to the
// repository constructors directly.
func OpenDB(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to open identity database")
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())
	db.RegisterModel(models()...)

	return db, nil
}

func models() []any {
	return []any{
		(*User)(nil),
		(*Role)(nil),
		(*Company)(nil),
		(*Subscription)(nil),
	}
}

// CreateSchema materializes the identity tables. Intended for tests and
// local bootstrap; production schemas are owned by migrations.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	for _, model := range models() {
		if _, err := db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to create identity schema")
		}
	}

	return nil
}

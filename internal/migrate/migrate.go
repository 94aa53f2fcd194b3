// Package migrate brings the schema up to date from the SQL files
// embedded in the migrations package.
package migrate

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/codely-app/snippetd/migrations"
)

// Up applies any migrations the database has not seen yet. It uses a
// short-lived database/sql connection; the pgx pool the repositories
// run on is opened separately, after migration succeeds.
func Up(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	return goose.UpContext(ctx, db, ".")
}

// Package pg connects to PostgreSQL with pgx/v5 and applies goose migrations.
//
// Connect opens a *pgxpool.Pool from Config, retrying until the database
// answers a ping. Migrate runs migrations from a directory on disk and MigrateFS
// from any fs.FS, which is how the notifications schema ships:
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	err = pg.MigrateFS(ctx, pool, notifications.Migrations, notifications.MigrationsDir,
//		cfg.MigrationsTable, log)
//
// Healthcheck returns a check closure, and IsNotFoundError, IsDuplicateKeyError
// and friends classify driver errors.
//
// Configuration is read from environment variables, see the tags on Config.
package pg

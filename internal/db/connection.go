package db

import (
	"context"
	"fmt"

	"github.com/uptrace/bun/extra/bundebug"

	"github.com/clearcut-studio/studio-server/internal/config"
	"github.com/clearcut-studio/studio-server/internal/db/drivers"
	"github.com/clearcut-studio/studio-server/internal/db/models"
)

func NewConnection(ctx context.Context, cfg *config.Config) (drivers.Driver, error) {
	driver, err := newDriver(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// Query logging stays off unless BUNDEBUG is set.
	driver.GetDB().AddQueryHook(bundebug.NewQueryHook(
		bundebug.WithEnabled(false),
		bundebug.FromEnv(),
	))

	return driver, nil
}

func newDriver(ctx context.Context, cfg *config.Config) (drivers.Driver, error) {
	switch cfg.DB.Driver {
	case "sqlite", "":
		return drivers.NewSQLiteDriver(ctx, cfg.DB.DSN)
	case "pg":
		return drivers.NewPGDriver(ctx, cfg.DB.DSN)
	}

	return nil, fmt.Errorf("invalid database driver: %s", cfg.DB.Driver)
}

// CreateSchema provisions missing tables. Safe to run on every start.
func CreateSchema(ctx context.Context, driver drivers.Driver) error {
	db := driver.GetDB()
	for _, model := range []any{
		(*models.ProviderKey)(nil),
		(*models.DiskToken)(nil),
		(*models.RecentFolder)(nil),
	} {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/taxid-cli/internal/config"
	"github.com/sells-group/taxid-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	dsn, err := cfg.StoreDSN()
	if err != nil {
		return nil, err
	}

	var st store.Store
	switch cfg.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(dsn, cfg.Store.Table)
	case "postgres", "":
		st, err = store.NewPostgres(ctx, dsn, cfg.Store.Table, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, &config.ConfigError{Key: "store.driver", Reason: "unsupported driver " + cfg.Store.Driver}
	}
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}

	if cfg.Store.AutoMigrate {
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "migrate store")
		}
	}

	zap.L().Debug("store ready",
		zap.String("driver", cfg.Store.Driver),
		zap.String("table", cfg.Store.Table),
	)
	return st, nil
}

package app

import (
	"context"
	"encoding/json"
	"os"

	"github.com/diegodella1/slackalerts/internal/service"
)

// Fetch runs a single fetch-and-evaluate pass and prints the result as JSON.
// Persistence and webhook delivery behave exactly as during a scheduled pass.
func (a *App) Fetch(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; running without persistence")
	}
	if closeStore != nil {
		defer closeStore()
	}

	rdb := a.openRedis(ctx)
	if rdb != nil {
		defer rdb.Close()
	}

	svc := service.New(a.Config, a.buildDeps(store, rdb, nil, nil), a.Logger)

	result, err := svc.RunPass(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

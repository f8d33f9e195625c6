package app

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/diegodella1/slackalerts/internal/feed"
	"github.com/diegodella1/slackalerts/internal/service"
)

// SimulateAlert 用给定的原始价格文本模拟一次完整的告警流程。
// 规则评估、事件落库与 webhook 投递均按真实路径执行。
func (a *App) SimulateAlert(ctx context.Context, rawText string) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	info, err := feed.ParsePriceText(rawText)
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	deps := a.buildDeps(store, nil, nil, nil)
	deps.Feed = &staticFetcher{
		snapshot: feed.Snapshot{
			Price:         info.Price,
			Change:        info.Change,
			ChangePercent: info.ChangePercent,
			Source:        "simulated",
			CapturedAt:    time.Now().UTC(),
		},
	}

	svc := service.New(a.Config, deps, a.Logger)

	result, err := svc.RunPass(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

type staticFetcher struct {
	snapshot feed.Snapshot
}

func (s *staticFetcher) Fetch(ctx context.Context) (feed.Snapshot, error) {
	return s.snapshot, nil
}

var _ feed.Fetcher = (*staticFetcher)(nil)

package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"github.com/diegodella1/slackalerts/internal/storage"
)

type sampleLister interface {
	ListRecentSamples(ctx context.Context, limit int) ([]storage.PriceSample, error)
}

type alertLister interface {
	ListRecentAlerts(ctx context.Context, limit int) ([]storage.AlertEvent, error)
}

// Show prints recent price samples, or recent alert events with --alerts.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show history")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if opts.Alerts {
		return a.showAlerts(ctx, store, opts.Limit)
	}
	return a.showSamples(ctx, store, opts.Limit)
}

func (a *App) showSamples(ctx context.Context, store sampleLister, limit int) error {
	samples, err := store.ListRecentSamples(ctx, limit)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		fmt.Fprintln(os.Stdout, "no samples found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tSymbol\tPrice\tChange\tChange%\tSource")

	for _, sample := range samples {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			sample.CapturedAt.UTC().Format(time.RFC3339),
			sample.Symbol,
			formatDecimal(sample.Price, 2),
			formatNullable(sample.Change, 2),
			formatNullable(sample.ChangePercent, 2),
			sample.Source,
		)
	}

	writer.Flush()
	return nil
}

func (a *App) showAlerts(ctx context.Context, store alertLister, limit int) error {
	alerts, err := store.ListRecentAlerts(ctx, limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tRule\tPrice\tSent\tMessage")

	for _, alert := range alerts {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%t\t%s\n",
			alert.TriggeredAt.UTC().Format(time.RFC3339),
			alert.RuleName,
			formatDecimal(alert.PriceAtTrigger, 2),
			alert.WebhookSent,
			sanitizeInline(alert.Message),
		)
	}

	writer.Flush()
	return nil
}

func formatNullable(d *decimal.Decimal, places int32) string {
	if d == nil {
		return "-"
	}
	return d.StringFixed(places)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

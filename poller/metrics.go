package poller

import (
	"context"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	tickCount         = stats.Int64("medreminder/ticks", "Evaluation passes run", stats.UnitDimensionless)
	notificationCount = stats.Int64("medreminder/notifications", "Notifications attempted", stats.UnitDimensionless)

	keyKind    = tag.MustNewKey("kind")
	keyOutcome = tag.MustNewKey("outcome")

	// Views over the poller's measures.  Register them with RegisterViews.
	Views = []*view.View{
		{
			Name:        "medreminder/ticks",
			Description: "Counter of evaluation passes, by outcome",
			TagKeys:     []tag.Key{keyOutcome},
			Measure:     tickCount,
			Aggregation: view.Count(),
		},
		{
			Name:        "medreminder/notifications",
			Description: "Counter of notifications, by kind and outcome",
			TagKeys:     []tag.Key{keyKind, keyOutcome},
			Measure:     notificationCount,
			Aggregation: view.Count(),
		},
	}
)

const (
	kindReminder = "reminder"
	kindLowStock = "low_stock"

	outcomeOK     = "ok"
	outcomeFailed = "failed"
)

func RegisterViews() error {
	return view.Register(Views...)
}

func recordTick(ctx context.Context, err error) {
	outcome := outcomeOK
	if err != nil {
		outcome = outcomeFailed
	}
	stats.RecordWithOptions(
		ctx,
		stats.WithTags(tag.Upsert(keyOutcome, outcome)),
		stats.WithMeasurements(tickCount.M(1)))
}

func recordNotification(ctx context.Context, kind string, err error) {
	outcome := outcomeOK
	if err != nil {
		outcome = outcomeFailed
	}
	stats.RecordWithOptions(
		ctx,
		stats.WithTags(tag.Upsert(keyKind, kind), tag.Upsert(keyOutcome, outcome)),
		stats.WithMeasurements(notificationCount.M(1)))
}

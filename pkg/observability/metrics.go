package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	publishedOnce    sync.Once
	publishedCounter metric.Int64Counter
)

// RecordPublished adds one published document to the otel counter
// harvester.documents.published.
func RecordPublished(ctx context.Context, destination, status string) {
	publishedOnce.Do(func() {
		c, err := otel.Meter(instrumentationName).Int64Counter(
			"harvester.documents.published",
			metric.WithDescription("Documents handed to destinations"),
			metric.WithUnit("{document}"),
		)
		if err != nil {
			otel.Handle(err)
			return
		}
		publishedCounter = c
	})
	if publishedCounter == nil {
		return
	}
	publishedCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("destination", destination),
		attribute.String("status", status),
	))
}

package adapter

import (
	"context"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/adforge/copybot/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// TelemetrySink exports copy-generation telemetry for offline analysis
type TelemetrySink interface {
	Insert(ctx context.Context, channelID string, id model.GenerationID, telemetry *model.Telemetry) error
}

type telemetryRow struct {
	GenerationID          string    `bigquery:"generation_id"`
	ChannelID             string    `bigquery:"channel_id"`
	Turns                 int       `bigquery:"turns"`
	DurationMS            int64     `bigquery:"duration_ms"`
	Rejections            int       `bigquery:"rejections"`
	ReviewPassed          bool      `bigquery:"review_passed"`
	ExemplarsFetchedFirst bool      `bigquery:"exemplars_fetched_first"`
	StopReason            string    `bigquery:"stop_reason"`
	QualityIssues         []string  `bigquery:"quality_issues"`
	RecordedAt            time.Time `bigquery:"recorded_at"`
}

type bigqueryClient struct {
	client  *bigquery.Client
	dataset string
	table   string
}

// NewBigQuery creates a telemetry sink writing to project.dataset.table
func NewBigQuery(ctx context.Context, projectID, dataset, table string) (TelemetrySink, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create BigQuery client", goerr.V("project", projectID))
	}

	return &bigqueryClient{
		client:  client,
		dataset: dataset,
		table:   table,
	}, nil
}

func (bq *bigqueryClient) Insert(ctx context.Context, channelID string, id model.GenerationID, t *model.Telemetry) error {
	row := &telemetryRow{
		GenerationID:          string(id),
		ChannelID:             channelID,
		Turns:                 t.Turns,
		DurationMS:            t.Duration.Milliseconds(),
		Rejections:            t.Rejections,
		ReviewPassed:          t.ReviewPassed,
		ExemplarsFetchedFirst: t.ExemplarsFetchedFirst,
		StopReason:            t.StopReason,
		QualityIssues:         t.QualityIssues,
		RecordedAt:            time.Now(),
	}

	inserter := bq.client.Dataset(bq.dataset).Table(bq.table).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return goerr.Wrap(err, "failed to insert telemetry",
			goerr.V("dataset", bq.dataset), goerr.V("table", bq.table), goerr.V("generation_id", id))
	}
	return nil
}

package adapter

import (
	"context"
	"errors"
	"net/http"

	"cloud.google.com/go/bigquery"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hearth/pkg/model"
	"google.golang.org/api/googleapi"
)

// BigQueryAudit streams retention decisions into a BigQuery table
type BigQueryAudit struct {
	client  *bigquery.Client
	dataset string
	table   string
}

// NewBigQueryAudit creates a new BigQuery audit sink
func NewBigQueryAudit(ctx context.Context, projectID, datasetID, tableID string) (*BigQueryAudit, error) {
	if datasetID == "" || tableID == "" {
		return nil, goerr.New("dataset and table are required",
			goerr.V("dataset", datasetID),
			goerr.V("table", tableID))
	}

	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create BigQuery client")
	}

	return &BigQueryAudit{
		client:  client,
		dataset: datasetID,
		table:   tableID,
	}, nil
}

// Init creates the audit table if it does not exist
func (x *BigQueryAudit) Init(ctx context.Context) error {
	schema, err := bigquery.InferSchema(model.RetentionAudit{})
	if err != nil {
		return goerr.Wrap(err, "failed to infer audit schema")
	}

	md := &bigquery.TableMetadata{
		Schema: schema,
		TimePartitioning: &bigquery.TimePartitioning{
			Field: "evaluated_at",
		},
	}

	table := x.client.Dataset(x.dataset).Table(x.table)
	if err := table.Create(ctx, md); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
			return nil
		}
		return goerr.Wrap(err, "failed to create audit table",
			goerr.V("dataset", x.dataset),
			goerr.V("table", x.table))
	}

	return nil
}

func (x *BigQueryAudit) Put(ctx context.Context, rows ...*model.RetentionAudit) error {
	if len(rows) == 0 {
		return nil
	}

	inserter := x.client.Dataset(x.dataset).Table(x.table).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return goerr.Wrap(err, "failed to insert audit rows",
			goerr.V("dataset", x.dataset),
			goerr.V("table", x.table),
			goerr.V("count", len(rows)))
	}

	return nil
}

func (x *BigQueryAudit) Close() error {
	return x.client.Close()
}

// pkg/loader/bigquery.go
package loader

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/converter"
	"github.com/David-Botos/retail-ingress/pkg/model"
)

// BigQueryWriter loads tables into a BigQuery dataset with CSV load jobs
type BigQueryWriter struct {
	client    *bigquery.Client
	dataset   string
	converter *converter.TypeConverter
	logger    *zap.Logger
}

// NewBigQueryWriter opens a client for project
func NewBigQueryWriter(ctx context.Context, project, dataset string, logger *zap.Logger) (*BigQueryWriter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("failed to create bigquery client: %w", err)
	}
	return &BigQueryWriter{
		client:    client,
		dataset:   dataset,
		converter: converter.NewTypeConverter(logger),
		logger:    logger.Named("bigquery_writer"),
	}, nil
}

// Close releases the client
func (w *BigQueryWriter) Close() error {
	return w.client.Close()
}

// Write runs a load job into dataset.destination
func (w *BigQueryWriter) Write(ctx context.Context, table *model.Table, destination string, policy Policy) (int64, error) {
	if err := table.Validate(); err != nil {
		return 0, err
	}
	start := time.Now()

	disposition, err := WriteDisposition(policy)
	if err != nil {
		return 0, err
	}

	ref := w.client.Dataset(w.dataset).Table(destination)
	if policy == PolicyFail {
		if _, err := ref.Metadata(ctx); err == nil {
			return 0, fmt.Errorf("%s.%s: %w", w.dataset, destination, ErrTableExists)
		}
	}

	schema := w.converter.BigQuerySchema(table)
	data, err := EncodeBigQueryCSV(table, schema)
	if err != nil {
		return 0, err
	}

	src := bigquery.NewReaderSource(bytes.NewReader(data))
	src.SourceFormat = bigquery.CSV
	src.SkipLeadingRows = 1
	src.Schema = schema

	loader := ref.LoaderFrom(src)
	loader.CreateDisposition = bigquery.CreateIfNeeded
	loader.WriteDisposition = disposition

	job, err := loader.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to start load job for %s: %w", destination, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed waiting for load job %s: %w", job.ID(), err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("load job %s failed: %w", job.ID(), err)
	}

	w.logger.Info("Loaded table into BigQuery",
		zap.String("dataset", w.dataset),
		zap.String("table", destination),
		zap.String("job", job.ID()),
		zap.Int("rows", table.Len()),
		zap.Duration("duration", time.Since(start)))
	return int64(table.Len()), nil
}

// WriteDisposition maps a load policy to a BigQuery write disposition
func WriteDisposition(policy Policy) (bigquery.TableWriteDisposition, error) {
	switch policy {
	case PolicyFail:
		return bigquery.WriteEmpty, nil
	case PolicyReplace:
		return bigquery.WriteTruncate, nil
	case PolicyAppend:
		return bigquery.WriteAppend, nil
	}
	return "", fmt.Errorf("unknown load policy %q", policy)
}

// EncodeBigQueryCSV renders table as CSV with a header row
func EncodeBigQueryCSV(table *model.Table, schema bigquery.Schema) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)

	if err := cw.Write(table.Columns); err != nil {
		return nil, err
	}
	record := make([]string, len(table.Columns))
	for _, row := range table.Rows {
		for i, v := range row {
			record[i] = converter.FormatBigQueryCSV(v, schema[i].Type)
		}
		if err := cw.Write(record); err != nil {
			return nil, err
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("failed to encode csv: %w", err)
	}
	return buf.Bytes(), nil
}

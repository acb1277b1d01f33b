// pkg/extract/object.go
package extract

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/model"
)

// Opener returns a reader for an object location
type Opener interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// S3API is the part of the S3 client used for reads
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Opener reads s3://bucket/key objects
type S3Opener struct {
	Client S3API
}

// NewS3Opener loads the default AWS credential chain for region
func NewS3Opener(ctx context.Context, region string) (*S3Opener, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &S3Opener{Client: s3.NewFromConfig(cfg)}, nil
}

// Open fetches the object body
func (o *S3Opener) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	bucket, key, err := splitBucketURI(location, "s3")
	if err != nil {
		return nil, err
	}
	out, err := o.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get s3 object %s: %w", location, err)
	}
	return out.Body, nil
}

// GCSOpener reads gs://bucket/object; the client is created on first use
type GCSOpener struct {
	mu     sync.Mutex
	client *storage.Client
}

// Open fetches the object body
func (o *GCSOpener) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	bucket, object, err := splitBucketURI(location, "gs")
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	if o.client == nil {
		client, err := storage.NewClient(ctx)
		if err != nil {
			o.mu.Unlock()
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		o.client = client
	}
	client := o.client
	o.mu.Unlock()

	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read gcs object %s: %w", location, err)
	}
	return r, nil
}

// Close releases the storage client if one was created
func (o *GCSOpener) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.client == nil {
		return nil
	}
	err := o.client.Close()
	o.client = nil
	return err
}

// HTTPOpener reads http(s) URLs
type HTTPOpener struct {
	Client *http.Client
}

// Open issues a GET and returns the body on 200
func (o *HTTPOpener) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	client := o.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", location, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to get %s: %w: %d", location, ErrUnexpectedStatusCode, resp.StatusCode)
	}
	return resp.Body, nil
}

// FileOpener reads local paths and file:// URIs
type FileOpener struct{}

// Open opens the file
func (FileOpener) Open(_ context.Context, location string) (io.ReadCloser, error) {
	return os.Open(strings.TrimPrefix(location, "file://"))
}

// ObjectExtractor reads csv, json and xlsx objects from storage
type ObjectExtractor struct {
	openers map[string]Opener
	logger  *zap.Logger
}

// NewObjectExtractor creates an extractor that reads local files and http(s) URLs.
// Register S3 and GCS openers with WithOpener.
func NewObjectExtractor(logger *zap.Logger) *ObjectExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	httpOpener := &HTTPOpener{}
	return &ObjectExtractor{
		openers: map[string]Opener{
			"":      FileOpener{},
			"file":  FileOpener{},
			"http":  httpOpener,
			"https": httpOpener,
		},
		logger: logger.Named("object"),
	}
}

// WithOpener registers an opener for a URI scheme
func (e *ObjectExtractor) WithOpener(scheme string, o Opener) *ObjectExtractor {
	e.openers[scheme] = o
	return e
}

// Extract reads src.Location. Option "format" overrides the extension; "sheet" picks an xlsx sheet.
func (e *ObjectExtractor) Extract(ctx context.Context, src Source) (*model.Table, error) {
	scheme := uriScheme(src.Location)
	opener, ok := e.openers[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: no opener for scheme %q", ErrUnsupportedSource, scheme)
	}

	format := strings.ToLower(src.Option("format", objectFormat(src.Location)))
	name := src.Option("table", objectName(src.Location))

	r, err := opener.Open(ctx, src.Location)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrInterrupted, ctx.Err())
		}
		return nil, err
	}
	defer r.Close()

	e.logger.Debug("Reading object",
		zap.String("location", src.Location),
		zap.String("format", format))

	switch format {
	case "csv":
		return ReadCSV(name, r)
	case "json":
		return ReadJSON(name, r)
	case "xlsx":
		return ReadXLSX(name, r, src.Option("sheet", ""))
	default:
		return nil, fmt.Errorf("%w: object format %q", ErrUnsupportedSource, format)
	}
}

// ReadCSV parses a CSV with a header row. An unnamed first column is the pandas index.
func ReadCSV(name string, r io.Reader) (*model.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("csv %s is empty", name)
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	table := model.NewTable(name, headerNames(header)...)
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row %d: %w", table.Len()+1, err)
		}
		table.Rows = append(table.Rows, stringRow(record, len(table.Columns)))
	}
	return table, nil
}

// ReadJSON parses an array of records or a column-oriented object
func ReadJSON(name string, r io.Reader) (*model.Table, error) {
	v, err := decodeValue(newDecoder(r))
	if err != nil {
		return nil, fmt.Errorf("failed to decode json: %w", err)
	}

	switch val := v.(type) {
	case []any:
		records := make([]*orderedObject, 0, len(val))
		for i, item := range val {
			obj, ok := item.(*orderedObject)
			if !ok {
				return nil, fmt.Errorf("json record %d is not an object", i)
			}
			records = append(records, obj)
		}
		return recordsTable(name, records), nil
	case *orderedObject:
		return columnsTable(name, val)
	default:
		return nil, fmt.Errorf("json document must be an array or an object, got %T", v)
	}
}

// ReadXLSX reads sheet, or the first sheet when sheet is empty
func ReadXLSX(name string, r io.Reader, sheet string) (*model.Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheet)
	}

	table := model.NewTable(name, headerNames(rows[0])...)
	for _, record := range rows[1:] {
		table.Rows = append(table.Rows, stringRow(record, len(table.Columns)))
	}
	return table, nil
}

func headerNames(header []string) []string {
	names := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		switch {
		case h == "" && i == 0:
			h = "index"
		case h == "":
			h = fmt.Sprintf("column_%d", i)
		}
		names[i] = h
	}
	return names
}

// stringRow pads or truncates record to width
func stringRow(record []string, width int) []any {
	row := make([]any, width)
	for i := 0; i < width && i < len(record); i++ {
		row[i] = record[i]
	}
	return row
}

func splitBucketURI(location, scheme string) (string, string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", fmt.Errorf("invalid %s uri %q: %w", scheme, location, err)
	}
	if u.Scheme != scheme || u.Host == "" {
		return "", "", fmt.Errorf("invalid %s uri %q", scheme, location)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("%s uri %q has no object key", scheme, location)
	}
	return u.Host, key, nil
}

func uriScheme(location string) string {
	i := strings.Index(location, "://")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(location[:i])
}

// objectPath strips scheme, host and query string
func objectPath(location string) string {
	if u, err := url.Parse(location); err == nil && u.Scheme != "" {
		return u.Path
	}
	return location
}

func objectFormat(location string) string {
	return strings.TrimPrefix(path.Ext(objectPath(location)), ".")
}

func objectName(location string) string {
	base := path.Base(objectPath(location))
	return strings.TrimSuffix(base, path.Ext(base))
}

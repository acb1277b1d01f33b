// pkg/extract/api.go
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/model"
)

const (
	// DefaultAPIAttempts is the number of tries per store page
	DefaultAPIAttempts = 3
	// DefaultAPIBackoff is the fixed pause between tries
	DefaultAPIBackoff = time.Second
)

// ErrUnexpectedStatusCode is returned for non-200 API responses
var ErrUnexpectedStatusCode = errors.New("unexpected status code")

// StoreAPIExtractor pages through the store details API
type StoreAPIExtractor struct {
	client   *http.Client
	baseURL  string
	apiKey   string
	attempts int
	backoff  time.Duration
	logger   *zap.Logger
}

// StoreAPIOption customizes a StoreAPIExtractor
type StoreAPIOption func(*StoreAPIExtractor)

// WithRetry sets attempts per page and the pause between them
func WithRetry(attempts int, backoff time.Duration) StoreAPIOption {
	return func(e *StoreAPIExtractor) {
		if attempts > 0 {
			e.attempts = attempts
		}
		if backoff >= 0 {
			e.backoff = backoff
		}
	}
}

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(c *http.Client) StoreAPIOption {
	return func(e *StoreAPIExtractor) { e.client = c }
}

// NewStoreAPIExtractor creates an extractor for baseURL authenticated with apiKey
func NewStoreAPIExtractor(baseURL, apiKey string, logger *zap.Logger, opts ...StoreAPIOption) *StoreAPIExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &StoreAPIExtractor{
		client:   &http.Client{Timeout: 30 * time.Second},
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		attempts: DefaultAPIAttempts,
		backoff:  DefaultAPIBackoff,
		logger:   logger.Named("store_api"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NumberOfStores asks the API how many store pages exist
func (e *StoreAPIExtractor) NumberOfStores(ctx context.Context, base string) (int, error) {
	obj, err := e.fetch(ctx, base+"/number_stores")
	if err != nil {
		return 0, err
	}
	n, ok := obj.values["number_stores"].(int64)
	if !ok {
		return 0, fmt.Errorf("number_stores response has no integer number_stores field")
	}
	return int(n), nil
}

// Extract retrieves every store page. Pages that keep failing are abandoned.
// If ctx is cancelled the stores fetched so far are returned with ErrInterrupted.
func (e *StoreAPIExtractor) Extract(ctx context.Context, src Source) (*model.Table, error) {
	base := e.baseURL
	if src.Location != "" {
		base = strings.TrimRight(src.Location, "/")
	}
	name := src.Option("table", "store_details")

	n, err := e.NumberOfStores(ctx, base)
	if err != nil {
		if ctx.Err() != nil {
			return model.NewTable(name), fmt.Errorf("%w: %v", ErrInterrupted, ctx.Err())
		}
		return nil, fmt.Errorf("failed to get number of stores: %w", err)
	}
	e.logger.Info("Fetching stores", zap.Int("number_stores", n))

	var (
		records   []*orderedObject
		abandoned int
	)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			return e.partial(name, records, i, n, ctx.Err())
		}

		obj, err := e.fetch(ctx, fmt.Sprintf("%s/store_details/%d", base, i))
		if err != nil {
			if ctx.Err() != nil {
				return e.partial(name, records, i, n, ctx.Err())
			}
			abandoned++
			e.logger.Warn("Abandoning store page",
				zap.Int("store", i),
				zap.Int("attempts", e.attempts),
				zap.Error(err))
			continue
		}
		records = append(records, obj)
	}

	if abandoned > 0 {
		e.logger.Warn("Some store pages were abandoned",
			zap.Int("abandoned", abandoned),
			zap.Int("fetched", len(records)))
	}
	return recordsTable(name, records), nil
}

func (e *StoreAPIExtractor) partial(name string, records []*orderedObject, next, total int, cause error) (*model.Table, error) {
	e.logger.Warn("Store extraction interrupted",
		zap.Int("fetched", len(records)),
		zap.Int("next_store", next),
		zap.Int("number_stores", total))
	return recordsTable(name, records), fmt.Errorf("%w after %d of %d stores: %v", ErrInterrupted, len(records), total, cause)
}

// fetch GETs url with the attempt loop and decodes a JSON object
func (e *StoreAPIExtractor) fetch(ctx context.Context, url string) (*orderedObject, error) {
	var lastErr error

	for attempt := 1; attempt <= e.attempts; attempt++ {
		obj, retryable, err := e.fetchOnce(ctx, url)
		if err == nil {
			return obj, nil
		}
		lastErr = err

		if ctx.Err() != nil || !retryable || attempt == e.attempts {
			break
		}

		e.logger.Debug("Retrying request",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Error(err))

		timer := time.NewTimer(e.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, lastErr
}

func (e *StoreAPIExtractor) fetchOnce(ctx context.Context, url string) (*orderedObject, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("x-api-key", e.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, isRetryableStatus(resp.StatusCode), fmt.Errorf("%w: %d", ErrUnexpectedStatusCode, resp.StatusCode)
	}

	v, err := decodeValue(newDecoder(resp.Body))
	if err != nil {
		return nil, true, fmt.Errorf("failed to decode response: %w", err)
	}
	obj, ok := v.(*orderedObject)
	if !ok {
		return nil, false, errors.New("response is not a JSON object")
	}
	return obj, false, nil
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		http.StatusTooManyRequests,
		http.StatusRequestTimeout:
		return true
	}
	return false
}

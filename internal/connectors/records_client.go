package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/xela07ax/perfdash/internal/domain"
)

const maxErrorBody = 512

// RecordsClient клиент удаленного эндпоинта записей.
type RecordsClient struct {
	endpoint string
	http     *http.Client
}

// NewRecordsClient клиент для baseURL+path. Нулевой timeout ограничивает запрос только контекстом.
func NewRecordsClient(baseURL, path string, timeout time.Duration) *RecordsClient {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return &RecordsClient{
		endpoint: base + path,
		http:     &http.Client{Timeout: timeout},
	}
}

// Endpoint адрес запросов FetchRecords без параметров.
func (c *RecordsClient) Endpoint() string {
	return c.endpoint
}

// FetchRecords GET <endpoint>?label=&from=&to=, from/to в миллисекундах UTC.
func (c *RecordsClient) FetchRecords(ctx context.Context, q domain.RecordQuery) ([]domain.Record, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("records endpoint %q: %w", c.endpoint, err)
	}
	params := u.Query()
	if q.Label != "" {
		params.Set("label", q.Label)
	}
	if q.From != nil {
		params.Set("from", strconv.FormatInt(q.From.UTC().UnixMilli(), 10))
	}
	if q.To != nil {
		params.Set("to", strconv.FormatInt(q.To.UTC().UnixMilli(), 10))
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch records: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{StatusCode: resp.StatusCode, URL: c.endpoint, Body: strings.TrimSpace(string(body))}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
			if after, ok := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); ok {
				return nil, &ThrottleError{RetryAfter: after, Cause: statusErr}
			}
		}
		return nil, statusErr
	}

	var records []domain.Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return records, nil
}

func parseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

package connectors

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xela07ax/perfdash/internal/domain"
)

const payload = `[
  {"timestamp":"2018-01-15T13:05:00.000Z","summary":"https://wpt.example/result/1/",
   "firstView":{"ttfb":210,"render":900,"speedIndex":1400,"domElements":812,"fullyLoadedTime":4100,
   "waterfallView":"https://wpt.example/w/1.png","connectionView":"https://wpt.example/c/1.png"}},
  {"timestamp":"2018-01-16T13:05:00.000Z","summary":"https://wpt.example/result/2/",
   "firstView":{"ttfb":190,"speedIndex":1300}}
]`

func TestRecordsClient_FetchRecords(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/charts" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	from := time.Date(2018, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2018, time.February, 1, 0, 0, 0, 0, time.UTC)
	c := NewRecordsClient(srv.URL+"/", "charts", 0)

	records, err := c.FetchRecords(context.Background(), domain.RecordQuery{Label: "/search/sales/nyc/", From: &from, To: &to})
	if err != nil {
		t.Fatalf("FetchRecords: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	for _, want := range []string{"label=%2Fsearch%2Fsales%2Fnyc%2F", "from=1514764800000", "to=1517443200000"} {
		if !strings.Contains(gotQuery, want) {
			t.Fatalf("query %q missing %q", gotQuery, want)
		}
	}

	first := records[0]
	if !first.Timestamp.Equal(time.Date(2018, time.January, 15, 13, 5, 0, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp %v", first.Timestamp)
	}
	if first.FirstView.TTFB == nil || *first.FirstView.TTFB != 210 {
		t.Fatalf("unexpected ttfb %v", first.FirstView.TTFB)
	}
	if records[1].FirstView.Render != nil {
		t.Fatalf("missing render must decode as nil")
	}
}

func TestRecordsClient_OmitsUnsetParams(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	records, err := NewRecordsClient(srv.URL, "/charts", time.Second).FetchRecords(context.Background(), domain.RecordQuery{})
	if err != nil {
		t.Fatalf("FetchRecords: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
	if gotQuery != "" {
		t.Fatalf("expected empty query, got %q", gotQuery)
	}
}

func TestRecordsClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewRecordsClient(srv.URL, "/charts", 0).FetchRecords(context.Background(), domain.RecordQuery{})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusInternalServerError || statusErr.Body != "boom" {
		t.Fatalf("unexpected status error %+v", statusErr)
	}
}

func TestRecordsClient_Throttled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewRecordsClient(srv.URL, "/charts", 0).FetchRecords(context.Background(), domain.RecordQuery{})
	var throttle *ThrottleError
	if !errors.As(err, &throttle) {
		t.Fatalf("expected ThrottleError, got %v", err)
	}
	if throttle.RetryAfter != 3*time.Second {
		t.Fatalf("expected 3s, got %v", throttle.RetryAfter)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected wrapped StatusError")
	}
}

func TestRecordsClient_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"an array"}`))
	}))
	defer srv.Close()

	_, err := NewRecordsClient(srv.URL, "/charts", 0).FetchRecords(context.Background(), domain.RecordQuery{})
	if err == nil || !strings.Contains(err.Error(), "decode records") {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2018, time.January, 1, 0, 0, 0, 0, time.UTC)
	if d, ok := parseRetryAfter("", now); ok || d != 0 {
		t.Fatalf("empty header must not parse")
	}
	if d, ok := parseRetryAfter(now.Add(10*time.Second).Format(http.TimeFormat), now); !ok || d != 10*time.Second {
		t.Fatalf("expected 10s from http date, got %v %v", d, ok)
	}
	if _, ok := parseRetryAfter("soon", now); ok {
		t.Fatalf("garbage must not parse")
	}
}

func TestStaticSource(t *testing.T) {
	base := time.Date(2018, time.January, 1, 0, 0, 0, 0, time.UTC)
	var records []domain.Record
	for i := 0; i < 10; i++ {
		records = append(records, domain.Record{Timestamp: base.Add(time.Duration(i) * domain.Day)})
	}
	src := NewStaticSource(map[string][]domain.Record{"": records})

	from := base.Add(2 * domain.Day)
	to := base.Add(5 * domain.Day) // уже расширенный конец
	got, err := src.FetchRecords(context.Background(), domain.RecordQuery{Label: "any", From: &from, To: &to})
	if err != nil {
		t.Fatalf("FetchRecords: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected days 2..5, got %d records", len(got))
	}
	if calls := src.Calls(); len(calls) != 1 || calls[0].Label != "any" {
		t.Fatalf("unexpected calls %+v", calls)
	}

	boom := errors.New("boom")
	src.FailWith(boom)
	if _, err := src.FetchRecords(context.Background(), domain.RecordQuery{}); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
}

func TestRecordsClient_Endpoint(t *testing.T) {
	tests := []struct {
		base, path, want string
	}{
		{"http://stats.local/", "charts", "http://stats.local/charts"},
		{" http://stats.local ", "/charts", "http://stats.local/charts"},
		{"http://stats.local", "", "http://stats.local"},
	}
	for _, tt := range tests {
		if got := NewRecordsClient(tt.base, tt.path, 0).Endpoint(); got != tt.want {
			t.Errorf("Endpoint(%q, %q) = %q, want %q", tt.base, tt.path, got, tt.want)
		}
	}
}

package geofeatures

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mohammed-shakir/geofeature-cache/internal/core/httpclient"
	"github.com/mohammed-shakir/geofeature-cache/internal/core/model"
)

type upstreamRecorder struct {
	mu         sync.Mutex
	calls      int64
	lastPath   string
	lastQuery  url.Values
	lastAccept string
	status     int
	body       string
}

func (u *upstreamRecorder) handler(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&u.calls, 1)
	u.mu.Lock()
	u.lastPath = r.URL.Path
	u.lastQuery = r.URL.Query()
	u.lastAccept = r.Header.Get("Accept")
	status, body := u.status, u.body
	u.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func newClient(t *testing.T, up *upstreamRecorder, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(up.handler))
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := New(logger, httpclient.NewOutbound(), srv.URL+"/", opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

const samplePayload = `{
  "features": [
    {"id": 17, "type": "thrust_fault", "coordinates": [[-122.41, 37.77], [-122.40, 37.78]],
     "color": "#d62728", "weight": 2.5, "properties": {"name": "Hayward"}, "dip": 45}
  ],
  "formations": [
    {"name": "Franciscan Complex", "age": "Jurassic-Cretaceous", "lithology": "greywacke",
     "environment": "subduction", "source": "macrostrat", "unit_id": 1234}
  ],
  "sources": {"macrostrat": 1, "usgs": 3}
}`

func TestFetchFeatures_BuildsQueryAndDecodes(t *testing.T) {
	up := &upstreamRecorder{body: samplePayload}
	c := newClient(t, up)

	b := model.ViewportBounds{MinLat: 37.123456, MinLng: -122.5, MaxLat: 37.9, MaxLng: -122.00004}
	fs, err := c.FetchFeatures(context.Background(), b)
	if err != nil {
		t.Fatalf("FetchFeatures: %v", err)
	}

	up.mu.Lock()
	path, q, accept := up.lastPath, up.lastQuery, up.lastAccept
	up.mu.Unlock()
	if path != Path {
		t.Fatalf("path=%q want %q", path, Path)
	}
	want := map[string]string{"minLat": "37.1235", "minLng": "-122.5000", "maxLat": "37.9000", "maxLng": "-122.0000"}
	for k, v := range want {
		if q.Get(k) != v {
			t.Fatalf("query %s=%q want %q (all=%v)", k, q.Get(k), v, q)
		}
	}
	if accept != "application/json" {
		t.Fatalf("accept=%q", accept)
	}

	if len(fs.Features) != 1 || len(fs.Formations) != 1 {
		t.Fatalf("decoded %d features, %d formations", len(fs.Features), len(fs.Formations))
	}
	f := fs.Features[0]
	pts, err := f.Points()
	if err != nil || f.ID != "17" || f.Type != model.GeometryThrustFault || len(pts) != 2 {
		t.Fatalf("feature=%+v points=%v err=%v", f, pts, err)
	}
	if string(f.Extra["dip"]) != "45" {
		t.Fatalf("extra members not preserved: %+v", f.Extra)
	}
	if fs.Formations[0].Source != "macrostrat" || string(fs.Formations[0].Extra["unit_id"]) != "1234" {
		t.Fatalf("formation=%+v", fs.Formations[0])
	}
}

func TestFetchFeatures_ReturnsFeaturesVerbatim(t *testing.T) {
	features := []string{
		`{"id":42,"type":"fault","coordinates":[[1,2]]}`,
		`{"id":"z","type":"fault","coordinates":[[1,2,350]]}`,
		`{"id":"e","type":"contact","coordinates":[[0,0],[1,1]],"color":"","weight":0,"properties":{}}`,
		`{"id":"o","type":"syncline","coordinates":[{"latitude":1,"longitude":2}]}`,
	}
	body := `{"features":[` + strings.Join(features, ",") + `],"formations":[{"name":"Salinian","age":""}]}`
	up := &upstreamRecorder{body: body}
	c := newClient(t, up)

	fs, err := c.FetchFeatures(context.Background(), model.ViewportBounds{MaxLat: 1, MaxLng: 1})
	if err != nil {
		t.Fatalf("FetchFeatures: %v", err)
	}
	if len(fs.Features) != len(features) {
		t.Fatalf("decoded %d features", len(fs.Features))
	}
	for i, want := range features {
		got, err := json.Marshal(fs.Features[i])
		if err != nil {
			t.Fatalf("marshal feature %d: %v", i, err)
		}
		if string(got) != want {
			t.Fatalf("feature %d: got %s want %s", i, got, want)
		}
	}
	got, err := json.Marshal(fs.Formations[0])
	if err != nil || string(got) != `{"name":"Salinian","age":""}` {
		t.Fatalf("formation=%s err=%v", got, err)
	}
}

func TestFetchFeatures_MissingFieldsDefaultEmpty(t *testing.T) {
	up := &upstreamRecorder{body: `{}`}
	c := newClient(t, up)

	fs, err := c.FetchFeatures(context.Background(), model.ViewportBounds{MaxLat: 1, MaxLng: 1})
	if err != nil {
		t.Fatalf("FetchFeatures: %v", err)
	}
	if fs.Features == nil || fs.Formations == nil {
		t.Fatalf("missing fields must normalize to empty, got %+v", fs)
	}
}

func TestFetchFeatures_Failures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		isErr  error
	}{
		{"server error", http.StatusInternalServerError, `boom`, ErrUpstreamStatus},
		{"too many requests", http.StatusTooManyRequests, `slow down`, ErrUpstreamStatus},
		{"malformed json", http.StatusOK, `{"features": [`, nil},
		{"wrong shape", http.StatusOK, `{"features": {"a": 1}}`, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			up := &upstreamRecorder{status: tc.status, body: tc.body}
			c := newClient(t, up)
			_, err := c.FetchFeatures(context.Background(), model.ViewportBounds{MaxLat: 1, MaxLng: 1})
			if err == nil {
				t.Fatalf("expected error")
			}
			if tc.isErr != nil && !errors.Is(err, tc.isErr) {
				t.Fatalf("err=%v want %v", err, tc.isErr)
			}
		})
	}
}

func TestFetchFeatures_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := New(nil, httpclient.NewOutbound(), base)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.FetchFeatures(context.Background(), model.ViewportBounds{MaxLat: 1, MaxLng: 1}); err == nil {
		t.Fatalf("expected transport error")
	}
}

type stubLimiter struct {
	allow bool
	err   error
}

func (s stubLimiter) Allow(context.Context) (bool, error) { return s.allow, s.err }

func TestFetchFeatures_RateLimited(t *testing.T) {
	up := &upstreamRecorder{body: samplePayload}
	c := newClient(t, up, WithLimiter(stubLimiter{allow: false}))

	_, err := c.FetchFeatures(context.Background(), model.ViewportBounds{MaxLat: 1, MaxLng: 1})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err=%v want ErrRateLimited", err)
	}
	if n := atomic.LoadInt64(&up.calls); n != 0 {
		t.Fatalf("rate limited call reached upstream %d times", n)
	}
}

func TestFetchFeatures_LimiterErrorFailsOpen(t *testing.T) {
	up := &upstreamRecorder{body: samplePayload}
	c := newClient(t, up, WithLimiter(stubLimiter{allow: true, err: errors.New("redis down")}))

	if _, err := c.FetchFeatures(context.Background(), model.ViewportBounds{MaxLat: 1, MaxLng: 1}); err != nil {
		t.Fatalf("FetchFeatures: %v", err)
	}
	if n := atomic.LoadInt64(&up.calls); n != 1 {
		t.Fatalf("calls=%d want 1", n)
	}
}

func TestNew_RejectsBadScheme(t *testing.T) {
	if _, err := New(nil, nil, "ftp://example.com"); err == nil {
		t.Fatalf("expected scheme error")
	}
}

package observe

import (
	"net/http"
	"net/http/httptest"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// adminHarness wires an instrumented handler the way the watch-mode admin
// server does, with in-memory telemetry backends.
type adminHarness struct {
	metrics *Metrics
	reader  *sdkmetric.ManualReader
	spans   *tracetest.InMemoryExporter
}

func newAdminHarness(t *testing.T) *adminHarness {
	t.Helper()
	m, reader := newTestMetrics(t)
	return &adminHarness{metrics: m, reader: reader, spans: installTestTracing(t)}
}

// serve runs one request through the middleware and returns the recorder.
func (h *adminHarness) serve(t *testing.T, req *http.Request, inner http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	Middleware(h.metrics)(inner).ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_CorrelationIDHeaderMatchesContext(t *testing.T) {
	h := newAdminHarness(t)

	var inFlight string
	rec := h.serve(t, httptest.NewRequest("GET", "/healthz", nil),
		func(w http.ResponseWriter, r *http.Request) {
			inFlight = CorrelationID(r.Context())
			w.WriteHeader(http.StatusOK)
		})

	if inFlight == "" {
		t.Fatal("handler saw no correlation ID in its context")
	}
	if len(inFlight) != 32 {
		t.Errorf("correlation ID length = %d, want 32", len(inFlight))
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != inFlight {
		t.Errorf("X-Correlation-ID = %q, want the in-flight ID %q", got, inFlight)
	}
}

func TestMiddleware_SpanNamedAfterRequest(t *testing.T) {
	h := newAdminHarness(t)

	h.serve(t, httptest.NewRequest("GET", "/readyz", nil),
		func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	spans := h.spans.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Name != "HTTP GET /readyz" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "HTTP GET /readyz")
	}
}

func TestMiddleware_DurationHistogramHasRouteAttributes(t *testing.T) {
	h := newAdminHarness(t)

	h.serve(t, httptest.NewRequest("GET", "/metrics", nil),
		func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	rm := collect(t, h.reader)
	met := findMetric(rm, "vocalith.http.request.duration")
	if met == nil {
		t.Fatal("request duration metric not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric data is %T, want Histogram[float64]", met.Data)
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("histogram has %d data points, want 1", len(hist.DataPoints))
	}

	dp := hist.DataPoints[0]
	if dp.Count != 1 {
		t.Errorf("sample count = %d, want 1", dp.Count)
	}
	want := map[string]string{"method": "GET", "path": "/metrics"}
	for _, kv := range dp.Attributes.ToSlice() {
		if v, ok := want[string(kv.Key)]; ok && kv.Value.AsString() == v {
			delete(want, string(kv.Key))
		}
	}
	for key, val := range want {
		t.Errorf("histogram missing attribute %s=%q", key, val)
	}
}

func TestMiddleware_RecordsDownstreamStatus(t *testing.T) {
	h := newAdminHarness(t)

	rec := h.serve(t, httptest.NewRequest("GET", "/healthz", nil),
		func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) })

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("response status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	spans := h.spans.GetSpans()
	if len(spans) == 0 {
		t.Fatal("no spans recorded")
	}
	var status int64
	for _, a := range spans[0].Attributes {
		if string(a.Key) == "http.response.status_code" {
			status = a.Value.AsInt64()
		}
	}
	if status != int64(http.StatusServiceUnavailable) {
		t.Errorf("span http.response.status_code = %d, want %d", status, http.StatusServiceUnavailable)
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	h := newAdminHarness(t)
	const upstream = "4bf92f3577b34da6a3ce929d0e0e4736"

	var inFlight string
	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("traceparent", "00-"+upstream+"-00f067aa0ba902b7-01")
	rec := h.serve(t, req, func(w http.ResponseWriter, r *http.Request) {
		inFlight = CorrelationID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	if inFlight != upstream {
		t.Errorf("in-flight correlation ID = %q, want upstream trace %q", inFlight, upstream)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != upstream {
		t.Errorf("X-Correlation-ID = %q, want %q", got, upstream)
	}
}

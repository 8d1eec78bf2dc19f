package ingest

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/jamming-locator/internal/telemetry"
)

const validReport = `{"position": {"buffcnt": 2048, "lat": 52.2297, "lon": 21.0122, "hgt": 100,
	"nsat": 6, "gdop": 2.1, "clk_bias": 0.5}, "elapsed_time": "4.2"}`

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_AcceptsReport(t *testing.T) {
	slot := telemetry.NewSlot()

	var statuses []string
	var fixes [][3]float64
	s := NewServer(DefaultAddress, slot,
		WithStatusHandler(func(status string) { statuses = append(statuses, status) }),
		WithPositionHandler(func(lat, lon, hgt float64) { fixes = append(fixes, [3]float64{lat, lon, hgt}) }))

	rec := post(t, s.Handler(), DataPath, validReport)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	got := slot.Get()
	require.NotNil(t, got)
	assert.Equal(t, int64(2048), got.BuffCnt)
	assert.Equal(t, 6, got.NumSats)
	assert.Equal(t, telemetry.Elapsed("4.2"), got.ElapsedTime)

	assert.Equal(t, []string{"[4.2, 52.229700, 21.012200, 2048]"}, statuses)
	assert.Equal(t, [][3]float64{{52.2297, 21.0122, 100}}, fixes)
}

func TestServer_NoFixSkipsPositionCallback(t *testing.T) {
	var statusCalls, fixCalls int
	s := NewServer(DefaultAddress, telemetry.NewSlot(),
		WithStatusHandler(func(string) { statusCalls++ }),
		WithPositionHandler(func(float64, float64, float64) { fixCalls++ }))

	rec := post(t, s.Handler(), DataPath, `{"position": {"buffcnt": 1}, "elapsed_time": 0.5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, statusCalls)
	assert.Zero(t, fixCalls)
}

func TestServer_MalformedReportKeepsLastPosition(t *testing.T) {
	slot := telemetry.NewSlot()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	s := NewServer(DefaultAddress, slot, WithMetrics(m, reg))
	h := s.Handler()

	require.Equal(t, http.StatusOK, post(t, h, DataPath, validReport).Code)
	before := slot.Get()

	for _, body := range []string{
		`{"position": {"buffcnt": 9999, "lat": 1.0`,
		`not json at all`,
		`{"position": {"lat": "north"}}`,
	} {
		rec := post(t, h, DataPath, body)
		assert.Equal(t, http.StatusInternalServerError, rec.Code, "body %q", body)
	}

	assert.Equal(t, before, slot.Get())
	assert.Equal(t, uint64(1), slot.Updates())
	assert.Equal(t, 3.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues(outcomeMalformed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues(outcomeOK)))
}

func TestServer_UnknownPath(t *testing.T) {
	s := NewServer(DefaultAddress, telemetry.NewSlot())
	h := s.Handler()

	assert.Equal(t, http.StatusNotFound, post(t, h, "/position", validReport).Code)

	req := httptest.NewRequest(http.MethodGet, DataPath, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewServer(DefaultAddress, telemetry.NewSlot(), WithMetrics(NewMetrics(reg), reg))
	h := s.Handler()

	post(t, h, DataPath, validReport)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `jamloc_telemetry_requests_total{outcome="ok"} 1`)
}

func TestServer_ListenServeShutdown(t *testing.T) {
	slot := telemetry.NewSlot()
	s := NewServer("127.0.0.1:0", slot)

	addr, err := s.Listen()
	require.NoError(t, err)
	assert.Equal(t, addr, s.Addr())

	_, err = s.Listen()
	assert.Error(t, err)

	var wg sync.WaitGroup
	var serveErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		serveErr = s.Serve()
	}()

	resp, err := http.Post(fmt.Sprintf("http://%s%s", addr, DataPath), "application/json", strings.NewReader(validReport))
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Shutdown(context.Background()))
	wg.Wait()
	assert.NoError(t, serveErr)
	assert.Equal(t, 52.2297, slot.Get().Latitude)

	_, err = net.Dial("tcp", addr.String())
	assert.Error(t, err)
}

func TestServer_ListenBindFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	s := NewServer(busy.Addr().String(), telemetry.NewSlot())
	_, err = s.Listen()
	assert.Error(t, err)

	assert.ErrorIs(t, s.Serve(), ErrNotListening)
	assert.NoError(t, s.Shutdown(context.Background()))
}

func TestServer_ShutdownBeforeServe(t *testing.T) {
	s := NewServer("127.0.0.1:0", telemetry.NewSlot())
	_, err := s.Listen()
	require.NoError(t, err)

	require.NoError(t, s.Shutdown(context.Background()))
	assert.NoError(t, s.Serve())
}

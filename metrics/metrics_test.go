package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCounters(t *testing.T) {
	t.Parallel()

	m := New()
	m.Cycle("ok", 0.25)
	m.Cycle("ok", 0.5)
	m.Cycle("skipped", 0)
	m.Signal("Buy")
	m.Order("production", "BUY", "MKT")
	m.Order("production", "SELL", "LMT")
	m.Fill("entry")
	m.Correction()
	m.Command("CLOSE_ALL", "ok")
	m.PositionSize(1000)

	body := scrape(t, m)
	for _, want := range []string{
		`tradeagent_cycles_total{outcome="ok"} 2`,
		`tradeagent_cycles_total{outcome="skipped"} 1`,
		`tradeagent_cycle_seconds_count 2`,
		`tradeagent_signals_total{call="Buy"} 1`,
		`tradeagent_orders_total{action="SELL",mode="production",type="LMT"} 1`,
		`tradeagent_fills_total{kind="entry"} 1`,
		`tradeagent_reconcile_corrections_total 1`,
		`tradeagent_commands_total{command="CLOSE_ALL",result="ok"} 1`,
		`tradeagent_position_size 1000`,
		"go_goroutines",
	} {
		assert.Contains(t, body, want)
	}
}

func TestNilSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.Cycle("ok", 1)
		m.Signal("Hold")
		m.Order("test", "BUY", "LMT")
		m.Fill("entry")
		m.Correction()
		m.Command("X", "unknown")
		m.PositionSize(1)
	})
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

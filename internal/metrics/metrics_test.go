package metrics

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"swingtrader/internal/model"
	"swingtrader/internal/portfolio"
	"swingtrader/internal/signal"
)

func pass() signal.Verdict { return signal.Verdict{Ready: true, OK: true} }

func TestMetrics_Observer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, 70)

	entry := signal.Snapshot{Symbol: "AAA", Trend: pass(), VCP: pass(), Breakout: pass(),
		RS: signal.Strength{Ready: true, Value: 80}}
	weak := entry
	weak.RS.Value = 50
	m.OnSnapshot(signal.Snapshot{Symbol: "AAA"}, model.Flat)
	m.OnSnapshot(weak, model.Flat)
	m.OnSnapshot(entry, model.Flat)

	m.OnIntent(model.OrderIntent{Side: model.SideBuy, Reason: model.ReasonEntry})
	m.OnIntent(model.OrderIntent{Side: model.SideSell, Reason: model.ReasonStopLoss})
	m.OnNotification(model.Notification{Status: model.StatusFilled}, nil)
	m.OnNotification(model.Notification{Status: model.StatusFilled}, errors.New("stale"))
	m.OnNotification(model.Notification{Status: model.StatusMargin}, nil)

	checks := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"bars", m.BarsTotal, 3},
		{"ready", m.ReadyBars, 2},
		{"entry AAA", m.EntrySignals.WithLabelValues("AAA"), 1},
		{"buy entry", m.IntentsTotal.WithLabelValues("BUY", "entry"), 1},
		{"sell stop", m.IntentsTotal.WithLabelValues("SELL", "stop_loss"), 1},
		{"filled", m.NotificationsTotal.WithLabelValues("FILLED"), 2},
		{"margin", m.NotificationsTotal.WithLabelValues("MARGIN"), 1},
		{"stale", m.StaleNotifications, 1},
	}
	for _, c := range checks {
		if got := testutil.ToFloat64(c.c); got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, got, c.want)
		}
	}
}

func TestMetrics_TickTracksPortfolio(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, 70)
	pf := portfolio.New(decimal.NewFromInt(1000), decimal.Zero)
	m.TrackPortfolio(pf)

	if _, err := pf.Buy("AAA", 10, decimal.NewFromInt(50), time.Now()); err != nil {
		t.Fatal(err)
	}
	pf.Mark("AAA", decimal.NewFromInt(40))
	pf.RecordEquity()
	m.OnTickDone(time.Now(), 1, time.Millisecond)

	if got := testutil.ToFloat64(m.TicksTotal); got != 1 {
		t.Errorf("ticks: got %v", got)
	}
	if got := testutil.ToFloat64(m.Equity); got != 900 {
		t.Errorf("equity: got %v, want 900", got)
	}
	if got := testutil.ToFloat64(m.Cash); got != 500 {
		t.Errorf("cash: got %v, want 500", got)
	}
	if got := testutil.ToFloat64(m.OpenPositions); got != 1 {
		t.Errorf("open positions: got %v", got)
	}
	if got := testutil.ToFloat64(m.Drawdown); got != 0.1 {
		t.Errorf("drawdown: got %v, want 0.1", got)
	}
}

func TestServer_Endpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, 70)
	m.BarsTotal.Add(5)

	health := NewHealthStatus("run-1")
	health.OnTickDone(time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC), 4, 0)
	srv := httptest.NewServer(NewServer(":0", reg, health, zerolog.Nop()).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "swingtrader_bars_total 5") {
		t.Errorf("metrics output missing bars counter:\n%s", body)
	}

	resp, err = http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status: %d", resp.StatusCode)
	}
	var h struct {
		Status      string `json:"status"`
		RunID       string `json:"run_id"`
		Ticks       int64  `json:"ticks"`
		LastBarTime string `json:"last_bar_time"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		t.Fatal(err)
	}
	if h.Status != "healthy" || h.RunID != "run-1" || h.Ticks != 1 || h.LastBarTime != "2026-03-02T15:30:00Z" {
		t.Errorf("healthz: %+v", h)
	}
}

func TestHealth_RedisDown(t *testing.T) {
	health := NewHealthStatus("run-2")
	health.SetRedisEnabled(true)
	health.mu.Lock()
	health.RedisConnected = false
	health.mu.Unlock()

	rec := httptest.NewRecorder()
	health.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"degraded"`) {
		t.Errorf("body: %s", rec.Body.String())
	}
}

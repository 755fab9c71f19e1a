package portfolio

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var ts = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, label string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(d(want)) {
		t.Errorf("%s: got %s, want %s", label, got, want)
	}
}

func TestBuySell_RoundTripWithCommission(t *testing.T) {
	pf := New(d("10000"), d("0.0005"))

	if _, err := pf.Buy("AAA", 10, d("100"), ts); err != nil {
		t.Fatal(err)
	}
	// 1000 + 0.5 commission
	assertDec(t, "cash after buy", pf.Cash(), "8999.5")
	pos, ok := pf.Position("AAA")
	if !ok || pos.Qty != 10 {
		t.Fatalf("position: %+v ok=%v", pos, ok)
	}
	assertDec(t, "avg price", pos.AvgPrice, "100.05")

	tr, err := pf.Sell("AAA", 0, d("110"), ts.AddDate(0, 0, 5))
	if err != nil {
		t.Fatal(err)
	}
	if tr.Qty != 10 {
		t.Errorf("sell qty: got %d, want 10 (all)", tr.Qty)
	}
	// proceeds 1100 - 0.55 = 1099.45; realized = 1099.45 - 1000.5
	assertDec(t, "cash after sell", pf.Cash(), "10098.95")
	if _, ok := pf.Position("AAA"); ok {
		t.Error("position should be closed")
	}

	s := pf.Summary()
	assertDec(t, "realized", s.RealizedPnL, "98.95")
	assertDec(t, "commission", s.CommissionPaid, "1.05")
	assertDec(t, "final", s.FinalValue, "10098.95")
	assertDec(t, "return", s.TotalReturn, "0.009895")
	if s.Trades != 2 || s.RoundTrips != 1 || s.Won != 1 || s.Lost != 0 {
		t.Errorf("counts: %+v", s)
	}
}

func TestBuy_InsufficientCash(t *testing.T) {
	pf := New(d("1000"), d("0.0005"))
	if _, err := pf.Buy("AAA", 10, d("100"), ts); !errors.Is(err, ErrInsufficientCash) {
		t.Fatalf("expected ErrInsufficientCash, got %v", err)
	}
	assertDec(t, "cash untouched", pf.Cash(), "1000")
	if _, err := pf.Buy("AAA", 1, d("0"), ts); err == nil || errors.Is(err, ErrInsufficientCash) {
		t.Errorf("zero price: %v", err)
	}
	if _, err := pf.Buy("AAA", 0, d("100"), ts); err == nil {
		t.Error("zero qty should be rejected")
	}
}

func TestSell_NoPosition(t *testing.T) {
	pf := New(d("1000"), decimal.Zero)
	if _, err := pf.Sell("AAA", 1, d("10"), ts); !errors.Is(err, ErrNoPosition) {
		t.Fatalf("expected ErrNoPosition, got %v", err)
	}
}

func TestLosingTradeAndAveraging(t *testing.T) {
	pf := New(d("10000"), decimal.Zero)
	_, _ = pf.Buy("AAA", 10, d("100"), ts)
	_, _ = pf.Buy("AAA", 10, d("110"), ts)
	pos, _ := pf.Position("AAA")
	assertDec(t, "avg", pos.AvgPrice, "105")

	_, _ = pf.Sell("AAA", 5, d("95"), ts)
	pos, _ = pf.Position("AAA")
	if pos.Qty != 15 {
		t.Errorf("qty: got %d, want 15", pos.Qty)
	}
	s := pf.Summary()
	assertDec(t, "realized", s.RealizedPnL, "-50")
	if s.Lost != 1 || s.Won != 0 {
		t.Errorf("won/lost: %d/%d", s.Won, s.Lost)
	}
}

func TestEquityAndDrawdown(t *testing.T) {
	pf := New(d("1000"), decimal.Zero)
	_, _ = pf.Buy("AAA", 10, d("50"), ts)
	pf.RecordEquity() // 1000

	pf.Mark("AAA", d("70"))
	pf.RecordEquity() // 1200, new peak
	assertDec(t, "equity", pf.Equity(), "1200")

	pf.Mark("AAA", d("40"))
	dd := pf.RecordEquity() // 900 -> 25% below 1200
	assertDec(t, "drawdown", dd, "0.25")
	assertDec(t, "current drawdown", pf.Drawdown(), "0.25")

	pf.Mark("AAA", d("60"))
	pf.RecordEquity()
	s := pf.Summary()
	assertDec(t, "max drawdown", s.MaxDrawdown, "0.25")
	if s.OpenPositions != 1 {
		t.Errorf("open positions: got %d", s.OpenPositions)
	}
	pf.Mark("ZZZ", d("1")) // ignored
}

func TestRiskManager(t *testing.T) {
	pf := New(d("10000"), decimal.Zero)
	rm := NewRiskManager(RiskLimits{MaxOpenPositions: 1, MaxPositionValue: 2000, MaxDrawdownPct: 10}, pf)

	if ok, why := rm.CanBuy("AAA", 30, d("100")); ok || why != "position value exceeds limit" {
		t.Errorf("value cap: ok=%v why=%q", ok, why)
	}
	if ok, _ := rm.CanBuy("AAA", 10, d("100")); !ok {
		t.Fatal("expected allowed")
	}
	_, _ = pf.Buy("AAA", 10, d("100"), ts)
	if ok, why := rm.CanBuy("BBB", 1, d("100")); ok || why != "max open positions reached" {
		t.Errorf("open positions: ok=%v why=%q", ok, why)
	}

	pf.RecordEquity()
	pf.Mark("AAA", d("0"))
	pf.RecordEquity() // 9000 / 10000 -> 10%, not above the limit
	if ok, _ := rm.CanBuy("AAA", 1, d("1")); !ok {
		t.Error("drawdown at the limit is still allowed")
	}
	_, _ = pf.Sell("AAA", 0, d("0"), ts)
	pf.RecordEquity()
	_, _ = pf.Buy("CCC", 1, d("100"), ts)
	pf.Mark("CCC", d("0"))
	pf.RecordEquity() // 8900 -> 11%
	if ok, why := rm.CanBuy("CCC", 1, d("1")); ok || why != "max drawdown exceeded" {
		t.Errorf("drawdown: ok=%v why=%q", ok, why)
	}
}

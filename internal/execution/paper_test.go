package execution

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"swingtrader/internal/marketdata/replay"
	"swingtrader/internal/model"
	"swingtrader/internal/portfolio"
)

var day0 = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func bar(sym string, day int, open, close float64) model.Bar {
	hi, lo := open, close
	if lo > hi {
		hi, lo = lo, hi
	}
	return model.Bar{Symbol: sym, Time: day0.AddDate(0, 0, day), Open: open, High: hi, Low: lo, Close: close, Volume: 1000}
}

func tick(day int, bars ...model.Bar) replay.Tick {
	return replay.Tick{Time: day0.AddDate(0, 0, day), Bars: bars}
}

func intent(id, sym string, side model.Side) model.OrderIntent {
	reason := model.ReasonEntry
	if side == model.SideSell {
		reason = model.ReasonStopLoss
	}
	return model.OrderIntent{ID: id, Symbol: sym, Side: side, Reason: reason, Time: day0}
}

func newBroker(cash string, cfg Config, risk *portfolio.RiskLimits) *PaperBroker {
	pf := portfolio.New(decimal.RequireFromString(cash), decimal.RequireFromString("0.0005"))
	var rm *portfolio.RiskManager
	if risk != nil {
		rm = portfolio.NewRiskManager(*risk, pf)
	}
	return NewPaperBroker(pf, rm, cfg, zerolog.Nop())
}

func TestPaperBroker_FillsAtNextOpen(t *testing.T) {
	b := newBroker("1000000", DefaultConfig(), nil)
	b.Submit(intent("b1", "AAA", model.SideBuy))

	// no AAA bar in this tick: the intent waits
	if got := b.OnTick(tick(1, bar("BBB", 1, 10, 11))); len(got) != 0 {
		t.Fatalf("expected no notifications, got %+v", got)
	}
	if b.Pending() != 1 {
		t.Fatalf("pending: got %d, want 1", b.Pending())
	}

	got := b.OnTick(tick(2, bar("AAA", 2, 100, 104)))
	if len(got) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(got))
	}
	n := got[0]
	if n.Status != model.StatusFilled || n.IntentID != "b1" || n.Price != 100 {
		t.Fatalf("unexpected notification %+v", n)
	}
	// 10% of 1,000,000 over 100.05 per share
	if n.Qty != 999 {
		t.Errorf("qty: got %d, want 999", n.Qty)
	}
	pos, ok := b.Portfolio().Position("AAA")
	if !ok || !pos.LastPrice.Equal(decimal.NewFromInt(104)) {
		t.Errorf("position should be marked to the close: %+v", pos)
	}
	if b.Pending() != 0 {
		t.Errorf("queue should be drained")
	}
}

func TestPaperBroker_SellClosesPosition(t *testing.T) {
	b := newBroker("10000", Config{Size: 10}, nil)
	b.Submit(intent("b1", "AAA", model.SideBuy))
	b.OnTick(tick(1, bar("AAA", 1, 100, 100)))

	b.Submit(intent("s1", "AAA", model.SideSell))
	got := b.OnTick(tick(2, bar("AAA", 2, 110, 108)))
	if len(got) != 1 || got[0].Status != model.StatusFilled || got[0].Qty != 10 {
		t.Fatalf("unexpected sell notification %+v", got)
	}
	if _, ok := b.Portfolio().Position("AAA"); ok {
		t.Error("position should be closed")
	}

	fills := b.Fills()
	if len(fills) != 2 {
		t.Fatalf("fills: got %d, want 2", len(fills))
	}
	// 1100 - 0.55 - 1000.5
	if want := decimal.RequireFromString("98.95"); !fills[1].Realized.Equal(want) {
		t.Errorf("realized: got %s, want %s", fills[1].Realized, want)
	}
	if fills[1].Reason != model.ReasonStopLoss {
		t.Errorf("reason: got %s", fills[1].Reason)
	}
}

func TestPaperBroker_SellWithoutPositionRejected(t *testing.T) {
	b := newBroker("10000", Config{Size: 1}, nil)
	b.Submit(intent("s1", "AAA", model.SideSell))
	got := b.OnTick(tick(1, bar("AAA", 1, 10, 10)))
	if len(got) != 1 || got[0].Status != model.StatusRejected {
		t.Fatalf("expected rejection, got %+v", got)
	}
}

func TestPaperBroker_BuyErrorRejected(t *testing.T) {
	// a zero open passes sizing but the portfolio refuses the trade
	b := newBroker("10000", Config{Size: 1}, nil)
	b.Submit(intent("b1", "AAA", model.SideBuy))
	got := b.OnTick(tick(1, bar("AAA", 1, 0, 10)))
	if len(got) != 1 || got[0].Status != model.StatusRejected || got[0].Qty != 0 {
		t.Fatalf("expected rejection, got %+v", got)
	}
	if len(b.Fills()) != 0 {
		t.Error("no fill expected")
	}
}

func TestPaperBroker_Margin(t *testing.T) {
	// fixed size larger than cash
	b := newBroker("50", Config{Size: 1}, nil)
	b.Submit(intent("b1", "AAA", model.SideBuy))
	got := b.OnTick(tick(1, bar("AAA", 1, 100, 100)))
	if len(got) != 1 || got[0].Status != model.StatusMargin {
		t.Fatalf("expected margin, got %+v", got)
	}

	// percentage sizing that rounds to zero shares
	b = newBroker("500", DefaultConfig(), nil)
	b.Submit(intent("b2", "AAA", model.SideBuy))
	got = b.OnTick(tick(1, bar("AAA", 1, 100, 100)))
	if len(got) != 1 || got[0].Status != model.StatusMargin {
		t.Fatalf("expected margin for sub-share budget, got %+v", got)
	}
	if len(b.Fills()) != 0 {
		t.Error("no fill expected")
	}
}

func TestPaperBroker_RiskRejection(t *testing.T) {
	limits := portfolio.RiskLimits{MaxOpenPositions: 1}
	b := newBroker("10000", Config{Size: 1}, &limits)
	b.Submit(intent("b1", "AAA", model.SideBuy))
	b.Submit(intent("b2", "BBB", model.SideBuy))
	got := b.OnTick(tick(1, bar("AAA", 1, 10, 10), bar("BBB", 1, 20, 20)))
	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(got))
	}
	if got[0].Status != model.StatusFilled {
		t.Errorf("first buy: %+v", got[0])
	}
	if got[1].Status != model.StatusRejected || got[1].Message != "max open positions reached" {
		t.Errorf("second buy: %+v", got[1])
	}
}

func TestPaperBroker_CloseCancelsQueued(t *testing.T) {
	b := newBroker("10000", Config{Size: 1}, nil)
	b.Submit(intent("b1", "AAA", model.SideBuy))
	b.Submit(intent("b2", "BBB", model.SideBuy))

	got := b.Close()
	if len(got) != 2 {
		t.Fatalf("expected 2 cancellations, got %d", len(got))
	}
	for _, n := range got {
		if n.Status != model.StatusCanceled {
			t.Errorf("status: got %s", n.Status)
		}
	}
	if b.Pending() != 0 {
		t.Error("queue should be empty after Close")
	}
	if len(b.Close()) != 0 {
		t.Error("second Close should report nothing")
	}
}

func TestPaperBroker_JournalsFills(t *testing.T) {
	j, err := NewJournal(filepath.Join(t.TempDir(), "journal.db"), "run-1", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	b := newBroker("10000", Config{Size: 5}, nil)
	b.SetJournal(j)
	b.Submit(intent("b1", "AAA", model.SideBuy))
	b.OnTick(tick(1, bar("AAA", 1, 100, 101)))
	b.Submit(intent("s1", "AAA", model.SideSell))
	b.OnTick(tick(2, bar("AAA", 2, 90, 92)))

	recs, err := j.GetFills(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("records: got %d, want 2", len(recs))
	}
	// newest first
	if recs[0].OrderID != "s1" || recs[0].Side != string(model.SideSell) || recs[0].Qty != 5 {
		t.Errorf("sell record: %+v", recs[0])
	}
	if !recs[0].Price.Equal(decimal.NewFromInt(90)) {
		t.Errorf("sell price: got %s", recs[0].Price)
	}
	if !recs[0].Realized.IsNegative() {
		t.Errorf("losing trade should realize a loss, got %s", recs[0].Realized)
	}
	if recs[1].OrderID != "b1" || recs[1].RunID != "run-1" {
		t.Errorf("buy record: %+v", recs[1])
	}
}

func TestJournal_ScopedToRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	a, err := NewJournal(path, "a", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	bj, err := NewJournal(path, "b", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer bj.Close()

	f := Fill{OrderID: "x", Symbol: "AAA", Side: model.SideBuy, Qty: 1, Price: decimal.NewFromInt(1), FilledAt: day0, DecidedAt: day0}
	if err := a.RecordFill(f); err != nil {
		t.Fatal(err)
	}
	recs, err := bj.GetFills(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Errorf("run b should see no fills, got %d", len(recs))
	}
}

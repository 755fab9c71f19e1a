package main

import (
	"strings"
	"testing"
	"time"
)

var seoul = time.FixedZone("KST", 9*3600)

func TestReadBars_HeaderLayout(t *testing.T) {
	in := "Date,Open,High,Low,Close,Volume,Change\n" +
		"2026-01-05,100,110,95,105,1000,0.01\n" +
		"2026-01-06,105,112,101,111,1500,0.05\n"
	bars, bad, err := readBars(strings.NewReader(in), "005930", seoul)
	if err != nil {
		t.Fatal(err)
	}
	if bad != 0 || len(bars) != 2 {
		t.Fatalf("bars %d, bad %d", len(bars), bad)
	}
	b := bars[1]
	if b.Symbol != "005930" || b.Open != 105 || b.High != 112 || b.Low != 101 || b.Close != 111 || b.Volume != 1500 {
		t.Errorf("bar: %+v", b)
	}
	if !b.Time.Equal(time.Date(2026, 1, 6, 0, 0, 0, 0, seoul)) {
		t.Errorf("time: %v", b.Time)
	}
}

func TestReadBars_ReorderedColumns(t *testing.T) {
	in := "volume,close,low,high,open,timestamp\n" +
		"700,10,9,11,9.5,1767571200\n"
	bars, _, err := readBars(strings.NewReader(in), "AAA", seoul)
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 1 || bars[0].Open != 9.5 || bars[0].Volume != 700 || bars[0].Time.Unix() != 1767571200 {
		t.Errorf("bars: %+v", bars)
	}
}

func TestReadBars_NoHeader(t *testing.T) {
	in := "20260105,100,110,95,105,1000\n" +
		"20260106,105,112,101,111,1500\n"
	bars, bad, err := readBars(strings.NewReader(in), "AAA", seoul)
	if err != nil {
		t.Fatal(err)
	}
	if bad != 0 || len(bars) != 2 {
		t.Fatalf("bars %d, bad %d", len(bars), bad)
	}
	if !bars[0].Time.Equal(time.Date(2026, 1, 5, 0, 0, 0, 0, seoul)) {
		t.Errorf("time: %v", bars[0].Time)
	}
}

func TestReadBars_SkipsBadRows(t *testing.T) {
	in := "date,open,high,low,close,volume\n" +
		"2026-01-05,100,110,95,105,1000\n" +
		"2026-01-06,100,90,95,105,1000\n" + // high < low
		"2026-01-07,abc,110,95,105,1000\n" +
		"2026-01-08,100,110\n" +
		"2026-01-09,100,110,95,105,-1\n" +
		"2026-01-12,100,110,95,106,900\n"
	bars, bad, err := readBars(strings.NewReader(in), "AAA", seoul)
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 2 || bad != 4 {
		t.Errorf("bars %d, bad %d; want 2, 4", len(bars), bad)
	}
}

func TestReadBars_MissingColumn(t *testing.T) {
	in := "date,open,high,low,close\n2026-01-05,100,110,95,105\n"
	if _, _, err := readBars(strings.NewReader(in), "AAA", seoul); err == nil {
		t.Error("expected error for missing volume column")
	}
}

func TestReadBars_Empty(t *testing.T) {
	bars, bad, err := readBars(strings.NewReader(""), "AAA", seoul)
	if err != nil || len(bars) != 0 || bad != 0 {
		t.Errorf("empty input: %v %d %v", bars, bad, err)
	}
}

func TestParseTime_Millis(t *testing.T) {
	got, err := parseTime("1767571200000", seoul)
	if err != nil {
		t.Fatal(err)
	}
	if got.Unix() != 1767571200 {
		t.Errorf("millis: %v", got)
	}
}

func TestSymbolFromPath(t *testing.T) {
	tests := map[string]string{
		"data/005930.csv":  "005930",
		"/tmp/KS11.CSV":    "KS11",
		"AAPL":             "AAPL",
		"dir/a.b/KQ11.csv": "KQ11",
	}
	for in, want := range tests {
		if got := symbolFromPath(in); got != want {
			t.Errorf("symbolFromPath(%q) = %q, want %q", in, got, want)
		}
	}
}

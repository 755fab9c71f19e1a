package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"swingtrader/internal/model"
)

// csvLayout maps header names to column positions.
type csvLayout struct {
	ts, open, high, low, close, volume int
}

var headerAliases = map[string][]string{
	"ts":     {"date", "datetime", "time", "timestamp", "timestamp_ms"},
	"open":   {"open"},
	"high":   {"high"},
	"low":    {"low"},
	"close":  {"close"},
	"volume": {"volume", "vol"},
}

// detectLayout reads header columns; a record whose first field parses as a
// timestamp is not a header and selects the positional layout
// date,open,high,low,close,volume.
func detectLayout(rec []string, loc *time.Location) (csvLayout, bool, error) {
	if len(rec) > 0 {
		if _, err := parseTime(rec[0], loc); err == nil {
			return csvLayout{0, 1, 2, 3, 4, 5}, false, nil
		}
	}
	idx := make(map[string]int, len(rec))
	for i, name := range rec {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	find := func(field string) (int, error) {
		for _, alias := range headerAliases[field] {
			if i, ok := idx[alias]; ok {
				return i, nil
			}
		}
		return 0, fmt.Errorf("csv header: no %s column in %v", field, rec)
	}
	var l csvLayout
	var err error
	for _, f := range []struct {
		name string
		dst  *int
	}{
		{"ts", &l.ts}, {"open", &l.open}, {"high", &l.high}, {"low", &l.low}, {"close", &l.close}, {"volume", &l.volume},
	} {
		if *f.dst, err = find(f.name); err != nil {
			return l, true, err
		}
	}
	return l, true, nil
}

// parseTime accepts YYYY-MM-DD or YYYYMMDD (midnight in loc), RFC 3339,
// and unix seconds or milliseconds.
func parseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(strings.Trim(strings.TrimPrefix(s, "\ufeff"), `"`))
	if len(s) == 8 {
		if t, err := time.ParseInLocation("20060102", s, loc); err == nil {
			return t, nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e11 {
			return time.UnixMilli(n), nil
		}
		return time.Unix(n, 0), nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, s, loc); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", s, loc); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// readBars parses one CSV file into bars for symbol. Rows that fail to
// parse or validate are skipped and counted.
func readBars(r io.Reader, symbol string, loc *time.Location) (bars []model.Bar, bad int, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	first, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("csv: %w", err)
	}
	layout, header, err := detectLayout(first, loc)
	if err != nil {
		return nil, 0, err
	}

	parse := func(rec []string) (model.Bar, error) {
		need := max(layout.ts, layout.open, layout.high, layout.low, layout.close, layout.volume)
		if len(rec) <= need {
			return model.Bar{}, fmt.Errorf("short row: %d fields", len(rec))
		}
		ts, err := parseTime(rec[layout.ts], loc)
		if err != nil {
			return model.Bar{}, err
		}
		b := model.Bar{Symbol: symbol, Time: ts}
		for _, f := range []struct {
			col int
			dst *float64
		}{
			{layout.open, &b.Open}, {layout.high, &b.High}, {layout.low, &b.Low}, {layout.close, &b.Close}, {layout.volume, &b.Volume},
		} {
			v, err := strconv.ParseFloat(strings.TrimSpace(strings.Trim(rec[f.col], `"`)), 64)
			if err != nil {
				return model.Bar{}, err
			}
			*f.dst = v
		}
		return b, b.Validate()
	}

	if !header {
		if b, err := parse(first); err == nil {
			bars = append(bars, b)
		} else {
			bad++
		}
	}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			bad++
			continue
		}
		b, err := parse(rec)
		if err != nil {
			bad++
			continue
		}
		bars = append(bars, b)
	}
	return bars, bad, nil
}

// symbolFromPath derives the instrument symbol from a file name:
// data/005930.csv -> 005930.
func symbolFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

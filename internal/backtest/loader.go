package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"cta_runtime/internal/core"
)

// Series is one contiguous bar history for a (symbol, interval) pair,
// sorted by bar start time.
type Series struct {
	Symbol   string
	Exchange core.Exchange
	Interval core.Interval
	Bars     []*core.Bar
}

var barTimeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
}

func parseBarTime(s string) (time.Time, error) {
	for _, layout := range barTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable bar datetime %q", s)
}

// LoadCSV reads a bar file with columns
// symbol, open, high, low, close, datetime, ktype
// and splits the rows into per-(symbol, interval) series. Rows carry the
// bar start datetime; ktype is the interval tag.
func LoadCSV(path string, exchange core.Exchange) ([]*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bar file: %w", err)
	}
	defer f.Close()
	return ReadBars(f, exchange)
}

// ReadBars parses bar CSV rows from r. The first row must be the header.
func ReadBars(r io.Reader, exchange core.Exchange) ([]*Series, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read bar header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{"symbol", "open", "high", "low", "close", "datetime", "ktype"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("bar file missing column %q", required)
		}
	}

	series := make(map[string]*Series)
	var keys []string

	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read bar row %d: %w", line, err)
		}

		interval, err := core.ParseInterval(record[col["ktype"]])
		if err != nil {
			return nil, fmt.Errorf("bar row %d: %w", line, err)
		}
		dt, err := parseBarTime(record[col["datetime"]])
		if err != nil {
			return nil, fmt.Errorf("bar row %d: %w", line, err)
		}

		bar := &core.Bar{
			GatewayName: "BACKTEST",
			Symbol:      record[col["symbol"]],
			Exchange:    exchange,
			Datetime:    dt,
			Interval:    interval,
		}
		for _, field := range []struct {
			name string
			dst  *decimal.Decimal
		}{
			{"open", &bar.Open},
			{"high", &bar.High},
			{"low", &bar.Low},
			{"close", &bar.Close},
		} {
			v, err := decimal.NewFromString(record[col[field.name]])
			if err != nil {
				return nil, fmt.Errorf("bar row %d column %s: %w", line, field.name, err)
			}
			*field.dst = v
		}

		key := bar.Symbol + "|" + interval.String()
		s, ok := series[key]
		if !ok {
			s = &Series{Symbol: bar.Symbol, Exchange: exchange, Interval: interval}
			series[key] = s
			keys = append(keys, key)
		}
		s.Bars = append(s.Bars, bar)
	}

	out := make([]*Series, 0, len(keys))
	for _, key := range keys {
		s := series[key]
		sort.SliceStable(s.Bars, func(i, j int) bool {
			return s.Bars[i].Datetime.Before(s.Bars[j].Datetime)
		})
		out = append(out, s)
	}
	return out, nil
}

// Intervals returns the distinct intervals present across the series.
func Intervals(series []*Series) []core.Interval {
	seen := make(map[core.Interval]bool)
	var out []core.Interval
	for _, s := range series {
		if !seen[s.Interval] {
			seen[s.Interval] = true
			out = append(out, s.Interval)
		}
	}
	return out
}

package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"golang-backtest/internal/dto"
	"golang-backtest/internal/indicator"
	"golang-backtest/pkg/utils"
)

// BarRecord is the parquet schema for stored bars.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"`
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

// FileBarRepository serves bars from local .csv or .parquet files, one file
// per symbol. Files are read once and kept in memory.
type FileBarRepository struct {
	mu     sync.Mutex
	files  map[string]string
	loaded map[string][]dto.Bar
	tf     dto.Timeframe
}

var _ BarRepository = (*FileBarRepository)(nil)

// NewFileBarRepository maps upper-cased symbols to file paths. tf is the
// timeframe the files are stored in.
func NewFileBarRepository(files map[string]string, tf dto.Timeframe) *FileBarRepository {
	normalized := make(map[string]string, len(files))
	for symbol, path := range files {
		normalized[strings.ToUpper(strings.TrimSpace(symbol))] = path
	}
	return &FileBarRepository{
		files:  normalized,
		loaded: make(map[string][]dto.Bar),
		tf:     tf.Or(dto.Timeframe1Day),
	}
}

// Symbols lists the symbols with a backing file, sorted.
func (r *FileBarRepository) Symbols() []string {
	out := make([]string, 0, len(r.files))
	for s := range r.files {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (r *FileBarRepository) Get(ctx context.Context, param dto.GetBarsParam) ([]dto.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol := strings.ToUpper(param.Symbol)
	bars, err := r.load(symbol)
	if err != nil {
		return nil, err
	}

	out := make([]dto.Bar, 0, len(bars))
	for _, b := range bars {
		if !param.From.IsZero() && b.Timestamp.Before(param.From) {
			continue
		}
		if !param.To.IsZero() && b.Timestamp.After(param.To) {
			continue
		}
		out = append(out, b)
	}
	if tf := param.Timeframe; tf != "" && tf != r.tf {
		if tf.Compare(r.tf) < 0 {
			return nil, fmt.Errorf("bars for %s are stored as %s and cannot be served as %s", symbol, r.tf, tf)
		}
		out = indicator.Resample(out, tf)
	}
	return out, nil
}

func (r *FileBarRepository) load(symbol string) ([]dto.Bar, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if bars, ok := r.loaded[symbol]; ok {
		return bars, nil
	}
	path, found := r.files[symbol]
	if !found {
		return nil, fmt.Errorf("no bar file for symbol %s: %w", symbol, ErrNotFound)
	}
	bars, err := ReadBarFile(path)
	if err != nil {
		return nil, err
	}
	r.loaded[symbol] = bars
	return bars, nil
}

// ReadBarFile reads bars from a .csv or .parquet file and sorts them by
// timestamp.
func ReadBarFile(path string) ([]dto.Bar, error) {
	var (
		bars []dto.Bar
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		bars, err = readParquetBars(path)
	case ".csv":
		bars, err = readCSVBars(path)
	default:
		return nil, fmt.Errorf("unsupported bar file %q, expected .csv or .parquet", path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}

// WriteBarFile stores bars as parquet.
func WriteBarFile(path, symbol string, bars []dto.Bar) error {
	records := make([]BarRecord, len(bars))
	for i, b := range bars {
		records[i] = BarRecord{
			Symbol:    symbol,
			Timestamp: b.Timestamp.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetBars(path string) ([]dto.Bar, error) {
	records, err := parquet.ReadFile[BarRecord](path)
	if err != nil {
		return nil, err
	}
	bars := make([]dto.Bar, len(records))
	for i, r := range records {
		bars[i] = dto.Bar{
			Timestamp: time.UnixMilli(r.Timestamp).UTC(),
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		}
	}
	return bars, nil
}

var csvColumns = map[string][]string{
	"timestamp": {"timestamp", "date", "time", "datetime"},
	"open":      {"open", "o"},
	"high":      {"high", "h"},
	"low":       {"low", "l"},
	"close":     {"close", "c", "adj_close"},
	"volume":    {"volume", "v"},
}

// readCSVBars expects a header row. Timestamps are dates, RFC3339 or unix
// seconds. A missing volume column reads as zero.
func readCSVBars(path string) ([]dto.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	idx := make(map[string]int)
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		for col, aliases := range csvColumns {
			if _, done := idx[col]; !done && utils.ContainsString(aliases, name) {
				idx[col] = i
			}
		}
	}
	for _, col := range []string{"timestamp", "open", "high", "low", "close"} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing %s column", col)
		}
	}

	var bars []dto.Bar
	line := 1
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		ts, err := parseCSVTime(row[idx["timestamp"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bar := dto.Bar{Timestamp: ts}
		fields := []struct {
			col string
			dst *float64
		}{
			{"open", &bar.Open}, {"high", &bar.High}, {"low", &bar.Low}, {"close", &bar.Close}, {"volume", &bar.Volume},
		}
		for _, fld := range fields {
			i, ok := idx[fld.col]
			if !ok {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, fld.col, err)
			}
			*fld.dst = v
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseCSVTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(n, 0).UTC(), nil
	}
	return utils.ParseDate(s)
}

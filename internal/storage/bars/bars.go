// Package bars keeps market bars and backtest weights as parquet blobs in an
// archive.Storage. Bars are laid out as
//
//	bars/<asset class>/<SYMBOL>/<YYYY>.parquet
//
// so a range load only touches the years it needs.
package bars

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/quantlab/internal/collector"
	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/grid"
	"github.com/newthinker/quantlab/internal/storage/archive"
	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"
)

var _ collector.Source = (*Store)(nil)

const barsRoot = "bars"

// BarRecord is the parquet schema for one bar.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
	Dividends float64 `parquet:"dividends"`
	IsLiquid  *bool   `parquet:"is_liquid,optional"`
}

// Store reads and writes bars and implements collector.Source.
type Store struct {
	storage archive.Storage
	symbols []string
	logger  *zap.Logger
}

// Option configures a Store
type Option func(*Store)

// WithSymbols restricts Load to the given symbols instead of every symbol
// stored for the class.
func WithSymbols(symbols ...string) Option {
	return func(s *Store) { s.symbols = symbols }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a bar store over storage.
func NewStore(storage archive.Storage, opts ...Option) *Store {
	s := &Store{storage: storage, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func barPath(class core.AssetClass, symbol string, year int) string {
	return path.Join(barsRoot, string(class), symbol, fmt.Sprintf("%04d.parquet", year))
}

// WriteBars merges bars into the yearly files, replacing existing records
// with the same symbol and timestamp.
func (s *Store) WriteBars(ctx context.Context, class core.AssetClass, bars []core.OHLCV) error {
	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		k := key{symbol: b.Symbol, year: b.Time.UTC().Year()}
		groups[k] = append(groups[k], toRecord(b))
	}

	for k, records := range groups {
		p := barPath(class, k.symbol, k.year)
		existing, err := s.readRecords(ctx, p)
		if err != nil && !errors.Is(err, archive.ErrNotFound) {
			return fmt.Errorf("reading %s: %w", p, err)
		}
		if err := writeParquet(ctx, s.storage, p, mergeRecords(existing, records)); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadBars returns the bars of symbol with from <= time <= to, ascending.
// A zero bound is open.
func (s *Store) ReadBars(ctx context.Context, class core.AssetClass, symbol string, from, to time.Time) ([]core.OHLCV, error) {
	files, err := s.storage.List(ctx, path.Join(barsRoot, string(class), symbol)+"/")
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", symbol, err)
	}

	var out []core.OHLCV
	for _, f := range files {
		year, err := strconv.Atoi(strings.TrimSuffix(path.Base(f), ".parquet"))
		if err != nil {
			continue
		}
		if (!from.IsZero() && year < from.UTC().Year()) || (!to.IsZero() && year > to.UTC().Year()) {
			continue
		}
		records, err := s.readRecords(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f, err)
		}
		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if (!from.IsZero() && ts.Before(from)) || (!to.IsZero() && ts.After(to)) {
				continue
			}
			out = append(out, fromRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

// Symbols lists the symbols stored for class.
func (s *Store) Symbols(ctx context.Context, class core.AssetClass) ([]string, error) {
	prefix := path.Join(barsRoot, string(class))
	files, err := s.storage.List(ctx, prefix+"/")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, f := range files {
		rest := strings.TrimPrefix(f, prefix+"/")
		symbol, _, ok := strings.Cut(rest, "/")
		if !ok || seen[symbol] {
			continue
		}
		seen[symbol] = true
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out, nil
}

// Load reads every symbol of the class into a grid.
func (s *Store) Load(ctx context.Context, class core.AssetClass, from, to time.Time) (*grid.Grid, error) {
	symbols := s.symbols
	if len(symbols) == 0 {
		var err error
		if symbols, err = s.Symbols(ctx, class); err != nil {
			return nil, core.WrapError(core.ErrSourceFailed, err)
		}
	}

	var all []core.OHLCV
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bars, err := s.ReadBars(ctx, class, symbol, from, to)
		if err != nil {
			return nil, core.WrapError(core.ErrSourceFailed, err)
		}
		if len(bars) == 0 {
			s.logger.Warn("no bars stored", zap.String("symbol", symbol), zap.String("class", string(class)))
			continue
		}
		all = append(all, bars...)
	}
	return collector.ToGrid(all), nil
}

func (s *Store) readRecords(ctx context.Context, p string) ([]BarRecord, error) {
	return readParquet[BarRecord](ctx, s.storage, p)
}

func toRecord(b core.OHLCV) BarRecord {
	return BarRecord{
		Symbol:    b.Symbol,
		Timestamp: b.Time.UnixMilli(),
		Open:      b.Open,
		High:      b.High,
		Low:       b.Low,
		Close:     b.Close,
		Volume:    b.Volume,
		Dividends: b.Dividends,
		IsLiquid:  b.IsLiquid,
	}
}

func fromRecord(r BarRecord) core.OHLCV {
	return core.OHLCV{
		Symbol:    r.Symbol,
		Interval:  "1d",
		Open:      r.Open,
		High:      r.High,
		Low:       r.Low,
		Close:     r.Close,
		Volume:    r.Volume,
		Dividends: r.Dividends,
		IsLiquid:  r.IsLiquid,
		Time:      time.UnixMilli(r.Timestamp).UTC(),
	}
}

// mergeRecords deduplicates by (symbol, timestamp), preferring incoming.
func mergeRecords(existing, incoming []BarRecord) []BarRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Timestamp}] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}

func writeParquet[T any](ctx context.Context, storage archive.Storage, p string, records []T) error {
	var buf bytes.Buffer
	if err := parquet.Write(&buf, records); err != nil {
		return fmt.Errorf("encoding parquet: %w", err)
	}
	return storage.Write(ctx, p, buf.Bytes())
}

func readParquet[T any](ctx context.Context, storage archive.Storage, p string) ([]T, error) {
	data, err := storage.Read(ctx, p)
	if err != nil {
		return nil, err
	}
	rows, err := parquet.Read[T](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("decoding parquet: %w", err)
	}
	return rows, nil
}

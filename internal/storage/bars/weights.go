package bars

import (
	"context"
	"fmt"
	"math"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/newthinker/quantlab/internal/grid"
	"github.com/newthinker/quantlab/internal/storage/archive"
)

// WeightRecord is the parquet schema for one weight cell.
type WeightRecord struct {
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"`
	Asset     string  `parquet:"asset"`
	Weight    float64 `parquet:"weight"`
}

// WeightSink writes each weight panel it receives to
//
//	<dir>/<first day>_<last day>.parquet
//
// A one-row submission and a full run therefore land in separate files.
type WeightSink struct {
	storage archive.Storage
	dir     string

	mu    sync.Mutex
	paths []string
}

// NewWeightSink creates a sink writing under dir.
func NewWeightSink(storage archive.Storage, dir string) *WeightSink {
	return &WeightSink{storage: storage, dir: dir}
}

// Write stores the non-NaN cells of a time-indexed panel.
func (s *WeightSink) Write(ctx context.Context, weights *grid.Panel) error {
	if weights == nil || !weights.HasTimeAxis() || weights.Rows() == 0 {
		return fmt.Errorf("weight sink needs a time-indexed panel")
	}

	records := make([]WeightRecord, 0, len(weights.Values))
	for t, ts := range weights.Times {
		for a, asset := range weights.Assets {
			v := weights.At(t, a)
			if math.IsNaN(v) {
				continue
			}
			records = append(records, WeightRecord{Timestamp: ts.UnixMilli(), Asset: asset, Weight: v})
		}
	}

	first, last := weights.Times[0], weights.Times[len(weights.Times)-1]
	p := path.Join(s.dir, first.UTC().Format("20060102")+"_"+last.UTC().Format("20060102")+".parquet")
	if err := writeParquet(ctx, s.storage, p, records); err != nil {
		return fmt.Errorf("writing %s: %w", p, err)
	}

	s.mu.Lock()
	s.paths = append(s.paths, p)
	s.mu.Unlock()
	return nil
}

// Paths returns the files written so far.
func (s *WeightSink) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// ReadWeights loads a weight file back into a panel. Assets keep their
// first-seen order and absent cells are NaN.
func ReadWeights(ctx context.Context, storage archive.Storage, p string) (*grid.Panel, error) {
	records, err := readParquet[WeightRecord](ctx, storage, p)
	if err != nil {
		return nil, err
	}

	var assets []string
	col := make(map[string]int)
	stamps := make(map[int64]bool)
	var times []time.Time
	for _, r := range records {
		if _, ok := col[r.Asset]; !ok {
			col[r.Asset] = len(assets)
			assets = append(assets, r.Asset)
		}
		if !stamps[r.Timestamp] {
			stamps[r.Timestamp] = true
			times = append(times, time.UnixMilli(r.Timestamp).UTC())
		}
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	out := grid.NewPanel(times, assets)
	for _, r := range records {
		out.Set(out.TimeIndex(time.UnixMilli(r.Timestamp).UTC()), col[r.Asset], r.Weight)
	}
	return out, nil
}

package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/newthinker/quantlab/internal/collector"
	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/grid"
	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"
)

// validSymbol matches stock symbols like AAPL, MSFT, 600519.SH, 0700.HK, ^GSPC
var validSymbol = regexp.MustCompile(`^\^?[A-Za-z0-9]{1,10}(\.[A-Za-z]{1,4})?$`)

// validateSymbol checks if a symbol has valid format
func validateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if len(symbol) > 20 {
		return fmt.Errorf("symbol too long: %s", symbol)
	}
	if !validSymbol.MatchString(symbol) {
		return fmt.Errorf("invalid symbol format: %s", symbol)
	}
	return nil
}

// Yahoo loads daily equity and index bars from the Yahoo Finance chart API
type Yahoo struct {
	client  *http.Client
	baseURL string
	config  collector.Config
	logger  *zap.Logger
}

// Option configures a Yahoo source
type Option func(*Yahoo)

// WithBaseURL points the source at another chart endpoint
func WithBaseURL(u string) Option {
	return func(y *Yahoo) { y.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the default client
func WithHTTPClient(c *http.Client) Option {
	return func(y *Yahoo) { y.client = c }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(y *Yahoo) { y.logger = l }
}

// New creates a new Yahoo source
func New(opts ...Option) *Yahoo {
	y := &Yahoo{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: defaultBaseURL,
		config:  collector.Config{Interval: "1d"},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

func (y *Yahoo) Name() string {
	return "yahoo"
}

// Init sets the symbols to load and the bar interval
func (y *Yahoo) Init(cfg collector.Config) error {
	for _, s := range cfg.Symbols {
		if err := validateSymbol(s); err != nil {
			return err
		}
	}
	if cfg.Interval == "" {
		cfg.Interval = "1d"
	}
	y.config = cfg
	return nil
}

// Load fetches every configured symbol and pivots the bars into a grid.
func (y *Yahoo) Load(ctx context.Context, class core.AssetClass, from, to time.Time) (*grid.Grid, error) {
	if class != core.AssetStocks && class != core.AssetIndex {
		return nil, core.WrapError(core.ErrSourceFailed, fmt.Errorf("yahoo does not serve %q", class))
	}
	if len(y.config.Symbols) == 0 {
		return nil, core.WrapError(core.ErrSourceFailed, fmt.Errorf("no symbols configured"))
	}

	var bars []core.OHLCV
	for _, symbol := range y.config.Symbols {
		history, err := y.FetchHistory(ctx, symbol, from, to, y.config.Interval)
		if err != nil {
			return nil, core.WrapError(core.ErrSourceFailed, fmt.Errorf("%s: %w", symbol, err))
		}
		y.logger.Debug("fetched history", zap.String("symbol", symbol), zap.Int("bars", len(history)))
		bars = append(bars, history...)
	}
	return collector.ToGrid(bars), nil
}

// toYahooSymbol converts internal symbol format to Yahoo format
func (y *Yahoo) toYahooSymbol(symbol string) string {
	// Shanghai stocks: 600519.SH -> 600519.SS
	if strings.HasSuffix(symbol, ".SH") {
		return strings.TrimSuffix(symbol, ".SH") + ".SS"
	}
	return symbol
}

// FetchHistory fetches historical OHLCV data with dividend events
func (y *Yahoo) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.OHLCV, error) {
	if err := validateSymbol(symbol); err != nil {
		return nil, err
	}
	yahooSymbol := y.toYahooSymbol(symbol)
	yahooInterval := y.toYahooInterval(interval)

	url := fmt.Sprintf("%s/%s?interval=%s&period1=%d&period2=%d&events=div",
		y.baseURL, yahooSymbol, yahooInterval, start.Unix(), end.Unix())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	resp, err := y.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if result.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo error: %s", result.Chart.Error.Description)
	}

	if len(result.Chart.Result) == 0 || len(result.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, core.WrapError(core.ErrAssetNotFound, fmt.Errorf("no data for symbol: %s", symbol))
	}

	r := result.Chart.Result[0]
	quotes := r.Indicators.Quote[0]

	divs := make(map[int64]float64, len(r.Events.Dividends))
	for _, d := range r.Events.Dividends {
		divs[d.Date] += d.Amount
	}

	data := make([]core.OHLCV, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		open, high, low, last := value(quotes.Open, i), value(quotes.High, i), value(quotes.Low, i), value(quotes.Close, i)
		if open == nil || last == nil {
			continue // Skip missing data
		}
		bar := core.OHLCV{
			Symbol:    symbol,
			Interval:  interval,
			Open:      *open,
			High:      *open,
			Low:       *open,
			Close:     *last,
			Dividends: divs[ts],
			Time:      time.Unix(ts, 0).UTC(),
		}
		if high != nil {
			bar.High = *high
		}
		if low != nil {
			bar.Low = *low
		}
		if v := value(quotes.Volume, i); v != nil {
			bar.Volume = *v
		}
		data = append(data, bar)
	}

	return data, nil
}

func value(series []*float64, i int) *float64 {
	if i >= len(series) {
		return nil
	}
	return series[i]
}

func (y *Yahoo) toYahooInterval(interval string) string {
	switch interval {
	case "1m":
		return "1m"
	case "5m":
		return "5m"
	case "1h":
		return "1h"
	case "1d":
		return "1d"
	case "1wk":
		return "1wk"
	default:
		return "1d"
	}
}

// Yahoo API response types
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta       chartMeta   `json:"meta"`
	Timestamp  []int64     `json:"timestamp"`
	Events     chartEvents `json:"events"`
	Indicators indicators  `json:"indicators"`
}

type chartMeta struct {
	Symbol   string `json:"symbol"`
	Currency string `json:"currency"`
}

type chartEvents struct {
	Dividends map[string]dividendEvent `json:"dividends"`
}

type dividendEvent struct {
	Amount float64 `json:"amount"`
	Date   int64   `json:"date"`
}

type indicators struct {
	Quote []quoteIndicator `json:"quote"`
}

type quoteIndicator struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*float64 `json:"volume"`
}

package core

import "time"

// AssetClass identifies the market a grid was loaded from
type AssetClass string

const (
	AssetStocks        AssetClass = "stocks"
	AssetFutures       AssetClass = "futures"
	AssetCryptoFutures AssetClass = "cryptofutures"
	AssetCrypto        AssetClass = "crypto" // hourly bars
	AssetCryptoDaily   AssetClass = "crypto_daily"
	AssetIndex         AssetClass = "index"
	AssetMacro         AssetClass = "macro"
)

// Valid reports whether the class is one of the known asset classes
func (c AssetClass) Valid() bool {
	switch c {
	case AssetStocks, AssetFutures, AssetCryptoFutures, AssetCrypto,
		AssetCryptoDaily, AssetIndex, AssetMacro:
		return true
	}
	return false
}

// PointsPerYear returns the default sampling frequency for the class,
// used when the history is too short to infer it.
func (c AssetClass) PointsPerYear() float64 {
	switch c {
	case AssetCrypto:
		return 8760
	case AssetCryptoDaily, AssetCryptoFutures:
		return 365
	default:
		return 251
	}
}

// SlippageFraction returns the default share of the true range charged
// per traded unit.
func (c AssetClass) SlippageFraction() float64 {
	switch c {
	case AssetCrypto, AssetCryptoDaily, AssetCryptoFutures:
		return 0.03
	default:
		return 0.05
	}
}

// Field names a market data series in a time-series grid
type Field string

const (
	FieldOpen         Field = "open"
	FieldHigh         Field = "high"
	FieldLow          Field = "low"
	FieldClose        Field = "close"
	FieldVolume       Field = "vol"
	FieldDividends    Field = "divs"
	FieldSplitFactor  Field = "split"
	FieldIsLiquid     Field = "is_liquid"
	FieldOpenInterest Field = "oi"
	FieldRollCost     Field = "roll"
)

// OHLCVFields is the default field set produced by bar loaders
var OHLCVFields = []Field{FieldOpen, FieldHigh, FieldLow, FieldClose, FieldVolume}

// OHLCV represents a candlestick/bar
type OHLCV struct {
	Symbol    string
	Interval  string // "1h", "1d"
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Dividends float64
	IsLiquid  *bool // nil when the source carries no liquidity flag
	Time      time.Time
}

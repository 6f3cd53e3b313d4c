package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/newthinker/quantlab/internal/backtest"
	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/storage/archive"
	"github.com/newthinker/quantlab/internal/storage/state"
	"github.com/spf13/viper"
)

// Data source names
const (
	SourceYahoo   = "yahoo"
	SourceParquet = "parquet"
)

type Config struct {
	Log        LogConfig                 `mapstructure:"log"`
	Data       DataConfig                `mapstructure:"data"`
	Storage    StorageConfig             `mapstructure:"storage"`
	State      StateConfig               `mapstructure:"state"`
	Backtest   BacktestConfig            `mapstructure:"backtest"`
	Simulation SimulationConfig          `mapstructure:"simulation"`
	Stats      StatsConfig               `mapstructure:"stats"`
	Strategies map[string]StrategyConfig `mapstructure:"strategies"`
	Metrics    MetricsConfig             `mapstructure:"metrics"`
	Report     ReportConfig              `mapstructure:"report"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DataConfig selects where market data comes from
type DataConfig struct {
	Source     string   `mapstructure:"source"` // "yahoo" or "parquet"
	AssetClass string   `mapstructure:"asset_class"`
	Symbols    []string `mapstructure:"symbols"`
	Interval   string   `mapstructure:"interval"`
}

type StorageConfig struct {
	Type string   `mapstructure:"type"` // "localfs" or "s3"
	Path string   `mapstructure:"path"` // For localfs
	S3   S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// StateConfig selects the strategy state backend
type StateConfig struct {
	Backend string `mapstructure:"backend"` // "memory", "archive" or "sqlite"
	Path    string `mapstructure:"path"`    // SQLite database
}

// BacktestConfig mirrors backtest.Config. Dates are YYYY-MM-DD and
// periods are calendar days.
type BacktestConfig struct {
	StartDate                  string  `mapstructure:"start_date"`
	EndDate                    string  `mapstructure:"end_date"`
	LookbackPeriod             int     `mapstructure:"lookback_period"`
	Step                       int     `mapstructure:"step"`
	TrainPeriod                int     `mapstructure:"train_period"`
	RetrainInterval            int     `mapstructure:"retrain_interval"`
	RetrainIntervalAfterSubmit int     `mapstructure:"retrain_interval_after_submit"`
	PredictEachDay             bool    `mapstructure:"predict_each_day"`
	Submitted                  bool    `mapstructure:"submitted"`
	CheckLookAhead             bool    `mapstructure:"check_lookahead"`
	LookAheadTruncateDays      int     `mapstructure:"lookahead_truncate_days"`
	Tolerance                  float64 `mapstructure:"tolerance"`
	Analyze                    bool    `mapstructure:"analyze"`
	WriteWeights               bool    `mapstructure:"write_weights"`
}

type SimulationConfig struct {
	PerAsset bool `mapstructure:"per_asset"`
	// SlippageFraction overrides the asset class default when set
	SlippageFraction *float64 `mapstructure:"slippage_fraction"`
	SlippagePeriod   int      `mapstructure:"slippage_period"`
}

type StatsConfig struct {
	MaxPeriods    int     `mapstructure:"max_periods"`
	MinPeriods    int     `mapstructure:"min_periods"`
	PointsPerYear float64 `mapstructure:"points_per_year"`
}

type StrategyConfig struct {
	Params map[string]any `mapstructure:"params"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"` // Prometheus textfile
}

// ReportConfig controls result rendering
type ReportConfig struct {
	Console bool   `mapstructure:"console"`
	Excel   bool   `mapstructure:"excel"`
	Dir     string `mapstructure:"dir"`
}

// Load reads configuration from file on top of Defaults
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	bt := backtest.DefaultConfig()
	return &Config{
		Log: LogConfig{Level: "info"},
		Data: DataConfig{
			Source:     SourceParquet,
			AssetClass: string(core.AssetStocks),
			Interval:   "1d",
		},
		Storage: StorageConfig{
			Type: archive.BackendLocalFS,
			Path: "./data",
		},
		State: StateConfig{
			Backend: state.BackendArchive,
		},
		Backtest: BacktestConfig{
			LookbackPeriod:             bt.LookbackPeriod,
			Step:                       bt.Step,
			TrainPeriod:                bt.TrainPeriod,
			RetrainInterval:            bt.RetrainInterval,
			RetrainIntervalAfterSubmit: bt.RetrainIntervalAfterSubmit,
			LookAheadTruncateDays:      bt.LookAheadTruncateDays,
			Tolerance:                  bt.Tolerance,
			Analyze:                    true,
			WriteWeights:               true,
		},
		Simulation: SimulationConfig{
			SlippagePeriod: bt.Simulation.SlippagePeriod,
		},
		Stats: StatsConfig{
			MinPeriods: bt.Stats.MinPeriods,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Path:    "quantlab.prom",
		},
		Report: ReportConfig{
			Console: true,
			Dir:     "./reports",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if !core.AssetClass(c.Data.AssetClass).Valid() {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown asset_class %q", c.Data.AssetClass))
	}
	switch c.Data.Source {
	case SourceYahoo:
		if len(c.Data.Symbols) == 0 {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("data.symbols required when source is yahoo"))
		}
	case SourceParquet:
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("data.source must be yahoo or parquet, got %q", c.Data.Source))
	}

	switch c.Storage.Type {
	case archive.BackendLocalFS:
		if c.Storage.Path == "" {
			return core.WrapError(core.ErrConfigMissing, fmt.Errorf("storage.path required for localfs"))
		}
	case archive.BackendS3:
		if c.Storage.S3.Bucket == "" {
			return core.WrapError(core.ErrConfigMissing, fmt.Errorf("storage.s3.bucket required for s3"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("storage.type must be localfs or s3, got %q", c.Storage.Type))
	}

	switch c.State.Backend {
	case state.BackendMemory, state.BackendArchive:
	case state.BackendSQLite:
		if c.State.Path == "" {
			return core.WrapError(core.ErrConfigMissing, fmt.Errorf("state.path required for sqlite"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("state.backend must be memory, archive or sqlite, got %q", c.State.Backend))
	}

	if f := c.Simulation.SlippageFraction; f != nil && *f < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("slippage_fraction cannot be negative, got %f", *f))
	}
	if c.Simulation.SlippagePeriod < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("slippage_period must be >= 1, got %d", c.Simulation.SlippagePeriod))
	}
	if c.Stats.MaxPeriods < 0 || c.Stats.MinPeriods < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("stats periods must be max >= 0 and min >= 1, got %d/%d", c.Stats.MaxPeriods, c.Stats.MinPeriods))
	}
	if c.Metrics.Enabled && c.Metrics.Path == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("metrics.path required when metrics are enabled"))
	}

	bt, err := c.BacktestOptions()
	if err != nil {
		return err
	}
	if err := bt.Validate(); err != nil {
		return core.WrapError(core.ErrConfigInvalid, err)
	}
	return nil
}

// BacktestOptions converts the backtest, simulation and stats sections into
// driver options.
func (c *Config) BacktestOptions() (backtest.Config, error) {
	class := core.AssetClass(c.Data.AssetClass)
	bt := backtest.DefaultConfig()
	bt.AssetClass = class

	if c.Backtest.StartDate == "" {
		return bt, core.WrapError(core.ErrConfigMissing, fmt.Errorf("backtest.start_date is required"))
	}
	start, err := time.Parse(time.DateOnly, c.Backtest.StartDate)
	if err != nil {
		return bt, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("backtest.start_date: %w", err))
	}
	bt.StartDate = start
	if c.Backtest.EndDate != "" {
		end, err := time.Parse(time.DateOnly, c.Backtest.EndDate)
		if err != nil {
			return bt, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("backtest.end_date: %w", err))
		}
		bt.EndDate = end
	}

	b := c.Backtest
	bt.LookbackPeriod = b.LookbackPeriod
	bt.Step = b.Step
	bt.TrainPeriod = b.TrainPeriod
	bt.RetrainInterval = b.RetrainInterval
	bt.RetrainIntervalAfterSubmit = b.RetrainIntervalAfterSubmit
	bt.PredictEachDay = b.PredictEachDay
	bt.Submitted = b.Submitted
	bt.CheckLookAhead = b.CheckLookAhead
	bt.LookAheadTruncateDays = b.LookAheadTruncateDays
	bt.Tolerance = b.Tolerance
	bt.Analyze = b.Analyze

	bt.Simulation.PerAsset = c.Simulation.PerAsset
	bt.Simulation.SlippagePeriod = c.Simulation.SlippagePeriod
	bt.Simulation.SlippageFraction = class.SlippageFraction()
	if f := c.Simulation.SlippageFraction; f != nil {
		bt.Simulation.SlippageFraction = *f
	}

	bt.Stats.MaxPeriods = c.Stats.MaxPeriods
	bt.Stats.MinPeriods = c.Stats.MinPeriods
	bt.Stats.PointsPerYear = c.Stats.PointsPerYear
	bt.Stats.AssetClass = class
	return bt, nil
}

// ArchiveConfig returns the blob storage settings
func (c *Config) ArchiveConfig() archive.Config {
	s3 := c.Storage.S3
	return archive.Config{
		Backend: c.Storage.Type,
		Path:    c.Storage.Path,
		S3: archive.S3Config{
			Bucket:    s3.Bucket,
			Endpoint:  s3.Endpoint,
			Region:    s3.Region,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			Prefix:    s3.Prefix,
		},
	}
}

// StateConfig returns the state store settings keyed by strategy
func (c *Config) StateConfig(strategy string) state.Config {
	return state.Config{Backend: c.State.Backend, Path: c.State.Path, Key: strategy}
}

// StrategyParams returns the configured parameters of a strategy
func (c *Config) StrategyParams(name string) map[string]any {
	return c.Strategies[name].Params
}

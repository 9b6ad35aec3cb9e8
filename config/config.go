package config

import (
	"flag"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/ccgains/internal/domain"
	"github.com/vadiminshakov/ccgains/internal/logging"
	"gopkg.in/yaml.v3"
)

const (
	defaultBaseCurrency = "EUR"
	defaultJournalDir   = "./wal/journal"
	defaultHoldingYears = 1
)

type Config struct {
	BaseCurrency string
	TradeFiles   []string
	// Timezone applies to trade times written without an offset.
	Timezone        *time.Location
	SnapshotPath    string
	Resume          bool
	JournalDir      string
	HoldingYears    int
	FillMissingFees bool
	// Strict makes unmatched withdrawal fees an error.
	Strict bool
	// Export is where the normalized trade history is written, if set.
	Export string
	Rates  RatesConfig
	Log    logging.Config
}

type RatesConfig struct {
	SQLitePath string
	ImportCSV  string
	Binance    bool
	Bybit      bool
	MaxAge     time.Duration
}

type ConfigTmp struct {
	BaseCurrency    string         `yaml:"base_currency"`
	Trades          []string       `yaml:"trades"`
	Timezone        string         `yaml:"timezone"`
	Snapshot        string         `yaml:"snapshot"`
	Resume          bool           `yaml:"resume"`
	JournalDir      string         `yaml:"journal_dir"`
	HoldingYears    int            `yaml:"holding_years,omitempty"`
	FillMissingFees bool           `yaml:"fill_missing_fees"`
	Strict          bool           `yaml:"strict"`
	Export          string         `yaml:"export"`
	Rates           ratesTmp       `yaml:"rates"`
	Log             logging.Config `yaml:"log"`
}

type ratesTmp struct {
	SQLite    string        `yaml:"sqlite"`
	ImportCSV string        `yaml:"import_csv"`
	Binance   bool          `yaml:"binance"`
	Bybit     bool          `yaml:"bybit"`
	MaxAge    time.Duration `yaml:"max_age"`
}

// Get reads the config from the yaml file given by --config, or from the
// command line flags otherwise.
func Get() (Config, error) {
	return Parse(os.Args[1:])
}

// Parse is Get with explicit arguments.
func Parse(args []string) (Config, error) {
	fs := flag.NewFlagSet("ccgains", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to yaml config")
	cli := registerFlags(fs)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if *configPath != "" {
		return getYaml(*configPath)
	}
	return cli.config()
}

func getYaml(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var c ConfigTmp
	if err := yaml.Unmarshal(f, &c); err != nil {
		return Config{}, errors.Wrapf(err, "parse yaml config %s", path)
	}
	return c.resolve()
}

func (c ConfigTmp) resolve() (Config, error) {
	base := domain.NormalizeCurrency(c.BaseCurrency)
	if base == "" {
		base = defaultBaseCurrency
	}
	if len(c.Trades) == 0 {
		return Config{}, errors.New("no trade files given")
	}

	loc := time.UTC
	if c.Timezone != "" {
		var err error
		if loc, err = time.LoadLocation(c.Timezone); err != nil {
			return Config{}, errors.Wrapf(err, "incorrect 'timezone' param %q", c.Timezone)
		}
	}

	holdingYears := c.HoldingYears
	if holdingYears == 0 {
		holdingYears = defaultHoldingYears
	}
	if holdingYears < 0 {
		return Config{}, errors.Errorf("incorrect 'holding_years' param %d, must not be negative", holdingYears)
	}
	if c.Rates.MaxAge < 0 {
		return Config{}, errors.Errorf("incorrect 'max_age' param %s, must not be negative", c.Rates.MaxAge)
	}

	journalDir := c.JournalDir
	if journalDir == "" {
		journalDir = defaultJournalDir
	}

	return Config{
		BaseCurrency:    base,
		TradeFiles:      c.Trades,
		Timezone:        loc,
		SnapshotPath:    c.Snapshot,
		Resume:          c.Resume,
		JournalDir:      journalDir,
		HoldingYears:    holdingYears,
		FillMissingFees: c.FillMissingFees,
		Strict:          c.Strict,
		Export:          c.Export,
		Rates: RatesConfig{
			SQLitePath: c.Rates.SQLite,
			ImportCSV:  c.Rates.ImportCSV,
			Binance:    c.Rates.Binance,
			Bybit:      c.Rates.Bybit,
			MaxAge:     c.Rates.MaxAge,
		},
		Log: c.Log,
	}, nil
}

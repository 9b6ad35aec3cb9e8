package config

import (
	"flag"
	"strings"
	"time"
)

type cliFlags struct {
	base, trades, timezone, snapshot, journal *string
	export                                    *string
	resume, fillFees, strict                  *bool
	holdingYears                              *int
	sqlite, importRates                       *string
	binance, bybit                            *bool
	maxAge                                    *time.Duration
	logLevel, logFile                         *string
}

func registerFlags(fs *flag.FlagSet) cliFlags {
	return cliFlags{
		base:         fs.String("base", defaultBaseCurrency, "base currency all gains are computed in, example: EUR"),
		trades:       fs.String("trades", "", "comma separated trade history csv files"),
		timezone:     fs.String("timezone", "UTC", "time zone of csv times without an offset, example: Europe/Berlin"),
		snapshot:     fs.String("snapshot", "", "path of the engine state file"),
		journal:      fs.String("journal", defaultJournalDir, "directory of the disposal journal"),
		resume:       fs.Bool("resume", false, "continue from the saved engine state"),
		fillFees:     fs.Bool("fillfees", false, "derive missing withdrawal fees from the following deposits"),
		strict:       fs.Bool("strict", false, "fail when a withdrawal can't be matched with its deposit"),
		export:       fs.String("export", "", "write the normalized trade history to this csv"),
		holdingYears: fs.Int("holdingyears", defaultHoldingYears, "years after which a sale is long term"),
		sqlite:       fs.String("rates", "", "path of the sqlite rate store"),
		importRates:  fs.String("importrates", "", "csv of historical rates to import into the rate store"),
		binance:      fs.Bool("binance", false, "fetch missing rates from binance"),
		bybit:        fs.Bool("bybit", false, "fetch missing rates from bybit, after binance if both are set"),
		maxAge:       fs.Duration("maxrateage", 0, "max age of a stored rate, 0 means any"),
		logLevel:     fs.String("loglevel", "info", "log level"),
		logFile:      fs.String("logfile", "", "rotating log file"),
	}
}

func (f cliFlags) config() (Config, error) {
	var trades []string
	for _, path := range strings.Split(*f.trades, ",") {
		if path = strings.TrimSpace(path); path != "" {
			trades = append(trades, path)
		}
	}

	tmp := ConfigTmp{
		BaseCurrency:    *f.base,
		Trades:          trades,
		Timezone:        *f.timezone,
		Snapshot:        *f.snapshot,
		Resume:          *f.resume,
		JournalDir:      *f.journal,
		HoldingYears:    *f.holdingYears,
		FillMissingFees: *f.fillFees,
		Strict:          *f.strict,
		Export:          *f.export,
		Rates: ratesTmp{
			SQLite:    *f.sqlite,
			ImportCSV: *f.importRates,
			Binance:   *f.binance,
			Bybit:     *f.bybit,
			MaxAge:    *f.maxAge,
		},
	}
	tmp.Log.Level = *f.logLevel
	tmp.Log.File = *f.logFile

	return tmp.resolve()
}

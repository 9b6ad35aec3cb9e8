package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/ccgains/internal/domain"
	"github.com/vadiminshakov/gowal"
)

const (
	defaultJournalDir   = "./wal/journal"
	journalSegmentLimit = 1000
	segmentPrefix       = "journal_"
	disposalKeyPrefix   = "disposal_"
	tradeKeyPrefix      = "trade_"
)

// TradeRecord notes that a trade was processed.
type TradeRecord struct {
	ID       string    `json:"id"`
	Seq      uint64    `json:"seq"`
	Time     time.Time `json:"time"`
	Kind     string    `json:"kind"`
	Exchange string    `json:"exchange"`
	Summary  string    `json:"summary"`
}

type disposalRecord struct {
	ID string `json:"id"`
	domain.Disposal
}

// WALJournal appends realized disposals and processed trades to a WAL.
type WALJournal struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// Option configures a WALJournal.
type Option func(*gowal.Config)

// WithSegmentThreshold sets how many records go into one segment file.
func WithSegmentThreshold(records int) Option {
	return func(cfg *gowal.Config) {
		cfg.SegmentThreshold = records
	}
}

// NewWALJournal opens (or creates) a journal under dir. Old segments are
// never dropped: the report is built from the whole history.
func NewWALJournal(dir string, opts ...Option) (*WALJournal, error) {
	if dir == "" {
		dir = defaultJournalDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create journal dir")
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           segmentPrefix,
		SegmentThreshold: journalSegmentLimit,
		MaxSegments:      0,
		IsInSyncDiskMode: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init journal WAL")
	}

	return &WALJournal{wal: wal}, nil
}

// Reset removes the journal segments under dir and leaves every other file
// alone. A missing dir is not an error.
func Reset(dir string) error {
	if dir == "" {
		dir = defaultJournalDir
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "read journal dir")
	}

	for _, entry := range entries {
		if entry.IsDir() || !isSegment(entry.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return errors.Wrapf(err, "remove journal segment %s", entry.Name())
		}
	}
	return nil
}

func isSegment(name string) bool {
	suffix, ok := strings.CutPrefix(name, segmentPrefix)
	if !ok || suffix == "" {
		return false
	}
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// RecordDisposal appends a realized lot portion.
func (j *WALJournal) RecordDisposal(d domain.Disposal) error {
	rec := disposalRecord{ID: uuid.New().String(), Disposal: d}
	return j.write(disposalKeyPrefix, rec.ID, rec)
}

// RecordTrade appends the trade processed as number seq.
func (j *WALJournal) RecordTrade(seq uint64, t domain.Trade) error {
	rec := TradeRecord{
		ID:       uuid.New().String(),
		Seq:      seq,
		Time:     t.Time,
		Kind:     t.Kind,
		Exchange: t.Exchange,
		Summary:  t.String(),
	}
	return j.write(tradeKeyPrefix, rec.ID, rec)
}

func (j *WALJournal) write(prefix, id string, rec any) error {
	if j == nil || j.wal == nil {
		return errors.New("journal is not initialized")
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrapf(err, "marshal %s record", strings.TrimSuffix(prefix, "_"))
	}

	key := fmt.Sprintf("%s%s", prefix, id)

	j.mu.Lock()
	defer j.mu.Unlock()

	nextIndex := j.wal.CurrentIndex() + 1
	return j.wal.Write(nextIndex, key, payload)
}

// Disposals returns every recorded disposal in the order it was written.
func (j *WALJournal) Disposals() ([]domain.Disposal, error) {
	var disposals []domain.Disposal
	err := j.scan(disposalKeyPrefix, func(payload []byte) error {
		var rec disposalRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return errors.Wrap(err, "decode disposal")
		}
		disposals = append(disposals, rec.Disposal)
		return nil
	})
	return disposals, err
}

// Trades returns every recorded trade in the order it was written.
func (j *WALJournal) Trades() ([]TradeRecord, error) {
	var trades []TradeRecord
	err := j.scan(tradeKeyPrefix, func(payload []byte) error {
		var rec TradeRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return errors.Wrap(err, "decode trade")
		}
		trades = append(trades, rec)
		return nil
	})
	return trades, err
}

func (j *WALJournal) scan(prefix string, fn func(payload []byte) error) error {
	if j == nil || j.wal == nil {
		return errors.New("journal is not initialized")
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	current := j.wal.CurrentIndex()
	for idx := uint64(1); idx <= current; idx++ {
		key, payload, err := j.wal.Get(idx)
		if err != nil {
			return errors.Wrapf(err, "read journal entry %d", idx)
		}
		if key == "" || !strings.HasPrefix(key, prefix) {
			continue
		}
		if err := fn(payload); err != nil {
			return err
		}
	}

	return nil
}

// Close closes the underlying WAL.
func (j *WALJournal) Close() error {
	if j == nil || j.wal == nil {
		return errors.New("journal is not initialized")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	return j.wal.Close()
}

// YearSummary totals the disposals realized in one calendar year (UTC).
type YearSummary struct {
	Year      int
	Disposals int
	Cost      decimal.Decimal
	Proceeds  decimal.Decimal
	// ShortTermGain is proceeds minus cost of the short-term disposals that paid for trades.
	ShortTermGain decimal.Decimal
	// FeeLoss is the short-term cost of lots spent on transfer fees.
	FeeLoss decimal.Decimal
}

// Summarize groups disposals by year, oldest year first.
func Summarize(disposals []domain.Disposal) []YearSummary {
	byYear := make(map[int]*YearSummary)
	for _, d := range disposals {
		year := d.Time.UTC().Year()
		s, ok := byYear[year]
		if !ok {
			s = &YearSummary{Year: year}
			byYear[year] = s
		}

		s.Disposals++
		s.Cost = s.Cost.Add(d.Cost)
		s.Proceeds = s.Proceeds.Add(d.Proceeds)
		if !d.ShortTerm {
			continue
		}
		if d.Fee {
			s.FeeLoss = s.FeeLoss.Add(d.Cost)
		} else {
			s.ShortTermGain = s.ShortTermGain.Add(d.Gain())
		}
	}

	summaries := make([]YearSummary, 0, len(byYear))
	for _, s := range byYear {
		summaries = append(summaries, *s)
	}
	sort.Slice(summaries, func(a, b int) bool {
		return summaries[a].Year < summaries[b].Year
	})

	return summaries
}

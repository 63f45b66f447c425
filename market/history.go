package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

// History is an in-memory Provider over a strictly increasing timestamp
// series. It is loaded once before a run starts and is immutable after.
type History struct {
	snaps []Snapshot
	index map[int64]int // unix nanos -> snaps index
}

// NewHistory validates that snapshots are strictly ordered by time and
// builds the exact-timestamp index.
func NewHistory(snaps []Snapshot) (*History, error) {
	h := &History{
		snaps: make([]Snapshot, len(snaps)),
		index: make(map[int64]int, len(snaps)),
	}
	copy(h.snaps, snaps)

	var prev time.Time
	for i, s := range h.snaps {
		if i > 0 && !s.Time().After(prev) {
			return nil, fmt.Errorf("history timestamps not strictly increasing at %s", s.Time().Format(time.RFC3339))
		}
		prev = s.Time()
		h.index[s.Time().UnixNano()] = i
	}
	return h, nil
}

// Timestamps returns the ordered series. The slice is a copy; callers
// cannot reorder the run.
func (h *History) Timestamps() []time.Time {
	out := make([]time.Time, len(h.snaps))
	for i, s := range h.snaps {
		out[i] = s.Time()
	}
	return out
}

// At returns the snapshot for exactly ts. There is no nearest-match
// fallback: a missing timestamp is a data hole the run must not paper
// over.
func (h *History) At(ts time.Time) (Snapshot, error) {
	i, ok := h.index[ts.UnixNano()]
	if !ok {
		return Snapshot{}, fmt.Errorf("snapshot at %s: %w", ts.Format(time.RFC3339), ErrNoData)
	}
	return h.snaps[i], nil
}

// csv column layout for historical data files.
const (
	colTime = iota
	colVenue
	colAsset
	colPrice
	colFunding
	colSupplyAPR
	colBorrowAPR
	colStakingAPR
	colCount
)

// ReadCSV parses historical data rows:
//
//	time,venue,asset,price,funding_rate,supply_apr,borrow_apr,staking_apr
//
// Rows must be grouped by timestamp in ascending order; time is RFC3339.
// A header row is detected by a non-parsable first field and skipped.
func ReadCSV(r io.Reader) (*History, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = colCount

	var (
		snaps   []Snapshot
		curTime time.Time
		cur     map[Key]Quote
		line    int
	)

	flush := func() {
		if cur != nil {
			snaps = append(snaps, NewSnapshot(curTime, cur))
			cur = nil
		}
	}

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read data csv: %w", err)
		}
		line++

		ts, err := time.Parse(time.RFC3339, rec[colTime])
		if err != nil {
			if line == 1 {
				continue // header
			}
			return nil, fmt.Errorf("line %d: bad timestamp %q: %w", line, rec[colTime], err)
		}

		if cur == nil || !ts.Equal(curTime) {
			flush()
			curTime = ts
			cur = make(map[Key]Quote)
		}

		q := Quote{}
		for _, f := range []struct {
			col int
			dst *decimal.Decimal
		}{
			{colPrice, &q.Price},
			{colFunding, &q.FundingRate},
			{colSupplyAPR, &q.SupplyAPR},
			{colBorrowAPR, &q.BorrowAPR},
			{colStakingAPR, &q.StakingAPR},
		} {
			if rec[f.col] == "" {
				continue
			}
			d, err := decimal.NewFromString(rec[f.col])
			if err != nil {
				return nil, fmt.Errorf("line %d col %d: %w", line, f.col, err)
			}
			*f.dst = d
		}

		cur[Key{Venue: rec[colVenue], Asset: rec[colAsset]}] = q
	}
	flush()

	return NewHistory(snaps)
}

// LoadCSV reads a historical data file from disk.
func LoadCSV(path string) (*History, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

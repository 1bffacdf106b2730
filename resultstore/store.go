// Package resultstore journals per-(regime, variant, scenario) solver
// outcomes to a LevelDB database (component C12). cmd/dss writes a
// solver's results here only after that solver's Run returns, so a run
// that crashes or is killed mid-batch leaves none of its results on disk.
//
// The data/recent-index/GC structure here is adapted from the teacher's
// cloudlus/util.go DB type: a flat key holds the JSON-encoded payload, a
// second time-ordered index key records write order, and GC walks that
// index to prune index+data together once the store's on-disk size
// crosses a configured limit.
package resultstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/SavinovAleksandr/dss/inputs"
)

// Entry is one journaled outcome: the solver that produced it, the
// (regime, variant, scenario) triple it belongs to, when it was written,
// and its JSON-encoded result (solver.ScenarioResult[T].Value for
// whichever T that solver uses).
type Entry struct {
	Solver     string
	Regime     string
	Variant    string
	Scenario   string
	RecordedAt time.Time
	Payload    json.RawMessage
}

// Store is a LevelDB-backed journal of Entry records, with age/size-bounded
// garbage collection matching the teacher's DB.GC.
type Store struct {
	db *leveldb.DB

	// Limit is the cumulative maximum number of bytes the journal may
	// occupy before GC starts purging entries older than PurgeAge.
	Limit int64
	// PurgeAge is the minimum age at which an entry becomes eligible for
	// removal during GC, mirroring config.ResultsSettings.PurgeAge.
	PurgeAge time.Duration
}

// Open returns a Store backed by the LevelDB database at path, or an
// in-memory store if path is empty (used by tests).
func Open(path string, limitBytes int64, purgeAge time.Duration) (*Store, error) {
	var db *leveldb.DB
	var err error
	if path == "" {
		db, err = leveldb.Open(storage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("resultstore: opening %q: %w", path, err)
	}
	return &Store{db: db, Limit: limitBytes, PurgeAge: purgeAge}, nil
}

func (s *Store) Close() error { return s.db.Close() }

const dataPrefix = "data-"
const recentPrefix = "recent-"

func dataKey(solver string, rgm inputs.Regime, vrn inputs.Variant, scn inputs.Scenario) []byte {
	return []byte(fmt.Sprintf("%s%s|%s|%d|%s", dataPrefix, solver, rgm.Path, vrn.ID, scn.Path))
}

func recentKey(now time.Time, dk []byte) []byte {
	ts := make([]byte, 8)
	binary.BigEndian.PutUint64(ts, uint64(now.Unix()))
	key := append([]byte(recentPrefix), ts...)
	key = append(key, '-')
	return append(key, dk...)
}

// Put journals value for the given (solver, regime, variant, scenario)
// triple, overwriting any prior entry for the same triple. Each call
// writes one entry; cmd/dss calls it for every scenario result after the
// solver's Run has returned.
func Put[T any](s *Store, solver string, rgm inputs.Regime, vrn inputs.Variant, scn inputs.Scenario, recordedAt time.Time, value T) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("resultstore: encoding %s entry: %w", solver, err)
	}
	entry := Entry{
		Solver: solver, Regime: rgm.Path, Variant: vrn.Name, Scenario: scn.Path,
		RecordedAt: recordedAt, Payload: payload,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("resultstore: encoding entry envelope: %w", err)
	}

	dk := dataKey(solver, rgm, vrn, scn)
	if err := s.db.Put(dk, data, nil); err != nil {
		return fmt.Errorf("resultstore: writing entry: %w", err)
	}
	if err := s.db.Put(recentKey(recordedAt, dk), dk, nil); err != nil {
		return fmt.Errorf("resultstore: writing recency index: %w", err)
	}
	return nil
}

// Get returns the journaled entry for one (solver, regime, variant,
// scenario) triple, or ok=false if nothing has been written for it yet.
func (s *Store) Get(solver string, rgm inputs.Regime, vrn inputs.Variant, scn inputs.Scenario) (Entry, bool, error) {
	data, err := s.db.Get(dataKey(solver, rgm, vrn, scn), nil)
	if err == leveldb.ErrNotFound {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("resultstore: reading entry: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, false, fmt.Errorf("resultstore: decoding entry: %w", err)
	}
	return e, true, nil
}

// ForSolver returns every journaled entry for the given solver name, in
// key order (grouped by regime/variant/scenario, not write order).
func (s *Store) ForSolver(solver string) ([]Entry, error) {
	it := s.db.NewIterator(util.BytesPrefix([]byte(dataPrefix+solver+"|")), nil)
	defer it.Release()

	var entries []Entry
	for it.Next() {
		var e Entry
		if err := json.Unmarshal(it.Value(), &e); err != nil {
			return nil, fmt.Errorf("resultstore: decoding entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("resultstore: iterating entries: %w", err)
	}
	return entries, nil
}

// Size returns the cumulative size, in bytes, of every journaled entry
// (data records only, not the recency index).
func (s *Store) Size() (int64, error) {
	it := s.db.NewIterator(util.BytesPrefix([]byte(dataPrefix)), nil)
	defer it.Release()

	var size int64
	for it.Next() {
		size += int64(len(it.Value()))
	}
	if err := it.Error(); err != nil {
		return 0, fmt.Errorf("resultstore: sizing store: %w", err)
	}
	return size, nil
}

// GC removes entries older than PurgeAge once the store's size exceeds
// Limit, returning the number of entries purged and remaining. It is a
// no-op (npurged=0, nremain=-1) when the store is under Limit, matching
// the teacher's DB.GC "unknown count" convention.
func (s *Store) GC(now time.Time) (npurged, nremain int, err error) {
	size, err := s.Size()
	if err != nil {
		return 0, -1, err
	}
	if s.Limit <= 0 || size < s.Limit {
		return 0, -1, nil
	}

	it := s.db.NewIterator(util.BytesPrefix([]byte(dataPrefix)), nil)
	defer it.Release()

	for it.Next() {
		var e Entry
		if err := json.Unmarshal(it.Value(), &e); err != nil {
			return npurged, nremain, fmt.Errorf("resultstore: decoding entry during GC: %w", err)
		}
		if now.Sub(e.RecordedAt) > s.PurgeAge {
			dk := make([]byte, len(it.Key()))
			copy(dk, it.Key())
			if err := s.db.Delete(dk, nil); err != nil {
				return npurged, nremain, fmt.Errorf("resultstore: purging entry: %w", err)
			}
			if err := s.db.Delete(recentKey(e.RecordedAt, dk), nil); err != nil {
				return npurged, nremain, fmt.Errorf("resultstore: purging recency index: %w", err)
			}
			npurged++
		} else {
			nremain++
		}
	}
	if err := it.Error(); err != nil {
		return npurged, nremain, fmt.Errorf("resultstore: iterating for GC: %w", err)
	}
	return npurged, nremain, nil
}

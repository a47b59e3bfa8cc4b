package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/hailam/noxchess/internal/engine"
)

// Storage keys
const (
	keyOptions = "options"
	keyStats   = "stats"
)

// Options are the UCI options that survive a restart.
type Options struct {
	Hash     int       `json:"hash"`
	Threads  int       `json:"threads"`
	Contempt int       `json:"contempt"`
	Skill    int       `json:"skill"`
	Updated  time.Time `json:"updated"`
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		Hash:     engine.HashDefault,
		Threads:  engine.ThreadsDefault,
		Contempt: engine.ContemptDefault,
		Skill:    engine.SkillDefault,
	}
}

// Apply copies the options into cfg. Out-of-range values are clamped by
// the engine.
func (o Options) Apply(cfg engine.Config) engine.Config {
	cfg.HashMB = o.Hash
	cfg.Threads = o.Threads
	cfg.Contempt = o.Contempt
	cfg.SkillLevel = o.Skill
	return cfg
}

// Stats counts what the engine has done across sessions.
type Stats struct {
	Games       int           `json:"games"`
	Searches    int           `json:"searches"`
	Nodes       uint64        `json:"nodes"`
	SearchTime  time.Duration `json:"search_time"`
	DeepestIter int           `json:"deepest_iteration"`
	LastUsed    time.Time     `json:"last_used"`
}

// NPS returns the average search speed.
func (s *Stats) NPS() uint64 {
	if s.SearchTime <= 0 {
		return 0
	}
	return uint64(float64(s.Nodes) / s.SearchTime.Seconds())
}

// Storage wraps BadgerDB for persistent storage
type Storage struct {
	db *badger.DB
}

// Open opens (creating if needed) the database under dataDir, or under
// the platform data directory when dataDir is empty.
func Open(dataDir string) (*Storage, error) {
	dbDir, err := GetDatabaseDir(dataDir)
	if err != nil {
		return nil, err
	}
	opts := badger.DefaultOptions(dbDir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dbDir, err)
	}
	return &Storage{db: db}, nil
}

// OpenInMemory opens a database that lives only as long as the process.
func OpenInMemory() (*Storage, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Storage{db: db}, nil
}

// Close closes the database
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Storage) put(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// get decodes key into v, leaving v untouched when the key is absent.
func (s *Storage) get(key string, v any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
}

// SaveOptions saves the options
func (s *Storage) SaveOptions(o Options) error {
	o.Updated = time.Now()
	return s.put(keyOptions, o)
}

// LoadOptions loads the options, returning defaults if none were saved
func (s *Storage) LoadOptions() (Options, error) {
	o := DefaultOptions()
	err := s.get(keyOptions, &o)
	return o, err
}

// LoadStats loads usage statistics, zero if none were saved
func (s *Storage) LoadStats() (*Stats, error) {
	stats := &Stats{}
	err := s.get(keyStats, stats)
	return stats, err
}

// RecordSearch adds a finished search to the statistics.
func (s *Storage) RecordSearch(res engine.Result, elapsed time.Duration) error {
	stats, err := s.LoadStats()
	if err != nil {
		return err
	}
	stats.Searches++
	stats.Nodes += res.Nodes
	stats.SearchTime += elapsed
	stats.DeepestIter = max(stats.DeepestIter, res.Depth)
	stats.LastUsed = time.Now()
	return s.put(keyStats, stats)
}

// RecordNewGame counts a ucinewgame.
func (s *Storage) RecordNewGame() error {
	stats, err := s.LoadStats()
	if err != nil {
		return err
	}
	stats.Games++
	stats.LastUsed = time.Now()
	return s.put(keyStats, stats)
}

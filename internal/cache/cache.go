package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// entryModel is the single durable table: an append-only (key, ts, ttl, value)
// log with a secondary index on (key, ts desc).
type entryModel struct {
	ID    uint   `gorm:"primaryKey;autoIncrement"`
	Key   string `gorm:"column:k;size:128;not null;index:idx_k_ts,priority:1"`
	Ts    int64  `gorm:"column:ts;not null;index:idx_k_ts,priority:2,sort:desc"`
	TTL   int64  `gorm:"column:ttl;not null"`
	Value []byte `gorm:"column:v;not null"`
}

func (entryModel) TableName() string { return "kvstore" }

// Store is a TTL-bounded key/value cache shared by the pollers and the
// read-only report side. Entries expire lazily: an expired row is reported
// absent even before the opportunistic purge removes it.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("cache path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	return newStore(db)
}

// NewStoreFromDB wraps an already opened gorm handle (tests, shared connections).
func NewStoreFromDB(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db cannot be nil")
	}
	return newStore(db)
}

func newStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&entryModel{}); err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		// SQLite + WAL: keep lock contention low while allowing the poller
		// goroutines and the status server to read concurrently.
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	return &Store{db: db, now: time.Now}, nil
}

// SetNowFunc overrides the clock. Intended for tests.
func (s *Store) SetNowFunc(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Put appends value under key at the current time, trims the key down to the
// maxRows most recent rows and opportunistically purges globally expired rows.
// Serialization never fails the write: a non-serializable value degrades to its
// string form.
func (s *Store) Put(key string, value any, ttlSeconds, maxRows int) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("cache store not initialized")
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("cache key cannot be empty")
	}
	if ttlSeconds <= 0 {
		ttlSeconds = 60
	}
	if maxRows <= 0 {
		maxRows = 100
	}
	nowSec := s.now().Unix()
	row := entryModel{Key: key, Ts: nowSec, TTL: int64(ttlSeconds), Value: encode(value)}
	if err := s.db.Create(&row).Error; err != nil {
		return err
	}
	if err := s.trim(key, maxRows); err != nil {
		return err
	}
	// Best-effort: stale rows of any key are already invisible to readers.
	if _, err := s.PurgeExpired(); err != nil {
		return err
	}
	return nil
}

// GetLatest returns the most recent live value for key. Absent covers both
// "never written" and "expired"; callers cannot tell them apart.
func (s *Store) GetLatest(key string) (Value, bool, error) {
	if s == nil || s.db == nil {
		return Value{}, false, fmt.Errorf("cache store not initialized")
	}
	var row entryModel
	err := s.db.Where("k = ?", key).Order("ts DESC").First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return Value{}, false, nil
		}
		return Value{}, false, err
	}
	if row.Ts+row.TTL < s.now().Unix() {
		return Value{}, false, nil
	}
	return Value{raw: row.Value}, true, nil
}

// Rows reports how many entries (live or not) are retained for key.
func (s *Store) Rows(key string) (int64, error) {
	var n int64
	err := s.db.Model(&entryModel{}).Where("k = ?", key).Count(&n).Error
	return n, err
}

// PurgeExpired deletes every row whose expiry has passed, across all keys.
func (s *Store) PurgeExpired() (int64, error) {
	res := s.db.Where("ts + ttl < ?", s.now().Unix()).Delete(&entryModel{})
	return res.RowsAffected, res.Error
}

func (s *Store) trim(key string, maxRows int) error {
	sub := s.db.Model(&entryModel{}).Select("id").Where("k = ?", key).
		Order("ts DESC").Order("id DESC").Limit(maxRows)
	return s.db.Where("k = ? AND id NOT IN (?)", key, sub).Delete(&entryModel{}).Error
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func encode(value any) []byte {
	b, err := json.Marshal(value)
	if err != nil {
		// fmt.Sprint always marshals; the write must not be lost.
		b, _ = json.Marshal(fmt.Sprint(value))
	}
	return b
}

// Value is an opaque cached payload. Decoding is tolerant: readers of partial
// or legacy rows get the raw stored form instead of an error.
type Value struct {
	raw []byte
}

func (v Value) Raw() []byte { return v.raw }

// Decode unmarshals the payload into out.
func (v Value) Decode(out any) error {
	return json.Unmarshal(v.raw, out)
}

// Any returns the structurally decoded payload, or the raw string when the
// stored bytes are not valid JSON.
func (v Value) Any() any {
	var out any
	if err := json.Unmarshal(v.raw, &out); err != nil {
		return string(v.raw)
	}
	return out
}

// Field extracts a nested field by gjson path without a full decode.
func (v Value) Field(path string) gjson.Result {
	return gjson.GetBytes(v.raw, path)
}

package buildlock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// LockSuffix is appended to the index path to name the lock database.
const LockSuffix = ".lock"

var bucketBuilds = []byte("builds")

// Build statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Entry is one build in the manifest history.
type Entry struct {
	ID         string    `json:"id"`
	IndexPath  string    `json:"index_path"`
	MetaPath   string    `json:"meta_path"`
	Model      string    `json:"model,omitempty"`
	Status     string    `json:"status"`
	Documents  int       `json:"documents"`
	Chunks     int       `json:"chunks"`
	Dimension  int       `json:"dimension"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// Duration returns the build wall time, zero while running.
func (e Entry) Duration() time.Duration {
	if e.FinishedAt.IsZero() {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt)
}

var (
	registryMu sync.Mutex
	registry   = map[string]struct{}{}
)

// Lock is an exclusive build claim on one index target.
// It holds the in-process registry slot and the bbolt file lock.
type Lock struct {
	key  string
	db   *bbolt.DB
	once sync.Once
}

// Acquire claims indexPath for a build. A claim held by this process or another
// one yields domain.ErrBuildInProgress; the cross-process wait is bounded by timeout.
func Acquire(indexPath string, timeout time.Duration) (*Lock, error) {
	key, err := filepath.Abs(indexPath)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", indexPath, err)
	}

	registryMu.Lock()
	if _, held := registry[key]; held {
		registryMu.Unlock()
		return nil, fmt.Errorf("%w: %s", domain.ErrBuildInProgress, indexPath)
	}
	registry[key] = struct{}{}
	registryMu.Unlock()

	release := func() {
		registryMu.Lock()
		delete(registry, key)
		registryMu.Unlock()
	}

	if err := os.MkdirAll(filepath.Dir(key), 0o755); err != nil {
		release()
		return nil, fmt.Errorf("create dir: %w", err)
	}

	db, err := bbolt.Open(key+LockSuffix, 0o600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		release()
		if errors.Is(err, bbolt.ErrTimeout) {
			return nil, fmt.Errorf("%w: %s locked by another process", domain.ErrBuildInProgress, indexPath)
		}
		return nil, fmt.Errorf("open lock db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBuilds)
		return err
	})
	if err != nil {
		_ = db.Close()
		release()
		return nil, fmt.Errorf("init lock db: %w", err)
	}

	return &Lock{key: key, db: db}, nil
}

// Begin records a running build and returns its entry with a fresh time-ordered id.
func (l *Lock) Begin(e Entry) (Entry, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Entry{}, fmt.Errorf("build id: %w", err)
	}
	e.ID = id.String()
	e.Status = StatusRunning
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now().UTC()
	}
	if err := l.put(e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Finish stores the final state of a build started with Begin.
func (l *Lock) Finish(e Entry) error {
	if e.FinishedAt.IsZero() {
		e.FinishedAt = time.Now().UTC()
	}
	return l.put(e)
}

// History returns up to limit entries, newest first. limit <= 0 returns all.
func (l *Lock) History(limit int) ([]Entry, error) {
	return history(l.db, limit)
}

// Release closes the lock database and frees the target. Idempotent.
func (l *Lock) Release() error {
	var err error
	l.once.Do(func() {
		err = l.db.Close()
		registryMu.Lock()
		delete(registry, l.key)
		registryMu.Unlock()
	})
	return err
}

func (l *Lock) put(e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	err = l.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBuilds).Put([]byte(e.ID), data)
	})
	if err != nil {
		return fmt.Errorf("store entry %s: %w", e.ID, err)
	}
	return nil
}

// ReadHistory opens the lock database of indexPath read-only and returns its history.
// A target that was never built has no history.
func ReadHistory(indexPath string, limit int, timeout time.Duration) ([]Entry, error) {
	path := indexPath + LockSuffix
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: timeout, ReadOnly: true})
	if err != nil {
		if errors.Is(err, bbolt.ErrTimeout) {
			return nil, fmt.Errorf("%w: %s", domain.ErrBuildInProgress, indexPath)
		}
		return nil, fmt.Errorf("open lock db: %w", err)
	}
	defer func() { _ = db.Close() }()

	return history(db, limit)
}

func history(db *bbolt.DB, limit int) ([]Entry, error) {
	var out []Entry
	err := db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketBuilds)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decode entry %s: %w", k, err)
			}
			out = append(out, e)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return out, nil
}
